package ngram

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestModelStats(t *testing.T) {
	model := mustTrain(t, "aaab", 2)

	want := ModelStats{
		Histories:      6,
		Transitions:    11,
		TotalFrequency: 14,
		PerOrder:       map[int]int{0: 1, 1: 2, 2: 3},
	}
	if diff := cmp.Diff(want, model.Stats()); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetStats(t *testing.T) {
	ctx, s, info, model := setupTestStoreWithModel(t)

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if len(stats.Models) != 1 || stats.Models[0] != info {
		t.Fatalf("expected exactly %+v, got %+v", info, stats.Models)
	}
	if diff := cmp.Diff(model.Stats(), stats.Stats[info.Id]); diff != "" {
		t.Errorf("stored stats differ from in-memory stats (-mem +db):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		model   LanguageModel
		order   int
		wantErr bool
	}{
		{name: "Trained model is valid", model: mustTrain(t, "hello world", 3), order: 3},
		{name: "Nil model", model: nil, order: 3, wantErr: true},
		{name: "History too long", model: LanguageModel{"abcd": {'e': 1}}, order: 3, wantErr: true},
		{name: "Zero count", model: LanguageModel{"ab": {'c': 0}}, order: 3, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.model.Validate(tc.order)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestPrune(t *testing.T) {
	model := mustTrain(t, "aaab", 2)

	pruned := model.Prune(1)
	want := LanguageModel{
		"":   {'~': 1, 'a': 3, 'b': 1},
		"~":  {'~': 1, 'a': 1},
		"~~": {'a': 1},
		"a":  {'a': 2},
	}
	if diff := cmp.Diff(want, pruned); diff != "" {
		t.Errorf("Prune(1) mismatch (-want +got):\n%s", diff)
	}

	// The source model is left untouched.
	if model["aa"]['b'] != 1 {
		t.Error("Prune modified the source model")
	}
}

func TestPruneModel(t *testing.T) {
	db, s := setupTestStore(t)
	ctx := context.Background()

	model := mustTrain(t, "aaab", 2)
	info, err := s.SaveModel(ctx, "prune_test", 2, model)
	if err != nil {
		t.Fatalf("SaveModel failed: %v", err)
	}

	if err := s.PruneModel(ctx, info, 1); err != nil {
		t.Fatalf("PruneModel failed: %v", err)
	}

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM charlm_counts WHERE model_id = ? AND frequency <= 1 AND replace(history, '~', '') <> ''", info.Id).Scan(&count)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected 0 non-padding transitions with frequency 1 after pruning, got %d", count)
	}

	_, loaded, err := s.LoadModel(ctx, info.Name)
	if err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}
	if diff := cmp.Diff(model.Prune(1), loaded); diff != "" {
		t.Errorf("stored prune differs from in-memory prune (-mem +db):\n%s", diff)
	}
}

func TestGenerateAfterPrune(t *testing.T) {
	ctx := context.Background()
	_, s := setupTestStore(t)

	model := mustTrain(t, "abcabcabd", 3)
	info, err := s.SaveModel(ctx, "pruned", 3, model)
	if err != nil {
		t.Fatalf("SaveModel failed: %v", err)
	}
	if err = s.PruneModel(ctx, info, 1); err != nil {
		t.Fatalf("PruneModel failed: %v", err)
	}
	_, stored, err := s.LoadModel(ctx, info.Name)
	if err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}

	testCases := []struct {
		name  string
		model LanguageModel
	}{
		{name: "In memory", model: model.Prune(1)},
		{name: "Stored", model: stored},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := tc.model["~~~"]; !ok {
				t.Fatal("full sentinel history was pruned")
			}
			output, err := NewGenerator().Generate(tc.model, 3, 20, "")
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if strings.ContainsRune(output, Sentinel) {
				t.Errorf("output %q contains the sentinel", output)
			}
			if n := len([]rune(output)); n != 21 {
				t.Errorf("expected 21 characters, got %d (%q)", n, output)
			}
			if !strings.HasPrefix(output, "a") {
				t.Errorf("expected output to start from the corpus start, got %q", output)
			}
		})
	}
}
