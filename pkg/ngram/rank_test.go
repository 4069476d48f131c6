package ngram

import (
	"math"
	"testing"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRank(t *testing.T) {
	model := mustTrain(t, "aaab", 2)

	testCases := []struct {
		name       string
		history    string
		modelOrder int
		order      int
		want       Candidates
	}{
		{
			name:       "Exact match at the model order",
			history:    "aa",
			modelOrder: 2,
			order:      2,
			want:       Candidates{'a': 1.0 / 3, 'b': 1.0 / 3},
		},
		{
			name:       "Unseen history is empty",
			history:    "ba",
			modelOrder: 2,
			order:      2,
			want:       nil,
		},
		{
			name:       "One step of backoff is discounted",
			history:    "ba",
			modelOrder: 2,
			order:      1,
			want:       Candidates{'a': 0.4 * 2 / 5, 'b': 0.4 * 1 / 5},
		},
		{
			name:       "History shorter than order is clamped",
			history:    "a",
			modelOrder: 2,
			order:      2,
			want:       Candidates{'a': 2.0 / 3, 'b': 1.0 / 3},
		},
		{
			name:       "Order zero uses the unigram mass",
			history:    "zz",
			modelOrder: 2,
			order:      0,
			want:       Candidates{'~': 0.16 * 1 / 5, 'a': 0.16 * 3 / 5, 'b': 0.16 * 1 / 5},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Rank(model, tc.history, tc.modelOrder, tc.order)
			if len(got) != len(tc.want) {
				t.Fatalf("Rank() = %v, want %v", got, tc.want)
			}
			for c, score := range tc.want {
				if !approxEqual(got[c], score) {
					t.Errorf("score for %q = %v, want %v", c, got[c], score)
				}
			}
		})
	}
}

func TestRankEmptyIffHistoryAbsent(t *testing.T) {
	model := mustTrain(t, "abracadabra", 3)
	histories := []string{"abr", "bra", "zzz", "ab", "q", "~~a", "", "cad", "dab"}

	for _, h := range histories {
		for order := 0; order <= 3; order++ {
			_, present := model[lastRunes([]rune(h), order)]
			got := Rank(model, h, 3, order)
			if present == (len(got) == 0) {
				t.Errorf("Rank(%q, order=%d): present=%v but got %d candidates", h, order, present, len(got))
			}
		}
	}
}

func TestRankBackoffDiscountMonotonic(t *testing.T) {
	model := mustTrain(t, "ab", 1)

	near := Rank(model, "a", 2, 1) // one step below modelOrder
	far := Rank(model, "a", 3, 1)  // two steps below modelOrder
	if len(near) == 0 || len(far) == 0 {
		t.Fatalf("expected candidates, got near=%v far=%v", near, far)
	}
	for c, score := range near {
		if far[c] >= score {
			t.Errorf("score for %q two steps down (%v) should be lower than one step down (%v)", c, far[c], score)
		}
		if !approxEqual(far[c], score*DefaultDiscount) {
			t.Errorf("score for %q: far = %v, want near*%v = %v", c, far[c], DefaultDiscount, score*DefaultDiscount)
		}
	}
}

func TestRankOrderOneModel(t *testing.T) {
	model := mustTrain(t, "ab", 1)

	got := Rank(model, "a", 1, 1)
	if got['b'] <= 0 {
		t.Errorf("expected a positive score for 'b' after \"a\", got %v", got)
	}

	if got := Rank(model, "xyzwv", 1, 5); len(got) != 0 {
		t.Errorf("expected no candidates for an unseen 5-length history, got %v", got)
	}
}

func TestStupidBackoffCustomDiscount(t *testing.T) {
	model := mustTrain(t, "ab", 1)
	ranker := StupidBackoff{Discount: 0.5}

	got := ranker.Rank(model, "a", 3, 1)
	if !approxEqual(got['b'], 0.25*1/2) {
		t.Errorf("score for 'b' = %v, want %v", got['b'], 0.25*1/2)
	}
}
