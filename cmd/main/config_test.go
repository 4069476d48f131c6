package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/CTAG07/charlm/pkg/ngram"
	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), config); diff != "" {
		t.Errorf("expected defaults (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file was not written: %v", err)
	}

	reloaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig of written defaults failed: %v", err)
	}
	if diff := cmp.Diff(config, reloaded); diff != "" {
		t.Errorf("written defaults did not round trip (-want +got):\n%s", diff)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `{"model_config": {"name": "names", "corpus_path": "names.txt", "order": 3}}`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Model.Name != "names" || config.Model.Order != 3 {
		t.Errorf("model config not applied: %+v", config.Model)
	}
	if config.Generation.Length != DefaultConfig().Generation.Length {
		t.Errorf("unset sections should keep defaults, got %+v", config.Generation)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	testCases := []struct {
		name     string
		contents string
		wantErr  error
	}{
		{name: "Malformed json", contents: `{`},
		{name: "Zero order", contents: `{"model_config": {"name": "m", "order": 0}}`, wantErr: ngram.ErrInvalidOrder},
		{name: "Negative length", contents: `{"generation_config": {"length": -1}}`, wantErr: ngram.ErrInvalidLength},
		{name: "Unknown selector", contents: `{"generation_config": {"selector": "best"}}`},
		{name: "Missing model name", contents: `{"model_config": {"name": "", "order": 2}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.contents))
			if err == nil {
				t.Fatal("expected an error, got nil")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNewSelector(t *testing.T) {
	for _, name := range []string{"", "argmax", "ArgMax"} {
		s, err := newSelector(name, 1)
		if err != nil {
			t.Fatalf("newSelector(%q) failed: %v", name, err)
		}
		if _, ok := s.(ngram.ArgMax); !ok {
			t.Errorf("newSelector(%q) = %T, want ngram.ArgMax", name, s)
		}
	}

	s, err := newSelector("weighted", 7)
	if err != nil {
		t.Fatalf("newSelector(weighted) failed: %v", err)
	}
	if _, ok := s.(*ngram.WeightedRandom); !ok {
		t.Errorf("newSelector(weighted) = %T, want *ngram.WeightedRandom", s)
	}
}

func TestParseLogLevel(t *testing.T) {
	testCases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range testCases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
