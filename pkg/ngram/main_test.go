package ngram

import (
	"context"
	"database/sql"
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestStore creates a new file-backed SQLite database and a Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestStore(t *testing.T) (*sql.DB, *Store) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}

// mustTrain trains a model or fails the test.
func mustTrain(t testing.TB, text string, order int) LanguageModel {
	t.Helper()
	model, err := Train(context.Background(), text, order)
	if err != nil {
		t.Fatalf("Train(%q, %d) failed: %v", text, order, err)
	}
	return model
}

// setupTestStoreWithModel is a convenience helper that also trains and saves a default model.
func setupTestStoreWithModel(t *testing.T) (context.Context, *Store, ModelInfo, LanguageModel) {
	_, s := setupTestStore(t)
	ctx := context.Background()
	model := mustTrain(t, "one fish two fish. red fish blue fish.", 3)
	info, err := s.SaveModel(ctx, "test_model", 3, model)
	if err != nil {
		t.Fatalf("setup: SaveModel() failed: %v", err)
	}
	return ctx, s, info, model
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
