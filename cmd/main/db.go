package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/charlm/pkg/ngram"
)

// initDB opens the configured SQLite database, creating its directory when
// needed, and makes sure the model schema exists.
func initDB(ctx context.Context, dataSource string) (*sql.DB, error) {
	path, _, _ := strings.Cut(dataSource, "?")
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := openDB(dataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", sqliteDriver, err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err = ngram.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup model schema: %w", err)
	}
	return db, nil
}
