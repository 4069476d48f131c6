package ngram

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"
)

// ModelInfo holds the essential metadata for a stored model, including its
// unique ID, name, and order (the longest history it was trained on).
type ModelInfo struct {
	Id    int    `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// SetupSchema initializes the necessary tables in the provided database. It is
// idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaModels = `
CREATE TABLE IF NOT EXISTS charlm_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    model_order INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
`
		schemaCounts = `
CREATE TABLE IF NOT EXISTS charlm_counts (
    model_id INTEGER NOT NULL,
    history TEXT NOT NULL,
    next_char TEXT NOT NULL,
    frequency INTEGER NOT NULL,
    PRIMARY KEY (model_id, history, next_char)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create models schema: %w", err)
	}
	if _, err = tx.Exec(schemaCounts); err != nil {
		return fmt.Errorf("could not create counts schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store persists language models in a SQLite database. It holds the database
// connection and prepared statements for the common lookups.
type Store struct {
	db                *sql.DB
	stmtGetModelInfo  *sql.Stmt
	stmtGetModels     *sql.Stmt
	stmtGetCounts     *sql.Stmt
	stmtModelStats    *sql.Stmt
	stmtModelPerOrder *sql.Stmt
	stmtPruneModel    *sql.Stmt
	logger            *slog.Logger
}

// NewStore creates a Store over db, which must already have the schema set
// up. It pre-compiles the statements it needs, returning an error if any
// preparation fails.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGetModelInfo, err := db.Prepare(`SELECT model_id, model_order FROM charlm_models WHERE model_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetModels, err := db.Prepare(`SELECT model_id, model_name, model_order FROM charlm_models;`)
	if err != nil {
		return nil, err
	}

	stmtGetCounts, err := db.Prepare(`SELECT history, next_char, frequency FROM charlm_counts WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtModelStats, err := db.Prepare(`SELECT COUNT(DISTINCT history), COUNT(*), coalesce(SUM(frequency), 0) FROM charlm_counts WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtModelPerOrder, err := db.Prepare(`SELECT length(history), COUNT(DISTINCT history) FROM charlm_counts WHERE model_id = ? GROUP BY length(history);`)
	if err != nil {
		return nil, err
	}

	stmtPruneModel, err := db.Prepare(`DELETE FROM charlm_counts WHERE model_id = ? AND frequency <= ? AND replace(history, '~', '') <> '';`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:                db,
		stmtGetModelInfo:  stmtGetModelInfo,
		stmtGetModels:     stmtGetModels,
		stmtGetCounts:     stmtGetCounts,
		stmtModelStats:    stmtModelStats,
		stmtModelPerOrder: stmtModelPerOrder,
		stmtPruneModel:    stmtPruneModel,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared statements held by the Store.
func (s *Store) Close() {
	_ = s.stmtGetModelInfo.Close()
	_ = s.stmtGetModels.Close()
	_ = s.stmtGetCounts.Close()
	_ = s.stmtModelStats.Close()
	_ = s.stmtModelPerOrder.Close()
	_ = s.stmtPruneModel.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// GetModelInfos retrieves metadata for all stored models, keyed by name.
func (s *Store) GetModelInfos(ctx context.Context) (map[string]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make(map[string]ModelInfo)
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name, &model.Order); err != nil {
			return nil, err
		}
		models[model.Name] = model
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// GetModelInfo retrieves the metadata for a single model. It returns
// sql.ErrNoRows if no model has that name.
func (s *Store) GetModelInfo(ctx context.Context, name string) (ModelInfo, error) {
	var id, order int
	if err := s.stmtGetModelInfo.QueryRowContext(ctx, name).Scan(&id, &order); err != nil {
		return ModelInfo{}, err
	}
	return ModelInfo{Id: id, Name: name, Order: order}, nil
}

// SaveModel writes model under name, replacing any model already stored with
// that name. The operation is performed within a single transaction.
func (s *Store) SaveModel(ctx context.Context, name string, order int, model LanguageModel) (ModelInfo, error) {
	if order <= 0 {
		return ModelInfo{}, ErrInvalidOrder
	}
	if model == nil {
		return ModelInfo{}, ErrNilModel
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("could not begin transaction for save: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var modelID int
	err = tx.QueryRowContext(ctx, "SELECT model_id FROM charlm_models WHERE model_name = ?", name).Scan(&modelID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, "INSERT INTO charlm_models (model_name, model_order, created_at) VALUES (?, ?, ?)", name, order, time.Now().Unix())
		if err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert model '%s': %w", name, err)
		}
		newID, _ := res.LastInsertId()
		modelID = int(newID)
	case err != nil:
		return ModelInfo{}, fmt.Errorf("failed to query for model '%s': %w", name, err)
	default:
		if _, err = tx.ExecContext(ctx, "DELETE FROM charlm_counts WHERE model_id = ?", modelID); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to clear counts for model %d: %w", modelID, err)
		}
		if _, err = tx.ExecContext(ctx, "UPDATE charlm_models SET model_order = ?, created_at = ? WHERE model_id = ?", order, time.Now().Unix(), modelID); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to update model %d: %w", modelID, err)
		}
	}

	transitions, err := insertCounts(ctx, tx, modelID, model, false)
	if err != nil {
		return ModelInfo{}, err
	}

	if err = tx.Commit(); err != nil {
		return ModelInfo{}, err
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", name),
		slog.Int("model_id", modelID),
		slog.Int("histories", len(model)),
		slog.Int("transitions", transitions),
	)
	return ModelInfo{Id: modelID, Name: name, Order: order}, nil
}

// MergeModel adds the counts of model to the stored model described by info,
// so further training accumulates instead of replacing what is stored.
func (s *Store) MergeModel(ctx context.Context, info ModelInfo, model LanguageModel) error {
	if model == nil {
		return ErrNilModel
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for merge: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	transitions, err := insertCounts(ctx, tx, info.Id, model, true)
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model counts merged",
		slog.String("model_name", info.Name),
		slog.Int("model_id", info.Id),
		slog.Int("histories", len(model)),
		slog.Int("transitions", transitions),
	)
	return nil
}

// insertCounts writes every transition of model for modelID. When merge is
// true, counts for transitions that already exist are added together.
func insertCounts(ctx context.Context, tx *sql.Tx, modelID int, model LanguageModel, merge bool) (int, error) {
	query := `INSERT INTO charlm_counts (model_id, history, next_char, frequency) VALUES (?, ?, ?, ?);`
	if merge {
		query = `INSERT INTO charlm_counts (model_id, history, next_char, frequency) VALUES (?, ?, ?, ?)
		ON CONFLICT(model_id, history, next_char) DO UPDATE SET frequency = frequency + excluded.frequency;`
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare count insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmt)

	var transitions int
	for history, dist := range model {
		for c, count := range dist {
			if _, err = stmt.ExecContext(ctx, modelID, history, string(c), count); err != nil {
				return 0, fmt.Errorf("failed to insert count (%q -> %q): %w", history, c, err)
			}
			transitions++
		}
	}
	return transitions, nil
}

// LoadModel reads the model stored under name. It returns an error wrapping
// sql.ErrNoRows if no model has that name.
func (s *Store) LoadModel(ctx context.Context, name string) (ModelInfo, LanguageModel, error) {
	info, err := s.GetModelInfo(ctx, name)
	if err != nil {
		return ModelInfo{}, nil, fmt.Errorf("could not get model '%s': %w", name, err)
	}

	rows, err := s.stmtGetCounts.QueryContext(ctx, info.Id)
	if err != nil {
		return ModelInfo{}, nil, fmt.Errorf("could not query counts for model %d: %w", info.Id, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	model := make(LanguageModel)
	for rows.Next() {
		var history, next string
		var freq int
		if err = rows.Scan(&history, &next, &freq); err != nil {
			return ModelInfo{}, nil, err
		}
		c, size := utf8.DecodeRuneInString(next)
		if size == 0 || size != len(next) {
			return ModelInfo{}, nil, fmt.Errorf("consistency error: stored next char %q is not a single character", next)
		}
		dist, ok := model[history]
		if !ok {
			dist = make(Distribution)
			model[history] = dist
		}
		dist[c] = freq
	}
	if err = rows.Err(); err != nil {
		return ModelInfo{}, nil, err
	}

	s.logger.DebugContext(ctx, "Model loaded",
		slog.String("model_name", info.Name),
		slog.Int("model_id", info.Id),
		slog.Int("histories", len(model)),
	)
	return info, model, nil
}

// RemoveModel deletes a model and all of its counts. The operation is
// performed within a transaction.
func (s *Store) RemoveModel(ctx context.Context, model ModelInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM charlm_counts WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove counts for model %d: %w", model.Id, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM charlm_models WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", model.Id, err)
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
	)
	return tx.Commit()
}

// PruneModel removes all stored transitions of a model whose frequency is less
// than or equal to minFreq. Padding histories are kept intact, as in
// LanguageModel.Prune.
func (s *Store) PruneModel(ctx context.Context, model ModelInfo, minFreq int) error {
	res, err := s.stmtPruneModel.ExecContext(ctx, model.Id, minFreq)
	if err != nil {
		return fmt.Errorf("could not prune model %d: %w", model.Id, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model pruned",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("min_frequency", minFreq),
		slog.Int64("transitions_removed", rowsAffected),
	)
	return nil
}
