package ngram

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"
)

// ExportVersion is the current version of the JSON export format.
const ExportVersion = 1

// ExportedModel is the serializable representation of a trained model, used
// for JSON-based import and export. Characters are encoded as one-rune strings
// because JSON object keys must be strings.
type ExportedModel struct {
	Version   int                       `json:"version"`
	Name      string                    `json:"name"`
	Order     int                       `json:"order"`
	Histories map[string]map[string]int `json:"histories"` // history -> next_char -> count
}

// EncodeModel writes model as indented JSON to w.
func EncodeModel(w io.Writer, info ModelInfo, model LanguageModel) error {
	exported := ExportedModel{
		Version:   ExportVersion,
		Name:      info.Name,
		Order:     info.Order,
		Histories: make(map[string]map[string]int, len(model)),
	}
	for history, dist := range model {
		chars := make(map[string]int, len(dist))
		for c, count := range dist {
			chars[string(c)] = count
		}
		exported.Histories[history] = chars
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// DecodeModel reads a JSON model written by EncodeModel. It rejects unknown
// format versions and malformed character keys.
func DecodeModel(r io.Reader) (ModelInfo, LanguageModel, error) {
	var imported ExportedModel
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return ModelInfo{}, nil, fmt.Errorf("failed to decode json model: %w", err)
	}
	if imported.Version != ExportVersion {
		return ModelInfo{}, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, imported.Version)
	}
	if imported.Order <= 0 {
		return ModelInfo{}, nil, ErrInvalidOrder
	}

	model := make(LanguageModel, len(imported.Histories))
	for history, chars := range imported.Histories {
		dist := make(Distribution, len(chars))
		for text, count := range chars {
			c, size := utf8.DecodeRuneInString(text)
			if size == 0 || size != len(text) {
				return ModelInfo{}, nil, fmt.Errorf("import consistency error: %q is not a single character", text)
			}
			dist[c] = count
		}
		model[history] = dist
	}
	if err := model.Validate(imported.Order); err != nil {
		return ModelInfo{}, nil, fmt.Errorf("import consistency error: %w", err)
	}

	return ModelInfo{Name: imported.Name, Order: imported.Order}, model, nil
}

// ExportModel loads a stored model and writes it to w in the JSON export
// format. This is useful for backups or for transferring models.
func (s *Store) ExportModel(ctx context.Context, info ModelInfo, w io.Writer) error {
	info, model, err := s.LoadModel(ctx, info.Name)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model exported",
		slog.String("model_name", info.Name),
		slog.Int("model_id", info.Id),
		slog.Int("histories_exported", len(model)),
	)
	return EncodeModel(w, info, model)
}

// ImportModel reads a JSON model from r and merges it into the store. If a
// model with the same name exists, counts are added to it; its order must
// match. Otherwise the model is created. The operation is transactional.
func (s *Store) ImportModel(ctx context.Context, r io.Reader) (ModelInfo, error) {
	info, model, err := DecodeModel(r)
	if err != nil {
		return ModelInfo{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("could not begin transaction for import: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var existingOrder int
	err = tx.QueryRowContext(ctx, "SELECT model_id, model_order FROM charlm_models WHERE model_name = ?", info.Name).Scan(&info.Id, &existingOrder)
	if errors.Is(err, sql.ErrNoRows) {
		res, err := tx.ExecContext(ctx, "INSERT INTO charlm_models (model_name, model_order, created_at) VALUES (?, ?, ?)", info.Name, info.Order, time.Now().Unix())
		if err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert new model '%s': %w", info.Name, err)
		}
		newID, _ := res.LastInsertId()
		info.Id = int(newID)
	} else if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to query for model '%s': %w", info.Name, err)
	} else if existingOrder != info.Order {
		return ModelInfo{}, fmt.Errorf("cannot merge model '%s': stored order %d, imported order %d", info.Name, existingOrder, info.Order)
	}

	transitions, err := insertCounts(ctx, tx, info.Id, model, true)
	if err != nil {
		return ModelInfo{}, err
	}

	s.logger.InfoContext(ctx, "Model imported successfully",
		slog.String("model_name", info.Name),
		slog.Int("target_model_id", info.Id),
		slog.Int("histories_merged", len(model)),
		slog.Int("transitions_merged", transitions),
	)

	return info, tx.Commit()
}
