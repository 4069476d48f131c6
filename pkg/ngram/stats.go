package ngram

import (
	"context"
	"sort"
)

// DBStats holds aggregated statistics for the entire store, including a list
// of all models and their individual stats.
type DBStats struct {
	Models []ModelInfo        // A list of models in the store, sorted by name
	Stats  map[int]ModelStats // A mapping of model ids to their stats
}

// GetStats returns a snapshot of statistics for every stored model.
func (s *Store) GetStats(ctx context.Context) (*DBStats, error) {
	modelInfos, err := s.GetModelInfos(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(modelInfos))
	modelStats := make(map[int]ModelStats, len(modelInfos))
	for _, v := range modelInfos {
		models = append(models, v)
		stats, err := s.modelStats(ctx, v)
		if err != nil {
			return nil, err
		}
		modelStats[v.Id] = stats
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].Name < models[j].Name
	})

	return &DBStats{
		Models: models,
		Stats:  modelStats,
	}, nil
}

func (s *Store) modelStats(ctx context.Context, model ModelInfo) (ModelStats, error) {
	stats := ModelStats{PerOrder: make(map[int]int)}
	err := s.stmtModelStats.QueryRowContext(ctx, model.Id).Scan(&stats.Histories, &stats.Transitions, &stats.TotalFrequency)
	if err != nil {
		return ModelStats{}, err
	}

	rows, err := s.stmtModelPerOrder.QueryContext(ctx, model.Id)
	if err != nil {
		return ModelStats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var length, histories int
		if err = rows.Scan(&length, &histories); err != nil {
			return ModelStats{}, err
		}
		stats.PerOrder[length] = histories
	}
	return stats, rows.Err()
}
