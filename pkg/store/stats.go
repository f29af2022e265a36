package store

import (
	"context"
	"sort"

	"github.com/CTAG07/Pronostico/pkg/markov"
)

// DBStats holds aggregated statistics for the entire database, including a
// list of all models and their individual stats.
type DBStats struct {
	Models            []ModelInfo        `json:"models"`             // All models, sorted by name
	Stats             map[int]ModelStats `json:"stats"`              // Model id -> stats
	TotalObservations int                `json:"total_observations"` // Observations across all models
}

// ModelStats holds aggregated statistics for a single model.
type ModelStats struct {
	Observations int `json:"observations"` // Number of stored days.
	FirstDay     int `json:"first_day"`    // Earliest stored day, 0 when empty.
	LastDay      int `json:"last_day"`     // Latest stored day, 0 when empty.
	States       int `json:"states"`       // Number of distinct state labels.
	Transitions  int `json:"transitions"`  // Consecutive-day pairs counted by the estimator.
}

// GetStats returns a snapshot of statistics for the entire database.
func (s *Store) GetStats(ctx context.Context) (*DBStats, error) {
	modelInfos, err := s.GetModelInfos(ctx)
	if err != nil {
		return nil, err
	}

	var total int
	if err = s.stmtTotalObservations.QueryRowContext(ctx).Scan(&total); err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(modelInfos))
	modelStats := make(map[int]ModelStats, len(modelInfos))
	for _, m := range modelInfos {
		models = append(models, m)
		stats, err := s.GetModelStats(ctx, m)
		if err != nil {
			return nil, err
		}
		modelStats[m.Id] = stats
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })

	return &DBStats{
		Models:            models,
		Stats:             modelStats,
		TotalObservations: total,
	}, nil
}

// GetModelStats returns the statistics of a single model.
func (s *Store) GetModelStats(ctx context.Context, model ModelInfo) (ModelStats, error) {
	var stats ModelStats
	err := s.stmtModelSummary.QueryRowContext(ctx, model.Id).Scan(&stats.Observations, &stats.FirstDay, &stats.LastDay, &stats.States)
	if err != nil {
		return ModelStats{}, err
	}

	obs, err := s.Observations(ctx, model)
	if err != nil {
		return ModelStats{}, err
	}
	_, counts := markov.CountTransitions(obs)
	stats.Transitions = counts.Total()
	return stats, nil
}
