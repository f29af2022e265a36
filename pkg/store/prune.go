package store

import (
	"context"
	"fmt"
	"log/slog"
)

// PruneModel removes every observation of model recorded before day before.
// This is useful for keeping a rolling window of recent weather so the
// estimated transitions follow the current season.
func (s *Store) PruneModel(ctx context.Context, model ModelInfo, before int) (int64, error) {
	res, err := s.stmtPruneModel.ExecContext(ctx, model.Id, before)
	if err != nil {
		return 0, fmt.Errorf("could not prune model %d: %w", model.Id, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model pruned",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("before_day", before),
		slog.Int64("observations_removed", rowsAffected),
	)
	return rowsAffected, nil
}
