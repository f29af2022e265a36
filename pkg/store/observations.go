package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CTAG07/Pronostico/pkg/markov"
)

// ErrEmptyState is returned when an observation without a state label is
// offered for storage.
var ErrEmptyState = errors.New("observation has an empty state")

// AddObservations stores obs under model. An observation for a day that is
// already stored replaces the previous state. The operation is performed
// within a single transaction, so either every observation is stored or none.
func (s *Store) AddObservations(ctx context.Context, model ModelInfo, obs []markov.Observation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err = s.upsertObservations(ctx, tx, model, obs); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Observations stored",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("observations", len(obs)),
	)
	return nil
}

func (s *Store) upsertObservations(ctx context.Context, tx *sql.Tx, model ModelInfo, obs []markov.Observation) error {
	stmtUpsert := tx.StmtContext(ctx, s.stmtUpsertObservation)
	for _, o := range obs {
		if o.State == "" {
			return fmt.Errorf("day %d: %w", o.Day, ErrEmptyState)
		}
		if _, err := stmtUpsert.ExecContext(ctx, model.Id, o.Day, o.State); err != nil {
			return fmt.Errorf("failed to store observation for day %d: %w", o.Day, err)
		}
	}
	return nil
}

// Observations returns every observation of model ordered by day.
func (s *Store) Observations(ctx context.Context, model ModelInfo) ([]markov.Observation, error) {
	rows, err := s.stmtGetObservations.QueryContext(ctx, model.Id)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var obs []markov.Observation
	for rows.Next() {
		var o markov.Observation
		if err = rows.Scan(&o.Day, &o.State); err != nil {
			return nil, err
		}
		obs = append(obs, o)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return obs, nil
}

// Estimate loads the observations of model and estimates its transition matrix.
func (s *Store) Estimate(ctx context.Context, model ModelInfo) (*markov.StateSpace, *markov.TransitionMatrix, error) {
	obs, err := s.Observations(ctx, model)
	if err != nil {
		return nil, nil, fmt.Errorf("could not load observations for model '%s': %w", model.Name, err)
	}
	space, matrix := markov.Estimate(obs)

	s.logger.DebugContext(ctx, "Model estimated",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("observations", len(obs)),
		slog.Int("states", space.Len()),
	)
	return space, matrix, nil
}

// ModelSource reads the observations of a single stored model. It satisfies
// the dataset.Source interface.
type ModelSource struct {
	store *Store
	model ModelInfo
}

// Source returns a ModelSource for model.
func (s *Store) Source(model ModelInfo) *ModelSource {
	return &ModelSource{store: s, model: model}
}

// Load returns the model's observations ordered by day.
func (m *ModelSource) Load(ctx context.Context) ([]markov.Observation, error) {
	return m.store.Observations(ctx, m.model)
}

// String describes the source for logs.
func (m *ModelSource) String() string {
	return "model:" + m.model.Name
}
