package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/CTAG07/Pronostico/pkg/markov"
)

// ModelInfo identifies a stored observation log.
type ModelInfo struct {
	Id   int    `json:"id"`
	Name string `json:"name"`
}

// ExportedModel is the serializable representation of a model, used for
// JSON-based import and export. It is a plain table of observations.
type ExportedModel struct {
	Name         string               `json:"name"`
	Observations []markov.Observation `json:"observations"`
}

// GetModelInfos retrieves all models in the database, keyed by model name.
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
		if err = rows.Scan(&model.Id, &model.Name); err != nil {
			return nil, err
		}
		models[model.Name] = model
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// GetModelInfo retrieves a single model by name. It returns sql.ErrNoRows if
// the model does not exist.
func (s *Store) GetModelInfo(ctx context.Context, modelName string) (ModelInfo, error) {
	var modelId int
	if err := s.stmtGetModelInfo.QueryRowContext(ctx, modelName).Scan(&modelId); err != nil {
		return ModelInfo{}, err
	}
	return ModelInfo{Id: modelId, Name: modelName}, nil
}

// InsertModel creates a new, empty model and returns it with its assigned ID.
func (s *Store) InsertModel(ctx context.Context, modelName string) (ModelInfo, error) {
	if modelName == "" {
		return ModelInfo{}, errors.New("model name is required")
	}
	var modelId int
	if err := s.stmtAddModel.QueryRowContext(ctx, modelName).Scan(&modelId); err != nil {
		return ModelInfo{}, fmt.Errorf("failed to insert model '%s': %w", modelName, err)
	}
	s.logger.InfoContext(ctx, "Model created",
		slog.String("model_name", modelName),
		slog.Int("model_id", modelId),
	)
	return ModelInfo{Id: modelId, Name: modelName}, nil
}

// EnsureModel returns the model with the given name, creating it if needed.
func (s *Store) EnsureModel(ctx context.Context, modelName string) (ModelInfo, error) {
	model, err := s.GetModelInfo(ctx, modelName)
	if err == nil {
		return model, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ModelInfo{}, err
	}
	return s.InsertModel(ctx, modelName)
}

// RemoveModel deletes a model and all of its observations. The operation is
// performed within a transaction.
func (s *Store) RemoveModel(ctx context.Context, model ModelInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, s.dialect.bind("DELETE FROM weather_observations WHERE model_id = ?"), model.Id); err != nil {
		return fmt.Errorf("failed to remove observations for model %d: %w", model.Id, err)
	}

	if _, err = tx.ExecContext(ctx, s.dialect.bind("DELETE FROM weather_models WHERE model_id = ?"), model.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", model.Id, err)
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
	)
	return nil
}

// ExportModel writes the model's observations as indented JSON to w.
func (s *Store) ExportModel(ctx context.Context, model ModelInfo, w io.Writer) error {
	obs, err := s.Observations(ctx, model)
	if err != nil {
		return fmt.Errorf("could not query observations for export: %w", err)
	}

	s.logger.InfoContext(ctx, "Model exported",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("observations_exported", len(obs)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportedModel{Name: model.Name, Observations: obs})
}

// ImportModel reads a JSON model from r and merges it into the database. A
// model that does not exist yet is created. Observations for days already
// present in an existing model overwrite the stored state. The whole import
// is transactional. It returns the model the data was imported into.
func (s *Store) ImportModel(ctx context.Context, r io.Reader) (ModelInfo, error) {
	var imported ExportedModel
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return ModelInfo{}, fmt.Errorf("failed to decode json model: %w", err)
	}
	if imported.Name == "" {
		return ModelInfo{}, errors.New("imported model has no name")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("could not begin transaction for import: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	model := ModelInfo{Name: imported.Name}
	err = tx.StmtContext(ctx, s.stmtGetModelInfo).QueryRowContext(ctx, imported.Name).Scan(&model.Id)
	if errors.Is(err, sql.ErrNoRows) {
		if err = tx.StmtContext(ctx, s.stmtAddModel).QueryRowContext(ctx, imported.Name).Scan(&model.Id); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert new model '%s': %w", imported.Name, err)
		}
	} else if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to query for model '%s': %w", imported.Name, err)
	}

	if err = s.upsertObservations(ctx, tx, model, imported.Observations); err != nil {
		return ModelInfo{}, err
	}

	if err = tx.Commit(); err != nil {
		return ModelInfo{}, err
	}

	s.logger.InfoContext(ctx, "Model imported successfully",
		slog.String("model_name", model.Name),
		slog.Int("target_model_id", model.Id),
		slog.Int("observations_merged", len(imported.Observations)),
	)
	return model, nil
}
