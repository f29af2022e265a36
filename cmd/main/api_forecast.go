package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CTAG07/Pronostico/pkg/dataset"
	"github.com/CTAG07/Pronostico/pkg/markov"
	"github.com/CTAG07/Pronostico/pkg/store"
)

// ForecastAPI holds the dependencies for the model and query handlers.
type ForecastAPI struct {
	store   *store.Store
	metrics *Metrics
	columns dataset.Columns
	logger  *slog.Logger
}

// NewForecastAPI creates a new instance of the ForecastAPI.
func NewForecastAPI(st *store.Store, metrics *Metrics, columns dataset.Columns, logger *slog.Logger) *ForecastAPI {
	return &ForecastAPI{
		store:   st,
		metrics: metrics,
		columns: columns,
		logger:  logger,
	}
}

// RegisterRoutes sets up the routing for all /api/models endpoints.
func (f *ForecastAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/api/models", f.metrics.Instrument("models", requireModelScope(f.handleListAndCreateModels)))
	mux.Handle("/api/models/", f.metrics.Instrument("model", requireModelScope(f.handleModelByName)))
	mux.Handle("/api/import", f.metrics.Instrument("import", requireScope(scopeModelsWrite, f.handleImport)))
}

type CreateModelRequest struct {
	Name string `json:"name"`
}

type PruneRequest struct {
	Before int `json:"before"`
}

// MatrixResponse is the estimated transition matrix of a model. Row i holds
// the next-day probabilities for States[i].
type MatrixResponse struct {
	Model  string      `json:"model"`
	States []string    `json:"states"`
	Matrix [][]float64 `json:"matrix"`
}

// DistributionResponse answers a next-day query.
type DistributionResponse struct {
	Model         string               `json:"model"`
	Current       string               `json:"current"`
	Probabilities []markov.Probability `json:"probabilities"`
}

// handleListAndCreateModels handles GET for listing and POST for creating models.
func (f *ForecastAPI) handleListAndCreateModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		models, err := f.store.GetModelInfos(r.Context())
		if err != nil {
			f.logger.Error("Failed to get model infos", "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve models: %v", err))
			return
		}
		modelList := make([]store.ModelInfo, 0, len(models))
		for _, model := range models {
			modelList = append(modelList, model)
		}
		sortModels(modelList)
		respondWithJSON(w, http.StatusOK, modelList)

	case http.MethodPost:
		var req CreateModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || strings.Contains(req.Name, "/") {
			respondWithError(w, http.StatusBadRequest, "A model name without '/' is required")
			return
		}
		if _, err := f.store.GetModelInfo(r.Context(), req.Name); err == nil {
			respondWithError(w, http.StatusConflict, fmt.Sprintf("Model %q already exists", req.Name))
			return
		} else if !errors.Is(err, sql.ErrNoRows) {
			f.logger.Error("Failed to look up model", "name", req.Name, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
			return
		}

		newModel, err := f.store.InsertModel(r.Context(), req.Name)
		if err != nil {
			f.logger.Error("Failed to insert new model", "name", req.Name, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create model: %v", err))
			return
		}
		f.logger.Info("Model created", "name", newModel.Name, "id", newModel.Id)
		respondWithJSON(w, http.StatusCreated, newModel)

	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleModelByName routes actions for a specific model, e.g. observations, matrix, distribution.
func (f *ForecastAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/models/")
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	modelName := parts[0]

	if modelName == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}
	if len(parts) > 2 {
		respondWithError(w, http.StatusNotFound, "Action not found")
		return
	}

	model, err := f.store.GetModelInfo(r.Context(), modelName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		f.logger.Error("Failed to get model info by name", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			f.handleModelStats(w, r, model)
		case http.MethodDelete:
			if err = f.store.RemoveModel(r.Context(), model); err != nil {
				f.logger.Error("Failed to remove model", "name", modelName, "error", err)
				respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to remove model: %v", err))
				return
			}
			f.logger.Info("Model removed", "name", modelName)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	action := parts[1]
	switch action {
	case "observations":
		switch r.Method {
		case http.MethodPost:
			f.handleAddObservations(w, r, model)
		case http.MethodGet:
			obs, err := f.store.Observations(r.Context(), model)
			if err != nil {
				f.logger.Error("Failed to read observations", "name", modelName, "error", err)
				respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
				return
			}
			respondWithJSON(w, http.StatusOK, obs)
		default:
			w.Header().Set("Allow", "GET, POST")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}

	case "matrix":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		space, m, ok := f.estimate(w, r, model)
		if !ok {
			return
		}
		rows := make([][]float64, m.Size())
		for i := range rows {
			rows[i] = m.Row(i)
		}
		respondWithJSON(w, http.StatusOK, MatrixResponse{Model: model.Name, States: space.Labels(), Matrix: rows})

	case "distribution":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		f.handleDistribution(w, r, model)

	case "simulate":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		f.handleSimulate(w, r, model)

	case "prune":
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		var req PruneRequest
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		removed, err := f.store.PruneModel(r.Context(), model, req.Before)
		if err != nil {
			f.logger.Error("Failed to prune model", "name", modelName, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Pruning failed: %v", err))
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]int64{"removed": removed})

	case "export":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", modelName))
		if err = f.store.ExportModel(r.Context(), model, w); err != nil {
			f.logger.Error("Failed to export model", "name", modelName, "error", err)
		}

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

func (f *ForecastAPI) handleModelStats(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	stats, err := f.store.GetModelStats(r.Context(), model)
	if err != nil {
		f.logger.Error("Failed to get model stats", "name", model.Name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"model": model, "stats": stats})
}

// handleAddObservations stores a CSV log posted as the request body.
func (f *ForecastAPI) handleAddObservations(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	obs, err := dataset.ReadCSV(r.Body, f.columns)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid CSV body: %v", err))
		return
	}

	start := time.Now()
	err = f.store.AddObservations(r.Context(), model, obs)
	f.metrics.Observe(r.Context(), "add_observations", err == nil, time.Since(start))
	if err != nil {
		f.logger.Error("Failed to add observations", "name", model.Name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to store observations: %v", err))
		return
	}
	f.metrics.AddObservations(len(obs))
	respondWithJSON(w, http.StatusAccepted, map[string]int{"added": len(obs)})
}

func (f *ForecastAPI) handleDistribution(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	current := strings.TrimSpace(r.URL.Query().Get("state"))
	if current == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'state' is required")
		return
	}
	space, m, ok := f.estimate(w, r, model)
	if !ok {
		return
	}

	probs, err := markov.Distribution(current, space, m)
	if err != nil {
		f.respondWithQueryError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, DistributionResponse{Model: model.Name, Current: current, Probabilities: probs})
}

func (f *ForecastAPI) handleSimulate(w http.ResponseWriter, r *http.Request, model store.ModelInfo) {
	q := r.URL.Query()
	start := strings.TrimSpace(q.Get("start"))
	if start == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'start' is required")
		return
	}

	var opts []markov.SimulateOption
	if v := q.Get("steps"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > markov.MaxSteps {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid steps %q, must be between 0 and %d", v, markov.MaxSteps))
			return
		}
		opts = append(opts, markov.WithSteps(n))
	}
	if v := q.Get("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid temperature %q", v))
			return
		}
		opts = append(opts, markov.WithTemperature(t))
	}
	if v := q.Get("top_k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid top_k %q", v))
			return
		}
		opts = append(opts, markov.WithTopK(k))
	}
	var seed uint64
	if v := q.Get("seed"); v != "" {
		var err error
		if seed, err = strconv.ParseUint(v, 10, 64); err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid seed %q", v))
			return
		}
	}

	space, m, ok := f.estimate(w, r, model)
	if !ok {
		return
	}
	path, err := markov.Simulate(newRand(seed), space, m, start, opts...)
	if err != nil {
		f.respondWithQueryError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"model": model.Name, "start": start, "path": path})
}

// estimate loads and estimates the model, answering with an error itself when it fails.
func (f *ForecastAPI) estimate(w http.ResponseWriter, r *http.Request, model store.ModelInfo) (*markov.StateSpace, *markov.TransitionMatrix, bool) {
	start := time.Now()
	space, m, err := f.store.Estimate(r.Context(), model)
	f.metrics.Observe(r.Context(), "estimate", err == nil, time.Since(start))
	if err != nil {
		f.logger.Error("Failed to estimate model", "name", model.Name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Estimation failed: %v", err))
		return nil, nil, false
	}
	f.logger.Debug("Model estimated", "name", model.Name, "states", space.Len(), "elapsed", time.Since(start))
	return space, m, true
}

// respondWithQueryError maps an unknown state to 404 and lists the valid states.
func (f *ForecastAPI) respondWithQueryError(w http.ResponseWriter, err error) {
	var unknown *markov.UnknownStateError
	if errors.As(err, &unknown) {
		respondWithJSON(w, http.StatusNotFound, map[string]any{
			"error":  unknown.Error(),
			"states": unknown.Known,
		})
		return
	}
	f.logger.Error("Query failed", "error", err)
	respondWithError(w, http.StatusInternalServerError, err.Error())
}

// handleImport imports a model from an uploaded JSON file.
func (f *ForecastAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	start := time.Now()
	model, err := f.store.ImportModel(r.Context(), r.Body)
	f.metrics.Observe(r.Context(), "import", err == nil, time.Since(start))
	if err != nil {
		f.logger.Error("Failed to import model", "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	f.logger.Info("Model imported", "name", model.Name)
	respondWithJSON(w, http.StatusAccepted, model)
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed>>32|seed<<32))
}
