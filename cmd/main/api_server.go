package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/CTAG07/Pronostico/pkg/store"
)

// ServerAPI holds the dependencies for the diagnostic API handlers.
type ServerAPI struct {
	db      *sql.DB
	store   *store.Store
	metrics *Metrics
	logger  *slog.Logger
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func currentVersion() VersionInfo {
	return VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// NewServerAPI creates a new instance of the ServerAPI.
func NewServerAPI(db *sql.DB, st *store.Store, metrics *Metrics, logger *slog.Logger) *ServerAPI {
	return &ServerAPI{
		db:      db,
		store:   st,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes sets up the routing for the diagnostic endpoints. The health
// check is not registered here since it must stay reachable without a key.
func (a *ServerAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/api/version", a.metrics.Instrument("version", requireScope(scopeStatsRead, a.handleVersion)))
	mux.Handle("/api/stats", a.metrics.Instrument("stats", requireScope(scopeStatsRead, a.handleStats)))
}

// handleVersion returns the application's build information.
func (a *ServerAPI) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	respondWithJSON(w, http.StatusOK, currentVersion())
}

// handleStats returns per-model statistics for the whole store.
func (a *ServerAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := a.store.GetStats(r.Context())
	if err != nil {
		a.logger.Error("Failed to get stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// handleHealthCheck is left cheap so orchestrators can poll it.
func (a *ServerAPI) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if err := a.db.PingContext(r.Context()); err != nil {
		a.logger.Warn("Health check failed", "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
