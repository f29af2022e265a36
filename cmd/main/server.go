package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/CTAG07/Pronostico/pkg/store"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	config      *Config
	db          *sql.DB
	store       *store.Store
	logger      *slog.Logger
	metrics     *Metrics
	forecastAPI *ForecastAPI
	serverAPI   *ServerAPI
	authAPI     *AuthAPI
	apiMux      *http.ServeMux
	rootMux     *http.ServeMux
}

// NewServer wires the API handlers onto a fresh mux.
func NewServer(config *Config, logger *slog.Logger, db *sql.DB, st *store.Store) *Server {
	metrics := NewMetrics()
	server := &Server{
		config:      config,
		db:          db,
		store:       st,
		logger:      logger,
		metrics:     metrics,
		forecastAPI: NewForecastAPI(st, metrics, config.Data.Columns, logger),
		serverAPI:   NewServerAPI(db, st, metrics, logger),
		authAPI:     NewAuthAPI(st, metrics, logger),
		apiMux:      http.NewServeMux(),
		rootMux:     http.NewServeMux(),
	}

	server.forecastAPI.RegisterRoutes(server.apiMux)
	server.serverAPI.RegisterRoutes(server.apiMux)
	server.authAPI.RegisterRoutes(server.apiMux)

	server.rootMux.Handle("/api/health", metrics.Instrument("health", server.serverAPI.handleHealthCheck))
	server.rootMux.Handle("/api/", server.authAPI.Authenticate(server.apiMux))
	if config.Server.MetricsEnabled {
		server.rootMux.Handle("/metrics", metrics.Handler())
	}
	return server
}

// ServeHTTP makes the Server usable directly as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.rootMux.ServeHTTP(w, r)
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Server.ApiAddr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting api server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Stopping api server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Api server shutdown failed", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped.")
	return nil
}
