package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/CTAG07/Pronostico/pkg/store"
)

// apiKeyHeader carries the raw API key on every authenticated request.
const apiKeyHeader = "X-Api-Key"

const (
	scopeModelsRead  = "models:read"
	scopeModelsWrite = "models:write"
	scopeStatsRead   = "stats:read"
	scopeAuthManage  = "auth:manage"
)

type contextKey string

const contextKeyPermissions = contextKey("permissions")

// AuthAPI holds the dependencies for the authentication API handlers.
type AuthAPI struct {
	store   *store.Store
	metrics *Metrics
	logger  *slog.Logger
}

func NewAuthAPI(st *store.Store, metrics *Metrics, logger *slog.Logger) *AuthAPI {
	return &AuthAPI{
		store:   st,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes sets up the routing for all /api/auth endpoints.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/api/auth/me", a.metrics.Instrument("auth_me", a.handleCheckMe))
	mux.Handle("/api/auth/keys", a.metrics.Instrument("auth_keys", requireScope(scopeAuthManage, a.handleKeys)))
	mux.Handle("/api/auth/keys/", a.metrics.Instrument("auth_key", requireScope(scopeAuthManage, a.handleKeyByID)))
}

// CreateKeyRequest is the expected JSON body for creating a new key.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse is the JSON response after creating a key. RawKey is only
// ever shown here.
type CreateKeyResponse struct {
	store.APIKey
	RawKey string `json:"raw_key"`
}

// Authenticate checks the key in the X-Api-Key header and stores its
// permissions in the request context. While no keys exist the API is open.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyCount, err := a.store.CountAPIKeys(r.Context())
		if err != nil {
			a.logger.Error("Authenticate failed to count keys", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		if keyCount == 0 {
			master := store.APIKey{Scopes: []string{store.MasterScope}, Description: "open access"}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyPermissions, master)))
			return
		}

		rawKey := r.Header.Get(apiKeyHeader)
		if rawKey == "" {
			respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
			return
		}
		key, err := a.store.LookupAPIKey(r.Context(), rawKey)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
				return
			}
			a.logger.Error("Authenticate failed to query API key", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyPermissions, key)))
	})
}

func (a *AuthAPI) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		keys, err := a.store.ListAPIKeys(r.Context())
		if err != nil {
			a.logger.Error("Failed to query API keys", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Database query failed")
			return
		}
		respondWithJSON(w, http.StatusOK, keys)
	case http.MethodPost:
		var req CreateKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		key, rawKey, err := a.store.CreateAPIKey(r.Context(), req.Description, req.Scopes)
		if err != nil {
			a.logger.Error("Failed to create API key", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to save new key")
			return
		}
		respondWithJSON(w, http.StatusCreated, CreateKeyResponse{APIKey: key, RawKey: rawKey})
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *AuthAPI) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/auth/keys/"), "/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid key ID format in URL")
		return
	}
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}

	err = a.store.DeleteAPIKey(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrPrimaryKey):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sql.ErrNoRows):
		respondWithError(w, http.StatusNotFound, "Key not found")
	case err != nil:
		a.logger.Error("Failed to delete API key", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *AuthAPI) handleCheckMe(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	key, ok := r.Context().Value(contextKeyPermissions).(store.APIKey)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid or missing key")
		return
	}
	respondWithJSON(w, http.StatusOK, key)
}

// hasScope checks if the permissions in the request context include a required scope.
func hasScope(r *http.Request, requiredScope string) bool {
	key, ok := r.Context().Value(contextKeyPermissions).(store.APIKey)
	return ok && key.HasScope(requiredScope)
}

// requireScope answers 403 unless the request carries scope.
func requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !hasScope(r, scope) {
			respondWithError(w, http.StatusForbidden, "Forbidden: requires '"+scope+"' scope")
			return
		}
		next(w, r)
	}
}

// requireModelScope maps safe methods to models:read and everything else to models:write.
func requireModelScope(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := scopeModelsWrite
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			scope = scopeModelsRead
		}
		requireScope(scope, next)(w, r)
	}
}
