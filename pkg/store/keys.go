package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// MasterScope grants every permission.
const MasterScope = "*"

// ErrPrimaryKey is returned when deleting the first API key, which always
// holds MasterScope.
var ErrPrimaryKey = errors.New("cannot delete the primary master key")

// APIKey describes a stored key. The raw key itself is never stored, only its hash.
type APIKey struct {
	ID          int      `json:"id"`
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// HasScope reports whether the key grants scope.
func (k APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == MasterScope || s == scope {
			return true
		}
	}
	return false
}

// CountAPIKeys returns the number of stored keys. With zero keys the API runs unauthenticated.
func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys;`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CreateAPIKey generates and stores a new key, returning its info and the raw
// key to hand to the client. The first key ever created is given MasterScope
// regardless of the requested scopes, so the API cannot lock itself out.
func (s *Store) CreateAPIKey(ctx context.Context, description string, scopes []string) (APIKey, string, error) {
	rawKey, err := generateAPIKey()
	if err != nil {
		return APIKey{}, "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return APIKey{}, "", fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if s.dialect == Postgres {
		// Two first keys created at once must not both see an empty table.
		if _, err = tx.ExecContext(ctx, `LOCK TABLE api_keys IN SHARE ROW EXCLUSIVE MODE;`); err != nil {
			return APIKey{}, "", fmt.Errorf("failed to lock api keys: %w", err)
		}
	}

	// The emptiness check runs inside the INSERT, so SQLite evaluates it under
	// the write lock.
	key := APIKey{Description: description}
	var storedScopes string
	err = tx.QueryRowContext(ctx, s.dialect.bind(`
INSERT INTO api_keys (key_hash, scopes, description)
SELECT ?, CASE WHEN EXISTS (SELECT 1 FROM api_keys) THEN ? ELSE ? END, ?
RETURNING key_id, scopes;`),
		hashAPIKey(rawKey), strings.Join(scopes, " "), MasterScope, description).Scan(&key.ID, &storedScopes)
	if err != nil {
		return APIKey{}, "", fmt.Errorf("failed to insert api key: %w", err)
	}
	key.Scopes = strings.Fields(storedScopes)
	if err = tx.Commit(); err != nil {
		return APIKey{}, "", err
	}

	s.logger.InfoContext(ctx, "API key created", slog.Int("key_id", key.ID), slog.String("scopes", storedScopes))
	return key, rawKey, nil
}

// LookupAPIKey finds the key matching rawKey. It returns sql.ErrNoRows for an unknown key.
func (s *Store) LookupAPIKey(ctx context.Context, rawKey string) (APIKey, error) {
	var key APIKey
	var scopes string
	err := s.db.QueryRowContext(ctx,
		s.dialect.bind(`SELECT key_id, scopes, description FROM api_keys WHERE key_hash = ?;`),
		hashAPIKey(rawKey)).Scan(&key.ID, &scopes, &key.Description)
	if err != nil {
		return APIKey{}, err
	}
	key.Scopes = strings.Fields(scopes)
	return key, nil
}

// ListAPIKeys returns all stored keys ordered by ID.
func (s *Store) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key_id, scopes, description FROM api_keys ORDER BY key_id;`)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := make([]APIKey, 0)
	for rows.Next() {
		var key APIKey
		var scopes string
		if err = rows.Scan(&key.ID, &scopes, &key.Description); err != nil {
			return nil, err
		}
		key.Scopes = strings.Fields(scopes)
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteAPIKey removes a key. It returns sql.ErrNoRows when no key has that
// ID and ErrPrimaryKey for the first key.
func (s *Store) DeleteAPIKey(ctx context.Context, id int) error {
	var first int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MIN(key_id), 0) FROM api_keys;`).Scan(&first)
	if err != nil {
		return err
	}
	if first != 0 && id == first {
		return ErrPrimaryKey
	}

	res, err := s.db.ExecContext(ctx, s.dialect.bind(`DELETE FROM api_keys WHERE key_id = ?;`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "pron_" + hex.EncodeToString(buf), nil
}

func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
