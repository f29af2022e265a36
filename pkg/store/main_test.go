package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/CTAG07/Pronostico/pkg/markov"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates a new SQLite database file and a Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *Store) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db, SQLite); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db, SQLite)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}

// testObservations is a short log with one gap between day 4 and day 6.
var testObservations = []markov.Observation{
	{Day: 1, State: "sol"},
	{Day: 2, State: "sol"},
	{Day: 3, State: "lluvia"},
	{Day: 4, State: "sol"},
	{Day: 6, State: "nublado"},
	{Day: 7, State: "sol"},
}

// setupTestDBWithObservations is a convenience helper that also stores a default model.
func setupTestDBWithObservations(t *testing.T) (context.Context, *Store, ModelInfo) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	model, err := s.InsertModel(ctx, "test_model")
	if err != nil {
		t.Fatalf("setup: InsertModel() failed: %v", err)
	}
	if err = s.AddObservations(ctx, model, testObservations); err != nil {
		t.Fatalf("setup: AddObservations() failed: %v", err)
	}
	return ctx, s, model
}

// setupTestDBBench creates a database for benchmarking.
func setupTestDBBench(b *testing.B) (*sql.DB, *Store) {
	dbFile := filepath.Join(b.TempDir(), "bench.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=OFF&_cache_size=-16000")
	if err != nil {
		b.Fatalf("failed to open database: %v", err)
	}
	b.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db, SQLite); err != nil {
		b.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db, SQLite)
	if err != nil {
		b.Fatalf("NewStore() error = %v", err)
	}
	b.Cleanup(s.Close)

	return db, s
}
