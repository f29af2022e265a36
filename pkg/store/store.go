package store

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour used for schema creation and placeholders.
type Dialect int

const (
	// SQLite covers both the pure-Go and the cgo SQLite drivers.
	SQLite Dialect = iota
	// Postgres is used with the pgx database/sql driver.
	Postgres
)

// ParseDialect maps a database/sql driver name to its Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	default:
		return 0, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// bind rewrites '?' placeholders into the dialect's native form.
func (d Dialect) bind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) schema() []string {
	idType := "INTEGER PRIMARY KEY"
	dayType := "INTEGER"
	if d == Postgres {
		idType = "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
		dayType = "BIGINT"
	}
	return []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS weather_models (
    model_id %s,
    model_name TEXT NOT NULL UNIQUE
);
`, idType),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS weather_observations (
    model_id INTEGER NOT NULL,
    day %s NOT NULL,
    state TEXT NOT NULL,
    PRIMARY KEY (model_id, day)
);
`, dayType),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS api_keys (
    key_id %s,
    key_hash TEXT NOT NULL UNIQUE,
    scopes TEXT NOT NULL,
    description TEXT NOT NULL
);
`, idType),
	}
}

// SetupSchema creates the tables used by Store. It should be called once on a
// new database before NewStore. It is idempotent and safe to call on an
// already-initialized database.
func SetupSchema(db *sql.DB, dialect Dialect) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, ddl := range dialect.schema() {
		if _, err = tx.Exec(ddl); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store is the entry point for persisting observation logs. It holds the
// database connection and the prepared statements shared by every operation.
type Store struct {
	db                    *sql.DB
	dialect               Dialect
	stmtGetModelInfo      *sql.Stmt
	stmtGetModels         *sql.Stmt
	stmtAddModel          *sql.Stmt
	stmtUpsertObservation *sql.Stmt
	stmtGetObservations   *sql.Stmt
	stmtPruneModel        *sql.Stmt
	stmtModelSummary      *sql.Stmt
	stmtTotalObservations *sql.Stmt
	logger                *slog.Logger
}

// NewStore creates a Store on top of a database prepared with SetupSchema.
// All statements are prepared up front; an error is returned if any of them
// fails to compile.
func NewStore(db *sql.DB, dialect Dialect) (*Store, error) {
	prepare := func(query string) (*sql.Stmt, error) {
		return db.Prepare(dialect.bind(query))
	}

	stmtGetModelInfo, err := prepare(`SELECT model_id FROM weather_models WHERE model_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetModels, err := prepare(`SELECT model_id, model_name FROM weather_models;`)
	if err != nil {
		return nil, err
	}

	stmtAddModel, err := prepare(`INSERT INTO weather_models (model_name) VALUES (?) RETURNING model_id;`)
	if err != nil {
		return nil, err
	}

	stmtUpsertObservation, err := prepare(`INSERT INTO weather_observations (model_id, day, state) VALUES (?, ?, ?) ON CONFLICT(model_id, day) DO UPDATE SET state = excluded.state;`)
	if err != nil {
		return nil, err
	}

	stmtGetObservations, err := prepare(`SELECT day, state FROM weather_observations WHERE model_id = ? ORDER BY day;`)
	if err != nil {
		return nil, err
	}

	stmtPruneModel, err := prepare(`DELETE FROM weather_observations WHERE model_id = ? AND day < ?;`)
	if err != nil {
		return nil, err
	}

	stmtModelSummary, err := prepare(`SELECT COUNT(*), COALESCE(MIN(day), 0), COALESCE(MAX(day), 0), COUNT(DISTINCT state) FROM weather_observations WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtTotalObservations, err := prepare(`SELECT COUNT(*) FROM weather_observations;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:                    db,
		dialect:               dialect,
		stmtGetModelInfo:      stmtGetModelInfo,
		stmtGetModels:         stmtGetModels,
		stmtAddModel:          stmtAddModel,
		stmtUpsertObservation: stmtUpsertObservation,
		stmtGetObservations:   stmtGetObservations,
		stmtPruneModel:        stmtPruneModel,
		stmtModelSummary:      stmtModelSummary,
		stmtTotalObservations: stmtTotalObservations,
		logger:                slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared statements held by the Store. The database
// itself stays open and belongs to the caller.
func (s *Store) Close() {
	_ = s.stmtGetModelInfo.Close()
	_ = s.stmtGetModels.Close()
	_ = s.stmtAddModel.Close()
	_ = s.stmtUpsertObservation.Close()
	_ = s.stmtGetObservations.Close()
	_ = s.stmtPruneModel.Close()
	_ = s.stmtModelSummary.Close()
	_ = s.stmtTotalObservations.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Dialect returns the dialect the Store was created with.
func (s *Store) Dialect() Dialect { return s.dialect }
