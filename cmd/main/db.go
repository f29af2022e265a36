package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/Pronostico/pkg/store"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// initDB opens the configured database and prepares the schema.
func initDB(driver, dataSource string) (*sql.DB, store.Dialect, error) {
	dialect, err := store.ParseDialect(driver)
	if err != nil {
		return nil, 0, err
	}

	var db *sql.DB
	switch dialect {
	case store.Postgres:
		db, err = sql.Open("pgx", dataSource)
	default:
		if err = ensureDir(dataSource); err != nil {
			return nil, 0, err
		}
		db, err = openSQLite(dataSource)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	if err = store.SetupSchema(db, dialect); err != nil {
		_ = db.Close()
		return nil, 0, fmt.Errorf("failed to setup schema: %w", err)
	}
	return db, dialect, nil
}

// openStore is initDB followed by store.NewStore.
func openStore(cfg *ServerConfig) (*store.Store, *sql.DB, error) {
	db, dialect, err := initDB(cfg.DatabaseDriver, cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	return st, db, nil
}

func ensureDir(dataSource string) error {
	path, _, _ := strings.Cut(strings.TrimPrefix(dataSource, "file:"), "?")
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}
