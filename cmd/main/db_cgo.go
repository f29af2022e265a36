//go:build cgo_sqlite

package main

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// mattn takes pragmas as _name=value, so modernc style _pragma=name(value)
// entries are rewritten before opening.
func openSQLite(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite3", cgoDSN(dataSource))
}

func cgoDSN(dataSource string) string {
	path, query, ok := strings.Cut(dataSource, "?")
	if !ok {
		return dataSource
	}
	params := strings.Split(query, "&")
	for i, p := range params {
		pragma, found := strings.CutPrefix(p, "_pragma=")
		if !found {
			continue
		}
		name, value, found := strings.Cut(strings.TrimSuffix(pragma, ")"), "(")
		if !found {
			continue
		}
		params[i] = "_" + name + "=" + value
	}
	return path + "?" + strings.Join(params, "&")
}
