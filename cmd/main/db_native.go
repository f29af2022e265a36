//go:build !cgo_sqlite

package main

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

// modernc spells connection options as _pragma=name(value); the config keeps
// the mattn style so the same path works with either build.
func openSQLite(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite", nativeDSN(dataSource))
}

func nativeDSN(dataSource string) string {
	path, query, ok := strings.Cut(dataSource, "?")
	if !ok {
		return dataSource
	}
	params := strings.Split(query, "&")
	for i, p := range params {
		name, value, found := strings.Cut(p, "=")
		if !found || !strings.HasPrefix(name, "_") || name == "_pragma" || name == "_txlock" || name == "_time_format" {
			continue
		}
		params[i] = "_pragma=" + strings.TrimPrefix(name, "_") + "(" + value + ")"
	}
	return path + "?" + strings.Join(params, "&")
}
