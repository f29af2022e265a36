/*
Package store persists named weather observation logs in a SQL database and
estimates transition models from them on demand.

A single database can hold many models. Each model is an ordered log of
(day, state) observations; the transition matrix is never stored, it is
derived with markov.Estimate every time it is requested, so adding or pruning
observations can never leave a stale matrix behind.

SQLite (through modernc.org/sqlite or github.com/mattn/go-sqlite3) and
Postgres (through github.com/jackc/pgx/v5/stdlib) are supported. Queries are
written once with '?' placeholders and rebound for the selected Dialect.

The same database also holds the hashed API keys that guard the HTTP API.
*/
package store
