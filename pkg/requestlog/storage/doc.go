// Package storage provides request log backends.
//
// Three backends implement requestlog.Backend:
//   - MemoryStore: map backed, for tests and ephemeral runs
//   - SQLiteStore: database/sql over github.com/mattn/go-sqlite3 (driver
//     "sqlite3") or the pure Go modernc.org/sqlite (driver "sqlite")
//   - PostgresStore: pgxpool over the request_logs table shared with the
//     rest of the platform
//
// All backends order listings by timestamp descending with the ID as a
// tiebreaker, so entries appended within the same clock tick still list
// newest first.
package storage
