// Package targetstore implements every Store contract the
// reconciliation components need (reference.Store, provider.Store,
// product.Store, history.Store, multimedia.Store). Most methods run
// against the target database; the history gap filler also needs
// read access to the legacy database's daily time series, so Store
// holds both connections.
package targetstore

import "database/sql"

// Store is the *sql.DB-backed implementation of every component's
// Store interface. One Store is created per worker process and
// shared across the whole pipeline.
type Store struct {
	db     *sql.DB // target database
	legacy *sql.DB // legacy database, read-only access for history backfill
}

// New wraps already-open target and legacy database connections. Pool
// sizing and timeouts are the caller's responsibility (spec.md §1).
func New(db, legacy *sql.DB) *Store {
	return &Store{db: db, legacy: legacy}
}
