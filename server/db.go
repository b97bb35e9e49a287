package main

import (
	"database/sql"
	"fmt"
)

// DB wraps *sql.DB and provides read-only access to the cache database
// independently of a live decompile: the server inspects the same SQLite
// file cache.Store writes to, but through database/sql +
// modernc.org/sqlite rather than zombiezen.com/go/sqlite, since this side
// never needs the writer's transaction helpers.
type DB struct {
	*sql.DB
}

// NewDB returns a DB wrapper.
func NewDB(db *sql.DB) *DB {
	return &DB{DB: db}
}

// CacheEntry is one row of the decompilations table, as returned by the
// GET /api/cache/{hash} endpoint.
type CacheEntry struct {
	Hash        string `json:"hash"`
	Source      string `json:"source"`
	Diagnostics string `json:"diagnostics"`
}

// Get looks up hash in the decompilations table.
func (d *DB) Get(hash string) (*CacheEntry, error) {
	row := d.QueryRow(`SELECT hash, source, diagnostics FROM decompilations WHERE hash = ?`, hash)
	var e CacheEntry
	if err := row.Scan(&e.Hash, &e.Source, &e.Diagnostics); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query cache entry %s: %w", hash, err)
	}
	return &e, nil
}
