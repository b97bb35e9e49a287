// Package cache is a content-hash-keyed SQLite store for decompiled
// output: given the same bytecode, Decompile's result is pure, so a repeat
// request for a hash already on disk skips the whole pipeline.
package cache

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Store is a SQLite-backed cache of decompiled Lua sources, keyed by a
// content hash of the input bytecode.
type Store struct {
	conn *sqlite.Conn
}

// Open creates (if necessary) and opens the cache database at path.
func Open(path string) (*Store, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	s := &Store{conn: conn}
	if err := s.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA journal_mode = WAL",
	}
	for _, p := range pragmas {
		if err := sqlitex.ExecuteTransient(s.conn, p, nil); err != nil {
			return fmt.Errorf("cache: pragma %q: %w", p, err)
		}
	}
	const schema = `CREATE TABLE IF NOT EXISTS decompilations (
		hash TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		diagnostics TEXT NOT NULL
	)`
	if err := sqlitex.ExecuteTransient(s.conn, schema, nil); err != nil {
		return fmt.Errorf("cache: create schema: %w", err)
	}
	return nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Get returns the cached source and newline-joined diagnostics for hash, or
// ok=false if no entry exists.
func (s *Store) Get(hash string) (source string, diagnostics string, ok bool, err error) {
	const query = `SELECT source, diagnostics FROM decompilations WHERE hash = ?`
	err = sqlitex.ExecuteTransient(s.conn, query, &sqlitex.ExecOptions{
		Args: []any{hash},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			source = stmt.GetText("source")
			diagnostics = stmt.GetText("diagnostics")
			ok = true
			return nil
		},
	})
	if err != nil {
		return "", "", false, fmt.Errorf("cache: get %s: %w", hash, err)
	}
	return source, diagnostics, ok, nil
}

// Put stores (or replaces) the decompiled source and diagnostics for hash.
func (s *Store) Put(hash, source, diagnostics string) error {
	endFn, err := sqlitex.ImmediateTransaction(s.conn)
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	const stmt = `INSERT INTO decompilations (hash, source, diagnostics)
		VALUES (?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET source = excluded.source, diagnostics = excluded.diagnostics`
	err = sqlitex.ExecuteTransient(s.conn, stmt, &sqlitex.ExecOptions{Args: []any{hash, source, diagnostics}})
	endFn(&err)
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", hash, err)
	}
	return nil
}
