// Package store implements the local, single-writer database (C9):
// profiles, settings, audit events, schema snapshots, query history, and
// the migration runner that brings a fresh database file up to date.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the single sqlite file backing a process's local state.
type Store struct {
	db *sql.DB
}

// DefaultPath returns "<home>/.openquery/openquery.db", per spec §6.
func DefaultPath(home string) string {
	return filepath.Join(home, ".openquery", "openquery.db")
}

// Open opens (creating if necessary) the sqlite file at path, applies
// pragmas, and runs any unapplied migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline (spec §4.9)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nowRFC3339() string {
	// Fixed-width fractional seconds keep text order equal to time order,
	// which the ORDER BY clauses on these columns rely on.
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
