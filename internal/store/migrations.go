package store

import (
	"context"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

// migrations is a linear, idempotent list: each step runs at most once,
// stamped by version in the migrations table, per spec §4.9. Later
// migrations never drop data; new columns default to safe values.
var migrations = []migration{
	{
		version: 1,
		name:    "create core tables",
		sql: `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	dialect TEXT NOT NULL DEFAULT 'postgres',
	host TEXT NOT NULL,
	port INTEGER NOT NULL,
	database TEXT NOT NULL,
	user TEXT NOT NULL,
	ssl INTEGER NOT NULL DEFAULT 0,
	mode TEXT NOT NULL DEFAULT 'safe',
	allow_write INTEGER NOT NULL DEFAULT 0,
	allow_dangerous INTEGER NOT NULL DEFAULT 0,
	power_confirm_phrase TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS audit_events (
	id TEXT PRIMARY KEY,
	at TEXT NOT NULL,
	type TEXT NOT NULL,
	payload TEXT NOT NULL
);

CREATE TRIGGER IF NOT EXISTS audit_events_no_update
BEFORE UPDATE ON audit_events
BEGIN
	SELECT RAISE(ABORT, 'audit_events is append-only');
END;

CREATE TRIGGER IF NOT EXISTS audit_events_no_delete
BEFORE DELETE ON audit_events
BEGIN
	SELECT RAISE(ABORT, 'audit_events is append-only');
END;

-- profile_id is intentionally unconstrained: profile deletion does not
-- cascade, and readers tolerate stale ids.
CREATE TABLE IF NOT EXISTS schema_snapshots (
	id TEXT PRIMARY KEY,
	profile_id TEXT NOT NULL,
	captured_at TEXT NOT NULL,
	tables_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_schema_snapshots_profile_captured
ON schema_snapshots(profile_id, captured_at);

CREATE TABLE IF NOT EXISTS queries (
	id TEXT PRIMARY KEY,
	profile_id TEXT NOT NULL,
	asked_at TEXT NOT NULL,
	question TEXT,
	mode TEXT NOT NULL,
	dialect TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS generations (
	id TEXT PRIMARY KEY,
	query_id TEXT NOT NULL,
	sql TEXT NOT NULL,
	assumptions TEXT,
	safety_notes TEXT,
	confidence REAL,
	referenced_entities TEXT,
	FOREIGN KEY(query_id) REFERENCES queries(id)
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	query_id TEXT NOT NULL,
	rewritten_sql TEXT,
	explain_summary TEXT,
	exec_ms INTEGER,
	row_count INTEGER,
	truncated INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_text TEXT,
	FOREIGN KEY(query_id) REFERENCES queries(id)
);
`,
	},
}

// migrate ensures the migrations table exists and applies every unstamped
// step in version order, inside one transaction per missing step, mirroring
// the teacher pack's version-gated migration runner.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TEXT NOT NULL
);`); err != nil {
		return fmt.Errorf("ensuring migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM migrations`)
	if err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scanning migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration %03d transaction: %w", m.version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("applying migration %03d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, nowRFC3339()); err != nil {
		return fmt.Errorf("stamping migration %03d: %w", m.version, err)
	}
	return tx.Commit()
}
