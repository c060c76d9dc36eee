package pgsql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Probe runs sql inside a transaction that is always rolled back, never
// committed, and returns the materialized column names and row values. The
// connection is acquired and released by the caller; Probe only manages the
// transaction boundary.
func (c *Conn) Probe(ctx context.Context, sql string, args ...any) (cols []string, rows [][]any, err error) {
	tx, err := c.pc.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, fmt.Errorf("beginning probe transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // probes never commit

	pgxRows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, nil, err
	}
	defer pgxRows.Close()

	for _, f := range pgxRows.FieldDescriptions() {
		cols = append(cols, string(f.Name))
	}
	for pgxRows.Next() {
		vals, verr := pgxRows.Values()
		if verr != nil {
			return nil, nil, verr
		}
		rows = append(rows, vals)
	}
	if err := pgxRows.Err(); err != nil {
		return nil, nil, err
	}

	return cols, rows, nil
}

// ExplainJSON runs EXPLAIN (FORMAT JSON) on sql, with any bind parameters
// applied, inside a rolled-back transaction and returns the decoded plan
// array.
func (c *Conn) ExplainJSON(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	tx, err := c.pc.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning EXPLAIN transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var raw string
	row := tx.QueryRow(ctx, "EXPLAIN (FORMAT JSON) "+sql, args...)
	if err := row.Scan(&raw); err != nil {
		return nil, fmt.Errorf("EXPLAIN failed: %w", err)
	}

	var plan []map[string]any
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("decoding EXPLAIN output: %w", err)
	}
	return plan, nil
}

// RunRead executes a validated, rewritten read statement inside a read-only
// transaction, hard-capping the number of rows materialized at maxRows.
func (c *Conn) RunRead(ctx context.Context, sql string, maxRows int64, args ...any) (cols []string, rows [][]any, truncated bool, execMs int64, err error) {
	start := time.Now()

	tx, err := c.pc.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, false, 0, fmt.Errorf("beginning read transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	pgxRows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, nil, false, 0, err
	}
	defer pgxRows.Close()

	for _, f := range pgxRows.FieldDescriptions() {
		cols = append(cols, string(f.Name))
	}

	for pgxRows.Next() {
		if int64(len(rows)) >= maxRows {
			truncated = true
			break
		}
		vals, verr := pgxRows.Values()
		if verr != nil {
			return nil, nil, false, 0, verr
		}
		rows = append(rows, vals)
	}
	pgxRows.Close()
	if err := pgxRows.Err(); err != nil {
		return nil, nil, false, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, false, 0, fmt.Errorf("committing read-only transaction: %w", err)
	}

	return cols, rows, truncated, time.Since(start).Milliseconds(), nil
}

// RunWrite executes a validated, confirmed write statement inside a
// read-write transaction, committing on success and rolling back on any
// error before the error propagates.
func (c *Conn) RunWrite(ctx context.Context, sql string, args ...any) (rowsAffected int64, execMs int64, err error) {
	start := time.Now()

	tx, err := c.pc.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("beginning write transaction: %w", err)
	}

	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, time.Since(start).Milliseconds(), err
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return 0, time.Since(start).Milliseconds(), fmt.Errorf("committing write transaction: %w", err)
	}

	return tag.RowsAffected(), time.Since(start).Milliseconds(), nil
}
