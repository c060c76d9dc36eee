// Package pgsql is the database contract adapter consumed by the EXPLAIN
// gate and the write executor: connect-with-timeout, session statement
// timeout, read-only/read-write transactions, parameterized execute, and an
// EXPLAIN-in-structured-format query, all against PostgreSQL via pgx.
package pgsql

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ConnectionConfig holds PostgreSQL connection parameters.
type ConnectionConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSL      bool

	// StatementTimeout bounds every session-level statement (spec §5:
	// default 15s, independent of any outer deadline).
	StatementTimeout time.Duration
}

const defaultStatementTimeout = 15 * time.Second

// Conn wraps a single pgx connection plus the session statement-timeout
// setting applied at acquisition.
type Conn struct {
	pc *pgx.Conn
}

// Connect opens a single connection (no pool; pool ownership is an
// integration concern per spec §5 — each orchestrator call gets its own
// connection, mirroring the teacher's "conservative connection pool for a
// CLI tool" stance taken to its single-connection extreme).
func Connect(ctx context.Context, cfg ConnectionConfig) (*Conn, error) {
	dsn := buildDSN(cfg)

	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	timeout := cfg.StatementTimeout
	if timeout <= 0 {
		timeout = defaultStatementTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pc, err := pgx.ConnectConfig(dialCtx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}

	if _, err := pc.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", timeout.Milliseconds())); err != nil {
		pc.Close(ctx)
		return nil, fmt.Errorf("setting statement_timeout: %w", err)
	}

	return &Conn{pc: pc}, nil
}

// Close releases the connection. Safe to call on every exit path, including
// after cancellation.
func (c *Conn) Close(ctx context.Context) error {
	if c == nil || c.pc == nil {
		return nil
	}
	return c.pc.Close(ctx)
}

// Raw returns the underlying pgx connection for callers that need direct
// query access (EXPLAIN probe, read/write execution).
func (c *Conn) Raw() *pgx.Conn {
	return c.pc
}

func buildDSN(cfg ConnectionConfig) string {
	sslmode := "disable"
	if cfg.SSL {
		sslmode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, sslmode)
}
