// Package executor implements the write executor and auditor (C7): the
// final step of the POWER-mode flow, run only after the policy engine has
// allowed the statement and the confirmation verifier has accepted both
// required phrases.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/openquery/openquery/internal/preview"
)

// WriteRunner executes one confirmed statement inside a read-write
// transaction, committing on success and rolling back on error.
// *pgsql.Conn satisfies it; tests supply fakes.
type WriteRunner interface {
	RunWrite(ctx context.Context, sql string, args ...any) (rowsAffected int64, execMs int64, err error)
}

// AuditType enumerates the closed set of audit event types from spec §3
// that this package can emit.
type AuditType string

const (
	AuditWritePreviewed AuditType = "write_previewed"
	AuditWriteConfirmed AuditType = "write_confirmed"
	AuditWriteExecuted  AuditType = "write_executed"
	AuditWriteFailed    AuditType = "write_failed"
)

// AuditEvent is the payload shape persisted by internal/store; this package
// never writes to the store directly, only constructs events via an
// injected Recorder so it stays independent of the storage backend.
type AuditEvent struct {
	Type      AuditType
	ProfileID string
	Payload   map[string]any
}

// Recorder persists a single audit event. internal/store implements this;
// tests use an in-memory fake.
type Recorder interface {
	RecordAuditEvent(ctx context.Context, event AuditEvent) error
}

// Outcome is the result of a completed write execution.
type Outcome struct {
	RowsAffected int64
	ExecMs       int64
}

// SQLHash is the first 16 hex characters of the SHA-256 digest of sql, the
// only SQL-derived value ever written to an audit payload (spec §4.7:
// "Raw SQL is never in audit payloads").
func SQLHash(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])[:16]
}

// Execute runs a confirmed write statement and emits the write_confirmed
// event before touching the database, then write_executed or write_failed
// after, per spec §4.7's strict audit ordering. It assumes write_previewed
// was already recorded by the preview step's caller.
func Execute(ctx context.Context, conn WriteRunner, rec Recorder, profileID string, p preview.Preview, sql string, args ...any) (Outcome, error) {
	hash := SQLHash(sql)

	basePayload := map[string]any{
		"profile_id":      profileID,
		"classification":  p.Classification,
		"impacted_tables": p.ImpactedTables,
	}

	confirmedPayload := mergePayload(basePayload, map[string]any{"sql_hash": hash})
	if err := rec.RecordAuditEvent(ctx, AuditEvent{Type: AuditWriteConfirmed, ProfileID: profileID, Payload: confirmedPayload}); err != nil {
		return Outcome{}, fmt.Errorf("recording write_confirmed: %w", err)
	}

	rowsAffected, execMs, err := conn.RunWrite(ctx, sql, args...)
	if err != nil {
		failedPayload := mergePayload(basePayload, map[string]any{
			"sql_hash": hash,
			"error":    err.Error(),
		})
		if recErr := rec.RecordAuditEvent(ctx, AuditEvent{Type: AuditWriteFailed, ProfileID: profileID, Payload: failedPayload}); recErr != nil {
			return Outcome{}, fmt.Errorf("write failed (%w) and recording write_failed also failed: %s", err, recErr)
		}
		return Outcome{}, fmt.Errorf("executing write: %w", err)
	}

	executedPayload := mergePayload(basePayload, map[string]any{
		"sql_hash":      hash,
		"rows_affected": rowsAffected,
		"exec_ms":       execMs,
	})
	if err := rec.RecordAuditEvent(ctx, AuditEvent{Type: AuditWriteExecuted, ProfileID: profileID, Payload: executedPayload}); err != nil {
		return Outcome{}, fmt.Errorf("recording write_executed: %w", err)
	}

	return Outcome{RowsAffected: rowsAffected, ExecMs: execMs}, nil
}

// PreviewedEvent builds the write_previewed event the caller records when
// the preview is built, before confirmation is requested.
func PreviewedEvent(profileID string, p preview.Preview, sql string) AuditEvent {
	return AuditEvent{
		Type:      AuditWritePreviewed,
		ProfileID: profileID,
		Payload: map[string]any{
			"profile_id":      profileID,
			"classification":  p.Classification,
			"impacted_tables": p.ImpactedTables,
			"sql_hash":        SQLHash(sql),
		},
	}
}

func mergePayload(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
