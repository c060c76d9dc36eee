package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/openquery/openquery/internal/executor"
)

// AuditEventRecord is a persisted row from audit_events.
type AuditEventRecord struct {
	ID      string
	At      string
	Type    string
	Payload map[string]any
}

// RecordAuditEvent implements executor.Recorder, giving the write executor
// a narrow append-only sink that never exposes update/delete.
func (s *Store) RecordAuditEvent(ctx context.Context, event executor.AuditEvent) error {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return s.recordAuditEventLocked(ctx, string(event.Type), payload)
}

func (s *Store) recordAuditEventLocked(ctx context.Context, eventType string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding audit payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO audit_events (id, at, type, payload) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), nowRFC3339(), eventType, string(body))
	if err != nil {
		return fmt.Errorf("recording audit event %q: %w", eventType, err)
	}
	return nil
}

// AuditFilter narrows ListAudit results by event type and/or profile id;
// zero values mean "no filter on this field".
type AuditFilter struct {
	Type      string
	ProfileID string
	Limit     int
}

// ListAudit returns audit events most-recent-first, optionally filtered.
func (s *Store) ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEventRecord, error) {
	query := `SELECT id, at, type, payload FROM audit_events`
	var args []any
	if filter.Type != "" {
		query += ` WHERE type = ?`
		args = append(args, filter.Type)
	}
	query += ` ORDER BY at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	var out []AuditEventRecord
	for rows.Next() {
		var rec AuditEventRecord
		var payloadJSON string
		if err := rows.Scan(&rec.ID, &rec.At, &rec.Type, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &rec.Payload); err != nil {
			return nil, fmt.Errorf("decoding audit payload: %w", err)
		}
		if filter.ProfileID != "" {
			if pid, _ := rec.Payload["profile_id"].(string); pid != filter.ProfileID {
				continue
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
