package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Column describes a single table column in a schema snapshot.
type Column struct {
	Name         string  `json:"name"`
	DataType     string  `json:"data_type"`
	Nullable     bool    `json:"nullable"`
	IsPrimaryKey bool    `json:"is_primary_key"`
	Default      *string `json:"default,omitempty"`
}

// Table describes a single table in a schema snapshot.
type Table struct {
	Schema           string   `json:"schema,omitempty"`
	Name             string   `json:"name"`
	RowCountEstimate *int64   `json:"row_count_estimate,omitempty"`
	Columns          []Column `json:"columns"`
}

// SchemaSnapshot is the captured description from spec §3, used only as
// LLM context and a UI cache, never trusted for policy decisions.
type SchemaSnapshot struct {
	ID         string  `json:"id"`
	ProfileID  string  `json:"profile_id"`
	Tables     []Table `json:"tables"`
	CapturedAt string  `json:"captured_at"`
}

// StoreSchemaSnapshot persists a new snapshot as the latest for its
// profile. Older snapshots are retained, not overwritten.
func (s *Store) StoreSchemaSnapshot(ctx context.Context, profileID string, tables []Table) (SchemaSnapshot, error) {
	snap := SchemaSnapshot{
		ID:         uuid.NewString(),
		ProfileID:  profileID,
		Tables:     tables,
		CapturedAt: nowRFC3339(),
	}
	body, err := json.Marshal(tables)
	if err != nil {
		return SchemaSnapshot{}, fmt.Errorf("encoding schema snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO schema_snapshots (id, profile_id, captured_at, tables_json) VALUES (?, ?, ?, ?)`,
		snap.ID, snap.ProfileID, snap.CapturedAt, string(body))
	if err != nil {
		return SchemaSnapshot{}, fmt.Errorf("storing schema snapshot: %w", err)
	}

	if err := s.recordAuditEventLocked(ctx, "schema_refreshed", map[string]any{"profile_id": profileID}); err != nil {
		return SchemaSnapshot{}, err
	}
	return snap, nil
}

// LatestSchemaSnapshot returns the most recently captured snapshot for a
// profile, or an error if none exists.
func (s *Store) LatestSchemaSnapshot(ctx context.Context, profileID string) (SchemaSnapshot, error) {
	var snap SchemaSnapshot
	var tablesJSON string
	snap.ProfileID = profileID
	err := s.db.QueryRowContext(ctx, `
SELECT id, captured_at, tables_json FROM schema_snapshots
WHERE profile_id = ? ORDER BY captured_at DESC LIMIT 1`, profileID).
		Scan(&snap.ID, &snap.CapturedAt, &tablesJSON)
	if err != nil {
		return SchemaSnapshot{}, fmt.Errorf("no schema snapshot for profile %q: %w", profileID, err)
	}
	if err := json.Unmarshal([]byte(tablesJSON), &snap.Tables); err != nil {
		return SchemaSnapshot{}, fmt.Errorf("decoding schema snapshot: %w", err)
	}
	return snap, nil
}
