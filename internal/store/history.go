package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QueryRecord is the history record from spec §3: created on every
// ask/run, immutable once written, retained indefinitely.
type QueryRecord struct {
	ID        string
	ProfileID string
	AskedAt   string
	Question  string
	Mode      string
	Dialect   string
}

// Generation is the optional LLM metadata child of a QueryRecord.
type Generation struct {
	ID                 string
	QueryID            string
	SQL                string
	Assumptions        string
	SafetyNotes        string
	Confidence         float64
	ReferencedEntities string
}

// Run is the optional execution-outcome child of a QueryRecord.
type Run struct {
	ID             string
	QueryID        string
	RewrittenSQL   string
	ExplainSummary string
	ExecMs         int64
	RowCount       int64
	Truncated      bool
	Status         string
	ErrorText      string
}

// CreateQuery inserts a new history record. question may be empty for
// direct run_sql calls (spec §4.8 step 2 only creates one for ask_and_maybe_run,
// but run_sql also persists a query record per step 6).
func (s *Store) CreateQuery(ctx context.Context, profileID, question, mode, dialect string) (QueryRecord, error) {
	q := QueryRecord{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		AskedAt:   nowRFC3339(),
		Question:  question,
		Mode:      mode,
		Dialect:   dialect,
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO queries (id, profile_id, asked_at, question, mode, dialect) VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.ProfileID, q.AskedAt, nullableString(q.Question), q.Mode, q.Dialect)
	if err != nil {
		return QueryRecord{}, fmt.Errorf("creating query record: %w", err)
	}
	return q, nil
}

// RecordGeneration persists the LLM plan metadata for a query.
func (s *Store) RecordGeneration(ctx context.Context, g Generation) (Generation, error) {
	g.ID = uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO generations (id, query_id, sql, assumptions, safety_notes, confidence, referenced_entities)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.QueryID, g.SQL, nullableString(g.Assumptions), nullableString(g.SafetyNotes), g.Confidence, nullableString(g.ReferencedEntities))
	if err != nil {
		return Generation{}, fmt.Errorf("recording generation: %w", err)
	}
	return g, nil
}

// RecordRun persists the execution outcome for a query, regardless of
// status, per spec §4.8 step 6.
func (s *Store) RecordRun(ctx context.Context, r Run) (Run, error) {
	r.ID = uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, query_id, rewritten_sql, explain_summary, exec_ms, row_count, truncated, status, error_text)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.QueryID, nullableString(r.RewrittenSQL), nullableString(r.ExplainSummary),
		r.ExecMs, r.RowCount, boolToInt(r.Truncated), r.Status, nullableString(r.ErrorText))
	if err != nil {
		return Run{}, fmt.Errorf("recording run: %w", err)
	}
	return r, nil
}

// HistoryEntry bundles a query with its optional generation and run, the
// shape list_history/get_history return per spec §6.
type HistoryEntry struct {
	Query      QueryRecord
	Generation *Generation
	Run        *Run
}

// ListHistory returns the most recent query records, most recent first,
// each joined with its optional generation and run.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, profile_id, asked_at, question, mode, dialect FROM queries
ORDER BY asked_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var q QueryRecord
		var question sql.NullString
		if err := rows.Scan(&q.ID, &q.ProfileID, &q.AskedAt, &question, &q.Mode, &q.Dialect); err != nil {
			return nil, fmt.Errorf("scanning query record: %w", err)
		}
		q.Question = question.String
		entries = append(entries, HistoryEntry{Query: q})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		if gen, err := s.generationForQuery(ctx, entries[i].Query.ID); err == nil {
			entries[i].Generation = gen
		}
		if run, err := s.runForQuery(ctx, entries[i].Query.ID); err == nil {
			entries[i].Run = run
		}
	}
	return entries, nil
}

// GetHistory returns a single history entry by query id.
func (s *Store) GetHistory(ctx context.Context, id string) (HistoryEntry, error) {
	var q QueryRecord
	var question sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT id, profile_id, asked_at, question, mode, dialect FROM queries WHERE id = ?`, id).
		Scan(&q.ID, &q.ProfileID, &q.AskedAt, &question, &q.Mode, &q.Dialect)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("history entry %q not found: %w", id, err)
	}
	q.Question = question.String

	entry := HistoryEntry{Query: q}
	if gen, err := s.generationForQuery(ctx, id); err == nil {
		entry.Generation = gen
	}
	if run, err := s.runForQuery(ctx, id); err == nil {
		entry.Run = run
	}
	return entry, nil
}

func (s *Store) generationForQuery(ctx context.Context, queryID string) (*Generation, error) {
	var g Generation
	var assumptions, safetyNotes, referencedEntities sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT id, query_id, sql, assumptions, safety_notes, confidence, referenced_entities
FROM generations WHERE query_id = ?`, queryID).
		Scan(&g.ID, &g.QueryID, &g.SQL, &assumptions, &safetyNotes, &g.Confidence, &referencedEntities)
	if err != nil {
		return nil, err
	}
	g.Assumptions = assumptions.String
	g.SafetyNotes = safetyNotes.String
	g.ReferencedEntities = referencedEntities.String
	return &g, nil
}

func (s *Store) runForQuery(ctx context.Context, queryID string) (*Run, error) {
	var r Run
	var rewrittenSQL, explainSummary, errorText sql.NullString
	var truncated int
	err := s.db.QueryRowContext(ctx, `
SELECT id, query_id, rewritten_sql, explain_summary, exec_ms, row_count, truncated, status, error_text
FROM runs WHERE query_id = ?`, queryID).
		Scan(&r.ID, &r.QueryID, &rewrittenSQL, &explainSummary, &r.ExecMs, &r.RowCount, &truncated, &r.Status, &errorText)
	if err != nil {
		return nil, err
	}
	r.RewrittenSQL = rewrittenSQL.String
	r.ExplainSummary = explainSummary.String
	r.ErrorText = errorText.String
	r.Truncated = truncated != 0
	return &r, nil
}
