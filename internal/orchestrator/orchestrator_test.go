package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openquery/openquery/internal/confirm"
	"github.com/openquery/openquery/internal/llm"
	"github.com/openquery/openquery/internal/policy"
	"github.com/openquery/openquery/internal/preview"
	"github.com/openquery/openquery/internal/sqlast"
	"github.com/openquery/openquery/internal/store"
)

// fakeDB satisfies DB with canned results and call counters, so pipeline
// tests never need a live PostgreSQL.
type fakeDB struct {
	planRows   float64
	planCost   float64
	explainErr error

	readCols  []string
	readRows  [][]any
	readErr   error
	truncated bool

	writeRows int64
	writeErr  error

	explainCalls int
	readCalls    int
	writeCalls   int

	lastExplainArgs []any
	lastReadArgs    []any
	lastWriteArgs   []any
	lastMaxRows     int64
}

func (f *fakeDB) ExplainJSON(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	f.explainCalls++
	f.lastExplainArgs = args
	if f.explainErr != nil {
		return nil, f.explainErr
	}
	return []map[string]any{{"Plan": map[string]any{
		"Node Type":  "Index Scan",
		"Plan Rows":  f.planRows,
		"Total Cost": f.planCost,
	}}}, nil
}

func (f *fakeDB) RunRead(ctx context.Context, sql string, maxRows int64, args ...any) ([]string, [][]any, bool, int64, error) {
	f.readCalls++
	f.lastMaxRows = maxRows
	f.lastReadArgs = args
	if f.readErr != nil {
		return nil, nil, false, 0, f.readErr
	}
	return f.readCols, f.readRows, f.truncated, 7, nil
}

func (f *fakeDB) RunWrite(ctx context.Context, sql string, args ...any) (int64, int64, error) {
	f.writeCalls++
	f.lastWriteArgs = args
	if f.writeErr != nil {
		return 0, 0, f.writeErr
	}
	return f.writeRows, 3, nil
}

type fakeCollaborator struct {
	plan *llm.Plan
	err  error
}

func (f *fakeCollaborator) GeneratePlan(ctx context.Context, req llm.Request) (*llm.Plan, error) {
	return f.plan, f.err
}

func testHarness(t *testing.T) (*Orchestrator, *store.Store, store.Profile) {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "openquery.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	p, err := s.CreateProfile(context.Background(), store.ProfileSpec{
		Name: "test", Host: "localhost", Port: 5432, Database: "app", User: "app",
	})
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	return New(s), s, p
}

func auditTypes(t *testing.T, s *store.Store, eventType string) []store.AuditEventRecord {
	t.Helper()
	events, err := s.ListAudit(context.Background(), store.AuditFilter{Type: eventType})
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	return events
}

func TestRunSQL_ReadSuccess(t *testing.T) {
	ctx := context.Background()
	orch, s, p := testHarness(t)
	db := &fakeDB{planRows: 10, planCost: 5, readCols: []string{"id"}, readRows: [][]any{{int64(1)}, {int64(2)}}}

	outcome := orch.RunSQL(ctx, db, "SELECT id FROM users", policy.ModeSafe, nil, p.ID, policy.Config{Mode: policy.ModeSafe}, "")
	if outcome.Status != StatusOK {
		t.Fatalf("Status = %q (reason %q), want ok", outcome.Status, outcome.Reason)
	}
	if len(outcome.Rows) != 2 || len(outcome.Columns) != 1 {
		t.Errorf("rows/cols = %d/%d, want 2/1", len(outcome.Rows), len(outcome.Columns))
	}
	if !strings.HasSuffix(outcome.RewrittenSQL, " LIMIT 200") {
		t.Errorf("RewrittenSQL = %q, want injected LIMIT", outcome.RewrittenSQL)
	}
	if db.explainCalls != 1 {
		t.Errorf("explain called %d times in safe mode, want 1", db.explainCalls)
	}

	ran := auditTypes(t, s, "query_ran")
	if len(ran) != 1 {
		t.Fatalf("query_ran events = %d, want 1", len(ran))
	}
	if hash, _ := ran[0].Payload["sql_hash"].(string); len(hash) != 16 {
		t.Errorf("sql_hash = %q, want 16 hex chars", hash)
	}

	history, err := s.ListHistory(ctx, 10)
	if err != nil || len(history) != 1 {
		t.Fatalf("history = %v, %v, want one entry", history, err)
	}
	if history[0].Run == nil || history[0].Run.Status != "ok" {
		t.Errorf("run record = %+v, want status ok", history[0].Run)
	}
}

func TestRunSQL_StandardModeSkipsExplain(t *testing.T) {
	ctx := context.Background()
	orch, _, p := testHarness(t)
	db := &fakeDB{readCols: []string{"id"}}

	outcome := orch.RunSQL(ctx, db, "SELECT id FROM users", policy.ModeStandard, nil, p.ID, policy.Config{Mode: policy.ModeStandard}, "")
	if outcome.Status != StatusOK {
		t.Fatalf("Status = %q, want ok", outcome.Status)
	}
	if db.explainCalls != 0 {
		t.Errorf("explain called %d times in standard mode, want 0", db.explainCalls)
	}
}

func TestRunSQL_ExplainGateBlocks(t *testing.T) {
	ctx := context.Background()
	orch, _, p := testHarness(t)
	db := &fakeDB{planRows: 10_000_000, planCost: 1}

	outcome := orch.RunSQL(ctx, db, "SELECT id FROM users", policy.ModeSafe, nil, p.ID, policy.Config{Mode: policy.ModeSafe}, "")
	if outcome.Status != StatusBlocked {
		t.Fatalf("Status = %q, want blocked", outcome.Status)
	}
	if len(outcome.Blockers) == 0 || !strings.Contains(outcome.Blockers[0], "rows") {
		t.Errorf("Blockers = %v, want row threshold", outcome.Blockers)
	}
	if db.readCalls != 0 {
		t.Errorf("read executed %d times after gate block, want 0", db.readCalls)
	}
}

func TestRunSQL_WriteWithoutPowerAuditsWriteBlocked(t *testing.T) {
	ctx := context.Background()
	orch, s, p := testHarness(t)
	db := &fakeDB{}

	outcome := orch.RunSQL(ctx, db, "UPDATE users SET name = 'x' WHERE id = 1", policy.ModeSafe, nil, p.ID, policy.Config{Mode: policy.ModeSafe}, "")
	if outcome.Status != StatusBlocked {
		t.Fatalf("Status = %q, want blocked", outcome.Status)
	}
	if db.writeCalls != 0 {
		t.Errorf("write executed %d times, want 0", db.writeCalls)
	}

	blocked := auditTypes(t, s, "write_blocked")
	if len(blocked) != 1 {
		t.Fatalf("write_blocked events = %d, want exactly 1", len(blocked))
	}
	payload := blocked[0].Payload
	if payload["classification"] != "write" {
		t.Errorf("classification = %v, want write", payload["classification"])
	}
	tables, _ := payload["impacted_tables"].([]any)
	if len(tables) != 1 || tables[0] != "users" {
		t.Errorf("impacted_tables = %v, want [users]", payload["impacted_tables"])
	}
	if hash, _ := payload["sql_hash"].(string); len(hash) != 16 {
		t.Errorf("sql_hash = %q, want 16 hex chars", hash)
	}
	if s, _ := payload["sql"].(string); s != "" {
		t.Error("payload contains raw SQL")
	}
}

func TestRunSQL_DeniedReadEmitsNoWriteBlocked(t *testing.T) {
	ctx := context.Background()
	orch, s, p := testHarness(t)

	outcome := orch.RunSQL(ctx, &fakeDB{}, "SELECT * FROM users", policy.ModeSafe, nil, p.ID, policy.Config{Mode: policy.ModeSafe}, "")
	if outcome.Status != StatusBlocked {
		t.Fatalf("Status = %q, want blocked", outcome.Status)
	}
	if got := auditTypes(t, s, "write_blocked"); len(got) != 0 {
		t.Errorf("write_blocked events = %d for a denied read, want 0", len(got))
	}
}

func TestRunSQL_WritePreviewThenConfirmExecute(t *testing.T) {
	ctx := context.Background()
	orch, s, p := testHarness(t)
	db := &fakeDB{planRows: 1, writeRows: 1}
	cfg := policy.Config{Mode: policy.ModeSafe, AllowWrite: true}

	sql := "DELETE FROM users WHERE id = 1"
	outcome := orch.RunSQL(ctx, db, sql, policy.ModeSafe, nil, p.ID, cfg, "")
	if outcome.Status != StatusOK {
		t.Fatalf("Status = %q (reason %q), want ok with preview", outcome.Status, outcome.Reason)
	}
	if outcome.Preview == nil {
		t.Fatal("Preview = nil, want a write preview")
	}
	if db.writeCalls != 0 {
		t.Fatalf("write executed before confirmation")
	}
	if got := auditTypes(t, s, "write_previewed"); len(got) != 1 {
		t.Fatalf("write_previewed events = %d, want 1", len(got))
	}

	result, err := orch.ConfirmAndExecuteWrite(ctx, db, p.ID, *outcome.Preview, sql, nil, confirm.PhraseWrite, "")
	if err != nil {
		t.Fatalf("ConfirmAndExecuteWrite: %v", err)
	}
	if result.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d, want 1", result.RowsAffected)
	}
	if db.writeCalls != 1 {
		t.Errorf("write executed %d times, want 1", db.writeCalls)
	}
	if got := auditTypes(t, s, "write_confirmed"); len(got) != 1 {
		t.Errorf("write_confirmed events = %d, want 1", len(got))
	}
	if got := auditTypes(t, s, "write_executed"); len(got) != 1 {
		t.Errorf("write_executed events = %d, want 1", len(got))
	}
	if got := auditTypes(t, s, "write_failed"); len(got) != 0 {
		t.Errorf("write_failed events = %d, want 0", len(got))
	}
}

func TestConfirmAndExecuteWrite_PhraseMismatch(t *testing.T) {
	ctx := context.Background()
	orch, _, p := testHarness(t)
	db := &fakeDB{}

	pv := preview.Preview{
		Classification:     sqlast.ClassWrite,
		Kind:               sqlast.KindDelete,
		ConfirmationPhrase: confirm.PhraseWrite,
	}
	_, err := orch.ConfirmAndExecuteWrite(ctx, db, p.ID, pv, "DELETE FROM users WHERE id = 1", nil, "confirm write", "")
	if err == nil || !strings.Contains(err.Error(), "Confirmation phrase mismatch") {
		t.Fatalf("err = %v, want phrase mismatch", err)
	}
	if db.writeCalls != 0 {
		t.Errorf("write executed %d times after mismatch, want 0", db.writeCalls)
	}
}

func TestConfirmAndExecuteWrite_DangerousNeedsSecondPhrase(t *testing.T) {
	ctx := context.Background()
	orch, _, p := testHarness(t)
	db := &fakeDB{}

	pv := preview.Preview{
		Classification:                sqlast.ClassDangerous,
		Kind:                          sqlast.KindDrop,
		ConfirmationPhrase:            confirm.PhraseWrite,
		RequiresDangerousConfirmation: true,
		DangerousConfirmationPhrase:   confirm.PhraseDangerous,
	}

	if _, err := orch.ConfirmAndExecuteWrite(ctx, db, p.ID, pv, "DROP TABLE users", nil, confirm.PhraseWrite, "nope"); err == nil {
		t.Fatal("missing dangerous phrase accepted")
	}
	if db.writeCalls != 0 {
		t.Fatalf("write executed without dangerous confirmation")
	}

	if _, err := orch.ConfirmAndExecuteWrite(ctx, db, p.ID, pv, "DROP TABLE users", nil, confirm.PhraseWrite, confirm.PhraseDangerous); err != nil {
		t.Fatalf("both phrases correct, got error: %v", err)
	}
	if db.writeCalls != 1 {
		t.Errorf("write executed %d times, want 1", db.writeCalls)
	}
}

func TestRunSQL_WriteFailureAuditsWriteFailed(t *testing.T) {
	ctx := context.Background()
	orch, s, p := testHarness(t)
	db := &fakeDB{planRows: 1, writeErr: fmt.Errorf("constraint violation")}
	cfg := policy.Config{Mode: policy.ModeSafe, AllowWrite: true}

	sql := "DELETE FROM users WHERE id = 1"
	outcome := orch.RunSQL(ctx, db, sql, policy.ModeSafe, nil, p.ID, cfg, "")
	if outcome.Preview == nil {
		t.Fatalf("no preview: %+v", outcome)
	}
	_, err := orch.ConfirmAndExecuteWrite(ctx, db, p.ID, *outcome.Preview, sql, nil, confirm.PhraseWrite, "")
	if err == nil {
		t.Fatal("expected execution error")
	}
	failed := auditTypes(t, s, "write_failed")
	if len(failed) != 1 {
		t.Fatalf("write_failed events = %d, want 1", len(failed))
	}
	if msg, _ := failed[0].Payload["error"].(string); !strings.Contains(msg, "constraint") {
		t.Errorf("error payload = %q", msg)
	}
}

func TestRunSQL_MultiStatementBlocked(t *testing.T) {
	ctx := context.Background()
	orch, _, p := testHarness(t)

	outcome := orch.RunSQL(ctx, &fakeDB{}, "SELECT 1; SELECT 2", policy.ModeSafe, nil, p.ID, policy.Config{}, "")
	if outcome.Status != StatusBlocked {
		t.Fatalf("Status = %q, want blocked", outcome.Status)
	}
	if !strings.Contains(outcome.Reason, "multiple") {
		t.Errorf("Reason = %q, want mention of multiple", outcome.Reason)
	}
}

func TestAskAndMaybeRun_NoSnapshot(t *testing.T) {
	ctx := context.Background()
	orch, _, p := testHarness(t)

	outcome := orch.AskAndMaybeRun(ctx, &fakeDB{}, &fakeCollaborator{}, AskRequest{
		Profile: p, Question: "how many users?", Mode: policy.ModeSafe,
	})
	if outcome.Status != StatusError {
		t.Fatalf("Status = %q, want error", outcome.Status)
	}
	if !strings.Contains(outcome.Reason, "refresh first") {
		t.Errorf("Reason = %q, want refresh hint", outcome.Reason)
	}
}

func storeSnapshot(t *testing.T, s *store.Store, profileID string) {
	t.Helper()
	_, err := s.StoreSchemaSnapshot(context.Background(), profileID, []store.Table{
		{Name: "users", Columns: []store.Column{{Name: "id", DataType: "integer"}}},
	})
	if err != nil {
		t.Fatalf("StoreSchemaSnapshot: %v", err)
	}
}

func TestAskAndMaybeRun_DryRunPersistsWithoutExecuting(t *testing.T) {
	ctx := context.Background()
	orch, s, p := testHarness(t)
	storeSnapshot(t, s, p.ID)
	db := &fakeDB{}
	collab := &fakeCollaborator{plan: &llm.Plan{SQL: "SELECT count(id) FROM users", Confidence: 0.9}}

	outcome := orch.AskAndMaybeRun(ctx, db, collab, AskRequest{
		Profile: p, Question: "how many users?", Mode: policy.ModeSafe, DryRun: true,
	})
	if outcome.Status != StatusDryRun {
		t.Fatalf("Status = %q (reason %q), want dry-run", outcome.Status, outcome.Reason)
	}
	if db.readCalls != 0 || db.writeCalls != 0 {
		t.Errorf("database touched during dry run: reads %d, writes %d", db.readCalls, db.writeCalls)
	}

	history, err := s.ListHistory(ctx, 10)
	if err != nil || len(history) != 1 {
		t.Fatalf("history = %v, %v", history, err)
	}
	if history[0].Generation == nil || history[0].Generation.SQL != "SELECT count(id) FROM users" {
		t.Errorf("generation = %+v, want persisted plan", history[0].Generation)
	}
}

func TestAskAndMaybeRun_ExecutesGeneratedRead(t *testing.T) {
	ctx := context.Background()
	orch, s, p := testHarness(t)
	storeSnapshot(t, s, p.ID)
	db := &fakeDB{planRows: 1, readCols: []string{"count"}, readRows: [][]any{{int64(5)}}}
	collab := &fakeCollaborator{plan: &llm.Plan{SQL: "SELECT count(id) FROM users", Confidence: 0.8}}

	outcome := orch.AskAndMaybeRun(ctx, db, collab, AskRequest{
		Profile: p, Question: "how many users?", Mode: policy.ModeSafe, Execute: true,
		ProfileCfg: policy.Config{Mode: policy.ModeSafe},
	})
	if outcome.Status != StatusOK {
		t.Fatalf("Status = %q (reason %q), want ok", outcome.Status, outcome.Reason)
	}
	if outcome.RunOutcome == nil || len(outcome.RunOutcome.Rows) != 1 {
		t.Errorf("RunOutcome = %+v, want one row", outcome.RunOutcome)
	}
	if db.readCalls != 1 {
		t.Errorf("read executed %d times, want 1", db.readCalls)
	}
}

func TestAskAndMaybeRun_GeneratedWriteNotExecuted(t *testing.T) {
	ctx := context.Background()
	orch, s, p := testHarness(t)
	storeSnapshot(t, s, p.ID)
	db := &fakeDB{planRows: 1}
	collab := &fakeCollaborator{plan: &llm.Plan{SQL: "DELETE FROM users", Confidence: 0.8}}

	outcome := orch.AskAndMaybeRun(ctx, db, collab, AskRequest{
		Profile: p, Question: "remove everyone", Mode: policy.ModeSafe, Execute: true,
		ProfileCfg: policy.Config{Mode: policy.ModeSafe, AllowWrite: true},
	})
	if outcome.Status != StatusBlocked {
		t.Fatalf("Status = %q, want blocked for a generated write", outcome.Status)
	}
	if db.writeCalls != 0 {
		t.Errorf("generated write executed %d times, want 0", db.writeCalls)
	}
}

func TestAskAndMaybeRun_LLMErrorRecorded(t *testing.T) {
	ctx := context.Background()
	orch, s, p := testHarness(t)
	storeSnapshot(t, s, p.ID)
	collab := &fakeCollaborator{err: fmt.Errorf("provider unavailable")}

	outcome := orch.AskAndMaybeRun(ctx, &fakeDB{}, collab, AskRequest{
		Profile: p, Question: "q", Mode: policy.ModeSafe,
	})
	if outcome.Status != StatusError {
		t.Fatalf("Status = %q, want error", outcome.Status)
	}
	history, err := s.ListHistory(ctx, 10)
	if err != nil || len(history) != 1 {
		t.Fatalf("history = %v, %v", history, err)
	}
	if history[0].Run == nil || history[0].Run.Status != "error" {
		t.Errorf("run record = %+v, want status error", history[0].Run)
	}
}

func TestRunSQL_ReadRowCapFollowsMode(t *testing.T) {
	ctx := context.Background()
	orch, _, p := testHarness(t)

	db := &fakeDB{planRows: 1, readCols: []string{"id"}}
	outcome := orch.RunSQL(ctx, db, "SELECT id FROM users", policy.ModeSafe, nil, p.ID, policy.Config{Mode: policy.ModeSafe}, "")
	if outcome.Status != StatusOK {
		t.Fatalf("safe: Status = %q (reason %q), want ok", outcome.Status, outcome.Reason)
	}
	if db.lastMaxRows != policy.SafeDefaults.MaxEstimatedRows {
		t.Errorf("safe: RunRead cap = %d, want %d", db.lastMaxRows, policy.SafeDefaults.MaxEstimatedRows)
	}

	db = &fakeDB{readCols: []string{"id"}}
	outcome = orch.RunSQL(ctx, db, "SELECT id FROM users", policy.ModeStandard, nil, p.ID, policy.Config{Mode: policy.ModeStandard}, "")
	if outcome.Status != StatusOK {
		t.Fatalf("standard: Status = %q, want ok", outcome.Status)
	}
	if db.lastMaxRows != policy.StandardDefaults.MaxEstimatedRows {
		t.Errorf("standard: RunRead cap = %d, want %d", db.lastMaxRows, policy.StandardDefaults.MaxEstimatedRows)
	}
}

func TestRunSQL_ForwardsBindParams(t *testing.T) {
	ctx := context.Background()
	orch, _, p := testHarness(t)
	db := &fakeDB{planRows: 1, readCols: []string{"id"}}

	params := []any{int64(42)}
	outcome := orch.RunSQL(ctx, db, "SELECT id FROM users WHERE id = $1", policy.ModeSafe, params, p.ID, policy.Config{Mode: policy.ModeSafe}, "")
	if outcome.Status != StatusOK {
		t.Fatalf("Status = %q (reason %q), want ok", outcome.Status, outcome.Reason)
	}
	if len(db.lastExplainArgs) != 1 || db.lastExplainArgs[0] != int64(42) {
		t.Errorf("EXPLAIN args = %v, want [42]", db.lastExplainArgs)
	}
	if len(db.lastReadArgs) != 1 || db.lastReadArgs[0] != int64(42) {
		t.Errorf("RunRead args = %v, want [42]", db.lastReadArgs)
	}
}

func TestConfirmAndExecuteWrite_ForwardsBindParams(t *testing.T) {
	ctx := context.Background()
	orch, _, p := testHarness(t)
	db := &fakeDB{planRows: 1, writeRows: 1}
	cfg := policy.Config{Mode: policy.ModeSafe, AllowWrite: true}

	sql := "DELETE FROM users WHERE id = $1"
	params := []any{int64(7)}
	outcome := orch.RunSQL(ctx, db, sql, policy.ModeSafe, params, p.ID, cfg, "")
	if outcome.Preview == nil {
		t.Fatalf("no preview: %+v", outcome)
	}
	if len(db.lastExplainArgs) != 1 || db.lastExplainArgs[0] != int64(7) {
		t.Errorf("preview EXPLAIN args = %v, want [7]", db.lastExplainArgs)
	}

	if _, err := orch.ConfirmAndExecuteWrite(ctx, db, p.ID, *outcome.Preview, sql, params, confirm.PhraseWrite, ""); err != nil {
		t.Fatalf("ConfirmAndExecuteWrite: %v", err)
	}
	if len(db.lastWriteArgs) != 1 || db.lastWriteArgs[0] != int64(7) {
		t.Errorf("RunWrite args = %v, want [7]", db.lastWriteArgs)
	}
}

func TestAskAndMaybeRun_ForwardsPlanParams(t *testing.T) {
	ctx := context.Background()
	orch, s, p := testHarness(t)
	storeSnapshot(t, s, p.ID)
	db := &fakeDB{planRows: 1, readCols: []string{"id"}, readRows: [][]any{{int64(1)}}}
	collab := &fakeCollaborator{plan: &llm.Plan{
		SQL:        "SELECT id FROM users WHERE id = $1 LIMIT 10",
		Params:     []llm.BindParam{{Name: "id", Type: "bigint", Value: "42"}},
		Confidence: 0.8,
	}}

	outcome := orch.AskAndMaybeRun(ctx, db, collab, AskRequest{
		Profile: p, Question: "user 42?", Mode: policy.ModeSafe, Execute: true,
		ProfileCfg: policy.Config{Mode: policy.ModeSafe},
	})
	if outcome.Status != StatusOK {
		t.Fatalf("Status = %q (reason %q), want ok", outcome.Status, outcome.Reason)
	}
	if len(db.lastReadArgs) != 1 || db.lastReadArgs[0] != int64(42) {
		t.Errorf("RunRead args = %v, want the plan's typed bind value", db.lastReadArgs)
	}
}
