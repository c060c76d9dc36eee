// Package orchestrator implements C8: the two top-level operations,
// run_sql and ask_and_maybe_run, that compose statement classification,
// policy validation, the EXPLAIN gate, the write preview/confirm/execute
// flow, the LLM collaborator, and persistence into the local store.
package orchestrator

import (
	"context"
	"fmt"
	"reflect"

	"github.com/openquery/openquery/internal/confirm"
	"github.com/openquery/openquery/internal/executor"
	"github.com/openquery/openquery/internal/explain"
	"github.com/openquery/openquery/internal/policy"
	"github.com/openquery/openquery/internal/preview"
	"github.com/openquery/openquery/internal/sqlast"
	"github.com/openquery/openquery/internal/store"
)

// DB is the slice of the database contract the orchestrator consumes: the
// EXPLAIN probe, bounded read execution, and transactional write execution.
// *pgsql.Conn satisfies it; tests supply fakes.
type DB interface {
	ExplainJSON(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
	RunRead(ctx context.Context, sql string, maxRows int64, args ...any) (cols []string, rows [][]any, truncated bool, execMs int64, err error)
	RunWrite(ctx context.Context, sql string, args ...any) (rowsAffected int64, execMs int64, err error)
}

// Status is the closed set of outcome statuses from spec §4.8/§6.
type Status string

const (
	StatusOK      Status = "ok"
	StatusBlocked Status = "blocked"
	StatusError   Status = "error"
	StatusDryRun  Status = "dry-run"
)

// RunOutcome is run_sql's return value.
type RunOutcome struct {
	Status         Status
	Classification sqlast.Classification
	Kind           sqlast.Kind
	RewrittenSQL   string
	Warnings       []string
	Blockers       []string
	Reason         string
	SuggestedFix   string

	// Populated only for successful reads.
	Columns   []string
	Rows      [][]any
	Truncated bool
	ExecMs    int64

	// Populated only when a write preview was built but not yet confirmed.
	Preview *preview.Preview
}

// Orchestrator holds the dependencies shared by both top-level operations.
type Orchestrator struct {
	Store *store.Store

	// SafeMode and StandardMode are the resolved per-mode thresholds,
	// already patched with any config-file overrides (internal/config).
	// Zero values fall back to policy.SafeDefaults/StandardDefaults.
	SafeMode     policy.ModeConfig
	StandardMode policy.ModeConfig
}

// New builds an Orchestrator backed by an already-open Store, using the
// built-in mode defaults. Use NewWithModes to apply config-file overrides.
func New(s *store.Store) *Orchestrator {
	return NewWithModes(s, policy.SafeDefaults, policy.StandardDefaults)
}

// NewWithModes builds an Orchestrator with explicit per-mode thresholds,
// the shape internal/config.Load produces after applying overrides.
func NewWithModes(s *store.Store, safeMode, standardMode policy.ModeConfig) *Orchestrator {
	return &Orchestrator{Store: s, SafeMode: safeMode, StandardMode: standardMode}
}

func (o *Orchestrator) modeConfigFor(mode policy.Mode) policy.ModeConfig {
	if mode == policy.ModeStandard {
		if reflect.ValueOf(o.StandardMode).IsZero() {
			return policy.StandardDefaults
		}
		return o.StandardMode
	}
	if reflect.ValueOf(o.SafeMode).IsZero() {
		return policy.SafeDefaults
	}
	return o.SafeMode
}

// RunSQL implements run_sql per spec §4.8. conn is opened by the caller
// (the CLI layer resolves the profile's connection config); Orchestrator
// never owns connection pooling. params are the statement's bind values,
// forwarded into the EXPLAIN probe and execution.
func (o *Orchestrator) RunSQL(ctx context.Context, conn DB, sql string, mode policy.Mode, params []any, profileID string, profileCfg policy.Config, customConfirmPhrase string) RunOutcome {
	parsed, err := sqlast.Parse(sql)
	if err != nil {
		return RunOutcome{Status: StatusError, Reason: err.Error()}
	}

	modeCfg := o.modeConfigFor(mode)
	engine := policy.New(profileCfg, modeCfg)
	result := engine.Validate(parsed)

	query, qerr := o.Store.CreateQuery(ctx, profileID, "", string(mode), "postgres")
	if qerr != nil {
		return RunOutcome{Status: StatusError, Reason: fmt.Sprintf("persisting query record: %s", qerr)}
	}

	if !result.Allowed {
		if result.Classification != sqlast.ClassRead {
			o.recordWriteBlocked(ctx, profileID, result, sql)
		}
		o.recordRun(ctx, query.ID, "", "", 0, 0, false, StatusBlocked, result.Reason)
		return RunOutcome{
			Status:         StatusBlocked,
			Classification: result.Classification,
			Kind:           result.Kind,
			Reason:         result.Reason,
			SuggestedFix:   result.SuggestedFix,
			Warnings:       result.Warnings,
		}
	}

	switch result.Classification {
	case sqlast.ClassRead:
		return o.runRead(ctx, conn, query.ID, profileID, modeCfg, result, params)
	default:
		p, perr := preview.Build(ctx, conn, parsed, params, customConfirmPhrase)
		if perr != nil {
			o.recordRun(ctx, query.ID, result.RewrittenSQL, "", 0, 0, false, StatusError, perr.Error())
			return RunOutcome{Status: StatusError, Reason: perr.Error()}
		}
		_ = o.Store.RecordAuditEvent(ctx, executor.PreviewedEvent(profileID, p, sql))
		o.recordRun(ctx, query.ID, result.RewrittenSQL, "", 0, 0, false, StatusOK, "")
		return RunOutcome{
			Status:         StatusOK,
			Classification: result.Classification,
			Kind:           result.Kind,
			RewrittenSQL:   result.RewrittenSQL,
			Warnings:       p.Warnings,
			Preview:        &p,
		}
	}
}

func (o *Orchestrator) runRead(ctx context.Context, conn DB, queryID, profileID string, modeCfg policy.ModeConfig, result policy.Result, params []any) RunOutcome {
	if modeCfg.RequireExplain {
		_, eval := explain.Gate(ctx, conn, modeCfg, result.RewrittenSQL, params...)
		if !eval.Allowed {
			o.recordRun(ctx, queryID, result.RewrittenSQL, summarizeBlockers(eval.Blockers), 0, 0, false, StatusBlocked, "")
			return RunOutcome{
				Status:         StatusBlocked,
				Classification: result.Classification,
				Kind:           result.Kind,
				RewrittenSQL:   result.RewrittenSQL,
				Blockers:       eval.Blockers,
				Warnings:       append(result.Warnings, eval.Warnings...),
			}
		}
	}

	// The hard execution-row cap is the per-mode max_estimated_rows value,
	// the same threshold the EXPLAIN gate enforces on estimates.
	cols, rows, truncated, execMs, err := conn.RunRead(ctx, result.RewrittenSQL, modeCfg.MaxEstimatedRows, params...)
	if err != nil {
		o.recordRun(ctx, queryID, result.RewrittenSQL, "", execMs, 0, false, StatusError, err.Error())
		return RunOutcome{Status: StatusError, Reason: err.Error(), Classification: result.Classification, Kind: result.Kind}
	}

	o.recordRun(ctx, queryID, result.RewrittenSQL, "", execMs, int64(len(rows)), truncated, StatusOK, "")
	_ = o.Store.RecordAuditEvent(ctx, executor.AuditEvent{
		Type:      "query_ran",
		ProfileID: profileID,
		Payload: map[string]any{
			"profile_id":      profileID,
			"classification":  result.Classification,
			"impacted_tables": result.ImpactedTables,
			"sql_hash":        executor.SQLHash(result.RewrittenSQL),
		},
	})
	return RunOutcome{
		Status:         StatusOK,
		Classification: result.Classification,
		Kind:           result.Kind,
		RewrittenSQL:   result.RewrittenSQL,
		Warnings:       result.Warnings,
		Columns:        cols,
		Rows:           rows,
		Truncated:      truncated,
		ExecMs:         execMs,
	}
}

// ConfirmAndExecuteWrite implements confirm_and_execute_write: verifies
// both phrases and, on match, runs the write executor with the
// statement's bind values.
func (o *Orchestrator) ConfirmAndExecuteWrite(ctx context.Context, conn DB, profileID string, p preview.Preview, sql string, params []any, phrase, dangerousPhrase string) (executor.Outcome, error) {
	if !confirm.Verify(p.ConfirmationPhrase, phrase) {
		return executor.Outcome{}, fmt.Errorf("Confirmation phrase mismatch")
	}
	if p.RequiresDangerousConfirmation && !confirm.Verify(p.DangerousConfirmationPhrase, dangerousPhrase) {
		return executor.Outcome{}, fmt.Errorf("Confirmation phrase mismatch")
	}

	return executor.Execute(ctx, conn, o.Store, profileID, p, sql, params...)
}

func (o *Orchestrator) recordWriteBlocked(ctx context.Context, profileID string, result policy.Result, sql string) {
	_ = o.Store.RecordAuditEvent(ctx, executor.AuditEvent{
		Type:      "write_blocked",
		ProfileID: profileID,
		Payload: map[string]any{
			"profile_id":      profileID,
			"classification":  result.Classification,
			"impacted_tables": result.ImpactedTables,
			"sql_hash":        executor.SQLHash(sql),
		},
	})
}

func (o *Orchestrator) recordRun(ctx context.Context, queryID, rewrittenSQL, explainSummary string, execMs, rowCount int64, truncated bool, status Status, errText string) {
	_, _ = o.Store.RecordRun(ctx, store.Run{
		QueryID:        queryID,
		RewrittenSQL:   rewrittenSQL,
		ExplainSummary: explainSummary,
		ExecMs:         execMs,
		RowCount:       rowCount,
		Truncated:      truncated,
		Status:         string(status),
		ErrorText:      errText,
	})
}

func summarizeBlockers(blockers []string) string {
	if len(blockers) == 0 {
		return ""
	}
	return blockers[0]
}
