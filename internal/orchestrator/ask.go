package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openquery/openquery/internal/llm"
	"github.com/openquery/openquery/internal/policy"
	"github.com/openquery/openquery/internal/sqlast"
	"github.com/openquery/openquery/internal/store"
)

// AskRequest is the input to AskAndMaybeRun.
type AskRequest struct {
	Profile    store.Profile
	Question   string
	Mode       policy.Mode
	Execute    bool
	DryRun     bool
	ProfileCfg policy.Config
}

// AskOutcome is ask_and_maybe_run's return value, per spec §4.8.
type AskOutcome struct {
	Status     Status
	Plan       *llm.Plan
	RunOutcome *RunOutcome
	Reason     string
}

// AskAndMaybeRun implements ask_and_maybe_run per spec §4.8: load the
// latest schema snapshot, call the LLM collaborator and persist the plan.
// With DryRun set or Execute unset, the plan is returned as generated: no
// policy validation and no EXPLAIN run on it. Otherwise the generated SQL
// goes through RunSQL, the same validate/explain path as run_sql.
// Generated writes are never executed through this path; they must go
// through POWER preview/confirm like any other write.
func (o *Orchestrator) AskAndMaybeRun(ctx context.Context, conn DB, collab llm.Collaborator, req AskRequest) AskOutcome {
	snapshot, err := o.Store.LatestSchemaSnapshot(ctx, req.Profile.ID)
	if err != nil {
		return AskOutcome{Status: StatusError, Reason: "no schema snapshot — refresh first"}
	}

	query, err := o.Store.CreateQuery(ctx, req.Profile.ID, req.Question, string(req.Mode), req.Profile.Dialect)
	if err != nil {
		return AskOutcome{Status: StatusError, Reason: fmt.Sprintf("persisting query record: %s", err)}
	}

	schemaJSON, err := json.Marshal(snapshot.Tables)
	if err != nil {
		return AskOutcome{Status: StatusError, Reason: fmt.Sprintf("encoding schema subset: %s", err)}
	}

	plan, err := collab.GeneratePlan(ctx, llm.Request{
		Question:      req.Question,
		SchemaSubset:  string(schemaJSON),
		Dialect:       req.Profile.Dialect,
		Mode:          string(req.Mode),
		BlockedTables: o.modeConfigFor(req.Mode).BlockedTables,
	})
	if err != nil {
		o.recordRun(ctx, query.ID, "", "", 0, 0, false, StatusError, err.Error())
		return AskOutcome{Status: StatusError, Reason: err.Error()}
	}

	if _, err := o.Store.RecordGeneration(ctx, store.Generation{
		QueryID:     query.ID,
		SQL:         plan.SQL,
		Assumptions: plan.Assumptions,
		SafetyNotes: plan.SafetyNotes,
		Confidence:  plan.Confidence,
	}); err != nil {
		return AskOutcome{Status: StatusError, Reason: fmt.Sprintf("persisting generation: %s", err)}
	}

	if req.DryRun || !req.Execute {
		o.recordRun(ctx, query.ID, plan.SQL, "", 0, 0, false, StatusOK, "")
		return AskOutcome{Status: StatusDryRun, Plan: plan}
	}

	outcome := o.RunSQL(ctx, conn, plan.SQL, req.Mode, llm.DriverArgs(plan.Params), req.Profile.ID, req.ProfileCfg, req.Profile.PowerConfirmPhrase)
	if outcome.Classification != "" && outcome.Classification != sqlast.ClassRead {
		return AskOutcome{
			Status: StatusBlocked,
			Plan:   plan,
			Reason: "generated statement is a write; use preview/confirm to execute it",
		}
	}

	return AskOutcome{Status: outcome.Status, Plan: plan, RunOutcome: &outcome}
}
