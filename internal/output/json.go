package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/openquery/openquery/internal/orchestrator"
	"github.com/openquery/openquery/internal/preview"
	"github.com/openquery/openquery/internal/store"
)

// JSONRenderer emits machine-readable output, one JSON document per call,
// for scripting. The CLI's JSON error envelope is written by cmd, not here.
type JSONRenderer struct {
	w io.Writer
}

type jsonRunOutput struct {
	Status         string    `json:"status"`
	Classification string    `json:"classification,omitempty"`
	Kind           string    `json:"kind,omitempty"`
	RewrittenSQL   string    `json:"rewritten_sql,omitempty"`
	Warnings       []string  `json:"warnings,omitempty"`
	Blockers       []string  `json:"blockers,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	SuggestedFix   string    `json:"suggested_fix,omitempty"`
	Columns        []string  `json:"columns,omitempty"`
	Rows           [][]any   `json:"rows,omitempty"`
	Truncated      bool      `json:"truncated,omitempty"`
	ExecMs         int64     `json:"exec_ms"`
	Preview        *jsonPrev `json:"preview,omitempty"`
}

type jsonPrev struct {
	Classification                string   `json:"classification"`
	Kind                          string   `json:"kind"`
	ImpactedTables                []string `json:"impacted_tables"`
	HasWhereClause                bool     `json:"has_where_clause"`
	Summary                       string   `json:"summary"`
	Warnings                      []string `json:"warnings,omitempty"`
	EstimatedRowsAffected         *int64   `json:"estimated_rows_affected,omitempty"`
	ConfirmationPhrase            string   `json:"confirmation_phrase"`
	RequiresDangerousConfirmation bool     `json:"requires_dangerous_confirmation,omitempty"`
	DangerousConfirmationPhrase   string   `json:"dangerous_confirmation_phrase,omitempty"`
}

func toJSONPreview(p preview.Preview) *jsonPrev {
	return &jsonPrev{
		Classification:                string(p.Classification),
		Kind:                          string(p.Kind),
		ImpactedTables:                p.ImpactedTables,
		HasWhereClause:                p.HasWhereClause,
		Summary:                       p.Summary,
		Warnings:                      p.Warnings,
		EstimatedRowsAffected:         p.EstimatedRowsAffected,
		ConfirmationPhrase:            p.ConfirmationPhrase,
		RequiresDangerousConfirmation: p.RequiresDangerousConfirmation,
		DangerousConfirmationPhrase:   p.DangerousConfirmationPhrase,
	}
}

func (r *JSONRenderer) RenderRun(o orchestrator.RunOutcome) {
	out := jsonRunOutput{
		Status:         string(o.Status),
		Classification: string(o.Classification),
		Kind:           string(o.Kind),
		RewrittenSQL:   o.RewrittenSQL,
		Warnings:       o.Warnings,
		Blockers:       o.Blockers,
		Reason:         o.Reason,
		SuggestedFix:   o.SuggestedFix,
		Columns:        o.Columns,
		Rows:           o.Rows,
		Truncated:      o.Truncated,
		ExecMs:         o.ExecMs,
	}
	if o.Preview != nil {
		out.Preview = toJSONPreview(*o.Preview)
	}
	r.encode(out)
}

func (r *JSONRenderer) RenderPreview(p preview.Preview) {
	r.encode(toJSONPreview(p))
}

type jsonAskOutput struct {
	Status string         `json:"status"`
	Plan   *jsonPlan      `json:"plan,omitempty"`
	Run    *jsonRunOutput `json:"run,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

type jsonPlan struct {
	SQL         string  `json:"sql"`
	Assumptions string  `json:"assumptions,omitempty"`
	SafetyNotes string  `json:"safety_notes,omitempty"`
	Confidence  float64 `json:"confidence"`
}

func (r *JSONRenderer) RenderAsk(o orchestrator.AskOutcome) {
	out := jsonAskOutput{Status: string(o.Status), Reason: o.Reason}
	if o.Plan != nil {
		out.Plan = &jsonPlan{
			SQL:         o.Plan.SQL,
			Assumptions: o.Plan.Assumptions,
			SafetyNotes: o.Plan.SafetyNotes,
			Confidence:  o.Plan.Confidence,
		}
	}
	if o.RunOutcome != nil {
		out.Run = &jsonRunOutput{
			Status:         string(o.RunOutcome.Status),
			Classification: string(o.RunOutcome.Classification),
			Kind:           string(o.RunOutcome.Kind),
			RewrittenSQL:   o.RunOutcome.RewrittenSQL,
			Warnings:       o.RunOutcome.Warnings,
			Blockers:       o.RunOutcome.Blockers,
			Reason:         o.RunOutcome.Reason,
			Columns:        o.RunOutcome.Columns,
			Rows:           o.RunOutcome.Rows,
			Truncated:      o.RunOutcome.Truncated,
			ExecMs:         o.RunOutcome.ExecMs,
		}
	}
	r.encode(out)
}

type jsonProfile struct {
	Name           string `json:"name"`
	Dialect        string `json:"dialect"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Database       string `json:"database"`
	User           string `json:"user"`
	Mode           string `json:"mode"`
	AllowWrite     bool   `json:"allow_write"`
	AllowDangerous bool   `json:"allow_dangerous"`
	Active         bool   `json:"active"`
}

func (r *JSONRenderer) RenderProfiles(profiles []store.Profile, active string) {
	out := make([]jsonProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, jsonProfile{
			Name:           p.Name,
			Dialect:        p.Dialect,
			Host:           p.Host,
			Port:           p.Port,
			Database:       p.Database,
			User:           p.User,
			Mode:           p.Mode,
			AllowWrite:     p.AllowWrite,
			AllowDangerous: p.AllowDangerous,
			Active:         p.ID == active,
		})
	}
	r.encode(out)
}

type jsonHistoryEntry struct {
	ID       string `json:"id"`
	AskedAt  string `json:"asked_at"`
	Question string `json:"question,omitempty"`
	Mode     string `json:"mode"`
	SQL      string `json:"sql,omitempty"`
	Status   string `json:"status,omitempty"`
}

func (r *JSONRenderer) RenderHistory(entries []store.HistoryEntry) {
	out := make([]jsonHistoryEntry, 0, len(entries))
	for _, e := range entries {
		h := jsonHistoryEntry{
			ID:       e.Query.ID,
			AskedAt:  e.Query.AskedAt,
			Question: e.Query.Question,
			Mode:     e.Query.Mode,
		}
		if e.Generation != nil {
			h.SQL = e.Generation.SQL
		}
		if e.Run != nil {
			h.Status = e.Run.Status
			if h.SQL == "" {
				h.SQL = e.Run.RewrittenSQL
			}
		}
		out = append(out, h)
	}
	r.encode(out)
}

type jsonAuditEvent struct {
	At      string         `json:"at"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (r *JSONRenderer) RenderAudit(events []store.AuditEventRecord) {
	out := make([]jsonAuditEvent, 0, len(events))
	for _, e := range events {
		out = append(out, jsonAuditEvent{At: e.At, Type: e.Type, Payload: e.Payload})
	}
	r.encode(out)
}

func (r *JSONRenderer) encode(v any) {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(r.w, `{"error":%q}`+"\n", err.Error())
	}
}
