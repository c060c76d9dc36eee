package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/openquery/openquery/internal/orchestrator"
	"github.com/openquery/openquery/internal/preview"
	"github.com/openquery/openquery/internal/store"
)

// PlainRenderer emits unstyled, grep-friendly text — no colors, no boxes.
type PlainRenderer struct {
	w io.Writer
}

func (r *PlainRenderer) RenderRun(o orchestrator.RunOutcome) {
	fmt.Fprintf(r.w, "status: %s\n", o.Status)
	if o.Classification != "" {
		fmt.Fprintf(r.w, "classification: %s\n", o.Classification)
		fmt.Fprintf(r.w, "kind: %s\n", o.Kind)
	}
	if o.RewrittenSQL != "" {
		fmt.Fprintf(r.w, "sql: %s\n", o.RewrittenSQL)
	}
	if o.Reason != "" {
		fmt.Fprintf(r.w, "reason: %s\n", o.Reason)
	}
	if o.SuggestedFix != "" {
		fmt.Fprintf(r.w, "suggested_fix: %s\n", o.SuggestedFix)
	}
	for _, b := range o.Blockers {
		fmt.Fprintf(r.w, "blocker: %s\n", b)
	}
	for _, w := range o.Warnings {
		fmt.Fprintf(r.w, "warning: %s\n", w)
	}
	if o.Preview != nil {
		r.RenderPreview(*o.Preview)
	}
	if len(o.Columns) > 0 {
		fmt.Fprintln(r.w, strings.Join(o.Columns, "\t"))
		for _, row := range o.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = fmt.Sprintf("%v", v)
			}
			fmt.Fprintln(r.w, strings.Join(cells, "\t"))
		}
		if o.Truncated {
			fmt.Fprintln(r.w, "(truncated)")
		}
	}
	fmt.Fprintf(r.w, "exec_ms: %d\n", o.ExecMs)
}

func (r *PlainRenderer) RenderPreview(p preview.Preview) {
	fmt.Fprintf(r.w, "preview: %s\n", p.Summary)
	fmt.Fprintf(r.w, "tables: %s\n", strings.Join(p.ImpactedTables, ", "))
	fmt.Fprintf(r.w, "has_where: %v\n", p.HasWhereClause)
	if p.EstimatedRowsAffected != nil {
		fmt.Fprintf(r.w, "estimated_rows_affected: %d\n", *p.EstimatedRowsAffected)
	}
	for _, w := range p.Warnings {
		fmt.Fprintf(r.w, "warning: %s\n", w)
	}
	fmt.Fprintf(r.w, "confirmation_phrase: %s\n", p.ConfirmationPhrase)
	if p.RequiresDangerousConfirmation {
		fmt.Fprintf(r.w, "dangerous_confirmation_phrase: %s\n", p.DangerousConfirmationPhrase)
	}
}

func (r *PlainRenderer) RenderAsk(o orchestrator.AskOutcome) {
	fmt.Fprintf(r.w, "status: %s\n", o.Status)
	if o.Plan != nil {
		fmt.Fprintf(r.w, "sql: %s\n", o.Plan.SQL)
		if o.Plan.Assumptions != "" {
			fmt.Fprintf(r.w, "assumptions: %s\n", o.Plan.Assumptions)
		}
		if o.Plan.SafetyNotes != "" {
			fmt.Fprintf(r.w, "safety_notes: %s\n", o.Plan.SafetyNotes)
		}
		fmt.Fprintf(r.w, "confidence: %.2f\n", o.Plan.Confidence)
	}
	if o.Reason != "" {
		fmt.Fprintf(r.w, "reason: %s\n", o.Reason)
	}
	if o.RunOutcome != nil {
		r.RenderRun(*o.RunOutcome)
	}
}

func (r *PlainRenderer) RenderProfiles(profiles []store.Profile, active string) {
	for _, p := range profiles {
		marker := " "
		if p.ID == active {
			marker = "*"
		}
		power := "off"
		if p.AllowWrite {
			power = "write"
			if p.AllowDangerous {
				power = "write+dangerous"
			}
		}
		fmt.Fprintf(r.w, "%s %s\t%s@%s:%d/%s\t%s\t%s\n", marker, p.Name, p.User, p.Host, p.Port, p.Database, p.Mode, power)
	}
}

func (r *PlainRenderer) RenderHistory(entries []store.HistoryEntry) {
	for _, e := range entries {
		status := "-"
		if e.Run != nil {
			status = e.Run.Status
		}
		question := e.Query.Question
		if question == "" {
			question = "(direct SQL)"
		}
		fmt.Fprintf(r.w, "%s\t%s\t%s\t%s\n", e.Query.AskedAt, e.Query.ID, status, question)
	}
}

func (r *PlainRenderer) RenderAudit(events []store.AuditEventRecord) {
	for _, e := range events {
		fmt.Fprintf(r.w, "%s\t%s\n", e.At, e.Type)
	}
}
