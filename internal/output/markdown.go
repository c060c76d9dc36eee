package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/openquery/openquery/internal/orchestrator"
	"github.com/openquery/openquery/internal/preview"
	"github.com/openquery/openquery/internal/store"
)

// MarkdownRenderer emits GitHub-flavored Markdown, suited to piping into
// a report or a chat message.
type MarkdownRenderer struct {
	w io.Writer
}

func (r *MarkdownRenderer) RenderRun(o orchestrator.RunOutcome) {
	fmt.Fprintf(r.w, "## Run: %s\n\n", o.Status)
	if o.Classification != "" {
		fmt.Fprintf(r.w, "- **Classification:** %s\n- **Kind:** %s\n", o.Classification, o.Kind)
	}
	if o.RewrittenSQL != "" {
		fmt.Fprintf(r.w, "\n```sql\n%s\n```\n", o.RewrittenSQL)
	}
	if o.Reason != "" {
		fmt.Fprintf(r.w, "\n> **Blocked:** %s\n", o.Reason)
		if o.SuggestedFix != "" {
			fmt.Fprintf(r.w, ">\n> Suggested fix: %s\n", o.SuggestedFix)
		}
	}
	for _, b := range o.Blockers {
		fmt.Fprintf(r.w, "- %s\n", b)
	}
	for _, w := range o.Warnings {
		fmt.Fprintf(r.w, "- ⚠ %s\n", w)
	}
	if o.Preview != nil {
		r.RenderPreview(*o.Preview)
	}
	if len(o.Columns) > 0 {
		fmt.Fprintf(r.w, "\n| %s |\n", strings.Join(o.Columns, " | "))
		fmt.Fprintf(r.w, "|%s|\n", strings.Repeat(" --- |", len(o.Columns)))
		for _, row := range o.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = fmt.Sprintf("%v", v)
			}
			fmt.Fprintf(r.w, "| %s |\n", strings.Join(cells, " | "))
		}
		if o.Truncated {
			fmt.Fprintln(r.w, "\n_truncated_")
		}
	}
	fmt.Fprintf(r.w, "\n_exec_ms=%d_\n\n", o.ExecMs)
}

func (r *MarkdownRenderer) RenderPreview(p preview.Preview) {
	fmt.Fprintf(r.w, "\n### Write Preview\n\n%s\n\n", p.Summary)
	fmt.Fprintf(r.w, "- **Tables:** %s\n- **Has WHERE:** %v\n", strings.Join(p.ImpactedTables, ", "), p.HasWhereClause)
	if p.EstimatedRowsAffected != nil {
		fmt.Fprintf(r.w, "- **Est. rows affected:** %d\n", *p.EstimatedRowsAffected)
	}
	for _, w := range p.Warnings {
		fmt.Fprintf(r.w, "- ⚠ %s\n", w)
	}
	fmt.Fprintf(r.w, "\nType to confirm: `%s`\n", p.ConfirmationPhrase)
	if p.RequiresDangerousConfirmation {
		fmt.Fprintf(r.w, "\nType to confirm (destructive): `%s`\n", p.DangerousConfirmationPhrase)
	}
}

func (r *MarkdownRenderer) RenderAsk(o orchestrator.AskOutcome) {
	fmt.Fprintf(r.w, "## Ask: %s\n\n", o.Status)
	if o.Plan != nil {
		fmt.Fprintf(r.w, "```sql\n%s\n```\n\n", o.Plan.SQL)
		if o.Plan.Assumptions != "" {
			fmt.Fprintf(r.w, "- **Assumptions:** %s\n", o.Plan.Assumptions)
		}
		if o.Plan.SafetyNotes != "" {
			fmt.Fprintf(r.w, "- **Safety notes:** %s\n", o.Plan.SafetyNotes)
		}
		fmt.Fprintf(r.w, "- **Confidence:** %.2f\n", o.Plan.Confidence)
	}
	if o.Reason != "" {
		fmt.Fprintf(r.w, "\n> %s\n", o.Reason)
	}
	if o.RunOutcome != nil {
		r.RenderRun(*o.RunOutcome)
	}
}

func (r *MarkdownRenderer) RenderProfiles(profiles []store.Profile, active string) {
	fmt.Fprintln(r.w, "## Profiles")
	fmt.Fprintln(r.w, "\n| Active | Name | Connection | Mode | Power |")
	fmt.Fprintln(r.w, "| --- | --- | --- | --- | --- |")
	for _, p := range profiles {
		marker := ""
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
		fmt.Fprintf(r.w, "| %s | %s | %s@%s:%d/%s | %s | %s |\n",
			marker, p.Name, p.User, p.Host, p.Port, p.Database, p.Mode, power)
	}
}

func (r *MarkdownRenderer) RenderHistory(entries []store.HistoryEntry) {
	fmt.Fprintln(r.w, "## History")
	fmt.Fprintln(r.w, "\n| Asked At | Question | Status |")
	fmt.Fprintln(r.w, "| --- | --- | --- |")
	for _, e := range entries {
		status := "-"
		if e.Run != nil {
			status = e.Run.Status
		}
		question := e.Query.Question
		if question == "" {
			question = "_(direct SQL)_"
		}
		fmt.Fprintf(r.w, "| %s | %s | %s |\n", e.Query.AskedAt, question, status)
	}
}

func (r *MarkdownRenderer) RenderAudit(events []store.AuditEventRecord) {
	fmt.Fprintln(r.w, "## Audit Trail")
	fmt.Fprintln(r.w, "\n| At | Type |")
	fmt.Fprintln(r.w, "| --- | --- |")
	for _, e := range events {
		fmt.Fprintf(r.w, "| %s | %s |\n", e.At, e.Type)
	}
}
