package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/openquery/openquery/internal/orchestrator"
	"github.com/openquery/openquery/internal/preview"
	"github.com/openquery/openquery/internal/store"
)

// TextRenderer produces Lip Gloss styled terminal output.
type TextRenderer struct {
	w io.Writer
}

const textWidth = 72

func (r *TextRenderer) RenderRun(o orchestrator.RunOutcome) {
	fmt.Fprintln(r.w)

	header := TitleStyle.Render(fmt.Sprintf("openquery — %s", strings.ToUpper(string(o.Status))))
	var lines []string
	lines = append(lines, r.labelValue("Classification:", string(o.Classification)))
	lines = append(lines, r.labelValue("Kind:", string(o.Kind)))

	style, icon := statusStyle(o.Status)
	box := style.Width(textWidth).Render(header + "\n" + strings.Join(lines, "\n"))
	fmt.Fprintln(r.w, box)

	if o.RewrittenSQL != "" {
		sqlBox := BoxStyle.Width(textWidth).Render(TitleStyle.Render("SQL") + "\n" + CodeStyle.Render(o.RewrittenSQL))
		fmt.Fprintln(r.w, sqlBox)
	}

	if o.Reason != "" {
		reasonBox := BlockBoxStyle.Width(textWidth).Render(
			BlockText.Render(IconBlock+" "+o.Reason) + suffixFix(o.SuggestedFix))
		fmt.Fprintln(r.w, reasonBox)
	}

	if len(o.Blockers) > 0 {
		var b strings.Builder
		b.WriteString(BlockText.Render(IconBlock + " EXPLAIN gate blocked"))
		for _, blocker := range o.Blockers {
			b.WriteString("\n" + blocker)
		}
		fmt.Fprintln(r.w, BlockBoxStyle.Width(textWidth).Render(b.String()))
	}

	renderWarnings(r.w, o.Warnings)

	if o.Preview != nil {
		r.RenderPreview(*o.Preview)
	}

	if len(o.Columns) > 0 {
		r.renderRows(o.Columns, o.Rows, o.Truncated)
	}

	fmt.Fprintln(r.w, MutedText.Render(fmt.Sprintf("%s exec_ms=%d", icon, o.ExecMs)))
	fmt.Fprintln(r.w)
}

func (r *TextRenderer) renderRows(cols []string, rows [][]any, truncated bool) {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Rows") + "\n")
	b.WriteString(strings.Join(cols, " | "))
	for _, row := range rows {
		var cells []string
		for _, v := range row {
			cells = append(cells, fmt.Sprintf("%v", v))
		}
		b.WriteString("\n" + strings.Join(cells, " | "))
	}
	if truncated {
		b.WriteString("\n" + CautionText.Render("... truncated"))
	}
	fmt.Fprintln(r.w, BoxStyle.Width(textWidth).Render(b.String()))
}

func (r *TextRenderer) RenderPreview(p preview.Preview) {
	var lines []string
	lines = append(lines, r.labelValue("Classification:", string(p.Classification)))
	lines = append(lines, r.labelValue("Kind:", string(p.Kind)))
	lines = append(lines, r.labelValue("Tables:", strings.Join(p.ImpactedTables, ", ")))
	lines = append(lines, r.labelValue("Has WHERE:", fmt.Sprintf("%v", p.HasWhereClause)))
	if p.EstimatedRowsAffected != nil {
		lines = append(lines, r.labelValue("Est. rows affected:", fmt.Sprintf("%d", *p.EstimatedRowsAffected)))
	}

	style := CautionBoxStyle
	if p.Classification == "dangerous" {
		style = BlockBoxStyle
	}
	header := TitleStyle.Render("Write Preview") + "\n" + p.Summary
	box := style.Width(textWidth).Render(header + "\n" + strings.Join(lines, "\n"))
	fmt.Fprintln(r.w, box)

	renderWarnings(r.w, p.Warnings)

	var confirm strings.Builder
	confirm.WriteString(CautionText.Render("Type to confirm: ") + p.ConfirmationPhrase)
	if p.RequiresDangerousConfirmation {
		confirm.WriteString("\n" + BlockText.Render("Type to confirm (destructive): ") + p.DangerousConfirmationPhrase)
	}
	fmt.Fprintln(r.w, BoxStyle.Width(textWidth).Render(confirm.String()))
}

func (r *TextRenderer) RenderAsk(o orchestrator.AskOutcome) {
	fmt.Fprintln(r.w)
	header := TitleStyle.Render(fmt.Sprintf("openquery ask — %s", strings.ToUpper(string(o.Status))))
	fmt.Fprintln(r.w, BoxStyle.Width(textWidth).Render(header))

	if o.Plan != nil {
		var lines []string
		lines = append(lines, CodeStyle.Render(o.Plan.SQL))
		if o.Plan.Assumptions != "" {
			lines = append(lines, r.labelValue("Assumptions:", o.Plan.Assumptions))
		}
		if o.Plan.SafetyNotes != "" {
			lines = append(lines, r.labelValue("Safety notes:", o.Plan.SafetyNotes))
		}
		lines = append(lines, r.labelValue("Confidence:", fmt.Sprintf("%.2f", o.Plan.Confidence)))
		fmt.Fprintln(r.w, BoxStyle.Width(textWidth).Render(TitleStyle.Render("Generated Plan")+"\n"+strings.Join(lines, "\n")))
	}

	if o.Reason != "" {
		fmt.Fprintln(r.w, CautionBoxStyle.Width(textWidth).Render(CautionText.Render(IconCaution+" "+o.Reason)))
	}

	if o.RunOutcome != nil {
		r.RenderRun(*o.RunOutcome)
	}
	fmt.Fprintln(r.w)
}

func (r *TextRenderer) RenderProfiles(profiles []store.Profile, active string) {
	fmt.Fprintln(r.w)
	if len(profiles) == 0 {
		fmt.Fprintln(r.w, MutedText.Render("No profiles configured."))
		return
	}
	var lines []string
	for _, p := range profiles {
		marker := "  "
		if p.ID == active {
			marker = AllowText.Render("* ")
		}
		power := MutedText.Render("power: off")
		if p.AllowWrite {
			power = CautionText.Render("power: write")
			if p.AllowDangerous {
				power = BlockText.Render("power: write+dangerous")
			}
		}
		lines = append(lines, fmt.Sprintf("%s%s  %s@%s:%d/%s  [%s]  %s",
			marker, ValueStyle.Render(p.Name), p.User, p.Host, p.Port, p.Database, p.Mode, power))
	}
	fmt.Fprintln(r.w, BoxStyle.Width(textWidth).Render(TitleStyle.Render("Profiles")+"\n"+strings.Join(lines, "\n")))
}

func (r *TextRenderer) RenderHistory(entries []store.HistoryEntry) {
	fmt.Fprintln(r.w)
	if len(entries) == 0 {
		fmt.Fprintln(r.w, MutedText.Render("No history recorded yet."))
		return
	}
	var lines []string
	for _, e := range entries {
		status := "-"
		if e.Run != nil {
			status = e.Run.Status
		}
		question := e.Query.Question
		if question == "" {
			question = MutedText.Render("(direct SQL)")
		}
		lines = append(lines, fmt.Sprintf("%s  %s  [%s]  %s", e.Query.AskedAt, e.Query.ID[:8], status, question))
	}
	fmt.Fprintln(r.w, BoxStyle.Width(textWidth).Render(TitleStyle.Render("History")+"\n"+strings.Join(lines, "\n")))
}

func (r *TextRenderer) RenderAudit(events []store.AuditEventRecord) {
	fmt.Fprintln(r.w)
	if len(events) == 0 {
		fmt.Fprintln(r.w, MutedText.Render("No audit events recorded yet."))
		return
	}
	var lines []string
	for _, e := range events {
		style := MutedText
		if strings.Contains(e.Type, "blocked") || strings.Contains(e.Type, "failed") {
			style = BlockText
		} else if strings.Contains(e.Type, "executed") || strings.Contains(e.Type, "confirmed") {
			style = CautionText
		}
		lines = append(lines, fmt.Sprintf("%s  %s", e.At, style.Render(e.Type)))
	}
	fmt.Fprintln(r.w, BoxStyle.Width(textWidth).Render(TitleStyle.Render("Audit Trail")+"\n"+strings.Join(lines, "\n")))
}

// helpers

func (r *TextRenderer) labelValue(label, value string) string {
	return LabelStyle.Render(label) + " " + ValueStyle.Render(value)
}

func statusStyle(status orchestrator.Status) (lipgloss.Style, string) {
	switch status {
	case orchestrator.StatusOK:
		return AllowBoxStyle, IconAllow
	case orchestrator.StatusBlocked:
		return BlockBoxStyle, IconBlock
	case orchestrator.StatusError:
		return BlockBoxStyle, IconBlock
	default:
		return CautionBoxStyle, IconInfo
	}
}

func renderWarnings(w io.Writer, warnings []string) {
	for _, warning := range warnings {
		fmt.Fprintln(w, CautionBoxStyle.Width(textWidth).Render(CautionText.Render(IconCaution+" ")+warning))
	}
}

func suffixFix(fix string) string {
	if fix == "" {
		return ""
	}
	return "\n" + MutedText.Render("Suggested fix: "+fix)
}
