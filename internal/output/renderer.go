// Package output renders the guarded-execution pipeline's outcomes — run
// results, write previews, ask-and-maybe-run plans, profile lists, history,
// and audit trails — in one of four formats selected by the CLI's --format
// flag, following the teacher's format-switched renderer shape.
package output

import (
	"io"

	"github.com/openquery/openquery/internal/orchestrator"
	"github.com/openquery/openquery/internal/preview"
	"github.com/openquery/openquery/internal/store"
)

// Renderer is the output interface every format implements.
type Renderer interface {
	RenderRun(o orchestrator.RunOutcome)
	RenderPreview(p preview.Preview)
	RenderAsk(o orchestrator.AskOutcome)
	RenderProfiles(profiles []store.Profile, active string)
	RenderHistory(entries []store.HistoryEntry)
	RenderAudit(events []store.AuditEventRecord)
}

// NewRenderer creates a renderer for the given format, defaulting to text.
func NewRenderer(format string, w io.Writer) Renderer {
	switch format {
	case "json":
		return &JSONRenderer{w: w}
	case "markdown":
		return &MarkdownRenderer{w: w}
	case "plain":
		return &PlainRenderer{w: w}
	default:
		return &TextRenderer{w: w}
	}
}
