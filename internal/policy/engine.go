package policy

import (
	"fmt"
	"strings"

	"github.com/openquery/openquery/internal/rewrite"
	"github.com/openquery/openquery/internal/sqlast"
)

// Result is the validation result from spec §3: allowed ⇒ rewritten_sql ≠ ∅;
// ¬allowed ⇒ rewritten_sql == ∅ ∧ reason ≠ ∅.
type Result struct {
	Allowed        bool
	RewrittenSQL   string
	Warnings       []string
	Reason         string
	Details        string
	SuggestedFix   string
	Classification sqlast.Classification
	Kind           sqlast.Kind
	ImpactedTables []string
	HasWhereClause bool
}

// Engine evaluates statements against a profile's Config and the active
// ModeConfig.
type Engine struct {
	Config Config
	Mode   ModeConfig
}

// New builds an Engine from a profile's policy config and mode-dependent
// thresholds, per spec §4.8 step 2.
func New(cfg Config, mode ModeConfig) *Engine {
	return &Engine{Config: cfg, Mode: mode}
}

// Validate runs rule evaluation in order (spec §4.3) and, for allowed reads,
// applies ensure_limit.
func (e *Engine) Validate(parsed *sqlast.ParsedStatement) Result {
	class := parsed.Classification()
	kind := parsed.Kind
	tables := parsed.ImpactedTables()
	hasWhere := parsed.HasWhereClause()

	res := Result{
		Classification: class,
		Kind:           kind,
		ImpactedTables: tables,
		HasWhereClause: hasWhere,
	}

	// Rule 1: single statement.
	if parsed.StatementCount > 1 {
		res.Reason = "Only a single statement is allowed; multiple statements were found"
		res.SuggestedFix = "Split the input into separate single-statement calls"
		return res
	}

	// Rule 2: kind permission.
	switch class {
	case sqlast.ClassRead:
		// always allowed at this rule
	case sqlast.ClassWrite:
		if !e.Config.AllowWrite {
			res.Reason = "Write statements require POWER mode (allow_write)"
			res.SuggestedFix = "Enable POWER mode for this profile: allow_write=true"
			return res
		}
	case sqlast.ClassDangerous:
		if !e.Config.AllowWrite || !e.Config.AllowDestructive {
			res.Reason = "Dangerous statements require POWER mode with destructive operations enabled"
			res.SuggestedFix = "Enable POWER mode with allow_dangerous=true for this profile"
			return res
		}
	default:
		res.Reason = "Unknown statement kind is not allowed"
		return res
	}

	if kind == sqlast.KindUnknown && !parsed.IsGrantOrRevoke() {
		res.Reason = "Unknown statement kind is not allowed"
		return res
	}

	// Rule 3: select-star.
	if kind == sqlast.KindSelect && e.Mode.DisallowSelectStar && parsed.ContainsSelectStar() {
		res.Reason = "SELECT * is not allowed in this mode; specify columns explicitly"
		res.SuggestedFix = "List the columns you need instead of using SELECT *, or switch to standard mode"
		return res
	}

	// Rule 4: join cap.
	if kind == sqlast.KindSelect {
		if joins := parsed.JoinCount(); joins > e.Mode.MaxJoins {
			res.Reason = fmt.Sprintf("Query contains %d joins, exceeding the max_joins limit of %d", joins, e.Mode.MaxJoins)
			res.SuggestedFix = "Reduce the number of joined tables or switch to a mode with a higher max_joins limit"
			return res
		}
	}

	// Rule 5: blocked tables.
	if blocked := firstBlockedTable(tables, e.Mode.BlockedTables); blocked != "" {
		res.Reason = fmt.Sprintf("Table %q is blocked by policy", blocked)
		return res
	}

	// Rule 6: dangerous functions.
	if fn := firstDangerousFunction(parsed); fn != "" {
		res.Reason = fmt.Sprintf("Statement calls %q, which is blocked by policy", fn)
		return res
	}

	// All rules passed.
	res.Allowed = true
	res.RewrittenSQL = parsed.NormalizedSQL

	if kind == sqlast.KindSelect && e.Mode.EnforceLimit {
		rw := rewrite.EnsureLimit(parsed.NormalizedSQL, e.Mode.DefaultLimit, e.Mode.MaxLimit)
		res.RewrittenSQL = rw.SQL
		if rw.LimitApplied {
			res.Warnings = append(res.Warnings, fmt.Sprintf("No LIMIT specified; applied default LIMIT %d", e.Mode.DefaultLimit))
		}
		if rw.Clamped {
			orig := int64(0)
			if rw.OriginalLimit != nil {
				orig = *rw.OriginalLimit
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("LIMIT %d exceeds max_limit %d; clamped to %d", orig, e.Mode.MaxLimit, e.Mode.MaxLimit))
		}
	}

	return res
}

func firstBlockedTable(tables, blocked []string) string {
	if len(blocked) == 0 {
		return ""
	}
	blockedSet := make(map[string]struct{}, len(blocked))
	for _, b := range blocked {
		blockedSet[strings.ToLower(b)] = struct{}{}
	}
	for _, t := range tables {
		name := strings.ToLower(t)
		if _, ok := blockedSet[name]; ok {
			return t
		}
		// also match the unqualified suffix (schema.table vs table)
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			if _, ok := blockedSet[name[idx+1:]]; ok {
				return t
			}
		}
	}
	return ""
}

func firstDangerousFunction(parsed *sqlast.ParsedStatement) string {
	found := ""
	parsed.WalkFuncCalls(func(name string) {
		if found != "" {
			return
		}
		if IsDangerousFunction(name) {
			found = name
		}
	})
	return found
}
