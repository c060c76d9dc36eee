// Package explain implements the EXPLAIN gate (C4): a side-effect-free plan
// probe that parses PostgreSQL's JSON plan output and blocks reads whose
// estimated rows or cost exceed configured thresholds.
package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/openquery/openquery/internal/policy"
)

// PlanProber is the one database operation this package needs: a probe
// that runs EXPLAIN (FORMAT JSON) inside a rolled-back transaction.
// *pgsql.Conn satisfies it; tests supply fakes returning canned plans.
type PlanProber interface {
	ExplainJSON(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
}

// Summary is the parsed plan estimate from spec §3.
type Summary struct {
	EstimatedRows int64
	EstimatedCost float64
	HasSeqScan    bool
	Warnings      []string
}

// Evaluation is the gate's allow/deny decision for a given Summary.
type Evaluation struct {
	Allowed  bool
	Warnings []string
	Blockers []string
}

// Probe runs EXPLAIN (FORMAT JSON) on sql via conn and parses the plan tree.
// Malformed plans yield a zeroed Summary plus a warning and do not block;
// any probe exception becomes a blocker string the caller surfaces via
// Evaluate, per spec §4.4's "any plan-probe exception is surfaced as a
// blocker".
func Probe(ctx context.Context, conn PlanProber, sql string, args ...any) (Summary, error) {
	plan, err := conn.ExplainJSON(ctx, sql, args...)
	if err != nil {
		return Summary{}, fmt.Errorf("EXPLAIN failed: %w", err)
	}
	return parsePlan(plan), nil
}

func parsePlan(plan []map[string]any) Summary {
	if len(plan) == 0 {
		return Summary{Warnings: []string{"EXPLAIN returned an empty plan"}}
	}

	root, ok := plan[0]["Plan"].(map[string]any)
	if !ok {
		return Summary{Warnings: []string{"EXPLAIN plan did not include a root node"}}
	}

	rows := asInt64(root["Plan Rows"])
	cost := asFloat64(root["Total Cost"])

	hasSeqScan, seqScanRelations := scanForSeqScan(root)

	s := Summary{
		EstimatedRows: rows,
		EstimatedCost: cost,
		HasSeqScan:    hasSeqScan,
	}
	if hasSeqScan && len(seqScanRelations) > 0 {
		s.Warnings = append(s.Warnings, fmt.Sprintf("sequential scan on: %s", strings.Join(seqScanRelations, ", ")))
	}
	return s
}

func scanForSeqScan(node map[string]any) (bool, []string) {
	found := false
	var relations []string
	var walk func(n map[string]any)
	walk = func(n map[string]any) {
		if n == nil {
			return
		}
		if nodeType, _ := n["Node Type"].(string); strings.Contains(nodeType, "Seq Scan") {
			found = true
			if rel, ok := n["Relation Name"].(string); ok && rel != "" {
				relations = append(relations, rel)
			}
		}
		if children, ok := n["Plans"].([]any); ok {
			for _, c := range children {
				if cm, ok := c.(map[string]any); ok {
					walk(cm)
				}
			}
		}
	}
	walk(node)
	return found, relations
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

// Evaluate applies the mode's thresholds to a Summary per spec §4.4:
// estimated_rows/cost over threshold are blockers, has_seq_scan is warning
// only, and a probe failure (passed in as probeErr) is itself a blocker.
func Evaluate(mode policy.ModeConfig, summary Summary, probeErr error) Evaluation {
	if probeErr != nil {
		return Evaluation{
			Allowed:  false,
			Blockers: []string{fmt.Sprintf("EXPLAIN failed: %s", probeErr)},
		}
	}

	eval := Evaluation{Allowed: true, Warnings: append([]string(nil), summary.Warnings...)}

	if summary.EstimatedRows > mode.MaxEstimatedRows {
		eval.Allowed = false
		eval.Blockers = append(eval.Blockers, fmt.Sprintf("estimated rows (%d) exceed threshold (%d)", summary.EstimatedRows, mode.MaxEstimatedRows))
	}
	if summary.EstimatedCost > mode.MaxEstimatedCost {
		eval.Allowed = false
		eval.Blockers = append(eval.Blockers, fmt.Sprintf("estimated cost (%.0f) exceeds threshold (%.0f)", summary.EstimatedCost, mode.MaxEstimatedCost))
	}
	if summary.HasSeqScan {
		eval.Warnings = append(eval.Warnings, "sequential scan detected")
	}

	return eval
}

// Gate runs Probe followed by Evaluate in one call, the shape used by the
// orchestrator's read path.
func Gate(ctx context.Context, conn PlanProber, mode policy.ModeConfig, sql string, args ...any) (Summary, Evaluation) {
	summary, err := Probe(ctx, conn, sql, args...)
	return summary, Evaluate(mode, summary, err)
}
