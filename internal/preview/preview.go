// Package preview builds the structured write preview (C5): a
// side-effect-free summary of a write or dangerous statement, produced
// before the caller is asked to confirm.
package preview

import (
	"context"
	"fmt"

	"github.com/openquery/openquery/internal/confirm"
	"github.com/openquery/openquery/internal/sqlast"
)

// RowEstimator runs the best-effort EXPLAIN probe backing the preview's
// row-affected estimate. *pgsql.Conn satisfies it.
type RowEstimator interface {
	ExplainJSON(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
}

// Preview is the output shape from spec §4.5.
type Preview struct {
	Classification sqlast.Classification
	Kind           sqlast.Kind
	ImpactedTables []string
	HasWhereClause bool
	Summary        string
	Warnings       []string

	EstimatedRowsAffected *int64
	ExplainPlan           []map[string]any

	RequiresConfirmation          bool
	ConfirmationPhrase            string
	RequiresDangerousConfirmation bool
	DangerousConfirmationPhrase   string
}

// ErrNotAWriteStatement is returned when Build is called on a read
// statement, per spec §4.5 step 1's "caller error".
var ErrNotAWriteStatement = fmt.Errorf("statement is not a write or dangerous statement")

// Build constructs a Preview for a parsed write/dangerous statement.
// params are the statement's bind values, forwarded into the EXPLAIN
// probe. conn may be nil, in which case row estimation is skipped with a
// warning (used by callers previewing against a profile with no live
// connection yet).
func Build(ctx context.Context, conn RowEstimator, parsed *sqlast.ParsedStatement, params []any, customPhrase string) (Preview, error) {
	class := parsed.Classification()
	if class != sqlast.ClassWrite && class != sqlast.ClassDangerous {
		return Preview{}, ErrNotAWriteStatement
	}

	p := Preview{
		Classification: class,
		Kind:           parsed.Kind,
		ImpactedTables: parsed.ImpactedTables(),
		HasWhereClause: parsed.HasWhereClause(),
	}

	switch parsed.Kind {
	case sqlast.KindInsert, sqlast.KindUpdate, sqlast.KindDelete:
		if conn == nil {
			p.Warnings = append(p.Warnings, "no database connection available; row estimate skipped")
		} else {
			rows, plan, err := estimateAffectedRows(ctx, conn, parsed.NormalizedSQL, params)
			if err != nil {
				p.Warnings = append(p.Warnings, fmt.Sprintf("could not estimate affected rows: %s", err))
			} else {
				p.EstimatedRowsAffected = &rows
				p.ExplainPlan = plan
			}
		}
	default:
		p.Warnings = append(p.Warnings, "schema-modifying statement")
	}

	if (parsed.Kind == sqlast.KindUpdate || parsed.Kind == sqlast.KindDelete) && !p.HasWhereClause {
		p.Warnings = append(p.Warnings, "affects ALL rows")
	}

	if class == sqlast.ClassDangerous {
		p.Warnings = append(p.Warnings, "may cause irreversible data loss")
	}

	p.Summary = summarize(p)

	p.RequiresConfirmation = true
	p.ConfirmationPhrase = confirm.WritePhrase(p.HasWhereClause, string(parsed.Kind), customPhrase)

	if class == sqlast.ClassDangerous {
		p.RequiresDangerousConfirmation = true
		p.DangerousConfirmationPhrase = confirm.PhraseDangerous
	}

	return p, nil
}

// estimateAffectedRows runs EXPLAIN on the DML statement inside a
// transaction that is rolled back unconditionally, per spec §4.5 step 2.
func estimateAffectedRows(ctx context.Context, conn RowEstimator, sql string, params []any) (int64, []map[string]any, error) {
	plan, err := conn.ExplainJSON(ctx, sql, params...)
	if err != nil {
		return 0, nil, err
	}
	if len(plan) == 0 {
		return 0, plan, fmt.Errorf("EXPLAIN returned an empty plan")
	}
	root, ok := plan[0]["Plan"].(map[string]any)
	if !ok {
		return 0, plan, fmt.Errorf("EXPLAIN plan did not include a root node")
	}
	rows, _ := root["Plan Rows"].(float64)
	return int64(rows), plan, nil
}

func summarize(p Preview) string {
	tables := "no tables"
	if len(p.ImpactedTables) > 0 {
		tables = fmt.Sprintf("%d table(s): %v", len(p.ImpactedTables), p.ImpactedTables)
	}
	return fmt.Sprintf("%s statement affecting %s", p.Kind, tables)
}
