// Package sqlast parses a single PostgreSQL statement and classifies it for
// the guarded-execution pipeline. It is the only package that touches
// pg_query_go directly; everything downstream works off ParsedStatement.
package sqlast

import (
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Kind is the statement kind extracted from the AST (or the GRANT/REVOKE prefilter).
type Kind string

const (
	KindSelect   Kind = "select"
	KindInsert   Kind = "insert"
	KindUpdate   Kind = "update"
	KindDelete   Kind = "delete"
	KindCreate   Kind = "create"
	KindAlter    Kind = "alter"
	KindDrop     Kind = "drop"
	KindTruncate Kind = "truncate"
	KindUnknown  Kind = "unknown"
)

// Classification is the coarse read/write/dangerous bucket derived from Kind.
type Classification string

const (
	ClassRead      Classification = "read"
	ClassWrite     Classification = "write"
	ClassDangerous Classification = "dangerous"
)

// reGrantRevoke matches a leading GRANT or REVOKE, word-boundaried and
// case-insensitive. Parsers commonly lack coverage for these statements (or,
// for future dialect backends, may not parse them at all), so the prefilter
// runs before the real parser ever sees the text.
var reGrantRevoke = regexp.MustCompile(`(?i)^\s*(GRANT|REVOKE)\b`)

// ParsedStatement is the structured outcome of Parse.
type ParsedStatement struct {
	AST            *pg_query.ParseResult
	StatementCount int
	Kind           Kind
	NormalizedSQL  string
	RawSQL         string

	// Set only by the GRANT/REVOKE prefilter, where there is no AST to walk.
	prefiltered bool
}

// Parse parses exactly one statement's worth of input (statement_count may
// be >1; it is reported truthfully, the policy engine decides what to do
// with it).
func Parse(sql string) (*ParsedStatement, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return nil, fmt.Errorf("Empty SQL statement")
	}

	if reGrantRevoke.MatchString(trimmed) {
		return &ParsedStatement{
			StatementCount: 1,
			Kind:           KindUnknown,
			NormalizedSQL:  normalize(trimmed),
			RawSQL:         sql,
			prefiltered:    true,
		}, nil
	}

	result, err := pg_query.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing SQL: %w", err)
	}

	ps := &ParsedStatement{
		AST:            result,
		StatementCount: len(result.Stmts),
		NormalizedSQL:  normalize(trimmed),
		RawSQL:         sql,
	}

	if len(result.Stmts) == 0 {
		ps.Kind = KindUnknown
		return ps, nil
	}

	ps.Kind = kindOf(result.Stmts[0].Stmt)
	return ps, nil
}

// IsGrantOrRevoke reports whether this statement was short-circuited by the
// GRANT/REVOKE prefilter rather than parsed.
func (p *ParsedStatement) IsGrantOrRevoke() bool {
	return p.prefiltered
}

func normalize(sql string) string {
	sql = strings.TrimRight(sql, " \t\n\r")
	sql = strings.TrimRight(sql, ";")
	return strings.TrimRight(sql, " \t\n\r")
}

func kindOf(node *pg_query.Node) Kind {
	if node == nil {
		return KindUnknown
	}
	switch node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return KindSelect
	case *pg_query.Node_InsertStmt:
		return KindInsert
	case *pg_query.Node_UpdateStmt:
		return KindUpdate
	case *pg_query.Node_DeleteStmt:
		return KindDelete
	case *pg_query.Node_CreateStmt, *pg_query.Node_CreateSchemaStmt, *pg_query.Node_ViewStmt,
		*pg_query.Node_CreateSeqStmt, *pg_query.Node_IndexStmt, *pg_query.Node_CreateTableAsStmt:
		return KindCreate
	case *pg_query.Node_AlterTableStmt, *pg_query.Node_AlterSeqStmt, *pg_query.Node_RenameStmt:
		return KindAlter
	case *pg_query.Node_DropStmt, *pg_query.Node_DropdbStmt:
		return KindDrop
	case *pg_query.Node_TruncateStmt:
		return KindTruncate
	default:
		return KindUnknown
	}
}

// Classify maps a Kind to its coarse Classification per spec §4.1.
func Classify(prefiltered bool, k Kind) Classification {
	if prefiltered {
		return ClassDangerous
	}
	switch k {
	case KindSelect:
		return ClassRead
	case KindInsert, KindUpdate, KindDelete, KindCreate, KindAlter:
		return ClassWrite
	case KindDrop, KindTruncate:
		return ClassDangerous
	default:
		// Unknown kinds are reported as "read" classification at the
		// classifier level; the policy engine denies unknown kinds on its
		// own rules (spec §4.1).
		return ClassRead
	}
}

// Classification returns this statement's coarse classification.
func (p *ParsedStatement) Classification() Classification {
	return Classify(p.prefiltered, p.Kind)
}

// FirstStmt returns the single top-level statement node, or nil if there is
// none (empty parse or a prefiltered GRANT/REVOKE).
func (p *ParsedStatement) FirstStmt() *pg_query.Node {
	if p.AST == nil || len(p.AST.Stmts) == 0 {
		return nil
	}
	return p.AST.Stmts[0].Stmt
}
