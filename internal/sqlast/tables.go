package sqlast

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ImpactedTables walks the statement's AST by kind and returns the
// schema-qualified table names it targets, deduplicated and in discovery
// order. Returns nil for statement kinds where table extraction isn't
// meaningful (e.g. a bare GRANT/REVOKE).
func (p *ParsedStatement) ImpactedTables() []string {
	node := p.FirstStmt()
	if node == nil {
		return nil
	}

	var names []string
	add := func(rv *pg_query.RangeVar) {
		if rv == nil {
			return
		}
		names = append(names, qualify(rv.Schemaname, rv.Relname))
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		for _, f := range n.SelectStmt.FromClause {
			walkFromItem(f, add)
		}
	case *pg_query.Node_DeleteStmt:
		add(n.DeleteStmt.Relation)
		for _, f := range n.DeleteStmt.UsingClause {
			walkFromItem(f, add)
		}
	case *pg_query.Node_UpdateStmt:
		add(n.UpdateStmt.Relation)
		for _, f := range n.UpdateStmt.FromClause {
			walkFromItem(f, add)
		}
	case *pg_query.Node_InsertStmt:
		add(n.InsertStmt.Relation)
	case *pg_query.Node_CreateStmt:
		add(n.CreateStmt.Relation)
	case *pg_query.Node_AlterTableStmt:
		add(n.AlterTableStmt.Relation)
	case *pg_query.Node_DropStmt:
		for _, obj := range n.DropStmt.Objects {
			if name := objectNameList(obj); name != "" {
				names = append(names, name)
			}
		}
	case *pg_query.Node_TruncateStmt:
		for _, rel := range n.TruncateStmt.Relations {
			if rv, ok := rel.Node.(*pg_query.Node_RangeVar); ok {
				add(rv.RangeVar)
			}
		}
	default:
		return nil
	}

	return dedupe(names)
}

func walkFromItem(node *pg_query.Node, add func(*pg_query.RangeVar)) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		add(n.RangeVar)
	case *pg_query.Node_JoinExpr:
		walkFromItem(n.JoinExpr.Larg, add)
		walkFromItem(n.JoinExpr.Rarg, add)
	}
}

// objectNameList turns a DropStmt.Objects entry (a List of String nodes,
// e.g. {schema, table} or {table}) into a dotted qualified name.
func objectNameList(node *pg_query.Node) string {
	list, ok := node.Node.(*pg_query.Node_List)
	if !ok {
		return ""
	}
	var parts []string
	for _, item := range list.List.Items {
		if s, ok := item.Node.(*pg_query.Node_String_); ok {
			parts = append(parts, s.String_.Sval)
		}
	}
	return strings.Join(parts, ".")
}

func qualify(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, name := range in {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// HasWhereClause reports the WHERE-presence field for UPDATE/DELETE
// statements. For other kinds the field is informational only and spec
// §3 says it is reported as true.
func (p *ParsedStatement) HasWhereClause() bool {
	node := p.FirstStmt()
	if node == nil {
		return true
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_DeleteStmt:
		return n.DeleteStmt.WhereClause != nil
	case *pg_query.Node_UpdateStmt:
		return n.UpdateStmt.WhereClause != nil
	default:
		return true
	}
}

// ContainsSelectStar reports whether a SELECT's target list includes a bare
// `*` or a qualified `t.*`.
func (p *ParsedStatement) ContainsSelectStar() bool {
	node := p.FirstStmt()
	if node == nil {
		return false
	}
	sel, ok := node.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return false
	}
	for _, target := range sel.SelectStmt.TargetList {
		res, ok := target.Node.(*pg_query.Node_ResTarget)
		if !ok || res.ResTarget.Val == nil {
			continue
		}
		if colRef, ok := res.ResTarget.Val.Node.(*pg_query.Node_ColumnRef); ok {
			for _, f := range colRef.ColumnRef.Fields {
				if _, ok := f.Node.(*pg_query.Node_AStar); ok {
					return true
				}
			}
		}
	}
	return false
}

// JoinCount returns the number of join operations in the SELECT's FROM
// clause: one less than the number of joined entries, counting both
// comma-joins and explicit JOIN expressions.
func (p *ParsedStatement) JoinCount() int {
	node := p.FirstStmt()
	if node == nil {
		return 0
	}
	sel, ok := node.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return 0
	}
	count := 0
	for _, f := range sel.SelectStmt.FromClause {
		count += countJoins(f)
	}
	if count > 0 {
		count--
	}
	return count
}

func countJoins(node *pg_query.Node) int {
	if node == nil {
		return 0
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_JoinExpr:
		return countJoins(n.JoinExpr.Larg) + countJoins(n.JoinExpr.Rarg)
	default:
		return 1
	}
}

// WalkFuncCalls invokes fn for every function call node reachable from the
// statement's target list, WHERE clause, FROM items, and CTEs — the places a dangerous
// function (pg_sleep, lo_export, dblink, ...) can appear in practice.
func (p *ParsedStatement) WalkFuncCalls(fn func(name string)) {
	node := p.FirstStmt()
	if node == nil {
		return
	}
	walkStmtForFuncCalls(node, fn)
}

func walkStmtForFuncCalls(node *pg_query.Node, fn func(name string)) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		s := n.SelectStmt
		walkCTEsForFuncCalls(s.WithClause, fn)
		for _, t := range s.TargetList {
			walkExprForFuncCalls(t, fn)
		}
		for _, f := range s.FromClause {
			walkFromItemForFuncCalls(f, fn)
		}
		walkExprForFuncCalls(s.WhereClause, fn)
		if s.Larg != nil {
			walkStmtForFuncCalls(&pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: s.Larg}}, fn)
		}
		if s.Rarg != nil {
			walkStmtForFuncCalls(&pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: s.Rarg}}, fn)
		}
	case *pg_query.Node_InsertStmt:
		walkCTEsForFuncCalls(n.InsertStmt.WithClause, fn)
		if n.InsertStmt.SelectStmt != nil {
			walkStmtForFuncCalls(n.InsertStmt.SelectStmt, fn)
		}
	case *pg_query.Node_UpdateStmt:
		s := n.UpdateStmt
		walkCTEsForFuncCalls(s.WithClause, fn)
		for _, t := range s.TargetList {
			walkExprForFuncCalls(t, fn)
		}
		walkExprForFuncCalls(s.WhereClause, fn)
		for _, f := range s.FromClause {
			walkFromItemForFuncCalls(f, fn)
		}
	case *pg_query.Node_DeleteStmt:
		s := n.DeleteStmt
		walkCTEsForFuncCalls(s.WithClause, fn)
		walkExprForFuncCalls(s.WhereClause, fn)
		for _, f := range s.UsingClause {
			walkFromItemForFuncCalls(f, fn)
		}
	}
}

func walkCTEsForFuncCalls(with *pg_query.WithClause, fn func(name string)) {
	if with == nil {
		return
	}
	for _, cte := range with.Ctes {
		if c, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
			walkStmtForFuncCalls(c.CommonTableExpr.Ctequery, fn)
		}
	}
}

func walkFromItemForFuncCalls(node *pg_query.Node, fn func(name string)) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_JoinExpr:
		walkFromItemForFuncCalls(n.JoinExpr.Larg, fn)
		walkFromItemForFuncCalls(n.JoinExpr.Rarg, fn)
		walkExprForFuncCalls(n.JoinExpr.Quals, fn)
	case *pg_query.Node_RangeSubselect:
		walkStmtForFuncCalls(n.RangeSubselect.Subquery, fn)
	case *pg_query.Node_RangeFunction:
		for _, item := range n.RangeFunction.Functions {
			walkExprForFuncCalls(item, fn)
		}
	}
}

// walkExprForFuncCalls recurses into the handful of expression node types
// that commonly nest a function call: function calls themselves (recursing
// into arguments), boolean/arithmetic expressions, CASE expressions,
// sub-selects, and target-list entries.
func walkExprForFuncCalls(node *pg_query.Node, fn func(name string)) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_List:
		// RangeFunction wraps each function call in a List of
		// [call, coldeflist].
		for _, item := range n.List.Items {
			walkExprForFuncCalls(item, fn)
		}
	case *pg_query.Node_ResTarget:
		walkExprForFuncCalls(n.ResTarget.Val, fn)
	case *pg_query.Node_FuncCall:
		names := n.FuncCall.Funcname
		if len(names) > 0 {
			if s, ok := names[len(names)-1].Node.(*pg_query.Node_String_); ok {
				fn(strings.ToLower(s.String_.Sval))
			}
		}
		for _, arg := range n.FuncCall.Args {
			walkExprForFuncCalls(arg, fn)
		}
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			walkExprForFuncCalls(arg, fn)
		}
	case *pg_query.Node_AExpr:
		walkExprForFuncCalls(n.AExpr.Lexpr, fn)
		walkExprForFuncCalls(n.AExpr.Rexpr, fn)
	case *pg_query.Node_CaseExpr:
		for _, when := range n.CaseExpr.Args {
			walkExprForFuncCalls(when, fn)
		}
		walkExprForFuncCalls(n.CaseExpr.Defresult, fn)
	case *pg_query.Node_CaseWhen:
		walkExprForFuncCalls(n.CaseWhen.Expr, fn)
		walkExprForFuncCalls(n.CaseWhen.Result, fn)
	case *pg_query.Node_CoalesceExpr:
		for _, arg := range n.CoalesceExpr.Args {
			walkExprForFuncCalls(arg, fn)
		}
	case *pg_query.Node_SubLink:
		walkStmtForFuncCalls(n.SubLink.Subselect, fn)
	case *pg_query.Node_TypeCast:
		walkExprForFuncCalls(n.TypeCast.Arg, fn)
	}
}
