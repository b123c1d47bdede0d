package analyzer

import "github.com/banjoc/banjoc/internal/sir"

// expandMeta evaluates every decl-level meta-if, replacing it with the
// decls of its selected branch, before header/body analysis runs.
// Statement-level MetaIf/MetaFor nodes are expanded later, by
// expandMetaStmts, as the block analyzer enters each block.
func (a *Analyzer) expandMeta() {
	for _, m := range a.unit.Modules {
		m.Decls = a.expandDeclList(m.Decls)
	}
}

func (a *Analyzer) expandDeclList(decls []sir.Handle) []sir.Handle {
	out := make([]sir.Handle, 0, len(decls))
	for _, h := range decls {
		d := a.unit.Decl(h)
		if d.Kind != sir.DeclMetaIfStmt {
			out = append(out, h)
			continue
		}
		// A decl-level MetaIfStmt reuses Fields/Cases (otherwise
		// StructDef/UnionDef-only slots) as the Then/Else decl lists and
		// ValueExpr as the condition, per the flat-struct dispatch-by-
		// kind design every SIR node type follows.
		cond, ok := a.evalConst(d.ValueExpr)
		if !ok || cond.Kind != ConstBool {
			a.diag.Errorf(d.Span, "meta-if condition must be a constant bool")
			continue
		}
		branch := d.Cases
		if cond.Bool {
			branch = d.Fields
		}
		out = append(out, a.expandDeclList(branch)...)
	}
	return out
}

// expandMetaStmts is the statement-level counterpart, called from the
// block analyzer (stmt.go) before any other statement in a block is
// visited, so that decl-body analysis never walks over a still-Meta
// node. It returns the replacement statement-handle list for one block.
func (a *Analyzer) expandMetaStmts(scope Scope, stmts []sir.Handle) []sir.Handle {
	out := make([]sir.Handle, 0, len(stmts))
	for _, h := range stmts {
		s := a.unit.Stmt(h)
		switch s.Kind {
		case sir.StmtMetaIf:
			sel := a.selectMetaBranch(h)
			if sel != sir.HandleInvalid {
				out = append(out, a.expandMetaStmts(scope, a.unit.Stmt(sel).Stmts)...)
			}
		case sir.StmtMetaFor:
			out = append(out, a.expandMetaFor(scope, h)...)
		default:
			out = append(out, h)
		}
	}
	return out
}

// selectMetaBranch const-evaluates a MetaIf's condition and returns the
// Then or Else block handle, or HandleInvalid if the condition is false
// and there is no else.
func (a *Analyzer) selectMetaBranch(h sir.Handle) sir.Handle {
	s := a.unit.Stmt(h)
	cond, ok := a.evalConst(s.Cond)
	if !ok || cond.Kind != ConstBool {
		a.diag.Errorf(s.Span, "meta-if condition must be a constant bool")
		return sir.HandleInvalid
	}
	if cond.Bool {
		return s.Then
	}
	return s.Else
}

// expandMetaFor const-evaluates a MetaFor's range and unrolls its body
// once per element, substituting the bound name with each element's
// constant value via a synthesized ConstDef so the body's ordinary
// symbol lookup finds it.
func (a *Analyzer) expandMetaFor(scope Scope, h sir.Handle) []sir.Handle {
	s := a.unit.Stmt(h)
	rangeVal, ok := a.evalConst(s.Range)
	if !ok || rangeVal.Kind != ConstArray {
		a.diag.Errorf(s.Span, "meta-for range must be a constant array")
		return nil
	}

	var out []sir.Handle
	body := a.unit.Stmt(s.Body)
	for _, elemHandle := range rangeVal.Elems {
		elem := a.constPool.get(elemHandle)
		constDecl := a.unit.NewDecl(sir.DeclConstDef)
		cd := a.unit.Decl(constDecl)
		cd.Name = s.BindVar
		cd.DeclaredType = elem.Typ
		cd.ValueExpr = constExprHandle(a, *elem)
		scope.Table.Insert(s.BindVar.Name, sir.Symbol{Kind: sir.SymConst, Name: s.BindVar.Name, DeclHandle: constDecl, Type: elem.Typ})
		out = append(out, a.expandMetaStmts(scope, body.Stmts)...)
	}
	return out
}

// constExprHandle materializes a ConstValue back into an Expr node, so
// that code generated by meta-for expansion (a ConstDef's ValueExpr) can
// be re-evaluated or lowered like any other literal.
func constExprHandle(a *Analyzer, v ConstValue) sir.Handle {
	switch v.Kind {
	case ConstInt:
		h := a.unit.NewExpr(sir.ExprIntLiteral)
		e := a.unit.Expr(h)
		e.IntVal, e.Type = v.Int, v.Typ
		return h
	case ConstFloat:
		h := a.unit.NewExpr(sir.ExprFPLiteral)
		e := a.unit.Expr(h)
		e.FloatVal, e.Type = v.Float, v.Typ
		return h
	case ConstBool:
		h := a.unit.NewExpr(sir.ExprBoolLiteral)
		e := a.unit.Expr(h)
		e.BoolVal, e.Type = v.Bool, v.Typ
		return h
	default:
		h := a.unit.NewExpr(sir.ExprTuple)
		e := a.unit.Expr(h)
		e.Type = v.Typ
		for _, ch := range v.Elems {
			e.List = append(e.List, constExprHandle(a, *a.constPool.get(ch)))
		}
		return h
	}
}
