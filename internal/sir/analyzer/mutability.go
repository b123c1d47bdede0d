package analyzer

import "github.com/banjoc/banjoc/internal/sir"

// checkMutableLValue verifies that the l-value expr h may legally appear
// on the left of an AssignStmt: derefs of an immutable reference are
// rejected; indexing/field access defer to the base they recurse into.
func (a *Analyzer) checkMutableLValue(h sir.Handle) {
	e := a.unit.Expr(h)
	switch e.Kind {
	case sir.ExprUnary:
		if e.UnOp != sir.OpDeref {
			return
		}
		baseType := a.unit.Expr(e.A).Type
		if baseType.Kind == sir.TypeReference && !baseType.Mutable {
			a.diag.Errorf(e.Span, "cannot assign through an immutable reference")
			return
		}
		a.checkMutableLValue(e.A)

	case sir.ExprIndex, sir.ExprField, sir.ExprDot:
		a.checkMutableLValue(e.A)

	case sir.ExprSymbol:
		if !e.Sym.Mutable && (e.Sym.Kind == sir.SymVar || e.Sym.Kind == sir.SymLocal) {
			a.diag.Errorf(e.Span, "cannot assign to immutable binding %q; declare with var", e.Sym.Name)
		}
	}
}
