package analyzer

import "github.com/banjoc/banjoc/internal/sir"

// checkReturnEscape diagnoses a ReturnStmt whose value (or any struct/
// tuple constituent of it) is the address of a local: that address does
// not outlive the function's stack frame.
func (a *Analyzer) checkReturnEscape(h sir.Handle) {
	if h == sir.HandleInvalid {
		return
	}
	a.checkNoLocalAddr(h)
}

func (a *Analyzer) checkNoLocalAddr(h sir.Handle) {
	e := a.unit.Expr(h)
	switch e.Kind {
	case sir.ExprUnary:
		if e.UnOp != sir.OpAddr && e.UnOp != sir.OpAddrMut {
			return
		}
		if isLocalRef(a.unit.Expr(e.A)) {
			a.diag.Errorf(e.Span, "returning address of local variable")
		}
	case sir.ExprTuple, sir.ExprArrayLiteral:
		for _, ch := range e.List {
			a.checkNoLocalAddr(ch)
		}
	case sir.ExprStructLiteral:
		for _, ch := range e.List {
			a.checkNoLocalAddr(ch)
		}
	}
}

func isLocalRef(e *sir.Expr) bool {
	return e.Kind == sir.ExprSymbol && (e.Sym.Kind == sir.SymLocal || e.Sym.Kind == sir.SymVar)
}
