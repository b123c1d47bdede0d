package analyzer

import "github.com/banjoc/banjoc/internal/sir"

var boolType = sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimBool}

// analyzeBlock expands any meta-statements in blk, then visits every
// statement in a fresh child scope.
func (a *Analyzer) analyzeBlock(scope Scope, blk sir.Handle) {
	s := a.unit.Stmt(blk)
	inner := scope.child()
	s.Stmts = a.expandMetaStmts(inner, s.Stmts)
	for _, sh := range s.Stmts {
		a.analyzeStmt(inner, sh)
	}
}

func (a *Analyzer) analyzeStmt(scope Scope, h sir.Handle) {
	s := a.unit.Stmt(h)
	switch s.Kind {
	case sir.StmtVar:
		a.analyzeVarStmt(scope, s)
	case sir.StmtAssign:
		a.analyzeAssignStmt(scope, s)
	case sir.StmtCompAssign:
		a.analyzeCompAssignStmt(scope, h, s)
	case sir.StmtReturn:
		a.analyzeReturnStmt(scope, s)
	case sir.StmtIf:
		a.analyzeIfStmt(scope, s)
	case sir.StmtWhile:
		a.analyzeWhileStmt(scope, s)
	case sir.StmtLoop:
		a.analyzeLoopStmt(scope, s)
	case sir.StmtSwitch:
		a.analyzeSwitchStmt(scope, s)
	case sir.StmtTry:
		a.analyzeTryStmt(scope, s)
	case sir.StmtFor:
		a.analyzeForStmt(scope, s)
	case sir.StmtContinue, sir.StmtBreak:
		if scope.LoopDepth == 0 {
			a.diag.Errorf(s.Span, "continue/break outside of a loop")
		}
	case sir.StmtBlock:
		a.analyzeBlock(scope, h)
	case sir.StmtExpr:
		s.ExprHandle = a.finalizeExpr(scope, s.ExprHandle, nil)
	}
}

func (a *Analyzer) analyzeVarStmt(scope Scope, s *sir.Stmt) {
	var expected *sir.Type
	if s.HasExplicit {
		s.ExplicitType = a.resolveTypeExpr(scope, s.ExplicitType)
		expected = &s.ExplicitType
	}
	s.Init = a.finalizeExpr(scope, s.Init, expected)
	typ := s.ExplicitType
	if !s.HasExplicit {
		typ = a.unit.Expr(s.Init).Type
	}
	sym := sir.Symbol{Kind: sir.SymLocal, Name: s.Name.Name, Type: typ, Mutable: s.Mutable}
	if !scope.Table.Insert(s.Name.Name, sym) {
		a.diag.Errorf(s.Span, "%q is already defined in this scope", s.Name.Name)
	}
}

func (a *Analyzer) analyzeAssignStmt(scope Scope, s *sir.Stmt) {
	s.LHS = a.analyzeExprNoExpected(scope, s.LHS)
	a.checkMutableLValue(s.LHS)
	lhsType := a.unit.Expr(s.LHS).Type
	s.RHS = a.finalizeExpr(scope, s.RHS, &lhsType)
}

// analyzeCompAssignStmt rewrites `lhs op= rhs` into `lhs = lhs op rhs`
// in place (mutating Kind/BinOp/fields) then re-dispatches as a plain
// AssignStmt.
func (a *Analyzer) analyzeCompAssignStmt(scope Scope, h sir.Handle, s *sir.Stmt) {
	rhsExpr := a.unit.NewExpr(sir.ExprBinary)
	be := a.unit.Expr(rhsExpr)
	be.BinOp, be.A, be.B, be.Span = s.BinOp, s.LHS, s.RHS, s.Span

	s.Kind = sir.StmtAssign
	s.RHS = rhsExpr
	a.analyzeAssignStmt(scope, s)
}

func (a *Analyzer) analyzeReturnStmt(scope Scope, s *sir.Stmt) {
	voidReturn := scope.ReturnType.Kind == sir.TypeVoid || scope.ReturnType.Invalid()
	if s.Value == sir.HandleInvalid {
		if !voidReturn {
			a.diag.Errorf(s.Span, "missing return value")
		}
		return
	}
	if voidReturn {
		a.diag.Errorf(s.Span, "function does not return a value")
		return
	}
	s.Value = a.finalizeExpr(scope, s.Value, &scope.ReturnType)
	a.checkReturnEscape(s.Value)
}

func (a *Analyzer) analyzeIfStmt(scope Scope, s *sir.Stmt) {
	s.Cond = a.finalizeExpr(scope, s.Cond, &boolType)
	a.analyzeBlock(scope, s.Then)
	if s.Else != sir.HandleInvalid {
		a.analyzeBlock(scope, s.Else)
	}
}

func (a *Analyzer) analyzeWhileStmt(scope Scope, s *sir.Stmt) {
	s.Cond = a.finalizeExpr(scope, s.Cond, &boolType)
	loopScope := scope
	loopScope.LoopDepth++
	a.analyzeBlock(loopScope, s.Body)
}

func (a *Analyzer) analyzeLoopStmt(scope Scope, s *sir.Stmt) {
	loopScope := scope
	loopScope.LoopDepth++
	a.analyzeBlock(loopScope, s.Body)
}

func (a *Analyzer) analyzeSwitchStmt(scope Scope, s *sir.Stmt) {
	s.Discriminant = a.analyzeExprNoExpected(scope, s.Discriminant)
	for i, c := range s.Cases {
		inner := scope.child()
		if !c.IsElse {
			c.CaseType = a.resolveTypeExpr(scope, c.CaseType)
			inner.Table.Insert(c.BindName.Name, sir.Symbol{Kind: sir.SymLocal, Name: c.BindName.Name, Type: c.CaseType})
		}
		s.Cases[i] = c
		a.analyzeBlock(inner, c.Block)
	}
}

// analyzeTryStmt checks that the tried expression of
// `try expr { success } except err { ... } else { ... }` is a Result or
// Optional, binds the success name to its element type and analyzes
// the success block and the else block. It does not rewrite the
// statement into a discriminant dispatch, and the except name is bound
// in a scope in which no block is analyzed.
func (a *Analyzer) analyzeTryStmt(scope Scope, s *sir.Stmt) {
	s.Tried = a.analyzeExprNoExpected(scope, s.Tried)
	triedType := a.unit.Expr(s.Tried).Type
	if triedType.Kind != sir.TypeResult && triedType.Kind != sir.TypeOptional {
		a.diag.Errorf(s.Span, "try requires a Result or Optional expression")
	}

	successScope := scope.child()
	var elemT sir.Type
	if triedType.Elem != nil {
		elemT = *triedType.Elem
	}
	successScope.Table.Insert(s.BindName.Name, sir.Symbol{Kind: sir.SymLocal, Name: s.BindName.Name, Type: elemT})
	a.analyzeBlock(successScope, s.Then)

	if s.HasExceptArm && triedType.Kind == sir.TypeResult {
		exceptScope := scope.child()
		var errT sir.Type
		if triedType.ErrElem != nil {
			errT = *triedType.ErrElem
		}
		exceptScope.Table.Insert(s.ExceptName.Name, sir.Symbol{Kind: sir.SymLocal, Name: s.ExceptName.Name, Type: errT})
	}
	if s.Else != sir.HandleInvalid {
		a.analyzeBlock(scope, s.Else)
	}
}

// analyzeForStmt types the range, binds the loop variable (i64 for a
// RangeExpr, otherwise the iterable's element type) and analyzes the
// body in a loop scope. It records in s.Desugar a LoopStmt sharing
// s.Body but builds no index-based or iter()/next() rewrite; the SSA
// generator lowers the ForStmt itself.
func (a *Analyzer) analyzeForStmt(scope Scope, s *sir.Stmt) {
	s.Range = a.analyzeExprNoExpected(scope, s.Range)
	rangeExpr := a.unit.Expr(s.Range)

	loopScope := scope
	loopScope.LoopDepth++

	loop := a.unit.NewStmt(sir.StmtLoop)
	ls := a.unit.Stmt(loop)
	ls.Span, ls.Body = s.Span, s.Body

	if rangeExpr.Kind == sir.ExprRange {
		bindScope := loopScope.child()
		elemT := sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI64}
		bindScope.Table.Insert(s.BindVar.Name, sir.Symbol{Kind: sir.SymLocal, Name: s.BindVar.Name, Type: elemT})
		a.analyzeBlock(bindScope, s.Body)
	} else {
		bindScope := loopScope.child()
		elemT := rangeExpr.Type
		if elemT.Elem != nil {
			elemT = *elemT.Elem
		}
		bindScope.Table.Insert(s.BindVar.Name, sir.Symbol{Kind: sir.SymLocal, Name: s.BindVar.Name, Type: elemT})
		a.analyzeBlock(bindScope, s.Body)
	}
	s.Desugar = loop
}
