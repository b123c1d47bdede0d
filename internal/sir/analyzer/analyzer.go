// Package analyzer implements the semantic analyzer (C2): it takes a raw
// sir.Unit straight off the parser and produces a fully-typed one, where
// every Expr.Type is concrete, every symbol reference is resolved, every
// generic call site names a monomorphic specialization, and every
// diagnostic has been routed through a report.Manager.
//
// The six phases run in a fixed order (see Run) and never panic on a
// recoverable condition: a failing decl reports and substitutes an error
// node so its siblings still get analyzed, per the "exception-style
// control" note in report's package doc.
package analyzer

import (
	"github.com/banjoc/banjoc/internal/report"
	"github.com/banjoc/banjoc/internal/sir"
)

// Analyzer holds the cross-phase caches a single compilation accumulates:
// the generics specialization table and the const-eval interning arena.
// Both outlive any one decl's analysis, so they live here rather than on
// Scope.
type Analyzer struct {
	unit *sir.Unit
	diag *report.Manager

	specializations map[specKey]sir.Handle
	constPool       constArena
}

// New returns an Analyzer ready to run over unit, reporting into diag.
func New(unit *sir.Unit, diag *report.Manager) *Analyzer {
	return &Analyzer{
		unit:            unit,
		diag:            diag,
		specializations: make(map[specKey]sir.Handle),
	}
}

// Run executes the six analysis phases over unit in order, returning the
// same Unit (mutated in place) and the diag Manager it reported through.
// Callers must check diag.Fatal() before invoking any later compilation
// stage (SSA generation).
func Run(unit *sir.Unit, diag *report.Manager) (*sir.Unit, *report.Manager) {
	a := New(unit, diag)

	a.collectSymbols()
	if diag.Fatal() {
		return unit, diag
	}
	a.resolveUseDecls()
	a.expandMeta()
	if diag.Fatal() {
		return unit, diag
	}
	for _, m := range unit.Modules {
		for _, h := range m.Decls {
			a.analyzeDeclHeader(m, h)
		}
	}
	for _, m := range unit.Modules {
		for _, h := range m.Decls {
			a.analyzeDeclBody(m, h)
		}
	}
	a.finalizeConsts()

	return unit, diag
}

// Scope is the statement analyzer's context: the enclosing function
// return type, the innermost loop depth (for continue/break validation),
// and the symbol table chain currently in effect. A new Scope is pushed
// per block; Scope itself is a plain value so nested blocks just carry
// a modified copy forward rather than needing an explicit pop.
type Scope struct {
	Module     *sir.Module
	Func       sir.Handle // enclosing FuncDef/FuncDecl, for ReturnStmt checking
	ReturnType sir.Type
	LoopDepth  int
	Table      *sir.SymbolTable
}

// child returns a copy of s with a fresh symbol table chained under
// s.Table, for entering a nested block.
func (s Scope) child() Scope {
	s.Table = sir.NewSymbolTable(s.Table)
	return s
}

func (a *Analyzer) errorExpr(span report.Span) sir.Handle {
	h := a.unit.NewExpr(sir.ExprError)
	e := a.unit.Expr(h)
	e.Span = span
	e.Type = sir.Type{Kind: sir.TypeInvalid}
	return h
}
