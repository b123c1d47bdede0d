package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banjoc/banjoc/internal/report"
	"github.com/banjoc/banjoc/internal/sir"
)

func intLit(u *sir.Unit, v int64, t sir.Type) sir.Handle {
	h := u.NewExpr(sir.ExprIntLiteral)
	e := u.Expr(h)
	e.IntVal, e.Type = v, t
	return h
}

func TestEvalConst_binaryWrapsOnOverflow(t *testing.T) {
	u := sir.NewUnit()
	diag := report.NewManager()
	a := New(u, diag)

	i8 := sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI8}
	lhs := intLit(u, 127, i8)
	rhs := intLit(u, 1, i8)

	addH := u.NewExpr(sir.ExprBinary)
	add := u.Expr(addH)
	add.BinOp, add.A, add.B, add.Type = sir.OpAdd, lhs, rhs, i8

	v, ok := a.evalConst(addH)
	require.True(t, ok)
	require.Equal(t, ConstInt, v.Kind)
	require.Equal(t, int64(-128), v.Int) // 127+1 wraps to -128 in a signed i8
}

func TestEvalConst_divisionByZeroReportsDiagnostic(t *testing.T) {
	u := sir.NewUnit()
	diag := report.NewManager()
	a := New(u, diag)

	i32 := sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI32}
	lhs := intLit(u, 10, i32)
	rhs := intLit(u, 0, i32)

	divH := u.NewExpr(sir.ExprBinary)
	div := u.Expr(divH)
	div.BinOp, div.A, div.B, div.Type = sir.OpDiv, lhs, rhs, i32

	_, ok := a.evalConst(divH)
	require.False(t, ok)
	require.True(t, diag.Fatal())
}

func TestSymbolCollection_diagnosesRedefinition(t *testing.T) {
	u := sir.NewUnit()
	diag := report.NewManager()
	m := u.NewModule("app", "app")

	h1 := u.NewDecl(sir.DeclConstDef)
	u.Decl(h1).Name = sir.Ident{Name: "X"}
	h2 := u.NewDecl(sir.DeclConstDef)
	u.Decl(h2).Name = sir.Ident{Name: "X"}
	m.Decls = []sir.Handle{h1, h2}

	a := New(u, diag)
	a.collectSymbols()

	require.True(t, diag.Fatal())
	sym, ok := m.Table.LookupLocal("X")
	require.True(t, ok)
	require.Equal(t, h1, sym.DeclHandle)
}
