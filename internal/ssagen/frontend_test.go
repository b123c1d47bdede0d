package ssagen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banjoc/banjoc/internal/sir"
	"github.com/banjoc/banjoc/internal/ssa"
)

func TestNewCompiler(t *testing.T) {
	unit := sir.NewUnit()
	mod := &ssa.Module{}
	c := NewCompiler(unit, mod)
	require.NotNil(t, c)
}

// intParamDecl builds `fn f(a: i64) i64 { return a }`.
func intParamDecl(unit *sir.Unit) *sir.Decl {
	i64 := sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI64}

	paramRef := unit.NewExpr(sir.ExprSymbol)
	pe := unit.Expr(paramRef)
	pe.Type = i64
	pe.Sym = sir.Symbol{Kind: sir.SymLocal, Name: "a", Type: i64}

	retStmt := unit.NewStmt(sir.StmtReturn)
	unit.Stmt(retStmt).Value = paramRef

	body := unit.NewStmt(sir.StmtBlock)
	unit.Stmt(body).Stmts = []sir.Handle{retStmt}

	declH := unit.NewDecl(sir.DeclFuncDef)
	decl := unit.Decl(declH)
	decl.Name = sir.Ident{Name: "f"}
	decl.Params = []sir.Param{{Name: sir.Ident{Name: "a"}, Type: i64}}
	decl.ReturnType = i64
	decl.Body = body
	return decl
}

func TestCompiler_LowerToSSA_paramReturn(t *testing.T) {
	unit := sir.NewUnit()
	decl := intParamDecl(unit)

	c := NewCompiler(unit, &ssa.Module{})
	b := ssa.NewBuilder()
	c.Init(decl, b)
	require.NoError(t, c.LowerToSSA(decl))

	out := b.Format()
	require.Contains(t, out, "RET")
	require.True(t, strings.Contains(out, "blk0"))
}

// voidDecl builds `fn f() {}`, which must gain an implicit void return.
func voidDecl(unit *sir.Unit) *sir.Decl {
	body := unit.NewStmt(sir.StmtBlock)

	declH := unit.NewDecl(sir.DeclFuncDef)
	decl := unit.Decl(declH)
	decl.Name = sir.Ident{Name: "f"}
	decl.ReturnType = sir.Type{Kind: sir.TypeVoid}
	decl.Body = body
	return decl
}

func TestCompiler_LowerToSSA_implicitVoidReturn(t *testing.T) {
	unit := sir.NewUnit()
	decl := voidDecl(unit)

	c := NewCompiler(unit, &ssa.Module{})
	b := ssa.NewBuilder()
	c.Init(decl, b)
	require.NoError(t, c.LowerToSSA(decl))

	out := b.Format()
	require.Contains(t, out, "RET")
}

// ifDecl builds:
//
//	fn f(a: i64) i64 {
//	    if a { return 1 } else { return 0 }
//	}
func ifDecl(unit *sir.Unit) *sir.Decl {
	i64 := sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI64}

	paramRef := unit.NewExpr(sir.ExprSymbol)
	pe := unit.Expr(paramRef)
	pe.Type = i64
	pe.Sym = sir.Symbol{Kind: sir.SymLocal, Name: "a", Type: i64}

	oneLit := unit.NewExpr(sir.ExprIntLiteral)
	unit.Expr(oneLit).Type = i64
	unit.Expr(oneLit).IntVal = 1

	zeroLit := unit.NewExpr(sir.ExprIntLiteral)
	unit.Expr(zeroLit).Type = i64
	unit.Expr(zeroLit).IntVal = 0

	thenRet := unit.NewStmt(sir.StmtReturn)
	unit.Stmt(thenRet).Value = oneLit
	thenBlk := unit.NewStmt(sir.StmtBlock)
	unit.Stmt(thenBlk).Stmts = []sir.Handle{thenRet}

	elseRet := unit.NewStmt(sir.StmtReturn)
	unit.Stmt(elseRet).Value = zeroLit
	elseBlk := unit.NewStmt(sir.StmtBlock)
	unit.Stmt(elseBlk).Stmts = []sir.Handle{elseRet}

	ifStmt := unit.NewStmt(sir.StmtIf)
	is := unit.Stmt(ifStmt)
	is.Cond = paramRef
	is.Then = thenBlk
	is.Else = elseBlk

	body := unit.NewStmt(sir.StmtBlock)
	unit.Stmt(body).Stmts = []sir.Handle{ifStmt}

	declH := unit.NewDecl(sir.DeclFuncDef)
	decl := unit.Decl(declH)
	decl.Name = sir.Ident{Name: "f"}
	decl.Params = []sir.Param{{Name: sir.Ident{Name: "a"}, Type: i64}}
	decl.ReturnType = i64
	decl.Body = body
	return decl
}

func TestCompiler_LowerToSSA_ifBothArmsReturn(t *testing.T) {
	unit := sir.NewUnit()
	decl := ifDecl(unit)

	c := NewCompiler(unit, &ssa.Module{})
	b := ssa.NewBuilder()
	c.Init(decl, b)
	require.NoError(t, c.LowerToSSA(decl))

	out := b.Format()
	require.Contains(t, out, "CJMP")
	// Both arms return directly, so the continuation block is unreachable
	// and Optimize should have pruned it.
	require.Equal(t, 3, len(b.Blocks()))
}

func TestSirTypeToSSA(t *testing.T) {
	cases := []struct {
		in  sir.Type
		out ssa.Type
	}{
		{sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI64}, ssa.I64},
		{sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimF32}, ssa.F32},
		{sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimBool}, ssa.I8},
		{sir.Type{Kind: sir.TypePointer}, ssa.Addr},
		{sir.Type{Kind: sir.TypeStruct}, ssa.Addr},
		{sir.Type{Kind: sir.TypeVoid}, ssa.TypeInvalidValue},
	}
	for _, tc := range cases {
		require.Equal(t, tc.out, sirTypeToSSA(tc.in))
	}
}
