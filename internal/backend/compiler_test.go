package backend_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banjoc/banjoc/internal/backend"
	"github.com/banjoc/banjoc/internal/mcode"
	"github.com/banjoc/banjoc/internal/sir"
	"github.com/banjoc/banjoc/internal/ssa"
	"github.com/banjoc/banjoc/internal/ssagen"
)

// fakeMachine is a Machine that records the order of calls it receives
// and, for every instruction, emits one placeholder mcode.Instruction
// tagged with the SSA opcode it came from; it stands in for a real
// instruction-selecting Target in tests that exercise Compiler's
// traversal and virtual-register assignment rather than any one ISA's
// encoding.
type fakeMachine struct {
	ctx    backend.CompilationContext
	events []string
}

func (m *fakeMachine) SetCompilationContext(ctx backend.CompilationContext) { m.ctx = ctx }

func (m *fakeMachine) StartFunction(blocks []ssa.BasicBlock) {
	m.events = append(m.events, "start-function")
}

func (m *fakeMachine) StartBlock(b ssa.BasicBlock) {
	m.events = append(m.events, "start-block:"+b.Name())
}

func (m *fakeMachine) LowerInstr(instr *ssa.Instruction) {
	m.events = append(m.events, "lower:"+instr.Opcode().String())
	m.ctx.Emit(&mcode.Instruction{Op: mcode.Op(instr.Opcode())})
}

func (m *fakeMachine) EndBlock() { m.events = append(m.events, "end-block") }

func (m *fakeMachine) EndFunction() { m.events = append(m.events, "end-function") }

func (m *fakeMachine) Reset() { m.events = m.events[:0] }

// paramReturnDecl builds `fn f(a: i64) i64 { return a }`.
func paramReturnDecl(unit *sir.Unit) *sir.Decl {
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

func TestCompiler_Compile(t *testing.T) {
	unit := sir.NewUnit()
	decl := paramReturnDecl(unit)

	fc := ssagen.NewCompiler(unit, &ssa.Module{})
	b := ssa.NewBuilder()
	fc.Init(decl, b)
	require.NoError(t, fc.LowerToSSA(decl))

	mach := &fakeMachine{}
	c := backend.NewCompiler(mach)

	fn, err := c.Compile(decl.Name.Name, b)
	require.NoError(t, err)
	require.Equal(t, "f", fn.Name)
	require.NotEmpty(t, fn.Blocks)

	require.Contains(t, mach.events, "start-function")
	require.Contains(t, mach.events, "end-function")
	foundRet := false
	for _, ev := range mach.events {
		if ev == "lower:RET" {
			foundRet = true
		}
	}
	require.True(t, foundRet, "expected the RET instruction to reach LowerInstr")

	for _, blk := range fn.Blocks {
		require.NotEmpty(t, blk.Instructions, "block %s should have at least its RET lowered", blk.Label)
	}
}

func TestCompiler_Reset(t *testing.T) {
	unit := sir.NewUnit()
	decl := paramReturnDecl(unit)

	fc := ssagen.NewCompiler(unit, &ssa.Module{})
	b := ssa.NewBuilder()
	fc.Init(decl, b)
	require.NoError(t, fc.LowerToSSA(decl))

	mach := &fakeMachine{}
	c := backend.NewCompiler(mach)

	_, err := c.Compile(decl.Name.Name, b)
	require.NoError(t, err)

	// Compiling a second time must not panic or leak state from the
	// first compilation's virtual-register table.
	b2 := ssa.NewBuilder()
	fc.Init(decl, b2)
	require.NoError(t, fc.LowerToSSA(decl))
	fn2, err := c.Compile(decl.Name.Name, b2)
	require.NoError(t, err)
	require.Equal(t, "f", fn2.Name)
}
