package ssagen

import (
	"fmt"

	"github.com/banjoc/banjoc/internal/sir"
	"github.com/banjoc/banjoc/internal/ssa"
)

// lowerBlock lowers the statements of the Stmt-kind-StmtBlock named by h
// and reports whether control fell off the end already terminated (a
// return/break/continue was the last statement reached).
func (c *Compiler) lowerBlock(h sir.Handle) bool {
	s := c.unit.Stmt(h)
	return c.lowerStmts(s.Stmts)
}

func (c *Compiler) lowerStmts(stmts []sir.Handle) bool {
	for _, h := range stmts {
		if c.lowerStmt(h) {
			return true
		}
	}
	return false
}

// lowerStmt lowers one statement and reports whether it unconditionally
// transferred control out of the statement list it belongs to (so the
// caller must not lower any further statements into the same block).
func (c *Compiler) lowerStmt(h sir.Handle) bool {
	s := c.unit.Stmt(h)
	switch s.Kind {
	case sir.StmtVar:
		c.lowerVarStmt(s)
		return false

	case sir.StmtAssign:
		c.lowerAssignStmt(s)
		return false

	case sir.StmtReturn:
		c.lowerReturnStmt(s)
		return true

	case sir.StmtIf:
		return c.lowerIfStmt(s)

	case sir.StmtWhile:
		c.lowerWhileStmt(s)
		return false

	case sir.StmtLoop:
		c.lowerLoopStmt(s)
		return false

	case sir.StmtFor:
		c.lowerForStmt(s)
		return false

	case sir.StmtContinue:
		c.lowerJumpToLoopTarget(c.loops[len(c.loops)-1].continueBlock)
		return true

	case sir.StmtBreak:
		c.lowerJumpToLoopTarget(c.loops[len(c.loops)-1].breakBlock)
		return true

	case sir.StmtBlock:
		return c.lowerBlock(h)

	case sir.StmtExpr:
		c.lowerExpr(s.ExprHandle)
		return false

	case sir.StmtCompAssign:
		panic("ssagen: StmtCompAssign must be rewritten to StmtAssign by the analyzer before lowering")

	default:
		panic(fmt.Sprintf("ssagen: lowering of statement kind %d is not implemented", s.Kind))
	}
}

func (c *Compiler) lowerJumpToLoopTarget(target ssa.BasicBlock) {
	instr := c.builder.AllocateInstruction().AsJump(target, nil)
	c.builder.InsertInstruction(instr)
}

func (c *Compiler) lowerVarStmt(s *sir.Stmt) {
	typ := s.ExplicitType
	val := c.lowerExpr(s.Init)
	v := c.builder.DeclareVariable(sirTypeToSSA(typ))
	c.builder.DefineVariableInCurrentBB(v, val)
	c.vars[s.Name.Name] = varInfo{variable: v, typ: typ}
	c.builder.AnnotateValue(val, s.Name.Name)
}

// lowerAssignStmt lowers `lhs = rhs`: a plain local-variable reassignment
// rebinds the SSA Variable in the current block; any other lvalue
// (field/index/deref) lowers its address and emits a STORE.
func (c *Compiler) lowerAssignStmt(s *sir.Stmt) {
	rhs := c.lowerExpr(s.RHS)
	lhsExpr := c.unit.Expr(s.LHS)
	if lhsExpr.Kind == sir.ExprSymbol && lhsExpr.Sym.Kind == sir.SymLocal {
		info, ok := c.vars[lhsExpr.Sym.Name]
		if !ok {
			panic("ssagen: assignment to undeclared local " + lhsExpr.Sym.Name)
		}
		c.builder.DefineVariableInCurrentBB(info.variable, rhs)
		return
	}
	addr := c.lowerAddr(s.LHS)
	instr := c.builder.AllocateInstruction().AsStore(rhs, addr)
	c.builder.InsertInstruction(instr)
}

func (c *Compiler) lowerReturnStmt(s *sir.Stmt) {
	if s.Value == sir.HandleInvalid {
		c.emitImplicitVoidReturn()
		return
	}
	v := c.lowerExpr(s.Value)
	instr := c.builder.AllocateInstruction().AsRet([]ssa.Value{v})
	c.builder.InsertInstruction(instr)
}

func (c *Compiler) emitImplicitVoidReturn() {
	instr := c.builder.AllocateInstruction().AsRet(nil)
	c.builder.InsertInstruction(instr)
}

// lowerIfStmt lowers IfStmt per spec.md §4.2: a CJMP to freshly allocated
// then/else blocks, each sealed once (their only predecessor, the branch,
// is already known), rejoining at a continuation block sealed only once
// both arms' own terminators (if any) have been lowered.
func (c *Compiler) lowerIfStmt(s *sir.Stmt) bool {
	cond := c.lowerExpr(s.Cond)
	thenBB := c.builder.AllocateBasicBlock()
	contBB := c.builder.AllocateBasicBlock()

	elseBB := contBB
	hasElse := s.Else != sir.HandleInvalid
	if hasElse {
		elseBB = c.builder.AllocateBasicBlock()
	}

	cjmp := c.builder.AllocateInstruction().AsCjmp(cond, thenBB, elseBB, nil, nil)
	c.builder.InsertInstruction(cjmp)
	c.builder.Seal(thenBB)
	if hasElse {
		c.builder.Seal(elseBB)
	}

	c.builder.SetCurrentBlock(thenBB)
	thenTerm := c.lowerBlock(s.Then)
	if !thenTerm {
		jmp := c.builder.AllocateInstruction().AsJump(contBB, nil)
		c.builder.InsertInstruction(jmp)
	}

	elseTerm := false
	if hasElse {
		c.builder.SetCurrentBlock(elseBB)
		elseTerm = c.lowerBlock(s.Else)
		if !elseTerm {
			jmp := c.builder.AllocateInstruction().AsJump(contBB, nil)
			c.builder.InsertInstruction(jmp)
		}
	}

	c.builder.Seal(contBB)
	c.builder.SetCurrentBlock(contBB)
	return hasElse && thenTerm && elseTerm
}

// lowerWhileStmt lowers WhileStmt into a head block re-evaluating Cond on
// every iteration, per spec.md §4.2's LoopStmt shape.
func (c *Compiler) lowerWhileStmt(s *sir.Stmt) {
	headBB := c.builder.AllocateBasicBlock()
	bodyBB := c.builder.AllocateBasicBlock()
	exitBB := c.builder.AllocateBasicBlock()

	jmp := c.builder.AllocateInstruction().AsJump(headBB, nil)
	c.builder.InsertInstruction(jmp)

	c.builder.SetCurrentBlock(headBB)
	cond := c.lowerExpr(s.Cond)
	cjmp := c.builder.AllocateInstruction().AsCjmp(cond, bodyBB, exitBB, nil, nil)
	c.builder.InsertInstruction(cjmp)
	c.builder.Seal(bodyBB)

	c.loops = append(c.loops, loopTargets{continueBlock: headBB, breakBlock: exitBB})
	c.builder.SetCurrentBlock(bodyBB)
	term := c.lowerBlock(s.Body)
	if !term {
		back := c.builder.AllocateInstruction().AsJump(headBB, nil)
		c.builder.InsertInstruction(back)
	}
	c.loops = c.loops[:len(c.loops)-1]

	c.builder.Seal(headBB)
	c.builder.Seal(exitBB)
	c.builder.SetCurrentBlock(exitBB)
}

// lowerLoopStmt lowers an unconditional LoopStmt (`loop { ... }`): the
// body block is its own back-edge target, exited only via break.
func (c *Compiler) lowerLoopStmt(s *sir.Stmt) {
	bodyBB := c.builder.AllocateBasicBlock()
	exitBB := c.builder.AllocateBasicBlock()

	jmp := c.builder.AllocateInstruction().AsJump(bodyBB, nil)
	c.builder.InsertInstruction(jmp)

	c.loops = append(c.loops, loopTargets{continueBlock: bodyBB, breakBlock: exitBB})
	c.builder.SetCurrentBlock(bodyBB)
	term := c.lowerBlock(s.Body)
	if !term {
		back := c.builder.AllocateInstruction().AsJump(bodyBB, nil)
		c.builder.InsertInstruction(back)
	}
	c.loops = c.loops[:len(c.loops)-1]

	c.builder.Seal(bodyBB)
	c.builder.Seal(exitBB)
	c.builder.SetCurrentBlock(exitBB)
}

// lowerForStmt lowers a range-based ForStmt to an index-counted loop;
// any other iterable form (a user iter()/next() protocol) is not yet
// implemented here — a real implementation would lower it to repeated
// calls against the analyzer-resolved iter()/next() decls the way
// spec.md §4.2 describes, which needs those calls' Decl handles threaded
// through s.Desugar by the analyzer first.
func (c *Compiler) lowerForStmt(s *sir.Stmt) {
	rangeExpr := c.unit.Expr(s.Range)
	if rangeExpr.Kind != sir.ExprRange {
		panic("ssagen: for-loops over a non-range iterable are not yet implemented")
	}

	i64 := sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI64}
	start := c.lowerExpr(rangeExpr.A)
	end := c.lowerExpr(rangeExpr.B)

	idxVar := c.builder.DeclareVariable(ssa.I64)
	c.builder.DefineVariableInCurrentBB(idxVar, start)
	c.vars[s.BindVar.Name] = varInfo{variable: idxVar, typ: i64}

	headBB := c.builder.AllocateBasicBlock()
	bodyBB := c.builder.AllocateBasicBlock()
	exitBB := c.builder.AllocateBasicBlock()

	jmp := c.builder.AllocateInstruction().AsJump(headBB, nil)
	c.builder.InsertInstruction(jmp)

	c.builder.SetCurrentBlock(headBB)
	idx := c.builder.FindValue(idxVar)
	cmp := c.builder.AllocateInstruction().AsIcmp(ssa.IntegerCmpCondSignedLessThan, idx, end)
	c.builder.InsertInstruction(cmp)
	cjmp := c.builder.AllocateInstruction().AsCjmp(cmp.Return(), bodyBB, exitBB, nil, nil)
	c.builder.InsertInstruction(cjmp)
	c.builder.Seal(bodyBB)

	c.loops = append(c.loops, loopTargets{continueBlock: headBB, breakBlock: exitBB})
	c.builder.SetCurrentBlock(bodyBB)
	term := c.lowerBlock(s.Body)
	if !term {
		idx := c.builder.FindValue(idxVar)
		one := c.builder.AllocateInstruction().AsIconst(ssa.I64, 1)
		c.builder.InsertInstruction(one)
		inc := c.builder.AllocateInstruction().AsBinary(ssa.OpcodeIAdd, idx, one.Return())
		c.builder.InsertInstruction(inc)
		c.builder.DefineVariableInCurrentBB(idxVar, inc.Return())
		back := c.builder.AllocateInstruction().AsJump(headBB, nil)
		c.builder.InsertInstruction(back)
	}
	c.loops = c.loops[:len(c.loops)-1]

	c.builder.Seal(headBB)
	c.builder.Seal(exitBB)
	c.builder.SetCurrentBlock(exitBB)
}

// lowerExpr lowers h to the SSA Value representing its result, loading
// through an address when h names storage (a local of aggregate type is
// already its own address per sirTypeToSSA's aggregate-as-Addr rule).
func (c *Compiler) lowerExpr(h sir.Handle) ssa.Value {
	e := c.unit.Expr(h)
	switch e.Kind {
	case sir.ExprIntLiteral:
		instr := c.builder.AllocateInstruction().AsIconst(sirTypeToSSA(e.Type), e.IntVal)
		c.builder.InsertInstruction(instr)
		return instr.Return()

	case sir.ExprFPLiteral:
		instr := c.builder.AllocateInstruction().AsFconst(sirTypeToSSA(e.Type), e.FloatVal)
		c.builder.InsertInstruction(instr)
		return instr.Return()

	case sir.ExprBoolLiteral:
		v := int64(0)
		if e.BoolVal {
			v = 1
		}
		instr := c.builder.AllocateInstruction().AsIconst(ssa.I8, v)
		c.builder.InsertInstruction(instr)
		return instr.Return()

	case sir.ExprCharLiteral:
		instr := c.builder.AllocateInstruction().AsIconst(ssa.I8, int64(e.CharVal))
		c.builder.InsertInstruction(instr)
		return instr.Return()

	case sir.ExprSymbol:
		return c.lowerSymbolExpr(e)

	case sir.ExprBinary:
		return c.lowerBinaryExpr(e)

	case sir.ExprUnary:
		return c.lowerUnaryExpr(e)

	case sir.ExprCall:
		return c.lowerCallExpr(e)

	case sir.ExprField, sir.ExprDot, sir.ExprIndex, sir.ExprStar:
		addr := c.lowerAddr(h)
		if isAggregate(e.Type) {
			return addr
		}
		instr := c.builder.AllocateInstruction().AsLoad(addr, sirTypeToSSA(e.Type))
		c.builder.InsertInstruction(instr)
		return instr.Return()

	case sir.ExprStructLiteral:
		return c.lowerStructLiteral(e)

	default:
		panic(fmt.Sprintf("ssagen: lowering of expression kind %d is not implemented", e.Kind))
	}
}

// sirTypeSize returns the in-memory size in bytes of one value of t,
// used to scale OFFSETPTR's index operand; sir.Type carries no Size
// method of its own (only Primitive.Width does), so this mirrors the
// same primitive-width table sirTypeToSSA already switches over and
// falls back to a pointer-sized slot for every aggregate/indirect kind
// (no struct-layout pass exists; the 8-byte fallback is the size used).
func sirTypeSize(t sir.Type) int64 {
	if t.Kind == sir.TypePrimitive {
		return int64(t.Prim.Width() / 8)
	}
	return 8
}

func isAggregate(t sir.Type) bool {
	switch t.Kind {
	case sir.TypeStruct, sir.TypeUnion, sir.TypeEnum, sir.TypeArray, sir.TypeStaticArray, sir.TypeTuple, sir.TypeClosure:
		return true
	default:
		return false
	}
}

func (c *Compiler) lowerSymbolExpr(e *sir.Expr) ssa.Value {
	switch e.Sym.Kind {
	case sir.SymLocal:
		info, ok := c.vars[e.Sym.Name]
		if !ok {
			panic("ssagen: reference to undeclared local " + e.Sym.Name)
		}
		return c.builder.FindValue(info.variable)

	case sir.SymConst:
		decl := c.unit.Decl(e.Sym.DeclHandle)
		return c.lowerExpr(decl.ValueExpr)

	default:
		panic(fmt.Sprintf("ssagen: lowering a reference to symbol kind %d is not implemented", e.Sym.Kind))
	}
}

func (c *Compiler) lowerBinaryExpr(e *sir.Expr) ssa.Value {
	opType := c.unit.Expr(e.A).Type
	float := opType.Kind == sir.TypePrimitive && opType.Prim.Float()
	signed := opType.Kind == sir.TypePrimitive && opType.Prim.Signed()

	lhs := c.lowerExpr(e.A)
	rhs := c.lowerExpr(e.B)

	if icond, ok := intCmpCond(e.BinOp, signed); ok && !float {
		instr := c.builder.AllocateInstruction().AsIcmp(icond, lhs, rhs)
		c.builder.InsertInstruction(instr)
		return instr.Return()
	}
	if fcond, ok := floatCmpCond(e.BinOp); ok && float {
		instr := c.builder.AllocateInstruction().AsFcmp(fcond, lhs, rhs)
		c.builder.InsertInstruction(instr)
		return instr.Return()
	}

	op, ok := binaryOpcode(e.BinOp, float, signed)
	if !ok {
		panic(fmt.Sprintf("ssagen: lowering of binary operator %d is not implemented", e.BinOp))
	}
	instr := c.builder.AllocateInstruction().AsBinary(op, lhs, rhs)
	c.builder.InsertInstruction(instr)
	return instr.Return()
}

func binaryOpcode(op sir.BinaryOp, float, signed bool) (ssa.Opcode, bool) {
	switch op {
	case sir.OpAdd:
		if float {
			return ssa.OpcodeFAdd, true
		}
		return ssa.OpcodeIAdd, true
	case sir.OpSub:
		if float {
			return ssa.OpcodeFSub, true
		}
		return ssa.OpcodeISub, true
	case sir.OpMul:
		if float {
			return ssa.OpcodeFMul, true
		}
		return ssa.OpcodeIMul, true
	case sir.OpDiv:
		if float {
			return ssa.OpcodeFDiv, true
		}
		if signed {
			return ssa.OpcodeSDiv, true
		}
		return ssa.OpcodeUDiv, true
	case sir.OpMod:
		if signed {
			return ssa.OpcodeSRem, true
		}
		return ssa.OpcodeURem, true
	case sir.OpBitAnd, sir.OpLogAnd:
		return ssa.OpcodeBand, true
	case sir.OpBitOr, sir.OpLogOr:
		return ssa.OpcodeBor, true
	case sir.OpBitXor:
		return ssa.OpcodeBxor, true
	case sir.OpShl:
		return ssa.OpcodeShl, true
	case sir.OpShr:
		if signed {
			return ssa.OpcodeSshr, true
		}
		return ssa.OpcodeUshr, true
	default:
		return 0, false
	}
}

func intCmpCond(op sir.BinaryOp, signed bool) (ssa.IntegerCmpCond, bool) {
	switch op {
	case sir.OpEq:
		return ssa.IntegerCmpCondEqual, true
	case sir.OpNe:
		return ssa.IntegerCmpCondNotEqual, true
	case sir.OpLt:
		if signed {
			return ssa.IntegerCmpCondSignedLessThan, true
		}
		return ssa.IntegerCmpCondUnsignedLessThan, true
	case sir.OpLe:
		if signed {
			return ssa.IntegerCmpCondSignedLessThanOrEqual, true
		}
		return ssa.IntegerCmpCondUnsignedLessThanOrEqual, true
	case sir.OpGt:
		if signed {
			return ssa.IntegerCmpCondSignedGreaterThan, true
		}
		return ssa.IntegerCmpCondUnsignedGreaterThan, true
	case sir.OpGe:
		if signed {
			return ssa.IntegerCmpCondSignedGreaterThanOrEqual, true
		}
		return ssa.IntegerCmpCondUnsignedGreaterThanOrEqual, true
	default:
		return 0, false
	}
}

func floatCmpCond(op sir.BinaryOp) (ssa.FloatCmpCond, bool) {
	switch op {
	case sir.OpEq:
		return ssa.FloatCmpEqual, true
	case sir.OpNe:
		return ssa.FloatCmpNotEqual, true
	case sir.OpLt:
		return ssa.FloatCmpLessThan, true
	case sir.OpLe:
		return ssa.FloatCmpLessThanOrEqual, true
	case sir.OpGt:
		return ssa.FloatCmpGreaterThan, true
	case sir.OpGe:
		return ssa.FloatCmpGreaterThanOrEqual, true
	default:
		return 0, false
	}
}

func (c *Compiler) lowerUnaryExpr(e *sir.Expr) ssa.Value {
	operandType := c.unit.Expr(e.A).Type
	float := operandType.Kind == sir.TypePrimitive && operandType.Prim.Float()

	switch e.UnOp {
	case sir.OpAddr, sir.OpAddrMut:
		return c.lowerAddr(e.A)
	case sir.OpDeref:
		return c.lowerExpr(e.A) // e.A's value already is the pointee address
	}

	v := c.lowerExpr(e.A)
	switch e.UnOp {
	case sir.OpNeg:
		op := ssa.OpcodeINeg
		if float {
			op = ssa.OpcodeFNeg
		}
		instr := c.builder.AllocateInstruction().AsUnary(op, v)
		c.builder.InsertInstruction(instr)
		return instr.Return()
	case sir.OpBitNot:
		instr := c.builder.AllocateInstruction().AsUnary(ssa.OpcodeBnot, v)
		c.builder.InsertInstruction(instr)
		return instr.Return()
	case sir.OpNot:
		one := c.builder.AllocateInstruction().AsIconst(ssa.I8, 1)
		c.builder.InsertInstruction(one)
		instr := c.builder.AllocateInstruction().AsBinary(ssa.OpcodeBxor, v, one.Return())
		c.builder.InsertInstruction(instr)
		return instr.Return()
	default:
		panic(fmt.Sprintf("ssagen: lowering of unary operator %d is not implemented", e.UnOp))
	}
}

// lowerCallExpr lowers a direct call to the analyzer-resolved callee
// decl; indirect calls through a closure/function-pointer value are not
// yet implemented (would lower to OpcodeCallIndirect against the
// callee's ssa.Signature once ssagen tracks one per FunctionType).
func (c *Compiler) lowerCallExpr(e *sir.Expr) ssa.Value {
	callee := c.unit.Expr(e.A)
	if callee.Kind != sir.ExprSymbol || callee.Sym.Kind != sir.SymFunc {
		panic("ssagen: only direct calls to a resolved function are implemented")
	}
	fn := c.unit.Decl(callee.Sym.DeclHandle)

	args := make([]ssa.Value, len(e.List))
	for i, a := range e.List {
		args[i] = c.lowerExpr(a)
	}

	retType := sirTypeToSSA(fn.ReturnType)
	instr := c.builder.AllocateInstruction().AsCall(fn.Name.Name, args, retType)
	c.builder.InsertInstruction(instr)
	return instr.Return()
}

// lowerStructLiteral allocates a fresh struct slot and stores each
// provided field value into it via MEMBERPTR, matching spec.md §4.2's
// "struct literals allocate a temporary and store field-by-field".
func (c *Compiler) lowerStructLiteral(e *sir.Expr) ssa.Value {
	structDecl := c.unit.Decl(e.Type.Decl)
	size := int64(len(structDecl.Fields)) * 8 // 8 bytes per field; not refined later
	alloca := c.builder.AllocateInstruction().AsAlloca(sirTypeToSSA(e.Type), size)
	c.builder.InsertInstruction(alloca)
	addr := alloca.Return()

	for i, fieldExpr := range e.List {
		fieldName := e.Names[i].Name
		fieldIx := -1
		for idx, fh := range structDecl.Fields {
			if c.unit.Decl(fh).Name.Name == fieldName {
				fieldIx = idx
				break
			}
		}
		if fieldIx < 0 {
			panic("ssagen: struct literal names unknown field " + fieldName)
		}
		val := c.lowerExpr(fieldExpr)
		ptr := c.builder.AllocateInstruction().AsMemberPtr(addr, int64(fieldIx))
		c.builder.InsertInstruction(ptr)
		store := c.builder.AllocateInstruction().AsStore(val, ptr.Return())
		c.builder.InsertInstruction(store)
	}
	return addr
}

// lowerAddr lowers h to the address of its storage, for use as an
// assignment target or as the base of a further MEMBERPTR/OFFSETPTR.
func (c *Compiler) lowerAddr(h sir.Handle) ssa.Value {
	e := c.unit.Expr(h)
	switch e.Kind {
	case sir.ExprSymbol:
		if e.Sym.Kind == sir.SymLocal {
			info, ok := c.vars[e.Sym.Name]
			if !ok {
				panic("ssagen: address-of undeclared local " + e.Sym.Name)
			}
			return c.builder.FindValue(info.variable)
		}
		panic(fmt.Sprintf("ssagen: taking the address of symbol kind %d is not implemented", e.Sym.Kind))

	case sir.ExprField, sir.ExprDot:
		base := c.lowerAddrOrValue(e.A)
		fieldDecl := c.unit.Decl(e.B)
		instr := c.builder.AllocateInstruction().AsMemberPtr(base, int64(fieldDecl.FieldIx))
		c.builder.InsertInstruction(instr)
		return instr.Return()

	case sir.ExprIndex:
		base := c.lowerAddrOrValue(e.A)
		idx := c.lowerExpr(e.B)
		elemSize := sirTypeSize(e.Type)
		instr := c.builder.AllocateInstruction().AsOffsetPtr(base, idx, elemSize)
		c.builder.InsertInstruction(instr)
		return instr.Return()

	case sir.ExprStar:
		return c.lowerExpr(e.A)

	default:
		panic(fmt.Sprintf("ssagen: taking the address of expression kind %d is not implemented", e.Kind))
	}
}

// lowerAddrOrValue lowers h as an address: aggregate-typed expressions
// already evaluate to their own address (see lowerExpr), everything else
// must be addressable storage.
func (c *Compiler) lowerAddrOrValue(h sir.Handle) ssa.Value {
	e := c.unit.Expr(h)
	if isAggregate(e.Type) || e.Type.Kind == sir.TypePointer || e.Type.Kind == sir.TypeReference {
		return c.lowerExpr(h)
	}
	return c.lowerAddr(h)
}
