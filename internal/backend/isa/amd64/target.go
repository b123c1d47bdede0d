package amd64

import (
	"math"

	"github.com/banjoc/banjoc/internal/backend"
	"github.com/banjoc/banjoc/internal/mcode"
	"github.com/banjoc/banjoc/internal/ssa"
)

// NewTarget returns a backend.Machine selecting x86-64 instructions.
func NewTarget() backend.Machine {
	return &Target{}
}

// Target implements backend.Machine for x86-64.
type Target struct {
	ctx backend.CompilationContext
}

func (t *Target) SetCompilationContext(ctx backend.CompilationContext) { t.ctx = ctx }

func (t *Target) StartFunction([]ssa.BasicBlock) {}

func (t *Target) StartBlock(ssa.BasicBlock) {}

func (t *Target) EndBlock() {}

func (t *Target) EndFunction() {}

func (t *Target) Reset() {}

// width returns the byte width of v's SSA type, for Instruction.Width.
func (t *Target) width(v ssa.Value) uint8 {
	return uint8(t.ctx.ValueType(v).Size())
}

// operand returns the mcode Operand carrying v's value: an immediate if
// v is an integer constant materialized by a COPY with no operands
// (AsIconst), otherwise the register v was assigned. Float constants
// (AsFconst) are not folded and stay in their register.
func (t *Target) operand(v ssa.Value) mcode.Operand {
	if !v.Valid() {
		return mcode.Operand{}
	}
	def := t.ctx.ValueDefinition(v)
	if def.IsFromInstr() && def.Instr.Opcode() == ssa.OpcodeCopy && len(def.Instr.Args()) == 0 {
		if !t.ctx.ValueType(v).Float() {
			if def.RefCount == 1 {
				t.ctx.MarkLowered(def.Instr)
			}
			return mcode.ImmOperand(def.Instr.Immediate())
		}
	}
	return mcode.RegOperand(t.ctx.VRegOf(v))
}

func (t *Target) reg(v ssa.Value) mcode.VReg { return t.ctx.VRegOf(v) }

func (t *Target) emit(op mcode.Op, width uint8, dst, src1, src2 mcode.Operand, defs, uses []mcode.VReg) {
	t.ctx.Emit(&mcode.Instruction{Op: op, Dst: dst, Src1: src1, Src2: src2, Width: width, Defs: defs, Uses: uses})
}

// LowerInstr lowers one SSA instruction into one or more x86-64
// mcode.Instructions.
func (t *Target) LowerInstr(instr *ssa.Instruction) {
	switch instr.Opcode() {
	case ssa.OpcodeAlloca:
		dst := t.reg(instr.Return())
		t.emit(OpFrameAddr, 8, mcode.RegOperand(dst), mcode.ImmOperand(instr.Immediate()), mcode.Operand{}, []mcode.VReg{dst}, nil)

	case ssa.OpcodeLoad:
		addr := instr.Arg()
		dst := t.reg(instr.Return())
		mem := mcode.MemOperand(t.reg(addr), 0)
		t.emit(OpLoad, t.width(instr.Return()), mcode.RegOperand(dst), mem, mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(addr)})

	case ssa.OpcodeStore:
		value, addr := instr.Arg(), instr.Arg2()
		mem := mcode.MemOperand(t.reg(addr), 0)
		t.emit(OpStore, t.width(value), mem, t.operand(value), mcode.Operand{}, nil, []mcode.VReg{t.reg(addr), t.reg(value)})

	case ssa.OpcodeLoadArg:
		dst := t.reg(instr.Return())
		t.emit(OpMov, t.width(instr.Return()), mcode.RegOperand(dst), mcode.ImmOperand(instr.Immediate()), mcode.Operand{}, []mcode.VReg{dst}, nil)

	case ssa.OpcodeMemberPtr:
		base := instr.Arg()
		dst := t.reg(instr.Return())
		// instr.Immediate() is the field's precomputed byte offset.
		mem := mcode.MemOperand(t.reg(base), int32(instr.Immediate()))
		t.emit(OpLea, 8, mcode.RegOperand(dst), mem, mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(base)})

	case ssa.OpcodeOffsetPtr:
		base, index := instr.Arg(), instr.Arg2()
		elemSize := instr.Immediate()
		dst := t.reg(instr.Return())
		scratch := t.ctx.AllocateVReg(mcode.RegClassGPR)
		t.emit(OpImul, 8, mcode.RegOperand(scratch), t.operand(index), mcode.ImmOperand(elemSize),
			[]mcode.VReg{scratch}, []mcode.VReg{t.reg(index)})
		mem := mcode.Operand{Kind: mcode.OperandMem, Base: t.reg(base), Index: scratch, Scale: 1}
		t.emit(OpLea, 8, mcode.RegOperand(dst), mem, mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(base), scratch})

	case ssa.OpcodeCopy:
		if len(instr.Args()) == 0 {
			// Constant: fold into consumers' immediate operands where
			// possible (see operand); still materialize a register copy
			// here in case some consumer needs this value in a register
			// directly (e.g. a float constant, or a CALL argument).
			dst := t.reg(instr.Return())
			if t.ctx.ValueType(instr.Return()).Float() {
				bits := int64(math.Float64bits(instr.FImmediate()))
				t.emit(OpMovImm, t.width(instr.Return()), mcode.RegOperand(dst), mcode.ImmOperand(bits), mcode.Operand{}, []mcode.VReg{dst}, nil)
			} else {
				t.emit(OpMovImm, t.width(instr.Return()), mcode.RegOperand(dst), mcode.ImmOperand(instr.Immediate()), mcode.Operand{}, []mcode.VReg{dst}, nil)
			}
		} else {
			src := instr.Arg()
			dst := t.reg(instr.Return())
			t.emit(OpMov, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(src), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(src)})
		}

	case ssa.OpcodeIAdd, ssa.OpcodeISub, ssa.OpcodeIMul, ssa.OpcodeSDiv, ssa.OpcodeUDiv,
		ssa.OpcodeSRem, ssa.OpcodeURem, ssa.OpcodeBand, ssa.OpcodeBor, ssa.OpcodeBxor,
		ssa.OpcodeShl, ssa.OpcodeSshr, ssa.OpcodeUshr:
		t.lowerIntBinary(instr)

	case ssa.OpcodeFAdd, ssa.OpcodeFSub, ssa.OpcodeFMul, ssa.OpcodeFDiv:
		t.lowerFloatBinary(instr)

	case ssa.OpcodeINeg:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpNeg, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeFNeg:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpNegSS, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeSqrt:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpSqrtSS, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeBnot:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpNot, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeIcmp:
		t.lowerIcmpStandalone(instr)

	case ssa.OpcodeFcmp:
		t.lowerFcmpStandalone(instr)

	case ssa.OpcodeUExtend:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpMovzx, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeSExtend:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpMovsx, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeTruncate:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpMovTrunc, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeFpromote, ssa.OpcodeFdemote:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpCvtFloat, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeUtoF, ssa.OpcodeStoF:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpCvtIntToFloat, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeFtoU, ssa.OpcodeFtoS:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpCvtFloatToInt, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeJump:
		target := instr.BranchTargets()[0]
		t.lowerBranchArgs(target)
		t.emit(OpJmp, 0, mcode.LabelOperand(t.ctx.BlockOf(target.Block)), mcode.Operand{}, mcode.Operand{}, nil, nil)

	case ssa.OpcodeCjmp:
		t.lowerCjmp(instr, false)

	case ssa.OpcodeFcjmp:
		t.lowerCjmp(instr, true)

	case ssa.OpcodeSelect:
		args := instr.Args()
		cond, x, y := args[0], args[1], instr.Arg2()
		dst := t.reg(instr.Return())
		t.emit(OpMov, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(y), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(y)})
		t.emit(OpCmp, t.width(cond), t.operand(cond), mcode.ImmOperand(0), mcode.Operand{}, nil, []mcode.VReg{t.reg(cond)})
		t.emit(OpCmovne, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x), dst})

	case ssa.OpcodeCall:
		t.lowerCall(instr)

	case ssa.OpcodeCallIndirect:
		t.lowerCallIndirect(instr)

	case ssa.OpcodeRet:
		uses := make([]mcode.VReg, 0, len(instr.Args()))
		for _, v := range instr.Args() {
			uses = append(uses, t.reg(v))
		}
		t.emit(OpRet, 0, mcode.Operand{}, mcode.Operand{}, mcode.Operand{}, nil, uses)

	default:
		panic("amd64: unhandled ssa opcode " + instr.Opcode().String())
	}
}

func (t *Target) lowerIntBinary(instr *ssa.Instruction) {
	x, y := instr.Arg(), instr.Arg2()
	dst := t.reg(instr.Return())
	op := map[ssa.Opcode]mcode.Op{
		ssa.OpcodeIAdd: OpAdd, ssa.OpcodeISub: OpSub, ssa.OpcodeIMul: OpImul,
		ssa.OpcodeSDiv: OpIdiv, ssa.OpcodeUDiv: OpDiv, ssa.OpcodeSRem: OpIdiv, ssa.OpcodeURem: OpDiv,
		ssa.OpcodeBand: OpAnd, ssa.OpcodeBor: OpOr, ssa.OpcodeBxor: OpXor,
		ssa.OpcodeShl: OpShl, ssa.OpcodeSshr: OpSar, ssa.OpcodeUshr: OpShr,
	}[instr.Opcode()]
	t.emit(op, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), t.operand(y),
		[]mcode.VReg{dst}, []mcode.VReg{t.reg(x), t.reg(y)})
}

func (t *Target) lowerFloatBinary(instr *ssa.Instruction) {
	x, y := instr.Arg(), instr.Arg2()
	dst := t.reg(instr.Return())
	op := map[ssa.Opcode]mcode.Op{
		ssa.OpcodeFAdd: OpAddSS, ssa.OpcodeFSub: OpSubSS, ssa.OpcodeFMul: OpMulSS, ssa.OpcodeFDiv: OpDivSS,
	}[instr.Opcode()]
	t.emit(op, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), t.operand(y),
		[]mcode.VReg{dst}, []mcode.VReg{t.reg(x), t.reg(y)})
}

var intCondSet = map[ssa.IntegerCmpCond]mcode.Op{
	ssa.IntegerCmpCondEqual: OpSete, ssa.IntegerCmpCondNotEqual: OpSetne,
	ssa.IntegerCmpCondSignedLessThan: OpSetl, ssa.IntegerCmpCondSignedGreaterThanOrEqual: OpSetge,
	ssa.IntegerCmpCondSignedGreaterThan: OpSetg, ssa.IntegerCmpCondSignedLessThanOrEqual: OpSetle,
	ssa.IntegerCmpCondUnsignedLessThan: OpSetb, ssa.IntegerCmpCondUnsignedGreaterThanOrEqual: OpSetae,
	ssa.IntegerCmpCondUnsignedGreaterThan: OpSeta, ssa.IntegerCmpCondUnsignedLessThanOrEqual: OpSetbe,
}

var intCondJump = map[ssa.IntegerCmpCond]mcode.Op{
	ssa.IntegerCmpCondEqual: OpJe, ssa.IntegerCmpCondNotEqual: OpJne,
	ssa.IntegerCmpCondSignedLessThan: OpJl, ssa.IntegerCmpCondSignedGreaterThanOrEqual: OpJge,
	ssa.IntegerCmpCondSignedGreaterThan: OpJg, ssa.IntegerCmpCondSignedLessThanOrEqual: OpJle,
	ssa.IntegerCmpCondUnsignedLessThan: OpJb, ssa.IntegerCmpCondUnsignedGreaterThanOrEqual: OpJae,
	ssa.IntegerCmpCondUnsignedGreaterThan: OpJa, ssa.IntegerCmpCondUnsignedLessThanOrEqual: OpJbe,
}

var floatCondJump = map[ssa.FloatCmpCond]mcode.Op{
	ssa.FloatCmpEqual: OpJe, ssa.FloatCmpNotEqual: OpJne,
	ssa.FloatCmpLessThan: OpJb, ssa.FloatCmpLessThanOrEqual: OpJbe,
	ssa.FloatCmpGreaterThan: OpJa, ssa.FloatCmpGreaterThanOrEqual: OpJae,
}

var floatCondSet = map[ssa.FloatCmpCond]mcode.Op{
	ssa.FloatCmpEqual: OpSete, ssa.FloatCmpNotEqual: OpSetne,
	ssa.FloatCmpLessThan: OpSetb, ssa.FloatCmpLessThanOrEqual: OpSetbe,
	ssa.FloatCmpGreaterThan: OpSeta, ssa.FloatCmpGreaterThanOrEqual: OpSetae,
}

func (t *Target) lowerIcmpStandalone(instr *ssa.Instruction) {
	x, y := instr.Arg(), instr.Arg2()
	dst := t.reg(instr.Return())
	t.emit(OpCmp, t.width(x), t.operand(x), t.operand(y), mcode.Operand{}, nil, []mcode.VReg{t.reg(x), t.reg(y)})
	t.emit(intCondSet[instr.Cond()], 1, mcode.RegOperand(dst), mcode.Operand{}, mcode.Operand{}, []mcode.VReg{dst}, nil)
}

func (t *Target) lowerFcmpStandalone(instr *ssa.Instruction) {
	x, y := instr.Arg(), instr.Arg2()
	dst := t.reg(instr.Return())
	t.emit(OpUComiSS, t.width(x), t.operand(x), t.operand(y), mcode.Operand{}, nil, []mcode.VReg{t.reg(x), t.reg(y)})
	t.emit(floatCondSet[instr.FCond()], 1, mcode.RegOperand(dst), mcode.Operand{}, mcode.Operand{}, []mcode.VReg{dst}, nil)
}

// lowerBranchArgs copies the argument vector a terminator supplies for
// target into the target block's parameter virtual registers. This is a
// plain sequential copy, not a parallel one: a cyclic permutation of
// block-parameter registers (e.g. a loop that swaps two induction
// variables) can clobber a source before it is read. None of this
// port's current lowerings in internal/ssagen produce such a cycle, but
// a future one could; a real allocator-aware parallel-copy sequencer
// belongs in internal/backend/regalloc once spill code needs the same
// machinery.
func (t *Target) lowerBranchArgs(target ssa.BranchTarget) {
	for i, arg := range target.Args {
		dst := t.ctx.VRegOf(target.Block.Param(i))
		t.emit(OpMov, t.width(target.Block.Param(i)), mcode.RegOperand(dst), t.operand(arg), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(arg)})
	}
}

func (t *Target) lowerCjmp(instr *ssa.Instruction, float bool) {
	then, els := instr.BranchTargets()[0], instr.BranchTargets()[1]
	cond := instr.Arg()

	def := t.ctx.ValueDefinition(cond)
	var jccOp mcode.Op
	fused := false
	if def.IsFromInstr() && def.RefCount == 1 {
		if !float && def.Instr.Opcode() == ssa.OpcodeIcmp {
			x, y := def.Instr.Arg(), def.Instr.Arg2()
			t.emit(OpCmp, t.width(x), t.operand(x), t.operand(y), mcode.Operand{}, nil, []mcode.VReg{t.reg(x), t.reg(y)})
			jccOp = intCondJump[def.Instr.Cond()]
			t.ctx.MarkLowered(def.Instr)
			fused = true
		} else if float && def.Instr.Opcode() == ssa.OpcodeFcmp {
			x, y := def.Instr.Arg(), def.Instr.Arg2()
			t.emit(OpUComiSS, t.width(x), t.operand(x), t.operand(y), mcode.Operand{}, nil, []mcode.VReg{t.reg(x), t.reg(y)})
			jccOp = floatCondJump[def.Instr.FCond()]
			t.ctx.MarkLowered(def.Instr)
			fused = true
		}
	}
	if !fused {
		t.emit(OpCmp, t.width(cond), t.operand(cond), mcode.ImmOperand(0), mcode.Operand{}, nil, []mcode.VReg{t.reg(cond)})
		jccOp = OpJne
	}

	t.lowerBranchArgs(then)
	t.emit(jccOp, 0, mcode.LabelOperand(t.ctx.BlockOf(then.Block)), mcode.Operand{}, mcode.Operand{}, nil, nil)
	t.lowerBranchArgs(els)
	t.emit(OpJmp, 0, mcode.LabelOperand(t.ctx.BlockOf(els.Block)), mcode.Operand{}, mcode.Operand{}, nil, nil)
}

func (t *Target) lowerCall(instr *ssa.Instruction) {
	// TODO: move args into the System V AMD64 argument registers and the
	// result out of rax/xmm0 before encode; for now Uses/Defs record the
	// virtual registers the ABI lowering pass still needs to pin.
	args := instr.Args()
	uses := make([]mcode.VReg, 0, len(args))
	for _, a := range args {
		uses = append(uses, t.reg(a))
	}
	var dst mcode.Operand
	var defs []mcode.VReg
	if r := instr.Return(); r.Valid() {
		d := t.reg(r)
		dst = mcode.RegOperand(d)
		defs = []mcode.VReg{d}
	}
	var sym mcode.Operand
	if slot := instr.AddrTableCallee(); slot != "" {
		sym = mcode.AddrTableOperand(slot)
	} else {
		sym = mcode.SymOperand(instr.CalleeName())
	}
	t.emit(OpCall, 0, dst, sym, mcode.Operand{}, defs, uses)
}

func (t *Target) lowerCallIndirect(instr *ssa.Instruction) {
	args := instr.Args()
	callee := args[0]
	uses := []mcode.VReg{t.reg(callee)}
	for _, a := range args[1:] {
		uses = append(uses, t.reg(a))
	}
	var dst mcode.Operand
	var defs []mcode.VReg
	if r := instr.Return(); r.Valid() {
		d := t.reg(r)
		dst = mcode.RegOperand(d)
		defs = []mcode.VReg{d}
	}
	t.emit(OpCallIndirect, 0, dst, t.operand(callee), mcode.Operand{}, defs, uses)
}
