package arm64

import (
	"math"

	"github.com/banjoc/banjoc/internal/backend"
	"github.com/banjoc/banjoc/internal/mcode"
	"github.com/banjoc/banjoc/internal/ssa"
)

// NewTarget returns a backend.Machine selecting AArch64 instructions.
func NewTarget() backend.Machine {
	return &Target{}
}

// Target implements backend.Machine for AArch64.
type Target struct {
	ctx backend.CompilationContext
}

func (t *Target) SetCompilationContext(ctx backend.CompilationContext) { t.ctx = ctx }

func (t *Target) StartFunction([]ssa.BasicBlock) {}

func (t *Target) StartBlock(ssa.BasicBlock) {}

func (t *Target) EndBlock() {}

func (t *Target) EndFunction() {}

func (t *Target) Reset() {}

func (t *Target) width(v ssa.Value) uint8 { return uint8(t.ctx.ValueType(v).Size()) }

func (t *Target) reg(v ssa.Value) mcode.VReg { return t.ctx.VRegOf(v) }

// operand returns an immediate for a small (12-bit unsigned, AArch64's
// ADD/SUB/CMP immediate field) constant, otherwise the value's register:
// unlike amd64, most AArch64 ALU forms cannot take an arbitrary 64-bit
// immediate, so a wide constant must instead be materialized via MOVZ
// and this function leaves it in its register.
func (t *Target) operand(v ssa.Value) mcode.Operand {
	if !v.Valid() {
		return mcode.Operand{}
	}
	def := t.ctx.ValueDefinition(v)
	if def.IsFromInstr() && def.Instr.Opcode() == ssa.OpcodeCopy && len(def.Instr.Args()) == 0 {
		if !t.ctx.ValueType(v).Float() {
			imm := def.Instr.Immediate()
			if imm >= 0 && imm < 1<<12 {
				if def.RefCount == 1 {
					t.ctx.MarkLowered(def.Instr)
				}
				return mcode.ImmOperand(imm)
			}
		}
	}
	return mcode.RegOperand(t.ctx.VRegOf(v))
}

func (t *Target) emit(op mcode.Op, width uint8, dst, src1, src2 mcode.Operand, defs, uses []mcode.VReg) {
	t.ctx.Emit(&mcode.Instruction{Op: op, Dst: dst, Src1: src1, Src2: src2, Width: width, Defs: defs, Uses: uses})
}

// LowerInstr lowers one SSA instruction into one or more AArch64
// mcode.Instructions.
func (t *Target) LowerInstr(instr *ssa.Instruction) {
	switch instr.Opcode() {
	case ssa.OpcodeAlloca:
		dst := t.reg(instr.Return())
		t.emit(OpAdd, 8, mcode.RegOperand(dst), mcode.ImmOperand(instr.Immediate()), mcode.Operand{}, []mcode.VReg{dst}, nil)

	case ssa.OpcodeLoad:
		addr := instr.Arg()
		dst := t.reg(instr.Return())
		mem := mcode.MemOperand(t.reg(addr), 0)
		t.emit(OpLdr, t.width(instr.Return()), mcode.RegOperand(dst), mem, mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(addr)})

	case ssa.OpcodeStore:
		value, addr := instr.Arg(), instr.Arg2()
		mem := mcode.MemOperand(t.reg(addr), 0)
		t.emit(OpStr, t.width(value), mem, t.operand(value), mcode.Operand{}, nil, []mcode.VReg{t.reg(addr), t.reg(value)})

	case ssa.OpcodeLoadArg:
		dst := t.reg(instr.Return())
		t.emit(OpMov, t.width(instr.Return()), mcode.RegOperand(dst), mcode.ImmOperand(instr.Immediate()), mcode.Operand{}, []mcode.VReg{dst}, nil)

	case ssa.OpcodeMemberPtr:
		base := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpAdd, 8, mcode.RegOperand(dst), mcode.RegOperand(t.reg(base)), mcode.ImmOperand(instr.Immediate()),
			[]mcode.VReg{dst}, []mcode.VReg{t.reg(base)})

	case ssa.OpcodeOffsetPtr:
		base, index := instr.Arg(), instr.Arg2()
		dst := t.reg(instr.Return())
		scratch := t.ctx.AllocateVReg(mcode.RegClassGPR)
		t.emit(OpMul, 8, mcode.RegOperand(scratch), t.operand(index), mcode.ImmOperand(instr.Immediate()),
			[]mcode.VReg{scratch}, []mcode.VReg{t.reg(index)})
		t.emit(OpAdd, 8, mcode.RegOperand(dst), mcode.RegOperand(t.reg(base)), mcode.RegOperand(scratch),
			[]mcode.VReg{dst}, []mcode.VReg{t.reg(base), scratch})

	case ssa.OpcodeCopy:
		dst := t.reg(instr.Return())
		if len(instr.Args()) == 0 {
			if t.ctx.ValueType(instr.Return()).Float() {
				bits := int64(math.Float64bits(instr.FImmediate()))
				t.emit(OpMovz, t.width(instr.Return()), mcode.RegOperand(dst), mcode.ImmOperand(bits), mcode.Operand{}, []mcode.VReg{dst}, nil)
			} else {
				t.emit(OpMovz, t.width(instr.Return()), mcode.RegOperand(dst), mcode.ImmOperand(instr.Immediate()), mcode.Operand{}, []mcode.VReg{dst}, nil)
			}
		} else {
			src := instr.Arg()
			t.emit(OpMov, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(src), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(src)})
		}

	case ssa.OpcodeIAdd, ssa.OpcodeISub, ssa.OpcodeIMul, ssa.OpcodeSDiv, ssa.OpcodeUDiv,
		ssa.OpcodeBand, ssa.OpcodeBor, ssa.OpcodeBxor, ssa.OpcodeShl, ssa.OpcodeSshr, ssa.OpcodeUshr:
		t.lowerIntBinary(instr)

	case ssa.OpcodeSRem, ssa.OpcodeURem:
		t.lowerIntRem(instr)

	case ssa.OpcodeFAdd, ssa.OpcodeFSub, ssa.OpcodeFMul, ssa.OpcodeFDiv:
		t.lowerFloatBinary(instr)

	case ssa.OpcodeINeg:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpSub, t.width(instr.Return()), mcode.RegOperand(dst), mcode.ImmOperand(0), t.operand(x), []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeFNeg:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpFneg, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeSqrt:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpFsqrt, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeBnot:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpMvn, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeIcmp:
		t.lowerIcmpStandalone(instr)

	case ssa.OpcodeFcmp:
		t.lowerFcmpStandalone(instr)

	case ssa.OpcodeUExtend:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpUxt, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeSExtend:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpSxt, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeTruncate:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpMov, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeFpromote, ssa.OpcodeFdemote:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpFcvt, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeUtoF:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpUcvtf, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeStoF:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpScvtf, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeFtoU:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpFcvtzu, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeFtoS:
		x := instr.Arg()
		dst := t.reg(instr.Return())
		t.emit(OpFcvtzs, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), mcode.Operand{}, []mcode.VReg{dst}, []mcode.VReg{t.reg(x)})

	case ssa.OpcodeJump:
		target := instr.BranchTargets()[0]
		t.lowerBranchArgs(target)
		t.emit(OpB, 0, mcode.LabelOperand(t.ctx.BlockOf(target.Block)), mcode.Operand{}, mcode.Operand{}, nil, nil)

	case ssa.OpcodeCjmp:
		t.lowerCjmp(instr, false)

	case ssa.OpcodeFcjmp:
		t.lowerCjmp(instr, true)

	case ssa.OpcodeSelect:
		args := instr.Args()
		cond, x, y := args[0], args[1], instr.Arg2()
		dst := t.reg(instr.Return())
		t.emit(OpCmp, t.width(cond), t.operand(cond), mcode.ImmOperand(0), mcode.Operand{}, nil, []mcode.VReg{t.reg(cond)})
		t.emit(OpCsel, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), t.operand(y),
			[]mcode.VReg{dst}, []mcode.VReg{t.reg(x), t.reg(y)})

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
		panic("arm64: unhandled ssa opcode " + instr.Opcode().String())
	}
}

func (t *Target) lowerIntBinary(instr *ssa.Instruction) {
	x, y := instr.Arg(), instr.Arg2()
	dst := t.reg(instr.Return())
	op := map[ssa.Opcode]mcode.Op{
		ssa.OpcodeIAdd: OpAdd, ssa.OpcodeISub: OpSub, ssa.OpcodeIMul: OpMul,
		ssa.OpcodeSDiv: OpSdiv, ssa.OpcodeUDiv: OpUdiv,
		ssa.OpcodeBand: OpAnd, ssa.OpcodeBor: OpOrr, ssa.OpcodeBxor: OpEor,
		ssa.OpcodeShl: OpLsl, ssa.OpcodeSshr: OpAsr, ssa.OpcodeUshr: OpLsr,
	}[instr.Opcode()]
	t.emit(op, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), t.operand(y),
		[]mcode.VReg{dst}, []mcode.VReg{t.reg(x), t.reg(y)})
}

// lowerIntRem computes a % b as a two-instruction sequence (no native
// AArch64 remainder instruction): q = a/b, r = a - q*b via MSUB.
func (t *Target) lowerIntRem(instr *ssa.Instruction) {
	x, y := instr.Arg(), instr.Arg2()
	dst := t.reg(instr.Return())
	quot := t.ctx.AllocateVReg(mcode.RegClassGPR)
	divOp := OpUdiv
	if instr.Opcode() == ssa.OpcodeSRem {
		divOp = OpSdiv
	}
	t.emit(divOp, t.width(instr.Return()), mcode.RegOperand(quot), t.operand(x), t.operand(y),
		[]mcode.VReg{quot}, []mcode.VReg{t.reg(x), t.reg(y)})
	t.emit(OpMsub, t.width(instr.Return()), mcode.RegOperand(dst), mcode.RegOperand(quot), t.operand(y),
		[]mcode.VReg{dst}, []mcode.VReg{quot, t.reg(y), t.reg(x)})
}

func (t *Target) lowerFloatBinary(instr *ssa.Instruction) {
	x, y := instr.Arg(), instr.Arg2()
	dst := t.reg(instr.Return())
	op := map[ssa.Opcode]mcode.Op{
		ssa.OpcodeFAdd: OpFadd, ssa.OpcodeFSub: OpFsub, ssa.OpcodeFMul: OpFmul, ssa.OpcodeFDiv: OpFdiv,
	}[instr.Opcode()]
	t.emit(op, t.width(instr.Return()), mcode.RegOperand(dst), t.operand(x), t.operand(y),
		[]mcode.VReg{dst}, []mcode.VReg{t.reg(x), t.reg(y)})
}

var intCondBranch = map[ssa.IntegerCmpCond]mcode.Op{
	ssa.IntegerCmpCondEqual: OpBeq, ssa.IntegerCmpCondNotEqual: OpBne,
	ssa.IntegerCmpCondSignedLessThan: OpBlt, ssa.IntegerCmpCondSignedGreaterThanOrEqual: OpBge,
	ssa.IntegerCmpCondSignedGreaterThan: OpBgt, ssa.IntegerCmpCondSignedLessThanOrEqual: OpBle,
	ssa.IntegerCmpCondUnsignedLessThan: OpBlo, ssa.IntegerCmpCondUnsignedGreaterThanOrEqual: OpBhs,
	ssa.IntegerCmpCondUnsignedGreaterThan: OpBhi, ssa.IntegerCmpCondUnsignedLessThanOrEqual: OpBls,
}

var floatCondBranch = map[ssa.FloatCmpCond]mcode.Op{
	ssa.FloatCmpEqual: OpBeq, ssa.FloatCmpNotEqual: OpBne,
	ssa.FloatCmpLessThan: OpBlo, ssa.FloatCmpLessThanOrEqual: OpBls,
	ssa.FloatCmpGreaterThan: OpBhi, ssa.FloatCmpGreaterThanOrEqual: OpBhs,
}

func (t *Target) lowerIcmpStandalone(instr *ssa.Instruction) {
	x, y := instr.Arg(), instr.Arg2()
	dst := t.reg(instr.Return())
	t.emit(OpCmp, t.width(x), t.operand(x), t.operand(y), mcode.Operand{}, nil, []mcode.VReg{t.reg(x), t.reg(y)})
	t.emit(OpCset, 1, mcode.RegOperand(dst), mcode.ImmOperand(int64(instr.Cond())), mcode.Operand{}, []mcode.VReg{dst}, nil)
}

func (t *Target) lowerFcmpStandalone(instr *ssa.Instruction) {
	x, y := instr.Arg(), instr.Arg2()
	dst := t.reg(instr.Return())
	t.emit(OpFcmp, t.width(x), t.operand(x), t.operand(y), mcode.Operand{}, nil, []mcode.VReg{t.reg(x), t.reg(y)})
	t.emit(OpCset, 1, mcode.RegOperand(dst), mcode.ImmOperand(int64(instr.FCond())), mcode.Operand{}, []mcode.VReg{dst}, nil)
}

// lowerBranchArgs copies a terminator's argument vector for target into
// the target block's parameter registers; see the amd64 selector's
// identically-named method for the parallel-copy caveat this shares.
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
	var bOp mcode.Op
	fused := false
	if def.IsFromInstr() && def.RefCount == 1 {
		if !float && def.Instr.Opcode() == ssa.OpcodeIcmp {
			x, y := def.Instr.Arg(), def.Instr.Arg2()
			t.emit(OpCmp, t.width(x), t.operand(x), t.operand(y), mcode.Operand{}, nil, []mcode.VReg{t.reg(x), t.reg(y)})
			bOp = intCondBranch[def.Instr.Cond()]
			t.ctx.MarkLowered(def.Instr)
			fused = true
		} else if float && def.Instr.Opcode() == ssa.OpcodeFcmp {
			x, y := def.Instr.Arg(), def.Instr.Arg2()
			t.emit(OpFcmp, t.width(x), t.operand(x), t.operand(y), mcode.Operand{}, nil, []mcode.VReg{t.reg(x), t.reg(y)})
			bOp = floatCondBranch[def.Instr.FCond()]
			t.ctx.MarkLowered(def.Instr)
			fused = true
		}
	}
	if !fused {
		t.emit(OpCmp, t.width(cond), t.operand(cond), mcode.ImmOperand(0), mcode.Operand{}, nil, []mcode.VReg{t.reg(cond)})
		bOp = OpBne
	}

	t.lowerBranchArgs(then)
	t.emit(bOp, 0, mcode.LabelOperand(t.ctx.BlockOf(then.Block)), mcode.Operand{}, mcode.Operand{}, nil, nil)
	t.lowerBranchArgs(els)
	t.emit(OpB, 0, mcode.LabelOperand(t.ctx.BlockOf(els.Block)), mcode.Operand{}, mcode.Operand{}, nil, nil)
}

func (t *Target) lowerCall(instr *ssa.Instruction) {
	// TODO: move args into the AAPCS64 argument registers and the result
	// out of x0/v0 before encode, mirroring the amd64 selector's ABI
	// lowering deferral.
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
	t.emit(OpBl, 0, dst, sym, mcode.Operand{}, defs, uses)
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
	t.emit(OpBlr, 0, dst, t.operand(callee), mcode.Operand{}, defs, uses)
}
