package ssa

import (
	"fmt"
	"strings"
)

// Opcode identifies an SSA instruction's operation. The set below is
// this spec's own (ALLOCA/LOAD/STORE/...), not the teacher's WebAssembly
// opcode list; the instruction *shapes* (NullAry/Unary/Binary/Branch/
// Call/...) are the reused template.
type Opcode uint32

const (
	OpcodeInvalid Opcode = iota

	// Allocation.
	OpcodeAlloca // `p = alloca T`. Result type Addr.

	// Memory.
	OpcodeLoad      // `v = load T, p`.
	OpcodeStore     // `store v, p`. No result.
	OpcodeLoadArg   // `v = load_arg i, T`. Materializes parameter i in the entry block.
	OpcodeMemberPtr // `p = member_ptr base, fieldIndex`. Result type Addr.
	OpcodeOffsetPtr // `p = offset_ptr base, index, elemSize`. Result type Addr.
	OpcodeCopy      // `v = copy x`. Used for SSA renaming/materializing constants.

	// Integer ALU.
	OpcodeIAdd
	OpcodeISub
	OpcodeIMul
	OpcodeSDiv
	OpcodeUDiv
	OpcodeSRem
	OpcodeURem
	OpcodeINeg

	// Floating ALU.
	OpcodeFAdd
	OpcodeFSub
	OpcodeFMul
	OpcodeFDiv
	OpcodeFNeg
	OpcodeSqrt

	// Bit ops.
	OpcodeBand
	OpcodeBor
	OpcodeBxor
	OpcodeBnot

	// Shifts.
	OpcodeShl
	OpcodeSshr
	OpcodeUshr

	// Comparisons (result is always i8/bool).
	OpcodeIcmp
	OpcodeFcmp

	// Conversions.
	OpcodeUExtend
	OpcodeSExtend
	OpcodeTruncate
	OpcodeFpromote
	OpcodeFdemote
	OpcodeUtoF
	OpcodeStoF
	OpcodeFtoU
	OpcodeFtoS

	// Control.
	OpcodeJump
	OpcodeCjmp  // conditional branch on an integer/bool value
	OpcodeFcjmp // conditional branch on a float comparison result
	OpcodeSelect
	OpcodeCall
	OpcodeCallIndirect
	OpcodeRet
)

var opcodeNames = map[Opcode]string{
	OpcodeAlloca: "ALLOCA", OpcodeLoad: "LOAD", OpcodeStore: "STORE",
	OpcodeLoadArg: "LOADARG", OpcodeMemberPtr: "MEMBERPTR", OpcodeOffsetPtr: "OFFSETPTR",
	OpcodeCopy: "COPY", OpcodeIAdd: "IADD", OpcodeISub: "ISUB", OpcodeIMul: "IMUL",
	OpcodeSDiv: "SDIV", OpcodeUDiv: "UDIV", OpcodeSRem: "SREM", OpcodeURem: "UREM",
	OpcodeINeg: "INEG", OpcodeFAdd: "FADD", OpcodeFSub: "FSUB", OpcodeFMul: "FMUL",
	OpcodeFDiv: "FDIV", OpcodeFNeg: "FNEG", OpcodeSqrt: "SQRT",
	OpcodeBand: "BAND", OpcodeBor: "BOR", OpcodeBxor: "BXOR", OpcodeBnot: "BNOT",
	OpcodeShl: "SHL", OpcodeSshr: "SSHR", OpcodeUshr: "USHR",
	OpcodeIcmp: "ICMP", OpcodeFcmp: "FCMP",
	OpcodeUExtend: "UEXTEND", OpcodeSExtend: "SEXTEND", OpcodeTruncate: "TRUNCATE",
	OpcodeFpromote: "FPROMOTE", OpcodeFdemote: "FDEMOTE",
	OpcodeUtoF: "UTOF", OpcodeStoF: "STOF", OpcodeFtoU: "FTOU", OpcodeFtoS: "FTOS",
	OpcodeJump: "JMP", OpcodeCjmp: "CJMP", OpcodeFcjmp: "FCJMP", OpcodeSelect: "SELECT",
	OpcodeCall: "CALL", OpcodeCallIndirect: "CALLINDIRECT", OpcodeRet: "RET",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("opcode(%d)", o)
}

// IsTerminator reports whether o may only appear as a block terminator.
// Per SSA invariant: "Control-flow instructions (JMP, CJMP, FCJMP) appear
// only as the terminator of their block."
func (o Opcode) IsTerminator() bool {
	switch o {
	case OpcodeJump, OpcodeCjmp, OpcodeFcjmp, OpcodeRet:
		return true
	default:
		return false
	}
}

// HasSideEffects reports whether o must not be eliminated by DCE even if
// its result is unused.
func (o Opcode) HasSideEffects() bool {
	switch o {
	case OpcodeStore, OpcodeCall, OpcodeCallIndirect, OpcodeRet,
		OpcodeJump, OpcodeCjmp, OpcodeFcjmp, OpcodeAlloca:
		return true
	default:
		return false
	}
}

// BranchTarget is a terminator operand: a block plus the argument vector
// to pass as that block's parameters.
type BranchTarget struct {
	Block *basicBlock
	Args  []Value
}

// InstructionGroupID groups instructions between side-effecting
// boundaries; assigned by the DCE pass and consumed by the backend to
// reorder non-side-effecting instructions freely within a group.
type InstructionGroupID uint32

// Instruction is one SSA instruction: an opcode, optional result
// value(s), and an operand list whose interpretation depends on Opcode.
//
// This is a flat struct (fields used vary per Opcode) rather than a
// class hierarchy, following the design notes' "tagged variant, dispatch
// by match" replacement for the source's instruction hierarchy.
type Instruction struct {
	opcode Opcode

	// rValue/rValues hold this instruction's result(s); rValue is
	// invalid for void instructions (STORE, JMP, ...).
	rValue  Value
	rValues []Value

	// vs holds the Value-typed operands: ALU/cmp/call operands.
	vs []Value

	// v2 is the second Value operand for instructions that don't fit
	// the vs-slice shape cleanly (binary ops keep v1 in vs[0], v2 here,
	// to avoid a slice allocation for the overwhelmingly common case).
	v2 Value

	// imm holds an integer immediate (ALLOCA size, OFFSETPTR elemSize,
	// MEMBERPTR field index, LOADARG index).
	imm int64
	// fimm holds a floating-point immediate.
	fimm float64

	// typ is the type token for instructions that need one independent
	// of their operands (ALLOCA's allocated type, conversions' target
	// type, LOAD's loaded type).
	typ Type

	// targets holds branch targets: len 1 for JMP, len 2 for CJMP/FCJMP
	// (index 0 = true/taken, index 1 = false).
	targets []BranchTarget

	// cond holds the comparison token for ICMP/FCMP.
	cond  IntegerCmpCond
	fcond FloatCmpCond

	// calleeName/calleeSig name a Function (direct CALL) or Signature
	// (CALLINDIRECT, whose callee pointer lives in vs[0]).
	calleeName string
	calleeSig  SignatureID

	// addrTableCallee is set by InsertAddrTablePass in place of
	// calleeName: the CALL now resolves its target through the module's
	// address table slot for this function name instead of a direct
	// symbol reference.
	addrTableCallee string

	// blk is the block owning this instruction.
	blk *basicBlock
	// prev/next form the block's doubly-linked instruction list.
	prev, next *Instruction

	// gid is assigned by the DCE pass.
	gid InstructionGroupID
	// live is set by the DCE pass; dead instructions are unlinked.
	live bool
}

// FloatCmpCond enumerates floating-point comparison conditions. Only the
// ordered variants exist; ssagen emits no NaN check before a comparison.
type FloatCmpCond byte

const (
	FloatCmpEqual FloatCmpCond = iota
	FloatCmpNotEqual
	FloatCmpLessThan
	FloatCmpLessThanOrEqual
	FloatCmpGreaterThan
	FloatCmpGreaterThanOrEqual
)

// String implements fmt.Stringer.
func (c FloatCmpCond) String() string {
	switch c {
	case FloatCmpEqual:
		return "eq"
	case FloatCmpNotEqual:
		return "ne"
	case FloatCmpLessThan:
		return "lt"
	case FloatCmpLessThanOrEqual:
		return "le"
	case FloatCmpGreaterThan:
		return "gt"
	case FloatCmpGreaterThanOrEqual:
		return "ge"
	default:
		return "?"
	}
}

// Opcode returns this instruction's opcode.
func (i *Instruction) Opcode() Opcode { return i.opcode }

// Next returns the next instruction in program order within the block.
func (i *Instruction) Next() *Instruction { return i.next }

// Prev returns the previous instruction in program order within the block.
func (i *Instruction) Prev() *Instruction { return i.prev }

// Return returns this instruction's primary result value.
func (i *Instruction) Return() Value { return i.rValue }

// Returns returns this instruction's primary and any secondary result
// values (the latter for e.g. a CALL whose signature returns a tuple).
func (i *Instruction) Returns() (Value, []Value) { return i.rValue, i.rValues }

// Args returns up to two Value operands plus the raw operand slice, used
// uniformly by the DCE liveness walk.
func (i *Instruction) args() (Value, Value, []Value) {
	var v1 Value
	if len(i.vs) > 0 {
		v1 = i.vs[0]
	} else {
		v1 = valueInvalid
	}
	return v1, i.v2, i.vs
}

// HasSideEffects reports whether this instruction must survive DCE.
func (i *Instruction) HasSideEffects() bool { return i.opcode.HasSideEffects() }

// The As* methods below are how ssagen (and tests) populate an
// Instruction returned by Builder.AllocateInstruction; opcode and operand
// fields stay unexported so every construction path goes through one of
// these, keeping the per-opcode operand shape (NullAry/Unary/Binary/
// Branch/Call, per the package doc) in one place.

// AsAlloca makes i an `ALLOCA size` allocating a slot of type elemType,
// size bytes, returning its address.
func (i *Instruction) AsAlloca(elemType Type, size int64) *Instruction {
	i.opcode, i.typ, i.imm = OpcodeAlloca, elemType, size
	return i
}

// AsLoad makes i a `LOAD typ, addr`.
func (i *Instruction) AsLoad(addr Value, typ Type) *Instruction {
	i.opcode, i.typ, i.vs = OpcodeLoad, typ, []Value{addr}
	return i
}

// AsStore makes i a `STORE value, addr`; it has no result.
func (i *Instruction) AsStore(value, addr Value) *Instruction {
	i.opcode, i.vs, i.v2 = OpcodeStore, []Value{value}, addr
	return i
}

// AsLoadArg makes i a `LOADARG index, typ`, materializing parameter index
// in the entry block.
func (i *Instruction) AsLoadArg(index int64, typ Type) *Instruction {
	i.opcode, i.imm, i.typ = OpcodeLoadArg, index, typ
	return i
}

// AsMemberPtr makes i a `MEMBERPTR base, fieldIndex`.
func (i *Instruction) AsMemberPtr(base Value, fieldIndex int64) *Instruction {
	i.opcode, i.vs, i.imm = OpcodeMemberPtr, []Value{base}, fieldIndex
	return i
}

// AsOffsetPtr makes i an `OFFSETPTR base, index, elemSize`.
func (i *Instruction) AsOffsetPtr(base, index Value, elemSize int64) *Instruction {
	i.opcode, i.vs, i.v2, i.imm = OpcodeOffsetPtr, []Value{base}, index, elemSize
	return i
}

// AsIconst makes i a `COPY` materializing the integer immediate v as typ.
func (i *Instruction) AsIconst(typ Type, v int64) *Instruction {
	i.opcode, i.typ, i.imm = OpcodeCopy, typ, v
	return i
}

// AsFconst makes i a `COPY` materializing the floating immediate v as typ.
func (i *Instruction) AsFconst(typ Type, v float64) *Instruction {
	i.opcode, i.typ, i.fimm = OpcodeCopy, typ, v
	return i
}

// AsCopy makes i a `COPY x`, renaming x.
func (i *Instruction) AsCopy(x Value) *Instruction {
	i.opcode, i.vs = OpcodeCopy, []Value{x}
	return i
}

// AsBinary makes i a two-operand ALU instruction of the given opcode
// (IADD/ISUB/IMUL/SDIV/UDIV/SREM/UREM/FADD/FSUB/FMUL/FDIV/BAND/BOR/BXOR/
// SHL/SSHR/USHR).
func (i *Instruction) AsBinary(op Opcode, x, y Value) *Instruction {
	i.opcode, i.vs, i.v2 = op, []Value{x}, y
	return i
}

// AsUnary makes i a one-operand ALU instruction (INEG/FNEG/BNOT/SQRT).
func (i *Instruction) AsUnary(op Opcode, x Value) *Instruction {
	i.opcode, i.vs = op, []Value{x}
	return i
}

// AsIcmp makes i an `ICMP cond, x, y`, always producing an i8/bool.
func (i *Instruction) AsIcmp(cond IntegerCmpCond, x, y Value) *Instruction {
	i.opcode, i.cond, i.vs, i.v2 = OpcodeIcmp, cond, []Value{x}, y
	return i
}

// AsFcmp makes i an `FCMP cond, x, y`, always producing an i8/bool.
func (i *Instruction) AsFcmp(cond FloatCmpCond, x, y Value) *Instruction {
	i.opcode, i.fcond, i.vs, i.v2 = OpcodeFcmp, cond, []Value{x}, y
	return i
}

// AsConversion makes i a conversion instruction (UEXTEND/SEXTEND/
// TRUNCATE/FPROMOTE/FDEMOTE/UTOF/STOF/FTOU/FTOS) producing result type to.
func (i *Instruction) AsConversion(op Opcode, x Value, to Type) *Instruction {
	i.opcode, i.vs, i.typ = op, []Value{x}, to
	return i
}

// AsJump makes i a `JMP target(args)`.
func (i *Instruction) AsJump(target BasicBlock, args []Value) *Instruction {
	i.opcode = OpcodeJump
	i.targets = []BranchTarget{{Block: target.(*basicBlock), Args: args}}
	return i
}

// AsCjmp makes i a `CJMP cond, then(thenArgs), els(elsArgs)`.
func (i *Instruction) AsCjmp(cond Value, then, els BasicBlock, thenArgs, elsArgs []Value) *Instruction {
	i.opcode, i.vs = OpcodeCjmp, []Value{cond}
	i.targets = []BranchTarget{
		{Block: then.(*basicBlock), Args: thenArgs},
		{Block: els.(*basicBlock), Args: elsArgs},
	}
	return i
}

// AsFcjmp makes i an `FCJMP cond, then(thenArgs), els(elsArgs)`, where
// cond is the Value produced by a preceding FCMP.
func (i *Instruction) AsFcjmp(cond Value, then, els BasicBlock, thenArgs, elsArgs []Value) *Instruction {
	i.opcode, i.vs = OpcodeFcjmp, []Value{cond}
	i.targets = []BranchTarget{
		{Block: then.(*basicBlock), Args: thenArgs},
		{Block: els.(*basicBlock), Args: elsArgs},
	}
	return i
}

// AsSelect makes i a `SELECT cond, x, y`.
func (i *Instruction) AsSelect(cond, x, y Value) *Instruction {
	i.opcode, i.vs, i.v2 = OpcodeSelect, []Value{cond, x}, y
	return i
}

// AsCall makes i a `CALL name(args)` returning result type typ (use
// TypeInvalidValue for a void callee).
func (i *Instruction) AsCall(name string, args []Value, typ Type) *Instruction {
	i.opcode, i.calleeName, i.vs, i.typ = OpcodeCall, name, args, typ
	return i
}

// AsCallIndirect makes i a `CALLINDIRECT sig, callee(args)`.
func (i *Instruction) AsCallIndirect(sig SignatureID, callee Value, args []Value, typ Type) *Instruction {
	i.opcode, i.calleeSig, i.typ = OpcodeCallIndirect, sig, typ
	i.vs = append([]Value{callee}, args...)
	return i
}

// AsRet makes i a `RET vs`.
func (i *Instruction) AsRet(vs []Value) *Instruction {
	i.opcode, i.vs = OpcodeRet, vs
	return i
}

// Arg returns the first Value-typed operand, valid for every opcode that
// has at least one (everything but NullAry/const-producing opcodes).
func (i *Instruction) Arg() Value {
	if len(i.vs) == 0 {
		return valueInvalid
	}
	return i.vs[0]
}

// Arg2 returns the second Value-typed operand (ALU/cmp right-hand side,
// STORE's address, OFFSETPTR's index).
func (i *Instruction) Arg2() Value { return i.v2 }

// Args returns every Value-typed operand in order (CALL/CALLINDIRECT's
// full argument vector, SELECT's [cond, x] pair).
func (i *Instruction) Args() []Value { return i.vs }

// Immediate returns the integer immediate operand (ALLOCA's size,
// LOADARG/MEMBERPTR's index, OFFSETPTR's element size, ICONST's value).
func (i *Instruction) Immediate() int64 { return i.imm }

// FImmediate returns the floating-point immediate operand (FCONST's
// value).
func (i *Instruction) FImmediate() float64 { return i.fimm }

// Type returns the type token carried independently of this
// instruction's operands (ALLOCA's element type, LOAD's loaded type,
// a conversion's target type).
func (i *Instruction) Type() Type { return i.typ }

// Cond returns the integer comparison condition for an ICMP.
func (i *Instruction) Cond() IntegerCmpCond { return i.cond }

// FCond returns the floating-point comparison condition for an FCMP.
func (i *Instruction) FCond() FloatCmpCond { return i.fcond }

// BranchTargets returns the branch target(s): length 1 for JMP, length 2
// (taken, not-taken) for CJMP/FCJMP.
func (i *Instruction) BranchTargets() []BranchTarget { return i.targets }

// CalleeName returns a direct CALL's callee symbol name, or "" if this
// call instead resolves through the address table (see AddrTableCallee).
func (i *Instruction) CalleeName() string { return i.calleeName }

// CalleeSig returns a CALLINDIRECT's declared Signature.
func (i *Instruction) CalleeSig() SignatureID { return i.calleeSig }

// AddrTableCallee returns the address-table slot name InsertAddrTablePass
// rewrote this CALL to resolve through, or "" if unrewritten.
func (i *Instruction) AddrTableCallee() string { return i.addrTableCallee }

// SetAddrTableCallee rewrites this CALL to resolve through the named
// address-table slot instead of a direct symbol reference, clearing
// CalleeName. Used by InsertAddrTablePass.
func (i *Instruction) SetAddrTableCallee(slot string) {
	i.addrTableCallee, i.calleeName = slot, ""
}

// addArgument appends an additional branch-argument Value to the
// targetIndex-th branch target's argument vector; used while resolving
// block parameters during SSA construction (see builder.findValue/Seal).
func (i *Instruction) addArgument(targetIndex int, v Value) {
	i.targets[targetIndex].Args = append(i.targets[targetIndex].Args, v)
}

// Format renders a debug-text line for this instruction, in the family
// of syntax this port's ssatext round-trip package both emits and parses.
func (i *Instruction) Format(b *builder) string {
	var sb strings.Builder
	if i.rValue.Valid() {
		sb.WriteString(i.rValue.formatWithType(b))
		sb.WriteString(" = ")
	} else if len(i.rValues) > 0 {
		parts := make([]string, len(i.rValues))
		for n, r := range i.rValues {
			parts[n] = r.formatWithType(b)
		}
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(" = ")
	}
	sb.WriteString(i.opcode.String())

	switch i.opcode {
	case OpcodeJump:
		fmt.Fprintf(&sb, " %s(%s)", i.targets[0].Block.Name(), formatArgs(b, i.targets[0].Args))
	case OpcodeCjmp, OpcodeFcjmp:
		fmt.Fprintf(&sb, " %s, %s(%s), %s(%s)", i.vs[0].format(b),
			i.targets[0].Block.Name(), formatArgs(b, i.targets[0].Args),
			i.targets[1].Block.Name(), formatArgs(b, i.targets[1].Args))
	case OpcodeCall:
		name := i.calleeName
		if name == "" && i.addrTableCallee != "" {
			name = "addr_table[" + i.addrTableCallee + "]"
		}
		fmt.Fprintf(&sb, " %s(%s)", name, formatArgs(b, i.vs))
	case OpcodeAlloca:
		fmt.Fprintf(&sb, " %s, size=%d", i.typ, i.imm)
	case OpcodeLoadArg:
		fmt.Fprintf(&sb, " %d, %s", i.imm, i.typ)
	case OpcodeIcmp:
		fmt.Fprintf(&sb, " %s, %s, %s", i.cond, i.vs[0].format(b), i.v2.format(b))
	case OpcodeFcmp:
		fmt.Fprintf(&sb, " %s, %s, %s", i.fcond, i.vs[0].format(b), i.v2.format(b))
	default:
		args := make([]string, 0, len(i.vs)+1)
		if len(i.vs) > 0 {
			args = append(args, i.vs[0].format(b))
		}
		if i.v2.Valid() {
			args = append(args, i.v2.format(b))
		}
		sb.WriteString(" ")
		sb.WriteString(strings.Join(args, ", "))
	}
	return sb.String()
}

func formatArgs(b *builder, vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.format(b)
	}
	return strings.Join(parts, ", ")
}

// instructionReturnTypes maps each opcode to a function deriving its
// result type(s) from its operands, per the SSA invariant "each opcode's
// result type is deterministically derivable from operand types."
var instructionReturnTypes = map[Opcode]func(b *builder, instr *Instruction) (Type, []Type){
	OpcodeAlloca:  func(b *builder, i *Instruction) (Type, []Type) { return Addr, nil },
	OpcodeLoad:    func(b *builder, i *Instruction) (Type, []Type) { return i.typ, nil },
	OpcodeStore:   func(b *builder, i *Instruction) (Type, []Type) { return TypeInvalidValue, nil },
	OpcodeLoadArg: func(b *builder, i *Instruction) (Type, []Type) { return i.typ, nil },
	OpcodeMemberPtr: func(b *builder, i *Instruction) (Type, []Type) { return Addr, nil },
	OpcodeOffsetPtr: func(b *builder, i *Instruction) (Type, []Type) { return Addr, nil },
	OpcodeCopy: func(b *builder, i *Instruction) (Type, []Type) {
		if len(i.vs) == 0 {
			return i.typ, nil
		}
		return b.typeOf(i.vs[0]), nil
	},

	OpcodeIAdd: sameAsFirstOperand, OpcodeISub: sameAsFirstOperand, OpcodeIMul: sameAsFirstOperand,
	OpcodeSDiv: sameAsFirstOperand, OpcodeUDiv: sameAsFirstOperand,
	OpcodeSRem: sameAsFirstOperand, OpcodeURem: sameAsFirstOperand, OpcodeINeg: sameAsFirstOperand,
	OpcodeFAdd: sameAsFirstOperand, OpcodeFSub: sameAsFirstOperand, OpcodeFMul: sameAsFirstOperand,
	OpcodeFDiv: sameAsFirstOperand, OpcodeFNeg: sameAsFirstOperand, OpcodeSqrt: sameAsFirstOperand,
	OpcodeBand: sameAsFirstOperand, OpcodeBor: sameAsFirstOperand, OpcodeBxor: sameAsFirstOperand,
	OpcodeBnot: sameAsFirstOperand, OpcodeShl: sameAsFirstOperand, OpcodeSshr: sameAsFirstOperand,
	OpcodeUshr: sameAsFirstOperand,

	OpcodeIcmp: func(b *builder, i *Instruction) (Type, []Type) { return I8, nil },
	OpcodeFcmp: func(b *builder, i *Instruction) (Type, []Type) { return I8, nil },

	OpcodeUExtend:  func(b *builder, i *Instruction) (Type, []Type) { return i.typ, nil },
	OpcodeSExtend:  func(b *builder, i *Instruction) (Type, []Type) { return i.typ, nil },
	OpcodeTruncate: func(b *builder, i *Instruction) (Type, []Type) { return i.typ, nil },
	OpcodeFpromote: func(b *builder, i *Instruction) (Type, []Type) { return F64, nil },
	OpcodeFdemote:  func(b *builder, i *Instruction) (Type, []Type) { return F32, nil },
	OpcodeUtoF:     func(b *builder, i *Instruction) (Type, []Type) { return i.typ, nil },
	OpcodeStoF:     func(b *builder, i *Instruction) (Type, []Type) { return i.typ, nil },
	OpcodeFtoU:     func(b *builder, i *Instruction) (Type, []Type) { return i.typ, nil },
	OpcodeFtoS:     func(b *builder, i *Instruction) (Type, []Type) { return i.typ, nil },

	OpcodeJump:         func(b *builder, i *Instruction) (Type, []Type) { return TypeInvalidValue, nil },
	OpcodeCjmp:         func(b *builder, i *Instruction) (Type, []Type) { return TypeInvalidValue, nil },
	OpcodeFcjmp:        func(b *builder, i *Instruction) (Type, []Type) { return TypeInvalidValue, nil },
	OpcodeSelect:       func(b *builder, i *Instruction) (Type, []Type) { return b.typeOf(i.vs[0]), nil },
	OpcodeCall:         func(b *builder, i *Instruction) (Type, []Type) { return i.typ, nil },
	OpcodeCallIndirect: func(b *builder, i *Instruction) (Type, []Type) { return i.typ, nil },
	OpcodeRet:          func(b *builder, i *Instruction) (Type, []Type) { return TypeInvalidValue, nil },
}

func sameAsFirstOperand(b *builder, i *Instruction) (Type, []Type) {
	return b.typeOf(i.vs[0]), nil
}
