// Package mcode is the machine-code IR (C6): the target-independent
// representation instruction selection lowers SSA-IR into, before
// register allocation and encoding. It is deliberately thin compared to
// ssa.Instruction: by the time a function reaches mcode form its
// operands are either virtual registers or concrete addressing modes, not
// SSA values, since one SSA instruction can expand into several mcode
// instructions (e.g. a struct COPY into a reg-to-reg move plus spill
// fixup code inserted later by register allocation).
package mcode

import "github.com/banjoc/banjoc/internal/ssa"

// VReg packs a virtual/real register distinction and class into a single
// comparable value, grounded on backend/vreg.go's packed-uint64 design:
// low bits hold the index, high bits the register class, and a sentinel
// bit marks "already assigned to a real register" after allocation.
type VReg uint64

const (
	vregIDBits  = 32
	vregIDMask  = 1<<vregIDBits - 1
	vregRealBit = uint64(1) << 63
	// vregValidBit keeps every VReg NewVReg returns distinct from
	// VRegInvalid, including id 0.
	vregValidBit = uint64(1) << 62
)

// RegClass partitions the register file the way each target's ABI does:
// x86-64 separates GPR/XMM, AArch64 separates GPR/V.
type RegClass uint8

const (
	RegClassGPR RegClass = iota
	RegClassFloat
)

// VRegInvalid is the zero VReg, reserved so a zero-valued Operand field
// reads as "unset."
const VRegInvalid VReg = 0

// NewVReg returns an unassigned virtual register with the given id and
// class.
func NewVReg(id uint32, class RegClass) VReg {
	return VReg(uint64(id)|vregValidBit) | VReg(uint64(class)<<32)
}

// ID returns v's index.
func (v VReg) ID() uint32 { return uint32(v) & vregIDMask }

// Class returns v's register class.
func (v VReg) Class() RegClass { return RegClass(uint8(v >> 32)) }

// IsReal reports whether v has been assigned a real register by
// allocation (RealReg returns meaningful data only then).
func (v VReg) IsReal() bool { return uint64(v)&vregRealBit != 0 }

// AssignReal returns a copy of v marked as bound to the real register
// numbered real (a target-specific encoding, e.g. an x86-64 GPR index).
func (v VReg) AssignReal(real uint8) VReg {
	return VReg(uint64(v)|vregRealBit) | VReg(uint64(real)<<40)
}

// RealReg returns the real register index AssignReal bound, valid only
// when IsReal() is true.
func (v VReg) RealReg() uint8 { return uint8(v >> 40) }

// OperandKind tags Operand's sum-typed payload.
type OperandKind int

const (
	OperandReg OperandKind = iota
	OperandImm
	OperandMem  // [base + index*scale + disp]
	OperandLabel
	// OperandSym names an external or module-level symbol: a direct
	// CALL's callee, or a CALL rewritten by the hot-reload pass to
	// resolve through the module's address table (see internal/jit).
	OperandSym
)

// Operand is one instruction operand: a register, an immediate, a
// memory reference, a branch-target label, or a symbol reference.
type Operand struct {
	Kind  OperandKind
	Reg   VReg
	Imm   int64
	Base  VReg
	Index VReg
	Scale uint8
	Disp  int32
	Label *BasicBlock
	Sym   string
	// AddrTable marks a Sym operand as resolving through the address
	// table slot named Sym rather than a direct symbol reference.
	AddrTable bool
}

// RegOperand returns a register Operand.
func RegOperand(r VReg) Operand { return Operand{Kind: OperandReg, Reg: r} }

// ImmOperand returns an immediate Operand.
func ImmOperand(v int64) Operand { return Operand{Kind: OperandImm, Imm: v} }

// MemOperand returns a [base+disp] Operand.
func MemOperand(base VReg, disp int32) Operand {
	return Operand{Kind: OperandMem, Base: base, Disp: disp}
}

// LabelOperand returns a branch-target Operand.
func LabelOperand(b *BasicBlock) Operand { return Operand{Kind: OperandLabel, Label: b} }

// SymOperand returns a direct-call Operand naming sym.
func SymOperand(sym string) Operand { return Operand{Kind: OperandSym, Sym: sym} }

// AddrTableOperand returns a CALL Operand that resolves through the
// module's address-table slot named sym, per spec.md's hot-reload
// indirection (every call site goes through the table so a reloaded
// function can be hot-swapped without patching every caller).
func AddrTableOperand(sym string) Operand {
	return Operand{Kind: OperandSym, Sym: sym, AddrTable: true}
}

// Op is a target-specific mnemonic, kept as an opaque small int whose
// meaning is defined by the owning Target (see backend.Target); mcode
// itself never switches on the concrete values.
type Op uint16

// Instruction is one target instruction: an opcode plus up to three
// operands (dest, src1, src2), enough for every pattern the selectors in
// this repo emit (two-operand ALU forms reuse dest as src1 implicitly,
// per x86-64's native shape; three-operand AArch64 forms use all three).
type Instruction struct {
	Op   Op
	Dst  Operand
	Src1 Operand
	Src2 Operand

	// Width is the operand byte width (1, 2, 4, or 8) the encoder must
	// pick its opcode/prefix variant for (e.g. MOVZX vs MOV, ADDSS vs
	// ADDSD); instruction selection derives it from the producing SSA
	// value's ssa.Type.Size(), since mcode operands carry only a
	// register class (GPR/Float), not a concrete bit width.
	Width uint8

	// Defs/Uses list every VReg this instruction defines/reads, for
	// register allocation's liveness analysis; Dst/Src1/Src2 alone don't
	// capture implicit defs (e.g. a call clobbering volatile registers).
	Defs []VReg
	Uses []VReg

	// Clobbers lists registers this instruction (typically a CALL)
	// overwrites without them being modelled as Defs.
	Clobbers []VReg

	// EHPushReg marks a prologue push-callee-saved-register pseudo,
	// recorded for BinUnwindInfo reconstruction (see backend doc).
	EHPushReg bool
}

// BasicBlock is one mcode basic block: its instructions in order plus
// its successor list, mirroring ssa.BasicBlock's shape one level down.
type BasicBlock struct {
	Label        string
	Instructions []*Instruction
	Succs        []*BasicBlock

	// SSABlock is the originating ssa.BasicBlock, kept for diagnostics
	// and for the register allocator's per-block live-set computation.
	SSABlock ssa.BasicBlock
}

// StackSlot is one local storage slot in a Function's frame: its size,
// alignment, and the offset assigned by frame layout (relative to the
// frame pointer, negative growing toward lower addresses per the
// standard downward-growing stack convention both target ABIs share).
type StackSlot struct {
	Size   int64
	Align  int64
	Offset int64
	// Spill marks a slot synthesized by the register allocator for a
	// spilled bundle, as opposed to one requested by an SSA ALLOCA.
	Spill bool
}

// StackFrame describes a function's complete stack layout after
// allocation: the slots, the total frame size (16-byte aligned per both
// target ABIs), and which callee-saved registers this function clobbers
// and must therefore save/restore in its prologue/epilogue.
type StackFrame struct {
	Slots           []*StackSlot
	Size            int64
	CalleeSavedUsed []VReg
}

// UnwindOpKind enumerates the prologue steps BinUnwindInfo needs to
// reconstruct (Windows x64 UNWIND_CODE ops / DWARF CFI equivalents).
type UnwindOpKind int

const (
	UnwindOpPushReg UnwindOpKind = iota
	UnwindOpAllocStack
	UnwindOpSetFramePointer
)

// UnwindOp is one step of a function's prologue, in execution order,
// each tagged with the instruction-end offset it takes effect at so the
// encoder can translate it into the target object format's native
// unwind-info representation.
type UnwindOp struct {
	Kind        UnwindOpKind
	Offset      int64 // byte offset from function start where this step completes
	Reg         VReg  // for UnwindOpPushReg
	StackAdjust int64 // for UnwindOpAllocStack
}

// UnwindInfo is a function's complete prologue description. Nothing in
// this repository fills it in and neither encoder (C9) reads it, so
// encode.BinModule.UnwindInfo stays empty.
type UnwindInfo struct {
	Ops []UnwindOp
}

// Function is one lowered function: its blocks, frame, unwind info, and
// the metadata the encoder/object-file builder need (name and whether it
// is exported).
type Function struct {
	Name     string
	Exported bool
	Blocks   []*BasicBlock
	Frame    StackFrame
	Unwind   UnwindInfo

	// NextVRegID is the id AllocateVReg hands out next.
	NextVRegID uint32
}

// NewFunction returns an empty Function named name.
func NewFunction(name string) *Function {
	return &Function{Name: name}
}

// AllocateVReg returns a fresh virtual register of class class.
func (f *Function) AllocateVReg(class RegClass) VReg {
	v := NewVReg(f.NextVRegID, class)
	f.NextVRegID++
	return v
}

// GlobalData is one read-only or mutable data blob a Function
// references (string/array literals lowered to globals, per spec.md
// §4.2's "referenced in code are emitted as read-only globals").
type GlobalData struct {
	Name     string
	Bytes    []byte
	ReadOnly bool
	Align    int64
}

// Module is a complete lowered compilation unit: every Function plus the
// global data the encoder must place into the data section.
type Module struct {
	Functions []*Function
	Globals   []*GlobalData

	// AddrTableSlots mirrors ssa.AddrTable.Slots for the hot-reload
	// indirection pass. Neither encoder reads it, so no `.bnjatbl`
	// section data (encode.BinModule.BnjatblData) is produced from it.
	AddrTableSlots []string
}
