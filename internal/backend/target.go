package backend

import (
	"io"

	"github.com/banjoc/banjoc/internal/encode"
	"github.com/banjoc/banjoc/internal/mcode"
	"github.com/banjoc/banjoc/internal/ssa"
)

// CodeModel names how far a CALL/JMP's target may lie from its call
// site (SMALL or LARGE). A Target records its code model and returns it
// from CodeModel(); the instruction selectors and encoders do not
// consult it, so LARGE emits the same relative CALL/JMP forms as SMALL
// and no MOV-imm64 + indirect call/jump sequence is generated.
type CodeModel int

const (
	CodeModelSmall CodeModel = iota
	CodeModelLarge
)

// OS names the target operating system, which determines calling
// convention details (shadow space, red zone) and which object-file
// format Emitter produces.
type OS int

const (
	OSWindows OS = iota
	OSLinux
	OSDarwin
)

// ABI answers the questions a target-specific calling convention must
// settle per spec.md §4.2/§4.4: argument/return register assignment,
// which registers survive a call, and the frame's alignment and
// shadow-space requirements.
type ABI interface {
	// IntArgRegs/FloatArgRegs are the real register indices (within
	// their RegClass) used for the first N integer/float arguments, in
	// order, before additional arguments spill to the stack.
	IntArgRegs() []uint8
	FloatArgRegs() []uint8
	// IntReturnReg/FloatReturnReg are where a scalar result is placed.
	IntReturnReg() uint8
	FloatReturnReg() uint8
	// ShadowSpace is the caller-reserved scratch area below the return
	// address a callee may use without its own stack allocation (32
	// bytes on Windows x64, 0 elsewhere).
	ShadowSpace() int64
	// StackAlign is the required alignment of the stack pointer at a
	// CALL instruction.
	StackAlign() int64
}

// Target is the top-level per-ISA/OS abstraction spec.md §4.7
// describes: it wires together instruction selection, register
// allocation, and encoding/object-file emission for one combination of
// architecture, OS, and code model.
type Target interface {
	// CreateSSALowerer returns a fresh instruction selector (a
	// backend.Machine) for one function.
	CreateSSALowerer() Machine

	// CreateMachinePassRunner returns the function that runs every
	// post-selection machine pass (register allocation, and on
	// AArch64 the stack-offset fixup pass) over a lowered Function.
	CreateMachinePassRunner() func(*mcode.Function)

	// CreateEmitter returns the function that encodes module and
	// writes the resulting object file to out.
	CreateEmitter() func(module *mcode.Module, out io.Writer) error

	// CreateRawEncoder returns the same instruction encoder CreateEmitter
	// wraps, without the object-file container — the shape the JIT
	// hot-reloader (internal/jit) needs, since it patches raw bytes and
	// relocations directly into a running process rather than writing a
	// file.
	CreateRawEncoder() func(module *mcode.Module) (*encode.BinModule, error)

	// OutputFileExt is the conventional object-file extension for this
	// target's OS (".obj" on Windows, ".o" elsewhere).
	OutputFileExt() string

	// ABI returns the calling-convention object ssagen consults when
	// lowering CallExpr/argument passing.
	ABI() ABI

	CodeModel() CodeModel
	OS() OS
}

// ValueTypeOf is a small helper Target implementations' ABI lowering
// can use without importing ssa directly in every call site; kept here
// since backend already depends on ssa for Machine/CompilationContext.
func ValueTypeOf(b ssa.Builder, v ssa.Value) ssa.Type { return b.ValueType(v) }
