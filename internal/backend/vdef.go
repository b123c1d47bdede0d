package backend

import (
	"github.com/banjoc/banjoc/internal/mcode"
	"github.com/banjoc/banjoc/internal/ssa"
)

// SSAValueDefinition records where an SSA value was produced: either as a
// block parameter (no Instr, BlkParamVReg already holds its register) or
// as the Nth result of Instr.
type SSAValueDefinition struct {
	// BlkParamVReg is valid when Instr == nil.
	BlkParamVReg mcode.VReg

	// Instr is the producing instruction, or nil for a block parameter.
	Instr *ssa.Instruction
	// N is the index of this definition among Instr's results (0 for the
	// primary result, 1+ for a tuple-returning CALL's extra results).
	N int
	// RefCount is the number of operand positions referencing this
	// value across the function, used by a Machine to decide whether the
	// producing instruction can be folded into its single consumer.
	RefCount int
}

// IsFromInstr reports whether this definition was produced by an
// instruction rather than a block parameter.
func (d *SSAValueDefinition) IsFromInstr() bool { return d.Instr != nil }

// IsFromBlockParam reports whether this definition is a block parameter.
func (d *SSAValueDefinition) IsFromBlockParam() bool { return d.Instr == nil }
