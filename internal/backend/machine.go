package backend

import (
	"github.com/banjoc/banjoc/internal/mcode"
	"github.com/banjoc/banjoc/internal/ssa"
)

type (
	// Machine is a target-specific instruction selector (C7): one
	// implementation per ISA (internal/backend/isa/amd64,
	// internal/backend/isa/arm64), driven by Compiler.
	Machine interface {
		// SetCompilationContext is called once, before the first
		// compilation, to hand the Machine the CompilationContext it
		// will use for every subsequent function.
		SetCompilationContext(CompilationContext)

		// StartFunction is called once per function, before its first
		// block is lowered, with the blocks in the order they will be
		// presented to StartBlock.
		StartFunction(blocks []ssa.BasicBlock)

		// StartBlock is called when lowering of the given block begins.
		StartBlock(ssa.BasicBlock)

		// LowerInstr lowers one SSA instruction into mcode via the
		// CompilationContext's Emit, unless the instruction was already
		// marked lowered (CompilationContext.MarkLowered) by an earlier
		// call fusing it into another instruction's selection (e.g. an
		// ICMP fused into a following CJMP's compare-and-branch). Called
		// in reverse program order within the block, last instruction
		// first, so a later instruction's selector can inspect and fuse
		// its own operand-producing instruction before that instruction
		// is reached in the traversal.
		LowerInstr(*ssa.Instruction)

		// EndBlock is called when lowering of the current block is done.
		EndBlock()

		// EndFunction is called once per function, after its last block
		// has been lowered.
		EndFunction()

		// Reset clears any per-function state for reuse on the next
		// function.
		Reset()
	}

	// CompilationContext is the interface a Machine uses to interact
	// with the Compiler driving it: querying the virtual register and
	// definition assigned to an SSA value, allocating fresh virtual
	// registers for selector-internal temporaries, and appending the
	// selected mcode.Instructions to the block currently being lowered.
	CompilationContext interface {
		// MarkLowered records that inst has already been folded into
		// another instruction's selection, so the compiler's traversal
		// skips it when it reaches it.
		MarkLowered(inst *ssa.Instruction)

		// VRegOf returns the virtual register assigned to value's
		// result, assigned ahead of lowering by Compiler.assignVirtualRegisters.
		VRegOf(value ssa.Value) mcode.VReg

		// ValueDefinition returns value's definition site: either a
		// block parameter or the producing instruction.
		ValueDefinition(value ssa.Value) *SSAValueDefinition

		// ValueType returns value's SSA Type, for selectors that need a
		// concrete bit width (e.g. choosing MOV vs MOVZX, ADDSS vs ADDSD).
		ValueType(value ssa.Value) ssa.Type

		// AllocateVReg allocates a fresh virtual register of class for a
		// selector-internal temporary that isn't the result of any SSA
		// value (e.g. a scratch register for a multi-instruction
		// expansion).
		AllocateVReg(class mcode.RegClass) mcode.VReg

		// Emit appends instr to the mcode.BasicBlock currently being
		// lowered.
		Emit(instr *mcode.Instruction)

		// CurrentBlock returns the mcode.BasicBlock currently being
		// lowered into.
		CurrentBlock() *mcode.BasicBlock

		// BlockOf maps an ssa.BasicBlock to the mcode.BasicBlock it
		// lowers into, for selectors that need a branch target's mcode
		// label (JMP/CJMP/FCJMP).
		BlockOf(b ssa.BasicBlock) *mcode.BasicBlock
	}
)
