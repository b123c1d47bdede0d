package ssa

import (
	"fmt"
	"strconv"
	"strings"
)

// BasicBlock represents a basic block of an SSA function.
//
// We use the "block argument" variant of SSA instead of PHI functions: a
// BasicBlock carries a parameter vector (AddParam/Params/Param) that
// replaces phis, and every predecessor's terminator supplies a matching
// argument vector. See the package doc comment for more.
type BasicBlock interface {
	// Name returns the unique string ID of this block, e.g. blk0, blk1.
	Name() string

	// AddParam adds a parameter of type t to the block.
	AddParam(b Builder, t Type) Value

	// Params returns the number of parameters to this block.
	Params() int

	// Param returns the Value which corresponds to the i-th parameter.
	Param(i int) Value

	// InsertInstruction inserts an instruction at the tail of this block.
	InsertInstruction(raw *Instruction)

	// Root returns the root instruction of this block.
	Root() *Instruction

	// ReturnBlock reports whether this block is the function's virtual
	// return target.
	ReturnBlock() bool

	// FormatHeader returns the debug header string for this block.
	FormatHeader(b Builder) string

	// Valid is false if this block was removed by an optimization pass.
	Valid() bool
}

type (
	basicBlock struct {
		id                      basicBlockID
		rootInstr, currentInstr *Instruction
		params                  []blockParam
		preds                   []basicBlockPredecessorInfo
		success                 []*basicBlock
		// singlePred is set to preds[0] once Seal has run and len(preds)==1.
		singlePred *basicBlock
		// lastDefinitions maps Variable to its last definition in this block.
		lastDefinitions map[Variable]Value
		// unknownValues holds placeholder definitions awaiting Seal; see
		// builder.findValue for the Braun-et-al incomplete-CFG algorithm.
		unknownValues map[Variable]Value
		invalid       bool
		sealed        bool
		loopHeader    bool
	}
	basicBlockID uint32

	blockParam struct {
		variable Variable
		value    Value
		typ      Type
	}
)

const basicBlockIDReturnBlock = 0xffffffff

// BasicBlockReturn is a sentinel BasicBlock representing a function
// return, usable as a virtual branch target.
var BasicBlockReturn BasicBlock = &basicBlock{id: basicBlockIDReturnBlock}

// Name implements BasicBlock.Name.
func (bb *basicBlock) Name() string {
	if bb.id == basicBlockIDReturnBlock {
		return "blk_ret"
	}
	return fmt.Sprintf("blk%d", bb.id)
}

// basicBlockPredecessorInfo pairs a predecessor block with the
// terminator instruction that branches into the successor it is stored
// on, and which of that terminator's BranchTargets is the edge in
// question (0 for an unconditional JMP, 0 or 1 for CJMP/FCJMP).
type basicBlockPredecessorInfo struct {
	blk         *basicBlock
	branch      *Instruction
	targetIndex int
}

// ReturnBlock implements BasicBlock.ReturnBlock.
func (bb *basicBlock) ReturnBlock() bool { return bb.id == basicBlockIDReturnBlock }

// AddParam implements BasicBlock.AddParam.
func (bb *basicBlock) AddParam(b Builder, typ Type) Value {
	paramValue := b.allocateValue(typ)
	bb.params = append(bb.params, blockParam{typ: typ, value: paramValue})
	return paramValue
}

// addParamOn adds a parameter whose Value is already allocated, tagging
// it with the Variable it resolves (used by findValue/Seal).
func (bb *basicBlock) addParamOn(variable Variable, typ Type, value Value) {
	bb.params = append(bb.params, blockParam{variable: variable, typ: typ, value: value})
}

// Params implements BasicBlock.Params.
func (bb *basicBlock) Params() int { return len(bb.params) }

// Param implements BasicBlock.Param.
func (bb *basicBlock) Param(i int) Value { return bb.params[i].value }

// Valid implements BasicBlock.Valid.
func (bb *basicBlock) Valid() bool { return !bb.invalid }

// InsertInstruction implements BasicBlock.InsertInstruction.
func (bb *basicBlock) InsertInstruction(next *Instruction) {
	current := bb.currentInstr
	if current != nil {
		current.next = next
		next.prev = current
	} else {
		bb.rootInstr = next
	}
	bb.currentInstr = next
	next.blk = bb

	switch next.opcode {
	case OpcodeJump:
		next.targets[0].Block.addPred(bb, next, 0)
	case OpcodeCjmp, OpcodeFcjmp:
		next.targets[0].Block.addPred(bb, next, 0)
		next.targets[1].Block.addPred(bb, next, 1)
	}
}

// Root implements BasicBlock.Root.
func (bb *basicBlock) Root() *Instruction { return bb.rootInstr }

// reset restores the basicBlock to its initial empty state for reuse by
// the next function the Builder compiles.
func (bb *basicBlock) reset() {
	bb.params = bb.params[:0]
	bb.rootInstr, bb.currentInstr = nil, nil
	bb.preds = bb.preds[:0]
	bb.success = bb.success[:0]
	bb.invalid, bb.sealed, bb.loopHeader = false, false, false
	bb.singlePred = nil
	bb.unknownValues = make(map[Variable]Value)
	bb.lastDefinitions = make(map[Variable]Value)
}

// addPred records blk as a predecessor reaching bb via the targetIndex-th
// BranchTarget of branch.
func (bb *basicBlock) addPred(blk *basicBlock, branch *Instruction, targetIndex int) {
	if bb.ReturnBlock() {
		return
	}
	if bb.sealed {
		panic("BUG: trying to add predecessor to a sealed block: " + bb.Name())
	}
	bb.preds = append(bb.preds, basicBlockPredecessorInfo{blk: blk, branch: branch, targetIndex: targetIndex})
	blk.success = append(blk.success, bb)
}

// FormatHeader implements BasicBlock.FormatHeader.
func (bb *basicBlock) FormatHeader(b Builder) string {
	bd := b.(*builder)
	ps := make([]string, len(bb.params))
	for i, p := range bb.params {
		ps[i] = p.value.formatWithType(bd)
	}

	if len(bb.preds) == 0 {
		return fmt.Sprintf("blk%d: (%s)", bb.id, strings.Join(ps, ", "))
	}

	preds := make([]string, 0, len(bb.preds))
	for _, pred := range bb.preds {
		if pred.blk.invalid {
			continue
		}
		preds = append(preds, fmt.Sprintf("blk%d", pred.blk.id))
	}
	return fmt.Sprintf("blk%d: (%s) <-- (%s)", bb.id, strings.Join(ps, ","), strings.Join(preds, ","))
}

// String implements fmt.Stringer for debugging purposes only.
func (bb *basicBlock) String() string { return strconv.Itoa(int(bb.id)) }
