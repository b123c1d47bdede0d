// Package ssa is used to construct the SSA-IR for a single function. By
// nature this is free of any target-ISA concern; that begins in
// internal/backend.
//
// We use the "block argument" variant of SSA:
// https://en.wikipedia.org/wiki/Static_single-assignment_form#Block_arguments
// which is equivalent to the traditional PHI-function based one but more
// convenient during optimization passes. Source comments in this package
// may still say PHI where that is the more familiar term from the
// literature (construction is the Braun et al. incomplete-CFG algorithm).
package ssa

import (
	"fmt"
	"sort"
	"strings"
)

// Builder is used to build the SSA-IR of one function at a time.
type Builder interface {
	// Reset must be called to reuse this builder for the next function.
	Reset()

	// AllocateBasicBlock creates a basic block in the SSA function.
	AllocateBasicBlock() BasicBlock

	// Blocks returns the valid (non-removed) BasicBlocks in layout order.
	Blocks() []BasicBlock

	// CurrentBlock returns the BasicBlock last set by SetCurrentBlock.
	CurrentBlock() BasicBlock

	// SetCurrentBlock directs subsequent InsertInstruction calls to b.
	SetCurrentBlock(b BasicBlock)

	// DeclareVariable declares a Variable of the given Type.
	DeclareVariable(Type) Variable

	// DefineVariable records value as the definition of variable reaching
	// the end of block.
	DefineVariable(variable Variable, value Value, block BasicBlock)

	// DefineVariableInCurrentBB is DefineVariable(variable, value, CurrentBlock()).
	DefineVariableInCurrentBB(variable Variable, value Value)

	// AllocateInstruction returns a new, unattached Instruction.
	AllocateInstruction() *Instruction

	// InsertInstruction appends raw to the current block and allocates
	// its result Value(s) per instructionReturnTypes.
	InsertInstruction(raw *Instruction)

	// allocateValue allocates an unused Value of the given Type.
	allocateValue(typ Type) Value

	// typeOf looks up the Type of a previously allocated Value.
	typeOf(v Value) Type

	// ValueType is the exported equivalent of typeOf, for use by
	// instruction selection (internal/backend) which needs a Value's
	// Type to pick a register class without access to package-internal
	// state.
	ValueType(v Value) Type

	// FindValue resolves the latest definition of variable reaching the
	// current block, per the Braun et al. algorithm.
	FindValue(variable Variable) Value

	// Seal declares that all of block's predecessors are known; until
	// this is called, predecessors may still be added to it.
	Seal(block BasicBlock)

	// AnnotateValue attaches a debug name to value, used by Format.
	AnnotateValue(value Value, annotation string)

	// DeclareSignature registers signature for reference by e.g. OpcodeCallIndirect.
	DeclareSignature(signature *Signature)

	// UsedSignatures returns the Signatures referenced by the currently
	// compiled function, sorted by ID.
	UsedSignatures() []*Signature

	// Optimize runs the mid-end SSA passes over the constructed function.
	Optimize()

	// Format returns the function's debug text, in the grammar this
	// port's ssatext subpackage both emits and parses.
	Format() string
}

// NewBuilder returns a fresh Builder.
func NewBuilder() Builder {
	return &builder{
		instructionsPool:               newPool[Instruction](),
		basicBlocksPool:                newPool[basicBlock](),
		valueAnnotations:                make(map[valueID]string),
		signatures:                      make(map[SignatureID]*Signature),
		blkVisited:                      make(map[*basicBlock]int),
		redundantParameterIndexToValue:  make(map[int]Value),
		edgeWeights:                     make(map[[2]basicBlockID]int),
		aliases:                         make(map[valueID]Value),
	}
}

// builder implements Builder.
type builder struct {
	basicBlocksPool  pool[basicBlock]
	instructionsPool pool[Instruction]
	signatures       map[SignatureID]*Signature

	basicBlocksView []BasicBlock
	currentBB       *basicBlock

	// variableTypes tracks the declared Type of each Variable, indexed by
	// Variable.
	variableTypes []Type
	// nextVariable is bumped by DeclareVariable.
	nextVariable Variable

	// valueTypes is the side table from valueID to Type; see the comment
	// on Value in value.go for why this exists instead of a packed Value.
	valueTypes []Type
	// nextValueID is bumped by allocateValue.
	nextValueID valueID

	valueAnnotations map[valueID]string

	// The following are scratch state reused across the optimization
	// passes in opt.go/pass_cfg.go/pass_block_layout.go.
	blkVisited map[*basicBlock]int
	blkStack   []*basicBlock
	blkStack2  []*basicBlock
	instStack  []*Instruction

	dominators []*basicBlock

	redundantParameterIndexToValue map[int]Value
	redundantParameterIndexes      []int

	valueRefCounts       []int
	valueIDToInstruction []*Instruction

	// aliases resolves a dead block-parameter Value to the single Value
	// it was proven redundant with; see passRedundantPhiElimination.
	aliases map[valueID]Value

	blockFrequencies []int
	edgeWeights      map[[2]basicBlockID]int
	// blockLayoutOrder is the emission order computed by passLayoutBlocks;
	// nil until Optimize has run.
	blockLayoutOrder []*basicBlock

	// iterCursor drives blockIteratorBegin/blockIteratorNext.
	iterCursor int
}

// Reset implements Builder.Reset.
func (b *builder) Reset() {
	b.instructionsPool.reset()
	for _, sig := range b.signatures {
		sig.used = false
	}

	b.blkStack = b.blkStack[:0]
	b.blkStack2 = b.blkStack2[:0]
	b.instStack = b.instStack[:0]
	b.blockLayoutOrder = b.blockLayoutOrder[:0]

	for i := 0; i < b.basicBlocksPool.allocated; i++ {
		blk := b.basicBlocksPool.view(i)
		blk.reset()
		delete(b.blkVisited, blk)
	}
	b.basicBlocksPool.reset()

	b.variableTypes = b.variableTypes[:0]
	b.nextVariable = 0

	for v := valueID(0); v < b.nextValueID; v++ {
		delete(b.valueAnnotations, v)
		delete(b.aliases, v)
	}
	b.valueTypes = b.valueTypes[:0]
	b.nextValueID = 0
}

// AnnotateValue implements Builder.AnnotateValue.
func (b *builder) AnnotateValue(value Value, a string) {
	b.valueAnnotations[value.ID()] = a
}

// AllocateInstruction implements Builder.AllocateInstruction.
func (b *builder) AllocateInstruction() *Instruction {
	instr := b.instructionsPool.allocate()
	instr.rValue, instr.v2 = valueInvalid, valueInvalid
	return instr
}

// DeclareSignature implements Builder.DeclareSignature.
func (b *builder) DeclareSignature(s *Signature) {
	b.signatures[s.ID] = s
	s.used = false
}

// UsedSignatures implements Builder.UsedSignatures.
func (b *builder) UsedSignatures() (ret []*Signature) {
	for _, sig := range b.signatures {
		if sig.used {
			ret = append(ret, sig)
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].ID < ret[j].ID
	})
	return
}

// AllocateBasicBlock implements Builder.AllocateBasicBlock.
func (b *builder) AllocateBasicBlock() BasicBlock {
	id := basicBlockID(b.basicBlocksPool.allocated)
	blk := b.basicBlocksPool.allocate()
	blk.id = id
	blk.lastDefinitions = make(map[Variable]Value)
	blk.unknownValues = make(map[Variable]Value)
	return blk
}

// InsertInstruction implements Builder.InsertInstruction.
func (b *builder) InsertInstruction(instr *Instruction) {
	b.currentBB.InsertInstruction(instr)

	resultTypeFn := instructionReturnTypes[instr.opcode]
	if resultTypeFn == nil {
		panic("BUG: no result-type rule registered for " + instr.opcode.String())
	}

	t1, ts := resultTypeFn(b, instr)
	if !t1.Valid() {
		return
	}

	instr.rValue = b.allocateValue(t1)

	if len(ts) == 0 {
		return
	}
	instr.rValues = make([]Value, len(ts))
	for i, t := range ts {
		instr.rValues[i] = b.allocateValue(t)
	}
}

// Blocks implements Builder.Blocks. Once Optimize has run passLayoutBlocks,
// this returns blocks in the computed emission order; before that, it
// returns them in allocation order.
func (b *builder) Blocks() []BasicBlock {
	b.basicBlocksView = b.basicBlocksView[:0]
	if len(b.blockLayoutOrder) > 0 {
		for _, blk := range b.blockLayoutOrder {
			if blk.invalid {
				continue
			}
			b.basicBlocksView = append(b.basicBlocksView, blk)
		}
		return b.basicBlocksView
	}
	for i := 0; i < b.basicBlocksPool.allocated; i++ {
		blk := b.basicBlocksPool.view(i)
		if blk.ReturnBlock() || blk.invalid {
			continue
		}
		b.basicBlocksView = append(b.basicBlocksView, blk)
	}
	return b.basicBlocksView
}

// DefineVariable implements Builder.DefineVariable.
func (b *builder) DefineVariable(variable Variable, value Value, block BasicBlock) {
	if int(variable) >= len(b.variableTypes) || !b.variableTypes[variable].Valid() {
		panic("BUG: trying to define " + variable.String() + " but it is not declared yet")
	}
	bb := block.(*basicBlock)
	bb.lastDefinitions[variable] = value
}

// DefineVariableInCurrentBB implements Builder.DefineVariableInCurrentBB.
func (b *builder) DefineVariableInCurrentBB(variable Variable, value Value) {
	b.DefineVariable(variable, value, b.currentBB)
}

// SetCurrentBlock implements Builder.SetCurrentBlock.
func (b *builder) SetCurrentBlock(bb BasicBlock) {
	b.currentBB = bb.(*basicBlock)
}

// CurrentBlock implements Builder.CurrentBlock.
func (b *builder) CurrentBlock() BasicBlock {
	return b.currentBB
}

// DeclareVariable implements Builder.DeclareVariable.
func (b *builder) DeclareVariable(typ Type) Variable {
	v := b.nextVariable
	b.nextVariable++
	iv := int(v)
	if l := len(b.variableTypes); l <= iv {
		b.variableTypes = append(b.variableTypes, make([]Type, iv-l+1)...)
	}
	b.variableTypes[v] = typ
	return v
}

// allocateValue implements Builder.allocateValue.
func (b *builder) allocateValue(typ Type) Value {
	id := b.nextValueID
	b.nextValueID++
	iv := int(id)
	if l := len(b.valueTypes); l <= iv {
		b.valueTypes = append(b.valueTypes, make([]Type, iv-l+1)...)
	}
	b.valueTypes[id] = typ
	return Value(id)
}

// typeOf implements Builder.typeOf.
func (b *builder) typeOf(v Value) Type {
	if !v.Valid() {
		return TypeInvalidValue
	}
	return b.valueTypes[v.ID()]
}

// ValueType implements Builder.ValueType.
func (b *builder) ValueType(v Value) Type {
	return b.typeOf(v)
}

// FindValue implements Builder.FindValue.
func (b *builder) FindValue(variable Variable) Value {
	typ := b.definedVariableType(variable)
	return b.findValue(typ, variable, b.currentBB)
}

// findValue recursively resolves the latest definition of variable,
// following the algorithm in section 2 of
// https://link.springer.com/content/pdf/10.1007/978-3-642-37051-9_6.pdf.
func (b *builder) findValue(typ Type, variable Variable, blk *basicBlock) Value {
	if val, ok := blk.lastDefinitions[variable]; ok {
		return val
	} else if !blk.sealed {
		// Incomplete CFG: blk may still gain predecessors, so stand up a
		// placeholder now and record it as unresolved; Seal reconciles
		// it against the predecessors known at that point.
		value := b.allocateValue(typ)
		blk.lastDefinitions[variable] = value
		blk.unknownValues[variable] = value
		return value
	}

	if pred := blk.singlePred; pred != nil {
		return b.findValue(typ, variable, pred)
	}

	// Multiple predecessors: add a block parameter (this port's phi) and
	// propagate the definition into every predecessor's terminator as an
	// extra branch argument.
	paramValue := b.allocateValue(typ)
	blk.addParamOn(variable, typ, paramValue)
	blk.lastDefinitions[variable] = paramValue
	for i := range blk.preds {
		pred := &blk.preds[i]
		value := b.findValue(typ, variable, pred.blk)
		pred.branch.addArgument(pred.targetIndex, value)
	}
	return paramValue
}

// Seal implements Builder.Seal.
func (b *builder) Seal(raw BasicBlock) {
	blk := raw.(*basicBlock)
	if len(blk.preds) == 1 {
		blk.singlePred = blk.preds[0].blk
	}
	blk.sealed = true

	for variable, phiValue := range blk.unknownValues {
		typ := b.definedVariableType(variable)
		blk.addParamOn(variable, typ, phiValue)
		for i := range blk.preds {
			pred := &blk.preds[i]
			predValue := b.findValue(typ, variable, pred.blk)
			pred.branch.addArgument(pred.targetIndex, predValue)
		}
	}
}

func (b *builder) definedVariableType(variable Variable) Type {
	if int(variable) >= len(b.variableTypes) {
		panic(fmt.Sprintf("%s is not declared yet", variable))
	}
	typ := b.variableTypes[variable]
	if !typ.Valid() {
		panic(fmt.Sprintf("%s is not declared yet", variable))
	}
	return typ
}

// Format implements Builder.Format.
func (b *builder) Format() string {
	var str strings.Builder
	if sigs := b.UsedSignatures(); len(sigs) > 0 {
		str.WriteByte('\n')
		str.WriteString("signatures:\n")
		for _, sig := range sigs {
			str.WriteByte('\t')
			str.WriteString(sig.String())
			str.WriteByte('\n')
		}
	}

	for _, blk := range b.Blocks() {
		bb := blk.(*basicBlock)
		str.WriteByte('\n')
		str.WriteString(bb.FormatHeader(b))
		str.WriteByte('\n')

		for cur := bb.Root(); cur != nil; cur = cur.Next() {
			str.WriteByte('\t')
			str.WriteString(cur.Format(b))
			str.WriteByte('\n')
		}
	}
	return str.String()
}

// entryBlk returns the function's entry block: by construction the first
// block ever allocated by AllocateBasicBlock.
func (b *builder) entryBlk() *basicBlock {
	return b.basicBlocksPool.view(0)
}

// clearBlkVisited empties b.blkVisited for reuse by the next pass.
func (b *builder) clearBlkVisited() {
	for i := 0; i < b.basicBlocksPool.allocated; i++ {
		delete(b.blkVisited, b.basicBlocksPool.view(i))
	}
}

// blockIteratorBegin resets the pool-order iterator and returns the first
// valid (non-removed, non-return) block, or nil if there is none.
func (b *builder) blockIteratorBegin() *basicBlock {
	b.iterCursor = 0
	return b.blockIteratorNext()
}

// blockIteratorNext advances the pool-order iterator and returns the next
// valid block, or nil once exhausted.
func (b *builder) blockIteratorNext() *basicBlock {
	for b.iterCursor < b.basicBlocksPool.allocated {
		blk := b.basicBlocksPool.view(b.iterCursor)
		b.iterCursor++
		if blk.invalid || blk.ReturnBlock() {
			continue
		}
		return blk
	}
	return nil
}

// isDominatedBy reports whether dominator dominates blk in the tree
// computed by passCalculateImmediateDominators.
func (b *builder) isDominatedBy(blk, dominator *basicBlock) bool {
	if int(blk.id) >= len(b.dominators) {
		return false
	}
	for cur := blk; cur != nil; {
		if cur == dominator {
			return true
		}
		idom := b.dominators[cur.id]
		if idom == cur {
			return false // reached the entry block.
		}
		cur = idom
	}
	return false
}

// alias records that value should be rendered and resolved as to from now
// on; used by passRedundantPhiElimination once a block parameter is
// proven to equal a single incoming value.
func (b *builder) alias(value, to Value) {
	b.aliases[value.ID()] = to
}

// resolveAlias follows the alias chain (if any) rooted at v.
func (b *builder) resolveAlias(v Value) Value {
	for v.Valid() {
		to, ok := b.aliases[v.ID()]
		if !ok {
			return v
		}
		v = to
	}
	return v
}

// resolveArgumentAlias rewrites instr's Value operands in place through
// resolveAlias.
func (b *builder) resolveArgumentAlias(instr *Instruction) {
	if instr.v2.Valid() {
		instr.v2 = b.resolveAlias(instr.v2)
	}
	for i, v := range instr.vs {
		instr.vs[i] = b.resolveAlias(v)
	}
}

// assignEdgeWeight records the heuristic weight of the from->to edge,
// consumed by passBlockFrequency.
func (b *builder) assignEdgeWeight(from, to *basicBlock, weight int) {
	b.edgeWeights[[2]basicBlockID{from.id, to.id}] = weight
}

// edgeWeight returns the weight previously recorded by assignEdgeWeight,
// defaulting to 1 for an edge that was never explicitly weighted.
func (b *builder) edgeWeight(from, to *basicBlock) int {
	if w, ok := b.edgeWeights[[2]basicBlockID{from.id, to.id}]; ok {
		return w
	}
	return 1
}
