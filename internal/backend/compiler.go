package backend

import (
	"github.com/banjoc/banjoc/internal/mcode"
	"github.com/banjoc/banjoc/internal/ssa"
)

// Compiler drives one Machine (C7's target-specific instruction
// selector) over the SSA-IR left in an ssa.Builder by internal/ssagen,
// producing a mcode.Function (C6). One Compiler is reused across every
// function of a module; Reset clears its per-function state between
// calls to Compile.
type Compiler struct {
	mach    Machine
	builder ssa.Builder

	fn           *mcode.Function
	blockOf      map[ssa.BasicBlock]*mcode.BasicBlock
	currentBlock *mcode.BasicBlock

	// valueVRegs/valueDefs are indexed by int(ssa.Value), grown lazily;
	// see ensureValueCapacity.
	valueVRegs []mcode.VReg
	valueDefs  []SSAValueDefinition

	alreadyLowered map[*ssa.Instruction]struct{}
}

// NewCompiler returns a Compiler that lowers SSA-IR via mach.
func NewCompiler(mach Machine) *Compiler {
	c := &Compiler{
		mach:           mach,
		alreadyLowered: make(map[*ssa.Instruction]struct{}),
	}
	mach.SetCompilationContext(c)
	return c
}

// Compile lowers builder's current function (named name) into a fresh
// mcode.Function.
func (c *Compiler) Compile(name string, builder ssa.Builder) (*mcode.Function, error) {
	c.Reset()
	c.builder = builder
	c.fn = mcode.NewFunction(name)

	blocks := builder.Blocks()
	c.blockOf = make(map[ssa.BasicBlock]*mcode.BasicBlock, len(blocks))
	for _, blk := range blocks {
		mb := &mcode.BasicBlock{Label: blk.Name(), SSABlock: blk}
		c.blockOf[blk] = mb
		c.fn.Blocks = append(c.fn.Blocks, mb)
	}

	c.assignVirtualRegisters(builder)

	c.mach.StartFunction(blocks)
	for _, blk := range blocks {
		c.lowerBlock(blk)
	}
	c.mach.EndFunction()

	return c.fn, nil
}

// lowerBlock lowers one SSA block's instructions into its mapped
// mcode.BasicBlock. Instructions are visited in reverse program order so
// a selector lowering a CJMP/FCJMP can inspect and fuse the ICMP/FCMP
// that produced its condition (MarkLowered-ing it) before the traversal
// reaches that producing instruction.
func (c *Compiler) lowerBlock(blk ssa.BasicBlock) {
	mb := c.blockOf[blk]
	c.currentBlock = mb
	c.mach.StartBlock(blk)

	for cur := lastInstr(blk); cur != nil; cur = cur.Prev() {
		if _, ok := c.alreadyLowered[cur]; ok {
			continue
		}
		c.mach.LowerInstr(cur)
	}

	c.mach.EndBlock()

	if term := lastInstr(blk); term != nil {
		for _, bt := range term.BranchTargets() {
			if succ, ok := c.blockOf[bt.Block]; ok {
				mb.Succs = append(mb.Succs, succ)
			}
		}
	}
}

// lastInstr returns blk's terminator (the last instruction in program
// order), or nil for an empty block. ssa.BasicBlock exposes only Root
// (the head of its instruction list) plus each Instruction's own
// Next/Prev, so the tail must be found by walking forward once.
func lastInstr(blk ssa.BasicBlock) *ssa.Instruction {
	var last *ssa.Instruction
	for cur := blk.Root(); cur != nil; cur = cur.Next() {
		last = cur
	}
	return last
}

// assignVirtualRegisters assigns one mcode.VReg to every block parameter
// and every instruction result in builder's current function, and
// records each one's SSAValueDefinition. Reference counts are computed
// by a single scan of every instruction's operands rather than a
// builder-maintained map, since ssa.Builder exposes no such map.
func (c *Compiler) assignVirtualRegisters(builder ssa.Builder) {
	refCounts := make(map[int]int)
	count := func(v ssa.Value) {
		if v.Valid() {
			refCounts[int(v)]++
		}
	}
	for _, blk := range builder.Blocks() {
		for cur := blk.Root(); cur != nil; cur = cur.Next() {
			count(cur.Arg())
			count(cur.Arg2())
			for _, v := range cur.Args() {
				count(v)
			}
			for _, bt := range cur.BranchTargets() {
				for _, v := range bt.Args {
					count(v)
				}
			}
		}
	}

	for _, blk := range builder.Blocks() {
		for i := 0; i < blk.Params(); i++ {
			p := blk.Param(i)
			vr := c.fn.AllocateVReg(RegClassOf(builder.ValueType(p)))
			c.setVReg(p, vr)
			c.setDef(p, SSAValueDefinition{BlkParamVReg: vr, RefCount: refCounts[int(p)]})
		}

		for cur := blk.Root(); cur != nil; cur = cur.Next() {
			r, rs := cur.Returns()
			if r.Valid() {
				vr := c.fn.AllocateVReg(RegClassOf(builder.ValueType(r)))
				c.setVReg(r, vr)
				c.setDef(r, SSAValueDefinition{Instr: cur, N: 0, RefCount: refCounts[int(r)]})
			}
			for i, rr := range rs {
				vr := c.fn.AllocateVReg(RegClassOf(builder.ValueType(rr)))
				c.setVReg(rr, vr)
				c.setDef(rr, SSAValueDefinition{Instr: cur, N: i + 1, RefCount: refCounts[int(rr)]})
			}
		}
	}
}

// ensureValueCapacity grows valueVRegs/valueDefs so index id is valid.
func (c *Compiler) ensureValueCapacity(id int) {
	if id < len(c.valueVRegs) {
		return
	}
	grown := make([]mcode.VReg, id+1)
	copy(grown, c.valueVRegs)
	for i := len(c.valueVRegs); i <= id; i++ {
		grown[i] = mcode.VRegInvalid
	}
	c.valueVRegs = grown

	grownDefs := make([]SSAValueDefinition, id+1)
	copy(grownDefs, c.valueDefs)
	c.valueDefs = grownDefs
}

func (c *Compiler) setVReg(v ssa.Value, r mcode.VReg) {
	id := int(v)
	c.ensureValueCapacity(id)
	c.valueVRegs[id] = r
}

func (c *Compiler) setDef(v ssa.Value, d SSAValueDefinition) {
	id := int(v)
	c.ensureValueCapacity(id)
	c.valueDefs[id] = d
}

// VRegOf implements CompilationContext.VRegOf.
func (c *Compiler) VRegOf(v ssa.Value) mcode.VReg {
	id := int(v)
	if id < 0 || id >= len(c.valueVRegs) {
		return mcode.VRegInvalid
	}
	return c.valueVRegs[id]
}

// ValueDefinition implements CompilationContext.ValueDefinition.
func (c *Compiler) ValueDefinition(v ssa.Value) *SSAValueDefinition {
	return &c.valueDefs[int(v)]
}

// ValueType implements CompilationContext.ValueType.
func (c *Compiler) ValueType(v ssa.Value) ssa.Type {
	return c.builder.ValueType(v)
}

// AllocateVReg implements CompilationContext.AllocateVReg.
func (c *Compiler) AllocateVReg(class mcode.RegClass) mcode.VReg {
	return c.fn.AllocateVReg(class)
}

// Emit implements CompilationContext.Emit.
func (c *Compiler) Emit(instr *mcode.Instruction) {
	c.currentBlock.Instructions = append(c.currentBlock.Instructions, instr)
}

// CurrentBlock implements CompilationContext.CurrentBlock.
func (c *Compiler) CurrentBlock() *mcode.BasicBlock {
	return c.currentBlock
}

// BlockOf implements CompilationContext.BlockOf.
func (c *Compiler) BlockOf(b ssa.BasicBlock) *mcode.BasicBlock {
	return c.blockOf[b]
}

// MarkLowered implements CompilationContext.MarkLowered.
func (c *Compiler) MarkLowered(inst *ssa.Instruction) {
	c.alreadyLowered[inst] = struct{}{}
}

// Reset clears c's per-function state so it can compile the next
// function.
func (c *Compiler) Reset() {
	for i := range c.valueVRegs {
		c.valueVRegs[i] = mcode.VRegInvalid
	}
	c.valueVRegs = c.valueVRegs[:0]
	c.valueDefs = c.valueDefs[:0]
	for k := range c.alreadyLowered {
		delete(c.alreadyLowered, k)
	}
	c.blockOf = nil
	c.currentBlock = nil
	c.fn = nil
	c.builder = nil
	if c.mach != nil {
		c.mach.Reset()
	}
}

// RegClassOf maps an SSA Type to the register class a Value of that
// type is held in: float-kinded types go to the float/vector file,
// everything else (integers and Addr) to the general-purpose file.
func RegClassOf(t ssa.Type) mcode.RegClass {
	if t.Float() {
		return mcode.RegClassFloat
	}
	return mcode.RegClassGPR
}
