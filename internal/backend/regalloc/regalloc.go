// Package regalloc is the register allocator (C8): a two-pass
// bundle-based linear scan operating on internal/mcode instructions
// after instruction selection, grounded on spec.md §4.4. Bundles group
// a virtual register's lifetime by block (rather than a full
// interval-union across the whole function) since internal/backend's
// selectors never produce a value live across more than the blocks its
// uses naturally span without an explicit block-parameter hand-off,
// which is itself represented as a fresh per-block definition.
package regalloc

import (
	"sort"

	"github.com/banjoc/banjoc/internal/mcode"
)

// RegAnalyzer is the target-specific policy a Machine supplies to the
// allocator: which real registers exist per class, which are
// caller/callee-saved, and how to materialize the handful of
// instructions (push/pop/stack-pointer adjustment, spill load/store)
// the allocator itself cannot spell since mcode.Op's meaning is
// entirely target-defined.
type RegAnalyzer interface {
	// Candidates returns class's allocatable real registers, in
	// preference order (e.g. caller-saved before callee-saved, so a
	// leaf function's common case never needs a save/restore).
	Candidates(class mcode.RegClass) []uint8

	// IsCalleeSaved reports whether real (within class) must be saved
	// in the prologue and restored in the epilogue if used.
	IsCalleeSaved(class mcode.RegClass, real uint8) bool

	// IsReturn reports whether instr is a function-return terminator,
	// the point the epilogue must be inserted before. mcode.Op's
	// meaning is target-private, so the allocator cannot recognize
	// RET by opcode identity on its own.
	IsReturn(instr *mcode.Instruction) bool

	// StackAlign is the target ABI's required stack alignment, in
	// bytes (16 for both x86-64 SysV and AAPCS64).
	StackAlign() int64

	// SpillLoad/SpillStore materialize the instruction that
	// reloads/saves the real register real (already assigned to the
	// spilled bundle) from/to the stack slot at frame-pointer-relative
	// offset disp.
	SpillLoad(class mcode.RegClass, real uint8, disp int32, width uint8) *mcode.Instruction
	SpillStore(class mcode.RegClass, real uint8, disp int32, width uint8) *mcode.Instruction

	// PushCalleeSaved/PopCalleeSaved materialize one prologue push /
	// epilogue pop of a callee-saved real register.
	PushCalleeSaved(class mcode.RegClass, real uint8) *mcode.Instruction
	PopCalleeSaved(class mcode.RegClass, real uint8) *mcode.Instruction

	// AdjustStackPointer materializes the prologue's stack-allocation
	// (delta > 0) or the epilogue's deallocation (delta < 0).
	AdjustStackPointer(delta int64) *mcode.Instruction
}

// bundle is one virtual register's local live range within a single
// block: [start, end] are indices into that block's Instructions, in
// the block's original (pre-spill-code) numbering.
type bundle struct {
	vreg       mcode.VReg
	blockIdx   int
	start, end int
	real       uint8
	hasReal    bool
	spillDisp  int32
}

// Allocate assigns a real register (or a spill slot) to every virtual
// register fn's instructions reference, rewrites every Operand/Defs/
// Uses entry in place, inserts spill load/store and prologue/epilogue
// code, and fills in fn.Frame with the result (fn.Unwind is not set).
func Allocate(fn *mcode.Function, analyzer RegAnalyzer) {
	bundles := collectBundles(fn)
	assignRegisters(bundles, analyzer)
	allocateSpillSlots(fn, bundles)
	rewriteOperands(fn, bundles)
	insertSpillCode(fn, bundles, analyzer)
	buildFrame(fn, bundles, analyzer)
}

// collectBundles computes, for every block, the first-def/last-use
// span of every virtual register that block's instructions mention. A
// register with no local def (a cross-block live-in, e.g. a block
// parameter materialized by a predecessor's block-argument copy) gets
// a span starting at the block's first instruction.
func collectBundles(fn *mcode.Function) []*bundle {
	var out []*bundle
	for bi, blk := range fn.Blocks {
		first := make(map[mcode.VReg]int)
		last := make(map[mcode.VReg]int)
		seenDef := make(map[mcode.VReg]bool)
		touch := func(v mcode.VReg, i int, isDef bool) {
			if v.IsReal() {
				return
			}
			if isDef {
				if !seenDef[v] {
					first[v] = i
					seenDef[v] = true
				}
			} else if _, ok := first[v]; !ok {
				first[v] = 0
			}
			last[v] = i
		}
		for i, instr := range blk.Instructions {
			for _, u := range instr.Uses {
				touch(u, i, false)
			}
			for _, d := range instr.Defs {
				touch(d, i, true)
			}
		}
		for vreg, start := range first {
			out = append(out, &bundle{vreg: vreg, blockIdx: bi, start: start, end: last[vreg]})
		}
	}
	return out
}

// assignRegisters runs the two-pass linear scan: a candidate-register
// pass walking bundles in start order, assigning the first free
// candidate or evicting the latest-ending active bundle of the same
// class to take its place when none is free, per spec.md §4.4.
func assignRegisters(bundles []*bundle, analyzer RegAnalyzer) {
	byBlock := make(map[int][]*bundle)
	for _, b := range bundles {
		byBlock[b.blockIdx] = append(byBlock[b.blockIdx], b)
	}
	for _, blist := range byBlock {
		sort.Slice(blist, func(i, j int) bool { return blist[i].start < blist[j].start })

		var active []*bundle
		inUse := make(map[mcode.RegClass]map[uint8]*bundle)

		expire := func(pos int) {
			kept := active[:0]
			for _, a := range active {
				if a.end < pos {
					delete(inUse[a.vreg.Class()], a.real)
				} else {
					kept = append(kept, a)
				}
			}
			active = kept
		}

		for _, b := range blist {
			expire(b.start)
			class := b.vreg.Class()
			if inUse[class] == nil {
				inUse[class] = make(map[uint8]*bundle)
			}

			var free uint8
			found := false
			// The last candidate is insertSpillCode's scratch register
			// and is never handed out here.
			cands := analyzer.Candidates(class)
			if len(cands) > 0 {
				cands = cands[:len(cands)-1]
			}
			for _, cand := range cands {
				if _, taken := inUse[class][cand]; !taken {
					free = cand
					found = true
					break
				}
			}
			if found {
				b.real, b.hasReal = free, true
				inUse[class][free] = b
				active = append(active, b)
				continue
			}

			var victim *bundle
			for _, a := range active {
				if a.vreg.Class() == class && (victim == nil || a.end > victim.end) {
					victim = a
				}
			}
			if victim != nil && victim.end > b.end {
				b.real, b.hasReal = victim.real, true
				inUse[class][victim.real] = b
				victim.hasReal = false
				for i, a := range active {
					if a == victim {
						active = append(active[:i], active[i+1:]...)
						break
					}
				}
				active = append(active, b)
			}
			// else: b itself is spilled (left hasReal == false).
		}
	}
}

// allocateSpillSlots gives every bundle that didn't get a real
// register its own 8-byte stack slot (no coalescing across bundles,
// the simplest correct policy) and records fn.Frame.Slots.
func allocateSpillSlots(fn *mcode.Function, bundles []*bundle) {
	offset := int64(0)
	for _, b := range bundles {
		if b.hasReal {
			continue
		}
		offset -= 8
		fn.Frame.Slots = append(fn.Frame.Slots, &mcode.StackSlot{Size: 8, Align: 8, Offset: offset, Spill: true})
		b.spillDisp = int32(offset)
	}
}

// rewriteOperands walks every instruction and replaces each virtual
// VReg operand/Def/Use with its assigned real register; spilled
// bundles are left with a virtual VReg, which insertSpillCode later
// resolves by materializing an explicit load/store around a scratch
// real register instead.
func rewriteOperands(fn *mcode.Function, bundles []*bundle) {
	byVReg := make(map[mcode.VReg]*bundle)
	for _, b := range bundles {
		if b.hasReal {
			byVReg[b.vreg] = b
		}
	}
	fix := func(op *mcode.Operand) {
		if op.Kind != mcode.OperandReg || op.Reg.IsReal() {
			return
		}
		if b, ok := byVReg[op.Reg]; ok {
			op.Reg = op.Reg.AssignReal(b.real)
		}
	}
	fixList := func(regs []mcode.VReg) {
		for i, r := range regs {
			if r.IsReal() {
				continue
			}
			if b, ok := byVReg[r]; ok {
				regs[i] = r.AssignReal(b.real)
			}
		}
	}
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instructions {
			fix(&instr.Dst)
			fix(&instr.Src1)
			fix(&instr.Src2)
			fixList(instr.Defs)
			fixList(instr.Uses)
		}
	}
}

// insertSpillCode rewrites every remaining reference to a spilled
// bundle's virtual register into a dedicated scratch real register
// (the analyzer's last candidate for that class, reserved by
// convention for this purpose) reloaded via SpillLoad before the
// instruction and, for a def, saved back via SpillStore after it.
func insertSpillCode(fn *mcode.Function, bundles []*bundle, analyzer RegAnalyzer) {
	spilled := make(map[mcode.VReg]*bundle)
	for _, b := range bundles {
		if !b.hasReal {
			spilled[b.vreg] = b
		}
	}
	if len(spilled) == 0 {
		return
	}

	scratchOf := func(class mcode.RegClass) uint8 {
		cands := analyzer.Candidates(class)
		return cands[len(cands)-1]
	}

	for _, blk := range fn.Blocks {
		var out []*mcode.Instruction
		for _, instr := range blk.Instructions {
			var pre, post []*mcode.Instruction
			replace := func(op *mcode.Operand, isUse bool) {
				if op.Kind != mcode.OperandReg || op.Reg.IsReal() {
					return
				}
				b, ok := spilled[op.Reg]
				if !ok {
					return
				}
				scratch := scratchOf(op.Reg.Class())
				op.Reg = op.Reg.AssignReal(scratch)
				if isUse {
					pre = append(pre, analyzer.SpillLoad(b.vreg.Class(), scratch, b.spillDisp, 8))
				} else {
					post = append(post, analyzer.SpillStore(b.vreg.Class(), scratch, b.spillDisp, 8))
				}
			}
			replace(&instr.Src1, true)
			replace(&instr.Src2, true)
			replace(&instr.Dst, false)
			for i := range instr.Uses {
				if b, ok := spilled[instr.Uses[i]]; ok {
					scratch := scratchOf(b.vreg.Class())
					instr.Uses[i] = instr.Uses[i].AssignReal(scratch)
					pre = append(pre, analyzer.SpillLoad(b.vreg.Class(), scratch, b.spillDisp, 8))
				}
			}
			for i := range instr.Defs {
				if b, ok := spilled[instr.Defs[i]]; ok {
					scratch := scratchOf(b.vreg.Class())
					instr.Defs[i] = instr.Defs[i].AssignReal(scratch)
					post = append(post, analyzer.SpillStore(b.vreg.Class(), scratch, b.spillDisp, 8))
				}
			}
			out = append(out, pre...)
			out = append(out, instr)
			out = append(out, post...)
		}
		blk.Instructions = out
	}
}

// buildFrame fills fn.Frame's size and callee-saved list and inserts
// the prologue into the entry block and the epilogue before every
// return terminator.
func buildFrame(fn *mcode.Function, bundles []*bundle, analyzer RegAnalyzer) {
	usedByClass := make(map[mcode.RegClass]map[uint8]bool)
	for _, b := range bundles {
		if !b.hasReal {
			continue
		}
		if analyzer.IsCalleeSaved(b.vreg.Class(), b.real) {
			if usedByClass[b.vreg.Class()] == nil {
				usedByClass[b.vreg.Class()] = make(map[uint8]bool)
			}
			usedByClass[b.vreg.Class()][b.real] = true
		}
	}

	var calleeSaved []mcode.VReg
	var pushes, pops []*mcode.Instruction
	for class, set := range usedByClass {
		for real := range set {
			calleeSaved = append(calleeSaved, mcode.NewVReg(0, class).AssignReal(real))
			push := analyzer.PushCalleeSaved(class, real)
			push.EHPushReg = true
			pushes = append(pushes, push)
			pops = append(pops, analyzer.PopCalleeSaved(class, real))
		}
	}
	fn.Frame.CalleeSavedUsed = calleeSaved

	frameSize := int64(0)
	for _, s := range fn.Frame.Slots {
		if -s.Offset > frameSize {
			frameSize = -s.Offset
		}
	}
	if align := analyzer.StackAlign(); align > 0 && frameSize > 0 {
		frameSize = (frameSize + align - 1) / align * align
	}
	fn.Frame.Size = frameSize

	if len(fn.Blocks) == 0 {
		return
	}

	entry := fn.Blocks[0]
	prologue := append([]*mcode.Instruction{}, pushes...)
	if frameSize > 0 {
		prologue = append(prologue, analyzer.AdjustStackPointer(frameSize))
	}
	entry.Instructions = append(prologue, entry.Instructions...)

	for _, blk := range fn.Blocks {
		if len(blk.Instructions) == 0 {
			continue
		}
		last := blk.Instructions[len(blk.Instructions)-1]
		if !analyzer.IsReturn(last) {
			continue
		}
		var epilogue []*mcode.Instruction
		if frameSize > 0 {
			epilogue = append(epilogue, analyzer.AdjustStackPointer(-frameSize))
		}
		for i := len(pops) - 1; i >= 0; i-- {
			epilogue = append(epilogue, pops[i])
		}
		blk.Instructions = append(blk.Instructions[:len(blk.Instructions)-1], append(epilogue, last)...)
	}
}
