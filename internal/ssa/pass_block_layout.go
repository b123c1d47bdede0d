package ssa

import "sort"

// passBlockFrequency assigns heuristic edge weights and propagates them
// into a relative execution frequency per block, akin to LLVM's
// BlockFrequencyInfo. This has no profile data to work from, so it is a
// simple static heuristic: loop back edges and the first arm of a
// conditional branch are assumed hotter than their alternatives.
func passBlockFrequency(b *builder) {
	for blk := b.blockIteratorBegin(); blk != nil; blk = b.blockIteratorNext() {
		switch len(blk.success) {
		case 0:
		case 1:
			b.assignEdgeWeight(blk, blk.success[0], 10)
		case 2:
			thenBlk, elseBlk := blk.success[0], blk.success[1]
			thenIsBackedge := thenBlk.loopHeader && b.isDominatedBy(blk, thenBlk)
			elseIsBackedge := elseBlk.loopHeader && b.isDominatedBy(blk, elseBlk)

			switch {
			case thenIsBackedge:
				b.assignEdgeWeight(blk, thenBlk, 10)
				b.assignEdgeWeight(blk, elseBlk, 1)
			case elseIsBackedge:
				b.assignEdgeWeight(blk, thenBlk, 1)
				b.assignEdgeWeight(blk, elseBlk, 10)
			default:
				// No loop information to go on: assume the first arm,
				// by convention the "then"/taken branch, is hotter.
				b.assignEdgeWeight(blk, thenBlk, 10)
				b.assignEdgeWeight(blk, elseBlk, 1)
			}
		default:
			panic("BUG: a block must have at most two successors in this SSA-IR")
		}
	}

	const entryFrequency = 1
	n := b.basicBlocksPool.allocated
	if cap(b.blockFrequencies) < n {
		b.blockFrequencies = make([]int, n)
	} else {
		b.blockFrequencies = b.blockFrequencies[:n]
		for i := range b.blockFrequencies {
			b.blockFrequencies[i] = 0
		}
	}
	b.blockFrequencies[b.entryBlk().id] = entryFrequency

	for changed := true; changed; {
		changed = false
		for blk := b.blockIteratorBegin(); blk != nil; blk = b.blockIteratorNext() {
			var newFreq int
			for i := range blk.preds {
				pred := blk.preds[i].blk
				newFreq += b.blockFrequencies[pred.id] * b.edgeWeight(pred, blk)
			}
			if blk == b.entryBlk() && newFreq < entryFrequency {
				newFreq = entryFrequency
			}
			if b.blockFrequencies[blk.id] != newFreq {
				b.blockFrequencies[blk.id] = newFreq
				changed = true
			}
		}
	}
}

// passLayoutBlocks orders the blocks for code emission: the entry block
// first, then the rest sorted by descending block frequency (a simple
// greedy approximation of the Pettis-Hansen style placement LLVM does;
// good enough to put hot loop bodies ahead of their cold exits without
// a full trace-formation pass).
func passLayoutBlocks(b *builder) {
	order := b.blockLayoutOrder[:0]
	for blk := b.blockIteratorBegin(); blk != nil; blk = b.blockIteratorNext() {
		order = append(order, blk)
	}
	entry := b.entryBlk()
	sort.SliceStable(order, func(i, j int) bool {
		if order[i] == entry {
			return true
		}
		if order[j] == entry {
			return false
		}
		return b.blockFrequencies[order[i].id] > b.blockFrequencies[order[j].id]
	})
	b.blockLayoutOrder = order
}
