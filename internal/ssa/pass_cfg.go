package ssa

// passCalculateImmediateDominators computes the immediate dominator of
// every reachable block and stores it in b.dominators, indexed by
// basicBlockID. It finishes by flagging loop headers (subPassLoopDetection).
func passCalculateImmediateDominators(b *builder) {
	reversePostOrder := b.blkStack[:0]
	exploreStack := b.blkStack2[:0]
	b.clearBlkVisited()

	entryBlk := b.entryBlk()

	// Iterative postorder DFS, then reverse. Heuristic (not required by
	// the dominance algorithm itself): blk.success is assumed to list
	// successors in source program order, so a natural DFS already
	// approximates a good reverse postorder for straight-line code.
	const unseen, seen, done = 0, 1, 2
	exploreStack = append(exploreStack, entryBlk)
	b.blkVisited[entryBlk] = seen
	for len(exploreStack) > 0 {
		tail := len(exploreStack) - 1
		blk := exploreStack[tail]
		exploreStack = exploreStack[:tail]
		switch b.blkVisited[blk] {
		case unseen:
			panic("BUG: unreachable block pushed onto the dominance exploration stack")
		case seen:
			exploreStack = append(exploreStack, blk)
			for _, succ := range blk.success {
				if b.blkVisited[succ] == unseen {
					b.blkVisited[succ] = seen
					exploreStack = append(exploreStack, succ)
				}
			}
			b.blkVisited[blk] = done
		case done:
			reversePostOrder = append(reversePostOrder, blk)
		}
	}
	for i, j := 0, len(reversePostOrder)-1; i < j; i, j = i+1, j-1 {
		reversePostOrder[i], reversePostOrder[j] = reversePostOrder[j], reversePostOrder[i]
	}

	for i, blk := range reversePostOrder {
		b.blkVisited[blk] = i
	}

	if n := b.basicBlocksPool.allocated; len(b.dominators) < n {
		b.dominators = append(b.dominators, make([]*basicBlock, n-len(b.dominators))...)
	}
	calculateDominators(reversePostOrder, b.blkVisited, b.dominators)

	b.blkStack = reversePostOrder
	b.blkStack2 = exploreStack

	subPassLoopDetection(b)
}

// calculateDominators implements the Cooper-Harvey-Kennedy algorithm from
// "A Simple, Fast Dominance Algorithm"
// (https://www.cs.rice.edu/~keith/EMBED/dom.pdf), a simpler alternative
// to Lengauer-Tarjan. doms is indexed by block id and must cover every block's id.
func calculateDominators(reversePostOrderedBlks []*basicBlock, rpoIndex map[*basicBlock]int, doms []*basicBlock) {
	entry := reversePostOrderedBlks[0]
	for _, blk := range reversePostOrderedBlks {
		doms[blk.id] = nil
	}
	doms[entry.id] = entry

	for changed := true; changed; {
		changed = false
		for _, blk := range reversePostOrderedBlks[1:] {
			var newIdom *basicBlock
			for i := range blk.preds {
				pred := blk.preds[i].blk
				if doms[pred.id] == nil {
					continue // not yet reachable in this iteration; loops need another pass.
				}
				if newIdom == nil {
					newIdom = pred
				} else {
					newIdom = intersect(doms, rpoIndex, newIdom, pred)
				}
			}
			if doms[blk.id] != newIdom {
				doms[blk.id] = newIdom
				changed = true
			}
		}
	}
}

// intersect returns the common dominator of blk1 and blk2 by walking both
// up the (partially built) dominator tree in lockstep.
func intersect(doms []*basicBlock, rpoIndex map[*basicBlock]int, blk1, blk2 *basicBlock) *basicBlock {
	finger1, finger2 := blk1, blk2
	for finger1 != finger2 {
		for rpoIndex[finger1] > rpoIndex[finger2] {
			finger1 = doms[finger1.id]
		}
		for rpoIndex[finger2] > rpoIndex[finger1] {
			finger2 = doms[finger2.id]
		}
	}
	return finger1
}

// subPassLoopDetection flags a block as a loop header when one of its
// predecessors is dominated by it, i.e. the edge is a back edge.
func subPassLoopDetection(b *builder) {
	for blk := b.blockIteratorBegin(); blk != nil; blk = b.blockIteratorNext() {
		for i := range blk.preds {
			pred := blk.preds[i].blk
			if b.isDominatedBy(pred, blk) {
				blk.loopHeader = true
			}
		}
	}
}
