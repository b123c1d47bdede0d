package ssa

// addrTableGlobalName is the name of the address-table global. Nothing
// in this package references it: no GlobalDecl of that name is created
// and no load from it is emitted.
const addrTableGlobalName = "addr_table"

// InsertAddrTablePass marks every direct CALL in b whose callee is one of
// localFunctionNames as resolving through the module's address table: it
// registers the callee in table, moves the name to the instruction's
// addrTableCallee and clears calleeName. The opcode stays CALL; no
// CALLINDIRECT, global load or new signature is introduced.
//
// This only rewrites calls *within* the module being made hot-reloadable;
// calls to native/external declarations are left as direct CALLs since
// those addresses do not move.
func InsertAddrTablePass(b Builder, table *AddrTable, localFunctionNames map[string]bool) {
	bb := b.(*builder)
	for blk := bb.blockIteratorBegin(); blk != nil; blk = bb.blockIteratorNext() {
		for cur := blk.rootInstr; cur != nil; cur = cur.next {
			if cur.opcode != OpcodeCall {
				continue
			}
			if !localFunctionNames[cur.calleeName] {
				continue
			}
			table.Register(cur.calleeName)
			cur.addrTableCallee = cur.calleeName
			cur.calleeName = ""
		}
	}
}

// addrTableCallee is consulted by the backend when lowering a CALL whose
// calleeName has been cleared by InsertAddrTablePass: it names the
// function to resolve through the address table's slot at lowering time,
// rather than the direct symbol InsertAddrTablePass removed.
