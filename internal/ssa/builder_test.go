package ssa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBuilder(t *testing.T) {
	b := NewBuilder()
	require.NotNil(t, b)
}

func jump(b Builder, target BasicBlock, args []Value) {
	instr := b.AllocateInstruction().AsJump(target, append([]Value{}, args...))
	b.InsertInstruction(instr)
}

func iconst(b Builder, typ Type, v int64) Value {
	instr := b.AllocateInstruction().AsIconst(typ, v)
	b.InsertInstruction(instr)
	return instr.Return()
}

// buildDiamond constructs a diamond CFG where blk1 and blk2 both define a
// value and jump into blk3 with it as the argument of blk3's explicitly
// added block parameter; the caller emits blk3's terminator. No
// Variable is declared, so FindValue's parameter construction is not
// exercised.
func buildDiamond(t *testing.T, b Builder) (entry, blk1, blk2, blk3 BasicBlock) {
	t.Helper()
	entry = b.AllocateBasicBlock()
	blk1 = b.AllocateBasicBlock()
	blk2 = b.AllocateBasicBlock()
	blk3 = b.AllocateBasicBlock()
	blk3.(*basicBlock).AddParam(b, I32)

	b.SetCurrentBlock(entry)
	cond := iconst(b, I32, 1)
	br := b.AllocateInstruction().AsCjmp(cond, blk1, blk2, nil, nil)
	b.InsertInstruction(br)
	b.Seal(entry)

	b.SetCurrentBlock(blk1)
	ten := iconst(b, I32, 10)
	jump(b, blk3, []Value{ten})
	b.Seal(blk1)

	b.SetCurrentBlock(blk2)
	twenty := iconst(b, I32, 20)
	jump(b, blk3, []Value{twenty})
	b.Seal(blk2)

	b.Seal(blk3)
	return
}

func TestBuilder_diamondMerge(t *testing.T) {
	b := NewBuilder()
	entry, blk1, blk2, blk3 := buildDiamond(t, b)
	require.Len(t, entry.(*basicBlock).success, 2)
	require.Equal(t, 0, blk1.(*basicBlock).Params())
	require.Equal(t, 0, blk2.(*basicBlock).Params())
	require.Equal(t, 1, blk3.Params())

	b.SetCurrentBlock(blk3)
	ret := b.AllocateInstruction().AsRet([]Value{blk3.Param(0)})
	b.InsertInstruction(ret)

	out := b.Format()
	require.Contains(t, out, "blk3")
	require.Contains(t, out, "RET")
}

func TestBuilder_optimizeElidesUnreachableBlock(t *testing.T) {
	b := NewBuilder()
	entry := b.AllocateBasicBlock()
	dead := b.AllocateBasicBlock()
	_ = dead

	b.SetCurrentBlock(entry)
	ret := b.AllocateInstruction().AsRet(nil)
	b.InsertInstruction(ret)
	b.Seal(entry)

	b.Optimize()

	blks := b.Blocks()
	require.Len(t, blks, 1)
	require.Equal(t, "blk0", blks[0].(*basicBlock).Name())
}

func TestFindValue_singlePredChain(t *testing.T) {
	b := NewBuilder()
	entry := b.AllocateBasicBlock()
	mid := b.AllocateBasicBlock()

	b.SetCurrentBlock(entry)
	v := b.DeclareVariable(I32)
	forty := iconst(b, I32, 40)
	b.DefineVariableInCurrentBB(v, forty)
	jump(b, mid, nil)
	b.Seal(entry)

	b.SetCurrentBlock(mid)
	b.Seal(mid)
	found := b.FindValue(v)
	require.Equal(t, forty, found)
}
