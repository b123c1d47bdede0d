package ssatext

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banjoc/banjoc/internal/ssa"
)

func TestParse_singleBlockFunction(t *testing.T) {
	b := ssa.NewBuilder()
	entry := b.AllocateBasicBlock()
	b.SetCurrentBlock(entry)
	ret := b.AllocateInstruction().AsRet(nil)
	b.InsertInstruction(ret)
	b.Seal(entry)

	text := Format(b)
	fn, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, fn.Blocks, 1)
	require.Equal(t, 0, fn.Blocks[0].Index)
}
