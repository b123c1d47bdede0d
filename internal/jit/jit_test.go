package jit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banjoc/banjoc/internal/encode"
)

func TestEncodeDecodeAddrTable_RoundTrip(t *testing.T) {
	names := []string{"main", "helper", ""}
	slots := []uint64{0, 8, 16}

	data, err := EncodeAddrTable(names, slots)
	require.NoError(t, err)

	gotNames, gotSlots, err := DecodeAddrTable(data)
	require.NoError(t, err)
	require.Equal(t, names, gotNames)
	require.Equal(t, slots, gotSlots)
}

func TestEncodeAddrTable_MismatchedLengths(t *testing.T) {
	_, err := EncodeAddrTable([]string{"a"}, nil)
	require.Error(t, err)
}

func TestDecodeAddrTable_Truncated(t *testing.T) {
	_, _, err := DecodeAddrTable([]byte{1, 0})
	require.Error(t, err)

	data, err := EncodeAddrTable([]string{"f"}, []uint64{0})
	require.NoError(t, err)
	_, _, err = DecodeAddrTable(data[:len(data)-1])
	require.Error(t, err)
}

func TestReloader_Debounce(t *testing.T) {
	r := &Reloader{lastSeen: make(map[string]time.Time)}

	require.True(t, r.debounce("a.bnj"), "first sighting of a path always passes")
	require.False(t, r.debounce("a.bnj"), "a second change within the debounce window is dropped")

	r.lastSeen["a.bnj"] = time.Now().Add(-debounceInterval - time.Millisecond)
	require.True(t, r.debounce("a.bnj"), "a change after the debounce window elapses passes again")
}

func TestPatchRelocations_Abs64AndRel32(t *testing.T) {
	bm := &encode.BinModule{
		Text: make([]byte, 32),
		Data: make([]byte, 8),
		SymbolNames: []string{"self", "data_sym"},
		SymbolDefs: []encode.SymbolDef{
			{Name: "self", Kind: encode.SymTextFunc, Offset: 0},
			{Name: "data_sym", Kind: encode.SymDataLabel, Offset: 0},
		},
		SymbolUses: []encode.SymbolUse{
			{SymbolIndex: 0, Section: encode.SectionText, Address: 4, Kind: encode.RelocRel32},
			{SymbolIndex: 1, Section: encode.SectionText, Address: 16, Kind: encode.RelocAbs64},
		},
	}

	const codeAddr, dataAddr = 0x1000, 0x2000
	require.NoError(t, patchRelocations(bm, codeAddr, dataAddr))

	u64 := func(b []byte) uint64 {
		var v uint64
		for i := 7; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}
	require.Equal(t, uint64(dataAddr), u64(bm.Text[16:24]))

	rel32 := int32(uint32(bm.Text[4]) | uint32(bm.Text[5])<<8 | uint32(bm.Text[6])<<16 | uint32(bm.Text[7])<<24)
	require.Equal(t, int32(-8), rel32, "self at 0x1000, rel32 field at 0x1004: 0x1000 - (0x1004 + 4)")
}

func TestPatchRelocations_UnresolvedSymbol(t *testing.T) {
	bm := &encode.BinModule{
		Text:        make([]byte, 8),
		SymbolNames: []string{"other_function"},
		SymbolUses: []encode.SymbolUse{
			{SymbolIndex: 0, Section: encode.SectionText, Address: 0, Kind: encode.RelocRel32},
		},
	}
	err := patchRelocations(bm, 0x1000, 0)
	require.Error(t, err)
}

func TestPatchRelocations_Branch26PreservesOpcodeBits(t *testing.T) {
	text := make([]byte, 8)
	// BL opcode: top 6 bits set (0x94000000), low 26 bits zeroed.
	text[3] = 0x94

	bm := &encode.BinModule{
		Text:        text,
		SymbolNames: []string{"self"},
		SymbolDefs: []encode.SymbolDef{
			{Name: "self", Kind: encode.SymTextFunc, Offset: 0},
		},
		SymbolUses: []encode.SymbolUse{
			{SymbolIndex: 0, Section: encode.SectionText, Address: 0, Kind: encode.RelocBranch26},
		},
	}
	require.NoError(t, patchRelocations(bm, 0x1000, 0))
	require.Equal(t, byte(0x94), bm.Text[3]&0xFC, "the BL opcode's top bits must survive the immediate patch")
}
