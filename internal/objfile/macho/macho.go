// Package macho is the Mach-O object-file builder (C10): wraps an
// encode.BinModule into a relocatable (MH_OBJECT) 64-bit Mach-O with a
// __TEXT,__text / __DATA,__data segment, LC_SYMTAB, LC_DYSYMTAB,
// ARM64_RELOC_BRANCH26 relocations for branch uses and the x86-64
// SIGNED type for every other use (PAGE21/PAGEOFF12 are not emitted),
// and `_`-prefixed symbol names per Mach-O convention. Grounded on the pack's
// `xyproto/flapc` macho.go writer and `mwpcheung/go-macho` nlist
// layout.
package macho

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/banjoc/banjoc/internal/encode"
)

const (
	magic64   = 0xFEEDFACF
	cpuARM64  = 0x0100000C
	cpuX8664  = 0x01000007
	mhObject  = 0x1

	lcSegment64 = 0x19
	lcSymtab    = 0x2
	lcDysymtab  = 0xB

	relocBranch26  = 2
	relocPage21    = 3
	relocPageOff12 = 4
	relocX8664Signed = 1

	nTypeSect = 0xE
	nExt      = 0x1
)

type machHeader64 struct {
	Magic, CPUType, CPUSubtype, FileType uint32
	NCmds, SizeOfCmds, Flags, Reserved   uint32
}

type segmentCommand64 struct {
	Cmd, CmdSize       uint32
	SegName            [16]byte
	VMAddr, VMSize     uint64
	FileOff, FileSize  uint64
	MaxProt, InitProt  int32
	NSects, Flags      uint32
}

type section64 struct {
	SectName, SegName                [16]byte
	Addr, Size                       uint64
	Offset, Align, RelOff, NReloc    uint32
	Flags, Reserved1, Reserved2, R3  uint32
}

type symtabCommand struct {
	Cmd, CmdSize, SymOff, NSyms, StrOff, StrSize uint32
}

type dysymtabCommand struct {
	Cmd, CmdSize                                                           uint32
	Ilocalsym, Nlocalsym, Iextdefsym, Nextdefsym, Iundefsym, Nundefsym     uint32
	Tocoff, Ntoc, Modtaboff, Nmodtab, Extrefsymoff, Nextrefsyms            uint32
	Indirectsymoff, Nindirectsyms, Extreloff, Nextrel, Locreloff, Nlocrel  uint32
}

type nlist64 struct {
	StrX            uint32
	Type, Sect      uint8
	Desc            uint16
	Value           uint64
}

type relocationInfo struct {
	Address uint32
	// PackedInfo bit-packs symbolnum:24, pcrel:1, length:2, extern:1, rtype:4
	PackedInfo uint32
}

func packReloc(symnum uint32, pcrel bool, length, rtype uint8, extern bool) uint32 {
	v := symnum & 0xFFFFFF
	if pcrel {
		v |= 1 << 24
	}
	v |= uint32(length&0x3) << 25
	if extern {
		v |= 1 << 27
	}
	v |= uint32(rtype&0xF) << 28
	return v
}

func name16(s string) [16]byte {
	var b [16]byte
	copy(b[:], s)
	return b
}

// Write serializes bm as a relocatable 64-bit Mach-O object for arch to
// out; arch is either "amd64" or "arm64".
func Write(bm *encode.BinModule, arch string, out io.Writer) error {
	cpuType := uint32(cpuX8664)
	if arch == "arm64" {
		cpuType = cpuARM64
	}

	var strtab bytes.Buffer
	strtab.WriteByte(0)
	nameToSymIdx := make(map[string]int)
	var nlists []nlist64
	for _, def := range bm.SymbolDefs {
		off := uint32(strtab.Len())
		strtab.WriteString("_" + def.Name)
		strtab.WriteByte(0)
		sect := uint8(1)
		if def.Kind == encode.SymDataLabel {
			sect = 2
		}
		typ := uint8(nTypeSect)
		if def.Global {
			typ |= nExt
		}
		nlists = append(nlists, nlist64{StrX: off, Type: typ, Sect: sect, Value: uint64(def.Offset)})
		nameToSymIdx[def.Name] = len(nlists) - 1
	}
	for _, name := range bm.SymbolNames {
		if _, ok := nameToSymIdx[name]; ok {
			continue
		}
		off := uint32(strtab.Len())
		strtab.WriteString("_" + name)
		strtab.WriteByte(0)
		nlists = append(nlists, nlist64{StrX: off, Type: nExt})
		nameToSymIdx[name] = len(nlists) - 1
	}

	var relocs []relocationInfo
	for _, use := range bm.SymbolUses {
		if use.Section != encode.SectionText {
			continue
		}
		var name string
		if use.SymbolIndex < len(bm.SymbolNames) {
			name = bm.SymbolNames[use.SymbolIndex]
		}
		idx, ok := nameToSymIdx[name]
		if !ok {
			return fmt.Errorf("macho: relocation references unknown symbol %q", name)
		}
		rtype := uint8(relocX8664Signed)
		if use.Kind == encode.RelocBranch26 {
			rtype = relocBranch26
		}
		relocs = append(relocs, relocationInfo{
			Address:    uint32(use.Address),
			PackedInfo: packReloc(uint32(idx), true, 2, rtype, true),
		})
	}

	const machHdrSize = 32
	const segCmdSize = 72
	const sectSize = 80
	const symtabCmdSize = 24
	const dysymtabCmdSize = 80

	segSize := segCmdSize + 2*sectSize
	cmdsSize := uint32(segSize + symtabCmdSize + dysymtabCmdSize)

	textOff := uint32(machHdrSize) + cmdsSize
	dataOff := textOff + uint32(len(bm.Text))
	relOff := dataOff + uint32(len(bm.Data))
	symOff := relOff + uint32(len(relocs))*8
	strOff := symOff + uint32(len(nlists))*16

	hdr := machHeader64{Magic: magic64, CPUType: cpuType, FileType: mhObject, NCmds: 3, SizeOfCmds: cmdsSize}

	seg := segmentCommand64{
		Cmd: lcSegment64, CmdSize: uint32(segSize), FileOff: uint64(textOff),
		FileSize: uint64(len(bm.Text) + len(bm.Data)), MaxProt: 7, InitProt: 7, NSects: 2,
	}
	textSect := section64{
		SectName: name16("__text"), SegName: name16("__TEXT"), Size: uint64(len(bm.Text)),
		Offset: textOff, Align: 4, RelOff: relOff, NReloc: uint32(len(relocs)),
	}
	dataSect := section64{
		SectName: name16("__data"), SegName: name16("__DATA"), Size: uint64(len(bm.Data)), Offset: dataOff,
	}
	symCmd := symtabCommand{Cmd: lcSymtab, CmdSize: symtabCmdSize, SymOff: symOff, NSyms: uint32(len(nlists)), StrOff: strOff, StrSize: uint32(strtab.Len())}
	dysym := dysymtabCommand{Cmd: lcDysymtab, CmdSize: dysymtabCmdSize}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, hdr)
	binary.Write(buf, binary.LittleEndian, seg)
	binary.Write(buf, binary.LittleEndian, textSect)
	binary.Write(buf, binary.LittleEndian, dataSect)
	binary.Write(buf, binary.LittleEndian, symCmd)
	binary.Write(buf, binary.LittleEndian, dysym)
	buf.Write(bm.Text)
	buf.Write(bm.Data)
	for _, r := range relocs {
		binary.Write(buf, binary.LittleEndian, r)
	}
	for _, n := range nlists {
		binary.Write(buf, binary.LittleEndian, n)
	}
	buf.Write(strtab.Bytes())

	_, err := out.Write(buf.Bytes())
	return err
}
