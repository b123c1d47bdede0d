// Package elf is the ELF64 object-file builder (C10): wraps an
// encode.BinModule into a relocatable ET_REL ELF64 object (x86-64 or
// AArch64) with .text/.data/.shstrtab/.strtab/.symtab/.rela.text
// sections, following the gABI64 layout. Grounded in struct-packing
// technique on the pack's PE/Mach-O sibling builders (no direct ELF
// example repo in the retrieval pack); field names and values follow
// the public ELF64 specification.
package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/banjoc/banjoc/internal/encode"
)

const (
	etRel    = 1
	emX8664  = 62
	emAArch64 = 183
	shtNull  = 0
	shtProgB = 1
	shtSym   = 2
	shtStrT  = 3
	shtRela  = 4

	shfAlloc = 0x2
	shfExec  = 0x4
	shfWrite = 0x1

	rX8664PC32      = 2
	rX8664PLT32     = 4
	rX8664GOTPCRel  = 41
	rX8664_64       = 1
	rAArch64Call26  = 283
	rAArch64Abs64   = 257
	stbGlobal       = 1
	stbLocal        = 0
	sttFunc         = 2
	sttObject       = 1
	sttNoType       = 0
	shnUndef uint16 = 0
)

type elfHeader struct {
	Ident                             [16]byte
	Type, Machine                     uint16
	Version                           uint32
	Entry, Phoff, Shoff               uint64
	Flags                             uint32
	Ehsize, Phentsize, Phnum          uint16
	Shentsize, Shnum, Shstrndx        uint16
}

type sectionHeader struct {
	Name                      uint32
	Type                      uint32
	Flags                     uint64
	Addr, Offset              uint64
	Size                      uint64
	Link, Info                uint32
	AddrAlign, EntSize        uint64
}

type symEntry struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

type relaEntry struct {
	Offset uint64
	Info   uint64
	Addend int64
}

type strtab struct {
	buf []byte
}

func newStrtab() *strtab { return &strtab{buf: []byte{0}} }

func (s *strtab) add(name string) uint32 {
	off := uint32(len(s.buf))
	s.buf = append(s.buf, []byte(name)...)
	s.buf = append(s.buf, 0)
	return off
}

// Write serializes bm as a relocatable ELF64 object to out; arch is
// either "amd64" or "arm64" and selects e_machine and the relocation
// type encoding.
func Write(bm *encode.BinModule, arch string, out io.Writer) error {
	machine := uint16(emX8664)
	if arch == "arm64" {
		machine = emAArch64
	}
	var shstr, symstr strtab
	shstr.buf, symstr.buf = []byte{0}, []byte{0}

	textNameOff := shstr.add(".text")
	dataNameOff := shstr.add(".data")
	shstrNameOff := shstr.add(".shstrtab")
	strNameOff := shstr.add(".strtab")
	symNameOff := shstr.add(".symtab")
	relaNameOff := shstr.add(".rela.text")

	var symtab []symEntry
	symtab = append(symtab, symEntry{}) // STN_UNDEF sentinel

	nameToSymIdx := make(map[string]int)
	for _, def := range bm.SymbolDefs {
		bind := uint8(stbLocal)
		if def.Global {
			bind = stbGlobal
		}
		typ := uint8(sttNoType)
		shndx := uint16(1)
		if def.Kind == encode.SymDataLabel {
			typ, shndx = sttObject, 2
		} else {
			typ = sttFunc
		}
		symtab = append(symtab, symEntry{
			Name: symstr.add(def.Name), Info: bind<<4 | typ, Shndx: shndx, Value: uint64(def.Offset),
		})
		nameToSymIdx[def.Name] = len(symtab) - 1
	}
	// undefined externals referenced only via SymbolUse/SymbolNames
	for _, name := range bm.SymbolNames {
		if _, ok := nameToSymIdx[name]; ok {
			continue
		}
		symtab = append(symtab, symEntry{Name: symstr.add(name), Info: stbGlobal<<4 | sttNoType, Shndx: shnUndef})
		nameToSymIdx[name] = len(symtab) - 1
	}

	var relas []relaEntry
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
			return fmt.Errorf("elf: relocation references unknown symbol %q", name)
		}
		relas = append(relas, relaEntry{
			Offset: uint64(use.Address), Addend: use.Addend,
			Info: uint64(idx)<<32 | uint64(relocType(use.Kind, arch)),
		})
	}

	const ehsize = 64
	const shentsize = 64
	shoff := uint64(ehsize)
	textOff := shoff + shentsize*7
	dataOff := textOff + uint64(len(bm.Text))
	symOff := dataOff + uint64(len(bm.Data))
	relaOff := symOff + uint64(len(symtab))*24
	strOff := relaOff + uint64(len(relas))*24
	shstrOff := strOff + uint64(len(symstr.buf))

	hdr := elfHeader{
		Type: etRel, Machine: machine, Version: 1,
		Ehsize: ehsize, Shentsize: shentsize, Shnum: 7, Shstrndx: 6, Shoff: shoff,
	}
	copy(hdr.Ident[:], []byte{0x7F, 'E', 'L', 'F', 2, 1, 1})

	sections := []sectionHeader{
		{}, // SHN_UNDEF
		{Name: textNameOff, Type: shtProgB, Flags: shfAlloc | shfExec, Offset: textOff, Size: uint64(len(bm.Text)), AddrAlign: 16},
		{Name: dataNameOff, Type: shtProgB, Flags: shfAlloc | shfWrite, Offset: dataOff, Size: uint64(len(bm.Data)), AddrAlign: 8},
		{Name: symNameOff, Type: shtSym, Offset: symOff, Size: uint64(len(symtab)) * 24, Link: 5, Info: uint32(firstGlobal(symtab)), EntSize: 24, AddrAlign: 8},
		{Name: relaNameOff, Type: shtRela, Offset: relaOff, Size: uint64(len(relas)) * 24, Link: 3, Info: 1, EntSize: 24, AddrAlign: 8},
		{Name: strNameOff, Type: shtStrT, Offset: strOff, Size: uint64(len(symstr.buf)), AddrAlign: 1},
		{Name: shstrNameOff, Type: shtStrT, Offset: shstrOff, Size: uint64(len(shstr.buf)), AddrAlign: 1},
	}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, hdr); err != nil {
		return err
	}
	for _, s := range sections {
		if err := binary.Write(buf, binary.LittleEndian, s); err != nil {
			return err
		}
	}
	buf.Write(bm.Text)
	buf.Write(bm.Data)
	for _, s := range symtab {
		if err := binary.Write(buf, binary.LittleEndian, s); err != nil {
			return err
		}
	}
	for _, r := range relas {
		if err := binary.Write(buf, binary.LittleEndian, r); err != nil {
			return err
		}
	}
	buf.Write(symstr.buf)
	buf.Write(shstr.buf)

	_, err := out.Write(buf.Bytes())
	return err
}

func firstGlobal(syms []symEntry) int {
	for i, s := range syms {
		if s.Info>>4 == stbGlobal {
			return i
		}
	}
	return len(syms)
}

func relocType(kind encode.RelocKind, arch string) uint32 {
	if arch == "arm64" {
		if kind == encode.RelocAbs64 {
			return rAArch64Abs64
		}
		return rAArch64Call26
	}
	switch kind {
	case encode.RelocAbs64:
		return rX8664_64
	case encode.RelocPLT32:
		return rX8664PLT32
	case encode.RelocGOTPCRel32:
		return rX8664GOTPCRel
	default:
		return rX8664PC32
	}
}
