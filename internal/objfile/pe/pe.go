// Package pe is the PE/COFF object-file builder (C10): wraps an
// encode.BinModule into a Windows x64 COFF object (.obj) with
// .text/.data/.pdata/.xdata/.drectve/.bnjatbl sections,
// IMAGE_RELOC_AMD64_{REL32,ADDR64,ADDR32NB} relocations, and an
// IMAGE_SYMBOL table, grounded on the pack's tinyrange `pe64.go` and
// Go's own `ld-pe.go` COFF-writer field layouts.
package pe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/banjoc/banjoc/internal/encode"
)

const (
	machineAMD64 = 0x8664

	imageSCNCntCode  = 0x00000020
	imageSCNCntInit  = 0x00000040
	imageSCNMemExec  = 0x20000000
	imageSCNMemRead  = 0x40000000
	imageSCNMemWrite = 0x80000000
	imageSCNLnkInfo  = 0x00000200

	relAMD64Rel32   = 0x0004
	relAMD64Addr64  = 0x0001
	relAMD64Addr32NB = 0x0003

	symClassExternal = 2
	symClassStatic   = 3
)

type coffHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type sectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

type relocation struct {
	VirtualAddress   uint32
	SymbolTableIndex uint32
	Type             uint16
}

type symbolRecord struct {
	Name               [8]byte
	Value              uint32
	SectionNumber      int16
	Type               uint16
	StorageClass       uint8
	NumberOfAuxSymbols uint8
}

func sectionName(name string) [8]byte {
	var b [8]byte
	copy(b[:], name)
	return b
}

// Write serializes bm as a Windows x64 COFF object to out.
func Write(bm *encode.BinModule, out io.Writer) error {
	sectionList := []struct {
		name  string
		bytes []byte
		flags uint32
	}{
		{".text", bm.Text, imageSCNCntCode | imageSCNMemExec | imageSCNMemRead},
		{".data", bm.Data, imageSCNCntInit | imageSCNMemRead | imageSCNMemWrite},
		{".pdata", nil, imageSCNCntInit | imageSCNMemRead},
		{".xdata", nil, imageSCNCntInit | imageSCNMemRead},
	}
	if len(bm.DrectveData) > 0 {
		sectionList = append(sectionList, struct {
			name  string
			bytes []byte
			flags uint32
		}{".drectve", bm.DrectveData, imageSCNLnkInfo})
	}
	if len(bm.BnjatblData) > 0 {
		sectionList = append(sectionList, struct {
			name  string
			bytes []byte
			flags uint32
		}{".bnjatbl", bm.BnjatblData, imageSCNCntInit | imageSCNMemRead})
	}

	// strings longer than 8 bytes would need the COFF string table;
	// every section name above is <=8 bytes so that table stays empty.

	headerSize := 20 + len(sectionList)*40
	offset := uint32(headerSize)

	headers := make([]sectionHeader, len(sectionList))
	for i, s := range sectionList {
		headers[i] = sectionHeader{
			Name: sectionName(s.name), VirtualSize: uint32(len(s.bytes)), SizeOfRawData: uint32(len(s.bytes)),
			PointerToRawData: offset, Characteristics: s.flags,
		}
		offset += uint32(len(s.bytes))
	}

	nameToSymIdx := make(map[string]int)
	var symbols []symbolRecord
	for _, def := range bm.SymbolDefs {
		sec := int16(1) // .text
		if def.Kind == encode.SymDataLabel {
			sec = 2
		}
		class := uint8(symClassStatic)
		if def.Global {
			class = symClassExternal
		}
		symbols = append(symbols, symbolRecord{
			Name: sectionName(def.Name), Value: uint32(def.Offset), SectionNumber: sec, StorageClass: class,
		})
		nameToSymIdx[def.Name] = len(symbols) - 1
	}
	for _, name := range bm.SymbolNames {
		if _, ok := nameToSymIdx[name]; ok {
			continue
		}
		symbols = append(symbols, symbolRecord{Name: sectionName(name), SectionNumber: 0, StorageClass: symClassExternal})
		nameToSymIdx[name] = len(symbols) - 1
	}

	textRelocs, err := buildRelocs(bm, nameToSymIdx, encode.SectionText)
	if err != nil {
		return err
	}
	for i := range headers {
		if sectionList[i].name == ".text" {
			headers[i].PointerToRelocations = offset
			headers[i].NumberOfRelocations = uint16(len(textRelocs))
			offset += uint32(len(textRelocs)) * 10
		}
	}
	symtabOffset := offset

	buf := new(bytes.Buffer)
	hdr := coffHeader{
		Machine: machineAMD64, NumberOfSections: uint16(len(sectionList)),
		PointerToSymbolTable: symtabOffset, NumberOfSymbols: uint32(len(symbols)),
	}
	if err := binary.Write(buf, binary.LittleEndian, hdr); err != nil {
		return err
	}
	for _, h := range headers {
		if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
			return err
		}
	}
	for _, s := range sectionList {
		buf.Write(s.bytes)
	}
	for _, r := range textRelocs {
		if err := binary.Write(buf, binary.LittleEndian, r); err != nil {
			return err
		}
	}
	for _, s := range symbols {
		if err := binary.Write(buf, binary.LittleEndian, s); err != nil {
			return err
		}
	}
	binary.Write(buf, binary.LittleEndian, uint32(4)) // empty string table (just its own 4-byte size field)

	_, err = out.Write(buf.Bytes())
	return err
}

func buildRelocs(bm *encode.BinModule, nameToSymIdx map[string]int, section encode.Section) ([]relocation, error) {
	var out []relocation
	for _, use := range bm.SymbolUses {
		if use.Section != section {
			continue
		}
		var name string
		if use.SymbolIndex < len(bm.SymbolNames) {
			name = bm.SymbolNames[use.SymbolIndex]
		}
		idx, ok := nameToSymIdx[name]
		if !ok {
			return nil, fmt.Errorf("pe: relocation references unknown symbol %q", name)
		}
		typ := uint16(relAMD64Rel32)
		switch use.Kind {
		case encode.RelocAbs64:
			typ = relAMD64Addr64
		case encode.RelocGOTPCRel32:
			typ = relAMD64Addr32NB
		}
		out = append(out, relocation{VirtualAddress: uint32(use.Address), SymbolTableIndex: uint32(idx), Type: typ})
	}
	return out, nil
}
