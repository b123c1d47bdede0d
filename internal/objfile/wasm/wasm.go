// Package wasm is the WebAssembly object-file builder (C10): wraps an
// encode.BinModule into a relocatable wasm module carrying Type(1)/
// Function(3)/Code(10)/Data(11) sections plus the custom "linking"
// (subsection 0x08, symbol table) and "reloc.CODE" sections the
// reference linker (`wasm-ld`) expects for relocatable object input,
// grounded on the teacher's own domain (wazero is itself a WASM
// binary consumer) and the pack's `lhaig/intent` wasmbe ULEB helper
// shape; writeULEB below writes its bytes through `icza/bitio`'s
// Writer (there is no SLEB helper).
package wasm

import (
	"bytes"
	"io"

	"github.com/icza/bitio"

	"github.com/banjoc/banjoc/internal/encode"
)

const (
	wasmMagic   = 0x6D736100 // "\0asm"
	wasmVersion = 1

	secType     = 1
	secFunction = 3
	secCode     = 10
	secData     = 11
	secCustom   = 0

	linkingSubsymtab = 0x08
	symKindFunction  = 0
	symKindData      = 1

	relocFuncIndexLEB = 0
	relocMemAddrLEB   = 1
)

func writeULEB(w *bitio.Writer, v uint64) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.TryWriteByte(b)
		if v == 0 {
			return
		}
	}
}

func writeName(w *bitio.Writer, s string) {
	writeULEB(w, uint64(len(s)))
	w.TryWrite([]byte(s))
}

// section frames a byte payload with its id and ULEB128 length, the
// shape every WebAssembly section shares regardless of content.
func section(id byte, payload []byte) []byte {
	var out bytes.Buffer
	w := bitio.NewWriter(&out)
	w.TryWriteByte(id)
	writeULEB(w, uint64(len(payload)))
	w.TryWrite(payload)
	w.Close()
	return out.Bytes()
}

// Write serializes bm as a relocatable WebAssembly module to out. Each
// function becomes one code-section entry whose body is bm.Text sliced
// from that function's TEXT_FUNC offset to the next one's (the last
// runs to the end of bm.Text), matching how internal/encode/amd64 and
// arm64 concatenate function bodies contiguously.
func Write(bm *encode.BinModule, out io.Writer) error {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x61, 0x73, 0x6D}) // "\0asm"
	buf.Write([]byte{0x01, 0x00, 0x00, 0x00}) // version 1

	funcDefs := filterDefs(bm.SymbolDefs, encode.SymTextFunc)

	buf.Write(section(secType, typeSection(len(funcDefs))))
	buf.Write(section(secFunction, functionSection(len(funcDefs))))
	buf.Write(section(secCode, codeSection(bm, funcDefs)))
	if len(bm.Data) > 0 {
		buf.Write(section(secData, dataSection(bm.Data)))
	}
	buf.Write(customSection("linking", linkingSection(funcDefs)))
	if len(bm.SymbolUses) > 0 {
		buf.Write(customSection("reloc.CODE", relocSection(bm)))
	}

	_, err := out.Write(buf.Bytes())
	return err
}

func filterDefs(defs []encode.SymbolDef, kind encode.SymbolKind) []encode.SymbolDef {
	var out []encode.SymbolDef
	for _, d := range defs {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// typeSection emits one nullary/no-result func type per function; a
// full ABI-aware signature table belongs to a later pass once wasm is
// promoted from "a fourth object format" to a first-class JIT target.
func typeSection(n int) []byte {
	var out bytes.Buffer
	w := bitio.NewWriter(&out)
	writeULEB(w, uint64(n))
	for i := 0; i < n; i++ {
		w.TryWriteByte(0x60) // func type tag
		writeULEB(w, 0)      // 0 params
		writeULEB(w, 0)      // 0 results
	}
	w.Close()
	return out.Bytes()
}

func functionSection(n int) []byte {
	var out bytes.Buffer
	w := bitio.NewWriter(&out)
	writeULEB(w, uint64(n))
	for i := 0; i < n; i++ {
		writeULEB(w, uint64(i)) // type index i
	}
	w.Close()
	return out.Bytes()
}

func codeSection(bm *encode.BinModule, funcDefs []encode.SymbolDef) []byte {
	var out bytes.Buffer
	w := bitio.NewWriter(&out)
	writeULEB(w, uint64(len(funcDefs)))
	for i, def := range funcDefs {
		end := int64(len(bm.Text))
		if i+1 < len(funcDefs) {
			end = funcDefs[i+1].Offset
		}
		body := bm.Text[def.Offset:end]
		writeULEB(w, uint64(len(body))+2) // +1 local-decl-count byte +1 end opcode
		writeULEB(w, 0)                   // 0 local declarations
		w.TryWrite(body)
		w.TryWriteByte(0x0B) // end
	}
	w.Close()
	return out.Bytes()
}

func dataSection(data []byte) []byte {
	var out bytes.Buffer
	w := bitio.NewWriter(&out)
	writeULEB(w, 1) // one data segment
	w.TryWriteByte(0x00)
	w.TryWriteByte(0x41) // i32.const
	writeULEB(w, 0)      // offset 0
	w.TryWriteByte(0x0B) // end
	writeULEB(w, uint64(len(data)))
	w.TryWrite(data)
	w.Close()
	return out.Bytes()
}

func customSection(name string, payload []byte) []byte {
	var out bytes.Buffer
	w := bitio.NewWriter(&out)
	writeName(w, name)
	w.TryWrite(payload)
	w.Close()
	return section(secCustom, out.Bytes())
}

// linkingSection emits a minimal version + symbol-table (0x08)
// subsection naming every function symbol, per the tool-conventions
// "linking" section's documented (if informally specified) shape.
func linkingSection(funcDefs []encode.SymbolDef) []byte {
	var out bytes.Buffer
	w := bitio.NewWriter(&out)
	writeULEB(w, 2) // linking-section version

	var sub bytes.Buffer
	sw := bitio.NewWriter(&sub)
	writeULEB(sw, uint64(len(funcDefs)))
	for i, def := range funcDefs {
		sw.TryWriteByte(symKindFunction)
		writeULEB(sw, 0) // flags
		writeULEB(sw, uint64(i))
		writeName(sw, def.Name)
	}
	sw.Close()

	w.TryWriteByte(linkingSubsymtab)
	writeULEB(w, uint64(sub.Len()))
	w.TryWrite(sub.Bytes())
	w.Close()
	return out.Bytes()
}

// relocSection emits one relocation entry per text-section SymbolUse,
// addressed relative to the code section's payload start the way
// wasm-ld's reloc.CODE custom section expects.
func relocSection(bm *encode.BinModule) []byte {
	var out bytes.Buffer
	w := bitio.NewWriter(&out)
	writeULEB(w, uint64(secCode))
	var uses []encode.SymbolUse
	for _, u := range bm.SymbolUses {
		if u.Section == encode.SectionText {
			uses = append(uses, u)
		}
	}
	writeULEB(w, uint64(len(uses)))
	for _, u := range uses {
		w.TryWriteByte(relocFuncIndexLEB)
		writeULEB(w, uint64(u.Address))
		writeULEB(w, uint64(u.SymbolIndex))
	}
	w.Close()
	return out.Bytes()
}
