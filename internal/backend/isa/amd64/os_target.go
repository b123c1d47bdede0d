package amd64

import (
	"io"

	"github.com/banjoc/banjoc/internal/backend"
	"github.com/banjoc/banjoc/internal/backend/regalloc"
	"github.com/banjoc/banjoc/internal/encode"
	"github.com/banjoc/banjoc/internal/encode/amd64"
	"github.com/banjoc/banjoc/internal/mcode"
	"github.com/banjoc/banjoc/internal/objfile/elf"
	"github.com/banjoc/banjoc/internal/objfile/macho"
	"github.com/banjoc/banjoc/internal/objfile/pe"
)

// sysVABI implements backend.ABI for the System V AMD64 calling
// convention (Linux/Darwin): integer args in rdi/rsi/rdx/rcx/r8/r9,
// float args in xmm0-xmm7, no shadow space.
type sysVABI struct{}

func (sysVABI) IntArgRegs() []uint8   { return []uint8{regRDI, regRSI, regRDX, regRCX, regR8, regR9} }
func (sysVABI) FloatArgRegs() []uint8 { return []uint8{0, 1, 2, 3, 4, 5, 6, 7} }
func (sysVABI) IntReturnReg() uint8   { return regRAX }
func (sysVABI) FloatReturnReg() uint8 { return 0 }
func (sysVABI) ShadowSpace() int64    { return 0 }
func (sysVABI) StackAlign() int64     { return 16 }

// win64ABI implements backend.ABI for the Microsoft x64 calling
// convention: integer args in rcx/rdx/r8/r9, float args in xmm0-xmm3
// (sharing argument *position* with the integer registers, not
// additive), 32 bytes of caller-reserved shadow space.
type win64ABI struct{}

func (win64ABI) IntArgRegs() []uint8   { return []uint8{regRCX, regRDX, regR8, regR9} }
func (win64ABI) FloatArgRegs() []uint8 { return []uint8{0, 1, 2, 3} }
func (win64ABI) IntReturnReg() uint8   { return regRAX }
func (win64ABI) FloatReturnReg() uint8 { return 0 }
func (win64ABI) ShadowSpace() int64    { return 32 }
func (win64ABI) StackAlign() int64     { return 16 }

// X86_64Target implements backend.Target for one (OS, CodeModel) pair.
type X86_64Target struct {
	os        backend.OS
	codeModel backend.CodeModel
}

// NewX86_64Target returns a Target for os under codeModel.
func NewX86_64Target(os backend.OS, codeModel backend.CodeModel) *X86_64Target {
	return &X86_64Target{os: os, codeModel: codeModel}
}

func (t *X86_64Target) CreateSSALowerer() backend.Machine { return NewTarget() }

func (t *X86_64Target) CreateMachinePassRunner() func(*mcode.Function) {
	analyzer := Analyzer{}
	return func(fn *mcode.Function) { regalloc.Allocate(fn, analyzer) }
}

func (t *X86_64Target) CreateEmitter() func(*mcode.Module, io.Writer) error {
	os := t.os
	return func(module *mcode.Module, out io.Writer) error {
		bm, err := amd64.Encode(module)
		if err != nil {
			return err
		}
		switch os {
		case backend.OSWindows:
			return pe.Write(bm, out)
		case backend.OSDarwin:
			return macho.Write(bm, "amd64", out)
		default:
			return elf.Write(bm, "amd64", out)
		}
	}
}

func (t *X86_64Target) CreateRawEncoder() func(*mcode.Module) (*encode.BinModule, error) {
	return amd64.Encode
}

func (t *X86_64Target) OutputFileExt() string {
	if t.os == backend.OSWindows {
		return ".obj"
	}
	return ".o"
}

func (t *X86_64Target) ABI() backend.ABI {
	if t.os == backend.OSWindows {
		return win64ABI{}
	}
	return sysVABI{}
}

func (t *X86_64Target) CodeModel() backend.CodeModel { return t.codeModel }
func (t *X86_64Target) OS() backend.OS                { return t.os }
