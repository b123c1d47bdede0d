package arm64

import (
	"io"

	"github.com/banjoc/banjoc/internal/backend"
	"github.com/banjoc/banjoc/internal/backend/regalloc"
	"github.com/banjoc/banjoc/internal/encode"
	"github.com/banjoc/banjoc/internal/encode/arm64"
	"github.com/banjoc/banjoc/internal/mcode"
	"github.com/banjoc/banjoc/internal/objfile/elf"
	"github.com/banjoc/banjoc/internal/objfile/macho"
)

// aapcs64ABI implements backend.ABI for the AAPCS64 procedure-call
// standard: integer args in x0-x7, float args in v0-v7, no shadow
// space, 16-byte stack alignment.
type aapcs64ABI struct{}

func (aapcs64ABI) IntArgRegs() []uint8   { return []uint8{regX0, regX1, regX2, regX3, regX4, regX5, regX6, regX7} }
func (aapcs64ABI) FloatArgRegs() []uint8 { return []uint8{0, 1, 2, 3, 4, 5, 6, 7} }
func (aapcs64ABI) IntReturnReg() uint8   { return regX0 }
func (aapcs64ABI) FloatReturnReg() uint8 { return 0 }
func (aapcs64ABI) ShadowSpace() int64    { return 0 }
func (aapcs64ABI) StackAlign() int64     { return 16 }

// AArch64Target implements backend.Target for one (OS, CodeModel) pair.
// Windows/ARM64 (PE/COFF) object output is out of scope for this
// target: the spec's supported AArch64 hosts are Linux and macOS, both
// of which this Target wires to their native object format.
type AArch64Target struct {
	os        backend.OS
	codeModel backend.CodeModel
}

// NewAArch64Target returns a Target for os under codeModel.
func NewAArch64Target(os backend.OS, codeModel backend.CodeModel) *AArch64Target {
	return &AArch64Target{os: os, codeModel: codeModel}
}

func (t *AArch64Target) CreateSSALowerer() backend.Machine { return NewTarget() }

func (t *AArch64Target) CreateMachinePassRunner() func(*mcode.Function) {
	analyzer := Analyzer{}
	return func(fn *mcode.Function) {
		regalloc.Allocate(fn, analyzer)
		FixupStackOffsets(fn)
	}
}

func (t *AArch64Target) CreateEmitter() func(*mcode.Module, io.Writer) error {
	os := t.os
	return func(module *mcode.Module, out io.Writer) error {
		bm, err := arm64.Encode(module)
		if err != nil {
			return err
		}
		if os == backend.OSDarwin {
			return macho.Write(bm, "arm64", out)
		}
		return elf.Write(bm, "arm64", out)
	}
}

func (t *AArch64Target) CreateRawEncoder() func(*mcode.Module) (*encode.BinModule, error) {
	return arm64.Encode
}

func (t *AArch64Target) OutputFileExt() string { return ".o" }

func (t *AArch64Target) ABI() backend.ABI { return aapcs64ABI{} }

func (t *AArch64Target) CodeModel() backend.CodeModel { return t.codeModel }
func (t *AArch64Target) OS() backend.OS                { return t.os }
