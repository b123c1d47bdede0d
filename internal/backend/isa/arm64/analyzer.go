package arm64

import "github.com/banjoc/banjoc/internal/mcode"

// Real register indices: x0-x30 (x29=fp, x30=lr, x31=sp handled
// separately by the encoder); v0-v31 share the numbering space within
// RegClassFloat.
const (
	regX0 uint8 = iota
	regX1
	regX2
	regX3
	regX4
	regX5
	regX6
	regX7
	regX8
	regX9
	regX10
	regX11
	regX12
	regX13
	regX14
	regX15
	regX16
	regX17
	regX18
	regX19
	regX20
	regX21
	regX22
	regX23
	regX24
	regX25
	regX26
	regX27
	regX28
	regFP // x29
	regLR // x30
)

const regSP = uint8(31)

// gprCandidates: caller-saved (x0-x15, skipping x18 the platform
// register) before callee-saved (x19-x28); x17 is reserved scratch.
var gprCandidates = []uint8{
	regX0, regX1, regX2, regX3, regX4, regX5, regX6, regX7,
	regX8, regX9, regX10, regX11, regX12, regX13, regX14, regX15,
	regX19, regX20, regX21, regX22, regX23, regX24, regX25, regX26, regX27, regX28,
	regX17, // scratch: always last, see regalloc.insertSpillCode
}

var vCandidates = []uint8{0, 1, 2, 3, 4, 5, 6, 7, 16, 17, 18, 19, 20, 21, 22, 23,
	8, 9, 10, 11, 12, 13, 14, 15, 30 /* scratch */}

// Analyzer implements regalloc.RegAnalyzer for AAPCS64.
type Analyzer struct{}

func (Analyzer) Candidates(class mcode.RegClass) []uint8 {
	if class == mcode.RegClassFloat {
		return vCandidates
	}
	return gprCandidates
}

// IsCalleeSaved reports the AAPCS64 callee-saved set: x19-x28 (GPR)
// and the bottom 64 bits of v8-v15 (float).
func (Analyzer) IsCalleeSaved(class mcode.RegClass, real uint8) bool {
	if class == mcode.RegClassFloat {
		return real >= 8 && real <= 15
	}
	return real >= regX19 && real <= regX28
}

func (Analyzer) IsReturn(instr *mcode.Instruction) bool { return instr.Op == OpRet }

func (Analyzer) StackAlign() int64 { return 16 }

func fpReg() mcode.VReg { return mcode.NewVReg(0, mcode.RegClassGPR).AssignReal(regFP) }

func (Analyzer) SpillLoad(class mcode.RegClass, real uint8, disp int32, width uint8) *mcode.Instruction {
	v := mcode.NewVReg(0, class).AssignReal(real)
	return &mcode.Instruction{
		Op: OpLdr, Width: width,
		Dst:  mcode.RegOperand(v),
		Src1: mcode.MemOperand(fpReg(), disp),
		Defs: []mcode.VReg{v},
	}
}

func (Analyzer) SpillStore(class mcode.RegClass, real uint8, disp int32, width uint8) *mcode.Instruction {
	v := mcode.NewVReg(0, class).AssignReal(real)
	return &mcode.Instruction{
		Op: OpStr, Width: width,
		Dst:  mcode.MemOperand(fpReg(), disp),
		Src1: mcode.RegOperand(v),
		Uses: []mcode.VReg{v},
	}
}

// PushCalleeSaved/PopCalleeSaved store/load a single register relative
// to the stack pointer; a real AAPCS64 prologue pairs registers into
// STP/LDP for density, left as a future encoder-level peephole rather
// than a selector-level concern.
func (Analyzer) PushCalleeSaved(class mcode.RegClass, real uint8) *mcode.Instruction {
	v := mcode.NewVReg(0, class).AssignReal(real)
	sp := mcode.NewVReg(0, mcode.RegClassGPR).AssignReal(regSP)
	return &mcode.Instruction{Op: OpStr, Width: 8, Dst: mcode.MemOperand(sp, 0), Src1: mcode.RegOperand(v), Uses: []mcode.VReg{v, sp}}
}

func (Analyzer) PopCalleeSaved(class mcode.RegClass, real uint8) *mcode.Instruction {
	v := mcode.NewVReg(0, class).AssignReal(real)
	sp := mcode.NewVReg(0, mcode.RegClassGPR).AssignReal(regSP)
	return &mcode.Instruction{Op: OpLdr, Width: 8, Dst: mcode.RegOperand(v), Src1: mcode.MemOperand(sp, 0), Defs: []mcode.VReg{v}, Uses: []mcode.VReg{sp}}
}

func (Analyzer) AdjustStackPointer(delta int64) *mcode.Instruction {
	op := OpSub
	if delta < 0 {
		op, delta = OpAdd, -delta
	}
	sp := mcode.NewVReg(0, mcode.RegClassGPR).AssignReal(regSP)
	return &mcode.Instruction{
		Op: op, Width: 8,
		Dst: mcode.RegOperand(sp), Src1: mcode.RegOperand(sp), Src2: mcode.ImmOperand(delta),
		Defs: []mcode.VReg{sp}, Uses: []mcode.VReg{sp},
	}
}
