package amd64

import "github.com/banjoc/banjoc/internal/mcode"

// Real GPR indices, System V AMD64 encoding order (rax=0 .. r15=15);
// XMM indices share the same numbering space within RegClassFloat.
const (
	regRAX uint8 = iota
	regRCX
	regRDX
	regRBX
	regRSP
	regRBP
	regRSI
	regRDI
	regR8
	regR9
	regR10
	regR11
	regR12
	regR13
	regR14
	regR15
)

// gprCandidates lists allocatable GPRs, caller-saved first (so a leaf
// function's common case touches no callee-saved register), excluding
// rsp/rbp (frame management) and reserving r15 as insertSpillCode's
// scratch register.
var gprCandidates = []uint8{
	regRAX, regRCX, regRDX, regRSI, regRDI, regR8, regR9, regR10, regR11,
	regRBX, regR12, regR13, regR14,
	regR15, // scratch: always last, see regalloc.insertSpillCode
}

// xmmCandidates lists allocatable XMM registers; xmm15 is reserved as
// the float scratch register.
var xmmCandidates = []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

// Analyzer implements regalloc.RegAnalyzer for x86-64 System V.
type Analyzer struct{}

func (Analyzer) Candidates(class mcode.RegClass) []uint8 {
	if class == mcode.RegClassFloat {
		return xmmCandidates
	}
	return gprCandidates
}

// IsCalleeSaved reports the System V AMD64 callee-saved GPR set
// (rbx, r12-r15); every XMM register is caller-saved under SysV.
func (Analyzer) IsCalleeSaved(class mcode.RegClass, real uint8) bool {
	if class == mcode.RegClassFloat {
		return false
	}
	switch real {
	case regRBX, regR12, regR13, regR14, regR15:
		return true
	default:
		return false
	}
}

func (Analyzer) IsReturn(instr *mcode.Instruction) bool { return instr.Op == OpRet }

func (Analyzer) StackAlign() int64 { return 16 }

func (Analyzer) SpillLoad(class mcode.RegClass, real uint8, disp int32, width uint8) *mcode.Instruction {
	v := mcode.NewVReg(0, class).AssignReal(real)
	return &mcode.Instruction{
		Op: OpLoad, Width: width,
		Dst:  mcode.RegOperand(v),
		Src1: mcode.MemOperand(mcode.NewVReg(0, mcode.RegClassGPR).AssignReal(regRBP), disp),
		Defs: []mcode.VReg{v},
	}
}

func (Analyzer) SpillStore(class mcode.RegClass, real uint8, disp int32, width uint8) *mcode.Instruction {
	v := mcode.NewVReg(0, class).AssignReal(real)
	return &mcode.Instruction{
		Op: OpStore, Width: width,
		Dst:  mcode.MemOperand(mcode.NewVReg(0, mcode.RegClassGPR).AssignReal(regRBP), disp),
		Src1: mcode.RegOperand(v),
		Uses: []mcode.VReg{v},
	}
}

func (Analyzer) PushCalleeSaved(class mcode.RegClass, real uint8) *mcode.Instruction {
	v := mcode.NewVReg(0, class).AssignReal(real)
	return &mcode.Instruction{Op: OpPush, Width: 8, Src1: mcode.RegOperand(v), Uses: []mcode.VReg{v}}
}

func (Analyzer) PopCalleeSaved(class mcode.RegClass, real uint8) *mcode.Instruction {
	v := mcode.NewVReg(0, class).AssignReal(real)
	return &mcode.Instruction{Op: OpPop, Width: 8, Dst: mcode.RegOperand(v), Defs: []mcode.VReg{v}}
}

func (Analyzer) AdjustStackPointer(delta int64) *mcode.Instruction {
	op := OpSub
	if delta < 0 {
		op, delta = OpAdd, -delta
	}
	sp := mcode.NewVReg(0, mcode.RegClassGPR).AssignReal(regRSP)
	return &mcode.Instruction{
		Op: op, Width: 8,
		Dst: mcode.RegOperand(sp), Src1: mcode.RegOperand(sp), Src2: mcode.ImmOperand(delta),
		Defs: []mcode.VReg{sp}, Uses: []mcode.VReg{sp},
	}
}
