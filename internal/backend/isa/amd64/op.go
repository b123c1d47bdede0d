// Package amd64 is the x86-64 instruction selector (C7): a
// backend.Machine that lowers SSA-IR into mcode.Instructions carrying
// x86-64 mnemonics, one per basic block, leaving virtual registers for
// internal/backend/regalloc (C8) to assign and internal/encode/amd64
// (C9) to turn into bytes.
package amd64

import "github.com/banjoc/banjoc/internal/mcode"

// Op enumerates the x86-64 mnemonics this selector emits. Width
// (Instruction.Width) disambiguates same-mnemonic variants the encoder
// needs to distinguish (MOVSS vs MOVSD, 32 vs 64-bit GPR forms); Op
// itself only names the operation.
const (
	OpMov mcode.Op = iota + 1
	OpMovImm
	OpLoad
	OpStore
	OpLea
	OpFrameAddr // address of a not-yet-laid-out stack slot; Src1.Imm is its size
	OpPush      // prologue callee-saved save, Src1 names the register
	OpPop       // epilogue callee-saved restore, Dst names the register

	OpAdd
	OpSub
	OpImul
	OpIdiv // signed division; Uses[0]=dividend low, result in Dst
	OpDiv  // unsigned division
	OpNeg

	OpAddSS
	OpSubSS
	OpMulSS
	OpDivSS
	OpNegSS
	OpSqrtSS

	OpAnd
	OpOr
	OpXor
	OpNot
	OpShl
	OpSar // arithmetic (signed) shift right
	OpShr // logical (unsigned) shift right

	OpCmp
	OpUComiSS // unordered compare for float, sets the same flags CMP would

	OpMovzx
	OpMovsx
	OpMovTrunc // truncating GPR-to-GPR mov (high bits discarded by Width)
	OpCvtFloat // float<->float width change (CVTSS2SD/CVTSD2SS, Width picks direction)
	OpCvtIntToFloat
	OpCvtFloatToInt

	OpJmp
	OpCall
	OpCallIndirect
	OpRet

	OpCmovne

	// Conditional set/jump pairs, one per IntegerCmpCond/FloatCmpCond.
	OpSete
	OpSetne
	OpSetl
	OpSetge
	OpSetg
	OpSetle
	OpSetb
	OpSetae
	OpSeta
	OpSetbe

	OpJe
	OpJne
	OpJl
	OpJge
	OpJg
	OpJle
	OpJb
	OpJae
	OpJa
	OpJbe
)
