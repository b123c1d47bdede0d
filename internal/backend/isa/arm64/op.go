// Package arm64 is the AArch64 instruction selector (C7), the
// three-operand counterpart to internal/backend/isa/amd64: a
// backend.Machine lowering SSA-IR into mcode.Instructions carrying
// AArch64 mnemonics for internal/backend/regalloc (C8) and
// internal/encode/arm64 (C9) to finish.
package arm64

import "github.com/banjoc/banjoc/internal/mcode"

// Op enumerates the AArch64 mnemonics this selector emits. Unlike
// x86-64's destructive two-operand forms, every ALU instruction here
// takes Dst, Src1, Src2 as three independent operands, matching the
// ISA's native three-register shape.
const (
	OpMov mcode.Op = iota + 1
	OpMovz // move-wide-immediate into a fresh register
	OpLdr
	OpStr
	OpAdd // also used for address computation (ALLOCA/MEMBERPTR/OFFSETPTR/LEA-equivalent)
	OpSub
	OpMul
	OpMadd // multiply-add; not emitted by the selector (OFFSETPTR lowers as MUL + ADD)
	OpSdiv
	OpUdiv
	OpMsub // multiply-subtract, used for SREM/UREM (r = a - (a/b)*b)
	OpNeg

	OpFadd
	OpFsub
	OpFmul
	OpFdiv
	OpFneg
	OpFsqrt

	OpAnd
	OpOrr
	OpEor
	OpMvn
	OpLsl
	OpAsr
	OpLsr

	OpCmp
	OpFcmp
	OpCset // conditional-set, the AArch64 SETcc equivalent

	OpUxt // zero-extend (UXTB/UXTH/UXTW family, Width picks the variant)
	OpSxt // sign-extend (SXTB/SXTH/SXTW)
	OpFcvt
	OpScvtf
	OpUcvtf
	OpFcvtzs
	OpFcvtzu

	OpB
	OpBl
	OpBlr
	OpRet

	OpCsel // conditional select, used for SSA SELECT

	// Conditional branches, one Op per AArch64 condition code.
	OpBeq
	OpBne
	OpBlt
	OpBge
	OpBgt
	OpBle
	OpBlo
	OpBhs
	OpBhi
	OpBls
)

