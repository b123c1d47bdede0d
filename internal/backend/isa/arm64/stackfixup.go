package arm64

import "github.com/banjoc/banjoc/internal/mcode"

// immBits is AArch64's ADD/SUB (immediate) field width: a 12-bit
// unsigned value, optionally shifted left by 12 (the "LSL #12" form).
const immBits = 12
const immMax = 1<<immBits - 1

// FixupStackOffsets rewrites every ADD/SUB whose Src2 is an immediate
// exceeding the 12-bit encodable range (reachable once register
// allocation has assigned real frame offsets that routinely exceed 4095
// bytes) into a shifted-12 add of the immediate's high bits plus a
// remainder add/sub of the low 12 bits, per spec.md's AArch64
// stack-offset fixup pass. It must run after regalloc.Allocate, once
// every stack-slot-relative displacement is a concrete immediate.
func FixupStackOffsets(fn *mcode.Function) {
	for _, blk := range fn.Blocks {
		var out []*mcode.Instruction
		for _, instr := range blk.Instructions {
			if (instr.Op == OpAdd || instr.Op == OpSub) && instr.Src2.Kind == mcode.OperandImm {
				imm := instr.Src2.Imm
				if imm < 0 {
					imm = -imm
				}
				if imm > immMax {
					hi := imm >> immBits << immBits
					lo := imm - hi
					if instr.Src2.Imm < 0 {
						hi, lo = -hi, -lo
					}
					out = append(out, &mcode.Instruction{
						Op: instr.Op, Width: instr.Width,
						Dst: instr.Dst, Src1: instr.Src1, Src2: mcode.ImmOperand(hi),
						Defs: instr.Defs, Uses: instr.Uses,
					})
					out = append(out, &mcode.Instruction{
						Op: instr.Op, Width: instr.Width,
						Dst: instr.Dst, Src1: instr.Dst, Src2: mcode.ImmOperand(lo),
						Defs: instr.Defs, Uses: instr.Defs,
					})
					continue
				}
			}
			out = append(out, instr)
		}
		blk.Instructions = out
	}
}
