// Package arm64 is the AArch64 encoder (C9): every instruction is a
// fixed 4-byte little-endian word, so unlike amd64 there is no
// relaxation loop — branch displacements are always encoded in their
// final word-granular form (26-bit for B/BL, 19-bit for B.cond) and
// only need a relocation when
// the target is an external symbol, per spec.md §4.5/§9. Grounded on
// the teacher's arm64 `instr.go`/`instr2.go` field-packing helpers.
package arm64

import (
	"encoding/binary"
	"fmt"

	"github.com/banjoc/banjoc/internal/backend/isa/arm64"
	"github.com/banjoc/banjoc/internal/encode"
	"github.com/banjoc/banjoc/internal/mcode"
)

// Encode lowers module into a BinModule, one word-aligned text section
// per function concatenated in order.
func Encode(module *mcode.Module) (*encode.BinModule, error) {
	bm := &encode.BinModule{}
	var syms encode.SymbolTable

	for _, fn := range module.Functions {
		if err := encodeFunction(fn, bm, &syms); err != nil {
			return nil, fmt.Errorf("arm64: encoding %s: %w", fn.Name, err)
		}
	}
	for _, g := range module.Globals {
		bm.SymbolDefs = append(bm.SymbolDefs, encode.SymbolDef{
			Name: g.Name, Kind: encode.SymDataLabel, Offset: int64(len(bm.Data)), Global: true,
		})
		syms.Intern(g.Name)
		bm.Data = append(bm.Data, g.Bytes...)
	}
	bm.SymbolNames = syms.Names()
	return bm, nil
}

func encodeFunction(fn *mcode.Function, bm *encode.BinModule, syms *encode.SymbolTable) error {
	bm.SymbolDefs = append(bm.SymbolDefs, encode.SymbolDef{
		Name: fn.Name, Kind: encode.SymTextFunc, Offset: int64(len(bm.Text)), Global: fn.Exported,
	})
	syms.Intern(fn.Name)

	offsets := make(map[string]int64, len(fn.Blocks))
	base := int64(len(bm.Text))
	pos := base
	for _, blk := range fn.Blocks {
		offsets[blk.Label] = pos
		pos += int64(len(blk.Instructions)) * 4
	}

	pos = base
	for bi, blk := range fn.Blocks {
		bm.SymbolDefs = append(bm.SymbolDefs, encode.SymbolDef{
			Name: fmt.Sprintf("%s.L%d", fn.Name, bi), Kind: encode.SymTextLabel, Offset: pos,
		})
		for _, instr := range blk.Instructions {
			word, use, err := encodeInstr(instr, pos, offsets, syms)
			if err != nil {
				return err
			}
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], word)
			bm.Text = append(bm.Text, b[:]...)
			if use != nil {
				use.Address = pos
				bm.SymbolUses = append(bm.SymbolUses, *use)
			}
			pos += 4
		}
	}
	return nil
}

// reg packs a register operand's encoding field (bits 0-4 of most
// AArch64 forms); real register 31 (SP/XZR depending on context) is
// passed through as-is, the instruction form itself disambiguates.
func reg(op mcode.Operand) uint32 {
	if op.Reg.IsReal() {
		return uint32(op.Reg.RealReg()) & 0x1F
	}
	return 0
}

// encodeInstr encodes one instruction to its 32-bit word. ALU forms
// use the three-operand Rd/Rn/Rm (or Rd/Rn/imm12) layout; branches use
// the 26-bit word-offset immediate (BL/B) or a symbol relocation when
// the target isn't a local label.
func encodeInstr(instr *mcode.Instruction, pos int64, offsets map[string]int64, syms *encode.SymbolTable) (uint32, *encode.SymbolUse, error) {
	sf := uint32(0)
	if instr.Width == 8 {
		sf = 1
	}
	switch instr.Op {
	case arm64.OpMov:
		return sf<<31 | 0b0101010000<<21 | reg(instr.Src1)<<16 | reg(instr.Dst), nil, nil
	case arm64.OpMovz:
		imm := uint32(instr.Src1.Imm) & 0xFFFF
		return sf<<31 | 0b10100101<<23 | imm<<5 | reg(instr.Dst), nil, nil
	case arm64.OpAdd:
		return encodeDataProc(0b0001011000, 0b0001000100, sf, instr), nil, nil
	case arm64.OpSub:
		return encodeDataProc(0b1001011000, 0b1001000100, sf, instr), nil, nil
	case arm64.OpCmp:
		w := *instr
		w.Dst = mcode.RegOperand(mcode.NewVReg(0, mcode.RegClassGPR).AssignReal(31)) // discard into XZR
		return encodeDataProc(0b1101011000, 0b1101000100, sf, &w), nil, nil
	case arm64.OpAnd:
		return 0b0001010000<<21 | sf<<31 | reg(instr.Src1)<<5 | reg(instr.Src2)<<16 | reg(instr.Dst), nil, nil
	case arm64.OpOrr:
		return 0b0101010000<<21 | sf<<31 | reg(instr.Src1)<<5 | reg(instr.Src2)<<16 | reg(instr.Dst), nil, nil
	case arm64.OpEor:
		return 0b1001010000<<21 | sf<<31 | reg(instr.Src1)<<5 | reg(instr.Src2)<<16 | reg(instr.Dst), nil, nil
	case arm64.OpMul:
		return sf<<31 | 0b0011011000<<21 | reg(instr.Src2)<<16 | 0x1F<<10 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpMadd:
		return sf<<31 | 0b0011011000<<21 | reg(instr.Src2)<<16 | reg(instr.Dst)<<10 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpMsub:
		return sf<<31 | 0b0011011000<<21 | reg(instr.Src2)<<16 | 1<<15 | reg(instr.Dst)<<10 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpSdiv:
		return sf<<31 | 0b0011010110<<21 | reg(instr.Src2)<<16 | 0b000011<<10 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpUdiv:
		return sf<<31 | 0b0011010110<<21 | reg(instr.Src2)<<16 | 0b000010<<10 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil

	case arm64.OpLdr:
		return encodeLdrStr(true, sf, instr), nil, nil
	case arm64.OpStr:
		return encodeLdrStr(false, sf, instr), nil, nil

	case arm64.OpFadd:
		return 0b00011110<<24 | 0b0110<<21 | reg(instr.Src2)<<16 | 0b001010<<10 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpFsub:
		return 0b00011110<<24 | 0b0110<<21 | reg(instr.Src2)<<16 | 0b001110<<10 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpFmul:
		return 0b00011110<<24 | 0b0110<<21 | reg(instr.Src2)<<16 | 0b000010<<10 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpFdiv:
		return 0b00011110<<24 | 0b0110<<21 | reg(instr.Src2)<<16 | 0b000110<<10 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpFneg:
		return 0b00011110<<24 | 0b100001<<15 | 0b010000<<10 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpFsqrt:
		return 0b00011110<<24 | 0b100001<<15 | 0b110000<<10 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpFcmp:
		return 0b00011110<<24 | 0b0<<21 | reg(instr.Src2)<<16 | 0b001000<<10 | reg(instr.Src1)<<5, nil, nil

	case arm64.OpCset:
		cond := uint32(instr.Src1.Imm) & 0xF
		return 0b10011010100<<21 | 0x1F<<16 | (cond^1)<<12 | 0x1F<<5 | reg(instr.Dst), nil, nil
	case arm64.OpCsel:
		return sf<<31 | 0b10011010100<<21 | reg(instr.Src2)<<16 | reg(instr.Dst), nil, nil

	case arm64.OpRet:
		return 0b1101011001011111000000<<9 | arm64RetReg()<<5, nil, nil

	case arm64.OpB, arm64.OpBl:
		return encodeBranch(instr, pos, offsets, syms)
	case arm64.OpBlr:
		return 0b1101011000111111000000<<9 | reg(instr.Src1)<<5, nil, nil

	case arm64.OpBeq, arm64.OpBne, arm64.OpBlt, arm64.OpBge, arm64.OpBgt, arm64.OpBle,
		arm64.OpBlo, arm64.OpBhs, arm64.OpBhi, arm64.OpBls:
		return encodeCondBranch(instr, pos, offsets)

	case arm64.OpUxt:
		return sf<<31 | 0b0100110<<24 | 0<<16 | widthMask(instr.Width)<<10 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpSxt:
		return sf<<31 | 0b0001001100<<22 | widthMask(instr.Width)<<10 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpFcvt:
		return 0b00011110<<24 | 0b0010001<<17 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpScvtf:
		return sf<<31 | 0b10011110<<23 | 0b00010<<17 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpUcvtf:
		return sf<<31 | 0b10011110<<23 | 0b00011<<17 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpFcvtzs:
		return sf<<31 | 0b10011110<<23 | 0b11000<<17 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil
	case arm64.OpFcvtzu:
		return sf<<31 | 0b10011110<<23 | 0b11001<<17 | reg(instr.Src1)<<5 | reg(instr.Dst), nil, nil

	default:
		return 0, nil, fmt.Errorf("unencoded arm64 op %d", instr.Op)
	}
}

func arm64RetReg() uint32 { return 30 } // x30 (LR) is the implicit RET source in the forms this encoder emits

func widthMask(width uint8) uint32 {
	switch width {
	case 1:
		return 0b000
	case 2:
		return 0b001
	default:
		return 0b010
	}
}

// encodeDataProc picks between the register-register (opReg) and
// register-immediate (opImm, 12-bit unsigned) encodings of an ADD/SUB
// family instruction depending on Src2's operand kind.
func encodeDataProc(opReg, opImm uint32, sf uint32, instr *mcode.Instruction) uint32 {
	if instr.Src2.Kind == mcode.OperandImm {
		imm := uint32(instr.Src2.Imm) & 0xFFF
		return sf<<31 | opImm<<22 | imm<<10 | reg(instr.Src1)<<5 | reg(instr.Dst)
	}
	return sf<<31 | opReg<<21 | reg(instr.Src2)<<16 | reg(instr.Src1)<<5 | reg(instr.Dst)
}

// encodeLdrStr encodes the unsigned-offset LDR/STR (immediate) form:
// Disp is a byte offset, divided here by the access size to form the
// scaled 12-bit immediate field.
func encodeLdrStr(load bool, sf uint32, instr *mcode.Instruction) uint32 {
	mem := instr.Src1
	target := instr.Dst
	if !load {
		mem = instr.Dst
		target = instr.Src1
	}
	size := uint32(0b11)
	if instr.Width == 4 {
		size = 0b10
	}
	opc := uint32(0b01)
	if !load {
		opc = 0b00
	}
	imm12 := uint32(mem.Disp/int32(1<<size)) & 0xFFF
	return size<<30 | 0b111001<<24 | opc<<22 | imm12<<10 | reg(mcode.RegOperand(mem.Base))<<5 | reg(target)
}

// encodeBranch encodes B/BL's 26-bit word-granular immediate when the
// target (Dst) is a local label; when a BL's callee (Src1) is a symbol it emits
// a zero placeholder and a BRANCH26 relocation for the object-file
// builder/linker to resolve.
func encodeBranch(instr *mcode.Instruction, pos int64, offsets map[string]int64, syms *encode.SymbolTable) (uint32, *encode.SymbolUse, error) {
	opBit := uint32(0)
	if instr.Op == arm64.OpBl {
		opBit = 1
	}
	if instr.Dst.Kind == mcode.OperandLabel {
		target := offsets[instr.Dst.Label.Label]
		imm26 := uint32((target-pos)/4) & 0x3FFFFFF
		return opBit<<31 | 0b00101<<26 | imm26, nil, nil
	}
	name := instr.Src1.Sym
	idx := syms.Intern(name)
	use := &encode.SymbolUse{SymbolIndex: idx, Kind: encode.RelocBranch26, Section: encode.SectionText}
	return opBit<<31 | 0b00101<<26, use, nil
}

var condCode = map[mcode.Op]uint32{
	arm64.OpBeq: 0x0, arm64.OpBne: 0x1, arm64.OpBlo: 0x3, arm64.OpBhs: 0x2,
	arm64.OpBhi: 0x8, arm64.OpBls: 0x9, arm64.OpBlt: 0xB, arm64.OpBge: 0xA,
	arm64.OpBgt: 0xC, arm64.OpBle: 0xD,
}

func encodeCondBranch(instr *mcode.Instruction, pos int64, offsets map[string]int64) (uint32, *encode.SymbolUse, error) {
	target := offsets[instr.Dst.Label.Label]
	imm19 := uint32((target-pos)/4) & 0x7FFFF
	return 0b0101010<<25 | imm19<<5 | condCode[instr.Op], nil, nil
}
