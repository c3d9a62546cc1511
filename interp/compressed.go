package interp

// decompress expands a 16-bit C-extension instruction into its 32-bit
// equivalent encoding, so the rest of the pipeline only ever decodes
// 32-bit words. Unrecognized encodings return ok=false (illegal
// instruction).
//
// Grounded on rvgo/fast/decompressor.go's opcode/funct3 dispatch shape
// (switch on the 2-bit quadrant then funct3), filled in here with the
// actual RVC encodings the teacher's stub left as bare case labels.
func decompress(instr uint16) (raw uint32, ok bool) {
	quadrant := instr & 0x3
	funct3 := (instr >> 13) & 0x7

	rdRs1 := func() uint32 { return uint32((instr >> 7) & 0x1F) }
	rdRs1p := func() uint32 { return uint32(((instr>>7)&0x7)+8) }
	rs2p := func() uint32 { return uint32(((instr>>2)&0x7)+8) }
	rs2 := func() uint32 { return uint32((instr >> 2) & 0x1F) }

	rFmt := func(rd, rs1, rs2 uint32, f3, f7 uint32) uint32 {
		return (f7 << 25) | (rs2 << 20) | (rs1 << 15) | (f3 << 12) | (rd << 7) | opOp
	}
	iFmt := func(rd, rs1 uint32, imm int32, f3 uint32, op uint32) uint32 {
		return (uint32(imm)&0xFFF)<<20 | (rs1 << 15) | (f3 << 12) | (rd << 7) | op
	}
	sFmt := func(rs1, rs2 uint32, imm int32, f3 uint32, op uint32) uint32 {
		u := uint32(imm) & 0xFFF
		return ((u>>5)&0x7F)<<25 | (rs2 << 20) | (rs1 << 15) | (f3 << 12) | (u&0x1F)<<7 | op
	}
	bFmt := func(rs1, rs2 uint32, imm int32, f3 uint32) uint32 {
		u := uint32(imm) & 0x1FFF
		return (u>>12&1)<<31 | (u>>5&0x3F)<<25 | (rs2 << 20) | (rs1 << 15) | (f3 << 12) | (u>>1&0xF)<<8 | (u>>11&1)<<7 | opBranch
	}
	jFmt := func(rd uint32, imm int32) uint32 {
		u := uint32(imm) & 0x1FFFFF
		return (u>>20&1)<<31 | (u>>1&0x3FF)<<21 | (u>>11&1)<<20 | (u>>12&0xFF)<<12 | (rd << 7) | opJal
	}
	uFmt := func(rd uint32, imm int32, op uint32) uint32 {
		return (uint32(imm) & 0xFFFFF000) | (rd << 7) | op
	}

	switch quadrant {
	case 0x0:
		switch funct3 {
		case 0x0: // C.ADDI4SPN: nzuimm[5:4]=bits[12:11], [9:6]=bits[10:7], [2]=bit6, [3]=bit5
			imm := int32((((instr >> 11) & 0x3) << 4) | (((instr >> 7) & 0xF) << 6) | (((instr >> 6) & 0x1) << 2) | (((instr >> 5) & 0x1) << 3))
			if imm == 0 {
				return 0, false
			}
			return iFmt(rs2p(), 2, imm, 0, opOpImm), true
		case 0x2: // C.LW
			imm := clOffsetW(instr)
			return iFmt(rs2p(), rdRs1p(), imm, 0x2, opLoad), true
		case 0x3: // C.LD
			imm := clOffsetD(instr)
			return iFmt(rs2p(), rdRs1p(), imm, 0x3, opLoad), true
		case 0x5: // C.SW
			imm := clOffsetW(instr)
			return sFmt(rdRs1p(), rs2p(), imm, 0x2, opStore), true
		case 0x6: // C.SD
			imm := clOffsetD(instr)
			return sFmt(rdRs1p(), rs2p(), imm, 0x3, opStore), true
		}

	case 0x1:
		switch funct3 {
		case 0x0: // C.NOP / C.ADDI
			imm := ciImm(instr)
			return iFmt(rdRs1(), rdRs1(), imm, 0, opOpImm), true
		case 0x1: // C.ADDIW
			imm := ciImm(instr)
			return iFmt(rdRs1(), rdRs1(), imm, 0, opOpImm32), true
		case 0x2: // C.LI
			imm := ciImm(instr)
			return iFmt(rdRs1(), 0, imm, 0, opOpImm), true
		case 0x3: // C.ADDI16SP / C.LUI
			rd := rdRs1()
			if rd == 2 {
				imm := int32((((instr >> 12) & 1) << 9) | (((instr >> 3) & 0x3) << 7) | (((instr >> 5) & 1) << 6) | (((instr >> 2) & 1) << 5) | (((instr >> 6) & 1) << 4))
				imm = signExtend32(uint32(imm), 10)
				return iFmt(2, 2, imm, 0, opOpImm), true
			}
			imm := int32((uint32((instr>>12)&1) << 17) | (uint32((instr>>2)&0x1F) << 12))
			imm = signExtend32(uint32(imm), 18)
			return uFmt(rd, imm, opLui), true
		case 0x4: // arithmetic group
			return compressedArith(instr)
		case 0x5: // C.J
			imm := cjImm(instr)
			return jFmt(0, imm), true
		case 0x6: // C.BEQZ
			imm := cbImm(instr)
			return bFmt(rdRs1p(), 0, imm, 0x0), true
		case 0x7: // C.BNEZ
			imm := cbImm(instr)
			return bFmt(rdRs1p(), 0, imm, 0x1), true
		}

	case 0x2:
		switch funct3 {
		case 0x0: // C.SLLI
			shamt := int32((instr >> 2) & 0x3F)
			return iFmt(rdRs1(), rdRs1(), shamt, 0x1, opOpImm), true
		case 0x2: // C.LWSP
			imm := int32((((instr >> 12) & 1) << 5) | (((instr >> 4) & 0x7) << 2) | (((instr >> 2) & 0x3) << 6))
			return iFmt(rdRs1(), 2, imm, 0x2, opLoad), true
		case 0x3: // C.LDSP
			imm := int32((((instr >> 12) & 1) << 5) | (((instr >> 5) & 0x3) << 3) | (((instr >> 2) & 0x7) << 6))
			return iFmt(rdRs1(), 2, imm, 0x3, opLoad), true
		case 0x4:
			rd := rdRs1()
			r2 := rs2()
			bit12 := (instr >> 12) & 1
			switch {
			case bit12 == 0 && r2 == 0: // C.JR
				return iFmt(0, rd, 0, 0, opJalr), true
			case bit12 == 0: // C.MV
				return rFmt(rd, 0, r2, 0, 0), true
			case bit12 == 1 && rd == 0 && r2 == 0: // C.EBREAK
				return (1 << 20) | opSystem, true
			case bit12 == 1 && r2 == 0: // C.JALR
				return iFmt(1, rd, 0, 0, opJalr), true
			default: // C.ADD
				return rFmt(rd, rd, r2, 0, 0), true
			}
		case 0x6: // C.SWSP
			imm := int32((((instr >> 9) & 0xF) << 2) | (((instr >> 7) & 0x3) << 6))
			return sFmt(2, rs2(), imm, 0x2, opStore), true
		case 0x7: // C.SDSP
			imm := int32((((instr >> 10) & 0x7) << 3) | (((instr >> 7) & 0x7) << 6))
			return sFmt(2, rs2(), imm, 0x3, opStore), true
		}
	}
	return 0, false
}

func compressedArith(instr uint16) (uint32, bool) {
	rd := uint32(((instr>>7)&0x7)+8)
	funct2 := (instr >> 10) & 0x3
	rs2p := uint32(((instr>>2)&0x7)+8)

	iFmt := func(rd, rs1 uint32, imm int32, f3 uint32) uint32 {
		return (uint32(imm)&0xFFF)<<20 | (rs1 << 15) | (f3 << 12) | (rd << 7) | opOpImm
	}
	rFmt := func(rd, rs1, rs2 uint32, f3, f7 uint32, op uint32) uint32 {
		return (f7 << 25) | (rs2 << 20) | (rs1 << 15) | (f3 << 12) | (rd << 7) | op
	}

	switch funct2 {
	case 0x0: // C.SRLI
		shamt := int32((instr >> 2) & 0x3F)
		return iFmt(rd, rd, shamt, 0x5), true
	case 0x1: // C.SRAI
		shamt := int32((instr >> 2) & 0x3F)
		return iFmt(rd, rd, shamt|(0x20<<5), 0x5), true
	case 0x2: // C.ANDI
		imm := ciImm(instr)
		return iFmt(rd, rd, imm, 0x7), true
	case 0x3:
		funct6b := (instr >> 12) & 1
		funct2b := (instr >> 5) & 0x3
		if funct6b == 0 {
			switch funct2b {
			case 0x0:
				return rFmt(rd, rd, rs2p, 0x0, 0x20, opOp), true // C.SUB
			case 0x1:
				return rFmt(rd, rd, rs2p, 0x4, 0x00, opOp), true // C.XOR
			case 0x2:
				return rFmt(rd, rd, rs2p, 0x6, 0x00, opOp), true // C.OR
			case 0x3:
				return rFmt(rd, rd, rs2p, 0x7, 0x00, opOp), true // C.AND
			}
		} else {
			switch funct2b {
			case 0x0:
				return rFmt(rd, rd, rs2p, 0x0, 0x20, opOp32), true // C.SUBW
			case 0x1:
				return rFmt(rd, rd, rs2p, 0x0, 0x00, opOp32), true // C.ADDW
			}
		}
	}
	return 0, false
}

func signExtend32(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

func ciImm(instr uint16) int32 {
	v := (((instr >> 12) & 1) << 5) | ((instr >> 2) & 0x1F)
	return signExtend32(uint32(v), 6)
}

func clOffsetW(instr uint16) int32 {
	v := (((instr >> 5) & 1) << 6) | (((instr >> 10) & 0x7) << 3) | (((instr >> 6) & 1) << 2)
	return int32(v)
}

func clOffsetD(instr uint16) int32 {
	v := (((instr >> 10) & 0x7) << 3) | (((instr >> 5) & 0x3) << 6)
	return int32(v)
}

func cjImm(instr uint16) int32 {
	v := (((instr >> 12) & 1) << 11) | (((instr >> 11) & 1) << 4) | (((instr >> 9) & 0x3) << 8) |
		(((instr >> 8) & 1) << 10) | (((instr >> 7) & 1) << 6) | (((instr >> 6) & 1) << 7) |
		(((instr >> 3) & 0x7) << 1) | (((instr >> 2) & 1) << 5)
	return signExtend32(uint32(v), 12)
}

func cbImm(instr uint16) int32 {
	v := (((instr >> 12) & 1) << 8) | (((instr >> 10) & 0x3) << 3) | (((instr >> 5) & 0x3) << 6) |
		(((instr >> 3) & 0x3) << 1) | (((instr >> 2) & 1) << 5)
	return signExtend32(uint32(v), 9)
}
