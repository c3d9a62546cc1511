package uarch

import "github.com/cartesi-corp/machine-go/pma"

// The micro-machine's instruction set is a small RV64I subset: ALU ops
// operate on its own register file, while every LOAD/STORE targets the
// big machine's address space and is what the Recorder captures — this
// is how a uarch program "is" one big-machine step, per spec.md §4.5.
// Control-flow (JAL/JALR/branches) and ECALL-as-halt round it out.
const (
	uOpImm   = 0x13
	uOp      = 0x33
	uLui     = 0x37
	uAuipc   = 0x17
	uJal     = 0x6F
	uJalr    = 0x67
	uBranch  = 0x63
	uLoad    = 0x03
	uStore   = 0x23
	uSystem  = 0x73
)

func signExt(v uint32, bits uint) int64 {
	shift := 32 - bits
	return int64(int32(v<<shift)) >> shift
}

// fetch reads one 32-bit instruction word from prog at u.PC. The uarch's
// own program/ram is never part of the access log: only touches to the
// big machine are logged, per spec.md §4.5's "each read of/write to
// big-machine state is intercepted and recorded."
func fetch(prog *pma.Map, pc uint64) (uint32, bool) {
	e := prog.Find(pc, 4)
	if e.IsEmpty() || e.Kind != pma.KindMemory {
		return 0, false
	}
	off := pc - e.Start
	return uint32(e.Data[off]) | uint32(e.Data[off+1])<<8 | uint32(e.Data[off+2])<<16 | uint32(e.Data[off+3])<<24, true
}

// Step executes exactly one micro-machine instruction, routing its
// LOAD/STORE through rec against the big machine. Returns an error for a
// malformed program (unknown opcode, out-of-bounds fetch) or for a load or
// store the Recorder refuses; either is an engine error, not an architectural trap — the uarch has no privilege
// levels or trap delivery of its own.
func Step(u *State, prog *pma.Map, rec *Recorder) error {
	if u.Halted {
		return nil
	}
	u.Cycle++

	raw, ok := fetch(prog, u.PC)
	if !ok {
		return errBadFetch
	}
	opcode := raw & 0x7F
	rd := int((raw >> 7) & 0x1F)
	funct3 := (raw >> 12) & 0x7
	rs1 := int((raw >> 15) & 0x1F)
	rs2 := int((raw >> 20) & 0x1F)
	funct7 := (raw >> 25) & 0x7F

	switch opcode {
	case uLui:
		u.WriteX(rd, uint64(int64(int32(raw&0xFFFFF000))))
		u.PC += 4
	case uAuipc:
		u.WriteX(rd, u.PC+uint64(int64(int32(raw&0xFFFFF000))))
		u.PC += 4

	case uOpImm:
		imm := signExt(raw>>20, 12)
		u.WriteX(rd, execAluImm(funct3, funct7, u.ReadX(rs1), imm))
		u.PC += 4

	case uOp:
		u.WriteX(rd, execAlu(funct3, funct7, u.ReadX(rs1), u.ReadX(rs2)))
		u.PC += 4

	case uJal:
		imm := ((raw>>31)<<20) | (((raw>>12)&0xFF)<<12) | (((raw>>20)&1)<<11) | (((raw>>21)&0x3FF)<<1)
		u.WriteX(rd, u.PC+4)
		u.PC = u.PC + uint64(signExt(imm, 21))

	case uJalr:
		imm := signExt(raw>>20, 12)
		target := (u.ReadX(rs1) + uint64(imm)) &^ 1
		u.WriteX(rd, u.PC+4)
		u.PC = target

	case uBranch:
		imm := ((raw>>31)<<12) | (((raw>>7)&1)<<11) | (((raw>>25)&0x3F)<<5) | (((raw>>8)&0xF)<<1)
		taken := false
		a, b := u.ReadX(rs1), u.ReadX(rs2)
		switch funct3 {
		case 0x0:
			taken = a == b
		case 0x1:
			taken = a != b
		case 0x4:
			taken = int64(a) < int64(b)
		case 0x5:
			taken = int64(a) >= int64(b)
		case 0x6:
			taken = a < b
		case 0x7:
			taken = a >= b
		}
		if taken {
			u.PC = u.PC + uint64(signExt(imm, 13))
		} else {
			u.PC += 4
		}

	case uLoad:
		imm := signExt(raw>>20, 12)
		addr := u.ReadX(rs1) + uint64(imm)
		v, err := rec.ReadBig(addr, 3)
		if err != nil {
			return err
		}
		u.WriteX(rd, v)
		u.PC += 4

	case uStore:
		immRaw := ((raw >> 25) << 5) | ((raw >> 7) & 0x1F)
		imm := signExt(immRaw, 12)
		addr := u.ReadX(rs1) + uint64(imm)
		if err := rec.WriteBig(addr, 3, u.ReadX(rs2)); err != nil {
			return err
		}
		u.PC += 4

	case uSystem:
		u.Halted = true

	default:
		return errBadFetch
	}
	return nil
}

func execAluImm(funct3, funct7 uint32, a uint64, imm int64) uint64 {
	switch funct3 {
	case 0x0:
		return a + uint64(imm)
	case 0x1:
		return a << (uint(imm) & 0x3F)
	case 0x2:
		if int64(a) < imm {
			return 1
		}
		return 0
	case 0x3:
		if a < uint64(imm) {
			return 1
		}
		return 0
	case 0x4:
		return a ^ uint64(imm)
	case 0x5:
		if funct7&0x20 != 0 {
			return uint64(int64(a) >> (uint(imm) & 0x3F))
		}
		return a >> (uint(imm) & 0x3F)
	case 0x6:
		return a | uint64(imm)
	case 0x7:
		return a & uint64(imm)
	}
	return 0
}

func execAlu(funct3, funct7 uint32, a, b uint64) uint64 {
	switch funct3 {
	case 0x0:
		if funct7&0x20 != 0 {
			return a - b
		}
		return a + b
	case 0x1:
		return a << (b & 0x3F)
	case 0x2:
		if int64(a) < int64(b) {
			return 1
		}
		return 0
	case 0x3:
		if a < b {
			return 1
		}
		return 0
	case 0x4:
		return a ^ b
	case 0x5:
		if funct7&0x20 != 0 {
			return uint64(int64(a) >> (b & 0x3F))
		}
		return a >> (b & 0x3F)
	case 0x6:
		return a | b
	case 0x7:
		return a & b
	}
	return 0
}
