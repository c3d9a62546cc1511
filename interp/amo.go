package interp

import "github.com/cartesi-corp/machine-go/riscv"

// AMO funct5 encodings (top 5 bits of funct7, RV32A/RV64A).
const (
	amoLR      = 0x02
	amoSC      = 0x03
	amoSwap    = 0x01
	amoAdd     = 0x00
	amoXor     = 0x04
	amoOr      = 0x08
	amoAnd     = 0x0C
	amoMin     = 0x10
	amoMax     = 0x14
	amoMinu    = 0x18
	amoMaxu    = 0x1C
)

// execLoad implements the LOAD major opcode (byte/half/word/dword,
// signed and unsigned).
func (m *Machine) execLoad(d decoded) (uint64, *trap) {
	vaddr := m.State.ReadX(d.rs1) + uint64(d.imm)
	switch d.funct3 {
	case 0x0: // LB
		v, t := m.loadMem(vaddr, 0)
		return uint64(int64(int8(v))), t
	case 0x1: // LH
		v, t := m.loadMem(vaddr, 1)
		return uint64(int64(int16(v))), t
	case 0x2: // LW
		v, t := m.loadMem(vaddr, 2)
		return uint64(int64(int32(v))), t
	case 0x3: // LD
		return m.loadMem(vaddr, 3)
	case 0x4: // LBU
		return m.loadMem(vaddr, 0)
	case 0x5: // LHU
		return m.loadMem(vaddr, 1)
	case 0x6: // LWU
		return m.loadMem(vaddr, 2)
	default:
		t := exceptionTrap(riscv.CauseIllegalInstr, uint64(d.raw))
		return 0, &t
	}
}

// execStore implements the STORE major opcode.
func (m *Machine) execStore(d decoded) *trap {
	vaddr := m.State.ReadX(d.rs1) + uint64(d.imm)
	v := m.State.ReadX(d.rs2)
	switch d.funct3 {
	case 0x0:
		return m.storeMem(vaddr, 0, v)
	case 0x1:
		return m.storeMem(vaddr, 1, v)
	case 0x2:
		return m.storeMem(vaddr, 2, v)
	case 0x3:
		return m.storeMem(vaddr, 3, v)
	default:
		t := exceptionTrap(riscv.CauseIllegalInstr, uint64(d.raw))
		return &t
	}
}

// execAMO implements the A extension: LR/SC reservation tracking plus
// the ADD/SWAP/XOR/OR/AND/MIN/MAX/MINU/MAXU read-modify-write set, for
// both .W and .D widths, per spec.md §4.3 point 4.
func (m *Machine) execAMO(d decoded) (uint64, *trap) {
	log2Size := uint64(2)
	if d.funct3 == 0x3 {
		log2Size = 3
	} else if d.funct3 != 0x2 {
		t := exceptionTrap(riscv.CauseIllegalInstr, uint64(d.raw))
		return 0, &t
	}
	addr := m.State.ReadX(d.rs1)
	size := uint64(1) << log2Size
	if addr%size != 0 {
		t := exceptionTrap(riscv.CauseStoreMisaligned, addr)
		return 0, &t
	}

	op := d.funct7
	switch op {
	case amoLR:
		v, t := m.loadMem(addr, log2Size)
		if t != nil {
			return 0, t
		}
		m.State.Ilrsc = addr
		m.State.ReservationValid = true
		m.State.ReservationSize = uint8(size)
		return signExtendLoad(v, log2Size), nil

	case amoSC:
		if m.State.ReservationValid && m.State.Ilrsc == addr && uint64(m.State.ReservationSize) == size {
			if t := m.storeMem(addr, log2Size, m.State.ReadX(d.rs2)); t != nil {
				return 0, t
			}
			m.State.ReservationValid = false
			return 0, nil // success
		}
		m.State.ReservationValid = false
		return 1, nil // failure
	}

	old, t := m.loadMem(addr, log2Size)
	if t != nil {
		return 0, t
	}
	signedOld := signExtendLoad(old, log2Size)
	rhs := m.State.ReadX(d.rs2)
	var result uint64
	switch op {
	case amoSwap:
		result = rhs
	case amoAdd:
		result = old + rhs
	case amoXor:
		result = old ^ rhs
	case amoOr:
		result = old | rhs
	case amoAnd:
		result = old & rhs
	case amoMin:
		if int64(signedOld) < int64(rhs) {
			result = old
		} else {
			result = rhs
		}
	case amoMax:
		if int64(signedOld) > int64(rhs) {
			result = old
		} else {
			result = rhs
		}
	case amoMinu:
		if old < rhs {
			result = old
		} else {
			result = rhs
		}
	case amoMaxu:
		if old > rhs {
			result = old
		} else {
			result = rhs
		}
	default:
		t := exceptionTrap(riscv.CauseIllegalInstr, uint64(d.raw))
		return 0, &t
	}

	if t := m.storeMem(addr, log2Size, result); t != nil {
		return 0, t
	}
	return signedOld, nil
}

func signExtendLoad(v uint64, log2Size uint64) uint64 {
	if log2Size == 2 {
		return uint64(int64(int32(v)))
	}
	return v
}
