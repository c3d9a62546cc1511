package interp

import "github.com/cartesi-corp/machine-go/riscv"

// execSystem implements the SYSTEM major opcode: CSR read-modify-write
// instructions, ECALL/EBREAK, and the privileged MRET/SRET/WFI/SFENCE.VMA
// instructions, per spec.md §4.3 point 6.
func (m *Machine) execSystem(d decoded) (t *trap, redirected bool) {
	s := m.State
	if d.funct3 != 0 {
		return m.execCSR(d)
	}

	switch {
	case d.imm == 0 && d.rs2 == 0 && d.funct7 == 0: // ECALL
		cause := riscv.CauseEcallU
		switch s.IFlags.PRV {
		case riscv.PrvS:
			cause = riscv.CauseEcallS
		case riscv.PrvM:
			cause = riscv.CauseEcallM
		}
		tv := exceptionTrap(uint64(cause), 0)
		return &tv, false
	case d.imm == 1: // EBREAK
		tv := exceptionTrap(riscv.CauseBreakpoint, s.PC)
		return &tv, false
	case d.funct7 == 0x18 && d.rs2 == 2: // MRET
		if s.IFlags.PRV != riscv.PrvM {
			tv := exceptionTrap(riscv.CauseIllegalInstr, uint64(d.raw))
			return &tv, false
		}
		mpie := s.CSR.Mstatus & (1 << riscv.MstatusMPIEShift)
		s.CSR.Mstatus &^= 1 << riscv.MstatusMIEShift
		s.CSR.Mstatus |= (mpie >> riscv.MstatusMPIEShift) << riscv.MstatusMIEShift
		s.CSR.Mstatus |= 1 << riscv.MstatusMPIEShift
		mpp := (s.CSR.Mstatus >> riscv.MstatusMPPShift) & riscv.MstatusMPPMask
		s.IFlags.PRV = uint8(mpp)
		s.CSR.Mstatus &^= uint64(riscv.MstatusMPPMask) << riscv.MstatusMPPShift
		s.PC = s.CSR.Mepc
		return nil, true
	case d.funct7 == 0x08 && d.rs2 == 2: // SRET
		if s.IFlags.PRV < riscv.PrvS {
			tv := exceptionTrap(riscv.CauseIllegalInstr, uint64(d.raw))
			return &tv, false
		}
		spie := s.CSR.Mstatus & (1 << riscv.MstatusSPIEShift)
		s.CSR.Mstatus &^= 1 << riscv.MstatusSIEShift
		s.CSR.Mstatus |= (spie >> riscv.MstatusSPIEShift) << riscv.MstatusSIEShift
		s.CSR.Mstatus |= 1 << riscv.MstatusSPIEShift
		spp := (s.CSR.Mstatus >> riscv.MstatusSPPShift) & 1
		s.IFlags.PRV = uint8(spp)
		s.CSR.Mstatus &^= 1 << riscv.MstatusSPPShift
		s.PC = s.CSR.Sepc
		return nil, true
	case d.funct7 == 0x08 && d.rs2 == 5: // WFI
		if _, has := pendingInterrupt(s); has {
			return nil, false
		}
		s.IFlags.I = true
		return nil, false
	case d.funct7 == 0x09: // SFENCE.VMA
		s.InvalidateTLBs()
		return nil, false
	default:
		tv := exceptionTrap(riscv.CauseIllegalInstr, uint64(d.raw))
		return &tv, false
	}
}

// execCSR implements CSRRW/CSRRS/CSRRC and their immediate forms.
func (m *Machine) execCSR(d decoded) (t *trap, redirected bool) {
	s := m.State
	addr := uint16(d.raw >> 20)
	old, ok := s.ReadCSR(addr)
	if !ok {
		tv := exceptionTrap(riscv.CauseIllegalInstr, uint64(d.raw))
		return &tv, false
	}

	var srcVal uint64
	immForm := d.funct3&0x4 != 0
	if immForm {
		srcVal = uint64(d.rs1) // rs1 field doubles as a 5-bit zero-extended immediate
	} else {
		srcVal = s.ReadX(d.rs1)
	}

	// CSRRS/CSRRC with a zero source never write, so a read-only CSR can
	// still be polled via `csrrs rd, csr, x0`.
	writesCSR := (d.funct3&0x3) == 0x1 || srcVal != 0
	var newVal uint64
	switch d.funct3 & 0x3 {
	case 0x1: // CSRRW/CSRRWI
		newVal = srcVal
	case 0x2: // CSRRS/CSRRSI
		newVal = old | srcVal
	case 0x3: // CSRRC/CSRRCI
		newVal = old &^ srcVal
	}

	if writesCSR {
		if !s.WriteCSR(addr, newVal) {
			tv := exceptionTrap(riscv.CauseIllegalInstr, uint64(d.raw))
			return &tv, false
		}
	}
	s.WriteX(d.rd, old)
	return nil, false
}
