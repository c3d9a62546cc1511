// Package interp implements the fetch/decode/execute loop, the MMU, and
// trap/interrupt delivery described in spec.md §4.3, operating on a
// machine.State and routing all memory traffic through a pma.Map.
//
// Grounded on rvgo/fast/vm.go for the decode/execute shape (switch over
// opcode, small per-category helpers) and original_source/src/machine.h
// for the interrupt-priority, delegation, and page-table-walk semantics
// the teacher's user-mode VM never implements.
package interp

import "github.com/cartesi-corp/machine-go/riscv"
import "github.com/cartesi-corp/machine-go/machine"

// StopReason is the outer loop's return value, per spec.md §4.3.
type StopReason int

const (
	ReachedTargetMcycle StopReason = iota
	Halted
	YieldedManually
	YieldedAutomatically
	Failed
)

// trap represents a pending architectural exception or interrupt to be
// delivered at the next retirement boundary. It is a plain Go value, not
// an error: spec.md §4.6 requires traps never surface as engine errors.
type trap struct {
	cause    uint64
	tval     uint64
	isInterrupt bool
}

func exceptionTrap(cause, tval uint64) trap {
	return trap{cause: cause, tval: tval}
}

func interruptTrap(bit uint64) trap {
	return trap{cause: riscv.CauseInterruptFlag | bit, isInterrupt: true}
}

// pendingInterrupt returns the highest-priority pending & enabled
// interrupt, if any, per the RISC-V privileged spec's fixed priority
// order (MEI > MSI > MTI > SEI > SSI > STI), honoring current privilege
// and mstatus.{MIE,SIE}.
func pendingInterrupt(s *machine.State) (trap, bool) {
	enabled := s.CSR.Mip & s.CSR.Mie
	if enabled == 0 {
		return trap{}, false
	}

	mieSet := s.CSR.Mstatus&(1<<riscv.MstatusMIEShift) != 0
	sieSet := s.CSR.Mstatus&(1<<riscv.MstatusSIEShift) != 0

	// Bits not delegated to S-mode are taken in M-mode, when the current
	// privilege is below M or mstatus.MIE is set; delegated bits are taken
	// in S-mode, when the current privilege is below S or is S with
	// mstatus.SIE set.
	mAvailable := enabled &^ s.CSR.Mideleg
	if mAvailable != 0 && (s.IFlags.PRV < riscv.PrvM || mieSet) {
		if bit, ok := highestBit(mAvailable, riscv.IntMEI, riscv.IntMSI, riscv.IntMTI, riscv.IntSEI, riscv.IntSSI, riscv.IntSTI); ok {
			return interruptTrap(bit), true
		}
	}

	sAvailable := enabled & s.CSR.Mideleg
	if sAvailable != 0 && s.IFlags.PRV < riscv.PrvS || (s.IFlags.PRV == riscv.PrvS && sieSet) {
		if bit, ok := highestBit(sAvailable, riscv.IntMEI, riscv.IntMSI, riscv.IntMTI, riscv.IntSEI, riscv.IntSSI, riscv.IntSTI); ok {
			return interruptTrap(bit), true
		}
	}
	return trap{}, false
}

func highestBit(mask uint64, order ...uint64) (uint64, bool) {
	for _, bit := range order {
		if mask&(1<<bit) != 0 {
			return bit, true
		}
	}
	return 0, false
}

// deliver takes t, moving control to the trap handler in the delegated
// privilege mode per the RISC-V privileged spec, and updates Brk per
// spec.md §4.3.
func deliver(s *machine.State, t trap) {
	delegated := false
	if t.isInterrupt {
		bit := t.cause &^ riscv.CauseInterruptFlag
		delegated = s.CSR.Mideleg&(1<<bit) != 0 && s.IFlags.PRV != riscv.PrvM
	} else {
		delegated = s.CSR.Medeleg&(1<<t.cause) != 0 && s.IFlags.PRV != riscv.PrvM
	}

	if delegated {
		s.CSR.Sepc = s.PC
		s.CSR.Scause = t.cause
		s.CSR.Stval = t.tval
		spie := s.CSR.Mstatus & (1 << riscv.MstatusSIEShift)
		s.CSR.Mstatus &^= 1 << riscv.MstatusSPIEShift
		s.CSR.Mstatus |= (spie >> riscv.MstatusSIEShift) << riscv.MstatusSPIEShift
		s.CSR.Mstatus &^= 1 << riscv.MstatusSIEShift
		s.CSR.Mstatus &^= 1 << riscv.MstatusSPPShift
		if s.IFlags.PRV == riscv.PrvS {
			s.CSR.Mstatus |= 1 << riscv.MstatusSPPShift
		}
		s.IFlags.PRV = riscv.PrvS
		s.PC = trapVector(s.CSR.Stvec, t)
	} else {
		s.CSR.Mepc = s.PC
		s.CSR.Mcause = t.cause
		s.CSR.Mtval = t.tval
		mpie := s.CSR.Mstatus & (1 << riscv.MstatusMIEShift)
		s.CSR.Mstatus &^= 1 << riscv.MstatusMPIEShift
		s.CSR.Mstatus |= (mpie >> riscv.MstatusMIEShift) << riscv.MstatusMPIEShift
		s.CSR.Mstatus &^= 1 << riscv.MstatusMIEShift
		s.CSR.Mstatus &^= uint64(riscv.MstatusMPPMask) << riscv.MstatusMPPShift
		s.CSR.Mstatus |= uint64(s.IFlags.PRV&riscv.MstatusMPPMask) << riscv.MstatusMPPShift
		s.IFlags.PRV = riscv.PrvM
		s.PC = trapVector(s.CSR.Mtvec, t)
	}
	s.UpdateBrkFromMipMie()
}

// trapVector resolves a tvec CSR (base + mode bit 0) into a target PC.
func trapVector(tvec uint64, t trap) uint64 {
	base := tvec &^ 0x3
	vectored := tvec&1 == 1
	if vectored && t.isInterrupt {
		return base + 4*(t.cause&^riscv.CauseInterruptFlag)
	}
	return base
}
