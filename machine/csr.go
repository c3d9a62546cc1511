package machine

import "github.com/cartesi-corp/machine-go/riscv"

// WARL/WLRL masks applied on write, per spec.md §4.3's "CSR access: WARL/
// WLRL masking". Only the bits meaningful to this implementation's
// privileged-spec subset are writable; everything else reads back zero.
const (
	mstatusWriteMask = 0x8000000F007FF9AA // SD|SXL|UXL|TSR|TW|TVM|MXR|SUM|MPRV|XS|FS|MPP|SPP|MPIE|SPIE|MIE|SIE
	sstatusMask      = 0x80000003000DE762 // sstatus is a restricted view of mstatus
	mipWritableMask  = (1 << riscv.IntSSI) | (1 << riscv.IntSTI) | (1 << riscv.IntSEI)
	mieWritableMask  = (1 << riscv.IntSSI) | (1 << riscv.IntSTI) | (1 << riscv.IntSEI) |
		(1 << riscv.IntMSI) | (1 << riscv.IntMTI) | (1 << riscv.IntMEI)
)

// ReadCSR returns the current value of the CSR at addr, and whether addr
// names a CSR this machine implements.
func (s *State) ReadCSR(addr uint16) (uint64, bool) {
	switch addr {
	case riscv.CsrFflags:
		return s.CSR.Fcsr & 0x1F, true
	case riscv.CsrFrm:
		return (s.CSR.Fcsr >> 5) & 0x7, true
	case riscv.CsrFcsr:
		return s.CSR.Fcsr & 0xFF, true

	case riscv.CsrSstatus:
		return s.CSR.Mstatus & sstatusMask, true
	case riscv.CsrSie:
		return s.CSR.Mie & s.CSR.Mideleg, true
	case riscv.CsrStvec:
		return s.CSR.Stvec, true
	case riscv.CsrScounteren:
		return s.CSR.Scounteren, true
	case riscv.CsrSscratch:
		return s.CSR.Sscratch, true
	case riscv.CsrSepc:
		return s.CSR.Sepc, true
	case riscv.CsrScause:
		return s.CSR.Scause, true
	case riscv.CsrStval:
		return s.CSR.Stval, true
	case riscv.CsrSip:
		return s.CSR.Mip & s.CSR.Mideleg, true
	case riscv.CsrSatp:
		return s.CSR.Satp, true

	case riscv.CsrMvendorid:
		return s.CSR.Mvendorid, true
	case riscv.CsrMarchid:
		return s.CSR.Marchid, true
	case riscv.CsrMimpid:
		return s.CSR.Mimpid, true
	case riscv.CsrMhartid:
		return 0, true
	case riscv.CsrMstatus:
		return s.CSR.Mstatus, true
	case riscv.CsrMisa:
		return s.CSR.Misa, true
	case riscv.CsrMedeleg:
		return s.CSR.Medeleg, true
	case riscv.CsrMideleg:
		return s.CSR.Mideleg, true
	case riscv.CsrMie:
		return s.CSR.Mie, true
	case riscv.CsrMtvec:
		return s.CSR.Mtvec, true
	case riscv.CsrMcounteren:
		return s.CSR.Mcounteren, true
	case riscv.CsrMscratch:
		return s.CSR.Mscratch, true
	case riscv.CsrMepc:
		return s.CSR.Mepc, true
	case riscv.CsrMcause:
		return s.CSR.Mcause, true
	case riscv.CsrMtval:
		return s.CSR.Mtval, true
	case riscv.CsrMip:
		return s.CSR.Mip, true

	case riscv.CsrCycle, riscv.CsrMcycle:
		return s.Mcycle, true
	case riscv.CsrInstret, riscv.CsrMinstret:
		return s.Minstret, true
	case riscv.CsrTime:
		return s.Mcycle / 100, true // RTCFreqDivisor, mirrored from devices.RTCCycleToTime

	default:
		return 0, false
	}
}

// WriteCSR writes value to the CSR at addr with WARL/WLRL masking
// applied, per spec.md §4.3. Writing mip or mie recomputes Brk, per
// §4.3's "writing mip/mie updates the break flag" rule. Returns false for
// an address this machine does not implement, or a read-only CSR.
func (s *State) WriteCSR(addr uint16, value uint64) bool {
	switch addr {
	case riscv.CsrFflags:
		s.CSR.Fcsr = (s.CSR.Fcsr &^ 0x1F) | (value & 0x1F)
	case riscv.CsrFrm:
		s.CSR.Fcsr = (s.CSR.Fcsr &^ (0x7 << 5)) | ((value & 0x7) << 5)
	case riscv.CsrFcsr:
		s.CSR.Fcsr = value & 0xFF

	case riscv.CsrSstatus:
		s.CSR.Mstatus = (s.CSR.Mstatus &^ sstatusMask) | (value & sstatusMask & mstatusWriteMask)
	case riscv.CsrSie:
		masked := value & mieWritableMask & s.CSR.Mideleg
		s.CSR.Mie = (s.CSR.Mie &^ s.CSR.Mideleg) | masked
		s.UpdateBrkFromMipMie()
	case riscv.CsrStvec:
		s.CSR.Stvec = value &^ 0x2 // bit 1 reserved; bit 0 selects vectored mode
	case riscv.CsrScounteren:
		s.CSR.Scounteren = value & 0x7
	case riscv.CsrSscratch:
		s.CSR.Sscratch = value
	case riscv.CsrSepc:
		s.CSR.Sepc = value &^ 1
	case riscv.CsrScause:
		s.CSR.Scause = value
	case riscv.CsrStval:
		s.CSR.Stval = value
	case riscv.CsrSip:
		masked := value & (1 << riscv.IntSSI) & s.CSR.Mideleg
		s.CSR.Mip = (s.CSR.Mip &^ (uint64(1) << riscv.IntSSI & s.CSR.Mideleg)) | masked
		s.UpdateBrkFromMipMie()
	case riscv.CsrSatp:
		mode := value >> 60
		switch mode {
		case riscv.SatpModeBare, riscv.SatpModeSv39, riscv.SatpModeSv48, riscv.SatpModeSv57:
			s.CSR.Satp = value
			s.InvalidateTLBs()
		default:
			// WARL: reject unsupported modes by leaving satp unchanged.
		}

	case riscv.CsrMvendorid, riscv.CsrMarchid, riscv.CsrMimpid, riscv.CsrMhartid, riscv.CsrMisa, riscv.CsrCycle, riscv.CsrInstret, riscv.CsrTime:
		return false // read-only in this implementation

	case riscv.CsrMstatus:
		s.CSR.Mstatus = (s.CSR.Mstatus &^ mstatusWriteMask) | (value & mstatusWriteMask)
	case riscv.CsrMedeleg:
		s.CSR.Medeleg = value & 0xFFFF // exceptions 0..15
	case riscv.CsrMideleg:
		s.CSR.Mideleg = value & 0x222 // SSI/STI/SEI delegable bits
	case riscv.CsrMie:
		s.CSR.Mie = value & mieWritableMask
		s.UpdateBrkFromMipMie()
	case riscv.CsrMtvec:
		s.CSR.Mtvec = value &^ 0x2
	case riscv.CsrMcounteren:
		s.CSR.Mcounteren = value & 0x7
	case riscv.CsrMscratch:
		s.CSR.Mscratch = value
	case riscv.CsrMepc:
		s.CSR.Mepc = value &^ 1
	case riscv.CsrMcause:
		s.CSR.Mcause = value
	case riscv.CsrMtval:
		s.CSR.Mtval = value
	case riscv.CsrMip:
		s.CSR.Mip = (s.CSR.Mip &^ mipWritableMask) | (value & mipWritableMask)
		s.UpdateBrkFromMipMie()
	case riscv.CsrMcycle:
		s.Mcycle = value
	case riscv.CsrMinstret:
		s.Minstret = value

	default:
		return false
	}
	return true
}
