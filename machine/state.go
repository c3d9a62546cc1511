// Package machine holds the architectural state aggregate: registers,
// CSRs, iflags, the CLINT/HTIF shadow fields, TLBs, and the break flag.
// It owns no interpretation logic; interp reads and writes through it.
//
// Grounded on original_source/src/machine-state.h for the field list and
// the read_iflags/write_iflags/set_brk_from_* formulas, and on
// rvgo/fast/state.go for the single-owning-struct-with-a-constructor
// shape (VMState -> State here).
package machine

import "github.com/cartesi-corp/machine-go/pma"

// TLBSize is the number of entries in each of the three TLBs.
const TLBSize = 256

// TLBEntry is a non-owning reference to a live PMA, per spec.md §9's
// design note: "model them as (pma_index, page_index) pairs rather than
// pointers so that the state aggregate is trivially serializable."
// An invalid entry has VAddrPage == InvalidVAddr.
type TLBEntry struct {
	PMAIndex   int    // index into State.PMAs, or -1 if invalid
	PAddrPage  uint64 // physical page start
	VAddrPage  uint64 // virtual page start
	PageIndex  uint64 // page offset within the owning PMA's Data
}

// InvalidVAddr marks a TLB entry as not present.
const InvalidVAddr = ^uint64(0)

func invalidTLBEntry() TLBEntry {
	return TLBEntry{PMAIndex: -1, VAddrPage: InvalidVAddr, PAddrPage: InvalidVAddr}
}

// IFlags is the Cartesi-private packed register: privilege, WFI-idle,
// halted, yielded, externally-interrupted.
type IFlags struct {
	PRV uint8
	I   bool
	H   bool
	Y   bool
	X   bool
}

// Pack encodes IFlags the way the CSR read side observes it: PRV in bits
// [1:0], then I, H, Y, X as single bits above it.
func (f IFlags) Pack() uint64 {
	v := uint64(f.PRV & 0x3)
	if f.I {
		v |= 1 << 2
	}
	if f.H {
		v |= 1 << 3
	}
	if f.Y {
		v |= 1 << 4
	}
	if f.X {
		v |= 1 << 5
	}
	return v
}

// UnpackIFlags decodes a packed iflags value into its fields, mirroring
// machine_state::write_iflags.
func UnpackIFlags(v uint64) IFlags {
	return IFlags{
		PRV: uint8(v & 0x3),
		I:   v&(1<<2) != 0,
		H:   v&(1<<3) != 0,
		Y:   v&(1<<4) != 0,
		X:   v&(1<<5) != 0,
	}
}

// CSRs groups the M-mode and S-mode control and status registers.
type CSRs struct {
	Mvendorid uint64
	Marchid   uint64
	Mimpid    uint64

	Mstatus uint64
	Mtvec   uint64
	Mscratch uint64
	Mepc    uint64
	Mcause  uint64
	Mtval   uint64
	Misa    uint64

	Mie       uint64
	Mip       uint64
	Medeleg   uint64
	Mideleg   uint64
	Mcounteren uint64

	Stvec      uint64
	Sscratch   uint64
	Sepc       uint64
	Scause     uint64
	Stval      uint64
	Satp       uint64
	Scounteren uint64

	Fcsr uint64
}

// CLINTState and HTIFState are the machine's private shadow of what its
// CLINT/HTIF device instances hold, kept here per spec.md §3 so a
// persisted machine snapshot doesn't need to reach into device objects.
type CLINTState struct {
	Mtimecmp uint64
}

type HTIFState struct {
	Tohost   uint64
	Fromhost uint64
}

// Counters supplements the original's DUMP_COUNTERS-gated instrumentation
// (original_source/src/machine-state.h) as an always-present, opt-in-to-
// read struct rather than a build-time flag, since this is a Go library
// with no separate debug build.
type Counters struct {
	Inners uint64 // inner-loop executions
	Outers uint64 // outer-loop executions
	SupervisorInterrupts uint64
	SupervisorExceptions uint64
	MachineInterrupts    uint64
	MachineExceptions    uint64
	AtomicOps            uint64
}

// State is the entire architectural state of one hart, a single owning
// aggregate never copied once constructed (holds slices and driver
// references by value, so callers must not copy a State across
// goroutines).
type State struct {
	PC uint64
	X  [32]uint64
	F  [32]uint64

	Minstret uint64
	Mcycle   uint64

	CSR CSRs

	IFlags IFlags

	// Ilrsc is the reservation address for LR/SC; ReservationValid is
	// false when no reservation is outstanding. Reservation size in bytes
	// (4 or 8) lets SC validate width in addition to address.
	Ilrsc            uint64
	ReservationValid bool
	ReservationSize  uint8

	Clint CLINTState
	Htif  HTIFState

	PMAs *pma.Map

	Brk bool

	TLBRead  [TLBSize]TLBEntry
	TLBWrite [TLBSize]TLBEntry
	TLBCode  [TLBSize]TLBEntry

	Counters Counters
}

// New builds a State with all TLB entries invalid and misa set for
// RV64GC, backed by pmas (which the caller has already populated).
func New(pmas *pma.Map) *State {
	s := &State{PMAs: pmas}
	s.InitTLB()
	// RV64 (MXL=2) with I,M,A,F,D,C extension bits set, plus S and U.
	const mxl = uint64(2) << 62
	const extIMAFDC = (1 << ('I' - 'A')) | (1 << ('M' - 'A')) | (1 << ('A' - 'A')) |
		(1 << ('F' - 'A')) | (1 << ('D' - 'A')) | (1 << ('C' - 'A')) | (1 << ('S' - 'A')) | (1 << ('U' - 'A'))
	s.CSR.Misa = mxl | extIMAFDC
	return s
}

// InitTLB invalidates every TLB entry, mirroring machine_state::init_tlb.
func (s *State) InitTLB() {
	for i := range s.TLBRead {
		s.TLBRead[i] = invalidTLBEntry()
		s.TLBWrite[i] = invalidTLBEntry()
		s.TLBCode[i] = invalidTLBEntry()
	}
}

// WriteX writes to a GPR; x0 discards the write, per spec.md §3.
func (s *State) WriteX(i int, v uint64) {
	if i == 0 {
		return
	}
	s.X[i] = v
}

// ReadX reads a GPR; x0 always reads as zero.
func (s *State) ReadX(i int) uint64 {
	if i == 0 {
		return 0
	}
	return s.X[i]
}

// UpdateBrkFromMipMie recomputes Brk from mip & mie, per
// machine_state::set_brk_from_mip_mie, generalized per spec.md §3's
// fuller formula (also covering H/Y/X).
func (s *State) UpdateBrkFromMipMie() {
	s.recomputeBrk()
}

// UpdateBrkFromIFlags recomputes Brk after an iflags change, per
// machine_state::set_brk_from_iflags_H generalized to H/Y/X.
func (s *State) UpdateBrkFromIFlags() {
	s.recomputeBrk()
}

func (s *State) recomputeBrk() {
	s.Brk = (s.CSR.Mip&s.CSR.Mie) != 0 || s.IFlags.H || s.IFlags.Y || s.IFlags.X
}

// InvalidateTLBs flushes all three TLBs, per spec.md's SFENCE.VMA /
// satp-write requirement that "no TLB entry survives."
func (s *State) InvalidateTLBs() {
	s.InitTLB()
}
