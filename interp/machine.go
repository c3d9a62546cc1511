package interp

import (
	"github.com/cartesi-corp/machine-go/devices"
	"github.com/cartesi-corp/machine-go/machine"
	"github.com/cartesi-corp/machine-go/pma"
	"github.com/cartesi-corp/machine-go/riscv"
	"github.com/ethereum/go-ethereum/log"
)

// Machine wires a machine.State to its CLINT/HTIF device instances and
// drives the fetch/decode/execute loop over it. It is the interp
// package's entry point; merkle and uarch work on a pma.Map alone and
// never need a Machine or a machine.State.
type Machine struct {
	State *machine.State
	Clint *devices.CLINT
	Htif  *devices.HTIF
	Plic  *devices.PLIC

	Log log.Logger
}

// New wires clint/htif/plic (any may be nil) over an already-built
// machine.State. The caller has already registered their PMA entries.
func New(s *machine.State, clint *devices.CLINT, htif *devices.HTIF, plic *devices.PLIC) *Machine {
	return &Machine{State: s, Clint: clint, Htif: htif, Plic: plic, Log: log.Root()}
}

// syncInterruptSources folds CLINT and PLIC signal state into mip (HTIF
// raises no interrupt), per
// spec.md §4.2's device semantics and §4.3's interrupt-check step.
func (m *Machine) syncInterruptSources() {
	if m.Clint != nil {
		if m.Clint.TimerPending() {
			m.State.CSR.Mip |= 1 << riscv.IntMTI
		} else {
			m.State.CSR.Mip &^= 1 << riscv.IntMTI
		}
		if m.Clint.MSIP() {
			m.State.CSR.Mip |= 1 << riscv.IntMSI
		} else {
			m.State.CSR.Mip &^= 1 << riscv.IntMSI
		}
	}
	if m.Plic != nil {
		if m.Plic.Asserted() {
			m.State.CSR.Mip |= 1 << riscv.IntSEI
		} else {
			m.State.CSR.Mip &^= 1 << riscv.IntSEI
		}
	}
	m.State.UpdateBrkFromMipMie()
}

// fetch translates pc through the code TLB (filling it on miss) and
// reads one 16-bit halfword; callers assemble 32-bit instructions from
// two such reads, which is what lets a compressed instruction at the tail
// of a page fetch cleanly.
func (m *Machine) fetch(pc uint64) (uint16, *trap) {
	return m.loadHalf(pc, &m.State.TLBCode, accessCode)
}

func (m *Machine) loadHalf(vaddr uint64, tlb *[machine.TLBSize]machine.TLBEntry, kind accessKind) (uint16, *trap) {
	if vaddr%2 != 0 {
		return 0, trapPtr(exceptionTrap(misalignedCause(kind), vaddr))
	}
	paddr, t := m.translateCached(vaddr, tlb, kind)
	if t != nil {
		return 0, t
	}
	e := m.State.PMAs.Find(paddr, 2)
	if e.IsEmpty() || e.Kind != pma.KindMemory {
		return 0, trapPtr(faultCause(kind, vaddr))
	}
	off := paddr - e.Start
	return uint16(e.Data[off]) | uint16(e.Data[off+1])<<8, nil
}

func misalignedCause(kind accessKind) uint64 {
	switch kind {
	case accessCode:
		return riscv.CauseInstrMisaligned
	case accessWrite:
		return riscv.CauseStoreMisaligned
	default:
		return riscv.CauseLoadMisaligned
	}
}

func faultCause(kind accessKind, vaddr uint64) trap {
	switch kind {
	case accessCode:
		return exceptionTrap(riscv.CauseInstrAccessFault, vaddr)
	case accessWrite:
		return exceptionTrap(riscv.CauseStoreAccessFault, vaddr)
	default:
		return exceptionTrap(riscv.CauseLoadAccessFault, vaddr)
	}
}

func trapPtr(t trap) *trap { return &t }

// translateCached consults tlb before walking the page table, inserting
// on miss, per spec.md §4.3's "Loads and stores consult read/write TLB
// first. On miss, translate and insert."
func (m *Machine) translateCached(vaddr uint64, tlb *[machine.TLBSize]machine.TLBEntry, kind accessKind) (uint64, *trap) {
	vpage := vaddr &^ (riscv.PageSize - 1)
	if e, idx := m.lookupTLB(tlb, vpage); idx >= 0 {
		return e.PAddrPage | (vaddr & (riscv.PageSize - 1)), nil
	}
	paddr, t := m.translate(vaddr, kind)
	if t != nil {
		return 0, t
	}
	ppage := paddr &^ (riscv.PageSize - 1)
	pidx := m.findPMAIndex(ppage)
	m.insertTLB(tlb, vpage, ppage, pidx)
	return paddr, nil
}

// loadMem reads size bytes (1,2,4,8) at vaddr through the read TLB,
// dispatching device accesses through the PMA driver vtable.
func (m *Machine) loadMem(vaddr uint64, log2Size uint64) (uint64, *trap) {
	size := uint64(1) << log2Size
	if vaddr%size != 0 {
		return 0, trapPtr(exceptionTrap(riscv.CauseLoadMisaligned, vaddr))
	}
	paddr, t := m.translateCached(vaddr, &m.State.TLBRead, accessRead)
	if t != nil {
		return 0, t
	}
	e := m.State.PMAs.Find(paddr, size)
	if e.IsEmpty() || !e.Readable() {
		return 0, trapPtr(exceptionTrap(riscv.CauseLoadAccessFault, vaddr))
	}
	if e.Kind == pma.KindMemory {
		return readMemAligned(e, paddr, log2Size), nil
	}
	v, ok := e.Driver.Read(paddr-e.Start, log2Size)
	if !ok {
		return 0, trapPtr(exceptionTrap(riscv.CauseLoadAccessFault, vaddr))
	}
	return v, nil
}

// storeMem writes size bytes at vaddr through the write TLB, marking the
// owning page dirty before the store per spec.md §4.4.
func (m *Machine) storeMem(vaddr uint64, log2Size uint64, value uint64) *trap {
	size := uint64(1) << log2Size
	if vaddr%size != 0 {
		return trapPtr(exceptionTrap(riscv.CauseStoreMisaligned, vaddr))
	}
	paddr, t := m.translateCached(vaddr, &m.State.TLBWrite, accessWrite)
	if t != nil {
		return t
	}
	e := m.State.PMAs.Find(paddr, size)
	if e.IsEmpty() || !e.Writable() {
		return trapPtr(exceptionTrap(riscv.CauseStoreAccessFault, vaddr))
	}
	m.invalidateReservationIfOverlapping(paddr, size)
	if e.Kind == pma.KindMemory {
		e.MarkDirty(paddr)
		writeMemAligned(e, paddr, log2Size, value)
		return nil
	}
	if !e.Driver.Write(paddr-e.Start, log2Size, value) {
		return trapPtr(exceptionTrap(riscv.CauseStoreAccessFault, vaddr))
	}
	if m.Htif != nil && e.Driver == pma.Driver(m.Htif) {
		m.syncHtifFlags()
	}
	return nil
}

// syncHtifFlags mirrors original_source's htif_write_halt calling
// set_iflags_H directly through the machine's virtual-state-access
// interface: a write that makes the HTIF device halt must be reflected
// into iflags.H the same retirement it happens, per spec.md §8 scenario
// 1's "after run: iflags.H = 1".
func (m *Machine) syncHtifFlags() {
	if m.Htif.Halted() {
		m.State.IFlags.H = true
		m.State.UpdateBrkFromIFlags()
	}
}

func (m *Machine) invalidateReservationIfOverlapping(paddr, size uint64) {
	if !m.State.ReservationValid {
		return
	}
	rs := uint64(m.State.ReservationSize)
	if paddr < m.State.Ilrsc+rs && m.State.Ilrsc < paddr+size {
		m.State.ReservationValid = false
	}
}
