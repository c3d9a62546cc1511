package interp

import (
	"github.com/cartesi-corp/machine-go/machine"
	"github.com/cartesi-corp/machine-go/pma"
	"github.com/cartesi-corp/machine-go/riscv"
)

// accessKind distinguishes the three TLBs and the permission bit each
// checks in a PTE.
type accessKind int

const (
	accessRead accessKind = iota
	accessWrite
	accessCode
)

// translate walks the page table selected by satp.MODE and returns the
// physical address for vaddr, or a page-fault trap. Bare mode (MODE==0)
// is the identity mapping.
func (m *Machine) translate(vaddr uint64, kind accessKind) (uint64, *trap) {
	satp := m.State.CSR.Satp
	mode := satp >> 60
	if mode == riscv.SatpModeBare {
		return vaddr, nil
	}

	var levels riscv.MMULevels
	switch mode {
	case riscv.SatpModeSv39:
		levels = riscv.Sv39Levels
	case riscv.SatpModeSv48:
		levels = riscv.Sv48Levels
	case riscv.SatpModeSv57:
		levels = riscv.Sv57Levels
	default:
		t := pageFault(kind, vaddr)
		return 0, &t
	}

	// Canonical (sign-extended) address check.
	signBit := uint64(1) << (levels.VAWidth - 1)
	top := vaddr >> levels.VAWidth
	if (vaddr&signBit != 0 && top != (uint64(1)<<(64-levels.VAWidth))-1) || (vaddr&signBit == 0 && top != 0) {
		t := pageFault(kind, vaddr)
		return 0, &t
	}

	ppn := satp & ((uint64(1) << 44) - 1)
	vpnWidth := uint(9)
	vpnShiftBase := riscv.PageShift + vpnWidth*uint(levels.Levels-1)

	var pte uint64
	var pteAddr uint64
	level := levels.Levels - 1
	for {
		vpn := (vaddr >> (riscv.PageShift + vpnWidth*uint(level))) & ((1 << vpnWidth) - 1)
		_ = vpnShiftBase
		pteAddr = (ppn << riscv.PageShift) + vpn*uint64(levels.PTESize)

		raw, ok := m.readPhysical(pteAddr, 3)
		if !ok {
			t := pageFault(kind, vaddr)
			return 0, &t
		}
		pte = raw

		if pte&riscv.PteV == 0 || (pte&riscv.PteR == 0 && pte&riscv.PteW != 0) {
			t := pageFault(kind, vaddr)
			return 0, &t
		}

		isLeaf := pte&(riscv.PteR|riscv.PteX) != 0
		if isLeaf {
			break
		}
		if level == 0 {
			t := pageFault(kind, vaddr)
			return 0, &t
		}
		ppn = (pte >> 10) & ((uint64(1) << 44) - 1)
		level--
	}

	if !m.checkPermission(pte, kind) {
		t := pageFault(kind, vaddr)
		return 0, &t
	}

	if pte&riscv.PteA == 0 || (kind == accessWrite && pte&riscv.PteD == 0) {
		newPTE := pte | riscv.PteA
		if kind == accessWrite {
			newPTE |= riscv.PteD
		}
		m.writePhysical(pteAddr, 3, newPTE)
		pte = newPTE
	}

	ppnFinal := (pte >> 10) & ((uint64(1) << 44) - 1)
	pageOffset := vaddr & (riscv.PageSize - 1)
	paddr := (ppnFinal << riscv.PageShift) | pageOffset
	return paddr, nil
}

func pageFault(kind accessKind, vaddr uint64) trap {
	switch kind {
	case accessCode:
		return exceptionTrap(riscv.CauseInstrPageFault, vaddr)
	case accessWrite:
		return exceptionTrap(riscv.CauseStorePageFault, vaddr)
	default:
		return exceptionTrap(riscv.CauseLoadPageFault, vaddr)
	}
}

func (m *Machine) checkPermission(pte uint64, kind accessKind) bool {
	u := pte&riscv.PteU != 0
	prv := m.State.IFlags.PRV
	mprv := m.State.CSR.Mstatus&(1<<riscv.MstatusMPRVShift) != 0
	effectivePRV := prv
	if mprv && kind != accessCode {
		effectivePRV = uint8((m.State.CSR.Mstatus >> riscv.MstatusMPPShift) & riscv.MstatusMPPMask)
	}

	if u && effectivePRV == riscv.PrvS {
		sum := m.State.CSR.Mstatus&(1<<riscv.MstatusSUMShift) != 0
		if !sum || kind == accessCode {
			return false
		}
	}
	if !u && effectivePRV == riscv.PrvU {
		return false
	}

	switch kind {
	case accessCode:
		return pte&riscv.PteX != 0
	case accessWrite:
		return pte&riscv.PteW != 0
	default:
		mxr := m.State.CSR.Mstatus&(1<<riscv.MstatusMXRShift) != 0
		return pte&riscv.PteR != 0 || (mxr && pte&riscv.PteX != 0)
	}
}

// lookupTLB scans the small TLB for vaddr's page; a production engine
// would hash-index this, but 256 linear entries keeps the model simple
// and matches the teacher's emphasis on clarity over host speed tricks.
func (m *Machine) lookupTLB(tlb *[machine.TLBSize]machine.TLBEntry, vaddrPage uint64) (machine.TLBEntry, int) {
	for i := range tlb {
		if tlb[i].VAddrPage == vaddrPage {
			return tlb[i], i
		}
	}
	return machine.TLBEntry{}, -1
}

func (m *Machine) insertTLB(tlb *[machine.TLBSize]machine.TLBEntry, vaddrPage, paddrPage uint64, pmaIndex int) {
	slot := int(vaddrPage/riscv.PageSize) % machine.TLBSize
	tlb[slot] = machine.TLBEntry{
		PMAIndex:  pmaIndex,
		VAddrPage: vaddrPage,
		PAddrPage: paddrPage,
		PageIndex: (paddrPage - m.pmaStart(pmaIndex)) / riscv.PageSize,
	}
}

func (m *Machine) pmaStart(idx int) uint64 {
	if idx < 0 || idx >= len(m.State.PMAs.Entries()) {
		return 0
	}
	return m.State.PMAs.Entries()[idx].Start
}

// findPMAIndex returns the index of the PMA entry containing paddr, or -1.
func (m *Machine) findPMAIndex(paddr uint64) int {
	entries := m.State.PMAs.Entries()
	for i, e := range entries {
		if e.Contains(paddr, 1) {
			return i
		}
	}
	return -1
}

// readPhysical/writePhysical bypass translation and TLBs entirely, used
// for page-table-entry fetches during a walk.
func (m *Machine) readPhysical(paddr uint64, log2Size uint64) (uint64, bool) {
	e := m.State.PMAs.Find(paddr, uint64(1)<<log2Size)
	if e.IsEmpty() {
		return 0, false
	}
	if e.Kind == pma.KindMemory {
		return readMemAligned(e, paddr, log2Size), true
	}
	return e.Driver.Read(paddr-e.Start, log2Size)
}

func (m *Machine) writePhysical(paddr uint64, log2Size uint64, value uint64) bool {
	e := m.State.PMAs.Find(paddr, uint64(1)<<log2Size)
	if e.IsEmpty() {
		return false
	}
	if e.Kind == pma.KindMemory {
		writeMemAligned(e, paddr, log2Size, value)
		e.MarkDirty(paddr)
		return true
	}
	return e.Driver.Write(paddr-e.Start, log2Size, value)
}

func readMemAligned(e *pma.Entry, paddr uint64, log2Size uint64) uint64 {
	off := paddr - e.Start
	n := uint64(1) << log2Size
	var v uint64
	for i := uint64(0); i < n; i++ {
		v |= uint64(e.Data[off+i]) << (8 * i)
	}
	return v
}

func writeMemAligned(e *pma.Entry, paddr uint64, log2Size uint64, value uint64) {
	off := paddr - e.Start
	n := uint64(1) << log2Size
	for i := uint64(0); i < n; i++ {
		e.Data[off+i] = byte(value >> (8 * i))
	}
}
