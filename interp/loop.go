package interp

import "github.com/cartesi-corp/machine-go/riscv"

// Run advances the machine until mcycle reaches mcycleEnd, the machine
// halts or yields, or WFI has no pending interrupt and the next timer
// deadline is beyond mcycleEnd, per spec.md §4.3's outer loop.
func (m *Machine) Run(mcycleEnd uint64) StopReason {
	for {
		if m.State.IFlags.H {
			return Halted
		}
		if m.State.IFlags.Y {
			return YieldedManually
		}
		if m.State.Mcycle >= mcycleEnd {
			return ReachedTargetMcycle
		}
		m.State.Counters.Outers++
		if m.Htif != nil {
			m.Htif.Poll()
		}

		if m.State.IFlags.I {
			m.syncInterruptSources()
			if _, has := pendingInterrupt(m.State); has {
				m.State.IFlags.I = false
			} else {
				next := m.nextTimerDeadline()
				if next > mcycleEnd {
					m.State.Mcycle = mcycleEnd
					return ReachedTargetMcycle
				}
				m.State.Mcycle = next
				continue
			}
		}

		m.runInner(mcycleEnd)
	}
}

// nextTimerDeadline returns the mcycle at which the CLINT timer will next
// fire, or the largest uint64 when no CLINT is wired or that mcycle is
// not representable; Run caps the skip at its mcycleEnd.
func (m *Machine) nextTimerDeadline() uint64 {
	if m.Clint == nil {
		return ^uint64(0)
	}
	// mtime = mcycle / RTCFreqDivisor, so mtime reaches mtimecmp once
	// mcycle reaches mtimecmp * RTCFreqDivisor.
	const rtcDivisor = 100
	cmp := m.Clint.MTimeCmp()
	if cmp > ^uint64(0)/rtcDivisor {
		return ^uint64(0)
	}
	target := cmp * rtcDivisor
	if target < m.State.Mcycle {
		return m.State.Mcycle
	}
	return target
}

// runInner retires instructions until mcycle reaches mcycleEnd or Brk is
// set, per spec.md §4.3's inner loop / retire step.
func (m *Machine) runInner(mcycleEnd uint64) {
	for m.State.Mcycle < mcycleEnd {
		m.State.Counters.Inners++

		m.syncInterruptSources()
		if it, has := pendingInterrupt(m.State); has {
			deliver(m.State, it)
			m.State.Counters.MachineInterrupts++
			m.retire(false)
			if m.State.Brk {
				return
			}
			continue
		}

		t := m.stepOne()
		if t != nil {
			deliver(m.State, *t)
			m.State.Counters.MachineExceptions++
			m.retire(false)
		} else {
			m.retire(true)
		}
		if m.State.Brk {
			return
		}
	}
}

// retire advances minstret (only for a successfully executed
// instruction, per spec.md §8's "minstret(i+1)-minstret(i) in {0,1}") and
// always advances mcycle.
func (m *Machine) retire(instructionCompleted bool) {
	if instructionCompleted {
		m.State.Minstret++
	}
	m.State.Mcycle++
}

// stepOne fetches, decodes, and executes one instruction at pc, updating
// pc on success. Returns a trap (already NOT delivered) for the caller
// to deliver, keeping stepOne itself free of control-flow side effects
// beyond pc/register/CSR writes it made before faulting.
func (m *Machine) stepOne() *trap {
	lo, t := m.fetch(m.State.PC)
	if t != nil {
		return t
	}

	var d decoded
	if lo&0x3 != 0x3 {
		raw32, ok := decompress(lo)
		if !ok {
			tv := exceptionTrap(riscv.CauseIllegalInstr, uint64(lo))
			return &tv
		}
		d = decode32(raw32)
		d.isC = true
	} else {
		hi, t := m.fetch(m.State.PC + 2)
		if t != nil {
			return t
		}
		raw32 := uint32(lo) | uint32(hi)<<16
		d = decode32(raw32)
	}

	trapOut, redirected := m.execute(d)
	if trapOut != nil {
		return trapOut
	}
	if !redirected {
		m.State.PC += pcWidth(d)
	}
	return nil
}
