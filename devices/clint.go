// Package devices implements the memory-mapped device state machines that
// plug into a pma.Map via the pma.Driver interface: CLINT, HTIF, and a
// small PLIC. Grounded on original_source/src/clint.h and htif.cpp,
// translated from a C++ vtable + opaque context into a tagged Go type per
// pma value, per spec.md's Design Note.
package devices

import "encoding/binary"

// CLINT relative register offsets, from original_source/src/clint.h.
const (
	ClintMSIP0     = 0x0000
	ClintMTimeCmp  = 0x4000
	ClintMTime     = 0xBFF8
)

// RTCFreqDivisor converts mcycle to a synthesized mtime value. The
// original hard-codes a 100:1 cycle-to-time ratio (RTC_FREQ_DIV);
// mtime is a derived view, never itself stored (spec.md §3).
const RTCFreqDivisor = 100

func RTCCycleToTime(mcycle uint64) uint64 { return mcycle / RTCFreqDivisor }

// CLINT is the Core-Local Interruptor: machine timer and
// software-interrupt device.
type CLINT struct {
	mtimecmp uint64
	msip     bool

	// mcycle is read from the owning machine on every access; CLINT does
	// not keep its own cycle counter (spec.md §3: "mtime is derived, not
	// stored").
	Mcycle func() uint64
}

// NewCLINT constructs a CLINT with the given initial mtimecmp.
func NewCLINT(mtimecmp uint64, mcycle func() uint64) *CLINT {
	return &CLINT{mtimecmp: mtimecmp, Mcycle: mcycle}
}

func (c *CLINT) MTimeCmp() uint64 { return c.mtimecmp }
func (c *CLINT) SetMTimeCmp(v uint64) { c.mtimecmp = v }
func (c *CLINT) MSIP() bool { return c.msip }

// TimerPending reports whether the machine timer interrupt condition
// holds: mtime >= mtimecmp.
func (c *CLINT) TimerPending() bool {
	return RTCCycleToTime(c.Mcycle()) >= c.mtimecmp
}

// Read implements pma.Driver. Only aligned 8-byte accesses succeed.
func (c *CLINT) Read(offset uint64, log2Size uint64) (uint64, bool) {
	if log2Size != 3 || offset%8 != 0 {
		return 0, false
	}
	switch offset {
	case ClintMSIP0:
		if c.msip {
			return 1, true
		}
		return 0, true
	case ClintMTimeCmp:
		return c.mtimecmp, true
	case ClintMTime:
		return RTCCycleToTime(c.Mcycle()), true
	default:
		return 0, false
	}
}

// Write implements pma.Driver. Only aligned 8-byte accesses succeed.
func (c *CLINT) Write(offset uint64, log2Size uint64, value uint64) bool {
	if log2Size != 3 || offset%8 != 0 {
		return false
	}
	switch offset {
	case ClintMSIP0:
		c.msip = value&1 != 0
		return true
	case ClintMTimeCmp:
		c.mtimecmp = value
		return true
	case ClintMTime:
		// mtime is a read-only derived view; writes are rejected.
		return false
	default:
		return false
	}
}

// Peek materializes a pristine page carrying the current register values
// at their fixed offsets, so Merkle hashing of the CLINT range is
// well-defined per spec.md §6.
func (c *CLINT) Peek(pageOffset uint64, scratch []byte) (pristine bool, ok bool) {
	for i := range scratch {
		scratch[i] = 0
	}
	wrote := false
	place := func(rel uint64, v uint64) {
		if rel >= pageOffset && rel < pageOffset+uint64(len(scratch)) {
			binary.LittleEndian.PutUint64(scratch[rel-pageOffset:], v)
			wrote = true
		}
	}
	msip := uint64(0)
	if c.msip {
		msip = 1
	}
	place(ClintMSIP0, msip)
	place(ClintMTimeCmp, c.mtimecmp)
	place(ClintMTime, RTCCycleToTime(c.Mcycle()))
	return !wrote, true
}
