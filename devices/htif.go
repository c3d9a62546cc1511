package devices

import (
	"encoding/binary"
	"io"
)

// HTIF relative register offsets, from original_source/src/htif.cpp.
const (
	HTIFToHost   = 0
	HTIFFromHost = 8
)

// tohost/fromhost bit layout, per spec.md §4.2.
const (
	htifDeviceShift  = 56
	htifCmdShift     = 48
	htifPayloadMask  = (uint64(1) << 48) - 1
)

// HTIF is the Host-Target Interface: the bidirectional console/halt
// channel at tohost/fromhost. No yield command is decoded; such a write
// takes the unrecognized-command path and is only acked. Non-interactive by default (spec.md §9 Open
// Question, resolved in DESIGN.md): no input is ever delivered unless the
// embedder calls DeliverConsoleByte, or Interactive mode is enabled and
// the injected reader has data.
type HTIF struct {
	tohost   uint64
	fromhost uint64

	fromhostPending bool

	halted bool

	// Interactive console plumbing. Nil unless constructed via
	// NewInteractiveHTIF.
	interactive bool
	in          io.Reader
	out         io.Writer
	pollCount   uint64
}

// HTIFInteractDivisor rate-limits interactive stdin polling, per spec.md
// §5: "consulted at most once per that many outer-loop iterations."
const HTIFInteractDivisor = 256

// NewHTIF constructs a non-interactive HTIF: deterministic, reproducible,
// never itself reads any input stream.
func NewHTIF(tohost, fromhost uint64) *HTIF {
	return &HTIF{tohost: tohost, fromhost: fromhost}
}

// NewInteractiveHTIF constructs an HTIF that also polls in for console
// input at most once per HTIFInteractDivisor outer-loop iterations, and
// writes putchar output to out. The caller owns in/out lifetime.
func NewInteractiveHTIF(tohost, fromhost uint64, in io.Reader, out io.Writer) *HTIF {
	return &HTIF{tohost: tohost, fromhost: fromhost, interactive: true, in: in, out: out}
}

func (h *HTIF) ToHost() uint64        { return h.tohost }
func (h *HTIF) FromHost() uint64      { return h.fromhost }
func (h *HTIF) Halted() bool          { return h.halted }
func (h *HTIF) FromHostPending() bool { return h.fromhostPending }

// Read implements pma.Driver. Only aligned 8-byte accesses succeed.
func (h *HTIF) Read(offset uint64, log2Size uint64) (uint64, bool) {
	if log2Size != 3 || offset%8 != 0 {
		return 0, false
	}
	switch offset {
	case HTIFToHost:
		return h.tohost, true
	case HTIFFromHost:
		return h.fromhost, true
	default:
		return 0, false
	}
}

// Write implements pma.Driver. A write to tohost decodes and executes a
// command per spec.md §4.2's table.
func (h *HTIF) Write(offset uint64, log2Size uint64, value uint64) bool {
	if log2Size != 3 || offset%8 != 0 {
		return false
	}
	switch offset {
	case HTIFToHost:
		h.handleToHost(value)
		return true
	case HTIFFromHost:
		h.fromhost = value
		h.fromhostPending = false
		return true
	default:
		return false
	}
}

func (h *HTIF) handleToHost(value uint64) {
	device := value >> htifDeviceShift
	cmd := (value >> htifCmdShift) & 0xFF
	payload := value & htifPayloadMask

	switch {
	case device == 0 && cmd == 0:
		if payload&1 == 1 {
			h.halted = true
			h.tohost = value // preserve payload for inspection, per spec.md §4.2
			return
		}
		h.ack()
	case device == 1 && cmd == 1: // putchar
		b := byte(payload & 0xFF)
		if h.out != nil {
			_, _ = h.out.Write([]byte{b})
		}
		h.tohost = 0
		h.fromhost = (uint64(1) << htifDeviceShift) | (uint64(1) << htifCmdShift)
	case device == 1 && cmd == 0: // getchar
		h.ack()
		// Delivery of the next input byte happens on a later poll
		// (Poll/DeliverConsoleByte), never synchronously here, per
		// spec.md §9's resolved Open Question.
	default:
		// Unrecognized (device, cmd): silently ack only, kept bit-exact
		// with existing guest code per spec.md §9's second Open Question.
		h.ack()
	}
}

func (h *HTIF) ack() { h.tohost = 0 }

// DeliverConsoleByte makes b available to the guest as the next getchar
// result, setting fromhost_pending per spec.md §3. Used by both
// non-interactive embedders that want scripted input and by Poll.
func (h *HTIF) DeliverConsoleByte(b byte) {
	h.fromhost = (uint64(1) << htifDeviceShift) | uint64(b)
	h.fromhostPending = true
}

// Poll is called by the interpreter's outer loop on every iteration, per
// spec.md §5. It is a no-op unless this HTIF was constructed interactive
// and has no delivery already pending; otherwise it reads from in on
// every HTIFInteractDivisor-th such call.
func (h *HTIF) Poll() {
	if !h.interactive || h.fromhostPending {
		return
	}
	h.pollCount++
	if h.pollCount%HTIFInteractDivisor != 0 {
		return
	}
	var b [1]byte
	n, err := h.in.Read(b[:])
	if err != nil || n == 0 {
		return
	}
	h.DeliverConsoleByte(b[0])
}

// Peek materializes a pristine page carrying tohost/fromhost at their
// fixed offsets; all other HTIF pages are pristine, per spec.md §4.2.
func (h *HTIF) Peek(pageOffset uint64, scratch []byte) (pristine bool, ok bool) {
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
	place(HTIFToHost, h.tohost)
	place(HTIFFromHost, h.fromhost)
	return !wrote, true
}
