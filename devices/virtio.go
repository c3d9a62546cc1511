package devices

import "time"

// PollableDevice is the interrupt-poll contract VirtIO block/console
// backends must satisfy, per spec.md §5: "before entering WFI, the
// interpreter asks registered VirtIO devices to prepare a read/write/
// except descriptor set plus a timeout ... performs a single blocking
// wait, then lets devices consume ready descriptors and raise
// interrupts." No concrete backend lives in this repository, and
// interp.Machine does not call this interface: its WFI handling neither
// collects descriptors nor waits on them.
type PollableDevice interface {
	// PrepareDescriptors returns the file descriptors this device wants
	// polled and the maximum time the interpreter's wait may block before
	// giving up and re-checking the CLINT deadline.
	PrepareDescriptors() (readFDs, writeFDs, exceptFDs []int, timeout time.Duration)
	// ConsumeReady is called after the poll with the subset of
	// descriptors (by index into the slices PrepareDescriptors returned)
	// that were ready, and raises interrupts on the owning PLIC/CLINT as
	// appropriate.
	ConsumeReady(readyRead, readyWrite, readyExcept []int)
}
