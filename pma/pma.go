// Package pma implements the Physical Memory Attributes map: an ordered,
// disjoint set of physical address ranges, each tagged as memory or
// device, that every load/store in the machine core is routed through.
//
// Grounded on original_source/src/machine.h's PMA discussion and on
// rvgo/fast/memory.go's page-backed memory idea, generalized from "one
// flat address space" to "an ordered set of ranges with a driver vtable".
package pma

import (
	"errors"
	"fmt"
	"sort"
)

// ErrConfigInvalid is returned for malformed or overlapping PMA registration.
var ErrConfigInvalid = errors.New("pma: invalid configuration")

// Flags bits, mirroring the original's PMA_FLAGS bitfield.
const (
	FlagR = 1 << iota
	FlagW
	FlagX
	FlagIR // idempotent read
	FlagIW // idempotent write
)

// Max number of PMA entries a machine may register, matching the
// original's PMA_MAX bound on its static_vector<pma_entry, PMA_MAX>.
const Max = 32

// Driver is the vtable a device-kind PMA entry carries. It replaces the
// C function-pointer + opaque-context pair from the original with a plain
// Go interface, per spec.md's Design Note.
type Driver interface {
	// Read attempts an aligned access of 2^log2Size bytes at offset within
	// the PMA range. Returns false if the access must fault (misaligned,
	// odd size, or otherwise refused by the device).
	Read(offset uint64, log2Size uint64) (value uint64, ok bool)
	// Write is the store counterpart of Read.
	Write(offset uint64, log2Size uint64, value uint64) (ok bool)
	// Peek materializes the content of the page at pageOffset (a multiple
	// of pma.PageSize within the range) into scratch, deterministically,
	// for Merkle hashing. A device with no observable state at that page
	// reports ok=true and pristine=true; scratch is then not hashed.
	Peek(pageOffset uint64, scratch []byte) (pristine bool, ok bool)
}

// DID tags the device kind for diagnostics and for config round-tripping.
type DID int

const (
	DIDMemory DID = iota
	DIDFlash
	DIDCLINT
	DIDHTIF
	DIDPLIC
	DIDVirtIO
)

// Kind distinguishes memory-backed ranges (own host storage + dirty
// bitmap) from device-backed ranges (driver vtable + opaque context).
type Kind int

const (
	KindMemory Kind = iota
	KindDevice
)

// Entry is one physical memory range.
type Entry struct {
	Start  uint64
	Length uint64
	Flags  uint32
	DID    DID
	Kind   Kind

	// Memory-kind fields.
	Data  []byte // host-side backing storage, len == Length
	Dirty []uint64 // dirty-page bitmap, one bit per PageSize page
	Shared bool   // true if Data is backed by a shared file mapping

	// Device-kind fields.
	Driver Driver
}

const PageSize = 1 << 12

// Empty is the sentinel entry returned by Map.Find on a total miss,
// matching the original's empty_pma fallback.
var Empty = Entry{Start: 0, Length: 0, Kind: KindDevice}

func (e *Entry) IsEmpty() bool { return e.Length == 0 }

// Contains reports whether [addr, addr+length) lies entirely in e.
func (e *Entry) Contains(addr, length uint64) bool {
	if length == 0 {
		return addr >= e.Start && addr < e.Start+e.Length
	}
	end := addr + length
	return addr >= e.Start && end > addr && end <= e.Start+e.Length
}

func (e *Entry) Readable() bool   { return e.Flags&FlagR != 0 }
func (e *Entry) Writable() bool   { return e.Flags&FlagW != 0 }
func (e *Entry) Executable() bool { return e.Flags&FlagX != 0 }

// PageCount returns the number of PageSize pages this memory-kind entry spans.
func (e *Entry) PageCount() uint64 {
	return e.Length / PageSize
}

// MarkDirty sets the dirty bit for the page containing addr.
func (e *Entry) MarkDirty(addr uint64) {
	page := (addr - e.Start) / PageSize
	e.Dirty[page/64] |= 1 << (page % 64)
}

// IsDirty reports whether the page at the given page index (relative to
// e.Start) has been written since the last ClearDirty.
func (e *Entry) IsDirty(page uint64) bool {
	return e.Dirty[page/64]&(1<<(page%64)) != 0
}

// ClearDirty resets every dirty bit.
func (e *Entry) ClearDirty() {
	for i := range e.Dirty {
		e.Dirty[i] = 0
	}
}

// PageBytes returns the backing slice for the page at the given index
// relative to e.Start.
func (e *Entry) PageBytes(page uint64) []byte {
	off := page * PageSize
	return e.Data[off : off+PageSize]
}

// NewMemory builds a memory-kind entry with zeroed backing storage.
func NewMemory(start, length uint64, flags uint32) (*Entry, error) {
	if length == 0 || length%PageSize != 0 || start%PageSize != 0 {
		return nil, fmt.Errorf("%w: memory range [0x%x,+0x%x) must be page-aligned and non-empty", ErrConfigInvalid, start, length)
	}
	pages := length / PageSize
	return &Entry{
		Start:  start,
		Length: length,
		Flags:  flags,
		DID:    DIDMemory,
		Kind:   KindMemory,
		Data:   make([]byte, length),
		Dirty:  make([]uint64, (pages+63)/64),
	}, nil
}

// NewDevice builds a device-kind entry wrapping the given driver.
func NewDevice(start, length uint64, flags uint32, did DID, driver Driver) (*Entry, error) {
	if length == 0 || start%PageSize != 0 {
		return nil, fmt.Errorf("%w: device range [0x%x,+0x%x) must be page-aligned and non-empty", ErrConfigInvalid, start, length)
	}
	return &Entry{
		Start:  start,
		Length: length,
		Flags:  flags,
		DID:    did,
		Kind:   KindDevice,
		Driver: driver,
	}, nil
}

// Map is the ordered, disjoint set of PMA entries making up a machine's
// physical address space. Immutable after construction save for
// ReplaceMemoryRange.
type Map struct {
	entries []*Entry
}

// Register adds entry to the map, preserving start-address order.
// Overlap with an existing entry is rejected.
func (m *Map) Register(e *Entry) error {
	if len(m.entries) >= Max {
		return fmt.Errorf("%w: PMA map already has %d entries (max %d)", ErrConfigInvalid, len(m.entries), Max)
	}
	for _, existing := range m.entries {
		if overlaps(existing, e) {
			return fmt.Errorf("%w: range [0x%x,+0x%x) overlaps existing [0x%x,+0x%x)",
				ErrConfigInvalid, e.Start, e.Length, existing.Start, existing.Length)
		}
	}
	m.entries = append(m.entries, e)
	sort.Slice(m.entries, func(i, j int) bool { return m.entries[i].Start < m.entries[j].Start })
	return nil
}

func overlaps(a, b *Entry) bool {
	aEnd := a.Start + a.Length
	bEnd := b.Start + b.Length
	return a.Start < bEnd && b.Start < aEnd
}

// Find returns the first entry containing [paddr, paddr+length), or the
// Empty sentinel if no entry matches. First match wins, but since entries
// are disjoint there is at most one match.
func (m *Map) Find(paddr, length uint64) *Entry {
	// entries are sorted by Start; binary-search to the last entry whose
	// Start <= paddr, then verify containment.
	idx := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Start > paddr })
	if idx == 0 {
		return &Empty
	}
	e := m.entries[idx-1]
	if e.Contains(paddr, length) {
		return e
	}
	return &Empty
}

// ForEach iterates entries in start order.
func (m *Map) ForEach(fn func(*Entry) error) error {
	for _, e := range m.entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns a read-only snapshot of the registered entries in start order.
func (m *Map) Entries() []*Entry {
	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// ReplaceMemoryRange swaps the backing entry for an existing
// (start,length)-matching memory range, preserving ordering and flags.
// Used to restore a flash-drive PMA to a freshly loaded image on machine
// reload, per spec.md §4.1.
func (m *Map) ReplaceMemoryRange(start, length uint64, data []byte) error {
	for i, e := range m.entries {
		if e.Start == start && e.Length == length {
			if e.Kind != KindMemory {
				return fmt.Errorf("%w: range [0x%x,+0x%x) is not a memory range", ErrConfigInvalid, start, length)
			}
			if uint64(len(data)) != length {
				return fmt.Errorf("%w: replacement data length %d != range length %d", ErrConfigInvalid, len(data), length)
			}
			replacement := &Entry{
				Start:  e.Start,
				Length: e.Length,
				Flags:  e.Flags, // flags are preserved; only storage may be swapped
				DID:    e.DID,
				Kind:   KindMemory,
				Data:   data,
				Dirty:  make([]uint64, (length/PageSize+63)/64),
				Shared: e.Shared,
			}
			m.entries[i] = replacement
			return nil
		}
	}
	return fmt.Errorf("%w: no memory range [0x%x,+0x%x) registered", ErrConfigInvalid, start, length)
}
