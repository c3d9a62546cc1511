package merkle

import (
	"errors"
	"fmt"

	"github.com/cartesi-corp/machine-go/pma"
)

// Errors surfaced to callers per spec.md §7. These are engine errors, not
// architectural traps.
var (
	ErrOutOfRange        = errors.New("merkle: address out of range for proof")
	ErrStateInconsistent = errors.New("merkle: dirty-map or tree self-check failed")
)

// Tree is the paged sparse Merkle tree over a machine's PMA map.
type Tree struct {
	pmas *pma.Map

	// pageHash caches the 2^12-byte hash for memory-kind pages, keyed by
	// absolute page number (byte address >> 12). Only valid while the
	// owning PMA's dirty bit for that page is clear.
	pageHash map[uint64][32]byte

	root      [32]byte
	rootValid bool
}

// New builds a Tree over pmas. The map must not be mutated (beyond
// ReplaceMemoryRange) for the lifetime of the tree.
func New(pmas *pma.Map) *Tree {
	return &Tree{pmas: pmas, pageHash: make(map[uint64][32]byte)}
}

// overlapsAnyPMA reports whether any registered PMA entry intersects
// [addr, addr+2^k). Early return here is what keeps tree operations from
// ever touching more than O(number of PMAs * 64) nodes, despite the tree
// conceptually spanning 2^64 bytes.
func (t *Tree) overlapsAnyPMA(addr uint64, k uint) bool {
	// Inclusive ends: k<64 and addr is 2^k-aligned, so last never wraps,
	// even for the upper half [2^63, 2^64).
	last := addr + (sizeForK(k) - 1)
	for _, e := range t.pmas.Entries() {
		eLast := e.Start + (e.Length - 1)
		if addr <= eLast && e.Start <= last {
			return true
		}
	}
	return false
}

func sizeForK(k uint) uint64 {
	if k >= 64 {
		return 0 // caller must special-case k==64 (whole address space)
	}
	return uint64(1) << k
}

// hashRange returns the hash of the subtree covering [addr, addr+2^k),
// for k in [MinLeafLog2, 63]. The root itself (k==64) is handled by Root,
// to sidestep 1<<64 overflow.
func (t *Tree) hashRange(addr uint64, k uint) [32]byte {
	if !t.overlapsAnyPMA(addr, k) {
		return ZeroHash(k)
	}
	switch {
	case k == pageLog2:
		return t.pageHashAt(addr)
	case k < pageLog2:
		return t.withinPageHash(addr, k)
	default:
		half := k - 1
		left := t.hashRange(addr, half)
		right := t.hashRange(addr+sizeForK(half), half)
		return HashPair(left, right)
	}
}

const pageLog2 = 12 // log2(pma.PageSize)

// pageHashAt returns the hash of the full page starting at addr (which
// must be page-aligned and lie in some registered PMA), using the cache
// when the owning entry's dirty bit for that page is clear.
func (t *Tree) pageHashAt(addr uint64) [32]byte {
	e := t.pmas.Find(addr, pma.PageSize)
	if e.IsEmpty() {
		return ZeroHash(pageLog2)
	}
	switch e.Kind {
	case pma.KindMemory:
		relPage := (addr - e.Start) / pma.PageSize
		absPage := addr / pma.PageSize
		if h, ok := t.pageHash[absPage]; ok && !e.IsDirty(relPage) {
			return h
		}
		h := hashBytesRange(e.PageBytes(relPage), pageLog2)
		t.pageHash[absPage] = h
		return h
	case pma.KindDevice:
		var scratch [pma.PageSize]byte
		pristine, ok := e.Driver.Peek(addr-e.Start, scratch[:])
		if !ok {
			return ZeroHash(pageLog2)
		}
		if pristine {
			return ZeroHash(pageLog2)
		}
		return hashBytesRange(scratch[:], pageLog2)
	default:
		return ZeroHash(pageLog2)
	}
}

// withinPageHash returns the hash of a sub-page node of size 2^k (k <
// pageLog2) at addr, which must lie within a single PMA entry.
func (t *Tree) withinPageHash(addr uint64, k uint) [32]byte {
	e := t.pmas.Find(addr, sizeForK(k))
	if e.IsEmpty() {
		return ZeroHash(k)
	}
	pageStart := addr &^ uint64(pma.PageSize-1)
	offsetInPage := addr - pageStart
	switch e.Kind {
	case pma.KindMemory:
		relPage := (pageStart - e.Start) / pma.PageSize
		data := e.PageBytes(relPage)
		return hashBytesRange(data[offsetInPage:offsetInPage+sizeForK(k)], k)
	case pma.KindDevice:
		var scratch [pma.PageSize]byte
		pristine, ok := e.Driver.Peek(pageStart-e.Start, scratch[:])
		if !ok {
			return ZeroHash(k)
		}
		if pristine {
			return ZeroHash(k)
		}
		return hashBytesRange(scratch[offsetInPage:offsetInPage+sizeForK(k)], k)
	default:
		return ZeroHash(k)
	}
}

// Root returns the whole-machine root hash, combining the two halves of
// the address space to avoid computing 1<<64.
func (t *Tree) Root() [32]byte {
	left := t.hashRange(0, 63)
	right := t.hashRange(uint64(1)<<63, 63)
	return HashPair(left, right)
}

// UpdateMerkleTree rehashes every dirty page, clears the dirty bitmaps,
// and refreshes the cached root, per spec.md §4.4: "update_merkle_tree()
// rehashes only pages whose bit is set, then walks up the spine rehashing
// affected inner nodes, then clears the bitmap."
func (t *Tree) UpdateMerkleTree() error {
	err := t.pmas.ForEach(func(e *pma.Entry) error {
		if e.Kind != pma.KindMemory {
			return nil
		}
		pages := e.PageCount()
		for page := uint64(0); page < pages; page++ {
			if !e.IsDirty(page) {
				continue
			}
			absPage := (e.Start / pma.PageSize) + page
			t.pageHash[absPage] = hashBytesRange(e.PageBytes(page), pageLog2)
		}
		e.ClearDirty()
		return nil
	})
	if err != nil {
		return err
	}
	t.root = t.Root()
	t.rootValid = true
	return nil
}

// CachedRootHash returns the root computed by the last UpdateMerkleTree
// call. Panics if UpdateMerkleTree has never run — callers needing a
// root without regard for caching should call Root directly.
func (t *Tree) CachedRootHash() [32]byte {
	if !t.rootValid {
		panic("merkle: CachedRootHash called before any UpdateMerkleTree")
	}
	return t.root
}

// VerifyAll recomputes every page hash from scratch, bypassing the
// pageHash cache entirely, and compares the result to CachedRootHash.
// This is verify_merkle_tree from spec.md §4.4, at full-tree granularity.
func (t *Tree) VerifyAll() error {
	fresh := &Tree{pmas: t.pmas, pageHash: make(map[uint64][32]byte)}
	gotRoot := fresh.Root()
	if !t.rootValid {
		return fmt.Errorf("%w: no cached root to verify against", ErrStateInconsistent)
	}
	if gotRoot != t.root {
		return fmt.Errorf("%w: recomputed root 0x%x != cached root 0x%x", ErrStateInconsistent, gotRoot, t.root)
	}
	return nil
}

// VerifyDirtyOnly rehashes only currently-dirty pages and checks the
// result against the cached root, without clearing dirty bits or
// mutating the tree — a cheaper granularity than VerifyAll, supplementing
// spec.md §4.4 per SPEC_FULL.md §4.4.
func (t *Tree) VerifyDirtyOnly() error {
	scratch := &Tree{pmas: t.pmas, pageHash: make(map[uint64][32]byte)}
	for k, v := range t.pageHash {
		scratch.pageHash[k] = v
	}
	err := t.pmas.ForEach(func(e *pma.Entry) error {
		if e.Kind != pma.KindMemory {
			return nil
		}
		pages := e.PageCount()
		for page := uint64(0); page < pages; page++ {
			if !e.IsDirty(page) {
				continue
			}
			absPage := (e.Start / pma.PageSize) + page
			scratch.pageHash[absPage] = hashBytesRange(e.PageBytes(page), pageLog2)
		}
		return nil
	})
	if err != nil {
		return err
	}
	got := scratch.Root()
	if !t.rootValid {
		return fmt.Errorf("%w: no cached root to verify against", ErrStateInconsistent)
	}
	if got != t.root {
		return fmt.Errorf("%w: dirty-only recompute 0x%x != cached root 0x%x", ErrStateInconsistent, got, t.root)
	}
	return nil
}
