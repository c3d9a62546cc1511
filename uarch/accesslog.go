package uarch

import (
	"github.com/cartesi-corp/machine-go/merkle"
	"github.com/cartesi-corp/machine-go/pma"
)

// AccessKind distinguishes a read from a write in the access log.
type AccessKind uint8

const (
	AccessRead AccessKind = iota
	AccessWrite
)

// Access is one typed touch of big-machine state, per spec.md §4.5:
// "{kind, address, log2_size, value_before, value_after, sibling_hashes}".
// ValueAfter equals ValueBefore for a read.
type Access struct {
	Kind         AccessKind
	Address      uint64
	Log2Size     uint
	ValueBefore  uint64
	ValueAfter   uint64
	Siblings     [][32]byte
}

// Log is the ordered access log produced by one recorded uarch step.
type Log []Access

// Recorder intercepts every big-machine read/write the uarch program
// performs and appends a proof-carrying Access, exactly the role
// InstrumentedState.trackMemAccess/verifyMemChange play in the teacher,
// generalized from "memory only" to "any byte range in the big PMA map".
type Recorder struct {
	pmas *pma.Map
	tree *merkle.Tree
	log  Log
}

// NewRecorder wraps bigPMAs, building a fresh Tree so proofs it captures
// are self-consistent with the pre-step state.
func NewRecorder(bigPMAs *pma.Map) *Recorder {
	return &Recorder{pmas: bigPMAs, tree: merkle.New(bigPMAs)}
}

// PreRoot returns the big machine's root hash before any access this
// Recorder has made.
func (r *Recorder) PreRoot() [32]byte { return r.tree.Root() }

// Log returns the accesses recorded so far, in order.
func (r *Recorder) Log() Log { return r.log }

// ReadBig reads a 2^log2Size-byte little-endian value at addr from the
// big machine's memory, recording a Read access with the current
// inclusion proof.
func (r *Recorder) ReadBig(addr uint64, log2Size uint) (uint64, error) {
	value, err := readBytes(r.pmas, addr, log2Size)
	if err != nil {
		return 0, err
	}
	proof, err := r.tree.GetProof(addr, uint(log2Size))
	if err != nil {
		return 0, err
	}
	r.log = append(r.log, Access{
		Kind: AccessRead, Address: addr, Log2Size: log2Size,
		ValueBefore: value, ValueAfter: value, Siblings: proof.Siblings,
	})
	return value, nil
}

// WriteBig writes value at addr in the big machine's memory, recording a
// Write access whose sibling path is captured before the mutation (the
// siblings of the node being replaced are, by definition, untouched by
// replacing that node itself).
func (r *Recorder) WriteBig(addr uint64, log2Size uint, value uint64) error {
	before, err := readBytes(r.pmas, addr, log2Size)
	if err != nil {
		return err
	}
	proof, err := r.tree.GetProof(addr, uint(log2Size))
	if err != nil {
		return err
	}
	if err := writeBytes(r.pmas, addr, log2Size, value); err != nil {
		return err
	}
	r.log = append(r.log, Access{
		Kind: AccessWrite, Address: addr, Log2Size: log2Size,
		ValueBefore: before, ValueAfter: value, Siblings: proof.Siblings,
	})
	return nil
}

func readBytes(pmas *pma.Map, addr uint64, log2Size uint) (uint64, error) {
	size := uint64(1) << log2Size
	e := pmas.Find(addr, size)
	if e.IsEmpty() || e.Kind != pma.KindMemory {
		return 0, merkle.ErrOutOfRange
	}
	off := addr - e.Start
	var v uint64
	for i := uint64(0); i < size && i < 8; i++ {
		v |= uint64(e.Data[off+i]) << (8 * i)
	}
	return v, nil
}

func writeBytes(pmas *pma.Map, addr uint64, log2Size uint, value uint64) error {
	size := uint64(1) << log2Size
	e := pmas.Find(addr, size)
	if e.IsEmpty() || e.Kind != pma.KindMemory {
		return merkle.ErrOutOfRange
	}
	off := addr - e.Start
	for i := uint64(0); i < size; i++ {
		var b byte
		if i < 8 {
			b = byte(value >> (8 * i))
		}
		e.Data[off+i] = b
	}
	e.MarkDirty(addr)
	return nil
}
