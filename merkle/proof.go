package merkle

import "fmt"

// Proof is a Merkle inclusion proof for a 2^k-aligned range, per spec.md
// §4.4: "get_proof(address, log2_size) returns the target hash, the root
// hash, and the sibling hash at every level from target to root."
type Proof struct {
	Target   [32]byte
	Root     [32]byte
	Siblings [][32]byte // leaf-to-root order
}

// GetProof builds a Proof for the 2^k-aligned range starting at addr, for
// 3 <= k <= 64. Returns ErrOutOfRange if addr is not 2^k-aligned or k is
// out of bounds.
func (t *Tree) GetProof(addr uint64, k uint) (*Proof, error) {
	if k < MinLeafLog2 || k > MaxLog2 {
		return nil, fmt.Errorf("%w: log2_size %d outside [%d,%d]", ErrOutOfRange, k, MinLeafLog2, MaxLog2)
	}
	if k < 64 && addr&(sizeForK(k)-1) != 0 {
		return nil, fmt.Errorf("%w: address 0x%x not aligned to 2^%d", ErrOutOfRange, addr, k)
	}
	if k == 64 && addr != 0 {
		return nil, fmt.Errorf("%w: address 0x%x must be zero for log2_size 64", ErrOutOfRange, addr)
	}

	// Walk top-down from the whole address space (level 64) to the
	// target's level, at each step picking the child containing addr and
	// recording the hash of its sibling. rightStart(level) is the start
	// address of the right child of the node at that level which
	// contains addr; level 64's "node" is the whole space and its right
	// child starts at 2^63, sidestepping any need to compute 2^64.
	siblings := make([][32]byte, 0, MaxLog2-k)
	for level := uint(MaxLog2); level > k; level-- {
		var rightStart uint64
		if level == MaxLog2 {
			rightStart = uint64(1) << 63
		} else {
			parentStart := addr &^ (sizeForK(level) - 1)
			rightStart = parentStart + sizeForK(level-1)
		}
		if addr < rightStart {
			siblings = append(siblings, t.hashOfNode(rightStart, level-1))
		} else {
			leftStart := rightStart - sizeForK(level-1)
			siblings = append(siblings, t.hashOfNode(leftStart, level-1))
		}
	}

	// Collected root-to-leaf; reverse into leaf-to-root order.
	for i, j := 0, len(siblings)-1; i < j; i, j = i+1, j-1 {
		siblings[i], siblings[j] = siblings[j], siblings[i]
	}

	target := t.hashOfNode(addr, k)
	return &Proof{Target: target, Root: t.Root(), Siblings: siblings}, nil
}

// hashOfNode hashes the node covering [addr, addr+2^level), handling the
// level==64 whole-space case the same way Root does.
func (t *Tree) hashOfNode(addr uint64, level uint) [32]byte {
	if level == MaxLog2 {
		return t.Root()
	}
	return t.hashRange(addr, level)
}

// ComputeRootFromProof recomputes the root implied by a leaf hash and its
// leaf-to-root sibling path, without any Tree or machine state. This is
// the verifier-side primitive: an external verifier holding only
// (address, log2_size, leaf_hash, siblings, claimed_root) can check
// ComputeRootFromProof(...) == claimed_root, exactly per spec.md §1's
// "external verifier... replays it without access to any other emulator
// state."
func ComputeRootFromProof(addr uint64, k uint, leafHash [32]byte, siblings [][32]byte) [32]byte {
	cur := leafHash
	level := k
	for _, sib := range siblings {
		var rightStart uint64
		if level == MaxLog2-1 {
			rightStart = uint64(1) << 63
		} else {
			parentStart := addr &^ (sizeForK(level+1) - 1)
			rightStart = parentStart + sizeForK(level)
		}
		if addr < rightStart {
			cur = HashPair(cur, sib)
		} else {
			cur = HashPair(sib, cur)
		}
		level++
	}
	return cur
}

// VerifyProof checks that p is internally consistent: folding Target up
// through Siblings yields Root.
func VerifyProof(addr uint64, k uint, p *Proof) bool {
	got := ComputeRootFromProof(addr, k, p.Target, p.Siblings)
	return got == p.Root
}
