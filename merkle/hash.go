// Package merkle implements the paged, sparse Merkle tree over the full
// 64-bit physical address space described in spec.md §4.4: a binary tree
// whose leaves bottom out at an 8-byte ("k=3") granularity, letting
// get_proof serve any 2^k-aligned range with 3<=k<=64, while page-level
// (k=12) hashes are cached and only recomputed for pages a PMA's dirty
// bitmap marks written.
//
// Grounded on rvgo/fast/memory.go (page map + MerkleRoot) and
// rvgo/fast/radix.go (precomputed zeroHashes, HashPair), generalized from
// the teacher's single flat address space (backed by one Memory) to the
// PMA map's several disjoint typed ranges.
package merkle

import "github.com/ethereum/go-ethereum/crypto"

// HashPair computes the inner-node hash H(left || right). Keccak-256 via
// go-ethereum/crypto, the same call rvgo/fast/memory.go makes.
func HashPair(left, right [32]byte) [32]byte {
	return crypto.Keccak256Hash(left[:], right[:])
}

// hashLeaf hashes a raw byte range at the finest granularity (2^3 = 8
// bytes), per spec.md §8 scenario 5: "get_proof(A, 3) returns a proof
// whose leaf hash equals keccak256(word_bytes)".
func hashLeaf(data []byte) [32]byte {
	return crypto.Keccak256Hash(data)
}

// MinLeafLog2 and MaxLog2 bound the node sizes spec.md's get_proof
// supports.
const (
	MinLeafLog2 = 3
	MaxLog2     = 64
)

// zeroHashes[k] is the hash of a pristine (all-zero) subtree covering
// 2^k bytes, for k in [MinLeafLog2, MaxLog2]. Precomputed once, exactly
// as rvgo/fast/radix.go precomputes its own zeroHashes table.
var zeroHashes = func() [MaxLog2 + 1][32]byte {
	var out [MaxLog2 + 1][32]byte
	var zeroLeaf [1 << MinLeafLog2]byte
	out[MinLeafLog2] = hashLeaf(zeroLeaf[:])
	for k := MinLeafLog2 + 1; k <= MaxLog2; k++ {
		out[k] = HashPair(out[k-1], out[k-1])
	}
	return out
}()

// ZeroHash returns the precomputed pristine-subtree hash for a node
// covering 2^k bytes.
func ZeroHash(k uint) [32]byte { return zeroHashes[k] }

// HashValue hashes a little-endian integer value occupying the low bytes
// of a conceptual 2^k-byte node, zero-padded above its natural width.
// Used by uarch's access log to turn a typed access's value_before/
// value_after into the leaf hash ComputeRootFromProof needs, without
// requiring the verifier to hold any machine memory.
func HashValue(value uint64, k uint) [32]byte {
	buf := make([]byte, uint64(1)<<k)
	for i := 0; i < 8 && i < len(buf); i++ {
		buf[i] = byte(value >> (8 * i))
	}
	return hashBytesRange(buf, k)
}

// hashBytesRange recursively Merkleizes a byte slice of exactly 2^k bytes
// down to MinLeafLog2-sized leaves.
func hashBytesRange(data []byte, k uint) [32]byte {
	if k == MinLeafLog2 {
		return hashLeaf(data)
	}
	half := len(data) / 2
	left := hashBytesRange(data[:half], k-1)
	right := hashBytesRange(data[half:], k-1)
	return HashPair(left, right)
}
