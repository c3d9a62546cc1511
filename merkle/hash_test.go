package merkle

import "testing"

func TestZeroHashesAreConsistent(t *testing.T) {
	for k := uint(MinLeafLog2 + 1); k <= MaxLog2; k++ {
		want := HashPair(ZeroHash(k-1), ZeroHash(k-1))
		if got := ZeroHash(k); got != want {
			t.Fatalf("ZeroHash(%d) = %x, want HashPair(ZeroHash(%d), ZeroHash(%d)) = %x", k, got, k-1, k-1, want)
		}
	}
}

func TestHashValueZeroMatchesZeroHash(t *testing.T) {
	for _, k := range []uint{3, 4, 6, 12} {
		if got := HashValue(0, k); got != ZeroHash(k) {
			t.Fatalf("HashValue(0, %d) = %x, want ZeroHash(%d) = %x", k, got, k, ZeroHash(k))
		}
	}
}

func TestHashValueDistinguishesValues(t *testing.T) {
	a := HashValue(1, 3)
	b := HashValue(2, 3)
	if a == b {
		t.Fatalf("HashValue(1,3) and HashValue(2,3) collided")
	}
}

func TestHashPairOrderMatters(t *testing.T) {
	a := HashValue(1, 3)
	b := HashValue(2, 3)
	if HashPair(a, b) == HashPair(b, a) {
		t.Fatalf("HashPair should not be commutative")
	}
}
