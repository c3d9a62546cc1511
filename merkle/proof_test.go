package merkle

import (
	"testing"

	"github.com/cartesi-corp/machine-go/pma"
	"github.com/stretchr/testify/require"
)

func TestGetProofRoundTripsAtSeveralGranularities(t *testing.T) {
	m := &pma.Map{}
	e, err := pma.NewMemory(0, 4*pma.PageSize, pma.FlagR|pma.FlagW)
	require.NoError(t, err)
	require.NoError(t, m.Register(e))
	for i := range e.Data {
		e.Data[i] = byte(i)
	}

	tree := New(m)

	for _, tc := range []struct {
		addr uint64
		k    uint
	}{
		{0, 3},
		{8, 3},
		{pma.PageSize, 3},
		{0, pageLog2},
		{pma.PageSize, pageLog2},
		{0, 20},
		{0, 64},
	} {
		p, err := tree.GetProof(tc.addr, tc.k)
		require.NoErrorf(t, err, "GetProof(0x%x, %d)", tc.addr, tc.k)
		require.Equal(t, tree.Root(), p.Root)
		require.True(t, VerifyProof(tc.addr, tc.k, p), "VerifyProof(0x%x, %d)", tc.addr, tc.k)
		require.Equal(t, p.Root, ComputeRootFromProof(tc.addr, tc.k, p.Target, p.Siblings))
	}
}

func TestGetProofRejectsMisalignedOrOutOfRangeK(t *testing.T) {
	m := &pma.Map{}
	tree := New(m)

	_, err := tree.GetProof(1, 3) // not 8-byte aligned
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = tree.GetProof(0, 2) // below MinLeafLog2
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = tree.GetProof(0, 65) // above MaxLog2
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = tree.GetProof(8, 64) // k==64 requires addr==0
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestVerifyProofRejectsTamperedSibling(t *testing.T) {
	m := &pma.Map{}
	e, err := pma.NewMemory(0, pma.PageSize, pma.FlagR|pma.FlagW)
	require.NoError(t, err)
	require.NoError(t, m.Register(e))
	e.Data[0] = 7

	tree := New(m)
	p, err := tree.GetProof(0, 3)
	require.NoError(t, err)
	require.True(t, VerifyProof(0, 3, p))

	p.Siblings[0][0] ^= 0xFF
	require.False(t, VerifyProof(0, 3, p))
}

func TestVerifyProofRejectsTamperedTarget(t *testing.T) {
	m := &pma.Map{}
	e, err := pma.NewMemory(0, pma.PageSize, pma.FlagR|pma.FlagW)
	require.NoError(t, err)
	require.NoError(t, m.Register(e))

	tree := New(m)
	p, err := tree.GetProof(8, 3)
	require.NoError(t, err)
	p.Target[0] ^= 1
	require.False(t, VerifyProof(8, 3, p))
}

func TestGetProofOverZeroRangeMatchesZeroHash(t *testing.T) {
	m := &pma.Map{}
	tree := New(m)
	p, err := tree.GetProof(0x1000000000, 3)
	require.NoError(t, err)
	require.Equal(t, ZeroHash(3), p.Target)
	require.Equal(t, ZeroHash(MaxLog2), p.Root)
}
