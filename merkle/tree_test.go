package merkle

import (
	"testing"

	"github.com/cartesi-corp/machine-go/pma"
	"github.com/stretchr/testify/require"
)

func newTestPMAs(t *testing.T, start, length uint64) *pma.Map {
	t.Helper()
	m := &pma.Map{}
	e, err := pma.NewMemory(start, length, pma.FlagR|pma.FlagW)
	require.NoError(t, err)
	require.NoError(t, m.Register(e))
	return m
}

func TestRootOfEmptyMapIsZeroHash64(t *testing.T) {
	m := &pma.Map{}
	tree := New(m)
	require.Equal(t, ZeroHash(MaxLog2), tree.Root())
}

func TestUpdateMerkleTreeThenVerifyAll(t *testing.T) {
	m := newTestPMAs(t, 0, 4*pma.PageSize)
	e := m.Entries()[0]
	e.Data[0] = 0xAB
	e.MarkDirty(0)
	e.Data[3*pma.PageSize+10] = 0xCD
	e.MarkDirty(3 * pma.PageSize)

	tree := New(m)
	require.NoError(t, tree.UpdateMerkleTree())
	require.NoError(t, tree.VerifyAll())
	require.NoError(t, tree.VerifyDirtyOnly())

	for i := range e.Dirty {
		require.Zero(t, e.Dirty[i], "ClearDirty should have reset every dirty bit")
	}
}

func TestVerifyAllDetectsCorruption(t *testing.T) {
	m := newTestPMAs(t, 0, pma.PageSize)
	e := m.Entries()[0]
	e.Data[0] = 1
	e.MarkDirty(0)

	tree := New(m)
	require.NoError(t, tree.UpdateMerkleTree())

	// Mutate memory behind the tree's back, without marking dirty, so the
	// page-hash cache goes stale relative to backing storage.
	e.Data[0] = 2

	err := tree.VerifyAll()
	require.ErrorIs(t, err, ErrStateInconsistent)
}

func TestCachedRootHashPanicsBeforeUpdate(t *testing.T) {
	m := newTestPMAs(t, 0, pma.PageSize)
	tree := New(m)
	require.Panics(t, func() { tree.CachedRootHash() })
}

func TestRootChangesOnWrite(t *testing.T) {
	m := newTestPMAs(t, 0, pma.PageSize)
	tree := New(m)
	before := tree.Root()

	e := m.Entries()[0]
	e.Data[100] = 0x42
	e.MarkDirty(0)

	after := tree.Root()
	require.NotEqual(t, before, after)
}
