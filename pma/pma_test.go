package pma

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsOverlap(t *testing.T) {
	m := &Map{}
	a, err := NewMemory(0, PageSize, FlagR|FlagW)
	require.NoError(t, err)
	require.NoError(t, m.Register(a))

	b, err := NewMemory(0, 2*PageSize, FlagR|FlagW)
	require.NoError(t, err)
	err = m.Register(b)
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestRegisterKeepsStartOrder(t *testing.T) {
	m := &Map{}
	second, err := NewMemory(2*PageSize, PageSize, FlagR)
	require.NoError(t, err)
	first, err := NewMemory(0, PageSize, FlagR)
	require.NoError(t, err)
	require.NoError(t, m.Register(second))
	require.NoError(t, m.Register(first))

	entries := m.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, uint64(0), entries[0].Start)
	require.Equal(t, 2*uint64(PageSize), entries[1].Start)
}

func TestFindReturnsEmptyOnMiss(t *testing.T) {
	m := &Map{}
	e, err := NewMemory(0x1000, PageSize, FlagR)
	require.NoError(t, err)
	require.NoError(t, m.Register(e))

	got := m.Find(0x5000, 8)
	require.True(t, got.IsEmpty())
}

func TestFindReturnsContainingEntry(t *testing.T) {
	m := &Map{}
	e, err := NewMemory(0x1000, 2*PageSize, FlagR)
	require.NoError(t, err)
	require.NoError(t, m.Register(e))

	got := m.Find(0x1000+10, 4)
	require.False(t, got.IsEmpty())
	require.Equal(t, uint64(0x1000), got.Start)

	// A request that straddles the end of the range should miss.
	strad := m.Find(e.Start+e.Length-2, 4)
	require.True(t, strad.IsEmpty())
}

func TestDirtyBitLifecycle(t *testing.T) {
	e, err := NewMemory(0, 2*PageSize, FlagR|FlagW)
	require.NoError(t, err)
	require.False(t, e.IsDirty(0))
	require.False(t, e.IsDirty(1))

	e.MarkDirty(PageSize + 5)
	require.False(t, e.IsDirty(0))
	require.True(t, e.IsDirty(1))

	e.ClearDirty()
	require.False(t, e.IsDirty(1))
}

func TestNewMemoryRejectsUnalignedRange(t *testing.T) {
	_, err := NewMemory(1, PageSize, FlagR)
	require.ErrorIs(t, err, ErrConfigInvalid)

	_, err = NewMemory(0, PageSize+1, FlagR)
	require.ErrorIs(t, err, ErrConfigInvalid)

	_, err = NewMemory(0, 0, FlagR)
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestReplaceMemoryRangePreservesFlags(t *testing.T) {
	m := &Map{}
	e, err := NewMemory(0, PageSize, FlagR|FlagW|FlagX)
	require.NoError(t, err)
	require.NoError(t, m.Register(e))

	data := make([]byte, PageSize)
	data[0] = 0x42
	require.NoError(t, m.ReplaceMemoryRange(0, PageSize, data))

	got := m.Find(0, 1)
	require.Equal(t, uint32(FlagR|FlagW|FlagX), got.Flags)
	require.Equal(t, byte(0x42), got.Data[0])
}
