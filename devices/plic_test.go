package devices

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPLICAssertedRequiresEnabledPendingAboveThreshold(t *testing.T) {
	p := NewPLIC()
	require.False(t, p.Asserted())

	p.SetPending(5, true)
	require.False(t, p.Asserted(), "not yet enabled")

	p.Write(plicEnableBase, 2, 1<<5)
	require.False(t, p.Asserted(), "priority 0 does not exceed threshold 0")

	p.Write(plicPriorityBase+5*4, 2, 1)
	require.True(t, p.Asserted())

	p.Write(plicThresholdBase, 2, 1)
	require.False(t, p.Asserted(), "priority no longer exceeds raised threshold")
}

func TestPLICSetPendingIgnoresSourceZero(t *testing.T) {
	p := NewPLIC()
	p.SetPending(0, true)
	p.Write(plicEnableBase, 2, 0xFFFFFFFF)
	p.Write(plicPriorityBase, 2, 1) // source 0's priority slot
	require.False(t, p.Asserted())
}

func TestPLICReadWriteRoundTrip(t *testing.T) {
	p := NewPLIC()
	ok := p.Write(plicPriorityBase+3*4, 2, 7)
	require.True(t, ok)
	v, ok := p.Read(plicPriorityBase+3*4, 2)
	require.True(t, ok)
	require.Equal(t, uint64(7), v)
}

func TestPLICRejectsMisalignedAccess(t *testing.T) {
	p := NewPLIC()
	_, ok := p.Read(plicThresholdBase, 3) // wrong size
	require.False(t, ok)
	_, ok = p.Read(plicThresholdBase+1, 2) // unaligned
	require.False(t, ok)
}
