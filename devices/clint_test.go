package devices

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClintTimerPending(t *testing.T) {
	mcycle := uint64(0)
	c := NewCLINT(1000, func() uint64 { return mcycle })

	require.False(t, c.TimerPending())
	mcycle = 1000 * RTCFreqDivisor
	require.True(t, c.TimerPending())
}

func TestClintMSIPReadWrite(t *testing.T) {
	c := NewCLINT(0, func() uint64 { return 0 })
	require.False(t, c.MSIP())

	ok := c.Write(ClintMSIP0, 3, 1)
	require.True(t, ok)
	require.True(t, c.MSIP())

	v, ok := c.Read(ClintMSIP0, 3)
	require.True(t, ok)
	require.Equal(t, uint64(1), v)
}

func TestClintMTimeIsReadOnly(t *testing.T) {
	c := NewCLINT(0, func() uint64 { return 100 * RTCFreqDivisor })
	ok := c.Write(ClintMTime, 3, 42)
	require.False(t, ok)

	v, ok := c.Read(ClintMTime, 3)
	require.True(t, ok)
	require.Equal(t, uint64(100), v)
}

func TestClintRejectsMisalignedAccess(t *testing.T) {
	c := NewCLINT(0, func() uint64 { return 0 })
	_, ok := c.Read(ClintMTimeCmp, 2) // wrong size
	require.False(t, ok)
	_, ok = c.Read(ClintMTimeCmp+1, 3) // unaligned
	require.False(t, ok)
}

func TestClintPeekPlacesRegistersAtFixedOffsets(t *testing.T) {
	c := NewCLINT(7, func() uint64 { return 0 })
	c.Write(ClintMSIP0, 3, 1)

	var scratch [4096]byte
	pristine, ok := c.Peek(0, scratch[:])
	require.True(t, ok)
	require.False(t, pristine, "ClintMSIP0 falls inside page 0 and is always placed")
	require.Equal(t, byte(1), scratch[ClintMSIP0])

	// A page far from any register offset carries no placed bytes and
	// reports pristine.
	pristine, ok = c.Peek(1<<20, scratch[:])
	require.True(t, ok)
	require.True(t, pristine)
}
