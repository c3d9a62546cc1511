package devices

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTIFHaltCommand(t *testing.T) {
	h := NewHTIF(0, 0)
	require.False(t, h.Halted())

	// device=0 cmd=0 payload=1 (LSB set) requests halt.
	ok := h.Write(HTIFToHost, 3, 1)
	require.True(t, ok)
	require.True(t, h.Halted())
	require.Equal(t, uint64(1), h.ToHost())
}

func TestHTIFPutcharWritesConsole(t *testing.T) {
	var out bytes.Buffer
	h := NewInteractiveHTIF(0, 0, strings.NewReader(""), &out)

	value := (uint64(1) << htifDeviceShift) | (uint64(1) << htifCmdShift) | uint64('A')
	ok := h.Write(HTIFToHost, 3, value)
	require.True(t, ok)
	require.Equal(t, "A", out.String())
	require.Equal(t, uint64(0), h.ToHost())
}

func TestHTIFGetcharDoesNotDeliverSynchronously(t *testing.T) {
	h := NewHTIF(0, 0)
	value := (uint64(1) << htifDeviceShift) | (uint64(0) << htifCmdShift)
	ok := h.Write(HTIFToHost, 3, value)
	require.True(t, ok)
	require.False(t, h.FromHostPending())
}

func TestHTIFDeliverConsoleByteSetsPending(t *testing.T) {
	h := NewHTIF(0, 0)
	h.DeliverConsoleByte('z')
	require.True(t, h.FromHostPending())

	v, ok := h.Read(HTIFFromHost, 3)
	require.True(t, ok)
	require.Equal(t, byte('z'), byte(v))

	// Writing fromhost (guest consuming it) clears pending.
	ok = h.Write(HTIFFromHost, 3, 0)
	require.True(t, ok)
	require.False(t, h.FromHostPending())
}

func TestHTIFPollRespectsDivisorAndPending(t *testing.T) {
	h := NewInteractiveHTIF(0, 0, strings.NewReader("x"), &bytes.Buffer{})
	for i := 0; i < HTIFInteractDivisor-1; i++ {
		h.Poll()
		require.False(t, h.FromHostPending())
	}
	h.Poll()
	require.True(t, h.FromHostPending())
}

func TestHTIFUnrecognizedCommandAcksOnly(t *testing.T) {
	h := NewHTIF(0, 0)
	value := (uint64(5) << htifDeviceShift) | (uint64(9) << htifCmdShift) | 123
	ok := h.Write(HTIFToHost, 3, value)
	require.True(t, ok)
	require.Equal(t, uint64(0), h.ToHost())
	require.False(t, h.Halted())
}
