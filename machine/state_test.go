package machine

import (
	"testing"

	"github.com/cartesi-corp/machine-go/pma"
	"github.com/stretchr/testify/require"
)

func TestNewStateHasInvalidTLBsAndRV64GCMisa(t *testing.T) {
	s := New(&pma.Map{})
	for _, tlb := range [][TLBSize]TLBEntry{s.TLBRead, s.TLBWrite, s.TLBCode} {
		for _, e := range tlb {
			require.Equal(t, -1, e.PMAIndex)
			require.Equal(t, InvalidVAddr, e.VAddrPage)
		}
	}
	require.Equal(t, uint64(2)<<62, s.CSR.Misa&(uint64(3)<<62), "MXL field should encode RV64")
}

func TestWriteXHardwiresX0(t *testing.T) {
	s := New(&pma.Map{})
	s.WriteX(0, 0xDEADBEEF)
	require.Equal(t, uint64(0), s.ReadX(0))

	s.WriteX(5, 42)
	require.Equal(t, uint64(42), s.ReadX(5))
}

func TestIFlagsPackUnpackRoundTrip(t *testing.T) {
	f := IFlags{PRV: 1, I: true, Y: true} // PRV=1 is supervisor mode
	got := UnpackIFlags(f.Pack())
	require.Equal(t, f, got)
}

func TestRecomputeBrk(t *testing.T) {
	s := New(&pma.Map{})
	require.False(t, s.Brk)

	s.CSR.Mip = 1 << 7 // MTI
	s.CSR.Mie = 1 << 7
	s.UpdateBrkFromMipMie()
	require.True(t, s.Brk)

	s.CSR.Mie = 0
	s.UpdateBrkFromMipMie()
	require.False(t, s.Brk)

	s.IFlags.Y = true
	s.UpdateBrkFromIFlags()
	require.True(t, s.Brk)
}

func TestInvalidateTLBs(t *testing.T) {
	s := New(&pma.Map{})
	s.TLBRead[0] = TLBEntry{PMAIndex: 0, PAddrPage: 0x1000, VAddrPage: 0x1000}
	s.InvalidateTLBs()
	require.Equal(t, -1, s.TLBRead[0].PMAIndex)
}
