package machine

import (
	"testing"

	"github.com/cartesi-corp/machine-go/pma"
	"github.com/cartesi-corp/machine-go/riscv"
	"github.com/stretchr/testify/require"
)

func TestCSRReadOnlyRegistersRejectWrites(t *testing.T) {
	s := New(&pma.Map{})
	for _, addr := range []uint16{riscv.CsrMisa, riscv.CsrMvendorid, riscv.CsrMarchid, riscv.CsrMimpid, riscv.CsrMhartid, riscv.CsrCycle, riscv.CsrInstret, riscv.CsrTime} {
		ok := s.WriteCSR(addr, 0xFFFFFFFFFFFFFFFF)
		require.Falsef(t, ok, "CSR 0x%x should be read-only", addr)
	}
}

func TestCSRMcycleMinstretRoundTrip(t *testing.T) {
	s := New(&pma.Map{})
	require.True(t, s.WriteCSR(riscv.CsrMcycle, 123))
	require.True(t, s.WriteCSR(riscv.CsrMinstret, 456))

	v, ok := s.ReadCSR(riscv.CsrCycle)
	require.True(t, ok)
	require.Equal(t, uint64(123), v)

	v, ok = s.ReadCSR(riscv.CsrInstret)
	require.True(t, ok)
	require.Equal(t, uint64(456), v)
}

func TestCSRSatpRejectsUnsupportedModeAndInvalidatesTLBOnAccept(t *testing.T) {
	s := New(&pma.Map{})
	s.TLBRead[0] = TLBEntry{PMAIndex: 0, PAddrPage: 0x1000, VAddrPage: 0x1000}

	bogus := uint64(3) << 60 // mode 3 is reserved
	require.True(t, s.WriteCSR(riscv.CsrSatp, bogus))
	require.Equal(t, uint64(0), s.CSR.Satp, "unsupported mode leaves satp unchanged")
	require.Equal(t, 0, s.TLBRead[0].PMAIndex, "rejected write must not flush TLBs")

	sv39 := uint64(riscv.SatpModeSv39) << 60
	require.True(t, s.WriteCSR(riscv.CsrSatp, sv39))
	require.Equal(t, sv39, s.CSR.Satp)
	require.Equal(t, -1, s.TLBRead[0].PMAIndex, "accepted mode change must flush TLBs")
}

func TestCSRMieMipUpdateBrk(t *testing.T) {
	s := New(&pma.Map{})
	require.False(t, s.Brk)

	require.True(t, s.WriteCSR(riscv.CsrMie, 1<<riscv.IntSTI))
	require.True(t, s.WriteCSR(riscv.CsrMip, 1<<riscv.IntSTI))
	require.True(t, s.Brk)
}

func TestCSRSieIsRestrictedByMideleg(t *testing.T) {
	s := New(&pma.Map{})
	require.True(t, s.WriteCSR(riscv.CsrMideleg, 1<<riscv.IntSTI))
	require.True(t, s.WriteCSR(riscv.CsrSie, (1<<riscv.IntSTI)|(1<<riscv.IntMTI)))

	v, ok := s.ReadCSR(riscv.CsrSie)
	require.True(t, ok)
	require.Equal(t, uint64(1<<riscv.IntSTI), v, "MTI is not delegated, so sie must not reflect it")
}

func TestCSRUnknownAddressIsUnimplemented(t *testing.T) {
	s := New(&pma.Map{})
	_, ok := s.ReadCSR(0x7FF)
	require.False(t, ok)
	ok = s.WriteCSR(0x7FF, 1)
	require.False(t, ok)
}

func TestCSRMepcClearsLowBit(t *testing.T) {
	s := New(&pma.Map{})
	require.True(t, s.WriteCSR(riscv.CsrMepc, 0x1001))
	v, _ := s.ReadCSR(riscv.CsrMepc)
	require.Equal(t, uint64(0x1000), v)
}
