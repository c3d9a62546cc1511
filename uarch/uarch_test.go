package uarch

import (
	"testing"

	"github.com/cartesi-corp/machine-go/pma"
	"github.com/stretchr/testify/require"
)

func newProg(t *testing.T, words []uint32) *pma.Map {
	t.Helper()
	e, err := pma.NewMemory(0, 4096, pma.FlagR|pma.FlagW|pma.FlagX)
	require.NoError(t, err)
	for i, w := range words {
		off := i * 4
		e.Data[off] = byte(w)
		e.Data[off+1] = byte(w >> 8)
		e.Data[off+2] = byte(w >> 16)
		e.Data[off+3] = byte(w >> 24)
	}
	m := &pma.Map{}
	require.NoError(t, m.Register(e))
	return m
}

func newBig(t *testing.T) *pma.Map {
	t.Helper()
	e, err := pma.NewMemory(0, 4096, pma.FlagR|pma.FlagW)
	require.NoError(t, err)
	m := &pma.Map{}
	require.NoError(t, m.Register(e))
	return m
}

// addi x1, x0, imm ; system (halt)
func addiHalt(rd uint32, imm int32) []uint32 {
	addi := uint32(imm)<<20 | 0<<15 | 0<<12 | rd<<7 | uOpImm
	halt := uint32(uSystem)
	return []uint32{addi, halt}
}

func TestStepAddImmThenHalt(t *testing.T) {
	prog := newProg(t, addiHalt(1, 42))
	big := newBig(t)
	u := New(0)
	rec := NewRecorder(big)

	for !u.Halted {
		require.NoError(t, Step(u, prog, rec))
	}
	require.Equal(t, uint64(42), u.ReadX(1))
	require.Equal(t, uint64(2), u.Cycle)
}

func TestStepLoadStoreRecordsAccessesInOrder(t *testing.T) {
	// lw-equivalent (ld) x1, 0(x0); addi x2,x1,1; sd x2,8(x0); halt
	ld := uint32(0)<<20 | 0<<15 | 3<<12 | 1<<7 | uLoad
	addi := uint32(1)<<20 | 1<<15 | 0<<12 | 2<<7 | uOpImm
	sd := (uint32(8)>>5)<<25 | 2<<20 | 0<<15 | 3<<12 | (uint32(8)&0x1f)<<7 | uStore
	halt := uint32(uSystem)
	prog := newProg(t, []uint32{ld, addi, sd, halt})
	big := newBig(t)

	u := New(0)
	rec := NewRecorder(big)
	for !u.Halted {
		require.NoError(t, Step(u, prog, rec))
	}
	log := rec.Log()
	require.Len(t, log, 2)
	require.Equal(t, AccessRead, log[0].Kind)
	require.Equal(t, AccessWrite, log[1].Kind)
	require.Equal(t, uint64(1), log[1].ValueAfter)
	require.Equal(t, uint64(8), log[1].Address)
}

func TestLogStepThenVerifyStepLogRoundTrips(t *testing.T) {
	sd := (uint32(16)>>5)<<25 | 1<<20 | 0<<15 | 3<<12 | (uint32(16)&0x1f)<<7 | uStore
	prog := newProg(t, []uint32{
		uint32(7)<<20 | 0<<15 | 0<<12 | 1<<7 | uOpImm, // addi x1,x0,7
		sd,
		uint32(uSystem),
	})
	big := newBig(t)

	u := New(0)
	log, preRoot, postRoot, err := LogStep(u, prog, big)
	require.NoError(t, err)
	require.True(t, u.Halted)
	require.NotEqual(t, preRoot, postRoot)

	got, err := VerifyStepLog(preRoot, log)
	require.NoError(t, err)
	require.Equal(t, postRoot, got)

	require.NoError(t, VerifyStepStateTransition(preRoot, log, postRoot))
}

func TestVerifyStepStateTransitionRejectsTamperedValue(t *testing.T) {
	sd := (uint32(16)>>5)<<25 | 1<<20 | 0<<15 | 3<<12 | (uint32(16)&0x1f)<<7 | uStore
	prog := newProg(t, []uint32{
		uint32(7)<<20 | 0<<15 | 0<<12 | 1<<7 | uOpImm,
		sd,
		uint32(uSystem),
	})
	big := newBig(t)
	u := New(0)
	log, preRoot, postRoot, err := LogStep(u, prog, big)
	require.NoError(t, err)

	tampered := make(Log, len(log))
	copy(tampered, log)
	tampered[len(tampered)-1].ValueAfter++

	err = VerifyStepStateTransition(preRoot, tampered, postRoot)
	require.ErrorIs(t, err, ErrLogMismatch)
}

func TestVerifyStepStateTransitionRejectsTamperedPostRoot(t *testing.T) {
	prog := newProg(t, addiHalt(1, 1))
	big := newBig(t)
	u := New(0)
	log, preRoot, postRoot, err := LogStep(u, prog, big)
	require.NoError(t, err)

	bad := postRoot
	bad[0] ^= 0xFF
	err = VerifyStepStateTransition(preRoot, log, bad)
	require.ErrorIs(t, err, ErrLogMismatch)
}

func TestLogStepReturnsErrorWhenProgramNeverHalts(t *testing.T) {
	// JAL x0, 0: infinite loop, never reaches uSystem.
	jal := uint32(uJal)
	prog := newProg(t, []uint32{jal})
	big := newBig(t)
	u := New(0)
	_, _, _, err := LogStep(u, prog, big)
	require.Error(t, err)
}

func TestLogResetThenVerifyResetLogRoundTrips(t *testing.T) {
	big := newBig(t)
	u := &State{PC: 999, Cycle: 5, Halted: true}
	image := make([]byte, 16)
	image[0] = 0xAA
	image[8] = 0xBB

	log, preRoot, postRoot, err := LogReset(u, big, image, 0x1000)
	require.NoError(t, err)
	require.False(t, u.Halted)
	require.Equal(t, uint64(0x1000), u.PC)
	require.Equal(t, uint64(0), u.Cycle)

	require.NoError(t, VerifyResetLog(preRoot, log, postRoot))
}
