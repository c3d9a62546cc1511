package uarch

import (
	"fmt"

	"github.com/cartesi-corp/machine-go/merkle"
	"github.com/cartesi-corp/machine-go/pma"
)

// LogReset restores u to its initial state and records the reset as an
// access log against uarchPMAs (the micro-machine's own program+ram
// range, which is itself Merkle-addressed so a verifier can check the
// reset without trusting the prover), per spec.md §4.5's "log_uarch_reset
// and its verifier are the analogous operation... the reset is itself
// loggable so that a verifier can also check inter-step cleanup."
func LogReset(u *State, uarchPMAs *pma.Map, resetImage []byte, resetPC uint64) (log Log, preRoot, postRoot [32]byte, err error) {
	rec := NewRecorder(uarchPMAs)
	preRoot = rec.PreRoot()

	for off := 0; off+8 <= len(resetImage); off += 8 {
		var v uint64
		for i := 0; i < 8; i++ {
			v |= uint64(resetImage[off+i]) << (8 * i)
		}
		if err := rec.WriteBig(uint64(off), 3, v); err != nil {
			return nil, preRoot, [32]byte{}, err
		}
	}

	u.Reset(resetPC)
	postRoot = merkle.New(uarchPMAs).Root()
	return rec.Log(), preRoot, postRoot, nil
}

// VerifyResetLog replays a reset log exactly as VerifyStepLog replays a
// step log: the operations are structurally identical (a sequence of
// proof-carrying writes), only the semantic meaning differs.
func VerifyResetLog(preRoot [32]byte, log Log, postRoot [32]byte) error {
	got, err := VerifyStepLog(preRoot, log)
	if err != nil {
		return err
	}
	if got != postRoot {
		return fmt.Errorf("%w: replayed reset root 0x%x != declared post-root 0x%x", ErrLogMismatch, got, postRoot)
	}
	return nil
}
