package uarch

import (
	"fmt"

	"github.com/cartesi-corp/machine-go/merkle"
	"github.com/cartesi-corp/machine-go/pma"
)

// LogStep drives the micro-machine to completion (Halted) against
// bigPMAs, recording every big-machine access, and returns the log plus
// the pre/post root hashes it observed. This is log_uarch_step from
// spec.md §4.5.
func LogStep(u *State, prog *pma.Map, bigPMAs *pma.Map) (log Log, preRoot, postRoot [32]byte, err error) {
	rec := NewRecorder(bigPMAs)
	preRoot = rec.PreRoot()

	const maxCycles = 1 << 20 // a uarch program that never halts is a malformed program, not an infinite loop we must tolerate
	for !u.Halted {
		if u.Cycle > maxCycles {
			return nil, preRoot, [32]byte{}, fmt.Errorf("uarch: program did not halt within %d cycles", maxCycles)
		}
		if err := Step(u, prog, rec); err != nil {
			return nil, preRoot, [32]byte{}, err
		}
	}

	postRoot = merkle.New(bigPMAs).Root()
	return rec.Log(), preRoot, postRoot, nil
}

// VerifyStepLog replays log with no machine state at all: for each read,
// it checks the declared value_before folds to the current root via its
// sibling path and that value_after equals value_before; for each write, it checks value_before folds to the
// current root and then advances the current root to whatever
// value_after folds to. This is verify_uarch_step_log from spec.md §4.5.
func VerifyStepLog(preRoot [32]byte, log Log) ([32]byte, error) {
	cur := preRoot
	for i, a := range log {
		before := merkle.HashValue(a.ValueBefore, a.Log2Size)
		got := merkle.ComputeRootFromProof(a.Address, a.Log2Size, before, a.Siblings)
		if got != cur {
			return [32]byte{}, fmt.Errorf("%w: access %d at 0x%x: expected root 0x%x, proof folds to 0x%x", ErrLogMismatch, i, a.Address, cur, got)
		}
		if a.Kind == AccessWrite {
			after := merkle.HashValue(a.ValueAfter, a.Log2Size)
			cur = merkle.ComputeRootFromProof(a.Address, a.Log2Size, after, a.Siblings)
		} else if a.ValueAfter != a.ValueBefore {
			return [32]byte{}, fmt.Errorf("%w: read access %d at 0x%x: value_after 0x%x != value_before 0x%x", ErrLogMismatch, i, a.Address, a.ValueAfter, a.ValueBefore)
		}
	}
	return cur, nil
}

// VerifyStepStateTransition additionally binds the pre/post roots the
// caller supplies, per spec.md §4.5's verify_uarch_step_state_transition:
// it rejects a log whose accesses do not fold to the running root, a read
// whose value_after differs from its value_before, and a post-root other
// than the replayed one (spec.md §8 scenario 6). An edit that leaves every
// fold unchanged, such as turning a read into a write of the same value,
// is not detected.
func VerifyStepStateTransition(preRoot [32]byte, log Log, postRoot [32]byte) error {
	got, err := VerifyStepLog(preRoot, log)
	if err != nil {
		return err
	}
	if got != postRoot {
		return fmt.Errorf("%w: replayed root 0x%x != declared post-root 0x%x", ErrLogMismatch, got, postRoot)
	}
	return nil
}
