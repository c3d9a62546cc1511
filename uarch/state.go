// Package uarch implements the micro-architecture: a tiny independent
// RISC-V-like machine whose program, run to completion, performs one
// big-machine step, plus the typed access log that lets an external
// verifier check that step without any emulator state.
//
// Grounded on rvgo/fast/instrumented.go's InstrumentedState
// (trackMemAccess/verifyMemChange intercepting every memory touch to
// build a merkle-proof witness) and rvgo/fast/witness.go's StepWitness,
// generalized from "memory-only witness over one flat address space" to
// "any Merkle-addressed access against the big machine's pma.Map".
package uarch

// Register count of the micro-machine's own (separate) integer register
// file.
const numRegisters = 32

// State is the entire state of the micro-machine: its own registers, pc,
// cycle counter, and halt flag, per spec.md §4.5 ("its own PMAs,
// registers, pc, halt flag, and cycle counter").
type State struct {
	X       [numRegisters]uint64
	PC      uint64
	Cycle   uint64
	Halted  bool
}

// New constructs a State at its reset PC, matching log_uarch_reset's
// starting point.
func New(resetPC uint64) *State {
	return &State{PC: resetPC}
}

// ReadX/WriteX mirror machine.State's x0-hardwired-zero convention.
func (s *State) ReadX(i int) uint64 {
	if i == 0 {
		return 0
	}
	return s.X[i]
}

func (s *State) WriteX(i int, v uint64) {
	if i == 0 {
		return
	}
	s.X[i] = v
}

// Reset restores the micro-machine to its initial state, ready for
// log_uarch_reset to record. resetPC and ram are supplied by the
// embedder since the reset program/data live outside this package
// (config's concern).
func (s *State) Reset(resetPC uint64) {
	*s = State{PC: resetPC}
}
