package uarch

import "errors"

var (
	errBadFetch = errors.New("uarch: malformed program fetch")

	// ErrLogMismatch is returned by VerifyStepLog/VerifyStepStateTransition
	// when a recorded access's proof does not fold to the expected root,
	// per spec.md §7's engine-error taxonomy.
	ErrLogMismatch = errors.New("uarch: access log does not fold to the declared root")
)
