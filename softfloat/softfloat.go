// Package softfloat specifies the IEEE-754 primitives the F/D extension
// calls into, per spec.md §9's design note: "soft-float is an external
// collaborator... specify only the functions consumed and their
// rounding-mode/nan-boxing contract." No routine bodies live here; a
// concrete Provider is supplied by the embedder.
package softfloat

// RoundingMode mirrors the RISC-V frm encoding.
type RoundingMode uint8

const (
	RoundNearestEven RoundingMode = 0
	RoundTowardZero  RoundingMode = 1
	RoundDown        RoundingMode = 2
	RoundUp          RoundingMode = 3
	RoundNearestMax  RoundingMode = 4
)

// Flags mirrors the fflags accrued-exception bits (NV, DZ, OF, UF, NX).
type Flags uint8

const (
	FlagInvalid   Flags = 1 << 0
	FlagDivByZero Flags = 1 << 1
	FlagOverflow  Flags = 1 << 2
	FlagUnderflow Flags = 1 << 3
	FlagInexact   Flags = 1 << 4
)

// Provider is the set of IEEE-754 primitives the F/D decode/execute path
// consumes. Single-precision values are NaN-boxed into the upper 32 bits
// of a uint64 per the RV64 F/D ABI; Provider implementations are
// responsible for unboxing/boxing consistently.
type Provider interface {
	AddF32(a, b uint64, rm RoundingMode) (result uint64, flags Flags)
	AddF64(a, b uint64, rm RoundingMode) (result uint64, flags Flags)
	MulF32(a, b uint64, rm RoundingMode) (result uint64, flags Flags)
	MulF64(a, b uint64, rm RoundingMode) (result uint64, flags Flags)
	DivF32(a, b uint64, rm RoundingMode) (result uint64, flags Flags)
	DivF64(a, b uint64, rm RoundingMode) (result uint64, flags Flags)
	SqrtF32(a uint64, rm RoundingMode) (result uint64, flags Flags)
	SqrtF64(a uint64, rm RoundingMode) (result uint64, flags Flags)

	CompareEqF32(a, b uint64) (result bool, flags Flags)
	CompareEqF64(a, b uint64) (result bool, flags Flags)
	CompareLtF32(a, b uint64) (result bool, flags Flags)
	CompareLtF64(a, b uint64) (result bool, flags Flags)
	CompareLeF32(a, b uint64) (result bool, flags Flags)
	CompareLeF64(a, b uint64) (result bool, flags Flags)

	F32ToI64(a uint64, rm RoundingMode) (result int64, flags Flags)
	F64ToI64(a uint64, rm RoundingMode) (result int64, flags Flags)
	F32ToU64(a uint64, rm RoundingMode) (result uint64, flags Flags)
	F64ToU64(a uint64, rm RoundingMode) (result uint64, flags Flags)
	I64ToF32(a int64, rm RoundingMode) (result uint64, flags Flags)
	I64ToF64(a int64, rm RoundingMode) (result uint64, flags Flags)
	U64ToF32(a uint64, rm RoundingMode) (result uint64, flags Flags)
	U64ToF64(a uint64, rm RoundingMode) (result uint64, flags Flags)

	F32ToF64(a uint64) (result uint64, flags Flags)
	F64ToF32(a uint64, rm RoundingMode) (result uint64, flags Flags)

	ClassifyF32(a uint64) uint64
	ClassifyF64(a uint64) uint64
}
