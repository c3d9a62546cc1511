// Package riscv holds the flat constant tables shared by the interpreter,
// MMU, and device packages: opcodes, CSR addresses, trap causes, and
// privilege levels from the RISC-V unprivileged and privileged specs.
package riscv

// Privilege levels (mstatus.MPP / iflags.PRV encoding).
const (
	PrvU = 0
	PrvS = 1
	PrvM = 3
)

// Opcodes (bits [6:0] of a 32-bit instruction, post-decompression).
const (
	OpLoad       = 0x03
	OpLoadFP     = 0x07
	OpMiscMem    = 0x0F
	OpOpImm      = 0x13
	OpAuipc      = 0x17
	OpOpImm32    = 0x1B
	OpStore      = 0x23
	OpStoreFP    = 0x27
	OpAmo        = 0x2F
	OpOp         = 0x33
	OpLui        = 0x37
	OpOp32       = 0x3B
	OpFP         = 0x53
	OpBranch     = 0x63
	OpJalr       = 0x67
	OpJal        = 0x6F
	OpSystem     = 0x73
)

// CSR addresses used by this machine (RISC-V privileged spec, table 2.2..2.5).
const (
	CsrFflags = 0x001
	CsrFrm    = 0x002
	CsrFcsr   = 0x003

	CsrSstatus    = 0x100
	CsrSie        = 0x104
	CsrStvec      = 0x105
	CsrScounteren = 0x106
	CsrSscratch   = 0x140
	CsrSepc       = 0x141
	CsrScause     = 0x142
	CsrStval      = 0x143
	CsrSip        = 0x144
	CsrSatp       = 0x180

	CsrMvendorid  = 0xF11
	CsrMarchid    = 0xF12
	CsrMimpid     = 0xF13
	CsrMhartid    = 0xF14
	CsrMstatus    = 0x300
	CsrMisa       = 0x301
	CsrMedeleg    = 0x302
	CsrMideleg    = 0x303
	CsrMie        = 0x304
	CsrMtvec      = 0x305
	CsrMcounteren = 0x306
	CsrMscratch   = 0x340
	CsrMepc       = 0x341
	CsrMcause     = 0x342
	CsrMtval      = 0x343
	CsrMip        = 0x344

	CsrCycle    = 0xC00
	CsrTime     = 0xC01
	CsrInstret  = 0xC02
	CsrMcycle   = 0xB00
	CsrMinstret = 0xB02
)

// mstatus field shifts/masks relevant to the privilege checks this core performs.
const (
	MstatusSIEShift  = 1
	MstatusMIEShift  = 3
	MstatusSPIEShift = 5
	MstatusMPIEShift = 7
	MstatusSPPShift  = 8
	MstatusMPPShift  = 11
	MstatusMPPMask   = 0x3
	MstatusSUMShift  = 18
	MstatusMXRShift  = 19
	MstatusMPRVShift = 17
	MstatusFSShift   = 13
	MstatusFSMask    = 0x3
)

// mip/mie interrupt bit positions.
const (
	IntSSI = 1 // supervisor software interrupt
	IntMSI = 3 // machine software interrupt
	IntSTI = 5 // supervisor timer interrupt
	IntMTI = 7 // machine timer interrupt
	IntSEI = 9 // supervisor external interrupt
	IntMEI = 11
)

// Exception (trap) causes. The top bit distinguishes interrupt (1) from
// exception (0); CauseInterruptFlag is ORed with the bit position above
// to build an mcause/scause value for an interrupt.
const (
	CauseInterruptFlag = uint64(1) << 63

	CauseInstrMisaligned  = 0
	CauseInstrAccessFault = 1
	CauseIllegalInstr     = 2
	CauseBreakpoint       = 3
	CauseLoadMisaligned   = 4
	CauseLoadAccessFault  = 5
	CauseStoreMisaligned  = 6
	CauseStoreAccessFault = 7
	CauseEcallU           = 8
	CauseEcallS           = 9
	CauseEcallM           = 11
	CauseInstrPageFault   = 12
	CauseLoadPageFault    = 13
	CauseStorePageFault   = 15
)

// satp.MODE encodings (RV64).
const (
	SatpModeBare = 0
	SatpModeSv39 = 8
	SatpModeSv48 = 9
	SatpModeSv57 = 10
)

// Page table walk parameters, indexed by satp.MODE.
type MMULevels struct {
	Levels   int
	VAWidth  uint // number of significant virtual address bits
	PTESize  uint
}

var Sv39Levels = MMULevels{Levels: 3, VAWidth: 39, PTESize: 8}
var Sv48Levels = MMULevels{Levels: 4, VAWidth: 48, PTESize: 8}
var Sv57Levels = MMULevels{Levels: 5, VAWidth: 57, PTESize: 8}

// PTE bit positions (Sv39/48/57 share this layout).
const (
	PteV = 1 << 0
	PteR = 1 << 1
	PteW = 1 << 2
	PteX = 1 << 3
	PteU = 1 << 4
	PteG = 1 << 5
	PteA = 1 << 6
	PteD = 1 << 7
)

const PageShift = 12
const PageSize = 1 << PageShift
