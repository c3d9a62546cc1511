// Command machine is a thin, demonstration-only CLI wrapper over the
// emulator core: it assembles a pma.Map from a RAM image (no ROM or
// flash drive is mapped), wires CLINT/HTIF/PLIC, runs the interpreter to completion
// or a cycle budget, and reports the Merkle root before and after.
//
// Not a deliverable in its own right (spec.md scopes directory-based
// config persistence out); grounded on rvgo/cmd/run.go's flag/Logger
// plumbing and rvgo/main.go's cli.App/signal-cancellation shape.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/cartesi-corp/machine-go/config"
	"github.com/cartesi-corp/machine-go/devices"
	"github.com/cartesi-corp/machine-go/interp"
	"github.com/cartesi-corp/machine-go/machine"
	"github.com/cartesi-corp/machine-go/merkle"
	"github.com/cartesi-corp/machine-go/pma"
)

var (
	ramImageFlag = &cli.PathFlag{Name: "ram-image", Usage: "raw binary RAM image, loaded at the RAM base"}
	ramSizeFlag  = &cli.Uint64Flag{Name: "ram-size", Usage: "RAM length in bytes", Value: 64 << 20}
	maxMcycleFlag = &cli.Uint64Flag{Name: "max-mcycle", Usage: "stop after this many cycles even if not halted", Value: 1 << 30}
	logLevelFlag  = &cli.StringFlag{Name: "log-level", Value: "info"}
)

const (
	ramBase   = 0x80000000
	htifBase  = 0x40008000
	clintBase = 0x02000000
	plicBase  = 0x0C000000
	clintSize = 0x10000
	htifSize  = 0x1000
	plicSize  = 0x400000
)

func main() {
	app := cli.NewApp()
	app.Name = "machine"
	app.Usage = "run a RISC-V guest under the deterministic emulator core"
	app.Flags = []cli.Flag{ramImageFlag, ramSizeFlag, maxMcycleFlag, logLevelFlag}
	app.Action = run

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		fmt.Fprintln(os.Stderr, "\r\ninterrupted")
	}()

	if err := app.RunContext(ctx, os.Args); err != nil {
		if errors.Is(err, ctx.Err()) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cctx *cli.Context) error {
	logger := newLogger(os.Stderr, levelFromString(cctx.String(logLevelFlag.Name)))

	m, err := buildMachine(cctx, logger)
	if err != nil {
		return err
	}

	preTree := merkle.New(m.State.PMAs)
	if err := preTree.UpdateMerkleTree(); err != nil {
		return fmt.Errorf("computing pre-state root: %w", err)
	}
	logger.Info("pre-state", "root", hexU64Array(preTree.CachedRootHash()))

	maxMcycle := cctx.Uint64(maxMcycleFlag.Name)
	reason := m.Run(m.State.Mcycle + maxMcycle)
	logger.Info("stopped", "reason", stopReasonString(reason), "mcycle", hexU64(m.State.Mcycle), "minstret", hexU64(m.State.Minstret))

	postTree := merkle.New(m.State.PMAs)
	if err := postTree.UpdateMerkleTree(); err != nil {
		return fmt.Errorf("computing post-state root: %w", err)
	}
	logger.Info("post-state", "root", hexU64Array(postTree.CachedRootHash()))

	if m.Htif != nil && m.Htif.Halted() {
		if toHost := m.Htif.ToHost(); toHost&1 != 0 && toHost>>1 != 0 {
			return fmt.Errorf("guest exited with nonzero status 0x%x", toHost>>1)
		}
	}
	return nil
}

// buildMachine assembles the PMA map and wires the standard device set.
// This stands in for a config.Store-backed build per spec.md §6; no
// directory format is implemented, so the descriptor is always
// config.Default() plus the CLI-supplied RAM image.
func buildMachine(cctx *cli.Context, logger log.Logger) (*interp.Machine, error) {
	desc := config.Default()
	desc.RAM.Length = cctx.Uint64(ramSizeFlag.Name)
	desc.RAM.ImageFilename = cctx.Path(ramImageFlag.Name)

	pmas := &pma.Map{}

	ramEntry, err := pma.NewMemory(ramBase, desc.RAM.Length, pma.FlagR|pma.FlagW|pma.FlagX|pma.FlagIR|pma.FlagIW)
	if err != nil {
		return nil, err
	}
	if desc.RAM.ImageFilename != "" {
		data, err := os.ReadFile(desc.RAM.ImageFilename)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrIO, err)
		}
		if len(data) > len(ramEntry.Data) {
			return nil, fmt.Errorf("RAM image %d bytes exceeds RAM length %d", len(data), len(ramEntry.Data))
		}
		copy(ramEntry.Data, data)
	}
	if err := pmas.Register(ramEntry); err != nil {
		return nil, err
	}

	s := machine.New(pmas)
	s.PC = desc.Processor.PC
	s.CSR.Misa = desc.Processor.Misa

	clint := devices.NewCLINT(desc.Clint.Mtimecmp, func() uint64 { return s.Mcycle })
	clintEntry, err := pma.NewDevice(clintBase, clintSize, pma.FlagR|pma.FlagW, pma.DIDCLINT, clint)
	if err != nil {
		return nil, err
	}
	if err := pmas.Register(clintEntry); err != nil {
		return nil, err
	}

	htif := devices.NewHTIF(desc.Htif.Tohost, desc.Htif.Fromhost)
	htifEntry, err := pma.NewDevice(htifBase, htifSize, pma.FlagR|pma.FlagW, pma.DIDHTIF, htif)
	if err != nil {
		return nil, err
	}
	if err := pmas.Register(htifEntry); err != nil {
		return nil, err
	}

	plic := devices.NewPLIC()
	plicEntry, err := pma.NewDevice(plicBase, plicSize, pma.FlagR|pma.FlagW, pma.DIDPLIC, plic)
	if err != nil {
		return nil, err
	}
	if err := pmas.Register(plicEntry); err != nil {
		return nil, err
	}

	mach := interp.New(s, clint, htif, plic)
	mach.Log = logger
	return mach, nil
}

func stopReasonString(r interp.StopReason) string {
	switch r {
	case interp.ReachedTargetMcycle:
		return "reached-target-mcycle"
	case interp.Halted:
		return "halted"
	case interp.YieldedManually:
		return "yielded-manually"
	case interp.YieldedAutomatically:
		return "yielded-automatically"
	case interp.Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func hexU64Array(b [32]byte) string { return fmt.Sprintf("0x%x", b) }

func levelFromString(s string) slog.Level {
	switch s {
	case "trace", "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	case "crit":
		return log.LevelCrit
	default:
		return log.LevelInfo
	}
}
