package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
)

// newLogger builds a logfmt logger writing to w at the given level.
func newLogger(w io.Writer, lvl slog.Level) log.Logger {
	return log.NewLogger(log.LogfmtHandlerWithLevel(w, lvl))
}

// consoleWriter adapts an HTIF putchar stream to the structured logger,
// distinguishing printable guest output from raw binary bytes.
type consoleWriter struct {
	Name string
	Log  log.Logger
}

func isPrintableASCII(b string) bool {
	for _, c := range b {
		if (c < 0x20 || c >= 0x7F) && c != '\n' && c != '\t' {
			return false
		}
	}
	return true
}

func (w *consoleWriter) Write(b []byte) (int, error) {
	t := string(b)
	if isPrintableASCII(t) {
		w.Log.Info(w.Name, "text", t)
	} else {
		w.Log.Info(w.Name, "data", hexutil.Bytes(b))
	}
	return len(b), nil
}

// hexU64 lazily formats a cycle/address count for structured log fields.
type hexU64 uint64

func (v hexU64) String() string { return fmt.Sprintf("0x%016x", uint64(v)) }

func (v hexU64) MarshalText() ([]byte, error) { return []byte(v.String()), nil }
