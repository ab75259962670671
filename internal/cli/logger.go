package cli

import (
	"log/slog"
	"os"

	"github.com/ledgerlink/pairsync/internal/logging"
)

// newLogger writes structured logs to stderr, keeping stdout free for
// command output and QR codes.
func newLogger(verbose bool) logging.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return logging.NewSlogLogger(slog.New(h))
}
