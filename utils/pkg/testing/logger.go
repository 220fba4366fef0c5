package testing

import (
	"log/slog"
	"os"
)

// NewLogger returns a debug-level text logger for tests. Output goes to
// stderr so it only shows up with go test -v or on failure.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
