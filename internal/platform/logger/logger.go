package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. JSON output so the hosting
// platform's log pipeline can index attributes.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// NewNop returns a logger that discards everything; used in tests that do
// not assert on log output.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
