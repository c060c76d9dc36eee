// Package logging configures the process-wide slog logger used for
// internal diagnostics. The CLI's structured renderer (internal/output)
// remains the user-facing surface; this package is for operational
// tracing only (connection lifecycle, migration runs, LLM calls).
package logging

import (
	"log/slog"
	"os"
)

// New builds a text-handler logger writing to stderr, at debug level when
// verbose is set and info level otherwise.
func New(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
