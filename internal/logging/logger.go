package logging

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a structured logger appropriate for the environment.
// Production uses JSON format, development uses human-readable text.
// Output goes to stderr so command output on stdout stays parseable.
func NewLogger(env string) *slog.Logger {
	return slog.New(NewHandler(env, os.Stderr))
}

// NewHandler returns the environment's console handler writing to w.
func NewHandler(env string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "production" {
		return slog.NewJSONHandler(w, opts)
	}

	opts.Level = slog.LevelDebug

	return slog.NewTextHandler(w, opts)
}
