// Package logger provides structured logging using slog for the supervisor.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with fleet-specific scoping helpers.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified level and format.
// Supervisor logs go to stderr so they never interleave with child
// process output relayed on stdout.
func New(level slog.Level, json bool) *Logger {
	return NewWithWriter(os.Stderr, level, json)
}

// NewWithWriter creates a Logger writing to the given writer (for testing).
func NewWithWriter(w io.Writer, level slog.Level, json bool) *Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Default creates a logger with default settings (INFO level, text format).
func Default() *Logger {
	return New(slog.LevelInfo, false)
}

// WithComponent returns a new Logger with the component field.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// WithNode returns a new Logger with the node field.
func (l *Logger) WithNode(node string) *Logger {
	return &Logger{Logger: l.Logger.With("node", node)}
}

// WithRunID returns a new Logger with the run ID field.
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{Logger: l.Logger.With("run_id", runID)}
}

// WithError returns a new Logger with the error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With("error", err.Error())}
}
