package ivarator

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with ivarator-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithQuery adds the query and scan identifiers.
func (l *Logger) WithQuery(queryID, scanID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("query_id", queryID, "scan_id", scanID),
	}
}

// WithRow adds the row being scanned.
func (l *Logger) WithRow(row string) *Logger {
	return &Logger{
		Logger: l.Logger.With("row", row),
	}
}

// WithTask adds a task identity and its range hash.
func (l *Logger) WithTask(name string, rangeHash uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("task", name, "range_hash", rangeHash),
	}
}

// LogRowScan logs the outcome of a row scan.
func (l *Logger) LogRowScan(row string, ranges int, matched, scanned int64, outcome string, err error) {
	if err != nil {
		l.Error("row scan failed",
			"row", row,
			"ranges", ranges,
			"matched", matched,
			"scanned", scanned,
			"error", err,
		)
		return
	}
	l.Info("row scan finished",
		"row", row,
		"ranges", ranges,
		"matched", matched,
		"scanned", scanned,
		"outcome", outcome,
	)
}
