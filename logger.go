package pmago

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with pmago-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogInsert logs a point insert.
func (l *Logger) LogInsert(key int64, err error) {
	if err != nil {
		l.Error("insert failed",
			"key", key,
			"error", err,
		)
	} else {
		l.Debug("insert completed",
			"key", key,
		)
	}
}

// LogRemove logs a point delete.
func (l *Logger) LogRemove(key int64, found bool) {
	l.Debug("remove completed",
		"key", key,
		"found", found,
	)
}

// LogRebalance logs a window rebalance.
func (l *Logger) LogRebalance(windowStart, windowLength, cardinality int, rewired bool) {
	l.Debug("rebalance completed",
		"window_start", windowStart,
		"window_length", windowLength,
		"cardinality", cardinality,
		"rewired", rewired,
	)
}

// LogResize logs a resize of the backing store.
func (l *Logger) LogResize(segmentsBefore, segmentsAfter int, err error) {
	if err != nil {
		l.Error("resize failed",
			"segments_before", segmentsBefore,
			"segments_after", segmentsAfter,
			"error", err,
		)
	} else {
		l.Debug("resize completed",
			"segments_before", segmentsBefore,
			"segments_after", segmentsAfter,
		)
	}
}

// LogBulkLoad logs a bulk load.
func (l *Logger) LogBulkLoad(batchSize, runs, fused int, resized bool, err error) {
	if err != nil {
		l.Error("bulk load failed",
			"batch_size", batchSize,
			"error", err,
		)
	} else {
		l.Info("bulk load completed",
			"batch_size", batchSize,
			"runs", runs,
			"fused_runs", fused,
			"resized", resized,
		)
	}
}
