package regionstore

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/regionstore/coord"
)

// Logger wraps slog.Logger with store-specific helpers.
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
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithRegion adds a region field to the logger.
func (l *Logger) WithRegion(rc coord.RegionCoord) *Logger {
	return &Logger{
		Logger: l.Logger.With("region", rc.FileName()),
	}
}

// LogLoad logs a chunk load.
func (l *Logger) LogLoad(ctx context.Context, c coord.ChunkCoord, size int, found bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"chunk", c,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "load completed",
			"chunk", c,
			"found", found,
			"bytes", size,
		)
	}
}

// LogSave logs a chunk save.
func (l *Logger) LogSave(ctx context.Context, c coord.ChunkCoord, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"chunk", c,
			"bytes", size,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "save completed",
			"chunk", c,
			"bytes", size,
		)
	}
}

// LogDelete logs a chunk deletion.
func (l *Logger) LogDelete(ctx context.Context, c coord.ChunkCoord, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"chunk", c,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"chunk", c,
		)
	}
}

// LogOpen logs opening a region file.
func (l *Logger) LogOpen(ctx context.Context, rc coord.RegionCoord, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "region open failed",
			"region", rc.FileName(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "region opened",
			"region", rc.FileName(),
			"duration", d,
		)
	}
}

// LogEvict logs closing a region handle to stay within the open-handle bound.
func (l *Logger) LogEvict(ctx context.Context, rc coord.RegionCoord, leased bool, err error) {
	if err != nil {
		l.WarnContext(ctx, "closing evicted region failed",
			"region", rc.FileName(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "region evicted",
			"region", rc.FileName(),
			"deferred", leased,
		)
	}
}

// LogVerify logs the result of verifying one region file.
func (l *Logger) LogVerify(ctx context.Context, rc coord.RegionCoord, checked int, err error) {
	if err != nil {
		l.WarnContext(ctx, "region verification found problems",
			"region", rc.FileName(),
			"checked", checked,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "region verified",
			"region", rc.FileName(),
			"checked", checked,
		)
	}
}
