package region

import (
	"log/slog"
	"time"

	"github.com/hupe1980/regionstore/internal/fs"
)

type options struct {
	fs     fs.FileSystem
	logger *slog.Logger
	sync   bool
	lock   bool
	now    func() time.Time
}

func defaultOptions() options {
	return options{
		fs:     fs.Default,
		logger: slog.New(slog.DiscardHandler),
		sync:   true,
		lock:   true,
		now:    time.Now,
	}
}

// Option configures Open.
type Option func(*options)

// WithFileSystem sets the file system the region file is opened on.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// WithLogger sets the logger used for header repairs and relocations.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSync controls whether data and header writes are followed by fsync.
// Disabling it voids the crash ordering guarantees; it is meant for tests
// and bulk imports.
func WithSync(enabled bool) Option {
	return func(o *options) { o.sync = enabled }
}

// WithLock controls the exclusive advisory lock taken on open.
func WithLock(enabled bool) Option {
	return func(o *options) { o.lock = enabled }
}

// WithClock sets the time source for chunk timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
