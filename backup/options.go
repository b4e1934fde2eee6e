package backup

import (
	"log/slog"
	"time"

	"github.com/hupe1980/regionstore/internal/fs"
	"github.com/hupe1980/regionstore/resource"
)

type options struct {
	logger      *slog.Logger
	compression Compression
	concurrency int
	resources   *resource.Controller
	fs          fs.FileSystem
	now         func() time.Time
}

func defaultOptions() options {
	return options{
		logger:      slog.New(slog.DiscardHandler),
		compression: LZ4,
		concurrency: 4,
		fs:          fs.Default,
		now:         time.Now,
	}
}

// Option configures Backup and Restore.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCompression sets the snapshot compression. Restore reads the
// compression from the manifest and ignores this option.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithConcurrency bounds how many regions are copied at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = max(n, 1)
	}
}

// WithResourceController shares worker slots and the IO budget with other
// background work.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithFileSystem sets the file system Restore writes region files to.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// WithClock sets the time source for manifest timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
