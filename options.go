package regionstore

import (
	"time"

	"github.com/hupe1980/regionstore/codec"
	"github.com/hupe1980/regionstore/internal/fs"
	"github.com/hupe1980/regionstore/resource"
)

// DefaultMaxOpenRegions is the default bound on simultaneously open region files.
const DefaultMaxOpenRegions = 64

type (
	// FileSystem is the file system region files are stored on.
	FileSystem = fs.FileSystem

	// File is an open file of a FileSystem.
	File = fs.File
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	maxOpen          int
	compression      codec.Compression
	fs               fs.FileSystem
	sync             bool
	now              func() time.Time
	resources        *resource.Controller
}

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		maxOpen:          DefaultMaxOpenRegions,
		compression:      codec.Default,
		fs:               fs.Default,
		sync:             true,
		now:              time.Now,
	}
}

// Option configures a Store.
type Option func(*options)

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithMetricsCollector sets the metrics collector.
// If nil is passed, metrics collection is disabled.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithMaxOpenRegions bounds the number of region files kept open. The least
// recently used region is closed when the bound is exceeded. Values below 1
// are treated as 1.
func WithMaxOpenRegions(n int) Option {
	return func(o *options) {
		o.maxOpen = max(n, 1)
	}
}

// WithCompression sets the compression used by Save. Compression is chosen
// per chunk and recorded on disk, so changing it never affects reading
// chunks written earlier.
func WithCompression(c codec.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithFileSystem sets the file system region files live on.
func WithFileSystem(fsys FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// WithSync controls fsync after data and header writes. Disabling it trades
// crash safety for throughput, e.g. during bulk world generation.
func WithSync(enabled bool) Option {
	return func(o *options) {
		o.sync = enabled
	}
}

// WithClock sets the time source used for chunk timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithResourceController limits background work such as Verify.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}
