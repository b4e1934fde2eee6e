package regionstore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; package
// metrics/prometheus provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordLoad is called after each load. bytes is the payload size,
	// found is false for absent chunks, err is nil if successful.
	RecordLoad(duration time.Duration, bytes int, found bool, err error)

	// RecordSave is called after each save with the uncompressed payload size.
	RecordSave(duration time.Duration, bytes int, err error)

	// RecordDelete is called after each delete.
	RecordDelete(duration time.Duration, err error)

	// RecordOpen is called after a region file is opened.
	RecordOpen(duration time.Duration, err error)

	// RecordEvict is called when a region handle is evicted.
	RecordEvict()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLoad(time.Duration, int, bool, error) {}
func (NoopMetricsCollector) RecordSave(time.Duration, int, error)       {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)          {}
func (NoopMetricsCollector) RecordOpen(time.Duration, error)            {}
func (NoopMetricsCollector) RecordEvict()                               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and tests without external dependencies.
type BasicMetricsCollector struct {
	LoadCount      atomic.Int64
	LoadMisses     atomic.Int64
	LoadErrors     atomic.Int64
	LoadTotalNanos atomic.Int64
	LoadBytes      atomic.Int64
	SaveCount      atomic.Int64
	SaveErrors     atomic.Int64
	SaveTotalNanos atomic.Int64
	SaveBytes      atomic.Int64
	DeleteCount    atomic.Int64
	DeleteErrors   atomic.Int64
	OpenCount      atomic.Int64
	OpenErrors     atomic.Int64
	EvictCount     atomic.Int64
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(duration time.Duration, bytes int, found bool, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	switch {
	case err != nil:
		b.LoadErrors.Add(1)
	case !found:
		b.LoadMisses.Add(1)
	default:
		b.LoadBytes.Add(int64(bytes))
	}
}

// RecordSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSave(duration time.Duration, bytes int, err error) {
	b.SaveCount.Add(1)
	b.SaveTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SaveErrors.Add(1)
		return
	}
	b.SaveBytes.Add(int64(bytes))
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(_ time.Duration, err error) {
	b.OpenCount.Add(1)
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordEvict implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEvict() {
	b.EvictCount.Add(1)
}

// BasicMetricsStats is a point-in-time snapshot of BasicMetricsCollector.
type BasicMetricsStats struct {
	LoadCount    int64
	LoadMisses   int64
	LoadErrors   int64
	LoadAvgNanos int64
	LoadBytes    int64
	SaveCount    int64
	SaveErrors   int64
	SaveAvgNanos int64
	SaveBytes    int64
	DeleteCount  int64
	DeleteErrors int64
	OpenCount    int64
	OpenErrors   int64
	EvictCount   int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		LoadCount:    b.LoadCount.Load(),
		LoadMisses:   b.LoadMisses.Load(),
		LoadErrors:   b.LoadErrors.Load(),
		LoadAvgNanos: avg(b.LoadTotalNanos.Load(), b.LoadCount.Load()),
		LoadBytes:    b.LoadBytes.Load(),
		SaveCount:    b.SaveCount.Load(),
		SaveErrors:   b.SaveErrors.Load(),
		SaveAvgNanos: avg(b.SaveTotalNanos.Load(), b.SaveCount.Load()),
		SaveBytes:    b.SaveBytes.Load(),
		DeleteCount:  b.DeleteCount.Load(),
		DeleteErrors: b.DeleteErrors.Load(),
		OpenCount:    b.OpenCount.Load(),
		OpenErrors:   b.OpenErrors.Load(),
		EvictCount:   b.EvictCount.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}
