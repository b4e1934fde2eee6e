// Package prometheus exports store metrics to Prometheus.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/regionstore"
)

// Collector is a regionstore.MetricsCollector backed by Prometheus metrics.
type Collector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	chunkBytes        *prometheus.HistogramVec
	bytesTotal        *prometheus.CounterVec
	regionOpens       *prometheus.CounterVec
	regionOpenLatency prometheus.Histogram
	regionEvictions   prometheus.Counter
}

var _ regionstore.MetricsCollector = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regionstore_operations_total",
				Help: "Total number of chunk operations by operation type and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "regionstore_operation_duration_milliseconds",
				Help: "Duration of chunk operations in milliseconds",
				Buckets: []float64{
					0.1, // cached header lookups
					0.5,
					1,
					5,
					10, // fsync on fast disks
					50,
					100,
					500,
				},
			},
			[]string{"operation"},
		),
		chunkBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "regionstore_chunk_bytes",
				Help: "Distribution of uncompressed chunk payload sizes",
				Buckets: []float64{
					1024,
					4096, // one sector
					16384,
					65536,
					262144,
					1044480, // largest record: 255 sectors
				},
			},
			[]string{"operation"},
		),
		bytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regionstore_bytes_total",
				Help: "Total uncompressed chunk bytes loaded and saved",
			},
			[]string{"operation"},
		),
		regionOpens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regionstore_region_opens_total",
				Help: "Total number of region file opens by status",
			},
			[]string{"status"},
		),
		regionOpenLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "regionstore_region_open_duration_milliseconds",
				Help:    "Duration of region file opens including header validation",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100},
			},
		),
		regionEvictions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "regionstore_region_evictions_total",
				Help: "Total number of region handles evicted from the open-handle table",
			},
		),
	}
}

// RecordLoad implements regionstore.MetricsCollector.
func (c *Collector) RecordLoad(duration time.Duration, bytes int, found bool, err error) {
	status := "hit"
	switch {
	case err != nil:
		status = "error"
	case !found:
		status = "miss"
	}
	c.record("load", status, duration)
	if status == "hit" {
		c.chunkBytes.WithLabelValues("load").Observe(float64(bytes))
		c.bytesTotal.WithLabelValues("load").Add(float64(bytes))
	}
}

// RecordSave implements regionstore.MetricsCollector.
func (c *Collector) RecordSave(duration time.Duration, bytes int, err error) {
	c.record("save", statusOf(err), duration)
	if err == nil {
		c.chunkBytes.WithLabelValues("save").Observe(float64(bytes))
		c.bytesTotal.WithLabelValues("save").Add(float64(bytes))
	}
}

// RecordDelete implements regionstore.MetricsCollector.
func (c *Collector) RecordDelete(duration time.Duration, err error) {
	c.record("delete", statusOf(err), duration)
}

// RecordOpen implements regionstore.MetricsCollector.
func (c *Collector) RecordOpen(duration time.Duration, err error) {
	c.regionOpens.WithLabelValues(statusOf(err)).Inc()
	c.regionOpenLatency.Observe(milliseconds(duration))
}

// RecordEvict implements regionstore.MetricsCollector.
func (c *Collector) RecordEvict() {
	c.regionEvictions.Inc()
}

func (c *Collector) record(op, status string, d time.Duration) {
	c.operationsTotal.WithLabelValues(op, status).Inc()
	c.operationDuration.WithLabelValues(op).Observe(milliseconds(d))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
