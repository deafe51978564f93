// Package metrics exposes the broker's Prometheus metrics: command
// throughput, message/byte counters, segment rotations, consumer lag and
// dedup drops.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the broker exposes.
type Metrics struct {
	CommandsTotal   *prometheus.CounterVec
	CommandLatency  *prometheus.HistogramVec
	MessagesSent    *prometheus.CounterVec
	MessagesPolled  *prometheus.CounterVec
	BytesWritten    *prometheus.CounterVec
	SegmentRotations *prometheus.CounterVec
	DedupDrops      *prometheus.CounterVec
	ConsumerLag     *prometheus.GaugeVec
	ActivePartitions prometheus.Gauge

	registry *prometheus.Registry
}

var (
	instance *Metrics
	once     sync.Once
)

// New creates and registers every collector against a fresh registry
// (singleton pattern, so repeated calls in tests don't panic on
// duplicate registration).
func New() *Metrics {
	once.Do(func() {
		registry := prometheus.NewRegistry()

		m := &Metrics{
			CommandsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "streamkeg_commands_total",
					Help: "Total number of commands processed, by code and status.",
				},
				[]string{"code", "status"},
			),
			CommandLatency: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "streamkeg_command_duration_seconds",
					Help:    "Command handling latency in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"code"},
			),
			MessagesSent: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "streamkeg_messages_sent_total",
					Help: "Total number of messages appended to a partition.",
				},
				[]string{"stream", "topic"},
			),
			MessagesPolled: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "streamkeg_messages_polled_total",
					Help: "Total number of messages returned by Poll.",
				},
				[]string{"stream", "topic"},
			),
			BytesWritten: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "streamkeg_bytes_written_total",
					Help: "Total bytes appended to segment files.",
				},
				[]string{"stream", "topic"},
			),
			SegmentRotations: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "streamkeg_segment_rotations_total",
					Help: "Total number of segment rotations.",
				},
				[]string{"stream", "topic"},
			),
			DedupDrops: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "streamkeg_dedup_drops_total",
					Help: "Total number of messages dropped as duplicates.",
				},
				[]string{"stream", "topic"},
			),
			ConsumerLag: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "streamkeg_consumer_lag",
					Help: "Difference between a partition's current offset and a consumer's committed offset.",
				},
				[]string{"stream", "topic", "partition", "consumer"},
			),
			ActivePartitions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "streamkeg_active_partitions",
					Help: "Number of partitions currently open.",
				},
			),
			registry: registry,
		}

		registry.MustRegister(
			m.CommandsTotal,
			m.CommandLatency,
			m.MessagesSent,
			m.MessagesPolled,
			m.BytesWritten,
			m.SegmentRotations,
			m.DedupDrops,
			m.ConsumerLag,
			m.ActivePartitions,
		)

		instance = m
	})
	return instance
}

// Handler returns the Prometheus scrape handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCommand records one command's outcome and latency.
func (m *Metrics) ObserveCommand(code string, status string, seconds float64) {
	m.CommandsTotal.WithLabelValues(code, status).Inc()
	m.CommandLatency.WithLabelValues(code).Observe(seconds)
}

// ResetForTesting drops the singleton so the next New call builds a fresh
// registry. Only safe for sequential test use.
func ResetForTesting() {
	instance = nil
	once = sync.Once{}
}
