package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Batch flush triggers reported on the flush counter.
const (
	TriggerSize    = "size"
	TriggerTimeout = "timeout"
	TriggerManual  = "manual"
)

// Batch drop reasons reported on the drop counter.
const (
	DropReasonFlushFailure = "flush_failure"
	DropReasonShutdown     = "shutdown"
)

// Metrics contains the platform-level metrics shared by every component.
type Metrics struct {
	// Service metrics
	ServiceStatus     *prometheus.GaugeVec
	HealthCheckStatus *prometheus.GaugeVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	CacheErrors *prometheus.CounterVec

	// Event-log metrics
	EventsPublished *prometheus.CounterVec
	PublishErrors   *prometheus.CounterVec

	// Batch metrics
	RecordsBuffered *prometheus.GaugeVec
	BatchFlushes    *prometheus.CounterVec
	RecordsFlushed  *prometheus.CounterVec
	BatchesDropped  *prometheus.CounterVec
	FlushDuration   *prometheus.HistogramVec

	// Document-store metrics
	DocStoreErrors *prometheus.CounterVec

	// Broker metrics
	BrokerConnected      prometheus.Gauge
	BrokerRTT            prometheus.Gauge
	BrokerReconnects     prometheus.Counter
	BrokerCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all platform metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "writeback",
				Subsystem: "service",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"component"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "writeback",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "writeback",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of fast-store read hits",
			},
			[]string{"entity"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "writeback",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of fast-store read misses",
			},
			[]string{"entity"},
		),

		CacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "writeback",
				Subsystem: "cache",
				Name:      "errors_total",
				Help:      "Total number of fast-store operation failures",
			},
			[]string{"operation"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "writeback",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of write events appended to the log",
			},
			[]string{"topic"},
		),

		PublishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "writeback",
				Subsystem: "events",
				Name:      "publish_errors_total",
				Help:      "Total number of failed event appends",
			},
			[]string{"topic"},
		),

		RecordsBuffered: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "writeback",
				Subsystem: "batch",
				Name:      "buffered_records",
				Help:      "Records currently accumulated and awaiting flush",
			},
			[]string{"topic"},
		),

		BatchFlushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "writeback",
				Subsystem: "batch",
				Name:      "flushes_total",
				Help:      "Total number of batch flushes by trigger",
			},
			[]string{"topic", "trigger"},
		),

		RecordsFlushed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "writeback",
				Subsystem: "batch",
				Name:      "flushed_records_total",
				Help:      "Total number of records written through batch flushes",
			},
			[]string{"topic"},
		),

		BatchesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "writeback",
				Subsystem: "batch",
				Name:      "dropped_total",
				Help:      "Total number of batches discarded without reaching the document store",
			},
			[]string{"topic", "reason"},
		),

		FlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "writeback",
				Subsystem: "batch",
				Name:      "flush_duration_seconds",
				Help:      "Batch flush duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"topic"},
		),

		DocStoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "writeback",
				Subsystem: "docstore",
				Name:      "errors_total",
				Help:      "Total number of document-store operation failures",
			},
			[]string{"operation"},
		),

		BrokerConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "writeback",
				Subsystem: "broker",
				Name:      "connected",
				Help:      "Broker connection status (0=disconnected, 1=connected)",
			},
		),

		BrokerRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "writeback",
				Subsystem: "broker",
				Name:      "rtt_milliseconds",
				Help:      "Broker round-trip time in milliseconds",
			},
		),

		BrokerReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "writeback",
				Subsystem: "broker",
				Name:      "reconnects_total",
				Help:      "Total number of broker reconnections",
			},
		),

		BrokerCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "writeback",
				Subsystem: "broker",
				Name:      "circuit_breaker",
				Help:      "Broker circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordServiceStatus updates a component status gauge.
func (m *Metrics) RecordServiceStatus(component string, status int) {
	m.ServiceStatus.WithLabelValues(component).Set(float64(status))
}

// RecordHealthStatus updates a component health gauge.
func (m *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(value)
}

// RecordCacheHit increments the hit counter for an entity kind.
func (m *Metrics) RecordCacheHit(entity string) {
	m.CacheHits.WithLabelValues(entity).Inc()
}

// RecordCacheMiss increments the miss counter for an entity kind.
func (m *Metrics) RecordCacheMiss(entity string) {
	m.CacheMisses.WithLabelValues(entity).Inc()
}

// RecordCacheError increments the fast-store failure counter.
func (m *Metrics) RecordCacheError(operation string) {
	m.CacheErrors.WithLabelValues(operation).Inc()
}

// RecordEventPublished increments the published-event counter for a topic.
func (m *Metrics) RecordEventPublished(topic string) {
	m.EventsPublished.WithLabelValues(topic).Inc()
}

// RecordPublishError increments the failed-append counter for a topic.
func (m *Metrics) RecordPublishError(topic string) {
	m.PublishErrors.WithLabelValues(topic).Inc()
}

// SetBufferedRecords reports the current accumulator depth for a topic.
func (m *Metrics) SetBufferedRecords(topic string, count int) {
	m.RecordsBuffered.WithLabelValues(topic).Set(float64(count))
}

// RecordBatchFlush records a completed flush with its trigger, record
// count, and duration.
func (m *Metrics) RecordBatchFlush(topic, trigger string, records int, duration time.Duration) {
	m.BatchFlushes.WithLabelValues(topic, trigger).Inc()
	m.RecordsFlushed.WithLabelValues(topic).Add(float64(records))
	m.FlushDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

// RecordBatchDropped increments the dropped-batch counter.
func (m *Metrics) RecordBatchDropped(topic, reason string) {
	m.BatchesDropped.WithLabelValues(topic, reason).Inc()
}

// RecordDocStoreError increments the document-store failure counter.
func (m *Metrics) RecordDocStoreError(operation string) {
	m.DocStoreErrors.WithLabelValues(operation).Inc()
}

// RecordBrokerStatus updates the broker connection gauge.
func (m *Metrics) RecordBrokerStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.BrokerConnected.Set(value)
}

// RecordBrokerRTT updates the broker round-trip time gauge.
func (m *Metrics) RecordBrokerRTT(rtt time.Duration) {
	m.BrokerRTT.Set(float64(rtt.Milliseconds()))
}

// RecordBrokerReconnect increments the reconnection counter.
func (m *Metrics) RecordBrokerReconnect() {
	m.BrokerReconnects.Inc()
}

// RecordCircuitBreakerState updates the circuit breaker gauge.
func (m *Metrics) RecordCircuitBreakerState(state int) {
	m.BrokerCircuitBreaker.Set(float64(state))
}
