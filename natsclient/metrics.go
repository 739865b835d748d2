package natsclient

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/merchstream/writeback/metric"
)

// brokerMetrics exports connection state plus statistics for the streams
// and consumers created through this client. All methods tolerate a nil
// receiver so metrics stay optional.
type brokerMetrics struct {
	core *metric.Metrics

	// Stream state metrics
	streamMessages *prometheus.GaugeVec
	streamBytes    *prometheus.GaugeVec
	streamState    *prometheus.GaugeVec

	// Consumer state metrics
	consumerPending     *prometheus.GaugeVec
	consumerRedelivered *prometheus.GaugeVec

	// Operation errors
	errors *prometheus.CounterVec

	// Tracked resources (only what this client creates or accesses)
	mu        sync.RWMutex
	streams   map[string]jetstream.Stream
	consumers map[string]jetstream.Consumer
}

// newBrokerMetrics creates and registers broker metrics with the provided
// registry. A nil registry disables metrics.
func newBrokerMetrics(registry *metric.Registry) (*brokerMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &brokerMetrics{
		core: registry.CoreMetrics(),

		streamMessages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "writeback",
			Subsystem: "jetstream",
			Name:      "stream_messages",
			Help:      "Current number of messages in stream",
		}, []string{"stream"}),

		streamBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "writeback",
			Subsystem: "jetstream",
			Name:      "stream_bytes",
			Help:      "Storage bytes used by stream",
		}, []string{"stream"}),

		streamState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "writeback",
			Subsystem: "jetstream",
			Name:      "stream_state",
			Help:      "Stream state (1=active, 0=inactive)",
		}, []string{"stream"}),

		consumerPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "writeback",
			Subsystem: "jetstream",
			Name:      "consumer_pending_messages",
			Help:      "Number of pending messages for consumer",
		}, []string{"stream", "consumer"}),

		consumerRedelivered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "writeback",
			Subsystem: "jetstream",
			Name:      "consumer_redelivered",
			Help:      "Redelivered message count for consumer",
		}, []string{"stream", "consumer"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "writeback",
			Subsystem: "jetstream",
			Name:      "operation_errors_total",
			Help:      "Total number of JetStream operation errors",
		}, []string{"operation"}),

		streams:   make(map[string]jetstream.Stream),
		consumers: make(map[string]jetstream.Consumer),
	}

	if err := registry.RegisterGaugeVec("jetstream", "stream_messages", m.streamMessages); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("jetstream", "stream_bytes", m.streamBytes); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("jetstream", "stream_state", m.streamState); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("jetstream", "consumer_pending", m.consumerPending); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("jetstream", "consumer_redelivered", m.consumerRedelivered); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("jetstream", "errors", m.errors); err != nil {
		return nil, err
	}

	return m, nil
}

// recordStatus maps a connection status onto the core broker gauges.
func (m *brokerMetrics) recordStatus(status ConnectionStatus) {
	if m == nil {
		return
	}
	m.core.RecordBrokerStatus(status == StatusConnected)
	switch status {
	case StatusCircuitOpen:
		m.core.RecordCircuitBreakerState(1)
	default:
		m.core.RecordCircuitBreakerState(0)
	}
}

func (m *brokerMetrics) recordConnected(connected bool) {
	if m == nil {
		return
	}
	m.core.RecordBrokerStatus(connected)
}

func (m *brokerMetrics) recordReconnect() {
	if m == nil {
		return
	}
	m.core.RecordBrokerReconnect()
}

func (m *brokerMetrics) recordRTT(rtt time.Duration) {
	if m == nil {
		return
	}
	m.core.RecordBrokerRTT(rtt)
}

// trackStream adds a stream to the tracking list for stats collection.
func (m *brokerMetrics) trackStream(name string, stream jetstream.Stream) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[name] = stream
	m.streamState.WithLabelValues(name).Set(1)
}

// trackConsumer adds a consumer to the tracking list for stats collection.
func (m *brokerMetrics) trackConsumer(streamName, consumerName string, consumer jetstream.Consumer) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := streamName + ":" + consumerName
	m.consumers[key] = consumer
}

// recordError records a JetStream operation error.
func (m *brokerMetrics) recordError(operation string) {
	if m != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}

// updateStats refreshes stream and consumer statistics. Called by the
// background poller; unavailable resources are skipped.
func (m *brokerMetrics) updateStats(ctx context.Context) {
	if m == nil {
		return
	}

	m.mu.RLock()
	streams := make(map[string]jetstream.Stream, len(m.streams))
	consumers := make(map[string]jetstream.Consumer, len(m.consumers))
	for k, v := range m.streams {
		streams[k] = v
	}
	for k, v := range m.consumers {
		consumers[k] = v
	}
	m.mu.RUnlock()

	for name, stream := range streams {
		info, err := stream.Info(ctx)
		if err != nil {
			m.streamState.WithLabelValues(name).Set(0)
			continue
		}

		m.streamMessages.WithLabelValues(name).Set(float64(info.State.Msgs))
		m.streamBytes.WithLabelValues(name).Set(float64(info.State.Bytes))
		m.streamState.WithLabelValues(name).Set(1)
	}

	for _, consumer := range consumers {
		info, err := consumer.Info(ctx)
		if err != nil {
			continue
		}

		m.consumerPending.WithLabelValues(info.Stream, info.Name).Set(float64(info.NumPending))
		m.consumerRedelivered.WithLabelValues(info.Stream, info.Name).Set(float64(info.NumRedelivered))
	}
}

// startPoller starts a background goroutine that refreshes JetStream
// statistics periodically. Returns a cancel function to stop it.
func (m *brokerMetrics) startPoller(ctx context.Context, interval time.Duration) context.CancelFunc {
	if m == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.updateStats(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	return cancel
}
