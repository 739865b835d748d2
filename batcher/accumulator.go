// Package batcher turns the per-topic record flow into bulk writes. An
// Accumulator buffers records until a size or idle-timeout trigger fires,
// then hands the batch to a processor that performs one bulk document-store
// operation. A failed batch is logged, counted, and dropped; it is never
// requeued.
package batcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/merchstream/writeback/config"
	"github.com/merchstream/writeback/eventlog"
	"github.com/merchstream/writeback/metric"
)

// Processor consumes one flushed batch. Implementations wrap failures as
// flush errors; the accumulator treats any error as terminal for the
// batch.
type Processor interface {
	Process(ctx context.Context, records []eventlog.Record) error
}

// Accumulator buffers one topic's records. The consumer delivers records
// one at a time, so Add never races itself; the mutex serializes Add
// against the idle timer.
type Accumulator struct {
	topic     eventlog.Topic
	size      int
	timeout   time.Duration
	processor Processor
	metrics   *metric.Metrics
	logger    *slog.Logger

	mu         sync.Mutex
	pending    []eventlog.Record
	timer      *time.Timer
	generation uint64
	closed     bool

	// flushMu serializes batch processing so a size-triggered flush and
	// an idle-timer flush never run concurrently for the same topic.
	flushMu sync.Mutex
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithMetrics wires batch gauges and counters.
func WithMetrics(m *metric.Metrics) Option {
	return func(a *Accumulator) {
		a.metrics = m
	}
}

// WithLogger sets the accumulator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Accumulator) {
		if logger != nil {
			a.logger = logger.With("component", "batcher", "topic", a.topic.Label())
		}
	}
}

// NewAccumulator creates the accumulator for one topic.
func NewAccumulator(topic eventlog.Topic, cfg config.BatchConfig, processor Processor, opts ...Option) *Accumulator {
	a := &Accumulator{
		topic:     topic,
		size:      cfg.Size,
		timeout:   cfg.Timeout.Std(),
		processor: processor,
		logger:    slog.Default().With("component", "batcher", "topic", topic.Label()),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Topic returns the topic the accumulator serves.
func (a *Accumulator) Topic() eventlog.Topic {
	return a.topic
}

// Pending returns the current buffer depth.
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// HandleMessage decodes a wire payload and appends it. Undecodable or
// structurally invalid records are logged and discarded; redelivering
// them could never succeed.
func (a *Accumulator) HandleMessage(data []byte) {
	record, err := eventlog.DecodeRecord(data)
	if err != nil {
		a.logger.Warn("discarding undecodable record", "error", err)
		return
	}
	if err := record.Validate(); err != nil {
		a.logger.Warn("discarding invalid record",
			"entity_id", record.EntityID, "message_id", record.MessageID, "error", err)
		return
	}
	a.Add(context.Background(), record)
}

// Add appends a record. Reaching the size threshold flushes synchronously
// before returning, so the buffer never exceeds the configured size;
// otherwise the idle timer restarts.
func (a *Accumulator) Add(ctx context.Context, record eventlog.Record) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.logger.Warn("record arrived after shutdown; dropping",
			"entity_id", record.EntityID, "message_id", record.MessageID)
		return
	}

	a.pending = append(a.pending, record)
	if len(a.pending) >= a.size {
		batch := a.takeLocked()
		a.mu.Unlock()
		a.process(ctx, batch, metric.TriggerSize)
		return
	}

	a.armTimerLocked()
	a.reportDepthLocked()
	a.mu.Unlock()
}

// Flush drains the buffer immediately. A no-op when empty.
func (a *Accumulator) Flush(ctx context.Context) {
	a.mu.Lock()
	if a.closed || len(a.pending) == 0 {
		a.mu.Unlock()
		return
	}
	batch := a.takeLocked()
	a.mu.Unlock()
	a.process(ctx, batch, metric.TriggerManual)
}

// Stop cancels the idle timer and drops whatever is buffered. The records
// remain in the log until retention lapses; a future instance with the
// same consumer group does not see them again (they were acknowledged on
// delivery), so the drop is deliberate and counted. Returns the number of
// records dropped.
func (a *Accumulator) Stop() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0
	}
	a.closed = true
	a.stopTimerLocked()

	dropped := len(a.pending)
	a.pending = nil
	a.reportDepthLocked()
	if dropped > 0 {
		if a.metrics != nil {
			a.metrics.RecordBatchDropped(a.topic.Label(), metric.DropReasonShutdown)
		}
		a.logger.Warn("dropping unflushed records at shutdown", "records", dropped)
	}
	return dropped
}

// takeLocked snapshots and clears the buffer. Callers hold the mutex.
func (a *Accumulator) takeLocked() []eventlog.Record {
	batch := a.pending
	a.pending = nil
	a.stopTimerLocked()
	a.reportDepthLocked()
	return batch
}

// armTimerLocked restarts the idle countdown. The generation guards
// against a timer that fired while an Add held the lock: such a timer
// observes a newer generation and yields.
func (a *Accumulator) armTimerLocked() {
	a.stopTimerLocked()
	a.generation++
	gen := a.generation
	a.timer = time.AfterFunc(a.timeout, func() {
		a.flushOnIdle(gen)
	})
}

func (a *Accumulator) stopTimerLocked() {
	a.generation++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Accumulator) flushOnIdle(gen uint64) {
	a.mu.Lock()
	if a.closed || gen != a.generation || len(a.pending) == 0 {
		a.mu.Unlock()
		return
	}
	batch := a.takeLocked()
	a.mu.Unlock()
	a.process(context.Background(), batch, metric.TriggerTimeout)
}

// process hands a batch to the processor. Failure is terminal: the batch
// is counted as dropped and never requeued.
func (a *Accumulator) process(ctx context.Context, batch []eventlog.Record, trigger string) {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	start := time.Now()
	if err := a.processor.Process(ctx, batch); err != nil {
		if a.metrics != nil {
			a.metrics.RecordBatchDropped(a.topic.Label(), metric.DropReasonFlushFailure)
		}
		a.logger.Error("batch dropped",
			"trigger", trigger, "records", len(batch), "error", err)
		return
	}

	if a.metrics != nil {
		a.metrics.RecordBatchFlush(a.topic.Label(), trigger, len(batch), time.Since(start))
	}
	a.logger.Debug("batch flushed",
		"trigger", trigger, "records", len(batch), "duration", time.Since(start))
}

func (a *Accumulator) reportDepthLocked() {
	if a.metrics != nil {
		a.metrics.SetBufferedRecords(a.topic.Label(), len(a.pending))
	}
}
