// Package worker assembles the consuming side of the pipeline: one
// durable consumer plus one accumulator per topic, attached in dependency
// order and torn down best-effort.
package worker

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/merchstream/writeback/batcher"
	"github.com/merchstream/writeback/config"
	"github.com/merchstream/writeback/docstore"
	"github.com/merchstream/writeback/entity"
	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/eventlog"
	"github.com/merchstream/writeback/metric"
)

// Closer is a connection the orchestrator closes during Stop, after the
// consumers are detached. *natsclient.Client satisfies it.
type Closer interface {
	Close(ctx context.Context) error
}

// Options carries the orchestrator's dependencies. Registry, Consumers,
// Store, and Gate are required.
type Options struct {
	Registry  *eventlog.Registry
	Consumers eventlog.ConsumerGroup
	Store     *docstore.Store
	Gate      batcher.Opener
	Topics    config.TopicsConfig
	Batch     config.BatchConfig

	// Connections are closed in order during Stop: producer before
	// admin when they are separate; a single shared connection appears
	// once.
	Connections []Closer

	Metrics *metric.Metrics
	Logger  *slog.Logger
}

// Orchestrator runs the batch workers for every topic.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger

	mu           sync.Mutex
	accumulators []*batcher.Accumulator
	started      bool
}

// New validates the options and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil || opts.Consumers == nil || opts.Store == nil || opts.Gate == nil {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("registry, consumers, store, and gate are required"),
			"Orchestrator", "New", "check options")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		opts:   opts,
		logger: logger.With("component", "worker"),
	}, nil
}

// Start provisions the topic set and attaches one consumer and one
// accumulator per topic in dependency order: creates and updates
// parent-first, deletes child-first. A failure detaches everything
// already started.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return errors.WrapValidation(errors.ErrAlreadyStarted, "Orchestrator", "Start", "check state")
	}

	if err := o.opts.Registry.EnsureTopics(ctx); err != nil {
		return err
	}

	for _, topic := range eventlog.StartupOrder(o.opts.Topics.Root) {
		processor, err := o.processorFor(topic)
		if err != nil {
			o.rollbackLocked()
			return err
		}

		acc := batcher.NewAccumulator(topic, o.opts.Batch, processor,
			batcher.WithMetrics(o.opts.Metrics),
			batcher.WithLogger(o.logger))

		if err := o.opts.Consumers.ConsumeStream(
			ctx, topic.StreamName(), topic.Subject(), topic.Durable(), acc.HandleMessage); err != nil {
			o.rollbackLocked()
			return errors.WrapInfrastructure(err, "Orchestrator", "Start",
				"attach consumer for "+topic.Label())
		}

		o.accumulators = append(o.accumulators, acc)
		o.logger.Info("worker attached",
			"topic", topic.Label(), "durable", topic.Durable())
	}

	o.started = true
	o.logger.Info("all workers attached", "topics", len(o.accumulators))
	return nil
}

// rollbackLocked undoes a partial start. Callers hold the mutex.
func (o *Orchestrator) rollbackLocked() {
	for _, acc := range o.accumulators {
		acc.Stop()
	}
	o.accumulators = nil
	o.opts.Consumers.StopConsumers()
}

// Stop tears the workers down: accumulators first (cancelling idle timers
// and deliberately dropping unflushed records), then the consumers, then
// the connections in their declared order. Every step runs regardless of
// earlier failures; the combined error is returned.
func (o *Orchestrator) Stop(timeout time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return nil
	}
	o.started = false

	dropped := 0
	for _, acc := range o.accumulators {
		dropped += acc.Stop()
	}
	o.accumulators = nil
	if dropped > 0 {
		o.logger.Warn("dropped unflushed records at shutdown", "records", dropped)
	}

	o.opts.Consumers.StopConsumers()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, conn := range o.opts.Connections {
		if err := conn.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	o.logger.Info("workers stopped")
	return stderrors.Join(errs...)
}

// Running reports whether Start has completed and Stop has not.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

// Accumulators returns the live accumulators, startup-ordered.
func (o *Orchestrator) Accumulators() []*batcher.Accumulator {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*batcher.Accumulator(nil), o.accumulators...)
}

// processorFor builds the bulk processor serving one topic.
func (o *Orchestrator) processorFor(topic eventlog.Topic) (batcher.Processor, error) {
	switch topic.Entity {
	case entity.TypeUser:
		return kindProcessor[*entity.User, entity.UserPatch](topic.Kind,
			docstore.NewUserRepository(o.opts.Store), docstore.UserHandlers(), o.opts.Gate,
			func(u *entity.User, ms int64) { u.UpdatedAt = ms }, o.logger)
	case entity.TypeBrand:
		return kindProcessor[*entity.Brand, entity.BrandPatch](topic.Kind,
			docstore.NewBrandRepository(o.opts.Store), docstore.BrandHandlers(), o.opts.Gate,
			func(b *entity.Brand, ms int64) { b.UpdatedAt = ms }, o.logger)
	case entity.TypeProduct:
		return kindProcessor[*entity.Product, entity.ProductPatch](topic.Kind,
			docstore.NewProductRepository(o.opts.Store), docstore.ProductHandlers(), o.opts.Gate,
			func(p *entity.Product, ms int64) { p.UpdatedAt = ms }, o.logger)
	}
	return nil, errors.WrapConfiguration(
		fmt.Errorf("no processor for entity type %q", topic.Entity),
		"Orchestrator", "processorFor", "build processor")
}

func kindProcessor[T any, P batcher.PatchSpec[T]](
	kind entity.OpKind,
	repo *docstore.Repository[T],
	handlers docstore.Handlers[T],
	gate batcher.Opener,
	touch func(T, int64),
	logger *slog.Logger,
) (batcher.Processor, error) {
	switch kind {
	case entity.OpCreate:
		return batcher.NewCreateProcessor[T](repo, gate, handlers.NewRecord, logger), nil
	case entity.OpUpdate:
		return batcher.NewUpdateProcessor[T, P](repo, gate, handlers, touch, logger), nil
	case entity.OpDelete:
		return batcher.NewDeleteProcessor(repo, logger), nil
	}
	return nil, errors.WrapConfiguration(
		fmt.Errorf("no processor for operation kind %q", kind),
		"Orchestrator", "processorFor", "build processor")
}
