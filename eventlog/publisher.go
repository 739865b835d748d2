package eventlog

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/merchstream/writeback/entity"
	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/metric"
	"github.com/merchstream/writeback/pkg/retry"
)

// Sealer encrypts payloads before they ride the log. *crypt.Gate
// satisfies it.
type Sealer interface {
	Seal(v any) (string, error)
}

// Publisher appends operation records to topics. Delivery is
// at-least-once: the broker deduplicates on message id within the
// duplicate window, and failures propagate to the caller unretried.
type Publisher struct {
	producer Producer
	gate     Sealer
	registry *Registry
	metrics  *metric.Metrics
	logger   *slog.Logger
	ensure   retry.Config
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherMetrics wires publish counters.
func WithPublisherMetrics(m *metric.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithPublisherLogger sets the publisher's logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger.With("component", "eventlog.Publisher")
		}
	}
}

// WithRegistry lets the publisher rebuild missing topics on demand: a
// publish that finds no stream re-ensures the topic set and retries once.
func WithRegistry(registry *Registry) PublisherOption {
	return func(p *Publisher) {
		p.registry = registry
	}
}

// NewPublisher creates a Publisher over a producer connection and an
// encryption gate.
func NewPublisher(producer Producer, gate Sealer, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		producer: producer,
		gate:     gate,
		logger:   slog.Default().With("component", "eventlog.Publisher"),
		ensure: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish seals the payload when the operation carries one, wraps it in a
// fresh record, and appends it to the topic keyed by entity id. Delete
// operations take a nil payload.
func (p *Publisher) Publish(ctx context.Context, topic Topic, entityID string, payload any) error {
	if entityID == "" {
		return errors.WrapValidation(errors.ErrEmptyID, "Publisher", "Publish", "check entity id")
	}
	if !isSubjectToken(entityID) {
		return errors.WrapValidation(
			fmt.Errorf("entity id %q cannot key a partition", entityID),
			"Publisher", "Publish", "check entity id")
	}
	if !topic.Entity.Valid() || !topic.Kind.Valid() {
		return errors.WrapValidation(
			fmt.Errorf("unknown topic %q", topic.Label()),
			"Publisher", "Publish", "check topic")
	}

	sealed := ""
	if topic.Kind != entity.OpDelete {
		if payload == nil {
			return errors.WrapValidation(
				fmt.Errorf("%s operation requires a payload", topic.Kind),
				"Publisher", "Publish", "check payload")
		}
		var err error
		if sealed, err = p.gate.Seal(payload); err != nil {
			return err
		}
	}

	record := NewRecord(entityID, topic.Kind, sealed)
	data, err := record.Encode()
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: topic.SubjectFor(entityID),
		Header:  nats.Header{},
		Data:    data,
	}
	msg.Header.Set(nats.MsgIdHdr, record.MessageID)

	err = p.producer.PublishMsg(ctx, msg)
	if err != nil && p.registry != nil && isMissingStream(err) {
		// The topic may have been pruned out from under us; rebuild the
		// declared set and try the append once more.
		if ensureErr := retry.Do(ctx, p.ensure, func() error {
			return p.registry.EnsureTopics(ctx)
		}); ensureErr == nil {
			err = p.producer.PublishMsg(ctx, msg)
		}
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordPublishError(topic.Label())
		}
		return errors.WrapInfrastructure(err, "Publisher", "Publish", "append to "+topic.Label())
	}

	if p.metrics != nil {
		p.metrics.RecordEventPublished(topic.Label())
	}
	p.logger.Debug("record published",
		"topic", topic.Label(),
		"entity_id", entityID,
		"message_id", record.MessageID)
	return nil
}

// isMissingStream reports whether a publish failed because no stream
// serves the subject.
func isMissingStream(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrNoStreamResponse) {
		return true
	}
	return strings.Contains(err.Error(), "no response from stream")
}
