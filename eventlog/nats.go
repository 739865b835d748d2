package eventlog

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/merchstream/writeback/natsclient"
)

// The event log binds to NATS JetStream through three narrow capability
// interfaces: a stream is a topic, the terminal subject token is the
// partition key, and a durable consumer is a consumer group. All three
// are satisfied by *natsclient.Client; tests substitute fakes.

// Admin manages topic topology.
type Admin interface {
	StreamNames(ctx context.Context) ([]string, error)
	EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// Producer appends records to topics.
type Producer interface {
	PublishMsg(ctx context.Context, msg *nats.Msg) error
}

// ConsumerGroup delivers topic records to handlers under durable groups.
// Handlers run one message at a time per topic.
type ConsumerGroup interface {
	ConsumeStream(ctx context.Context, stream, subject, durable string, handler func([]byte)) error
	StopConsumers()
}

var (
	_ Admin         = (*natsclient.Client)(nil)
	_ Producer      = (*natsclient.Client)(nil)
	_ ConsumerGroup = (*natsclient.Client)(nil)
)
