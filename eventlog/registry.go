package eventlog

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/merchstream/writeback/config"
	"github.com/merchstream/writeback/errors"
)

// Registry declares the topic set on the broker.
type Registry struct {
	admin  Admin
	cfg    config.TopicsConfig
	logger *slog.Logger
}

// NewRegistry creates a Registry over an admin connection. A nil logger
// falls back to slog.Default.
func NewRegistry(admin Admin, cfg config.TopicsConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		admin:  admin,
		cfg:    cfg,
		logger: logger.With("component", "eventlog.Registry"),
	}
}

// Topics returns the declared topic set.
func (r *Registry) Topics() []Topic {
	return AllTopics(r.cfg.Root)
}

// EnsureTopics creates any declared topic missing from the broker.
// Existing topics are left untouched, so repeat calls are cheap no-ops.
func (r *Registry) EnsureTopics(ctx context.Context) error {
	names, err := r.admin.StreamNames(ctx)
	if err != nil {
		return errors.WrapInfrastructure(err, "Registry", "EnsureTopics", "list streams")
	}

	existing := make(map[string]struct{}, len(names))
	for _, name := range names {
		existing[name] = struct{}{}
	}

	created := 0
	for _, topic := range r.Topics() {
		if _, ok := existing[topic.StreamName()]; ok {
			continue
		}
		if _, err := r.admin.EnsureStream(ctx, r.streamConfig(topic)); err != nil {
			return errors.WrapInfrastructure(err, "Registry", "EnsureTopics",
				"create topic "+topic.Label())
		}
		r.logger.Info("created topic", "topic", topic.Label(), "stream", topic.StreamName())
		created++
	}

	if created > 0 {
		r.logger.Info("topic set complete", "created", created, "total", len(r.Topics()))
	}
	return nil
}

func (r *Registry) streamConfig(topic Topic) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        topic.StreamName(),
		Description: "write-behind topic " + topic.Label(),
		Subjects:    []string{topic.Subject()},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      r.cfg.Retention.Std(),
		Replicas:    r.cfg.Replicas,
		Duplicates:  r.cfg.DedupWindow.Std(),
	}
}
