package faststore

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/merchstream/writeback/config"
	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/natsclient"
)

// kvStore is the slice of natsclient.KVStore the driver needs.
type kvStore interface {
	Get(ctx context.Context, key string) (*natsclient.KVEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string) error
}

// rttPinger reports broker reachability.
type rttPinger interface {
	RTT() (time.Duration, error)
}

// KV is the broker-backed fast store. Entries live in a key-value bucket
// whose TTL evicts them; every process sharing the bucket sees the same
// cache.
type KV struct {
	store  kvStore
	pinger rttPinger
	bucket string
}

var _ Store = (*KV)(nil)

// NewKV provisions the configured bucket (with the TTL applied at the
// bucket level) and returns a store over it.
func NewKV(ctx context.Context, client *natsclient.Client, cfg config.FastStoreConfig) (*KV, error) {
	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "write-behind fast store",
		TTL:         cfg.TTL.Std(),
	})
	if err != nil {
		return nil, errors.WrapInfrastructure(err, "FastStore", "NewKV",
			fmt.Sprintf("provision bucket %s", cfg.Bucket))
	}

	return &KV{
		store:  client.NewKVStore(bucket),
		pinger: client,
		bucket: cfg.Bucket,
	}, nil
}

// newKVFromStore wires an existing kv store, for tests.
func newKVFromStore(store kvStore, pinger rttPinger, bucket string) *KV {
	return &KV{store: store, pinger: pinger, bucket: bucket}
}

// Get retrieves a cached value. Missing and expired keys yield
// errors.ErrKeyNotFound.
func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.store.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return nil, errors.ErrKeyNotFound
		}
		return nil, errors.WrapInfrastructure(err, "FastStore", "Get", "read key")
	}
	return entry.Value, nil
}

// Set stores a value. Expiry follows the bucket TTL.
func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.store.Put(ctx, key, value); err != nil {
		return errors.WrapInfrastructure(err, "FastStore", "Set", "write key")
	}
	return nil
}

// Delete removes a key. Deleting an absent key succeeds.
func (s *KV) Delete(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return nil
		}
		return errors.WrapInfrastructure(err, "FastStore", "Delete", "remove key")
	}
	return nil
}

// Ping verifies the broker connection is live.
func (s *KV) Ping(_ context.Context) error {
	if _, err := s.pinger.RTT(); err != nil {
		return errors.WrapInfrastructure(err, "FastStore", "Ping", "check broker connection")
	}
	return nil
}

// Close releases nothing; the broker connection is owned by the caller.
func (s *KV) Close() error {
	return nil
}
