package faststore

import (
	"context"

	"github.com/viccon/sturdyc"

	"github.com/merchstream/writeback/config"
	"github.com/merchstream/writeback/errors"
)

// Memory is the in-process fast store, a sharded cache with TTL-based
// expiry and capacity eviction. State is lost on restart and not shared
// between processes.
type Memory struct {
	cache *sturdyc.Client[[]byte]
}

var _ Store = (*Memory)(nil)

// NewMemory builds an in-process store from the configured capacity,
// shard count, TTL, and eviction percentage.
func NewMemory(cfg config.FastStoreConfig) (*Memory, error) {
	return &Memory{
		cache: sturdyc.New[[]byte](
			cfg.Capacity,
			cfg.NumShards,
			cfg.TTL.Std(),
			cfg.EvictionPercentage,
		),
	}, nil
}

// Get retrieves a cached value. Missing and expired keys yield
// errors.ErrKeyNotFound.
func (s *Memory) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := s.cache.Get(key)
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	return value, nil
}

// Set stores a value with the cache TTL.
func (s *Memory) Set(_ context.Context, key string, value []byte) error {
	s.cache.Set(key, value)
	return nil
}

// Delete removes a key. Deleting an absent key succeeds.
func (s *Memory) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Ping always succeeds for the in-process store.
func (s *Memory) Ping(_ context.Context) error {
	return nil
}

// Close releases the cache.
func (s *Memory) Close() error {
	return nil
}
