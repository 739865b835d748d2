// Package faststore implements the read cache in front of the document
// store. Two backends are available: a broker-backed key-value bucket
// shared across processes, and an in-process sharded cache for
// single-node deployments. Entries expire after the TTL configured at
// construction; readers treat expiry as a miss.
package faststore

import (
	"context"
	"fmt"

	"github.com/merchstream/writeback/config"
	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/natsclient"
)

// Store is the fast-store contract. Get reports a missing or expired key
// as errors.ErrKeyNotFound; Delete of an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// New builds the fast store selected by cfg.Mode. The client is required
// in kv mode and ignored in memory mode.
func New(ctx context.Context, cfg config.FastStoreConfig, client *natsclient.Client) (Store, error) {
	switch cfg.Mode {
	case config.FastStoreModeKV:
		if client == nil {
			return nil, errors.WrapConfiguration(
				fmt.Errorf("kv mode requires a broker client"),
				"FastStore", "New", "check configuration")
		}
		return NewKV(ctx, client, cfg)
	case config.FastStoreModeMemory:
		return NewMemory(cfg)
	default:
		return nil, errors.WrapConfiguration(
			fmt.Errorf("unknown fast-store mode %q", cfg.Mode),
			"FastStore", "New", "check configuration")
	}
}
