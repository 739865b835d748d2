// Package catalog is the single injection point for the entity API layer:
// mutations update the fast cache synchronously and append to the event
// log for deferred persistence; reads come through the cache-aside path.
// A successful mutation means "cache updated and event accepted by the
// log", not "durably persisted".
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/merchstream/writeback/cacheaside"
	"github.com/merchstream/writeback/entity"
	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/eventlog"
	"github.com/merchstream/writeback/pkg/timestamp"
)

// Patch applies field-level changes to an entity. The entity patch types
// satisfy it.
type Patch[T any] interface {
	Columns() []string
	Apply(T)
}

// Service is the facade for one entity type. Create, Update, and Delete
// write the cache and publish an operation record; Get and List read
// through the cache.
type Service[T any, P Patch[T]] struct {
	entity    entity.Type
	root      string
	cache     *cacheaside.Store[T]
	publisher *eventlog.Publisher
	exists    entity.ExistsFunc
	stamp     func(value T, id string, now int64)
	touch     func(value T, now int64)
	logger    *slog.Logger
}

func newService[T any, P Patch[T]](
	e entity.Type,
	root string,
	cache *cacheaside.Store[T],
	publisher *eventlog.Publisher,
	exists entity.ExistsFunc,
	stamp func(T, string, int64),
	touch func(T, int64),
	logger *slog.Logger,
) *Service[T, P] {
	return &Service[T, P]{
		entity:    e,
		root:      root,
		cache:     cache,
		publisher: publisher,
		exists:    exists,
		stamp:     stamp,
		touch:     touch,
		logger:    logger.With("component", "catalog", "entity", string(e)),
	}
}

// Create assigns the value a fresh id and creation timestamps, caches it,
// and publishes a create record. The returned id is immediately readable
// through Get even though the document store has not seen the row yet.
func (s *Service[T, P]) Create(ctx context.Context, value T) (string, error) {
	id, err := entity.NewID(ctx, s.entity, s.exists)
	if err != nil {
		return "", err
	}
	now := timestamp.Now()
	s.stamp(value, id, now)

	if err := s.cache.Set(ctx, id, value); err != nil {
		return "", err
	}
	if err := s.publisher.Publish(ctx, s.topic(entity.OpCreate), id, value); err != nil {
		// The log never accepted the create, so the cached entry would be
		// a phantom: readable now, gone after the ttl, never persisted.
		_ = s.cache.Delete(ctx, id)
		return "", err
	}

	s.logger.Debug("entity created", "id", id)
	return id, nil
}

// Update reads the current value through the cache, applies the patch,
// refreshes the cache, and publishes an update record carrying only the
// patched fields. Updating an unknown id reports errors.ErrNotFound.
func (s *Service[T, P]) Update(ctx context.Context, id string, patch P) error {
	if len(patch.Columns()) == 0 {
		return errors.WrapValidation(
			fmt.Errorf("patch sets no fields"),
			"Catalog", "Update", "check patch")
	}

	value, err := s.cache.Get(ctx, id)
	if err != nil {
		return err
	}
	patch.Apply(value)
	s.touch(value, timestamp.Now())

	if err := s.cache.Set(ctx, id, value); err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, s.topic(entity.OpUpdate), id, patch); err != nil {
		return err
	}

	s.logger.Debug("entity updated", "id", id, "columns", patch.Columns())
	return nil
}

// Delete drops the cache entry and publishes a delete record. The
// document-store row disappears when the delete batch flushes; deleting
// an id with no row is a no-op there, so Delete does not check existence.
func (s *Service[T, P]) Delete(ctx context.Context, id string) error {
	if err := s.cache.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, s.topic(entity.OpDelete), id, nil); err != nil {
		return err
	}

	s.logger.Debug("entity deleted", "id", id)
	return nil
}

// Get returns the entity by id through the cache-aside path.
func (s *Service[T, P]) Get(ctx context.Context, id string) (T, error) {
	return s.cache.Get(ctx, id)
}

// List returns one page of entities in insertion order through the
// cache-aside path. Pages are cached under (type, page, limit).
func (s *Service[T, P]) List(ctx context.Context, page, limit int) ([]T, error) {
	return s.cache.ListPage(ctx, page, limit)
}

func (s *Service[T, P]) topic(kind entity.OpKind) eventlog.Topic {
	return eventlog.NewTopic(s.root, s.entity, kind)
}
