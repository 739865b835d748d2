// Package cacheaside layers the fast store over the document store for
// reads. A hit serves from the fast store; a miss falls through to the
// document store and repopulates the cache best-effort. The document
// store is authoritative: fast-store failures are swallowed and logged,
// document-store failures propagate.
package cacheaside

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/merchstream/writeback/entity"
	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/metric"
)

// maxPageLimit caps the page size of cached list reads.
const maxPageLimit = 100

// FastStore is the slice of the fast-store surface the cache layer uses.
// A missing or expired key is errors.ErrKeyNotFound.
type FastStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Reader is the document-store read surface backing a cache miss.
// *docstore.Repository[T] satisfies it.
type Reader[T any] interface {
	GetByID(ctx context.Context, id string) (T, error)
	Page(ctx context.Context, page, limit int) ([]T, error)
}

// Codec seals values entering the fast store and opens them on the way
// back. *crypt.Gate satisfies it.
type Codec interface {
	Seal(v any) (string, error)
	Open(sealed string, dst any) error
}

// Store is the cache-aside read path for one entity type.
type Store[T any] struct {
	entity  entity.Type
	fast    FastStore
	docs    Reader[T]
	codec   Codec
	metrics *metric.Metrics
	logger  *slog.Logger
}

// Option configures a Store.
type Option[T any] func(*Store[T])

// WithMetrics wires cache hit/miss/error counters.
func WithMetrics[T any](m *metric.Metrics) Option[T] {
	return func(s *Store[T]) {
		s.metrics = m
	}
}

// WithLogger sets the store's logger.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(s *Store[T]) {
		if logger != nil {
			s.logger = logger.With("component", "cacheaside", "entity", string(s.entity))
		}
	}
}

// New creates the cache-aside store for one entity type.
func New[T any](e entity.Type, fast FastStore, docs Reader[T], codec Codec, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		entity: e,
		fast:   fast,
		docs:   docs,
		codec:  codec,
		logger: slog.Default().With("component", "cacheaside", "entity", string(e)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the fast-store key for one entity.
func Key(t entity.Type, id string) string {
	return string(t) + ":" + id
}

// PageKey returns the fast-store key for one page of a list read.
func PageKey(t entity.Type, page, limit int) string {
	return fmt.Sprintf("%s:page:%d:%d", t, page, limit)
}

// Get serves one entity: fast store first, document store on a miss. A
// miss in both yields errors.ErrNotFound. The fast store is repopulated
// best-effort after a document-store hit.
func (s *Store[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, errors.WrapValidation(errors.ErrEmptyID, "CacheAside", "Get", "check id")
	}

	cacheKey := Key(s.entity, id)
	if value, ok := s.lookup(ctx, cacheKey); ok {
		return value, nil
	}

	value, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return zero, err
	}
	s.refresh(ctx, cacheKey, value)
	return value, nil
}

// lookup tries the fast store. The bool reports a usable hit; every other
// outcome (missing key, store failure, undecodable entry) falls through
// to the document store and counts as a miss.
func (s *Store[T]) lookup(ctx context.Context, cacheKey string) (T, bool) {
	var value T
	data, err := s.fast.Get(ctx, cacheKey)
	switch {
	case err == nil:
		if openErr := s.codec.Open(string(data), &value); openErr == nil {
			s.recordHit()
			return value, true
		}
		// The entry cannot be opened (key rotation, corruption); drop it
		// so the next read repopulates cleanly.
		s.logger.Warn("dropping unreadable cache entry", "key", cacheKey)
		s.recordCacheError("open")
		_ = s.fast.Delete(ctx, cacheKey)
	case stderrors.Is(err, errors.ErrKeyNotFound):
		// Plain miss.
	default:
		s.recordCacheError("get")
		s.logger.Warn("fast store read failed", "key", cacheKey, "error", err)
	}

	s.recordMiss()
	var zero T
	return zero, false
}

// Set seals the value and writes it to the fast store. A fast-store
// failure is logged and swallowed; sealing failures (missing secret)
// propagate.
func (s *Store[T]) Set(ctx context.Context, id string, value T) error {
	if id == "" {
		return errors.WrapValidation(errors.ErrEmptyID, "CacheAside", "Set", "check id")
	}

	sealed, err := s.codec.Seal(value)
	if err != nil {
		return err
	}

	cacheKey := Key(s.entity, id)
	if err := s.fast.Set(ctx, cacheKey, []byte(sealed)); err != nil {
		s.recordCacheError("set")
		s.logger.Warn("fast store write failed", "key", cacheKey, "error", err)
	}
	return nil
}

// Delete removes the entity's fast-store entry. The document-store row is
// untouched; its deletion travels through the event log. Absent entries
// and fast-store failures are not errors.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapValidation(errors.ErrEmptyID, "CacheAside", "Delete", "check id")
	}

	cacheKey := Key(s.entity, id)
	if err := s.fast.Delete(ctx, cacheKey); err != nil && !stderrors.Is(err, errors.ErrKeyNotFound) {
		s.recordCacheError("delete")
		s.logger.Warn("fast store delete failed", "key", cacheKey, "error", err)
	}
	return nil
}

// ListPage serves one page of entities in insertion order, cached under
// the (page, limit) pair. Pages are 1-based; limit must be between 1 and
// 100. Consecutive pages may overlap around concurrent writes; no
// cross-page consistency is promised.
func (s *Store[T]) ListPage(ctx context.Context, page, limit int) ([]T, error) {
	if page < 1 {
		return nil, errors.WrapValidation(errors.ErrInvalidPage, "CacheAside", "ListPage", "check page")
	}
	if limit < 1 || limit > maxPageLimit {
		return nil, errors.WrapValidation(errors.ErrInvalidLimit, "CacheAside", "ListPage", "check limit")
	}

	cacheKey := PageKey(s.entity, page, limit)
	data, err := s.fast.Get(ctx, cacheKey)
	switch {
	case err == nil:
		var values []T
		if openErr := s.codec.Open(string(data), &values); openErr == nil {
			s.recordHit()
			return values, nil
		}
		s.logger.Warn("dropping unreadable cache entry", "key", cacheKey)
		s.recordCacheError("open")
		_ = s.fast.Delete(ctx, cacheKey)
	case stderrors.Is(err, errors.ErrKeyNotFound):
	default:
		s.recordCacheError("get")
		s.logger.Warn("fast store read failed", "key", cacheKey, "error", err)
	}
	s.recordMiss()

	values, err := s.docs.Page(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	s.refresh(ctx, cacheKey, values)
	return values, nil
}

// refresh writes a value to the fast store best-effort.
func (s *Store[T]) refresh(ctx context.Context, cacheKey string, value any) {
	sealed, err := s.codec.Seal(value)
	if err != nil {
		s.logger.Warn("could not seal cache value", "key", cacheKey, "error", err)
		return
	}
	if err := s.fast.Set(ctx, cacheKey, []byte(sealed)); err != nil {
		s.recordCacheError("set")
		s.logger.Warn("fast store write failed", "key", cacheKey, "error", err)
	}
}

func (s *Store[T]) recordHit() {
	if s.metrics != nil {
		s.metrics.RecordCacheHit(string(s.entity))
	}
}

func (s *Store[T]) recordMiss() {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(string(s.entity))
	}
}

func (s *Store[T]) recordCacheError(operation string) {
	if s.metrics != nil {
		s.metrics.RecordCacheError(operation)
	}
}
