package docstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/merchstream/writeback/errors"
)

// maxPageLimit caps the page size of list reads.
const maxPageLimit = 100

// Handlers supplies the per-entity operations a generic repository cannot
// derive from the type parameter: constructing an empty record and reading
// or writing its id.
type Handlers[T any] struct {
	NewRecord func() T
	ID        func(T) string
	SetID     func(T, string)
}

// Patch is one partial update: a row whose primary key selects the target
// and the columns to write from it. Rows carrying values for columns not
// listed are left untouched in the database.
type Patch[T any] struct {
	Row     T
	Columns []string
}

// Repository provides typed access to one entity table. T is a pointer to
// a bun model struct.
type Repository[T any] struct {
	store    *Store
	entity   string
	handlers Handlers[T]
}

// NewRepository creates a repository over store for the named entity.
func NewRepository[T any](store *Store, entity string, handlers Handlers[T]) *Repository[T] {
	return &Repository[T]{store: store, entity: entity, handlers: handlers}
}

// Entity returns the entity name the repository serves.
func (r *Repository[T]) Entity() string {
	return r.entity
}

// GetByID loads one record. A missing row yields errors.ErrNotFound.
func (r *Repository[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, errors.WrapValidation(errors.ErrEmptyID, "Repository", "GetByID", "check id")
	}

	db, err := r.store.DB(ctx)
	if err != nil {
		return zero, err
	}

	record := r.handlers.NewRecord()
	r.handlers.SetID(record, id)
	if err := db.NewSelect().Model(record).WherePK().Scan(ctx); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return zero, errors.WrapValidation(
				fmt.Errorf("%w: %s %q", errors.ErrNotFound, r.entity, id),
				"Repository", "GetByID", "select "+r.entity)
		}
		r.store.recordError("select")
		return zero, errors.WrapInfrastructure(err, "Repository", "GetByID", "select "+r.entity)
	}
	return record, nil
}

// Page returns one page of records in stable creation order. Pages are
// 1-based; limit must be between 1 and 100.
func (r *Repository[T]) Page(ctx context.Context, page, limit int) ([]T, error) {
	if page < 1 {
		return nil, errors.WrapValidation(errors.ErrInvalidPage, "Repository", "Page", "check page")
	}
	if limit < 1 || limit > maxPageLimit {
		return nil, errors.WrapValidation(errors.ErrInvalidLimit, "Repository", "Page", "check limit")
	}

	db, err := r.store.DB(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]T, 0, limit)
	if err := db.NewSelect().
		Model(&records).
		Order("created_at ASC", "id ASC").
		Limit(limit).
		Offset((page - 1) * limit).
		Scan(ctx); err != nil {
		r.store.recordError("select")
		return nil, errors.WrapInfrastructure(err, "Repository", "Page", "list "+r.entity)
	}
	return records, nil
}

// Insert writes one record.
func (r *Repository[T]) Insert(ctx context.Context, record T) error {
	db, err := r.store.DB(ctx)
	if err != nil {
		return err
	}

	if _, err := db.NewInsert().Model(record).Exec(ctx); err != nil {
		r.store.recordError("insert")
		return errors.WrapInfrastructure(err, "Repository", "Insert", "insert "+r.entity)
	}
	return nil
}

// BulkInsert writes a batch of records in one statement and returns the
// number of rows written. Rows whose primary key already exists are
// skipped rather than failing the batch, so a replayed create is a no-op.
func (r *Repository[T]) BulkInsert(ctx context.Context, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	db, err := r.store.DB(ctx)
	if err != nil {
		return 0, err
	}

	res, err := db.NewInsert().Model(&records).Ignore().Exec(ctx)
	if err != nil {
		r.store.recordError("bulk_insert")
		return 0, errors.WrapInfrastructure(err, "Repository", "BulkInsert", "insert "+r.entity)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// BulkPatch applies partial updates record by record, writing only the
// columns each patch names. Failures do not stop the batch; the combined
// error carries every failed row. Patching a row that no longer exists
// affects nothing and is not an error.
func (r *Repository[T]) BulkPatch(ctx context.Context, patches []Patch[T]) error {
	if len(patches) == 0 {
		return nil
	}

	db, err := r.store.DB(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range patches {
		if len(p.Columns) == 0 {
			continue
		}
		if _, err := db.NewUpdate().
			Model(p.Row).
			Column(p.Columns...).
			WherePK().
			Exec(ctx); err != nil {
			r.store.recordError("bulk_patch")
			errs = append(errs, errors.WrapInfrastructure(err, "Repository", "BulkPatch",
				fmt.Sprintf("update %s %q", r.entity, r.handlers.ID(p.Row))))
		}
	}
	return stderrors.Join(errs...)
}

// DeleteByIDs removes the named rows in one statement and returns the
// number actually deleted. Ids with no row are skipped silently.
func (r *Repository[T]) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	db, err := r.store.DB(ctx)
	if err != nil {
		return 0, err
	}

	res, err := db.NewDelete().
		Model(r.handlers.NewRecord()).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		r.store.recordError("delete")
		return 0, errors.WrapInfrastructure(err, "Repository", "DeleteByIDs", "delete "+r.entity)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Exists reports whether a row with the id is present.
func (r *Repository[T]) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.WrapValidation(errors.ErrEmptyID, "Repository", "Exists", "check id")
	}

	db, err := r.store.DB(ctx)
	if err != nil {
		return false, err
	}

	n, err := db.NewSelect().
		Model(r.handlers.NewRecord()).
		Where("id = ?", id).
		Count(ctx)
	if err != nil {
		r.store.recordError("count")
		return false, errors.WrapInfrastructure(err, "Repository", "Exists", "count "+r.entity)
	}
	return n > 0, nil
}
