package docstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/merchstream/writeback/entity"
	"github.com/merchstream/writeback/errors"
)

// UserHandlers returns the row operations for users.
func UserHandlers() Handlers[*entity.User] {
	return Handlers[*entity.User]{
		NewRecord: func() *entity.User { return &entity.User{} },
		ID:        func(u *entity.User) string { return u.ID },
		SetID:     func(u *entity.User, id string) { u.ID = id },
	}
}

// BrandHandlers returns the row operations for brands.
func BrandHandlers() Handlers[*entity.Brand] {
	return Handlers[*entity.Brand]{
		NewRecord: func() *entity.Brand { return &entity.Brand{} },
		ID:        func(b *entity.Brand) string { return b.ID },
		SetID:     func(b *entity.Brand, id string) { b.ID = id },
	}
}

// ProductHandlers returns the row operations for products.
func ProductHandlers() Handlers[*entity.Product] {
	return Handlers[*entity.Product]{
		NewRecord: func() *entity.Product { return &entity.Product{} },
		ID:        func(p *entity.Product) string { return p.ID },
		SetID:     func(p *entity.Product, id string) { p.ID = id },
	}
}

// NewUserRepository returns the users repository.
func NewUserRepository(store *Store) *Repository[*entity.User] {
	return NewRepository(store, string(entity.TypeUser), UserHandlers())
}

// NewBrandRepository returns the brands repository.
func NewBrandRepository(store *Store) *Repository[*entity.Brand] {
	return NewRepository(store, string(entity.TypeBrand), BrandHandlers())
}

// NewProductRepository returns the products repository.
func NewProductRepository(store *Store) *Repository[*entity.Product] {
	return NewRepository(store, string(entity.TypeProduct), ProductHandlers())
}

// BrandWithProducts loads a brand together with its products in stable
// creation order. This read joins two tables, so it always goes to the
// database rather than the fast store.
func (s *Store) BrandWithProducts(ctx context.Context, brandID string) (*entity.Brand, error) {
	if brandID == "" {
		return nil, errors.WrapValidation(errors.ErrEmptyID, "DocStore", "BrandWithProducts", "check id")
	}

	db, err := s.DB(ctx)
	if err != nil {
		return nil, err
	}

	brand := &entity.Brand{ID: brandID}
	if err := db.NewSelect().
		Model(brand).
		WherePK().
		Relation("Products", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("created_at ASC", "id ASC")
		}).
		Scan(ctx); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.WrapValidation(
				fmt.Errorf("%w: brand %q", errors.ErrNotFound, brandID),
				"DocStore", "BrandWithProducts", "select brand")
		}
		s.recordError("select")
		return nil, errors.WrapInfrastructure(err, "DocStore", "BrandWithProducts", "select brand")
	}
	return brand, nil
}
