package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/merchstream/writeback/cacheaside"
	"github.com/merchstream/writeback/docstore"
	"github.com/merchstream/writeback/entity"
	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/eventlog"
	"github.com/merchstream/writeback/metric"
)

// Deps are the shared collaborators behind every entity service.
type Deps struct {
	Store     *docstore.Store
	Fast      cacheaside.FastStore
	Publisher *eventlog.Publisher
	Codec     cacheaside.Codec
	Root      string // leading topic subject token

	Metrics *metric.Metrics
	Logger  *slog.Logger
}

// Catalog bundles the per-entity facades over one shared cache, document
// store, and publisher.
type Catalog struct {
	Users    *Service[*entity.User, entity.UserPatch]
	Brands   *Brands
	Products *Service[*entity.Product, entity.ProductPatch]
}

// Brands adds the composite brand read to the generic facade.
type Brands struct {
	*Service[*entity.Brand, entity.BrandPatch]
	store *docstore.Store
}

// WithProducts returns a brand with its products in creation order,
// resolved through one document-store query. Composite reads never
// compose cache lookups; a half-fresh brand/products pair is worse than
// a consistent read.
func (b *Brands) WithProducts(ctx context.Context, id string) (*entity.Brand, error) {
	return b.store.BrandWithProducts(ctx, id)
}

// New wires the three entity facades. Store, Fast, Publisher, Codec, and
// Root are required.
func New(deps Deps) (*Catalog, error) {
	if deps.Store == nil || deps.Fast == nil || deps.Publisher == nil || deps.Codec == nil {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("store, fast store, publisher, and codec are required"),
			"Catalog", "New", "check dependencies")
	}
	if deps.Root == "" {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("topic root is required"),
			"Catalog", "New", "check dependencies")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	users := docstore.NewUserRepository(deps.Store)
	brands := docstore.NewBrandRepository(deps.Store)
	products := docstore.NewProductRepository(deps.Store)

	userService := newService[*entity.User, entity.UserPatch](
		entity.TypeUser, deps.Root,
		cacheaside.New[*entity.User](entity.TypeUser, deps.Fast, users, deps.Codec,
			cacheaside.WithMetrics[*entity.User](deps.Metrics),
			cacheaside.WithLogger[*entity.User](logger)),
		deps.Publisher, users.Exists,
		func(u *entity.User, id string, now int64) {
			u.ID = id
			u.CreatedAt = now
			u.UpdatedAt = now
		},
		func(u *entity.User, now int64) { u.UpdatedAt = now },
		logger)

	brandService := newService[*entity.Brand, entity.BrandPatch](
		entity.TypeBrand, deps.Root,
		cacheaside.New[*entity.Brand](entity.TypeBrand, deps.Fast, brands, deps.Codec,
			cacheaside.WithMetrics[*entity.Brand](deps.Metrics),
			cacheaside.WithLogger[*entity.Brand](logger)),
		deps.Publisher, brands.Exists,
		func(b *entity.Brand, id string, now int64) {
			b.ID = id
			b.CreatedAt = now
			b.UpdatedAt = now
		},
		func(b *entity.Brand, now int64) { b.UpdatedAt = now },
		logger)

	productService := newService[*entity.Product, entity.ProductPatch](
		entity.TypeProduct, deps.Root,
		cacheaside.New[*entity.Product](entity.TypeProduct, deps.Fast, products, deps.Codec,
			cacheaside.WithMetrics[*entity.Product](deps.Metrics),
			cacheaside.WithLogger[*entity.Product](logger)),
		deps.Publisher, products.Exists,
		func(p *entity.Product, id string, now int64) {
			p.ID = id
			p.CreatedAt = now
			p.UpdatedAt = now
		},
		func(p *entity.Product, now int64) { p.UpdatedAt = now },
		logger)

	return &Catalog{
		Users:    userService,
		Brands:   &Brands{Service: brandService, store: deps.Store},
		Products: productService,
	}, nil
}
