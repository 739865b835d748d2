// Package entity defines the catalog entity types carried through the
// write-behind pipeline: users, brands, and products, plus the typed patch
// structures used for field-level partial updates and the id generator.
package entity

import "github.com/uptrace/bun"

// Type identifies an entity family. The pipeline provisions one
// create/update/delete topic per type.
type Type string

const (
	TypeUser    Type = "user"
	TypeBrand   Type = "brand"
	TypeProduct Type = "product"
)

// Types returns all entity types in dependency order: a brand references a
// user, a product references a brand.
func Types() []Type {
	return []Type{TypeUser, TypeBrand, TypeProduct}
}

// Valid reports whether t names a known entity type.
func (t Type) Valid() bool {
	switch t {
	case TypeUser, TypeBrand, TypeProduct:
		return true
	}
	return false
}

// Prefix returns the 3-letter id prefix for the type.
func (t Type) Prefix() string {
	switch t {
	case TypeUser:
		return "usr"
	case TypeBrand:
		return "brd"
	case TypeProduct:
		return "prd"
	}
	return "unk"
}

// OpKind identifies the operation a record carries.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Kinds returns all operation kinds.
func Kinds() []OpKind {
	return []OpKind{OpCreate, OpUpdate, OpDelete}
}

// Valid reports whether k names a known operation kind.
func (k OpKind) Valid() bool {
	switch k {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// User is an account that owns brands.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u" json:"-"`

	ID           string `bun:"id,pk" json:"id"`
	Email        string `bun:"email,notnull" json:"email"`
	Username     string `bun:"username" json:"username"`
	PasswordHash string `bun:"password_hash" json:"passwordHash,omitempty"`
	FirstName    string `bun:"first_name" json:"firstName"`
	LastName     string `bun:"last_name" json:"lastName"`
	CreatedAt    int64  `bun:"created_at" json:"createdAt"`
	UpdatedAt    int64  `bun:"updated_at" json:"updatedAt"`
}

// Brand is a seller identity owned by a user.
type Brand struct {
	bun.BaseModel `bun:"table:brands,alias:b" json:"-"`

	ID          string `bun:"id,pk" json:"id"`
	UserID      string `bun:"user_id,notnull" json:"userId"`
	Name        string `bun:"name,notnull" json:"name"`
	Description string `bun:"description" json:"description"`
	LogoURL     string `bun:"logo_url" json:"logoUrl"`
	CreatedAt   int64  `bun:"created_at" json:"createdAt"`
	UpdatedAt   int64  `bun:"updated_at" json:"updatedAt"`

	Products []*Product `bun:"rel:has-many,join:id=brand_id" json:"products,omitempty"`
}

// Product is a catalog item belonging to a brand.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p" json:"-"`

	ID          string `bun:"id,pk" json:"id"`
	BrandID     string `bun:"brand_id,notnull" json:"brandId"`
	Name        string `bun:"name,notnull" json:"name"`
	Description string `bun:"description" json:"description"`
	PriceCents  int64  `bun:"price_cents" json:"priceCents"`
	Stock       int    `bun:"stock" json:"stock"`
	CreatedAt   int64  `bun:"created_at" json:"createdAt"`
	UpdatedAt   int64  `bun:"updated_at" json:"updatedAt"`
}
