package entity

// Patches carry the mutable fields of an entity as optional values. An update
// operation record decodes into a patch; only fields present in the payload
// produce a column write, so absent fields are never overwritten.

// UserPatch is a partial update for a User.
type UserPatch struct {
	Email        *string `json:"email,omitempty"`
	Username     *string `json:"username,omitempty"`
	PasswordHash *string `json:"passwordHash,omitempty"`
	FirstName    *string `json:"firstName,omitempty"`
	LastName     *string `json:"lastName,omitempty"`
}

// Columns returns the column names set by the patch.
func (p UserPatch) Columns() []string {
	var cols []string
	if p.Email != nil {
		cols = append(cols, "email")
	}
	if p.Username != nil {
		cols = append(cols, "username")
	}
	if p.PasswordHash != nil {
		cols = append(cols, "password_hash")
	}
	if p.FirstName != nil {
		cols = append(cols, "first_name")
	}
	if p.LastName != nil {
		cols = append(cols, "last_name")
	}
	return cols
}

// Apply copies the set fields onto the row.
func (p UserPatch) Apply(u *User) {
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
}

// BrandPatch is a partial update for a Brand.
type BrandPatch struct {
	UserID      *string `json:"userId,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	LogoURL     *string `json:"logoUrl,omitempty"`
}

// Columns returns the column names set by the patch.
func (p BrandPatch) Columns() []string {
	var cols []string
	if p.UserID != nil {
		cols = append(cols, "user_id")
	}
	if p.Name != nil {
		cols = append(cols, "name")
	}
	if p.Description != nil {
		cols = append(cols, "description")
	}
	if p.LogoURL != nil {
		cols = append(cols, "logo_url")
	}
	return cols
}

// Apply copies the set fields onto the row.
func (p BrandPatch) Apply(b *Brand) {
	if p.UserID != nil {
		b.UserID = *p.UserID
	}
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.LogoURL != nil {
		b.LogoURL = *p.LogoURL
	}
}

// ProductPatch is a partial update for a Product.
type ProductPatch struct {
	BrandID     *string `json:"brandId,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	PriceCents  *int64  `json:"priceCents,omitempty"`
	Stock       *int    `json:"stock,omitempty"`
}

// Columns returns the column names set by the patch.
func (p ProductPatch) Columns() []string {
	var cols []string
	if p.BrandID != nil {
		cols = append(cols, "brand_id")
	}
	if p.Name != nil {
		cols = append(cols, "name")
	}
	if p.Description != nil {
		cols = append(cols, "description")
	}
	if p.PriceCents != nil {
		cols = append(cols, "price_cents")
	}
	if p.Stock != nil {
		cols = append(cols, "stock")
	}
	return cols
}

// Apply copies the set fields onto the row.
func (p ProductPatch) Apply(pr *Product) {
	if p.BrandID != nil {
		pr.BrandID = *p.BrandID
	}
	if p.Name != nil {
		pr.Name = *p.Name
	}
	if p.Description != nil {
		pr.Description = *p.Description
	}
	if p.PriceCents != nil {
		pr.PriceCents = *p.PriceCents
	}
	if p.Stock != nil {
		pr.Stock = *p.Stock
	}
}
