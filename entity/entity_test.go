package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_Prefix(t *testing.T) {
	assert.Equal(t, "usr", TypeUser.Prefix())
	assert.Equal(t, "brd", TypeBrand.Prefix())
	assert.Equal(t, "prd", TypeProduct.Prefix())
	assert.Equal(t, "unk", Type("bogus").Prefix())
}

func TestType_Valid(t *testing.T) {
	for _, typ := range Types() {
		assert.True(t, typ.Valid())
	}
	assert.False(t, Type("bogus").Valid())
	assert.False(t, Type("").Valid())
}

func TestTypes_DependencyOrder(t *testing.T) {
	assert.Equal(t, []Type{TypeUser, TypeBrand, TypeProduct}, Types())
}

func TestOpKind_Valid(t *testing.T) {
	for _, kind := range Kinds() {
		assert.True(t, kind.Valid())
	}
	assert.False(t, OpKind("upsert").Valid())
}

func TestUserPatch_Columns(t *testing.T) {
	email := "new@example.com"
	first := "Ada"

	patch := UserPatch{Email: &email, FirstName: &first}
	assert.ElementsMatch(t, []string{"email", "first_name"}, patch.Columns())

	assert.Empty(t, UserPatch{}.Columns())
}

func TestUserPatch_ApplyPreservesUnsetFields(t *testing.T) {
	name := "renamed"
	user := User{
		ID:        "usr001abc",
		Email:     "keep@example.com",
		Username:  "original",
		FirstName: "Keep",
		LastName:  "Me",
	}

	patch := UserPatch{Username: &name}
	patch.Apply(&user)

	assert.Equal(t, "renamed", user.Username)
	assert.Equal(t, "keep@example.com", user.Email)
	assert.Equal(t, "Keep", user.FirstName)
	assert.Equal(t, "Me", user.LastName)
}

func TestBrandPatch_Columns(t *testing.T) {
	name := "New Brand"
	logo := "https://cdn.example.com/logo.png"

	patch := BrandPatch{Name: &name, LogoURL: &logo}
	assert.ElementsMatch(t, []string{"name", "logo_url"}, patch.Columns())
}

func TestProductPatch_ApplyAndColumns(t *testing.T) {
	price := int64(1999)
	stock := 7

	product := Product{
		ID:          "prd003xyz",
		BrandID:     "brd001abc",
		Name:        "Widget",
		Description: "unchanged",
	}

	patch := ProductPatch{PriceCents: &price, Stock: &stock}
	patch.Apply(&product)

	assert.ElementsMatch(t, []string{"price_cents", "stock"}, patch.Columns())
	assert.Equal(t, int64(1999), product.PriceCents)
	assert.Equal(t, 7, product.Stock)
	assert.Equal(t, "Widget", product.Name)
	assert.Equal(t, "unchanged", product.Description)
}

func TestPatch_DecodeFromPartialJSON(t *testing.T) {
	var patch ProductPatch
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Gadget"}`), &patch))

	require.NotNil(t, patch.Name)
	assert.Equal(t, "Gadget", *patch.Name)
	assert.Nil(t, patch.BrandID)
	assert.Nil(t, patch.Description)
	assert.Nil(t, patch.PriceCents)
	assert.Nil(t, patch.Stock)
	assert.Equal(t, []string{"name"}, patch.Columns())
}
