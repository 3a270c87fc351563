package catalog

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/retailchain/pkg/errors"
)

func TestProductValidate(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		fields  map[string]string
	}{
		{
			name:    "valid",
			product: NewProduct("Milk 1L", "MILK-001", "Dairy"),
		},
		{
			name:    "all blank",
			product: Product{},
			fields: map[string]string{
				"name":     "Name is required",
				"sku":      "SKU is required",
				"category": "Category is required",
			},
		},
		{
			name:    "whitespace only sku",
			product: NewProduct("Bread", "   ", "Bakery"),
			fields:  map[string]string{"sku": "SKU is required"},
		},
		{
			name:    "name too long",
			product: NewProduct(strings.Repeat("n", MaxNameLength+1), "X", "Y"),
			fields:  map[string]string{"name": "size must be between 0 and 200"},
		},
		{
			name:    "limits are in characters",
			product: NewProduct(strings.Repeat("é", MaxNameLength), strings.Repeat("ß", MaxSKULength), "Y"),
		},
		{
			name:    "category too long",
			product: NewProduct("a", "b", strings.Repeat("c", MaxCategoryLength+1)),
			fields:  map[string]string{"category": "size must be between 0 and 100"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.product.Validate()
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))

			var verr *errors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.fields, verr.Fields)
		})
	}
}

func TestProductJSON(t *testing.T) {
	data, err := json.Marshal(Product{ID: 3, Name: "Eggs 12pcs", SKU: "EGG-012", Category: "Poultry"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"name":"Eggs 12pcs","sku":"EGG-012","category":"Poultry"}`, string(data))
}

func TestDefaultSeed(t *testing.T) {
	seed := DefaultSeed()
	require.Len(t, seed, 3)
	for _, p := range seed {
		assert.NoError(t, p.Validate())
		assert.False(t, p.HasID())
	}
	assert.Equal(t, "MILK-001", seed[0].SKU)
	assert.Equal(t, "BREAD-001", seed[1].SKU)
	assert.Equal(t, "EGG-012", seed[2].SKU)
}
