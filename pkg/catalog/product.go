// Package catalog defines the product catalog domain: the Product record,
// the change events announced after every committed mutation, the Store
// contract persistence adapters implement, and the Service that couples
// store mutations to change notification.
package catalog

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agentstation/retailchain/pkg/errors"
)

// Field length limits.
const (
	MaxNameLength     = 200
	MaxSKULength      = 100
	MaxCategoryLength = 100
)

// Product is a single catalog record. ID is assigned by the Store on
// creation and is zero before then.
type Product struct {
	ID       int64  `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	SKU      string `json:"sku" yaml:"sku"`
	Category string `json:"category" yaml:"category"`
}

// NewProduct returns an unsaved product with the given fields.
func NewProduct(name, sku, category string) Product {
	return Product{Name: name, SKU: sku, Category: category}
}

// HasID reports whether the product has been assigned a store identifier.
func (p Product) HasID() bool {
	return p.ID != 0
}

// WithoutID returns a copy of p with the identifier cleared.
func (p Product) WithoutID() Product {
	p.ID = 0
	return p
}

// String implements fmt.Stringer.
func (p Product) String() string {
	return fmt.Sprintf("Product(%d, %q, %s, %s)", p.ID, p.Name, p.SKU, p.Category)
}

// Validate checks the presence and length constraints of every field and
// returns a *errors.ValidationError describing all violations, or nil.
func (p Product) Validate() error {
	verr := &errors.ValidationError{}
	checkField(verr, "name", p.Name, "Name is required", MaxNameLength)
	checkField(verr, "sku", p.SKU, "SKU is required", MaxSKULength)
	checkField(verr, "category", p.Category, "Category is required", MaxCategoryLength)
	if verr.HasErrors() {
		return verr
	}
	return nil
}

func checkField(verr *errors.ValidationError, field, value, required string, maxLen int) {
	if strings.TrimSpace(value) == "" {
		verr.Add(field, required)
		return
	}
	if utf8.RuneCountInString(value) > maxLen {
		verr.Add(field, fmt.Sprintf("size must be between 0 and %d", maxLen))
	}
}
