package product

import (
	"strings"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/google/uuid"
)

// Category represents the catalog category of a product
type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryBooks       Category = "books"
	CategoryHome        Category = "home"
	CategoryToys        Category = "toys"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryElectronics, CategoryClothing, CategoryBooks, CategoryHome, CategoryToys:
		return true
	}
	return false
}

// Product represents a catalog entry owned by the product service
type Product struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Price         float64    `json:"price"`
	Category      Category   `json:"category"`
	InStock       bool       `json:"in_stock"`
	StockQuantity int        `json:"stock_quantity"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Attributes holds the caller-supplied fields of a new product.
type Attributes struct {
	Name          string
	Description   string
	Price         float64
	Category      Category
	InStock       *bool
	StockQuantity int
}

// NewProduct creates a new product
func NewProduct(attrs Attributes) (*Product, error) {
	if strings.TrimSpace(attrs.Name) == "" {
		return nil, errors.NewValidationError("name", "cannot be empty")
	}
	if err := validatePrice(attrs.Price); err != nil {
		return nil, err
	}
	if !attrs.Category.Valid() {
		return nil, errors.NewValidationError("category", "unknown category "+string(attrs.Category))
	}
	if err := validateStock(attrs.StockQuantity); err != nil {
		return nil, err
	}

	inStock := true
	if attrs.InStock != nil {
		inStock = *attrs.InStock
	}

	return &Product{
		ID:            uuid.New(),
		Name:          attrs.Name,
		Description:   attrs.Description,
		Price:         attrs.Price,
		Category:      attrs.Category,
		InStock:       inStock,
		StockQuantity: attrs.StockQuantity,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Patch lists the updatable fields of a product. Nil fields are left untouched.
type Patch struct {
	Name          *string
	Description   *string
	Price         *float64
	Category      *Category
	InStock       *bool
	StockQuantity *int
}

// IsEmpty reports whether the patch carries no field at all.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil &&
		p.Category == nil && p.InStock == nil && p.StockQuantity == nil
}

// Validate checks every field present in the patch.
func (p Patch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return errors.NewValidationError("name", "cannot be empty")
	}
	if p.Price != nil {
		if err := validatePrice(*p.Price); err != nil {
			return err
		}
	}
	if p.Category != nil && !p.Category.Valid() {
		return errors.NewValidationError("category", "unknown category "+string(*p.Category))
	}
	if p.StockQuantity != nil {
		if err := validateStock(*p.StockQuantity); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of the product with the patch applied and UpdatedAt set to at.
func (p Product) Apply(patch Patch, at time.Time) (Product, error) {
	if err := patch.Validate(); err != nil {
		return p, err
	}

	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.InStock != nil {
		p.InStock = *patch.InStock
	}
	if patch.StockQuantity != nil {
		p.StockQuantity = *patch.StockQuantity
	}
	p.UpdatedAt = &at
	return p, nil
}

// Version returns the timestamp of the last accepted write.
func (p Product) Version() time.Time {
	if p.UpdatedAt != nil {
		return *p.UpdatedAt
	}
	return p.CreatedAt
}

func validatePrice(price float64) error {
	if price < 0 {
		return errors.NewValidationError("price", "must not be negative")
	}
	return nil
}

func validateStock(qty int) error {
	if qty < 0 {
		return errors.NewValidationError("stock_quantity", "must not be negative")
	}
	return nil
}
