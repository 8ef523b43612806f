package testutil

import (
	"time"

	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/cassiomorais/storefront/internal/domain/product"
	"github.com/google/uuid"
)

func NewTestProduct(name string, price float64) product.Product {
	return product.Product{
		ID:            uuid.New(),
		Name:          name,
		Description:   name + " description",
		Price:         price,
		Category:      product.CategoryHome,
		InStock:       true,
		StockQuantity: 10,
		CreatedAt:     time.Now().UTC(),
	}
}

func NewTestOrder(customerID uuid.UUID, items ...order.Item) order.Order {
	if len(items) == 0 {
		items = []order.Item{{ProductID: uuid.New(), Quantity: 1, UnitPrice: 9.99}}
	}
	return order.Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		Items:      items,
		Status:     order.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

func ProductAttributes(name string, price float64) product.Attributes {
	return product.Attributes{
		Name:          name,
		Description:   name + " description",
		Price:         price,
		Category:      product.CategoryElectronics,
		StockQuantity: 5,
	}
}

func Ptr[T any](v T) *T {
	return &v
}
