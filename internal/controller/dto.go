package controller

import (
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/cassiomorais/storefront/internal/domain/product"
	"github.com/cassiomorais/storefront/internal/service"
	"github.com/google/uuid"
)

// --- Request DTOs ---
// These carry the JSON shape and validation tags. Controllers convert them to
// domain attributes or service inputs before calling the service.

// CreateProductRequest holds the input for creating a product.
type CreateProductRequest struct {
	Name          string   `json:"name" validate:"required"`
	Description   string   `json:"description"`
	Price         *float64 `json:"price" validate:"required,gte=0"`
	Category      string   `json:"category" validate:"required,oneof=electronics clothing books home toys"`
	InStock       *bool    `json:"in_stock,omitempty"`
	StockQuantity int      `json:"stock_quantity" validate:"gte=0"`
}

func (r CreateProductRequest) attributes() product.Attributes {
	return product.Attributes{
		Name:          r.Name,
		Description:   r.Description,
		Price:         *r.Price,
		Category:      product.Category(r.Category),
		InStock:       r.InStock,
		StockQuantity: r.StockQuantity,
	}
}

// UpdateProductRequest holds a partial product update; absent fields are left
// unchanged.
type UpdateProductRequest struct {
	Name          *string  `json:"name,omitempty" validate:"omitempty,min=1"`
	Description   *string  `json:"description,omitempty"`
	Price         *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	Category      *string  `json:"category,omitempty" validate:"omitempty,oneof=electronics clothing books home toys"`
	InStock       *bool    `json:"in_stock,omitempty"`
	StockQuantity *int     `json:"stock_quantity,omitempty" validate:"omitempty,gte=0"`
}

func (r UpdateProductRequest) patch() product.Patch {
	p := product.Patch{
		Name:          r.Name,
		Description:   r.Description,
		Price:         r.Price,
		InStock:       r.InStock,
		StockQuantity: r.StockQuantity,
	}
	if r.Category != nil {
		c := product.Category(*r.Category)
		p.Category = &c
	}
	return p
}

// OrderItemRequest is one order line. UnitPrice may be omitted when the
// product is known to the order service's catalog mirror.
type OrderItemRequest struct {
	ProductID string   `json:"product_id" validate:"required,uuid"`
	Quantity  int      `json:"quantity" validate:"gt=0"`
	UnitPrice *float64 `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
}

// CreateOrderRequest holds the input for placing an order.
type CreateOrderRequest struct {
	CustomerID string             `json:"customer_id" validate:"required,uuid"`
	Items      []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdateOrderRequest holds a partial order update.
type UpdateOrderRequest struct {
	Status *string            `json:"status,omitempty" validate:"omitempty,oneof=pending confirmed shipped delivered cancelled"`
	Items  []OrderItemRequest `json:"items,omitempty" validate:"omitempty,dive"`
}

func (r UpdateOrderRequest) patch() service.OrderPatch {
	var p service.OrderPatch
	if r.Status != nil {
		s := order.Status(*r.Status)
		p.Status = &s
	}
	if r.Items != nil {
		p.Items = toItemInputs(r.Items)
	}
	return p
}

// toItemInputs converts validated item requests; product ids were checked by
// the uuid tag.
func toItemInputs(items []OrderItemRequest) []service.ItemInput {
	inputs := make([]service.ItemInput, 0, len(items))
	for _, it := range items {
		inputs = append(inputs, service.ItemInput{
			ProductID: uuid.MustParse(it.ProductID),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return inputs
}

// --- Response DTOs ---

// OrderResponse is an order plus its computed total.
type OrderResponse struct {
	order.Order
	TotalAmount float64 `json:"total_amount"`
}

// MessageResponse is a plain informational reply.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// FromOrder converts a domain order to its API response.
func FromOrder(o order.Order) OrderResponse {
	return OrderResponse{Order: o, TotalAmount: o.TotalAmount()}
}

// FromOrders converts a list of orders, never returning nil.
func FromOrders(orders []order.Order) []OrderResponse {
	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, FromOrder(o))
	}
	return resp
}
