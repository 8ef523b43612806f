package order

import (
	"fmt"
	"slices"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the order status in the state machine
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Item is a single order line.
type Item struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
}

// TotalPrice returns quantity times unit price.
func (i Item) TotalPrice() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

// Order represents a customer order owned by the order service.
// The total amount is never stored; see TotalAmount.
type Order struct {
	ID         uuid.UUID  `json:"id"`
	CustomerID uuid.UUID  `json:"customer_id"`
	Items      []Item     `json:"items"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// NewOrder creates a new pending order
func NewOrder(customerID uuid.UUID, items []Item) (*Order, error) {
	if customerID == uuid.Nil {
		return nil, errors.NewValidationError("customer_id", "is required")
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}

	return &Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		Items:      slices.Clone(items),
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// TotalAmount sums quantity times unit price over every item.
func (o Order) TotalAmount() float64 {
	var total float64
	for _, item := range o.Items {
		total += item.TotalPrice()
	}
	return total
}

// Version returns the timestamp of the last accepted write.
func (o Order) Version() time.Time {
	if o.UpdatedAt != nil {
		return *o.UpdatedAt
	}
	return o.CreatedAt
}

// transitions lists the forward moves reachable through an update.
// Cancellation has its own operation and is not reachable here.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed},
	StatusConfirmed: {StatusShipped},
	StatusShipped:   {StatusDelivered},
}

// CanTransitionTo checks if the order can move to the given status through an update
func (o Order) CanTransitionTo(next Status) bool {
	if next == o.Status {
		return true
	}
	return slices.Contains(transitions[o.Status], next)
}

// Patch lists the updatable fields of an order. Nil fields are left untouched.
type Patch struct {
	Status *Status
	Items  []Item
}

// IsEmpty reports whether the patch carries no field at all.
func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.Items == nil
}

// Apply returns a copy of the order with the patch applied and UpdatedAt set to at.
func (o Order) Apply(patch Patch, at time.Time) (Order, error) {
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return o, errors.NewValidationError("status", "unknown status "+string(*patch.Status))
		}
		if !o.CanTransitionTo(*patch.Status) {
			return o, errors.NewDomainError(
				"invalid_transition",
				fmt.Sprintf("cannot transition from %s to %s", o.Status, *patch.Status),
				errors.ErrInvalidStateTransition,
			)
		}
	}
	if patch.Items != nil {
		if err := validateItems(patch.Items); err != nil {
			return o, err
		}
	}

	if patch.Status != nil {
		o.Status = *patch.Status
	}
	if patch.Items != nil {
		o.Items = slices.Clone(patch.Items)
	}
	o.UpdatedAt = &at
	return o, nil
}

// Cancel returns a cancelled copy of the order. Only pending orders can be cancelled.
func (o Order) Cancel(at time.Time) (Order, error) {
	if o.Status != StatusPending {
		return o, errors.NewDomainError(
			"not_cancelable",
			fmt.Sprintf("order %s is %s", o.ID, o.Status),
			errors.ErrNotCancelable,
		)
	}
	o.Status = StatusCancelled
	o.UpdatedAt = &at
	return o, nil
}

func validateItems(items []Item) error {
	if len(items) == 0 {
		return errors.NewValidationError("items", "must contain at least one item")
	}
	for i, item := range items {
		if item.ProductID == uuid.Nil {
			return errors.NewValidationError(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if item.Quantity <= 0 {
			return errors.NewValidationError(fmt.Sprintf("items[%d].quantity", i), "must be greater than 0")
		}
		if item.UnitPrice < 0 {
			return errors.NewValidationError(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
		}
	}
	return nil
}
