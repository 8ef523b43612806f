package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/storefront/internal/consumer"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/event"
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/cassiomorais/storefront/internal/eventbus"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/cassiomorais/storefront/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrdersCollection is the store collection holding orders.
const OrdersCollection = "orders"

// ItemInput is a requested order line. A nil UnitPrice is filled from the
// product mirror.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice *float64
}

// OrderPatch is a partial order update.
type OrderPatch struct {
	Status *order.Status
	Items  []ItemInput
}

// OrderService owns orders and keeps a read-only mirror of the product
// catalog fed by product events.
type OrderService struct {
	store   *store.Store[order.Order]
	mirror  *store.Replica
	emitter emitter
	logger  zerolog.Logger
	now     func() time.Time
}

func NewOrderService(publisher eventbus.Publisher, metrics *observability.Metrics, logger zerolog.Logger) *OrderService {
	return &OrderService{
		store:  store.New[order.Order](),
		mirror: store.NewReplica(),
		emitter: emitter{
			entity:    "order",
			publisher: publisher,
			metrics:   metrics,
			logger:    logger,
		},
		logger: logger,
		now:    time.Now,
	}
}

func (s *OrderService) Create(ctx context.Context, customerID uuid.UUID, inputs []ItemInput) (Outcome[order.Order], error) {
	items, err := s.resolveItems(inputs)
	if err != nil {
		s.emitter.rejected(string(event.Created))
		return Outcome[order.Order]{}, err
	}
	o, err := order.NewOrder(customerID, items)
	if err != nil {
		s.emitter.rejected(string(event.Created))
		return Outcome[order.Order]{}, err
	}

	s.store.Put(OrdersCollection, o.ID, *o)
	s.emitter.gauge(OrdersCollection, s.store.Collection(OrdersCollection).Len())

	pubErr := s.emitter.emit(ctx, event.NewOrderEvent(event.Created, *o, o.CreatedAt))
	return Outcome[order.Order]{Entity: *o, PublishErr: pubErr}, nil
}

// Update applies a partial update. Status may only move forward; use Cancel
// to cancel.
func (s *OrderService) Update(ctx context.Context, id uuid.UUID, patch OrderPatch) (Outcome[order.Order], error) {
	domainPatch := order.Patch{Status: patch.Status}
	if patch.Status != nil && *patch.Status == order.StatusCancelled {
		s.emitter.rejected(string(event.Updated))
		return Outcome[order.Order]{}, domainErrors.NewValidationError("status", "use the cancel operation to cancel an order")
	}
	if patch.Items != nil {
		items, err := s.resolveItems(patch.Items)
		if err != nil {
			s.emitter.rejected(string(event.Updated))
			return Outcome[order.Order]{}, err
		}
		domainPatch.Items = items
	}

	updated, err := s.store.Update(OrdersCollection, id, func(current order.Order) (order.Order, error) {
		return current.Apply(domainPatch, nextVersion(s.now, current.Version()))
	})
	if err != nil {
		s.emitter.rejected(string(event.Updated))
		if errors.Is(err, store.ErrNotFound) {
			return Outcome[order.Order]{}, domainErrors.ErrOrderNotFound
		}
		return Outcome[order.Order]{}, err
	}

	pubErr := s.emitter.emit(ctx, event.NewOrderEvent(event.Updated, updated, *updated.UpdatedAt))
	return Outcome[order.Order]{Entity: updated, PublishErr: pubErr}, nil
}

// Cancel moves a pending order to cancelled.
func (s *OrderService) Cancel(ctx context.Context, id uuid.UUID) (Outcome[order.Order], error) {
	cancelled, err := s.store.Update(OrdersCollection, id, func(current order.Order) (order.Order, error) {
		return current.Cancel(nextVersion(s.now, current.Version()))
	})
	if err != nil {
		s.emitter.rejected(string(event.Cancelled))
		if errors.Is(err, store.ErrNotFound) {
			return Outcome[order.Order]{}, domainErrors.ErrOrderNotFound
		}
		return Outcome[order.Order]{}, err
	}

	pubErr := s.emitter.emit(ctx, event.NewOrderEvent(event.Cancelled, cancelled, *cancelled.UpdatedAt))
	return Outcome[order.Order]{Entity: cancelled, PublishErr: pubErr}, nil
}

func (s *OrderService) Get(ctx context.Context, id uuid.UUID) (order.Order, error) {
	o, ok := s.store.Get(OrdersCollection, id)
	if !ok {
		return order.Order{}, domainErrors.ErrOrderNotFound
	}
	return o, nil
}

// List returns every order in creation order.
func (s *OrderService) List(ctx context.Context) []order.Order {
	return s.store.List(OrdersCollection)
}

// ListByCustomer returns the orders placed by customerID, possibly none.
func (s *OrderService) ListByCustomer(ctx context.Context, customerID uuid.UUID) []order.Order {
	all := s.store.List(OrdersCollection)
	out := make([]order.Order, 0, len(all))
	for _, o := range all {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out
}

// Count returns the number of orders held.
func (s *OrderService) Count() int {
	return s.store.Collection(OrdersCollection).Len()
}

// CatalogPrice returns the mirrored price of a product.
func (s *OrderService) CatalogPrice(id uuid.UUID) (float64, bool) {
	rec, ok := s.mirror.Get(ProductsCollection, id)
	if !ok {
		return 0, false
	}
	price, ok := rec.Data["price"].(float64)
	return price, ok
}

func (s *OrderService) resolveItems(inputs []ItemInput) ([]order.Item, error) {
	if inputs == nil {
		return nil, nil
	}
	items := make([]order.Item, len(inputs))
	for i, in := range inputs {
		item := order.Item{ProductID: in.ProductID, Quantity: in.Quantity}
		if in.UnitPrice != nil {
			item.UnitPrice = *in.UnitPrice
		} else {
			price, ok := s.CatalogPrice(in.ProductID)
			if !ok {
				return nil, domainErrors.NewValidationError(
					fmt.Sprintf("items[%d].unit_price", i),
					"is required for unknown product "+in.ProductID.String(),
				)
			}
			item.UnitPrice = price
		}
		items[i] = item
	}
	return items, nil
}

// HandleEvent merges product events into the catalog mirror and observes
// order events, which this service already holds authoritatively.
func (s *OrderService) HandleEvent(ctx context.Context, ev event.Event) (consumer.Result, error) {
	switch e := ev.(type) {
	case *event.ProductEvent:
		ch, err := store.ChangeFrom(e)
		if err != nil {
			return consumer.Skipped, err
		}
		outcome, err := s.mirror.Apply(ProductsCollection, ch)
		if err != nil {
			return consumer.Skipped, err
		}
		s.emitter.gauge("catalog", s.mirror.Len(ProductsCollection))
		return resultOf(outcome), nil
	case *event.OrderEvent:
		s.logger.Info().
			Str("event_type", string(e.EventType)).
			Str("order_id", e.OrderID.String()).
			Str("status", string(e.Data.Status)).
			Msg("Observed order event")
		return consumer.Skipped, nil
	case *event.DatabaseEvent:
		return consumer.Skipped, nil
	}
	return consumer.Skipped, fmt.Errorf("%w: %T", domainErrors.ErrUnknownEvent, ev)
}

func resultOf(o store.Outcome) consumer.Result {
	switch {
	case o == store.Stale:
		return consumer.Stale
	case o.Changed():
		return consumer.Applied
	}
	return consumer.Skipped
}
