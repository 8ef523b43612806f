package service

import (
	"context"
	"testing"
	"time"

	"github.com/cassiomorais/storefront/internal/consumer"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/event"
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/cassiomorais/storefront/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

func setupOrderService() (*OrderService, *testutil.MockPublisher) {
	pub := testutil.NewMockPublisher()
	return NewOrderService(pub, nil, zerolog.Nop()), pub
}

func pricedItem(price float64, qty int) ItemInput {
	return ItemInput{ProductID: uuid.New(), Quantity: qty, UnitPrice: testutil.Ptr(price)}
}

func createOrder(t *testing.T, svc *OrderService, customer uuid.UUID) order.Order {
	t.Helper()
	out, err := svc.Create(context.Background(), customer, []ItemInput{pricedItem(10, 3)})
	require.NoError(t, err)
	return out.Entity
}

// --- Create Tests ---

func TestOrderCreate_PendingWithComputedTotal(t *testing.T) {
	svc, pub := setupOrderService()
	customer := uuid.New()

	out, err := svc.Create(context.Background(), customer, []ItemInput{pricedItem(10, 3), pricedItem(2.5, 2)})
	require.NoError(t, err)
	assert.True(t, out.Published())
	assert.Equal(t, order.StatusPending, out.Entity.Status)
	assert.Equal(t, 35.0, out.Entity.TotalAmount())

	events, err := pub.Events()
	require.NoError(t, err)
	require.Len(t, events, 1)
	oe := events[0].(*event.OrderEvent)
	assert.Equal(t, event.Created, oe.EventType)
	assert.Equal(t, customer, oe.Data.CustomerID)
	assert.Len(t, oe.Data.Items, 2)
}

func TestOrderCreate_Validation(t *testing.T) {
	tests := []struct {
		name     string
		customer uuid.UUID
		items    []ItemInput
	}{
		{"missing customer", uuid.Nil, []ItemInput{pricedItem(1, 1)}},
		{"no items", uuid.New(), []ItemInput{}},
		{"zero quantity", uuid.New(), []ItemInput{pricedItem(1, 0)}},
		{"negative price", uuid.New(), []ItemInput{pricedItem(-1, 1)}},
		{"unknown product without price", uuid.New(), []ItemInput{{ProductID: uuid.New(), Quantity: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, pub := setupOrderService()
			_, err := svc.Create(context.Background(), tt.customer, tt.items)
			assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
			assert.Empty(t, pub.Messages())
			assert.Zero(t, svc.Count())
		})
	}
}

func TestOrderCreate_FillsPriceFromCatalogMirror(t *testing.T) {
	svc, _ := setupOrderService()
	ctx := context.Background()
	p := testutil.NewTestProduct("Lamp", 10)

	res, err := svc.HandleEvent(ctx, event.NewProductEvent(event.Created, p, p.CreatedAt))
	require.NoError(t, err)
	assert.Equal(t, consumer.Applied, res)

	out, err := svc.Create(ctx, uuid.New(), []ItemInput{{ProductID: p.ID, Quantity: 3}})
	require.NoError(t, err)
	assert.Equal(t, 10.0, out.Entity.Items[0].UnitPrice)
	assert.Equal(t, 30.0, out.Entity.TotalAmount())
}

// --- Update Tests ---

func TestOrderUpdate_ForwardStatus(t *testing.T) {
	svc, pub := setupOrderService()
	ctx := context.Background()
	o := createOrder(t, svc, uuid.New())

	out, err := svc.Update(ctx, o.ID, OrderPatch{Status: testutil.Ptr(order.StatusConfirmed)})
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, out.Entity.Status)
	assert.Equal(t, o.Items, out.Entity.Items)

	events, err := pub.Events()
	require.NoError(t, err)
	assert.Equal(t, event.Updated, events[len(events)-1].Type())
}

func TestOrderUpdate_ReplacesItems(t *testing.T) {
	svc, _ := setupOrderService()
	ctx := context.Background()
	o := createOrder(t, svc, uuid.New())

	out, err := svc.Update(ctx, o.ID, OrderPatch{Items: []ItemInput{pricedItem(4, 2)}})
	require.NoError(t, err)
	assert.Equal(t, 8.0, out.Entity.TotalAmount())
	assert.Equal(t, order.StatusPending, out.Entity.Status)
}

func TestOrderUpdate_Errors(t *testing.T) {
	svc, pub := setupOrderService()
	ctx := context.Background()
	o := createOrder(t, svc, uuid.New())
	pub.Reset()

	_, err := svc.Update(ctx, uuid.New(), OrderPatch{Status: testutil.Ptr(order.StatusConfirmed)})
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotFound)

	_, err = svc.Update(ctx, o.ID, OrderPatch{Status: testutil.Ptr(order.Status("lost"))})
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)

	_, err = svc.Update(ctx, o.ID, OrderPatch{Status: testutil.Ptr(order.StatusCancelled)})
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)

	_, err = svc.Update(ctx, o.ID, OrderPatch{Status: testutil.Ptr(order.StatusShipped)})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	_, err = svc.Update(ctx, o.ID, OrderPatch{Status: testutil.Ptr(order.StatusConfirmed)})
	require.NoError(t, err)
	_, err = svc.Update(ctx, o.ID, OrderPatch{Status: testutil.Ptr(order.StatusPending)})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	got, _ := svc.Get(ctx, o.ID)
	assert.Equal(t, order.StatusConfirmed, got.Status)
	assert.Len(t, pub.Messages(), 1)
}

// --- Cancel Tests ---

func TestOrderCancel_StateMachine(t *testing.T) {
	svc, pub := setupOrderService()
	ctx := context.Background()

	pending := createOrder(t, svc, uuid.New())
	svc.now = func() time.Time { return pending.CreatedAt.Add(time.Minute) }
	out, err := svc.Cancel(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, out.Entity.Status)
	require.NotNil(t, out.Entity.UpdatedAt)
	assert.True(t, out.Entity.UpdatedAt.After(out.Entity.CreatedAt))

	events, err := pub.Events()
	require.NoError(t, err)
	last := events[len(events)-1].(*event.OrderEvent)
	assert.Equal(t, event.Cancelled, last.EventType)
	assert.Equal(t, order.StatusCancelled, last.Data.Status)
	assert.True(t, last.Timestamp.Equal(*out.Entity.UpdatedAt))

	_, err = svc.Cancel(ctx, pending.ID)
	assert.ErrorIs(t, err, domainErrors.ErrNotCancelable)

	shipped := createOrder(t, svc, uuid.New())
	for _, status := range []order.Status{order.StatusConfirmed, order.StatusShipped} {
		_, err = svc.Update(ctx, shipped.ID, OrderPatch{Status: testutil.Ptr(status)})
		require.NoError(t, err)
	}
	before, err := svc.Get(ctx, shipped.ID)
	require.NoError(t, err)
	published := len(pub.Messages())

	_, err = svc.Cancel(ctx, shipped.ID)
	assert.ErrorIs(t, err, domainErrors.ErrNotCancelable)
	got, err := svc.Get(ctx, shipped.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, got.Status)
	assert.Equal(t, before.UpdatedAt, got.UpdatedAt)
	assert.Len(t, pub.Messages(), published)

	_, err = svc.Cancel(ctx, uuid.New())
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotFound)
}

// --- Query Tests ---

func TestOrderListByCustomer(t *testing.T) {
	svc, _ := setupOrderService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	a1 := createOrder(t, svc, alice)
	createOrder(t, svc, bob)
	a2 := createOrder(t, svc, alice)

	got := svc.ListByCustomer(ctx, alice)
	require.Len(t, got, 2)
	assert.Equal(t, a1.ID, got[0].ID)
	assert.Equal(t, a2.ID, got[1].ID)

	assert.Empty(t, svc.ListByCustomer(ctx, uuid.New()))
	assert.NotNil(t, svc.ListByCustomer(ctx, uuid.New()))
	assert.Len(t, svc.List(ctx), 3)
}

// --- Event Tests ---

func TestOrderHandleEvent_MirrorFollowsCatalog(t *testing.T) {
	svc, _ := setupOrderService()
	ctx := context.Background()
	p := testutil.NewTestProduct("Lamp", 10)

	_, err := svc.HandleEvent(ctx, event.NewProductEvent(event.Created, p, p.CreatedAt))
	require.NoError(t, err)

	later := p.CreatedAt.Add(time.Second)
	repriced := p
	repriced.Price = 12
	repriced.UpdatedAt = &later
	res, err := svc.HandleEvent(ctx, event.NewProductEvent(event.Updated, repriced, later))
	require.NoError(t, err)
	assert.Equal(t, consumer.Applied, res)

	price, ok := svc.CatalogPrice(p.ID)
	require.True(t, ok)
	assert.Equal(t, 12.0, price)

	// a stale replay of the create does not roll the price back
	res, err = svc.HandleEvent(ctx, event.NewProductEvent(event.Created, p, p.CreatedAt))
	require.NoError(t, err)
	assert.Equal(t, consumer.Stale, res)

	res, err = svc.HandleEvent(ctx, event.NewProductEvent(event.Deleted, repriced, later.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, consumer.Applied, res)
	_, ok = svc.CatalogPrice(p.ID)
	assert.False(t, ok)
}

func TestOrderHandleEvent_ObservesOrderEvents(t *testing.T) {
	svc, _ := setupOrderService()
	o := testutil.NewTestOrder(uuid.New())

	res, err := svc.HandleEvent(context.Background(), event.NewOrderEvent(event.Created, o, o.CreatedAt))
	require.NoError(t, err)
	assert.Equal(t, consumer.Skipped, res)
	assert.Zero(t, svc.Count())
}
