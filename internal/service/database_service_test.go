package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cassiomorais/storefront/internal/consumer"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/event"
	"github.com/cassiomorais/storefront/internal/domain/product"
	"github.com/cassiomorais/storefront/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDatabaseService() (*DatabaseService, *testutil.MockPublisher) {
	pub := testutil.NewMockPublisher()
	return NewDatabaseService(pub, nil, zerolog.Nop()), pub
}

func TestDatabaseHandleEvent_MirrorsAndRepublishes(t *testing.T) {
	svc, pub := setupDatabaseService()
	ctx := context.Background()
	p := testutil.NewTestProduct("Lamp", 10)
	o := testutil.NewTestOrder(uuid.New())

	res, err := svc.HandleEvent(ctx, event.NewProductEvent(event.Created, p, p.CreatedAt))
	require.NoError(t, err)
	assert.Equal(t, consumer.Applied, res)
	res, err = svc.HandleEvent(ctx, event.NewOrderEvent(event.Created, o, o.CreatedAt))
	require.NoError(t, err)
	assert.Equal(t, consumer.Applied, res)

	assert.Equal(t, []string{OrdersCollection, ProductsCollection}, svc.Collections(ctx))

	rec, err := svc.Record(ctx, ProductsCollection, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lamp", rec.Data["name"])
	assert.Equal(t, 10.0, rec.Data["price"])

	events, err := pub.Events()
	require.NoError(t, err)
	require.Len(t, events, 2)
	de := events[0].(*event.DatabaseEvent)
	assert.Equal(t, ProductsCollection, de.Collection)
	assert.Equal(t, ProductsCollection, de.Key())
	assert.Equal(t, p.ID, de.RecordID)
	assert.Equal(t, event.Created, de.EventType)
	assert.Equal(t, OrdersCollection, events[1].Key())
}

func TestDatabaseHandleEvent_ConvergesInAnyRelativeOrder(t *testing.T) {
	ctx := context.Background()
	productPub, orderPub := testutil.NewMockPublisher(), testutil.NewMockPublisher()
	products := NewProductService(productPub, nil, zerolog.Nop())
	orders := NewOrderService(orderPub, nil, zerolog.Nop())

	created, err := products.Create(ctx, testutil.ProductAttributes("Lamp", 10))
	require.NoError(t, err)
	_, err = products.Update(ctx, created.Entity.ID, product.Patch{Price: testutil.Ptr(12.0)})
	require.NoError(t, err)
	placed, err := orders.Create(ctx, uuid.New(), []ItemInput{
		{ProductID: created.Entity.ID, Quantity: 2, UnitPrice: testutil.Ptr(12.0)},
	})
	require.NoError(t, err)
	_, err = orders.Cancel(ctx, placed.Entity.ID)
	require.NoError(t, err)

	productEvents, err := productPub.Events()
	require.NoError(t, err)
	require.Len(t, productEvents, 2)
	orderEvents, err := orderPub.Events()
	require.NoError(t, err)
	require.Len(t, orderEvents, 2)

	wantProduct, err := products.Get(ctx, created.Entity.ID)
	require.NoError(t, err)
	wantOrder, err := orders.Get(ctx, placed.Entity.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		events []event.Event
	}{
		{"products first", []event.Event{productEvents[0], productEvents[1], orderEvents[0], orderEvents[1]}},
		{"orders first", []event.Event{orderEvents[0], orderEvents[1], productEvents[0], productEvents[1]}},
		{"interleaved", []event.Event{orderEvents[0], productEvents[0], orderEvents[1], productEvents[1]}},
		{"newest first", []event.Event{orderEvents[1], productEvents[1], orderEvents[0], productEvents[0]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := setupDatabaseService()
			for _, ev := range tt.events {
				_, err := svc.HandleEvent(ctx, ev)
				require.NoError(t, err)
			}

			assert.Equal(t, []string{OrdersCollection, ProductsCollection}, svc.Collections(ctx))
			assert.Len(t, svc.Collection(ctx, ProductsCollection), 1)
			assert.Len(t, svc.Collection(ctx, OrdersCollection), 1)

			rec, err := svc.Record(ctx, ProductsCollection, wantProduct.ID)
			require.NoError(t, err)
			assert.Equal(t, wantProduct.Name, rec.Data["name"])
			assert.Equal(t, wantProduct.Price, rec.Data["price"])
			require.NotNil(t, rec.UpdatedAt)
			assert.True(t, rec.UpdatedAt.Equal(*wantProduct.UpdatedAt))

			rec, err = svc.Record(ctx, OrdersCollection, wantOrder.ID)
			require.NoError(t, err)
			assert.Equal(t, string(wantOrder.Status), rec.Data["status"])
			assert.Equal(t, wantOrder.CustomerID.String(), rec.Data["customer_id"])
			require.NotNil(t, rec.UpdatedAt)
			assert.True(t, rec.UpdatedAt.Equal(*wantOrder.UpdatedAt))
		})
	}
}

func TestDatabaseHandleEvent_StaleIsNotRepublished(t *testing.T) {
	svc, pub := setupDatabaseService()
	ctx := context.Background()
	p := testutil.NewTestProduct("Lamp", 10)

	newer := p
	at := p.CreatedAt.Add(2 * time.Second)
	newer.Price = 20
	newer.UpdatedAt = &at
	_, err := svc.HandleEvent(ctx, event.NewProductEvent(event.Updated, newer, at))
	require.NoError(t, err)

	older := p
	before := p.CreatedAt.Add(time.Second)
	older.Price = 15
	older.UpdatedAt = &before
	res, err := svc.HandleEvent(ctx, event.NewProductEvent(event.Updated, older, before))
	require.NoError(t, err)
	assert.Equal(t, consumer.Stale, res)

	rec, err := svc.Record(ctx, ProductsCollection, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, rec.Data["price"])
	assert.Len(t, pub.Messages(), 1)
}

func TestDatabaseHandleEvent_DeleteOfUnknownIsSkipped(t *testing.T) {
	svc, pub := setupDatabaseService()
	p := testutil.NewTestProduct("Ghost", 1)

	res, err := svc.HandleEvent(context.Background(), event.NewProductEvent(event.Deleted, p, time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, consumer.Skipped, res)
	assert.Empty(t, pub.Messages())
}

func TestDatabaseHandleEvent_PublishFailureDoesNotFailApply(t *testing.T) {
	svc, pub := setupDatabaseService()
	pub.PublishFunc = func(ctx context.Context, topic, key string, value []byte) error {
		return errors.New("broker down")
	}
	p := testutil.NewTestProduct("Lamp", 10)

	res, err := svc.HandleEvent(context.Background(), event.NewProductEvent(event.Created, p, p.CreatedAt))
	require.NoError(t, err)
	assert.Equal(t, consumer.Applied, res)

	_, err = svc.Record(context.Background(), ProductsCollection, p.ID)
	assert.NoError(t, err)
}

func TestDatabaseHandleEvent_IgnoresOwnOutput(t *testing.T) {
	svc, pub := setupDatabaseService()
	id := uuid.New()

	res, err := svc.HandleEvent(context.Background(),
		event.NewDatabaseEvent(event.Created, ProductsCollection, id, map[string]any{"id": id.String()}, time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, consumer.Skipped, res)
	assert.Empty(t, svc.Collections(context.Background()))
	assert.Empty(t, pub.Messages())
}

func TestDatabaseQueries(t *testing.T) {
	svc, _ := setupDatabaseService()
	ctx := context.Background()

	assert.Empty(t, svc.Collection(ctx, "products"))
	_, err := svc.Record(ctx, ProductsCollection, uuid.New())
	assert.ErrorIs(t, err, domainErrors.ErrRecordNotFound)

	for _, name := range []string{"a", "b"} {
		p := testutil.NewTestProduct(name, 1)
		_, err := svc.HandleEvent(ctx, event.NewProductEvent(event.Created, p, p.CreatedAt))
		require.NoError(t, err)
	}
	data := svc.Collection(ctx, ProductsCollection)
	require.Len(t, data, 2)
	assert.Equal(t, "a", data[0]["name"])
	assert.Equal(t, "b", data[1]["name"])
}
