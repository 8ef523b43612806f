package service

import (
	"context"
	"errors"
	"time"

	"github.com/cassiomorais/storefront/internal/consumer"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/event"
	"github.com/cassiomorais/storefront/internal/domain/product"
	"github.com/cassiomorais/storefront/internal/eventbus"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/cassiomorais/storefront/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProductsCollection is the store collection holding products.
const ProductsCollection = "products"

// ProductService owns the product catalog.
type ProductService struct {
	store   *store.Store[product.Product]
	emitter emitter
	logger  zerolog.Logger
	now     func() time.Time
}

func NewProductService(publisher eventbus.Publisher, metrics *observability.Metrics, logger zerolog.Logger) *ProductService {
	return &ProductService{
		store: store.New[product.Product](),
		emitter: emitter{
			entity:    "product",
			publisher: publisher,
			metrics:   metrics,
			logger:    logger,
		},
		logger: logger,
		now:    time.Now,
	}
}

func (s *ProductService) Create(ctx context.Context, attrs product.Attributes) (Outcome[product.Product], error) {
	p, err := product.NewProduct(attrs)
	if err != nil {
		s.emitter.rejected(string(event.Created))
		return Outcome[product.Product]{}, err
	}

	s.store.Put(ProductsCollection, p.ID, *p)
	s.emitter.gauge(ProductsCollection, s.store.Collection(ProductsCollection).Len())

	pubErr := s.emitter.emit(ctx, event.NewProductEvent(event.Created, *p, p.CreatedAt))
	return Outcome[product.Product]{Entity: *p, PublishErr: pubErr}, nil
}

// Update applies a partial update. Only fields present in patch change.
func (s *ProductService) Update(ctx context.Context, id uuid.UUID, patch product.Patch) (Outcome[product.Product], error) {
	updated, err := s.store.Update(ProductsCollection, id, func(current product.Product) (product.Product, error) {
		return current.Apply(patch, nextVersion(s.now, current.Version()))
	})
	if err != nil {
		s.emitter.rejected(string(event.Updated))
		if errors.Is(err, store.ErrNotFound) {
			return Outcome[product.Product]{}, domainErrors.ErrProductNotFound
		}
		return Outcome[product.Product]{}, err
	}

	pubErr := s.emitter.emit(ctx, event.NewProductEvent(event.Updated, updated, *updated.UpdatedAt))
	return Outcome[product.Product]{Entity: updated, PublishErr: pubErr}, nil
}

func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) (Outcome[product.Product], error) {
	removed, ok := s.store.Remove(ProductsCollection, id)
	if !ok {
		s.emitter.rejected(string(event.Deleted))
		return Outcome[product.Product]{}, domainErrors.ErrProductNotFound
	}
	s.emitter.gauge(ProductsCollection, s.store.Collection(ProductsCollection).Len())

	at := nextVersion(s.now, removed.Version())
	pubErr := s.emitter.emit(ctx, event.NewProductEvent(event.Deleted, removed, at))
	return Outcome[product.Product]{Entity: removed, PublishErr: pubErr}, nil
}

func (s *ProductService) Get(ctx context.Context, id uuid.UUID) (product.Product, error) {
	p, ok := s.store.Get(ProductsCollection, id)
	if !ok {
		return product.Product{}, domainErrors.ErrProductNotFound
	}
	return p, nil
}

// List returns every product in creation order.
func (s *ProductService) List(ctx context.Context) []product.Product {
	return s.store.List(ProductsCollection)
}

// Count returns the number of products held.
func (s *ProductService) Count() int {
	return s.store.Collection(ProductsCollection).Len()
}

// HandleEvent observes the service's own events. The store is authoritative
// for products, so echoes are never merged back.
func (s *ProductService) HandleEvent(ctx context.Context, ev event.Event) (consumer.Result, error) {
	switch e := ev.(type) {
	case *event.ProductEvent:
		s.logger.Info().
			Str("event_type", string(e.EventType)).
			Str("product_id", e.ProductID.String()).
			Str("name", e.Data.Name).
			Msg("Observed product event")
	case *event.OrderEvent, *event.DatabaseEvent:
		s.logger.Debug().Str("topic", e.Topic()).Msg("Ignoring event outside product scope")
	}
	return consumer.Skipped, nil
}
