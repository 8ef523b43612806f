package service

import (
	"context"
	"fmt"

	"github.com/cassiomorais/storefront/internal/consumer"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/event"
	"github.com/cassiomorais/storefront/internal/eventbus"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/cassiomorais/storefront/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DatabaseService aggregates product and order events into one replica and
// republishes every applied change on database_events.
type DatabaseService struct {
	replica *store.Replica
	emitter emitter
	logger  zerolog.Logger
}

func NewDatabaseService(publisher eventbus.Publisher, metrics *observability.Metrics, logger zerolog.Logger) *DatabaseService {
	return &DatabaseService{
		replica: store.NewReplica(),
		emitter: emitter{
			entity:    "record",
			publisher: publisher,
			metrics:   metrics,
			logger:    logger,
		},
		logger: logger,
	}
}

func (s *DatabaseService) HandleEvent(ctx context.Context, ev event.Event) (consumer.Result, error) {
	switch e := ev.(type) {
	case *event.ProductEvent:
		return s.apply(ctx, ProductsCollection, e)
	case *event.OrderEvent:
		return s.apply(ctx, OrdersCollection, e)
	case *event.DatabaseEvent:
		return consumer.Skipped, nil
	}
	return consumer.Skipped, fmt.Errorf("%w: %T", domainErrors.ErrUnknownEvent, ev)
}

func (s *DatabaseService) apply(ctx context.Context, collection string, ev event.Event) (consumer.Result, error) {
	ch, err := store.ChangeFrom(ev)
	if err != nil {
		return consumer.Skipped, err
	}

	outcome, err := s.replica.Apply(collection, ch)
	if err != nil {
		return consumer.Skipped, err
	}

	logger := s.logger.With().
		Str("collection", collection).
		Str("record_id", ch.ID.String()).
		Str("event_type", string(ch.Type)).
		Str("outcome", outcome.String()).
		Logger()

	if !outcome.Changed() {
		logger.Debug().Msg("Change discarded")
		return resultOf(outcome), nil
	}

	s.emitter.gauge(collection, s.replica.Len(collection))
	logger.Info().Msg("Record synchronized")

	// fire and forget: the replica is already updated
	_ = s.emitter.emit(ctx, event.NewDatabaseEvent(ch.Type, collection, ch.ID, ch.Data, ch.Timestamp))
	return consumer.Applied, nil
}

// Collections returns the names of every collection seen so far.
func (s *DatabaseService) Collections(ctx context.Context) []string {
	return s.replica.Collections()
}

// Collection returns the data snapshots of a collection in insertion order.
// An unknown collection is empty.
func (s *DatabaseService) Collection(ctx context.Context, name string) []map[string]any {
	records := s.replica.List(name)
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		out[i] = rec.Data
	}
	return out
}

func (s *DatabaseService) Record(ctx context.Context, collection string, id uuid.UUID) (store.Record, error) {
	rec, ok := s.replica.Get(collection, id)
	if !ok {
		return store.Record{}, domainErrors.ErrRecordNotFound
	}
	return rec, nil
}
