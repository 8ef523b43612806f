package service

import (
	"context"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/event"
	"github.com/cassiomorais/storefront/internal/eventbus"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Outcome is the result of a committed mutation. The entity is already in the
// store; PublishErr is set when the change event could not be delivered.
type Outcome[T any] struct {
	Entity     T
	PublishErr error
}

// Published reports whether the change event reached the broker.
func (o Outcome[T]) Published() bool {
	return o.PublishErr == nil
}

// Mutation statuses used as the status label of mutations_total.
const (
	mutationPublished     = "published"
	mutationPublishFailed = "publish_failed"
	mutationRejected      = "rejected"
)

// emitter publishes change events for a committed mutation. A publish failure
// is logged and counted, never rolled back.
type emitter struct {
	entity    string
	publisher eventbus.Publisher
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func (e emitter) emit(ctx context.Context, ev event.Event) error {
	op := string(ev.Type())
	value, err := event.Encode(ev)
	if err == nil {
		err = e.publisher.Publish(ctx, ev.Topic(), ev.Key(), value)
	}
	if err != nil {
		e.logger.Error().Err(err).
			Str("event_id", ev.ID().String()).
			Str("event_type", op).
			Str("entity_id", ev.EntityID().String()).
			Msg("Failed to publish change event")
		e.count(op, mutationPublishFailed)
		return err
	}

	e.logger.Debug().
		Str("event_id", ev.ID().String()).
		Str("event_type", op).
		Str("entity_id", ev.EntityID().String()).
		Msg("Change event published")
	e.count(op, mutationPublished)
	return nil
}

func (e emitter) rejected(op string) {
	e.count(op, mutationRejected)
}

func (e emitter) count(op, status string) {
	if e.metrics != nil {
		e.metrics.Mutations.WithLabelValues(e.entity, op, status).Inc()
	}
}

func (e emitter) gauge(collection string, n int) {
	if e.metrics != nil {
		e.metrics.StoreRecords.WithLabelValues(collection).Set(float64(n))
	}
}

// nextVersion returns a write timestamp strictly after prev, so replicas
// ordering by timestamp never see two versions of an entity tie.
func nextVersion(now func() time.Time, prev time.Time) time.Time {
	at := now().UTC()
	if !at.After(prev) {
		at = prev.Add(time.Microsecond)
	}
	return at
}
