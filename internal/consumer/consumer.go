// Package consumer runs the per-service event loop: poll, decode, dispatch,
// acknowledge. A bad message never stops the loop.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/event"
	"github.com/cassiomorais/storefront/internal/eventbus"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/cassiomorais/storefront/pkg/retry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Result is the policy outcome of handling one event.
type Result int

const (
	// Applied means the event changed local state.
	Applied Result = iota
	// Stale means the event was older than what is held and was discarded.
	Stale
	// Skipped means the event was observed without changing anything.
	Skipped
)

func (r Result) String() string {
	switch r {
	case Applied:
		return observability.ConsumeApplied
	case Stale:
		return observability.ConsumeStale
	case Skipped:
		return observability.ConsumeSkipped
	}
	return "unknown"
}

// Handler processes decoded events.
type Handler interface {
	HandleEvent(ctx context.Context, ev event.Event) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev event.Event) (Result, error)

func (f HandlerFunc) HandleEvent(ctx context.Context, ev event.Event) (Result, error) {
	return f(ctx, ev)
}

type Config struct {
	Group       string
	Topics      []string
	PollTimeout time.Duration
	// MaxBackoff caps the delay between failed subscribe or poll attempts.
	MaxBackoff time.Duration
}

type Loop struct {
	bus     eventbus.Subscriber
	handler Handler
	cfg     Config
	metrics *observability.Metrics
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// New builds a loop. metrics may be nil.
func New(bus eventbus.Subscriber, handler Handler, cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Loop {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Loop{
		bus:     bus,
		handler: handler,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With().Str("group", cfg.Group).Logger(),
		tracer:  otel.Tracer("storefront/consumer"),
	}
}

func (l *Loop) backoff() retry.Config {
	return retry.Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     l.cfg.MaxBackoff,
		OnRetry: func(attempt uint, err error) {
			l.logger.Warn().Err(err).Uint("attempt", attempt+1).Msg("Broker unavailable, backing off")
		},
	}
}

// Run consumes until ctx is cancelled or the subscription is closed under it.
// Cancellation is a clean stop and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	sub, err := retry.DoWithResult(ctx, l.backoff(), func() (eventbus.Subscription, error) {
		return l.bus.Subscribe(ctx, l.cfg.Group, l.cfg.Topics)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", l.cfg.Group, err)
	}
	defer sub.Close()

	l.logger.Info().Strs("topics", l.cfg.Topics).Msg("Consumer started")
	defer l.logger.Info().Msg("Consumer stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		d, err := retry.DoWithResult(ctx, l.backoff(), func() (eventbus.Delivery, error) {
			d, err := sub.Poll(ctx, l.cfg.PollTimeout)
			if errors.Is(err, eventbus.ErrClosed) {
				return d, retry.Permanent(err)
			}
			return d, err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("poll %s: %w", l.cfg.Group, err)
		}

		switch d.Kind {
		case eventbus.Empty:
		case eventbus.EndOfPartition:
			l.logger.Debug().Msg("Reached end of partition")
		case eventbus.Delivered:
			l.process(ctx, sub, d.Message)
		}
	}
}

func (l *Loop) process(ctx context.Context, sub eventbus.Subscription, msg eventbus.Message) {
	start := time.Now()
	logger := l.logger.With().Str("topic", msg.Topic).Str("key", msg.Key).Str("message_id", msg.ID).Logger()

	ctx, span := l.tracer.Start(ctx, "consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.consumer.group.name", l.cfg.Group),
		),
	)
	defer span.End()

	defer func() {
		if err := sub.Ack(context.WithoutCancel(ctx), msg); err != nil {
			logger.Error().Err(err).Msg("Failed to ack message")
		}
		if l.metrics != nil {
			l.metrics.EventProcessingDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
		}
	}()

	ev, err := event.Decode(msg.Topic, msg.Key, msg.Value)
	if err != nil {
		logger.Warn().Err(err).Msg("Skipping undecodable message")
		span.RecordError(err)
		l.count(msg.Topic, observability.ConsumeDecodeError)
		return
	}
	logger = logger.With().Str("event_type", string(ev.Type())).Str("entity_id", ev.EntityID().String()).Logger()

	result, err := l.dispatch(ctx, ev)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to process event")
		span.RecordError(err)
		span.SetStatus(codes.Error, "processing failed")
		l.count(msg.Topic, observability.ConsumeFailed)
		return
	}

	logger.Debug().Str("result", result.String()).Msg("Event processed")
	l.count(msg.Topic, result.String())
}

// dispatch isolates handler panics so one poisoned event cannot kill the loop.
func (l *Loop) dispatch(ctx context.Context, ev event.Event) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return l.handler.HandleEvent(ctx, ev)
}

func (l *Loop) count(topic, status string) {
	if l.metrics != nil {
		l.metrics.EventsConsumed.WithLabelValues(topic, status).Inc()
	}
}
