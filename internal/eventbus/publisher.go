package eventbus

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/cassiomorais/storefront/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PublisherConfig tunes ReliablePublisher.
type PublisherConfig struct {
	Name       string
	Timeout    time.Duration
	Retries    uint
	RetryDelay time.Duration
	// BreakerThreshold is the number of consecutive failures that opens the breaker.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// ReliablePublisher guards a broker publisher with a per-attempt timeout,
// bounded retries and a circuit breaker. Every failure it returns is a
// *errors.BrokerError.
type ReliablePublisher struct {
	next    Publisher
	cfg     PublisherConfig
	breaker *gobreaker.CircuitBreaker[struct{}]
	metrics *observability.Metrics
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewReliablePublisher wraps next. metrics may be nil.
func NewReliablePublisher(next Publisher, cfg PublisherConfig, metrics *observability.Metrics, logger zerolog.Logger) *ReliablePublisher {
	if cfg.Name == "" {
		cfg.Name = "publisher"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retries == 0 {
		cfg.Retries = 1
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}

	p := &ReliablePublisher{
		next:    next,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		tracer:  otel.Tracer("storefront/eventbus"),
	}
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
			if metrics != nil {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	if metrics != nil {
		metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))
	}
	return p
}

// Publish delivers value to topic under key, or returns a broker error once
// retries are exhausted or the breaker is open.
func (p *ReliablePublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	ctx, span := p.tracer.Start(ctx, "publish "+topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", topic),
			attribute.String("messaging.message.key", key),
		),
	)
	defer span.End()

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  p.cfg.Retries,
		InitialDelay: p.cfg.RetryDelay,
		MaxDelay:     p.cfg.Timeout,
		OnRetry: func(attempt uint, err error) {
			p.logger.Debug().Err(err).Str("topic", topic).Uint("attempt", attempt+1).Msg("Retrying publish")
		},
	}, func() error {
		_, err := p.breaker.Execute(func() (struct{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
			defer cancel()
			return struct{}{}, p.next.Publish(attemptCtx, topic, key, value)
		})
		p.countBreaker(err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return retry.Permanent(err)
		}
		return err
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		p.count(topic, "failure")
		return domainErrors.NewBrokerError("publish", topic, err)
	}
	p.count(topic, "success")
	return nil
}

// State reports the breaker state.
func (p *ReliablePublisher) State() gobreaker.State {
	return p.breaker.State()
}

func (p *ReliablePublisher) count(topic, status string) {
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(topic, status).Inc()
	}
}

func (p *ReliablePublisher) countBreaker(err error) {
	if p.metrics == nil {
		return
	}
	result := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
	case err != nil:
		result = "failure"
	}
	p.metrics.CircuitBreakerRequests.WithLabelValues(p.cfg.Name, result).Inc()
}
