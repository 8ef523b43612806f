package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cassiomorais/storefront/internal/eventbus"
	"github.com/cassiomorais/storefront/internal/idempotency"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/internal/infrastructure/gcp"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/storefront/internal/infrastructure/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds the process-wide dependencies shared by every service the
// process runs.
type App struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Metrics     *observability.Metrics
	Registry    *prometheus.Registry
	Bus         eventbus.Bus
	Publisher   *eventbus.ReliablePublisher
	Idempotency idempotency.Store

	tracer *sdktrace.TracerProvider
}

// New loads configuration from the environment and builds the app.
func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewFromConfig(ctx, cfg, serviceName, metricsNamespace, os.Stdout)
}

// NewFromConfig builds the app from an already loaded configuration. Logs
// are written to out.
func NewFromConfig(ctx context.Context, cfg *config.Config, serviceName, metricsNamespace string, out io.Writer) (*App, error) {
	logger := observability.InitLogger(cfg.Observability.LogLevel, out).With().Str("app", serviceName).Logger()
	logger.Info().Str("driver", cfg.Bus.Driver).Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.Observability.EnableMetrics {
		app.Metrics = observability.NewMetrics(metricsNamespace, app.Registry)
		logger.Info().Msg("Metrics initialized")
	}

	if err := app.connect(ctx); err != nil {
		app.shutdownTracer()
		return nil, err
	}

	app.Publisher = eventbus.NewReliablePublisher(app.Bus, eventbus.PublisherConfig{
		Name:             serviceName + "-publisher",
		Timeout:          cfg.Bus.PublishTimeout,
		Retries:          cfg.Bus.PublishRetries,
		RetryDelay:       cfg.Bus.RetryDelay,
		BreakerThreshold: cfg.Bus.CircuitBreakerThreshold,
		BreakerTimeout:   cfg.Bus.CircuitBreakerTimeout,
	}, app.Metrics, logger)

	return app, nil
}

// connect opens the broker selected by bus.driver and the idempotency store
// that goes with it.
func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Bus.Driver {
	case config.DriverRedis:
		client, err := infraRedis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.Bus = infraRedis.NewStreamBus(client, cfg.InstanceID, cfg.Bus.BatchSize).WithClaimIdle(cfg.Bus.ClaimMinIdle)
		a.Idempotency = infraRedis.NewIdempotencyStore(client)
		a.Logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Connected to Redis")

	case config.DriverPubSub:
		bus, err := gcp.Dial(ctx, cfg.PubSub.ProjectID, a.Logger)
		if err != nil {
			return fmt.Errorf("connect to pubsub: %w", err)
		}
		a.Bus = bus
		a.Idempotency = idempotency.NewMemoryStore()
		a.Logger.Info().Str("project", cfg.PubSub.ProjectID).Msg("Connected to Pub/Sub")

	case config.DriverMemory:
		a.Bus = eventbus.NewMemoryBus()
		a.Idempotency = idempotency.NewMemoryStore()
		a.Logger.Info().Msg("Using in-process bus")

	default:
		return fmt.Errorf("unknown bus driver %q", cfg.Bus.Driver)
	}
	return nil
}

// Gatherer returns the registry /metrics serves.
func (a *App) Gatherer() prometheus.Gatherer {
	return a.Registry
}

func (a *App) shutdownTracer() {
	if a.tracer != nil {
		observability.Shutdown(context.Background(), a.tracer)
		a.tracer = nil
	}
}

// Close releases the broker connection and flushes traces.
func (a *App) Close() {
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close bus")
		}
	}
	a.shutdownTracer()
}
