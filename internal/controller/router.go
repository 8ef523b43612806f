package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/storefront/internal/eventbus"
	"github.com/cassiomorais/storefront/internal/idempotency"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/storefront/internal/middleware"
	"github.com/cassiomorais/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps wires one service's router. Only the non-nil services get
// routes, so each binary mounts its own API.
type RouterDeps struct {
	Service        string
	Broker         eventbus.Pinger
	Products       *service.ProductService
	Orders         *service.OrderService
	Database       *service.DatabaseService
	Metrics        *observability.Metrics
	Gatherer       prometheus.Gatherer
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration
	Server         config.ServerConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	timeout := deps.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(deps.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", customMW.IdempotencyKeyHeader},
		ExposedHeaders:   []string{"Location", EventPublishedHeader, customMW.IdempotencyReplayed},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Service, deps.Broker)
	r.Get("/", healthH.Welcome)
	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Mutating routes get rate limiting and Idempotency-Key replay.
	mutating := []func(http.Handler) http.Handler{customMW.RateLimit(deps.Server.RateLimit)}
	if deps.Idempotency != nil {
		mutating = append(mutating, customMW.Idempotency(deps.Idempotency, deps.IdempotencyTTL))
	}

	if deps.Products != nil {
		productH := NewProductController(deps.Products)
		r.Get("/products", productH.List)
		r.Get("/products/{id}", productH.Get)
		r.With(mutating...).Post("/products", productH.Create)
		r.With(mutating...).Put("/products/{id}", productH.Update)
		r.With(mutating...).Delete("/products/{id}", productH.Delete)
	}

	if deps.Orders != nil {
		orderH := NewOrderController(deps.Orders)
		r.Get("/orders", orderH.List)
		r.Get("/orders/{id}", orderH.Get)
		r.Get("/customers/{id}/orders", orderH.ListByCustomer)
		r.With(mutating...).Post("/orders", orderH.Create)
		r.With(mutating...).Put("/orders/{id}", orderH.Update)
		r.With(mutating...).Post("/orders/{id}/cancel", orderH.Cancel)
	}

	if deps.Database != nil {
		databaseH := NewDatabaseController(deps.Database)
		r.Get("/collections", databaseH.Collections)
		r.Get("/collections/{collection}", databaseH.Collection)
		r.Get("/collections/{collection}/{id}", databaseH.Record)
	}

	return r
}
