package bootstrap

import (
	"net/http"

	"github.com/cassiomorais/storefront/internal/consumer"
	"github.com/cassiomorais/storefront/internal/controller"
	"github.com/cassiomorais/storefront/internal/domain/event"
	"github.com/cassiomorais/storefront/internal/eventbus"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/cassiomorais/storefront/internal/service"
	"github.com/rs/zerolog"
)

// Component is one service: its HTTP surface and its consumer loop.
type Component struct {
	Name    string
	Port    int
	Handler http.Handler
	Loop    *consumer.Loop
}

// Products builds the catalog service. Its loop observes its own topic.
func (a *App) Products() Component {
	logger := observability.ServiceLogger(a.Logger, "products")
	svc := service.NewProductService(a.Publisher, a.Metrics, logger)

	return a.component("products", logger, a.Config.Services.Products, []string{event.ProductTopic}, svc,
		controller.RouterDeps{Products: svc})
}

// Orders builds the order service. Its loop mirrors the catalog for price
// lookup and observes its own topic.
func (a *App) Orders() Component {
	logger := observability.ServiceLogger(a.Logger, "orders")
	svc := service.NewOrderService(a.Publisher, a.Metrics, logger)

	return a.component("orders", logger, a.Config.Services.Orders, []string{event.OrderTopic, event.ProductTopic}, svc,
		controller.RouterDeps{Orders: svc})
}

// Database builds the aggregator, which merges both entity topics and
// republishes every applied change on database_events.
func (a *App) Database() Component {
	logger := observability.ServiceLogger(a.Logger, "database")
	svc := service.NewDatabaseService(a.Publisher, a.Metrics, logger)

	return a.component("database", logger, a.Config.Services.Database, []string{event.ProductTopic, event.OrderTopic}, svc,
		controller.RouterDeps{Database: svc})
}

func (a *App) component(name string, logger zerolog.Logger, sc config.ServiceConfig, topics []string, handler consumer.Handler, deps controller.RouterDeps) Component {
	deps.Service = name
	deps.Metrics = a.Metrics
	deps.Gatherer = a.Registry
	deps.Idempotency = a.Idempotency
	deps.IdempotencyTTL = a.Config.Idempotency.TTL
	deps.Server = a.Config.Server
	if p, ok := a.Bus.(eventbus.Pinger); ok {
		deps.Broker = p
	}

	loop := consumer.New(a.Bus, handler, consumer.Config{
		Group:       sc.Group,
		Topics:      topics,
		PollTimeout: a.Config.Bus.PollTimeout,
		MaxBackoff:  a.Config.Bus.SubscribeBackoff,
	}, a.Metrics, logger)

	return Component{
		Name:    name,
		Port:    sc.Port,
		Handler: controller.NewRouter(deps),
		Loop:    loop,
	}
}
