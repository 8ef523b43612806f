package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cassiomorais/storefront/internal/idempotency"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/cassiomorais/storefront/internal/service"
	"github.com/cassiomorais/storefront/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

type testServer struct {
	router    http.Handler
	publisher *testutil.MockPublisher
	products  *service.ProductService
	orders    *service.OrderService
	database  *service.DatabaseService
	registry  *prometheus.Registry
}

// newTestServer mounts every service on one router backed by a recording
// publisher.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	pub := testutil.NewMockPublisher()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	logger := zerolog.Nop()

	s := &testServer{
		publisher: pub,
		products:  service.NewProductService(pub, metrics, logger),
		orders:    service.NewOrderService(pub, metrics, logger),
		database:  service.NewDatabaseService(pub, metrics, logger),
		registry:  reg,
	}
	s.router = NewRouter(RouterDeps{
		Service:        "test",
		Products:       s.products,
		Orders:         s.orders,
		Database:       s.database,
		Metrics:        metrics,
		Gatherer:       reg,
		Idempotency:    idempotency.NewMemoryStore(),
		IdempotencyTTL: time.Hour,
		Server:         config.ServerConfig{CORS: config.CORSConfig{AllowedOrigins: []string{"*"}}},
	})
	return s
}

func (s *testServer) failPublishes() {
	s.publisher.PublishFunc = func(ctx context.Context, topic, key string, value []byte) error {
		return errors.New("broker down")
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}
