package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/event"
	"github.com/cassiomorais/storefront/internal/domain/product"
	"github.com/cassiomorais/storefront/internal/eventbus"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) seen() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

func (r *recorder) handler(fn func(ev event.Event) (Result, error)) Handler {
	return HandlerFunc(func(ctx context.Context, ev event.Event) (Result, error) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		if fn != nil {
			return fn(ev)
		}
		return Applied, nil
	})
}

func productEvent(t *testing.T, name string) []byte {
	t.Helper()
	now := time.Now().UTC()
	p := product.Product{ID: uuid.New(), Name: name, Category: product.CategoryBooks, CreatedAt: now}
	b, err := event.Encode(event.NewProductEvent(event.Created, p, now))
	require.NoError(t, err)
	return b
}

func startLoop(t *testing.T, bus eventbus.Subscriber, h Handler, m *observability.Metrics) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	loop := New(bus, h, Config{
		Group:       "test-group",
		Topics:      []string{event.ProductTopic},
		PollTimeout: 20 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
	}, m, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestLoop_DispatchesDecodedEvents(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewMemoryBus()
	rec := &recorder{}
	m := observability.NewMetrics("test", prometheus.NewRegistry())

	require.NoError(t, bus.Publish(ctx, event.ProductTopic, event.ProductKey, productEvent(t, "Lamp")))
	startLoop(t, bus, rec.handler(nil), m)

	assert.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	pe, ok := rec.seen()[0].(*event.ProductEvent)
	require.True(t, ok)
	assert.Equal(t, "Lamp", pe.Data.Name)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.EventsConsumed.WithLabelValues(event.ProductTopic, "applied")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestLoop_SkipsUndecodableMessages(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewMemoryBus()
	rec := &recorder{}
	m := observability.NewMetrics("test", prometheus.NewRegistry())

	require.NoError(t, bus.Publish(ctx, event.ProductTopic, event.ProductKey, []byte("{not json")))
	require.NoError(t, bus.Publish(ctx, event.ProductTopic, "mystery", []byte("{}")))
	require.NoError(t, bus.Publish(ctx, event.ProductTopic, event.ProductKey, productEvent(t, "After")))
	startLoop(t, bus, rec.handler(nil), m)

	assert.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.EventsConsumed.WithLabelValues(event.ProductTopic, "decode_error")) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestLoop_ContinuesAfterHandlerErrorAndPanic(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewMemoryBus()
	rec := &recorder{}
	m := observability.NewMetrics("test", prometheus.NewRegistry())

	calls := 0
	h := rec.handler(func(ev event.Event) (Result, error) {
		calls++
		switch calls {
		case 1:
			return Applied, errors.New("boom")
		case 2:
			panic("poisoned")
		}
		return Applied, nil
	})

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(ctx, event.ProductTopic, event.ProductKey, productEvent(t, name)))
	}
	startLoop(t, bus, h, m)

	assert.Eventually(t, func() bool { return len(rec.seen()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.EventsConsumed.WithLabelValues(event.ProductTopic, "failed")) == 2 &&
			testutil.ToFloat64(m.EventsConsumed.WithLabelValues(event.ProductTopic, "applied")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestLoop_StopsCleanlyOnCancel(t *testing.T) {
	bus := eventbus.NewMemoryBus()
	cancel, done := startLoop(t, bus, (&recorder{}).handler(nil), nil)

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoop_ReturnsWhenBusCloses(t *testing.T) {
	bus := eventbus.NewMemoryBus()
	_, done := startLoop(t, bus, (&recorder{}).handler(nil), nil)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, bus.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, eventbus.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

type flakySubscriber struct {
	mu       sync.Mutex
	failures int
	attempts int
	next     eventbus.Subscriber
}

func (f *flakySubscriber) Subscribe(ctx context.Context, group string, topics []string) (eventbus.Subscription, error) {
	f.mu.Lock()
	f.attempts++
	fail := f.attempts <= f.failures
	f.mu.Unlock()
	if fail {
		return nil, errors.New("broker down")
	}
	return f.next.Subscribe(ctx, group, topics)
}

func TestLoop_BacksOffWhileBrokerUnavailable(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewMemoryBus()
	sub := &flakySubscriber{failures: 3, next: bus}
	rec := &recorder{}

	require.NoError(t, bus.Publish(ctx, event.ProductTopic, event.ProductKey, productEvent(t, "Lamp")))
	startLoop(t, sub, rec.handler(nil), nil)

	assert.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 3*time.Second, 10*time.Millisecond)
	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, 4, sub.attempts)
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "applied", Applied.String())
	assert.Equal(t, "stale", Stale.String())
	assert.Equal(t, "skipped", Skipped.String())
}
