package testutil

import (
	"context"
	"sync"

	"github.com/cassiomorais/storefront/internal/domain/event"
)

// --- Publisher Mock ---

// PublishedMessage is one recorded Publish call.
type PublishedMessage struct {
	Topic string
	Key   string
	Value []byte
}

// MockPublisher records every publish. Set PublishFunc to inject failures.
type MockPublisher struct {
	mu       sync.Mutex
	messages []PublishedMessage

	PublishFunc func(ctx context.Context, topic, key string, value []byte) error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, topic, key, value); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, PublishedMessage{
		Topic: topic,
		Key:   key,
		Value: append([]byte(nil), value...),
	})
	return nil
}

// Messages returns the recorded publishes in order.
func (m *MockPublisher) Messages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.messages...)
}

// Events decodes every recorded publish.
func (m *MockPublisher) Events() ([]event.Event, error) {
	msgs := m.Messages()
	out := make([]event.Event, 0, len(msgs))
	for _, msg := range msgs {
		ev, err := event.Decode(msg.Topic, msg.Key, msg.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Reset forgets recorded publishes.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}
