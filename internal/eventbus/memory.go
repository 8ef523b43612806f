package eventbus

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryBus is an in-process bus. Each topic is an append-only log and each
// consumer group keeps one cursor per topic; subscriptions of the same group
// share those cursors, different groups each see every message.
type MemoryBus struct {
	mu      sync.Mutex
	logs    map[string][]Message
	cursors map[string]map[string]int
	wake    chan struct{}
	seq     uint64
	closed  bool
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		logs:    make(map[string][]Message),
		cursors: make(map[string]map[string]int),
		wake:    make(chan struct{}),
	}
}

// Publish appends a message to the topic log and wakes waiting subscribers.
func (b *MemoryBus) Publish(ctx context.Context, topic, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	b.seq++
	b.logs[topic] = append(b.logs[topic], Message{
		ID:    strconv.FormatUint(b.seq, 10),
		Topic: topic,
		Key:   key,
		Value: append([]byte(nil), value...),
	})
	close(b.wake)
	b.wake = make(chan struct{})
	return nil
}

// Subscribe opens a subscription for group over topics. A new group starts at
// the beginning of every topic.
func (b *MemoryBus) Subscribe(ctx context.Context, group string, topics []string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if _, ok := b.cursors[group]; !ok {
		b.cursors[group] = make(map[string]int)
	}
	return &memorySubscription{
		bus:    b,
		group:  group,
		topics: append([]string(nil), topics...),
	}, nil
}

// Len returns the number of messages ever published to topic.
func (b *MemoryBus) Len(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.logs[topic])
}

// Messages returns a copy of the topic log.
func (b *MemoryBus) Messages(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.logs[topic]...)
}

// Ping reports whether the bus is open.
func (b *MemoryBus) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close wakes every waiting subscriber and rejects further use.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.wake)
	return nil
}

type memorySubscription struct {
	bus    *MemoryBus
	group  string
	topics []string

	// guarded by bus.mu
	next     int
	caughtUp bool
	closed   bool
}

func (s *memorySubscription) Poll(ctx context.Context, timeout time.Duration) (Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.bus.mu.Lock()
		if s.closed || s.bus.closed {
			s.bus.mu.Unlock()
			return Delivery{}, ErrClosed
		}
		if msg, ok := s.take(); ok {
			s.caughtUp = false
			s.bus.mu.Unlock()
			return Delivery{Kind: Delivered, Message: msg}, nil
		}
		if !s.caughtUp {
			s.caughtUp = true
			s.bus.mu.Unlock()
			return Delivery{Kind: EndOfPartition}, nil
		}
		wake := s.bus.wake
		s.bus.mu.Unlock()

		select {
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		case <-timer.C:
			return Delivery{Kind: Empty}, nil
		case <-wake:
		}
	}
}

// take pops the next message, rotating across topics so one busy topic cannot
// starve the others. Caller holds bus.mu.
func (s *memorySubscription) take() (Message, bool) {
	if len(s.topics) == 0 {
		return Message{}, false
	}
	cursors := s.bus.cursors[s.group]
	for i := range s.topics {
		topic := s.topics[(s.next+i)%len(s.topics)]
		log := s.bus.logs[topic]
		if pos := cursors[topic]; pos < len(log) {
			cursors[topic] = pos + 1
			s.next = (s.next + i + 1) % len(s.topics)
			return log[pos], true
		}
	}
	return Message{}, false
}

// Ack is a no-op: the cursor advances when a message is handed out.
func (s *memorySubscription) Ack(ctx context.Context, msg Message) error {
	return nil
}

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closed = true
	return nil
}
