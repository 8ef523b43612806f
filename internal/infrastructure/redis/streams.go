package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cassiomorais/storefront/internal/eventbus"
	"github.com/redis/go-redis/v9"
)

// Stream entry fields.
const (
	fieldKey   = "key"
	fieldValue = "value"
)

// StreamBus implements eventbus.Bus on Redis Streams. A topic is a stream
// and a consumer group is an XGROUP on each subscribed stream.
type StreamBus struct {
	client    *redis.Client
	consumer  string
	batchSize int64
	maxLen    int64
	claimIdle time.Duration
}

const defaultClaimIdle = time.Minute

// NewStreamBus creates a bus. consumer names this process inside its groups.
func NewStreamBus(client *redis.Client, consumer string, batchSize int64) *StreamBus {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &StreamBus{
		client:    client,
		consumer:  consumer,
		batchSize: batchSize,
		claimIdle: defaultClaimIdle,
	}
}

// WithMaxLen caps every stream at roughly n entries.
func (b *StreamBus) WithMaxLen(n int64) *StreamBus {
	b.maxLen = n
	return b
}

// WithClaimIdle sets how long an entry must sit unacknowledged in another
// consumer's pending list before this consumer takes it over. Zero disables
// reclaiming.
func (b *StreamBus) WithClaimIdle(d time.Duration) *StreamBus {
	b.claimIdle = d
	return b
}

func (b *StreamBus) Publish(ctx context.Context, topic, key string, value []byte) error {
	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{
			fieldKey:   key,
			fieldValue: string(value),
		},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}

	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", topic, err)
	}
	return nil
}

// Subscribe creates the group on every topic, starting from the beginning of
// streams the group has never read. The subscription first replays entries
// this consumer read but never acknowledged, then reads new ones.
func (b *StreamBus) Subscribe(ctx context.Context, group string, topics []string) (eventbus.Subscription, error) {
	backlog := make(map[string]string, len(topics))
	for _, topic := range topics {
		if err := createGroup(ctx, b.client, topic, group); err != nil {
			return nil, err
		}
		backlog[topic] = "0"
	}

	return &streamSubscription{
		client:    b.client,
		group:     group,
		consumer:  b.consumer,
		batchSize: b.batchSize,
		claimIdle: b.claimIdle,
		topics:    append([]string(nil), topics...),
		backlog:   backlog,
	}, nil
}

func (b *StreamBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *StreamBus) Close() error {
	return b.client.Close()
}

func createGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	// Create stream if it doesn't exist
	const busyGroupMsg = "BUSYGROUP"
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}

type streamSubscription struct {
	client    *redis.Client
	group     string
	consumer  string
	batchSize int64
	claimIdle time.Duration
	topics    []string

	mu sync.Mutex
	// backlog holds, per stream, the last pending entry replayed from this
	// consumer's own pending list. A stream leaves the map once drained.
	backlog   map[string]string
	lastClaim time.Time
	pending   []eventbus.Message
	caughtUp  bool
	closed    bool
}

func (s *streamSubscription) Poll(ctx context.Context, timeout time.Duration) (eventbus.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return eventbus.Delivery{}, eventbus.ErrClosed
	}
	if len(s.pending) > 0 {
		return s.next(), nil
	}

	if len(s.backlog) > 0 {
		if err := s.replay(ctx); err != nil {
			return eventbus.Delivery{}, err
		}
		if len(s.pending) > 0 {
			s.caughtUp = false
			return s.next(), nil
		}
	}

	if s.claimIdle > 0 && time.Since(s.lastClaim) >= s.claimIdle {
		if err := s.reclaim(ctx); err != nil {
			return eventbus.Delivery{}, err
		}
		if len(s.pending) > 0 {
			s.caughtUp = false
			return s.next(), nil
		}
	}

	if timeout < time.Millisecond {
		timeout = time.Millisecond
	}
	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  s.streams(">"),
		Count:    s.batchSize,
		Block:    timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if !s.caughtUp {
				s.caughtUp = true
				return eventbus.Delivery{Kind: eventbus.EndOfPartition}, nil
			}
			return eventbus.Delivery{Kind: eventbus.Empty}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return eventbus.Delivery{}, ctxErr
		}
		return eventbus.Delivery{}, fmt.Errorf("failed to read from streams: %w", err)
	}

	for _, stream := range res {
		for _, msg := range stream.Messages {
			s.pending = append(s.pending, toMessage(stream.Stream, msg))
		}
	}
	if len(s.pending) == 0 {
		return eventbus.Delivery{Kind: eventbus.Empty}, nil
	}
	s.caughtUp = false
	return s.next(), nil
}

// streams builds the STREAMS argument with the same id for every topic.
func (s *streamSubscription) streams(id string) []string {
	out := make([]string, 0, 2*len(s.topics))
	out = append(out, s.topics...)
	for range s.topics {
		out = append(out, id)
	}
	return out
}

// replay reads the next page of this consumer's own pending entries.
func (s *streamSubscription) replay(ctx context.Context) error {
	keys := make([]string, 0, len(s.backlog))
	ids := make([]string, 0, len(s.backlog))
	for _, topic := range s.topics {
		if id, ok := s.backlog[topic]; ok {
			keys = append(keys, topic)
			ids = append(ids, id)
		}
	}

	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  append(keys, ids...),
		Count:    s.batchSize,
		Block:    -1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read pending entries: %w", err)
	}

	replayed := make(map[string]bool, len(res))
	for _, stream := range res {
		if len(stream.Messages) == 0 {
			continue
		}
		replayed[stream.Stream] = true
		for _, msg := range stream.Messages {
			s.pending = append(s.pending, toMessage(stream.Stream, msg))
		}
		s.backlog[stream.Stream] = stream.Messages[len(stream.Messages)-1].ID
	}
	for _, topic := range keys {
		if !replayed[topic] {
			delete(s.backlog, topic)
		}
	}
	return nil
}

// reclaim takes over entries left idle in the pending lists of other
// consumers of the group, such as a crashed instance.
func (s *streamSubscription) reclaim(ctx context.Context) error {
	full := false
	for _, topic := range s.topics {
		msgs, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   topic,
			Group:    s.group,
			Consumer: s.consumer,
			MinIdle:  s.claimIdle,
			Start:    "0-0",
			Count:    s.batchSize,
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to claim idle entries on %s: %w", topic, err)
		}
		for _, msg := range msgs {
			s.pending = append(s.pending, toMessage(topic, msg))
		}
		if int64(len(msgs)) >= s.batchSize {
			full = true
		}
	}
	// a full page means more may be waiting, so claim again on the next poll
	if !full {
		s.lastClaim = time.Now()
	}
	return nil
}

func (s *streamSubscription) next() eventbus.Delivery {
	msg := s.pending[0]
	s.pending = s.pending[1:]
	return eventbus.Delivery{Kind: eventbus.Delivered, Message: msg}
}

func (s *streamSubscription) Ack(ctx context.Context, msg eventbus.Message) error {
	if err := s.client.XAck(ctx, msg.Topic, s.group, msg.ID).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
	}
	return nil
}

// Close stops polling. Buffered but unacknowledged messages stay in the
// group's pending list: the next subscription under the same consumer name
// replays them, and other consumers reclaim them once they have been idle for
// the claim interval.
func (s *streamSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = nil
	return nil
}

func toMessage(stream string, msg redis.XMessage) eventbus.Message {
	key, _ := msg.Values[fieldKey].(string)
	value, _ := msg.Values[fieldValue].(string)
	return eventbus.Message{
		ID:    msg.ID,
		Topic: stream,
		Key:   key,
		Value: []byte(value),
	}
}
