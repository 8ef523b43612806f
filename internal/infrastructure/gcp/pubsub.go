// Package gcp provides an eventbus.Bus backed by Google Cloud Pub/Sub.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	pubsubpb "cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/cassiomorais/storefront/internal/eventbus"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const keyAttribute = "key"

// Bus maps topics to Pub/Sub topics and consumer groups to one subscription
// per topic named "<group>.<topic>".
type Bus struct {
	client    *pubsub.Client
	projectID string
	logger    zerolog.Logger

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewBus wraps an existing client. The bus owns the client from then on.
func NewBus(client *pubsub.Client, projectID string, logger zerolog.Logger) *Bus {
	return &Bus{
		client:     client,
		projectID:  projectID,
		logger:     logger,
		publishers: make(map[string]*pubsub.Publisher),
	}
}

// Dial creates a client for projectID using ambient credentials.
func Dial(ctx context.Context, projectID string, logger zerolog.Logger) (*Bus, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return NewBus(client, projectID, logger), nil
}

func (b *Bus) topicPath(topic string) string {
	return fmt.Sprintf("projects/%s/topics/%s", b.projectID, topic)
}

func (b *Bus) subscriptionPath(group, topic string) string {
	return fmt.Sprintf("projects/%s/subscriptions/%s.%s", b.projectID, group, topic)
}

func (b *Bus) ensureTopic(ctx context.Context, topic string) error {
	_, err := b.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: b.topicPath(topic)})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

func (b *Bus) ensureSubscription(ctx context.Context, group, topic string) (string, error) {
	name := b.subscriptionPath(group, topic)
	_, err := b.client.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
		Name:                  name,
		Topic:                 b.topicPath(topic),
		AckDeadlineSeconds:    30,
		EnableMessageOrdering: true,
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return "", fmt.Errorf("create subscription %s: %w", name, err)
	}
	return name, nil
}

func (b *Bus) publisher(ctx context.Context, topic string) (*pubsub.Publisher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.publishers[topic]; ok {
		return p, nil
	}
	if err := b.ensureTopic(ctx, topic); err != nil {
		return nil, err
	}
	p := b.client.Publisher(topic)
	p.EnableMessageOrdering = true
	b.publishers[topic] = p
	return p, nil
}

// Publish sends value with key as both ordering key and attribute, then waits
// for the server acknowledgement.
func (b *Bus) Publish(ctx context.Context, topic, key string, value []byte) error {
	p, err := b.publisher(ctx, topic)
	if err != nil {
		return err
	}

	result := p.Publish(ctx, &pubsub.Message{
		Data:        value,
		Attributes:  map[string]string{keyAttribute: key},
		OrderingKey: key,
	})
	if _, err := result.Get(ctx); err != nil {
		// ordering pauses the key after a failure
		p.ResumePublish(key)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts one receiver per topic. Messages are buffered until polled
// and are acknowledged through Ack.
func (b *Bus) Subscribe(ctx context.Context, group string, topics []string) (eventbus.Subscription, error) {
	recvCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		deliveries: make(chan received),
		inflight:   make(map[string]*pubsub.Message),
		cancel:     cancel,
		errs:       make(chan error, len(topics)),
	}

	for _, topic := range topics {
		if err := b.ensureTopic(ctx, topic); err != nil {
			cancel()
			return nil, err
		}
		name, err := b.ensureSubscription(ctx, group, topic)
		if err != nil {
			cancel()
			return nil, err
		}

		subscriber := b.client.Subscriber(name)
		sub.wg.Add(1)
		go func(topic string) {
			defer sub.wg.Done()
			err := subscriber.Receive(recvCtx, func(ctx context.Context, msg *pubsub.Message) {
				select {
				case sub.deliveries <- received{topic: topic, msg: msg}:
				case <-ctx.Done():
					msg.Nack()
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				b.logger.Error().Err(err).Str("topic", topic).Str("group", group).Msg("Pub/Sub receiver stopped")
				sub.errs <- err
			}
		}(topic)
	}

	return sub, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	for _, p := range b.publishers {
		p.Stop()
	}
	b.publishers = map[string]*pubsub.Publisher{}
	b.mu.Unlock()
	return b.client.Close()
}

type received struct {
	topic string
	msg   *pubsub.Message
}

type subscription struct {
	deliveries chan received
	errs       chan error
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]*pubsub.Message
	caughtUp bool
	closed   bool
}

func (s *subscription) Poll(ctx context.Context, timeout time.Duration) (eventbus.Delivery, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return eventbus.Delivery{}, eventbus.ErrClosed
	}
	s.mu.Unlock()

	select {
	case err := <-s.errs:
		return eventbus.Delivery{}, fmt.Errorf("receive: %w", err)
	case r := <-s.deliveries:
		return s.deliver(r), nil
	default:
	}

	s.mu.Lock()
	if !s.caughtUp {
		s.caughtUp = true
		s.mu.Unlock()
		return eventbus.Delivery{Kind: eventbus.EndOfPartition}, nil
	}
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return eventbus.Delivery{}, ctx.Err()
	case err := <-s.errs:
		return eventbus.Delivery{}, fmt.Errorf("receive: %w", err)
	case r := <-s.deliveries:
		return s.deliver(r), nil
	case <-timer.C:
		return eventbus.Delivery{Kind: eventbus.Empty}, nil
	}
}

func (s *subscription) deliver(r received) eventbus.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caughtUp = false
	s.inflight[r.msg.ID] = r.msg
	return eventbus.Delivery{
		Kind: eventbus.Delivered,
		Message: eventbus.Message{
			ID:    r.msg.ID,
			Topic: r.topic,
			Key:   r.msg.Attributes[keyAttribute],
			Value: r.msg.Data,
		},
	}
}

func (s *subscription) Ack(ctx context.Context, msg eventbus.Message) error {
	s.mu.Lock()
	m, ok := s.inflight[msg.ID]
	delete(s.inflight, msg.ID)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("ack %s: unknown message", msg.ID)
	}
	m.Ack()
	return nil
}

// Close stops the receivers; unacknowledged messages are redelivered later.
func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, m := range s.inflight {
		m.Nack()
		delete(s.inflight, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}
