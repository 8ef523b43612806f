// Package eventbus is the broker-agnostic publish/subscribe capability the
// services talk through. Delivery is at-least-once; ordering holds at most
// within one topic, and duplicates are possible.
package eventbus

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed bus or subscription.
var ErrClosed = errors.New("eventbus: closed")

// Message is a single delivered record.
type Message struct {
	// ID is the broker-assigned message id, used for acknowledgement.
	ID    string
	Topic string
	Key   string
	Value []byte
}

// Kind classifies the result of a poll.
type Kind int

const (
	// Empty means no message arrived within the poll timeout.
	Empty Kind = iota
	// Delivered carries a message.
	Delivered
	// EndOfPartition means nothing was waiting when the subscription looked.
	// It is reported once per drained run and is informational only: brokers
	// without offsets report it whenever their local buffer runs empty.
	EndOfPartition
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Delivered:
		return "delivered"
	case EndOfPartition:
		return "end_of_partition"
	}
	return "unknown"
}

// Delivery is the result of one poll.
type Delivery struct {
	Kind    Kind
	Message Message
}

// Publisher publishes a value under a routing key.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Subscriber opens consumer-group subscriptions. Each group has its own
// delivery cursor, so every group sees every message.
type Subscriber interface {
	Subscribe(ctx context.Context, group string, topics []string) (Subscription, error)
}

// Subscription yields deliveries for one consumer group.
type Subscription interface {
	// Poll blocks for at most timeout waiting for the next message.
	Poll(ctx context.Context, timeout time.Duration) (Delivery, error)
	// Ack confirms that msg was handled and need not be redelivered.
	Ack(ctx context.Context, msg Message) error
	Close() error
}

// Bus is a broker client able to both publish and subscribe.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// Pinger is implemented by buses that can report broker reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
