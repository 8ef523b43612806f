// Package event defines the domain events exchanged between services and
// their JSON wire format. Every event carries a full snapshot of the entity
// at publish time, never a diff.
package event

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/cassiomorais/storefront/internal/domain/product"
	"github.com/google/uuid"
)

// Type is the kind of change an event describes.
type Type string

const (
	Created   Type = "created"
	Updated   Type = "updated"
	Deleted   Type = "deleted"
	Cancelled Type = "cancelled"
)

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	switch t {
	case Created, Updated, Deleted, Cancelled:
		return true
	}
	return false
}

// Topics and routing keys.
const (
	ProductTopic  = "product_events"
	OrderTopic    = "order_events"
	DatabaseTopic = "database_events"

	ProductKey = "product"
	OrderKey   = "order"
)

// Event is the closed set of domain events: *ProductEvent, *OrderEvent and *DatabaseEvent.
type Event interface {
	ID() uuid.UUID
	Topic() string
	Key() string
	Type() Type
	EntityID() uuid.UUID
	OccurredAt() time.Time
	// Snapshot returns the entity state carried by the event as a field map.
	Snapshot() (map[string]any, error)

	sealed()
}

// ProductEvent is published on product_events with key "product".
type ProductEvent struct {
	EventID   uuid.UUID       `json:"event_id"`
	EventType Type            `json:"event_type"`
	ProductID uuid.UUID       `json:"product_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      product.Product `json:"data"`
}

// NewProductEvent builds an event carrying a snapshot of p.
func NewProductEvent(t Type, p product.Product, at time.Time) *ProductEvent {
	return &ProductEvent{
		EventID:   uuid.New(),
		EventType: t,
		ProductID: p.ID,
		Timestamp: at,
		Data:      p,
	}
}

func (e *ProductEvent) ID() uuid.UUID                     { return e.EventID }
func (e *ProductEvent) Topic() string                     { return ProductTopic }
func (e *ProductEvent) Key() string                       { return ProductKey }
func (e *ProductEvent) Type() Type                        { return e.EventType }
func (e *ProductEvent) EntityID() uuid.UUID               { return e.ProductID }
func (e *ProductEvent) OccurredAt() time.Time             { return e.Timestamp }
func (e *ProductEvent) Snapshot() (map[string]any, error) { return toMap(e.Data) }
func (e *ProductEvent) sealed()                           {}

// OrderEvent is published on order_events with key "order".
type OrderEvent struct {
	EventID   uuid.UUID   `json:"event_id"`
	EventType Type        `json:"event_type"`
	OrderID   uuid.UUID   `json:"order_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      order.Order `json:"data"`
}

// NewOrderEvent builds an event carrying a snapshot of o.
func NewOrderEvent(t Type, o order.Order, at time.Time) *OrderEvent {
	return &OrderEvent{
		EventID:   uuid.New(),
		EventType: t,
		OrderID:   o.ID,
		Timestamp: at,
		Data:      o,
	}
}

func (e *OrderEvent) ID() uuid.UUID                     { return e.EventID }
func (e *OrderEvent) Topic() string                     { return OrderTopic }
func (e *OrderEvent) Key() string                       { return OrderKey }
func (e *OrderEvent) Type() Type                        { return e.EventType }
func (e *OrderEvent) EntityID() uuid.UUID               { return e.OrderID }
func (e *OrderEvent) OccurredAt() time.Time             { return e.Timestamp }
func (e *OrderEvent) Snapshot() (map[string]any, error) { return toMap(e.Data) }
func (e *OrderEvent) sealed()                           {}

// DatabaseEvent is the aggregator's derived event, keyed by collection name.
type DatabaseEvent struct {
	EventID    uuid.UUID      `json:"event_id"`
	EventType  Type           `json:"event_type"`
	Collection string         `json:"collection"`
	RecordID   uuid.UUID      `json:"record_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"data"`
}

// NewDatabaseEvent builds a derived event for a record in collection.
func NewDatabaseEvent(t Type, collection string, id uuid.UUID, data map[string]any, at time.Time) *DatabaseEvent {
	return &DatabaseEvent{
		EventID:    uuid.New(),
		EventType:  t,
		Collection: collection,
		RecordID:   id,
		Timestamp:  at,
		Data:       maps.Clone(data),
	}
}

func (e *DatabaseEvent) ID() uuid.UUID         { return e.EventID }
func (e *DatabaseEvent) Topic() string         { return DatabaseTopic }
func (e *DatabaseEvent) Key() string           { return e.Collection }
func (e *DatabaseEvent) Type() Type            { return e.EventType }
func (e *DatabaseEvent) EntityID() uuid.UUID   { return e.RecordID }
func (e *DatabaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e *DatabaseEvent) Snapshot() (map[string]any, error) {
	return maps.Clone(e.Data), nil
}
func (e *DatabaseEvent) sealed() {}

// Encode serializes an event into its UTF-8 JSON wire value.
func Encode(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Key(), err)
	}
	return b, nil
}

// Decode parses a delivered message into one of the concrete event types.
// Routing is by key for owner events and by topic for derived events.
// Every failure is returned as a *errors.DecodeError.
func Decode(topic, key string, value []byte) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch {
	case key == ProductKey:
		var pe ProductEvent
		if err = json.Unmarshal(value, &pe); err == nil {
			err = validate(pe.EventType, pe.ProductID, pe.Timestamp, pe.Data.ID)
		}
		ev = &pe
	case key == OrderKey:
		var oe OrderEvent
		if err = json.Unmarshal(value, &oe); err == nil {
			err = validate(oe.EventType, oe.OrderID, oe.Timestamp, oe.Data.ID)
		}
		ev = &oe
	case topic == DatabaseTopic:
		var de DatabaseEvent
		if err = json.Unmarshal(value, &de); err == nil {
			err = validate(de.EventType, de.RecordID, de.Timestamp, de.RecordID)
		}
		if err == nil && de.Collection != key {
			err = fmt.Errorf("collection %q does not match key", de.Collection)
		}
		ev = &de
	default:
		err = errors.ErrUnknownEvent
	}
	if err != nil {
		return nil, errors.NewDecodeError(topic, key, err)
	}
	return ev, nil
}

func validate(t Type, entityID uuid.UUID, at time.Time, dataID uuid.UUID) error {
	if !t.Valid() {
		return fmt.Errorf("unknown event_type %q", t)
	}
	if entityID == uuid.Nil {
		return fmt.Errorf("missing entity id")
	}
	if at.IsZero() {
		return fmt.Errorf("missing timestamp")
	}
	if dataID != entityID {
		return fmt.Errorf("snapshot id %s does not match entity id %s", dataID, entityID)
	}
	return nil
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
