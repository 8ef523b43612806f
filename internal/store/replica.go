package store

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/event"
	"github.com/google/uuid"
)

// Record is a mirrored entity held by a Replica.
type Record struct {
	ID         uuid.UUID      `json:"id"`
	Collection string         `json:"collection"`
	Data       map[string]any `json:"data"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`
}

// Version returns the timestamp of the last accepted write.
func (r Record) Version() time.Time {
	if r.UpdatedAt != nil {
		return *r.UpdatedAt
	}
	return r.CreatedAt
}

// Change is a remote-origin write extracted from a domain event.
type Change struct {
	Type      event.Type
	ID        uuid.UUID
	Timestamp time.Time
	Data      map[string]any
}

// ChangeFrom builds a Change from any domain event.
func ChangeFrom(ev event.Event) (Change, error) {
	data, err := ev.Snapshot()
	if err != nil {
		return Change{}, fmt.Errorf("snapshot %s %s: %w", ev.Key(), ev.EntityID(), err)
	}
	return Change{
		Type:      ev.Type(),
		ID:        ev.EntityID(),
		Timestamp: ev.OccurredAt(),
		Data:      data,
	}, nil
}

// Outcome reports what Apply did with a change.
type Outcome int

const (
	Inserted Outcome = iota
	Overwritten
	Removed
	// Absent is a delete of an id the replica does not hold.
	Absent
	// Stale is an update older than the stored version or than a later delete.
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Overwritten:
		return "overwritten"
	case Removed:
		return "removed"
	case Absent:
		return "absent"
	case Stale:
		return "stale"
	}
	return "unknown"
}

// Changed reports whether the replica state moved.
func (o Outcome) Changed() bool {
	return o == Inserted || o == Overwritten || o == Removed
}

// Replica is a derived, read-only mirror of collections owned by other services.
// Apply is its only write path and is safe to call from a single consumer loop
// while any number of readers query the underlying store.
type Replica struct {
	mu         sync.Mutex
	store      *Store[Record]
	tombstones map[string]map[uuid.UUID]time.Time
}

// NewReplica creates an empty replica.
func NewReplica() *Replica {
	return &Replica{
		store:      New[Record](),
		tombstones: make(map[string]map[uuid.UUID]time.Time),
	}
}

// Get returns the record for id, if present.
func (r *Replica) Get(collection string, id uuid.UUID) (Record, bool) {
	return r.store.Get(collection, id)
}

// List returns a snapshot of the collection in insertion order.
func (r *Replica) List(collection string) []Record {
	return r.store.List(collection)
}

// Collections returns every collection name the replica has seen.
func (r *Replica) Collections() []string {
	return r.store.Collections()
}

// Len returns the number of records in collection.
func (r *Replica) Len(collection string) int {
	c, ok := r.store.lookup(collection)
	if !ok {
		return 0
	}
	return c.Len()
}

// Apply merges a change into collection:
//   - deleted removes the record; deleting an absent id is a no-op.
//   - created inserts, or behaves as updated when the id is already present.
//   - updated/cancelled overwrite the carried fields unless the change is older
//     than the stored version; an unknown id is synthesized from the change.
//
// Any upsert not newer than a previously applied delete of the same id is stale.
func (r *Replica) Apply(collection string, ch Change) (Outcome, error) {
	if ch.ID == uuid.Nil {
		return Stale, fmt.Errorf("apply to %s: missing id", collection)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	coll := r.store.Collection(collection)

	switch ch.Type {
	case event.Deleted:
		_, existed := coll.Remove(ch.ID)
		r.bury(collection, ch.ID, ch.Timestamp)
		if existed {
			return Removed, nil
		}
		return Absent, nil

	case event.Created, event.Updated, event.Cancelled:
		if deletedAt, ok := r.tombstones[collection][ch.ID]; ok && !ch.Timestamp.After(deletedAt) {
			return Stale, nil
		}

		outcome := Stale
		_, err := coll.Compute(ch.ID, func(current Record, exists bool) (Record, Action, error) {
			if !exists {
				outcome = Inserted
				return synthesize(collection, ch), Save, nil
			}
			if ch.Timestamp.Before(current.Version()) {
				return current, Keep, nil
			}
			outcome = Overwritten
			return merge(current, ch), Save, nil
		})
		return outcome, err

	default:
		return Stale, fmt.Errorf("apply to %s: unknown event type %q", collection, ch.Type)
	}
}

func (r *Replica) bury(collection string, id uuid.UUID, at time.Time) {
	graves, ok := r.tombstones[collection]
	if !ok {
		graves = make(map[uuid.UUID]time.Time)
		r.tombstones[collection] = graves
	}
	if prev, ok := graves[id]; !ok || at.After(prev) {
		graves[id] = at
	}
}

func synthesize(collection string, ch Change) Record {
	rec := Record{
		ID:         ch.ID,
		Collection: collection,
		Data:       maps.Clone(ch.Data),
		CreatedAt:  ch.Timestamp,
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	if ch.Type == event.Created {
		return rec
	}

	// a missed create: keep the owner's creation time when the snapshot has one
	if raw, ok := ch.Data["created_at"].(string); ok {
		if created, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			rec.CreatedAt = created
		}
	}
	ts := ch.Timestamp
	rec.UpdatedAt = &ts
	return rec
}

func merge(current Record, ch Change) Record {
	data := maps.Clone(current.Data)
	if data == nil {
		data = make(map[string]any, len(ch.Data))
	}
	maps.Copy(data, ch.Data)
	current.Data = data
	ts := ch.Timestamp
	current.UpdatedAt = &ts
	return current
}
