// Package store holds the in-memory record stores. A Store owns a set of named
// collections; each collection is guarded by its own lock so a reader of one
// collection never waits on a writer of another.
package store

import (
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Update when the id is absent from the collection.
var ErrNotFound = errors.New("record not found")

// Action tells Compute what to do with the value returned by its callback.
type Action int

const (
	// Keep leaves the collection untouched.
	Keep Action = iota
	// Save inserts or overwrites the entry.
	Save
	// Drop removes the entry.
	Drop
)

// Store is a process-lifetime container of collections holding values of type T.
type Store[T any] struct {
	mu          sync.RWMutex
	collections map[string]*Collection[T]
}

// New creates an empty store.
func New[T any]() *Store[T] {
	return &Store[T]{collections: make(map[string]*Collection[T])}
}

// Collection returns the named collection, creating it on first use.
func (s *Store[T]) Collection(name string) *Collection[T] {
	s.mu.RLock()
	c, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.collections[name]; ok {
		return c
	}
	c = newCollection[T](name)
	s.collections[name] = c
	return c
}

func (s *Store[T]) lookup(name string) (*Collection[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	return c, ok
}

// Put inserts or overwrites the entry for id.
func (s *Store[T]) Put(collection string, id uuid.UUID, v T) {
	s.Collection(collection).Put(id, v)
}

// Get returns the entry for id, if present.
func (s *Store[T]) Get(collection string, id uuid.UUID) (T, bool) {
	c, ok := s.lookup(collection)
	if !ok {
		var zero T
		return zero, false
	}
	return c.Get(id)
}

// List returns a snapshot of the collection in insertion order.
func (s *Store[T]) List(collection string) []T {
	c, ok := s.lookup(collection)
	if !ok {
		return []T{}
	}
	return c.List()
}

// Remove deletes id from the collection and returns the removed entry.
func (s *Store[T]) Remove(collection string, id uuid.UUID) (T, bool) {
	c, ok := s.lookup(collection)
	if !ok {
		var zero T
		return zero, false
	}
	return c.Remove(id)
}

// Update atomically replaces the entry for id with fn's result.
// It returns ErrNotFound when id is absent and leaves the entry untouched when fn fails.
func (s *Store[T]) Update(collection string, id uuid.UUID, fn func(current T) (T, error)) (T, error) {
	return s.Collection(collection).Compute(id, func(current T, exists bool) (T, Action, error) {
		if !exists {
			return current, Keep, ErrNotFound
		}
		next, err := fn(current)
		if err != nil {
			return current, Keep, err
		}
		return next, Save, nil
	})
}

// Collections returns the names of every collection written so far, sorted.
func (s *Store[T]) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collection is a keyed set of entries that remembers insertion order.
type Collection[T any] struct {
	name  string
	mu    sync.RWMutex
	items map[uuid.UUID]T
	order []uuid.UUID
}

func newCollection[T any](name string) *Collection[T] {
	return &Collection[T]{name: name, items: make(map[uuid.UUID]T)}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Len returns the number of entries.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Put inserts or overwrites the entry for id. An overwrite keeps its original position.
func (c *Collection[T]) Put(id uuid.UUID, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(id, v)
}

func (c *Collection[T]) put(id uuid.UUID, v T) {
	if _, exists := c.items[id]; !exists {
		c.order = append(c.order, id)
	}
	c.items[id] = v
}

// Get returns the entry for id, if present.
func (c *Collection[T]) Get(id uuid.UUID) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[id]
	return v, ok
}

// List returns a snapshot of every entry in insertion order.
func (c *Collection[T]) List() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// Remove deletes id and returns the removed entry. Removing an absent id is a no-op.
func (c *Collection[T]) Remove(id uuid.UUID) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remove(id)
}

func (c *Collection[T]) remove(id uuid.UUID) (T, bool) {
	v, ok := c.items[id]
	if !ok {
		return v, false
	}
	delete(c.items, id)
	if i := slices.Index(c.order, id); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	return v, true
}

// Compute runs fn under the collection lock with the current entry for id and
// applies the returned Action. It returns the entry as it stands afterwards
// (the zero value after a Drop) together with fn's error.
func (c *Collection[T]) Compute(id uuid.UUID, fn func(current T, exists bool) (T, Action, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, exists := c.items[id]
	next, action, err := fn(current, exists)
	switch action {
	case Save:
		c.put(id, next)
		return next, err
	case Drop:
		c.remove(id)
		var zero T
		return zero, err
	default:
		return current, err
	}
}
