// Package idempotency caches the responses of mutating requests so a retried
// request carrying the same Idempotency-Key replays the first outcome.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// Entry is a recorded response.
type Entry struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Store persists entries for a bounded time. Get returns nil and no error
// when the key is unknown or expired.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	// Set records entry unless the key already holds one; the first writer wins.
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryStore is a process-local Store used when no Redis is configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}
	entry := e.entry
	return &entry, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		return nil
	}
	s.entries[key] = memoryEntry{entry: entry, expiresAt: now.Add(ttl)}
	return nil
}
