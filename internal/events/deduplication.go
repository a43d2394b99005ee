package events

import (
	"context"
	"sync"
	"time"
)

// DeduplicationStore records which measurement windows have already been
// processed. Velocity telemetry is delivered at-least-once, so the governor
// marks each (agent, window) key before evaluating it.
type DeduplicationStore interface {
	// MarkProcessed records the key as processed. Returns true if this is
	// the first time the key was seen.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed returns true if the key has been processed.
	IsProcessed(ctx context.Context, key string) (bool, error)
}

// InMemoryDeduplicationStore is a process-local implementation.
type InMemoryDeduplicationStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewInMemoryDeduplicationStore creates an in-memory deduplication store.
func NewInMemoryDeduplicationStore() *InMemoryDeduplicationStore {
	return &InMemoryDeduplicationStore{entries: make(map[string]time.Time)}
}

// MarkProcessed records the key, returning true if it was not seen before.
func (s *InMemoryDeduplicationStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	expiry, ok := s.entries[key]
	if ok && expiry.After(now) {
		return false, nil
	}

	s.entries[key] = now.Add(ttl)

	// Opportunistic sweep keeps the map from growing unbounded.
	if len(s.entries) > 10000 {
		for k, exp := range s.entries {
			if exp.Before(now) {
				delete(s.entries, k)
			}
		}
	}

	return true, nil
}

// IsProcessed returns true if the key has been processed and not expired.
func (s *InMemoryDeduplicationStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.entries[key]
	return ok && expiry.After(time.Now()), nil
}
