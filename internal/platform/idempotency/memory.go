package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store suitable for tests and single-instance
// deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]time.Time)}
}

// Seen implements Store.
func (s *MemoryStore) Seen(_ context.Context, key string, now time.Time, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)

	if expiry, ok := s.entries[key]; ok && now.Before(expiry) {
		return true, nil
	}
	s.entries[key] = now.Add(ttl)
	return false, nil
}

// sweep drops expired markers. Caller holds the lock.
func (s *MemoryStore) sweep(now time.Time) {
	for key, expiry := range s.entries {
		if !now.Before(expiry) {
			delete(s.entries, key)
		}
	}
}
