package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// memoryEntry pairs stored data with its expiry timer.
type memoryEntry struct {
	data      *Data
	expiresAt time.Time
	timer     clockwork.Timer
}

// MemoryStore is the default in-process Store. Each entry carries its
// own expiry timer; Set replaces the timer, which realizes the
// TTL-refresh-on-activity semantics without a sweep goroutine.
type MemoryStore struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	entries map[string]*memoryEntry
	closed  bool
}

// NewMemoryStore creates a MemoryStore using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(clockwork.NewRealClock())
}

// NewMemoryStoreWithClock creates a MemoryStore with an injected clock.
// Tests pass a clockwork.FakeClock to drive expiry deterministically.
func NewMemoryStoreWithClock(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		clock:   clock,
		entries: make(map[string]*memoryEntry),
	}
}

// Get returns a copy of the stored data, or ErrNotFound. The expiry
// deadline is checked explicitly as well, so lookups racing the timer
// never return stale data.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Data, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok || s.clock.Now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}

	copied := *entry.data
	return &copied, nil
}

// Set stores data under id and resets its TTL timer.
func (s *MemoryStore) Set(ctx context.Context, id string, data *Data, ttl time.Duration) error {
	copied := *data

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNotFound
	}

	if existing, ok := s.entries[id]; ok && existing.timer != nil {
		existing.timer.Stop()
	}

	entry := &memoryEntry{
		data:      &copied,
		expiresAt: s.clock.Now().Add(ttl),
	}
	entry.timer = s.clock.AfterFunc(ttl, func() {
		s.expire(id, entry)
	})
	s.entries[id] = entry
	return nil
}

// Delete removes the entry and stops its timer. Deleting an unknown id
// is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[id]; ok {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(s.entries, id)
	}
	return nil
}

// Close stops all timers and drops every entry.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(s.entries, id)
	}
	s.closed = true
	return nil
}

// Len returns the number of live entries, for tests and metrics.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// expire removes an entry when its timer fires. The entry identity is
// compared so a timer racing a concurrent Set cannot remove the
// refreshed record.
func (s *MemoryStore) expire(id string, entry *memoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[id]; ok && current == entry {
		delete(s.entries, id)
	}
}
