package jobstore

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is a mutex-guarded in-process adapter used for tests and
// single-node development. Expiry is checked lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{data: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || s.expired(entry) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.data...), nil
}

func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key, entry := range s.entries {
		if strings.HasPrefix(key, prefix) && !s.expired(entry) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *MemoryStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([][]byte, len(keys))
	for i, key := range keys {
		if entry, ok := s.entries[key]; ok && !s.expired(entry) {
			results[i] = append([]byte(nil), entry.data...)
		}
	}
	return results, nil
}

func (s *MemoryStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || s.expired(entry) {
		return ErrNotFound
	}
	entry.expiresAt = s.now().Add(ttl)
	s.entries[key] = entry
	return nil
}

// TTL reports the remaining lifetime of a key. Zero means no expiry set.
// Tests use this to assert that only terminal jobs receive a TTL.
func (s *MemoryStore) TTL(key string) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok || s.expired(entry) {
		return 0, false
	}
	if entry.expiresAt.IsZero() {
		return 0, true
	}
	return entry.expiresAt.Sub(s.now()), true
}

func (s *MemoryStore) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt)
}
