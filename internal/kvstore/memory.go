package kvstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-process map.
// Suitable for single-instance deployments and tests. Without a shared
// backend, stampede protection only covers requests hitting the same
// instance, which is exactly the degraded mode the engine tolerates anyway.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryValue
}

type memoryValue struct {
	value     string
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryValue)}
}

func (s *MemoryStore) get(key string) (string, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		return "", false
	}
	return entry.value, true
}

// Get retrieves the value for a key.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.get(key)
	return value, ok, nil
}

// Set stores a value with a TTL.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryValue{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// SetIfAbsent stores a value with a TTL only if the key does not exist.
func (s *MemoryStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.get(key); ok {
		return false, nil
	}
	s.entries[key] = memoryValue{value: value, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// CompareAndDelete deletes the key only if its value matches token.
func (s *MemoryStore) CompareAndDelete(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value, ok := s.get(key); ok && value == token {
		delete(s.entries, key)
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
