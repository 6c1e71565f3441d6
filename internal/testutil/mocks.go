// Package testutil provides shared test utilities and mocks for unit testing.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/sizepanic/sizepanic/internal/bundle"
	"github.com/sizepanic/sizepanic/internal/kvstore"
)

// MockStore implements kvstore.Store for testing, with callbacks for
// injecting failures.
type MockStore struct {
	mu      sync.Mutex
	entries map[string]mockEntry

	// Callbacks for custom behavior
	OnGet func(ctx context.Context, key string) (string, bool, error)
	OnSet func(ctx context.Context, key, value string, ttl time.Duration) error

	// Call counters
	GetCalls int
	SetCalls int
}

type mockEntry struct {
	value     string
	expiresAt time.Time
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{entries: make(map[string]mockEntry)}
}

func (m *MockStore) get(key string) (string, bool) {
	entry, ok := m.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		return "", false
	}
	return entry.value, true
}

func (m *MockStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++

	if m.OnGet != nil {
		return m.OnGet(ctx, key)
	}
	value, ok := m.get(key)
	return value, ok, nil
}

func (m *MockStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCalls++

	if m.OnSet != nil {
		return m.OnSet(ctx, key, value, ttl)
	}
	m.entries[key] = mockEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MockStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.get(key); ok {
		return false, nil
	}
	m.entries[key] = mockEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (m *MockStore) CompareAndDelete(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if value, ok := m.get(key); ok && value == token {
		delete(m.entries, key)
	}
	return nil
}

func (m *MockStore) Close() error {
	return nil
}

// Has reports whether a key currently exists, for assertions.
func (m *MockStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.get(key)
	return ok
}

// TTLOf returns the remaining TTL of a key, for assertions on cache policy.
func (m *MockStore) TTLOf(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return 0, false
	}
	return time.Until(entry.expiresAt), true
}

var _ kvstore.Store = (*MockStore)(nil)

// MockRunner implements bundle.Runner with a scripted response and a call
// counter, so orchestration tests can assert how often the expensive
// pipeline actually ran.
type MockRunner struct {
	mu    sync.Mutex
	calls int

	// Respond builds the response for a request. Defaults to a minimal
	// success.
	Respond func(req bundle.BundleRequest) bundle.BundleResponse

	// Delay simulates job duration.
	Delay time.Duration

	running    int
	maxRunning int
}

func (m *MockRunner) Run(_ context.Context, req bundle.BundleRequest) bundle.BundleResponse {
	m.mu.Lock()
	m.calls++
	m.running++
	if m.running > m.maxRunning {
		m.maxRunning = m.running
	}
	m.mu.Unlock()

	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	m.mu.Lock()
	m.running--
	m.mu.Unlock()

	if m.Respond != nil {
		return m.Respond(req)
	}

	return bundle.BundleResponse{
		Success:   true,
		Sizes:     &bundle.BundleSizes{Raw: 2048, Gzip: 700, Brotli: 600},
		Metadata:  &bundle.PackageMetadata{Name: req.PackageName, Version: "1.0.0", Subpaths: []string{}},
		JobID:     req.JobID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Calls reports how many jobs were executed.
func (m *MockRunner) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MaxConcurrent reports the highest number of jobs observed in flight.
func (m *MockRunner) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxRunning
}

var _ bundle.Runner = (*MockRunner)(nil)
