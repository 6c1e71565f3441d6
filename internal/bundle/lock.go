package bundle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sizepanic/sizepanic/internal/kvstore"
)

// Lock is one acquisition of the per-fingerprint computation lock. Every
// acquisition mints a fresh token; only the matching token can release.
type Lock struct {
	Key   string
	Token string
}

// LockManager is the stampede guard: a TTL-bounded mutual exclusion lock
// per cache fingerprint, plus a bounded wait for a peer's published result.
// Exclusivity is best-effort only; correctness relies on the computation
// being idempotent, not on the lock holding.
type LockManager struct {
	store        kvstore.Store
	ttl          time.Duration
	waitTimeout  time.Duration
	pollInterval time.Duration
}

// NewLockManager creates a lock manager over the shared store.
func NewLockManager(store kvstore.Store, ttl, waitTimeout, pollInterval time.Duration) *LockManager {
	return &LockManager{
		store:        store,
		ttl:          ttl,
		waitTimeout:  waitTimeout,
		pollInterval: pollInterval,
	}
}

// TryAcquire attempts a non-blocking lock acquisition for a cache key.
// Returns nil when another worker holds the lock or the store is
// unreachable; both degrade to "compute independently".
func (m *LockManager) TryAcquire(ctx context.Context, cacheKey string) *Lock {
	key := cacheKey + ":lock"
	token := uuid.NewString()

	acquired, err := m.store.SetIfAbsent(ctx, key, token, m.ttl)
	if err != nil {
		log.Warn().Err(err).Msg("Lock acquisition failed, proceeding without dedup")
		return nil
	}
	if !acquired {
		return nil
	}

	return &Lock{Key: key, Token: token}
}

// Release frees a held lock via a token-checked atomic delete, so a process
// can never release a lock that expired and was re-acquired by a peer.
// Safe to call with nil.
func (m *LockManager) Release(ctx context.Context, lock *Lock) {
	if lock == nil {
		return
	}
	if err := m.store.CompareAndDelete(ctx, lock.Key, lock.Token); err != nil {
		log.Warn().Err(err).Str("key", lock.Key).Msg("Lock release failed, lock will expire by TTL")
	}
}

// WaitForResult polls the cache for a result being computed by a peer, up
// to the configured wait budget. Returns nil if nothing appeared in time;
// the caller then computes independently rather than blocking on a peer
// that may have crashed.
func (m *LockManager) WaitForResult(ctx context.Context, cache *ResponseCache, cacheKey string) *BundleResponse {
	deadline := time.Now().Add(m.waitTimeout)

	for time.Now().Before(deadline) {
		if resp, ok := cache.Get(ctx, cacheKey); ok {
			return resp
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.pollInterval):
		}
	}
	return nil
}
