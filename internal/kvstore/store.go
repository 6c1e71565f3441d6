// Package kvstore provides the shared key-value store used for the durable
// response cache and the per-fingerprint computation locks.
package kvstore

import (
	"context"
	"time"
)

// Store is the interface all key-value backends must implement.
// Every operation is best-effort from the caller's perspective: a failing
// store degrades the system to "no caching / no dedup", never to a request
// failure.
type Store interface {
	// Get retrieves the value for a key. The second return value reports
	// whether the key existed.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a value with a TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetIfAbsent stores a value with a TTL only if the key does not exist.
	// Returns true if the value was stored.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete deletes the key only if its current value matches
	// token. Used for safe lock release: a holder can never delete a lock
	// that has expired and been re-acquired by someone else.
	CompareAndDelete(ctx context.Context, key, token string) error

	// Close releases backend resources.
	Close() error
}
