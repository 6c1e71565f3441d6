package kvstore

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// New creates a Store based on the configured Redis URL.
// An empty URL falls back to the in-process store, which keeps a
// single-instance deployment fully functional without any infrastructure.
func New(redisURL string, commandTimeout time.Duration) (Store, error) {
	if redisURL == "" {
		log.Warn().Msg("No Redis URL configured, using in-memory store (cache and locks are per-instance)")
		return NewMemoryStore(), nil
	}

	store, err := NewRedisStore(redisURL, commandTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis store: %w", err)
	}
	return store, nil
}
