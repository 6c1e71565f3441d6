package kvstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisStore implements Store using Redis (or Redis-compatible backends like
// Dragonfly or Valkey). This is the backend shared across orchestrator
// instances; the in-process cache tier in front of it is private per instance.
type RedisStore struct {
	client *redis.Client
}

// compareAndDeleteScript atomically deletes a key only when it still holds
// the caller's token. A plain GET+DEL pair would race with lock expiry.
var compareAndDeleteScript = redis.NewScript(`
	if redis.call('get', KEYS[1]) == ARGV[1] then
		return redis.call('del', KEYS[1])
	else
		return 0
	end
`)

// NewRedisStore creates a new Redis-backed store.
// url should be in the format: redis://[password@]host:port[/db]
func NewRedisStore(url string, commandTimeout time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	// Keep timeouts short: a degraded store must slow requests down by at
	// most one command timeout, not hang them.
	opts.DialTimeout = commandTimeout
	opts.ReadTimeout = commandTimeout
	opts.WriteTimeout = commandTimeout
	opts.MaxRetries = 1

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis-compatible backend for bundle cache")

	return &RedisStore{client: client}, nil
}

// Get retrieves the value for a key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores a value with a TTL.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// SetIfAbsent stores a value with a TTL only if the key does not exist.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

// CompareAndDelete deletes the key only if its value matches token.
func (s *RedisStore) CompareAndDelete(ctx context.Context, key, token string) error {
	return compareAndDeleteScript.Run(ctx, s.client, []string{key}, token).Err()
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
