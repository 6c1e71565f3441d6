package bundle

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sizepanic/sizepanic/internal/kvstore"
	"github.com/sizepanic/sizepanic/internal/npm"
)

// buildFingerprint captures every part of the build pipeline that affects a
// measured result. Changing any part changes the cache key and silently
// invalidates stale entries, so the pipeline never needs a manual cache
// bust.
var buildFingerprint = strings.Join([]string{
	"schema-v1",
	"esbuild-0.27",
	"target-browser",
	"format-esm",
	"minify-true",
	"ignore-scripts",
	"omit-peer-optional",
}, "|")

const (
	// localPromoteTTL bounds how long a durable-tier hit lives in the
	// local tier; long enough to absorb a burst, short enough to keep
	// instances roughly consistent.
	localPromoteTTL = 30 * time.Second
	// localTTLCap bounds the local lifetime of freshly computed entries.
	localTTLCap = 60 * time.Second
)

type localEntry struct {
	value     BundleResponse
	expiresAt time.Time
}

// ResponseCache is the two-tier response cache: a bounded in-process map
// for latency and a shared durable store for correctness across instances.
// The durable tier is best-effort; its failures degrade to cache misses.
type ResponseCache struct {
	store      kvstore.Store
	namespace  string
	maxEntries int

	mu      sync.Mutex
	entries map[string]localEntry
	order   []string // insertion/recency order, oldest first
}

// NewResponseCache creates a cache backed by the given durable store.
func NewResponseCache(store kvstore.Store, namespace string, maxEntries int) *ResponseCache {
	return &ResponseCache{
		store:      store,
		namespace:  namespace,
		maxEntries: maxEntries,
		entries:    make(map[string]localEntry),
	}
}

// Key builds the fingerprint cache key for a request identity.
func (c *ResponseCache) Key(name, version, subpath string) string {
	normalized := npm.NormalizeSubpath(subpath)
	if normalized == "" {
		normalized = "root"
	}
	return c.namespace + ":" + name + "@" + version + ":" + normalized + ":" + buildFingerprint
}

// Get checks the local tier first, then the durable tier. Durable hits are
// promoted into the local tier to absorb bursts.
func (c *ResponseCache) Get(ctx context.Context, key string) (*BundleResponse, bool) {
	if value, ok := c.getLocal(key); ok {
		return value, true
	}

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("Durable cache read failed, treating as miss")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var resp BundleResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Discarding unparsable cache entry")
		return nil, false
	}

	c.setLocal(key, resp, localPromoteTTL)
	return &resp, true
}

// Set computes the TTL for a response from its classification and stores it
// in both tiers. Responses whose TTL is zero or negative are not cached.
func (c *ResponseCache) Set(ctx context.Context, key string, resp BundleResponse, requestedVersion string) {
	ttl := ResponseTTL(resp, requestedVersion)
	if ttl <= 0 {
		return
	}

	localTTL := ttl
	if localTTL > localTTLCap {
		localTTL = localTTLCap
	}
	c.setLocal(key, resp, localTTL)

	payload, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("Failed to serialize bundle response for caching")
		return
	}

	// Best-effort: the cache is an optimization, not a correctness
	// dependency.
	if err := c.store.Set(ctx, key, string(payload), ttl); err != nil {
		log.Warn().Err(err).Msg("Durable cache write failed")
	}
}

func (c *ResponseCache) getLocal(key string) (*BundleResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}

	// Refresh recency so hot entries survive capacity eviction.
	c.removeFromOrder(key)
	c.order = append(c.order, key)

	value := entry.value
	return &value, true
}

func (c *ResponseCache) setLocal(key string, resp BundleResponse, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.removeFromOrder(key)
	} else if len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = localEntry{value: resp, expiresAt: time.Now().Add(ttl)}
	c.order = append(c.order, key)
}

func (c *ResponseCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// SuccessTTL returns the cache lifetime for a successful result. The latest
// tag moves under the caller and caches shortest; pinned versions and ranges
// share the long TTL, since a range only shifts when a matching version is
// published inside the window.
func SuccessTTL(requestedVersion string) time.Duration {
	if requestedVersion == npm.Latest {
		return time.Hour
	}
	return 6 * time.Hour
}

// ResponseTTL maps a response's classification to its cache lifetime.
//
// Structural failures are stable properties of a published version and
// cache long (still bounded, since a newer publish may differ for unpinned
// requests). "Not found" install failures are stable absences. Everything
// that smells transient caches for under a minute.
func ResponseTTL(resp BundleResponse, requestedVersion string) time.Duration {
	successTTL := SuccessTTL(requestedVersion)
	if resp.Success {
		return successTTL
	}
	if resp.Error == nil {
		return 0
	}

	switch resp.Error.Code {
	case CodeNoEntryPoint, CodeUnsupported, CodeNodeBuiltins, CodeSizeLimitExceeded:
		if successTTL < time.Hour {
			return successTTL
		}
		return time.Hour
	case CodeInstallFailed:
		if strings.Contains(resp.Error.Message, "not found") ||
			strings.Contains(resp.Error.Message, "No version of") {
			return 30 * time.Minute
		}
		return 2 * time.Minute
	case CodeTimeout, CodeUnknown, CodeBundleFailed, CodeFetchFailed:
		return time.Minute
	default:
		return time.Minute
	}
}
