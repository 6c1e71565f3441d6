package bundle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sizepanic/sizepanic/internal/kvstore"
)

func newTestCache(maxEntries int) (*ResponseCache, kvstore.Store) {
	store := kvstore.NewMemoryStore()
	return NewResponseCache(store, "test:cache", maxEntries), store
}

func successResponse(name string) BundleResponse {
	return BundleResponse{
		Success:  true,
		Sizes:    &BundleSizes{Raw: 1000, Gzip: 400, Brotli: 350},
		Metadata: &PackageMetadata{Name: name, Version: "1.0.0", Subpaths: []string{}},
	}
}

func failureResponse(code ErrorCode, message string) BundleResponse {
	return BundleResponse{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message},
	}
}

func TestCacheKey(t *testing.T) {
	cache, _ := newTestCache(10)

	root := cache.Key("lodash", "4.17.21", "")
	subpath := cache.Key("lodash", "4.17.21", "./debounce")
	otherVersion := cache.Key("lodash", "4.17.20", "")

	// Identity: name, version and subpath all separate entries.
	assert.NotEqual(t, root, subpath)
	assert.NotEqual(t, root, otherVersion)

	// The build fingerprint is part of the key, so pipeline changes
	// invalidate old entries without a manual flush.
	assert.Contains(t, root, buildFingerprint)
	assert.Contains(t, root, "root")
	assert.Contains(t, subpath, "debounce")

	// Same identity, same key.
	assert.Equal(t, root, cache.Key("lodash", "4.17.21", ""))
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(10)

	key := cache.Key("lodash", "4.17.21", "")
	resp := successResponse("lodash")

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	cache.Set(ctx, key, resp, "4.17.21")

	got, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.True(t, got.Success)
	assert.Equal(t, int64(400), got.Sizes.Gzip)
	assert.Equal(t, "lodash", got.Metadata.Name)
}

func TestCacheDurableTierPromotion(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	writer := NewResponseCache(store, "test:cache", 10)
	reader := NewResponseCache(store, "test:cache", 10)

	key := writer.Key("react", "18.2.0", "")
	writer.Set(ctx, key, successResponse("react"), "18.2.0")

	// A second instance sharing the store sees the entry through the
	// durable tier.
	got, ok := reader.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "react", got.Metadata.Name)

	// After promotion the local tier serves it without the store.
	_, local := reader.getLocal(key)
	assert.True(t, local)
}

func TestCacheLocalEviction(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(2)

	keyA := cache.Key("a", "1.0.0", "")
	keyB := cache.Key("b", "1.0.0", "")
	keyC := cache.Key("c", "1.0.0", "")

	cache.Set(ctx, keyA, successResponse("a"), "1.0.0")
	cache.Set(ctx, keyB, successResponse("b"), "1.0.0")

	// Touch A so B becomes the eviction candidate.
	_, ok := cache.getLocal(keyA)
	require.True(t, ok)

	cache.Set(ctx, keyC, successResponse("c"), "1.0.0")

	_, ok = cache.getLocal(keyA)
	assert.True(t, ok, "recently used entry survives")
	_, ok = cache.getLocal(keyB)
	assert.False(t, ok, "oldest entry evicted")
	_, ok = cache.getLocal(keyC)
	assert.True(t, ok)
}

func TestSuccessTTL(t *testing.T) {
	assert.Equal(t, time.Hour, SuccessTTL("latest"))
	assert.Equal(t, 6*time.Hour, SuccessTTL("4.17.21"))
	assert.Equal(t, 6*time.Hour, SuccessTTL("^4.0.0"))
}

func TestResponseTTL(t *testing.T) {
	tests := []struct {
		name    string
		resp    BundleResponse
		version string
		want    time.Duration
	}{
		{
			name:    "success exact",
			resp:    successResponse("lodash"),
			version: "4.17.21",
			want:    6 * time.Hour,
		},
		{
			name:    "success latest",
			resp:    successResponse("lodash"),
			version: "latest",
			want:    time.Hour,
		},
		{
			name:    "no entry point is structural",
			resp:    failureResponse(CodeNoEntryPoint, "Package doesn't have a default export."),
			version: "4.17.21",
			want:    time.Hour,
		},
		{
			name:    "unsupported is structural",
			resp:    failureResponse(CodeUnsupported, "Build tools are not meant to be bundled"),
			version: "latest",
			want:    time.Hour,
		},
		{
			name:    "node builtins is structural",
			resp:    failureResponse(CodeNodeBuiltins, "uses fs"),
			version: "1.0.0",
			want:    time.Hour,
		},
		{
			name:    "size limit is structural",
			resp:    failureResponse(CodeSizeLimitExceeded, "too big"),
			version: "1.0.0",
			want:    time.Hour,
		},
		{
			name:    "missing package caches medium",
			resp:    failureResponse(CodeInstallFailed, `Package "nope" not found on npm`),
			version: "latest",
			want:    30 * time.Minute,
		},
		{
			name:    "missing version caches medium",
			resp:    failureResponse(CodeInstallFailed, `No version of "lodash" satisfies "99.0.0"`),
			version: "99.0.0",
			want:    30 * time.Minute,
		},
		{
			name:    "other install failure caches short",
			resp:    failureResponse(CodeInstallFailed, "Install failed: EAI_AGAIN registry.npmjs.org"),
			version: "latest",
			want:    2 * time.Minute,
		},
		{
			name:    "timeout caches briefly",
			resp:    failureResponse(CodeTimeout, "killed after 20s"),
			version: "latest",
			want:    time.Minute,
		},
		{
			name:    "fetch failure caches briefly",
			resp:    failureResponse(CodeFetchFailed, "registry returned 503"),
			version: "latest",
			want:    time.Minute,
		},
		{
			name:    "bundle failure caches briefly",
			resp:    failureResponse(CodeBundleFailed, "could not resolve"),
			version: "latest",
			want:    time.Minute,
		},
		{
			name:    "failure without error info never cached",
			resp:    BundleResponse{Success: false},
			version: "latest",
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResponseTTL(tt.resp, tt.version))
		})
	}
}

func TestResponseTTLOrdering(t *testing.T) {
	// Structural verdicts must outlive transient ones so retries go to
	// the failures that might actually change.
	structural := ResponseTTL(failureResponse(CodeNoEntryPoint, "no export"), "1.0.0")
	transient := ResponseTTL(failureResponse(CodeFetchFailed, "503"), "1.0.0")
	assert.Greater(t, structural, transient)
}
