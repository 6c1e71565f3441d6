package npm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultRegistryURL is the public npm registry.
const DefaultRegistryURL = "https://registry.npmjs.org"

// ErrPackageNotFound is returned when the registry reports a 404 for a
// package or version.
var ErrPackageNotFound = errors.New("package not found")

// Client is a minimal npm registry client. It only covers the two reads the
// pipeline needs: resolving the latest dist-tag and fetching a single
// version's manifest slice for the pre-install size check.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a registry client for the given base URL.
// An empty baseURL uses the public npm registry.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultRegistryURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// BaseURL returns the registry base URL, used to build metadata links.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type packumentSlice struct {
	DistTags map[string]string `json:"dist-tags"`
}

// VersionInfo is the subset of a registry version document the pipeline
// inspects before paying for an install.
type VersionInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Dist    struct {
		Tarball      string `json:"tarball"`
		UnpackedSize int64  `json:"unpackedSize"`
	} `json:"dist"`
}

// LatestVersion resolves a package's "latest" dist-tag.
func (c *Client) LatestVersion(ctx context.Context, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(name), nil)
	if err != nil {
		return "", err
	}
	// Abbreviated metadata is an order of magnitude smaller than the full
	// packument for popular packages.
	req.Header.Set("Accept", "application/vnd.npm.install-v1+json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("registry request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %q", ErrPackageNotFound, name)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("registry returned %d for %q", res.StatusCode, name)
	}

	var doc packumentSlice
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to decode registry response: %w", err)
	}

	latest := doc.DistTags["latest"]
	if latest == "" {
		return "", fmt.Errorf("package %q has no latest dist-tag", name)
	}
	return latest, nil
}

// VersionInfo fetches the registry document for one concrete version.
func (c *Client) VersionInfo(ctx context.Context, name, version string) (*VersionInfo, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(name) + "/" + url.PathEscape(version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %q@%q", ErrPackageNotFound, name, version)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned %d for %q@%q", res.StatusCode, name, version)
	}

	var info VersionInfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}
	return &info, nil
}
