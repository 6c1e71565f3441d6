// Package bundle implements the bundle analysis job engine: cache, stampede
// guard, admission gate, process executor and the orchestration tying them
// together.
package bundle

import "time"

// BundleRequest describes one job attempt. Immutable once created.
type BundleRequest struct {
	PackageName    string `json:"packageName"`
	PackageVersion string `json:"packageVersion"` // concrete token, range, or "latest"
	Subpath        string `json:"subpath,omitempty"`
	JobID          string `json:"jobId"`
}

// BundleSizes holds the measured byte sizes of the bundled output.
type BundleSizes struct {
	Raw    int64 `json:"raw"`
	Gzip   int64 `json:"gzip"`
	Brotli int64 `json:"brotli"`
}

// PackageMetadata is derived from the installed package's own manifest,
// never mutated after construction.
type PackageMetadata struct {
	Name                string   `json:"name"`
	Version             string   `json:"version"`
	Description         string   `json:"description,omitempty"`
	License             string   `json:"license,omitempty"`
	Repository          string   `json:"repository,omitempty"`
	Homepage            string   `json:"homepage,omitempty"`
	Keywords            []string `json:"keywords,omitempty"`
	DependencyCount     int      `json:"dependencyCount"`
	PeerDependencyCount int      `json:"peerDependencyCount"`
	RegistryURL         string   `json:"registryUrl"`
	Subpaths            []string `json:"subpaths"`
}

// ErrorInfo carries a stable failure code plus a human message. Subpaths
// lists candidate alternate entry points when the failure is NO_ENTRY_POINT.
type ErrorInfo struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Subpaths []string  `json:"subpaths,omitempty"`
}

// BundleResponse is the tagged result of one job: exactly one of the
// success shape (Sizes+Metadata) or the failure shape (Error) is populated.
type BundleResponse struct {
	Success  bool             `json:"success"`
	Sizes    *BundleSizes     `json:"sizes,omitempty"`
	Metadata *PackageMetadata `json:"metadata,omitempty"`
	Error    *ErrorInfo       `json:"error,omitempty"`

	PackageName    string `json:"packageName,omitempty"`
	PackageVersion string `json:"packageVersion,omitempty"`
	Duration       int64  `json:"duration"` // milliseconds
	JobID          string `json:"jobId"`
	Timestamp      int64  `json:"timestamp"` // unix milliseconds
}

// Succeeded creates a success response for a request.
func Succeeded(req BundleRequest, sizes *BundleSizes, metadata *PackageMetadata, started time.Time) BundleResponse {
	return BundleResponse{
		Success:   true,
		Sizes:     sizes,
		Metadata:  metadata,
		Duration:  time.Since(started).Milliseconds(),
		JobID:     req.JobID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Failed creates a failure response for a request.
func Failed(req BundleRequest, code ErrorCode, message string, started time.Time) BundleResponse {
	return BundleResponse{
		Success:        false,
		Error:          &ErrorInfo{Code: code, Message: message},
		PackageName:    req.PackageName,
		PackageVersion: req.PackageVersion,
		Duration:       time.Since(started).Milliseconds(),
		JobID:          req.JobID,
		Timestamp:      time.Now().UnixMilli(),
	}
}
