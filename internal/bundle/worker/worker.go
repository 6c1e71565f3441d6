// Package worker implements the isolated pipeline that runs inside a
// spawned child process: install the package into an ephemeral sandbox,
// read its metadata, bundle it for a browser target and measure the
// encoded sizes.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sizepanic/sizepanic/internal/bundle"
	"github.com/sizepanic/sizepanic/internal/config"
	"github.com/sizepanic/sizepanic/internal/npm"
)

// Pipeline runs one bundle analysis job inside the worker process.
type Pipeline struct {
	cfg      config.BundleConfig
	rules    *bundle.RuleSet
	registry *npm.Client
}

// New creates a pipeline from the worker-side configuration.
func New(cfg config.BundleConfig, rules *bundle.RuleSet) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		rules:    rules,
		registry: npm.NewClient(cfg.RegistryURL),
	}
}

// Run reads one JSON BundleRequest from stdin, executes the pipeline and
// writes one JSON BundleResponse to stdout. A decode failure is the only
// case that returns an error (and a non-zero exit): without a job ID there
// is no response to shape.
func (p *Pipeline) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return fmt.Errorf("failed to read request from stdin: %w", err)
	}

	var req bundle.BundleRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("failed to decode bundle request: %w", err)
	}

	resp := p.Execute(ctx, req)

	if err := json.NewEncoder(stdout).Encode(resp); err != nil {
		return fmt.Errorf("failed to encode bundle response: %w", err)
	}
	return nil
}

// Execute runs the full pipeline for one request. Cleanup of the sandbox
// always runs, whatever the outcome; the result is always a response,
// never an error.
func (p *Pipeline) Execute(ctx context.Context, req bundle.BundleRequest) bundle.BundleResponse {
	started := time.Now()

	defer func() {
		if err := bundle.CleanupSandbox(p.cfg.SandboxRoot, req.JobID); err != nil {
			log.Error().Err(err).Str("job_id", req.JobID).Msg("Sandbox cleanup failed")
		}
	}()

	result, err := p.analyze(ctx, req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("job_id", req.JobID).
			Str("package", req.PackageName).
			Msg("Bundle job failed")
		return bundle.FailedFromError(req, err, started)
	}

	return bundle.Succeeded(req, result.sizes, result.metadata, started)
}

type analysis struct {
	sizes    *bundle.BundleSizes
	metadata *bundle.PackageMetadata
}

// analyze is the pipeline state machine: Filtering, Fetching, Installing,
// ReadingMetadata, ValidatingEntryPoint, Bundling, MeasuringSizes. Any
// stage may fail the job with a classified PipelineError.
func (p *Pipeline) analyze(ctx context.Context, req bundle.BundleRequest) (*analysis, error) {
	// Filtering. The worker does not trust that its caller already
	// filtered; it may be invoked directly.
	if skip, reason := p.rules.ShouldSkip(req.PackageName, req.Subpath); skip {
		return nil, bundle.NewPipelineError(bundle.CodeUnsupported, reason)
	}

	// Fetching: resolve the latest tag to a concrete version and reject
	// oversized packages before paying for an install.
	version, err := p.fetch(ctx, req.PackageName, req.PackageVersion)
	if err != nil {
		return nil, err
	}

	workDir := bundle.SandboxDir(p.cfg.SandboxRoot, req.JobID)

	// Installing.
	if err := p.install(ctx, workDir, req.PackageName, version); err != nil {
		return nil, err
	}

	// ReadingMetadata: the installed package's own manifest, not the
	// registry's view, so the numbers reflect what resolution picked.
	manifest, err := readInstalledManifest(workDir, req.PackageName)
	if err != nil {
		return nil, err
	}
	metadata := extractMetadata(manifest, p.registry.BaseURL())

	// ValidatingEntryPoint: root requests fail fast with candidate
	// subpaths instead of a confusing generic bundler error.
	if req.Subpath == "" {
		if err := validateRootEntry(manifest); err != nil {
			return nil, err
		}
	}

	// Bundling: the package's own dependencies stay external so the
	// measurement is this package's cost, not its dependency tree's.
	externals := manifest.dependencyNames()
	code, err := p.bundlePackage(workDir, req.PackageName, req.Subpath, externals)
	if err != nil {
		return nil, err
	}

	if int64(len(code)) > p.cfg.MaxBundleSize {
		return nil, bundle.NewPipelineError(bundle.CodeSizeLimitExceeded,
			fmt.Sprintf("bundled output of %d bytes exceeds the %d byte limit", len(code), p.cfg.MaxBundleSize))
	}

	// MeasuringSizes.
	sizes, err := calculateSizes(code)
	if err != nil {
		return nil, err
	}

	return &analysis{sizes: sizes, metadata: metadata}, nil
}

// fetch resolves "latest" against the registry and pre-checks the declared
// unpacked size for concrete versions. Ranges skip the size precheck since
// the registry cannot resolve them in a single lookup; the post-install
// size cap still applies.
func (p *Pipeline) fetch(ctx context.Context, name, requested string) (string, error) {
	version := requested

	if requested == npm.Latest {
		resolved, err := p.registry.LatestVersion(ctx, name)
		if err != nil {
			return "", classifyFetchError(err, name)
		}
		version = resolved
	}

	if npm.IsExact(version) {
		info, err := p.registry.VersionInfo(ctx, name, version)
		if err != nil {
			return "", classifyFetchError(err, name)
		}
		if info.Dist.UnpackedSize > 0 && info.Dist.UnpackedSize > p.cfg.MaxUnpackedSize {
			return "", bundle.NewPipelineError(bundle.CodeSizeLimitExceeded,
				fmt.Sprintf("unpacked size of %d bytes exceeds the %d byte limit", info.Dist.UnpackedSize, p.cfg.MaxUnpackedSize))
		}
	}

	return version, nil
}

func classifyFetchError(err error, name string) error {
	if errors.Is(err, npm.ErrPackageNotFound) {
		return bundle.NewPipelineError(bundle.CodeInstallFailed,
			fmt.Sprintf("Package %q not found on npm", name))
	}
	return bundle.NewPipelineError(bundle.CodeFetchFailed, err.Error())
}
