package bundle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sizepanic/sizepanic/internal/config"
	"github.com/sizepanic/sizepanic/internal/kvstore"
	"github.com/sizepanic/sizepanic/internal/npm"
	"github.com/sizepanic/sizepanic/internal/observability"
)

// Service is the bundle analysis engine. It owns the cache, the stampede
// guard, the admission gate and the job runner, and exposes the single
// Analyze operation plus a batch variant sharing the same global gate.
//
// All collaborators are injected so the whole engine can run against test
// doubles; there is no ambient global state.
type Service struct {
	cfg     config.BundleConfig
	store   kvstore.Store
	cache   *ResponseCache
	locks   *LockManager
	gate    *Semaphore
	runner  Runner
	rules   *RuleSet
	metrics *observability.Metrics
}

// NewService wires the engine together. The service takes ownership of the
// store and closes it on Close.
func NewService(cfg config.BundleConfig, store kvstore.Store, runner Runner, rules *RuleSet, metrics *observability.Metrics) *Service {
	return &Service{
		cfg:     cfg,
		store:   store,
		cache:   NewResponseCache(store, cfg.CacheNamespace, cfg.LocalCacheSize),
		locks:   NewLockManager(store, cfg.LockTTL, cfg.LockWaitTimeout, cfg.LockPollInterval),
		gate:    NewSemaphore(cfg.MaxConcurrency, cfg.MaxQueueSize),
		runner:  runner,
		rules:   rules,
		metrics: metrics,
	}
}

// Close releases the engine's resources.
func (s *Service) Close() error {
	return s.store.Close()
}

// AnalyzeInput identifies one package to analyze.
type AnalyzeInput struct {
	PackageName    string
	PackageVersion string
	Subpath        string
}

// Analyze measures the bundled cost of one package. It always returns a
// BundleResponse; every failure mode is represented as data.
func (s *Service) Analyze(ctx context.Context, input AnalyzeInput) BundleResponse {
	started := time.Now()

	parsed := npm.ParsePackage(input.PackageName)
	subpath := parsed.Subpath
	if input.Subpath != "" {
		subpath = "./" + npm.NormalizeSubpath(input.Subpath)
	}

	req := BundleRequest{
		PackageName: parsed.Name,
		Subpath:     subpath,
		JobID:       uuid.NewString(),
	}

	version, err := npm.ResolveVersion(input.PackageVersion)
	if err != nil {
		return Failed(req, CodeInstallFailed, err.Error(), started)
	}
	req.PackageVersion = version

	// Filter before any cache, lock or install cost. The worker re-checks,
	// but the fast reject is what protects the machine from junk input.
	if skip, reason := s.rules.ShouldSkip(req.PackageName, req.Subpath); skip {
		resp := Failed(req, CodeUnsupported, reason, started)
		key := s.cache.Key(req.PackageName, req.PackageVersion, req.Subpath)
		s.cache.Set(ctx, key, resp, req.PackageVersion)
		return resp
	}

	key := s.cache.Key(req.PackageName, req.PackageVersion, req.Subpath)

	if cached, ok := s.cache.Get(ctx, key); ok {
		s.metrics.ObserveCache("hit")
		return *cached
	}
	s.metrics.ObserveCache("miss")

	lock := s.locks.TryAcquire(ctx, key)
	if lock == nil {
		// Someone else is computing this fingerprint. Wait briefly for
		// their result; compute independently if it never shows up.
		if resp := s.locks.WaitForResult(ctx, s.cache, key); resp != nil {
			s.metrics.ObserveLock("waited")
			return *resp
		}
		s.metrics.ObserveLock("computed")
	} else {
		s.metrics.ObserveLock("acquired")
	}
	defer s.locks.Release(ctx, lock)

	resp, admitted := s.execute(ctx, req)

	// Busy rejections are a statement about this instance's load, not
	// about the package; they must not poison the shared cache.
	if admitted {
		s.cache.Set(ctx, key, resp, req.PackageVersion)
	}

	code := "success"
	if resp.Error != nil {
		code = string(resp.Error.Code)
	}
	s.metrics.ObserveJob(code, time.Since(started))

	return resp
}

// execute admits the job through the concurrency gate and runs it. The
// second return value reports whether the job actually ran.
func (s *Service) execute(ctx context.Context, req BundleRequest) (BundleResponse, bool) {
	started := time.Now()

	if err := s.gate.Acquire(ctx, s.cfg.QueueWaitTimeout); err != nil {
		s.metrics.SetGateState(s.gate.InUse(), s.gate.Waiting())

		switch {
		case errors.Is(err, ErrQueueTimeout):
			return Failed(req, CodeTimeout,
				fmt.Sprintf("Server is busy right now. Queue wait exceeded %s", s.cfg.QueueWaitTimeout), started), false
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// The caller walked away; this says nothing about server load,
			// so it must not look like a busy signal upstream.
			return Failed(req, CodeUnknown,
				"Request was cancelled before an execution slot became available.", started), false
		default:
			return Failed(req, CodeUnknown,
				"Server is busy right now. Please try again shortly.", started), false
		}
	}
	defer s.gate.Release()
	s.metrics.SetGateState(s.gate.InUse(), s.gate.Waiting())

	log.Debug().
		Str("job_id", req.JobID).
		Str("package", req.PackageName).
		Str("version", req.PackageVersion).
		Str("subpath", req.Subpath).
		Msg("Starting bundle job")

	return s.runner.Run(ctx, req), true
}

// AnalyzeBatch runs multiple analyses concurrently under the same global
// admission gate. Each input gets a response at its own index; one
// package's failure never aborts the rest.
func (s *Service) AnalyzeBatch(ctx context.Context, inputs []AnalyzeInput) []BundleResponse {
	responses := make([]BundleResponse, len(inputs))

	var wg sync.WaitGroup
	for i, input := range inputs {
		wg.Add(1)
		go func(i int, input AnalyzeInput) {
			defer wg.Done()
			responses[i] = s.Analyze(ctx, input)
		}(i, input)
	}
	wg.Wait()

	return responses
}
