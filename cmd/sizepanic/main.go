package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sizepanic/sizepanic/internal/api"
	"github.com/sizepanic/sizepanic/internal/bundle"
	"github.com/sizepanic/sizepanic/internal/bundle/worker"
	"github.com/sizepanic/sizepanic/internal/config"
	"github.com/sizepanic/sizepanic/internal/kvstore"
	"github.com/sizepanic/sizepanic/internal/observability"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// CLI flags
	showVersion = flag.Bool("version", false, "Show version information")
	workerMode  = flag.Bool("bundle-worker", false, "Run as an isolated bundle worker (reads a request from stdin)")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("sizepanic %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		os.Exit(0)
	}

	// Logs go to stderr unconditionally: in worker mode stdout carries
	// exactly one JSON response and nothing else.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	rules := loadRules(cfg)

	if *workerMode {
		runWorker(cfg, rules)
		return
	}

	runServer(cfg, rules)
}

// runWorker executes one bundle job: request on stdin, response on stdout.
func runWorker(cfg *config.Config, rules *bundle.RuleSet) {
	// SIGTERM from the orchestrator cancels the pipeline so the install
	// subprocess dies and the sandbox cleanup still runs.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pipeline := worker.New(cfg.Bundle, rules)
	if err := pipeline.Run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Error().Err(err).Msg("Bundle worker failed")
		os.Exit(1)
	}
}

// runServer starts the orchestrator: engine plus HTTP surface.
func runServer(cfg *config.Config, rules *bundle.RuleSet) {
	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting sizepanic")

	store, err := kvstore.New(cfg.Redis.URL, cfg.Redis.CommandTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to cache store")
	}

	metrics := observability.NewMetrics()
	executor := bundle.NewProcessExecutor(cfg.Bundle.JobTimeout, cfg.Bundle.KillGracePeriod, cfg.Bundle.SandboxRoot)
	service := bundle.NewService(cfg.Bundle, store, executor, rules, metrics)
	defer func() {
		if err := service.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close bundle service")
		}
	}()

	server := api.NewServer(cfg, service, metrics)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	if err := server.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}

// loadRules compiles the suitability filter, preferring the configured
// override file.
func loadRules(cfg *config.Config) *bundle.RuleSet {
	if cfg.Bundle.BlacklistFile == "" {
		return bundle.DefaultRules()
	}

	rules, err := bundle.LoadRules(cfg.Bundle.BlacklistFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.Bundle.BlacklistFile).Msg("Failed to load blacklist rules")
	}
	log.Info().Str("file", cfg.Bundle.BlacklistFile).Msg("Blacklist rules loaded")
	return rules
}
