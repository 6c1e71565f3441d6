// Package config loads the application configuration from a YAML file,
// environment variables and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Bundle BundleConfig `mapstructure:"bundle"`
	Debug  bool         `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
}

// RedisConfig contains the shared cache/lock store settings.
// An empty URL degrades the engine to per-instance caching.
type RedisConfig struct {
	URL            string        `mapstructure:"url"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// BundleConfig contains every resource knob of the analysis pipeline.
type BundleConfig struct {
	// Orchestrator side.
	JobTimeout       time.Duration `mapstructure:"job_timeout"`        // hard wall-clock ceiling per job
	KillGracePeriod  time.Duration `mapstructure:"kill_grace_period"`  // SIGTERM to SIGKILL escalation window
	MaxConcurrency   int           `mapstructure:"max_concurrency"`    // simultaneous worker processes
	MaxQueueSize     int           `mapstructure:"max_queue_size"`     // admission queue bound
	QueueWaitTimeout time.Duration `mapstructure:"queue_wait_timeout"` // per-waiter queue timeout
	LockTTL          time.Duration `mapstructure:"lock_ttl"`           // must exceed worst-case job duration
	LockWaitTimeout  time.Duration `mapstructure:"lock_wait_timeout"`  // bounded wait for a peer's result
	LockPollInterval time.Duration `mapstructure:"lock_poll_interval"`
	CacheNamespace   string        `mapstructure:"cache_namespace"`
	LocalCacheSize   int           `mapstructure:"local_cache_size"`
	BatchLimit       int           `mapstructure:"batch_limit"`

	// Worker side.
	InstallTimeout  time.Duration `mapstructure:"install_timeout"`
	MaxInstallSize  int64         `mapstructure:"max_install_size"`  // bytes on disk after install
	MaxUnpackedSize int64         `mapstructure:"max_unpacked_size"` // registry-declared unpacked size
	MaxBundleSize   int64         `mapstructure:"max_bundle_size"`   // bundled output bytes
	NpmBinary       string        `mapstructure:"npm_binary"`
	RegistryURL     string        `mapstructure:"registry_url"`
	BlacklistFile   string        `mapstructure:"blacklist_file"`
	SandboxRoot     string        `mapstructure:"sandbox_root"` // defaults to os.TempDir()
}

// Load reads configuration from file, environment and defaults.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	viper.SetConfigName("sizepanic")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/sizepanic")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SIZEPANIC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from a .env file if present.
func loadEnvFile() error {
	locations := []string{".env", ".env.local"}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "60s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.body_limit", 1024*1024)

	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.command_timeout", "1200ms")

	viper.SetDefault("bundle.job_timeout", "20s")
	viper.SetDefault("bundle.kill_grace_period", "1s")
	viper.SetDefault("bundle.max_concurrency", 4)
	viper.SetDefault("bundle.max_queue_size", 64)
	viper.SetDefault("bundle.queue_wait_timeout", "30s")
	viper.SetDefault("bundle.lock_ttl", "45s")
	viper.SetDefault("bundle.lock_wait_timeout", "3500ms")
	viper.SetDefault("bundle.lock_poll_interval", "120ms")
	viper.SetDefault("bundle.cache_namespace", "sp:bundle-cache:v1")
	viper.SetDefault("bundle.local_cache_size", 1000)
	viper.SetDefault("bundle.batch_limit", 300)

	viper.SetDefault("bundle.install_timeout", "30s")
	viper.SetDefault("bundle.max_install_size", 150*1024*1024)
	viper.SetDefault("bundle.max_unpacked_size", 50*1024*1024)
	viper.SetDefault("bundle.max_bundle_size", 50*1024*1024)
	viper.SetDefault("bundle.npm_binary", "npm")
	viper.SetDefault("bundle.registry_url", "https://registry.npmjs.org")
	viper.SetDefault("bundle.blacklist_file", "")
	viper.SetDefault("bundle.sandbox_root", "")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Bundle.MaxConcurrency < 1 {
		return fmt.Errorf("bundle.max_concurrency must be at least 1")
	}
	if c.Bundle.MaxQueueSize < 0 {
		return fmt.Errorf("bundle.max_queue_size must not be negative")
	}
	if c.Bundle.JobTimeout <= 0 {
		return fmt.Errorf("bundle.job_timeout must be positive")
	}
	if c.Bundle.LockTTL <= c.Bundle.JobTimeout {
		// A live computation must never be preempted by its own lock
		// expiring mid-job.
		return fmt.Errorf("bundle.lock_ttl (%s) must exceed bundle.job_timeout (%s)", c.Bundle.LockTTL, c.Bundle.JobTimeout)
	}
	if c.Bundle.LocalCacheSize < 1 {
		return fmt.Errorf("bundle.local_cache_size must be at least 1")
	}
	return nil
}
