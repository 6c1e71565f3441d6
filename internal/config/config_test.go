package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Bundle: BundleConfig{
			JobTimeout:     20 * time.Second,
			MaxConcurrency: 4,
			MaxQueueSize:   64,
			LockTTL:        45 * time.Second,
			LocalCacheSize: 1000,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Bundle.MaxConcurrency = 0 },
			wantErr: "max_concurrency",
		},
		{
			name:    "negative queue size",
			mutate:  func(c *Config) { c.Bundle.MaxQueueSize = -1 },
			wantErr: "max_queue_size",
		},
		{
			name:   "zero queue size is a valid no-queue mode",
			mutate: func(c *Config) { c.Bundle.MaxQueueSize = 0 },
		},
		{
			name:    "zero job timeout",
			mutate:  func(c *Config) { c.Bundle.JobTimeout = 0 },
			wantErr: "job_timeout",
		},
		{
			name:    "lock ttl below job timeout",
			mutate:  func(c *Config) { c.Bundle.LockTTL = 10 * time.Second },
			wantErr: "lock_ttl",
		},
		{
			name:    "lock ttl equal to job timeout",
			mutate:  func(c *Config) { c.Bundle.LockTTL = c.Bundle.JobTimeout },
			wantErr: "lock_ttl",
		},
		{
			name:    "zero local cache size",
			mutate:  func(c *Config) { c.Bundle.LocalCacheSize = 0 },
			wantErr: "local_cache_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
