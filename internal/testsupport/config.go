package testsupport

import (
	"path/filepath"
	"testing"

	"mediapress/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.MediaRoot = filepath.Join(base, "media")
	cfg.Paths.InputDir = filepath.Join(base, "media", "input")
	cfg.Paths.OutputDir = filepath.Join(base, "media", "output")
	cfg.Paths.ThumbDir = filepath.Join(base, "media", "thumb")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Status.TickIntervalMillis = 10

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithQuota overrides the per-user active-task cap on the test config.
func WithQuota(limit int) ConfigOption {
	return func(c *config.Config) {
		c.Quota.MaxActiveTasksPerUser = limit
	}
}

// WithMaxAttempts overrides the pipeline retry cap on the test config.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(c *config.Config) {
		c.Pipeline.MaxAttempts = attempts
	}
}
