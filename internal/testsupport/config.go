package testsupport

import (
	"path/filepath"
	"testing"

	"memecat/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Remote.URL = "http://webdav.invalid/dav"
	cfgVal.Description.Provider = "none"
	cfgVal.Sync.RunOnStart = false
	cfgVal.Sync.FetchRetries = 0
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithThreshold overrides the clustering distance threshold.
func WithThreshold(threshold int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dedup.Threshold = threshold
	}
}

// WithMaxAttempts overrides the per-item retry cap.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.MaxAttempts = attempts
	}
}

// WithFetchRetries overrides the in-run fetch retry budget.
func WithFetchRetries(retries int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.FetchRetries = retries
	}
}

// WithoutFPCache disables the fingerprint memo.
func WithoutFPCache() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.FPCache.Enabled = false
	}
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
