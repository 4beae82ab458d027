package testsupport

import (
	"path/filepath"
	"testing"

	"scribeq/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The job store is a SQLite file inside the temp directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Worker.PollInterval = 1
	cfgVal.Worker.ErrorRetryInterval = 1

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

// WithMaxAttempts overrides the default max_attempts stamped on new jobs.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.DefaultMaxAttempts = n
	}
}

// WithMaxClaimBatch overrides the claim batch limit.
func WithMaxClaimBatch(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.MaxClaimBatch = n
	}
}

// WithoutAttemptLimit disables max_attempts enforcement.
func WithoutAttemptLimit() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.EnforceMaxAttempts = false
	}
}

// WithAPIToken sets the static bearer token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithJWTSecret sets the HS256 secret on the test config.
func WithJWTSecret(secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.JWTSecret = secret
	}
}

// WithWorkerCommand sets the command the worker runs per job.
func WithWorkerCommand(argv ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Worker.Command = argv
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
