package testsupport

import (
	"path/filepath"
	"testing"

	"callaudit/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Oracle.APIKey = "test"
	cfg.CRM.BaseURL = "http://127.0.0.1:0"
	cfg.CRM.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithOracleKey sets the oracle API key on the test config.
func WithOracleKey(key string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Oracle.APIKey = key
	}
}

// WithOracleBaseURL points the oracle client at a test server.
func WithOracleBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Oracle.BaseURL = url
	}
}

// WithCRM points the CRM client at a test server.
func WithCRM(baseURL, key string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.CRM.BaseURL = baseURL
		cfg.CRM.APIKey = key
	}
}

// WithStepWorkers overrides the orchestrator's concurrency bound.
func WithStepWorkers(workers int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.StepWorkers = workers
	}
}
