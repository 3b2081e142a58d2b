package testsupport

import (
	"path/filepath"
	"testing"

	"refinery/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a fresh temp directory with every
// path resolved, a placeholder API key, and small pipeline settings.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = base
	cfgVal.Paths.BootstrapDir = filepath.Join(base, "propositions")
	cfgVal.Paths.StagesDir = filepath.Join(base, "responses")
	cfgVal.Paths.Journal = filepath.Join(base, "journal.db")
	cfgVal.LLM.APIKey = "test"
	cfgVal.Pipeline.BatchSize = 2
	cfgVal.Pipeline.TargetTotal = 4
	cfgVal.Pipeline.Stages = 2
	cfgVal.Pipeline.CallDelaySeconds = 0.1
	cfgVal.Retry.InitialDelaySeconds = 0.01
	cfgVal.Retry.Jitter = false

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

// WithStages overrides the number of refinement stages.
func WithStages(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Stages = n
	}
}

// WithTarget overrides the target item count.
func WithTarget(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.TargetTotal = n
	}
}

// WithBatchSize overrides the batch size.
func WithBatchSize(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.BatchSize = n
	}
}

// WithLogDir enables per-run log files under the temp directory.
func WithLogDir() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.LogDir = filepath.Join(b.baseDir, "logs")
	}
}

// WithoutAPIKey clears the API key.
func WithoutAPIKey() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.APIKey = ""
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.WorkDir
}
