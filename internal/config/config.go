package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"refinery/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// Provider names a remote text generation backend.
type Provider string

const (
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGemini     Provider = "gemini"
)

// Paths contains workspace directory configuration. BootstrapDir, StagesDir,
// and Journal are resolved relative to WorkDir unless absolute.
type Paths struct {
	WorkDir      string `toml:"work_dir"`
	BootstrapDir string `toml:"bootstrap_dir"`
	StagesDir    string `toml:"stages_dir"`
	LogDir       string `toml:"log_dir"`
	Journal      string `toml:"journal"`
}

// LLM contains the remote text service connection settings.
type LLM struct {
	Provider       Provider `toml:"provider"`
	APIKey         string   `toml:"api_key"`
	BaseURL        string   `toml:"base_url"`
	Model          string   `toml:"model"`
	Referer        string   `toml:"referer"`
	Title          string   `toml:"title"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Generation controls how raw items are produced for the bootstrap directory.
type Generation struct {
	MaxTokens   int      `toml:"max_tokens"`
	Temperature float64  `toml:"temperature"`
	Categories  []string `toml:"categories"`
	SeedWords   []string `toml:"seed_words"`
	Complexity  string   `toml:"complexity"`
}

// Refinement controls the per-stage transformation request.
type Refinement struct {
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
}

// Pipeline contains the control loop parameters.
type Pipeline struct {
	BatchSize              int     `toml:"batch_size"`
	TargetTotal            int     `toml:"target_total"`
	Stages                 int     `toml:"stages"`
	CallDelaySeconds       float64 `toml:"call_delay_seconds"`
	Concurrency            int     `toml:"concurrency"`
	MaxConsecutiveFailures int     `toml:"max_consecutive_failures"`
	Resume                 bool    `toml:"resume"`
}

// Retry contains the backoff policy applied to every remote call.
type Retry struct {
	MaxAttempts         int     `toml:"max_attempts"`
	InitialDelaySeconds float64 `toml:"initial_delay_seconds"`
	BackoffBase         float64 `toml:"backoff_base"`
	Jitter              bool    `toml:"jitter"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for refinery.
//
// Configuration sections by subsystem:
//   - Paths: workspace, stage directories, journal, and log locations
//   - LLM: remote text service provider and credentials
//   - Generation: raw item production (bootstrap stage)
//   - Refinement: per-stage refinement request settings
//   - Pipeline: batch size, target total, stage count, pacing
//   - Retry: backoff policy for remote calls
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	LLM        LLM        `toml:"llm"`
	Generation Generation `toml:"generation"`
	Refinement Refinement `toml:"refinement"`
	Pipeline   Pipeline   `toml:"pipeline"`
	Retry      Retry      `toml:"retry"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/refinery/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("refinery.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the workspace root and the log directory. Stage
// directories are created lazily by the pipeline.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequireAPIKey reports a configuration error when no credential is available
// for the configured provider.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.LLM.APIKey) != "" {
		return nil
	}
	return services.New(services.KindConfiguration, "llm",
		fmt.Sprintf("llm.api_key is required for provider %s; set %s or edit the config (create with 'refinery config init')",
			c.LLM.Provider, apiKeyEnv(c.LLM.Provider)))
}

// CallDelay returns the minimum spacing between remote calls.
func (c *Config) CallDelay() time.Duration {
	return secondsToDuration(c.Pipeline.CallDelaySeconds)
}

// RetryInitialDelay returns the first backoff delay.
func (c *Config) RetryInitialDelay() time.Duration {
	return secondsToDuration(c.Retry.InitialDelaySeconds)
}

// LLMTimeout returns the per-request timeout for the remote service.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// StageDir returns the directory holding stage k output (1-based).
func (c *Config) StageDir(k int) string {
	return filepath.Join(c.Paths.StagesDir, fmt.Sprint(k))
}

func secondsToDuration(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML with the API key masked.
func (c *Config) Encode() (string, error) {
	clone := *c
	if clone.LLM.APIKey != "" {
		clone.LLM.APIKey = "********"
	}
	data, err := toml.Marshal(clone)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
