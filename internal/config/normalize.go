package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeGeneration()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("REFINERY_WORKDIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.WorkDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.BootstrapDir) == "" {
		c.Paths.BootstrapDir = defaultBootstrapDir
	}
	if c.Paths.BootstrapDir, err = c.workspacePath(c.Paths.BootstrapDir); err != nil {
		return fmt.Errorf("paths.bootstrap_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagesDir) == "" {
		c.Paths.StagesDir = defaultStagesDir
	}
	if c.Paths.StagesDir, err = c.workspacePath(c.Paths.StagesDir); err != nil {
		return fmt.Errorf("paths.stages_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.Journal) != "" {
		if c.Paths.Journal, err = c.workspacePath(c.Paths.Journal); err != nil {
			return fmt.Errorf("paths.journal: %w", err)
		}
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

// workspacePath resolves value against the work dir unless it is absolute or
// home-relative.
func (c *Config) workspacePath(value string) (string, error) {
	value = strings.TrimSpace(value)
	if filepath.IsAbs(value) || strings.HasPrefix(value, "~") {
		return expandPath(value)
	}
	return expandPath(filepath.Join(c.Paths.WorkDir, value))
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = Provider(strings.ToLower(strings.TrimSpace(string(c.LLM.Provider))))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultProvider
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv(apiKeyEnv(c.LLM.Provider)); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	switch c.LLM.Provider {
	case ProviderAnthropic:
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = defaultAnthropicBaseURL
		}
		if c.LLM.Model == "" {
			c.LLM.Model = defaultAnthropicModel
		}
	case ProviderOpenRouter:
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = defaultOpenRouterBaseURL
		}
		if c.LLM.Model == "" {
			c.LLM.Model = defaultOpenRouterModel
		}
	case ProviderGemini:
		if c.LLM.Model == "" {
			c.LLM.Model = defaultGeminiModel
		}
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeGeneration() {
	c.Generation.Categories = cleanList(c.Generation.Categories, true)
	if len(c.Generation.Categories) == 0 {
		c.Generation.Categories = append([]string(nil), defaultCategories...)
	}
	c.Generation.SeedWords = cleanList(c.Generation.SeedWords, false)
	c.Generation.Complexity = strings.ToLower(strings.TrimSpace(c.Generation.Complexity))
	if c.Generation.Complexity == "" {
		c.Generation.Complexity = defaultComplexity
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func cleanList(values []string, lower bool) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if lower {
			value = strings.ToLower(value)
		}
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func apiKeyEnv(provider Provider) string {
	switch provider {
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}
