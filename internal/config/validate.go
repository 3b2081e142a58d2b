package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable. A missing API key is not a
// validation failure; commands that need the service call RequireAPIKey.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateRequests(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenRouter, ProviderGemini:
	default:
		return fmt.Errorf("llm.provider %q is not supported (use anthropic, openrouter, or gemini)", c.LLM.Provider)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.BatchSize < minBatchSize || p.BatchSize > maxBatchSize {
		return fmt.Errorf("pipeline.batch_size must be between %d and %d", minBatchSize, maxBatchSize)
	}
	if p.TargetTotal < 1 {
		return errors.New("pipeline.target_total must be at least 1")
	}
	if p.Stages < 1 {
		return errors.New("pipeline.stages must be at least 1")
	}
	if p.CallDelaySeconds < minCallDelaySeconds || p.CallDelaySeconds > maxCallDelaySeconds {
		return fmt.Errorf("pipeline.call_delay_seconds must be between %.1f and %.0f", float64(minCallDelaySeconds), float64(maxCallDelaySeconds))
	}
	if p.Concurrency < 1 {
		return errors.New("pipeline.concurrency must be at least 1")
	}
	if p.MaxConsecutiveFailures < 0 {
		return errors.New("pipeline.max_consecutive_failures must not be negative")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if c.Retry.InitialDelaySeconds < 0 {
		return errors.New("retry.initial_delay_seconds must not be negative")
	}
	if c.Retry.BackoffBase < 1 {
		return errors.New("retry.backoff_base must be at least 1")
	}
	return nil
}

func (c *Config) validateRequests() error {
	if c.Generation.MaxTokens < 1 {
		return errors.New("generation.max_tokens must be positive")
	}
	if c.Refinement.MaxTokens < 1 {
		return errors.New("refinement.max_tokens must be positive")
	}
	for name, temp := range map[string]float64{
		"generation.temperature": c.Generation.Temperature,
		"refinement.temperature": c.Refinement.Temperature,
	} {
		if temp < 0 || temp > 2 {
			return fmt.Errorf("%s must be between 0 and 2", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
}
