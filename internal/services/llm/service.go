package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"refinery/internal/config"
	"refinery/internal/services"
)

const defaultHTTPTimeout = 60 * time.Second

// Request is one text generation call.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Service produces text for a prompt. Implementations classify failures as
// rate limited, transient, or fatal (see services.KindOf) and never retry on
// their own.
type Service interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config captures the runtime settings required to talk to a provider.
type Config struct {
	Provider       config.Provider
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// ConfigFrom extracts the connection settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		Provider:       cfg.LLM.Provider,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}
}

func (c Config) timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return defaultHTTPTimeout
}

func (c Config) trimmed() Config {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.Model = strings.TrimSpace(c.Model)
	c.Referer = strings.TrimSpace(c.Referer)
	c.Title = strings.TrimSpace(c.Title)
	return c
}

// NewService builds the client for cfg.Provider. The returned value owns no
// global state; callers that receive an io.Closer should close it when done.
func NewService(ctx context.Context, cfg Config, opts ...Option) (Service, error) {
	cfg = cfg.trimmed()
	if cfg.APIKey == "" {
		return nil, services.New(services.KindConfiguration, "llm", "api key required for provider "+string(cfg.Provider))
	}
	switch cfg.Provider {
	case config.ProviderAnthropic, "":
		return NewAnthropicClient(cfg, opts...), nil
	case config.ProviderOpenRouter:
		return NewOpenRouterClient(cfg, opts...), nil
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, services.New(services.KindConfiguration, "llm", "unsupported provider "+string(cfg.Provider))
	}
}

// Option customizes the HTTP based clients.
type Option func(*httpTransport)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *httpTransport) {
		if client != nil {
			t.client = client
		}
	}
}

func validateRequest(op string, req Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return services.New(services.KindFatal, op, "prompt required")
	}
	if req.MaxTokens <= 0 {
		return services.New(services.KindFatal, op, "max tokens must be positive")
	}
	return nil
}
