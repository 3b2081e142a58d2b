package llm

import (
	"context"
	"net/url"
	"strings"

	"refinery/internal/services"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	cfg       Config
	transport *httpTransport
}

// NewAnthropicClient constructs a client using the supplied configuration.
func NewAnthropicClient(cfg Config, opts ...Option) *AnthropicClient {
	cfg = cfg.trimmed()
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	return &AnthropicClient{
		cfg:       cfg,
		transport: newHTTPTransport("anthropic", cfg.timeout(), opts),
	}
}

type messagesRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
	Messages    []messageContent `json:"messages"`
}

type messageContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Generate sends req as a single user message and returns the concatenated
// text blocks of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (string, error) {
	const op = "anthropic generate"
	if err := validateRequest(op, req); err != nil {
		return "", err
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "v1", "messages")
	if err != nil {
		return "", services.Wrap(services.KindConfiguration, op, "build url", err)
	}
	payload := messagesRequest{
		Model:       c.cfg.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    []messageContent{{Role: "user", Content: req.Prompt}},
	}
	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}
	body, err := c.transport.postJSON(ctx, op, endpoint, headers, payload)
	if err != nil {
		return "", err
	}

	var resp messagesResponse
	if err := decodeResponse(op, body, &resp); err != nil {
		return "", err
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" || block.Type == "" {
			text.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(text.String())
	if content == "" {
		return "", &emptyContentError{Op: op, FinishReason: resp.StopReason, Snippet: summarizePayloadSnippet(string(body))}
	}
	return content, nil
}
