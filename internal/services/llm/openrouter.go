package llm

import (
	"context"
	"strings"

	"refinery/internal/services"
)

// OpenRouterClient wraps an OpenAI-compatible chat completions endpoint.
type OpenRouterClient struct {
	cfg       Config
	transport *httpTransport
}

// NewOpenRouterClient constructs a client using the supplied configuration.
func NewOpenRouterClient(cfg Config, opts ...Option) *OpenRouterClient {
	cfg = cfg.trimmed()
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1/chat/completions"
	}
	return &OpenRouterClient{
		cfg:       cfg,
		transport: newHTTPTransport("openrouter", cfg.timeout(), opts),
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
		// Some providers return the streaming schema even when stream=false.
		Delta        chatMessage `json:"delta"`
		Text         string      `json:"text"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Generate issues a single-turn chat completion for req.
func (c *OpenRouterClient) Generate(ctx context.Context, req Request) (string, error) {
	const op = "openrouter generate"
	if err := validateRequest(op, req); err != nil {
		return "", err
	}
	payload := chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	headers := map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
		"HTTP-Referer":  c.cfg.Referer,
		"X-Title":       c.cfg.Title,
	}
	body, err := c.transport.postJSON(ctx, op, c.cfg.BaseURL, headers, payload)
	if err != nil {
		return "", err
	}

	var completion chatCompletionResponse
	if err := decodeResponse(op, body, &completion); err != nil {
		return "", err
	}
	if completion.Error != nil {
		// OpenRouter reports upstream provider failures in-band with a 200.
		return "", services.New(services.KindTransient, op, "api error: "+strings.TrimSpace(completion.Error.Message))
	}

	content, finishReason := extractCompletionText(completion)
	if content == "" {
		return "", &emptyContentError{Op: op, FinishReason: finishReason, Snippet: summarizePayloadSnippet(string(body))}
	}
	return content, nil
}

func extractCompletionText(completion chatCompletionResponse) (string, string) {
	var finishReason string
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if content := firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text); content != "" {
			return content, finishReason
		}
	}
	return "", finishReason
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
