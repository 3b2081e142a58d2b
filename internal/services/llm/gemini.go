package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"refinery/internal/services"
)

// GeminiClient calls Google Gemini through the generative-ai-go SDK.
type GeminiClient struct {
	cfg    Config
	client *genai.Client
}

// NewGeminiClient dials the Gemini API. Close releases the underlying connection.
func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	cfg = cfg.trimmed()
	if cfg.APIKey == "" {
		return nil, services.New(services.KindConfiguration, "gemini", "api key required")
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.KindConfiguration, "gemini", "create client", err)
	}
	return &GeminiClient{cfg: cfg, client: client}, nil
}

// Generate sends req.Prompt as a single text part.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	const op = "gemini generate"
	if err := validateRequest(op, req); err != nil {
		return "", err
	}

	model := c.client.GenerativeModel(c.cfg.Model)
	model.SetTemperature(float32(req.Temperature))
	model.SetMaxOutputTokens(int32(req.MaxTokens))

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()
	resp, err := model.GenerateContent(callCtx, genai.Text(req.Prompt))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", classifyGeminiError(op, err)
	}

	content, finishReason := geminiText(resp)
	if content == "" {
		return "", &emptyContentError{Op: op, FinishReason: finishReason, Snippet: "<no text parts>"}
	}
	return content, nil
}

// Close releases resources held by the SDK client.
func (c *GeminiClient) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func geminiText(resp *genai.GenerateContentResponse) (string, string) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ""
	}
	candidate := resp.Candidates[0]
	finishReason := candidate.FinishReason.String()
	if candidate.Content == nil {
		return "", finishReason
	}
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return strings.TrimSpace(text.String()), finishReason
}

// classifyGeminiError maps gRPC status codes onto failure kinds. Safety blocks
// are fatal: the same prompt will be blocked again.
func classifyGeminiError(op string, err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return services.Wrap(services.KindFatal, op, "response blocked", err)
	}
	if apiErr, ok := apierror.FromError(err); ok {
		return services.Wrap(geminiKind(apiErr.GRPCStatus().Code(), apiErr.HTTPCode()), op, "api error", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.KindTransient, op, "timeout", err)
	}
	return services.Wrap(services.KindFatal, op, "request failed", err)
}

func geminiKind(code codes.Code, httpCode int) services.Kind {
	switch code {
	case codes.ResourceExhausted:
		return services.KindRateLimited
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		return services.KindTransient
	case codes.OK, codes.Unknown:
		if httpCode > 0 {
			return classifyStatus(httpCode)
		}
	}
	return services.KindFatal
}
