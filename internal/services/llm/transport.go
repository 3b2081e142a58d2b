package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"refinery/internal/services"
)

// httpTransport posts JSON payloads and classifies the outcome.
type httpTransport struct {
	provider string
	client   *http.Client
	timeout  time.Duration
}

func newHTTPTransport(provider string, timeout time.Duration, opts []Option) *httpTransport {
	t := &httpTransport{
		provider: provider,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// postJSON sends payload to endpoint and returns the 2xx response body.
// Non-2xx statuses become *StatusError; transport failures are classified by
// classifyTransport.
func (t *httpTransport) postJSON(ctx context.Context, op, endpoint string, headers map[string]string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.KindFatal, op, "encode body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.KindFatal, op, "new request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		if strings.TrimSpace(value) != "" {
			req.Header.Set(key, value)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, op, fmt.Errorf("http error (timeout=%s): %w", t.timeout, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(ctx, op, fmt.Errorf("read body (timeout=%s): %w", t.timeout, err))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return body, &StatusError{
			Provider:   t.provider,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	return body, nil
}

func decodeResponse(op string, body []byte, target any) error {
	if err := json.Unmarshal(body, target); err != nil {
		return services.Wrap(services.KindTransient, op,
			"decode response (snippet: "+summarizePayloadSnippet(string(body))+")", err)
	}
	return nil
}
