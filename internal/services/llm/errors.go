package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"refinery/internal/services"
)

// StatusError is a non-2xx response from an HTTP provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s request: http %d: %s", e.Provider, e.StatusCode, summarizePayloadSnippet(e.Body))
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// RetryAfterHint satisfies services.RetryAfterHinter.
func (e *StatusError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

// ErrorKind classifies the status so services.KindOf and retry see it.
func (e *StatusError) ErrorKind() string {
	return string(classifyStatus(e.StatusCode))
}

// Is lets errors.Is(err, services.ErrRateLimited) and friends match.
func (e *StatusError) Is(target error) bool {
	return kindIs(classifyStatus(e.StatusCode), target)
}

// classifyStatus maps provider HTTP statuses onto failure kinds. 529 is the
// Anthropic "overloaded" status.
func classifyStatus(code int) services.Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return services.KindRateLimited
	case code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code == 529,
		code >= http.StatusInternalServerError:
		return services.KindTransient
	default:
		return services.KindFatal
	}
}

func kindIs(kind services.Kind, target error) bool {
	switch kind {
	case services.KindRateLimited:
		return target == services.ErrRateLimited
	case services.KindTransient:
		return target == services.ErrTransient
	case services.KindFatal:
		return target == services.ErrFatal
	default:
		return false
	}
}

type emptyContentError struct {
	Op           string
	FinishReason string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("%s: empty content (finish_reason=%q, response_snippet=%s)", e.Op, e.FinishReason, e.Snippet)
}

// ErrorKind marks empty model output as transient.
func (e *emptyContentError) ErrorKind() string { return string(services.KindTransient) }

// classifyTransport tags errors returned by http.Client.Do. When the caller's
// context is done its error is returned as is (fatal, never retried);
// otherwise timeouts, resets and truncated bodies are transient.
func classifyTransport(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if isTransientNetError(err) {
		return services.Wrap(services.KindTransient, op, "transport", err)
	}
	return services.Wrap(services.KindFatal, op, "transport", err)
}

func isTransientNetError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func summarizePayloadSnippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
