package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a failure so callers can branch on it instead of matching
// error strings.
type Kind string

const (
	KindRateLimited   Kind = "rate_limited"
	KindTransient     Kind = "transient"
	KindFatal         Kind = "fatal"
	KindNotFound      Kind = "not_found"
	KindParse         Kind = "parse"
	KindConfiguration Kind = "configuration"
)

// Markers usable with errors.Is against any *Error of the matching kind.
var (
	ErrRateLimited   = errors.New("rate limited")
	ErrTransient     = errors.New("transient failure")
	ErrFatal         = errors.New("fatal failure")
	ErrNotFound      = errors.New("not found")
	ErrParse         = errors.New("parse error")
	ErrConfiguration = errors.New("configuration error")
)

var kindMarkers = map[Kind]error{
	KindRateLimited:   ErrRateLimited,
	KindTransient:     ErrTransient,
	KindFatal:         ErrFatal,
	KindNotFound:      ErrNotFound,
	KindParse:         ErrParse,
	KindConfiguration: ErrConfiguration,
}

// Error is the classified failure type shared by the pipeline packages.
// Index is the zero-based record position for parse failures and -1 otherwise.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Index   int
	Err     error
}

// Error renders "op: message: cause" skipping empty parts.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 4)
	if op := strings.TrimSpace(e.Op); op != "" {
		parts = append(parts, op)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Index >= 0 && e.Kind == KindParse {
		parts = append(parts, fmt.Sprintf("record %d", e.Index))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return string(e.Kind)
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the kind marker so errors.Is(err, ErrRateLimited) works through
// arbitrary wrapping.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	marker, ok := kindMarkers[e.Kind]
	return ok && marker == target
}

// ErrorKind satisfies ErrorClassifier.
func (e *Error) ErrorKind() string {
	if e == nil {
		return ""
	}
	return string(e.Kind)
}

// ErrorClassifier lets foreign error types declare their kind.
type ErrorClassifier interface {
	ErrorKind() string
}

// RetryAfterHinter is implemented by errors that carry a server-requested
// wait, such as an HTTP Retry-After header.
type RetryAfterHinter interface {
	RetryAfterHint() time.Duration
}

// RetryAfter returns the server-requested wait carried by err, or zero.
func RetryAfter(err error) time.Duration {
	var hinter RetryAfterHinter
	if errors.As(err, &hinter) {
		return hinter.RetryAfterHint()
	}
	return 0
}

// New builds a classified error without an underlying cause.
func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message, Index: -1}
}

// Wrap tags err with kind and operation context. A nil err still yields an
// error so call sites can report a failure they detected themselves.
func Wrap(kind Kind, op, message string, err error) error {
	return &Error{Kind: kind, Op: op, Message: message, Index: -1, Err: err}
}

// ParseFailure reports a malformed record at index within the named source.
func ParseFailure(op string, index int, message string, err error) error {
	return &Error{Kind: KindParse, Op: op, Message: message, Index: index, Err: err}
}

// KindOf classifies err. An explicit classification wins; otherwise context
// cancellation and unknown errors are fatal so they are never retried.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		if kind := Kind(strings.TrimSpace(classifier.ErrorKind())); kind != "" {
			return kind
		}
	}
	return KindFatal
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTransient:
		return true
	default:
		return false
	}
}
