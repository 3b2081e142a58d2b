package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"refinery/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.KindTransient, "anthropic", "http 503", base)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("did not expect rate limited marker on %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"anthropic", "http 503", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestParseFailureReportsIndex(t *testing.T) {
	err := services.ParseFailure("load batch_007.json", 3, "missing text", nil)
	if !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected parse marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "record 3") {
		t.Fatalf("expected record index in %q", err.Error())
	}
}

type foreignError struct{ kind string }

func (e foreignError) Error() string     { return "foreign" }
func (e foreignError) ErrorKind() string { return e.kind }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "rate limited", err: services.New(services.KindRateLimited, "call", "429"), want: services.KindRateLimited},
		{name: "wrapped transient", err: fmt.Errorf("stage 2: %w", services.Wrap(services.KindTransient, "call", "", nil)), want: services.KindTransient},
		{name: "canceled", err: fmt.Errorf("wait: %w", context.Canceled), want: services.KindFatal},
		{name: "plain", err: errors.New("mystery"), want: services.KindFatal},
		{name: "classifier", err: foreignError{kind: "not_found"}, want: services.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !services.Retryable(services.New(services.KindRateLimited, "", "")) {
		t.Fatal("rate limited should be retryable")
	}
	if !services.Retryable(services.New(services.KindTransient, "", "")) {
		t.Fatal("transient should be retryable")
	}
	for _, kind := range []services.Kind{services.KindFatal, services.KindNotFound, services.KindParse, services.KindConfiguration} {
		if services.Retryable(services.New(kind, "", "")) {
			t.Fatalf("%s should not be retryable", kind)
		}
	}
}
