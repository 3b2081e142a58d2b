package logging

import (
	"log/slog"
	"time"

	"refinery/internal/services"
)

// Attr aliases slog.Attr so callers need only this package.
type Attr = slog.Attr

func Int(key string, value int) Attr { return slog.Int(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

// Event tags a record with its event_type.
func Event(name string) Attr { return slog.String(FieldEventType, name) }

// Hint attaches an operator-facing remediation hint.
func Hint(text string) Attr { return slog.String(FieldErrorHint, text) }

// Error records err under "error"; a nil error renders as "<nil>".
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Kind renders the classification of err for the error_kind field.
func Kind(err error) Attr {
	return slog.String(FieldErrorKind, string(services.KindOf(err)))
}

func toArgs(attrs []Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

// NewNop returns a logger that drops every record.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger tags logger with component. A nil logger becomes a
// no-op logger first.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}
