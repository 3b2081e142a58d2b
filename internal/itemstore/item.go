package itemstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// WorkItem is the unit flowing through the pipeline. Category and CreatedAt
// are fixed when the item is generated; stages only rewrite Text.
type WorkItem struct {
	Text      string    `json:"text"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
}

// WithText returns a copy of w carrying text.
func (w WorkItem) WithText(text string) WorkItem {
	w.Text = text
	return w
}

// errMissingText marks a record without a text (or legacy proposition) field.
var errMissingText = errors.New("record has no text field")

// wireItem accepts the canonical field names as well as the proposition,
// domain, and timestamp names written by older tooling.
type wireItem struct {
	Text        *string `json:"text"`
	Proposition *string `json:"proposition"`
	Category    *string `json:"category"`
	Domain      *string `json:"domain"`
	CreatedAt   *string `json:"createdAt"`
	Timestamp   *string `json:"timestamp"`
}

// UnmarshalJSON decodes canonical and legacy records.
func (w *WorkItem) UnmarshalJSON(data []byte) error {
	var wire wireItem
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	text := firstSet(wire.Text, wire.Proposition)
	if text == nil {
		return errMissingText
	}
	var category string
	if c := firstSet(wire.Category, wire.Domain); c != nil {
		category = *c
	}
	var createdAt time.Time
	if ts := firstSet(wire.CreatedAt, wire.Timestamp); ts != nil {
		parsed, err := parseTimestamp(*ts)
		if err != nil {
			return err
		}
		createdAt = parsed
	}
	*w = WorkItem{Text: *text, Category: category, CreatedAt: createdAt}
	return nil
}

func firstSet(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// naiveLayouts are ISO timestamps without an offset, read as local time.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}
