package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// leadInPattern matches a short label a model sometimes puts before the
	// answer, e.g. "Proposition:" or "Improved proposition:".
	leadInPattern = regexp.MustCompile(`(?i)^(?:here is (?:the |an |my )?)?(?:improved |refined |revised )?(?:proposition|statement|version)\s*:\s*`)
	quotePairs    = [][2]string{{`"`, `"`}, {"'", "'"}, {"“", "”"}, {"‘", "’"}, {"«", "»"}}
)

// CleanOutput trims model output down to the payload: surrounding whitespace,
// a code fence, a leading label, and one level of matching quotes are removed.
func CleanOutput(text string) string {
	text = strings.TrimSpace(text)
	text = stripFence(text)
	text = leadInPattern.ReplaceAllString(text, "")
	return StripQuotes(strings.TrimSpace(text))
}

// StripQuotes removes one pair of matching quotes wrapping the whole text.
func StripQuotes(text string) string {
	text = strings.TrimSpace(text)
	for _, pair := range quotePairs {
		if len(text) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(text, pair[0]) && strings.HasSuffix(text, pair[1]) {
			inner := text[len(pair[0]) : len(text)-len(pair[1])]
			// "a" and "b" is two quoted parts, not one quoted text.
			if strings.Contains(inner, pair[1]) {
				return text
			}
			return strings.TrimSpace(inner)
		}
	}
	return text
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")
	// Drop a language tag on the opening fence line.
	if idx := strings.IndexByte(inner, '\n'); idx >= 0 && !strings.ContainsAny(inner[:idx], " \t") {
		inner = inner[idx+1:]
	}
	return strings.TrimSpace(inner)
}

// Preview shortens text to at most limit runes for log lines, collapsing
// whitespace and marking the cut with an ellipsis.
func Preview(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	if limit == 1 {
		return "…"
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
