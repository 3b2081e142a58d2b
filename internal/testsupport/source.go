package testsupport

import (
	"context"
	"sync"

	"refinery/internal/services"
)

// SourceEntry is one fixed category/text pair.
type SourceEntry struct {
	Category string
	Text     string
}

// StaticSource cycles through a fixed list of propositions so generator
// tests never touch the remote service.
type StaticSource struct {
	mu      sync.Mutex
	entries []SourceEntry
	next    int
}

func NewStaticSource(entries ...SourceEntry) *StaticSource {
	return &StaticSource{entries: append([]SourceEntry(nil), entries...)}
}

// Next returns the following entry, wrapping around at the end.
func (s *StaticSource) Next(ctx context.Context) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return "", "", services.New(services.KindConfiguration, "static source", "no entries configured")
	}
	entry := s.entries[s.next%len(s.entries)]
	s.next++
	return entry.Category, entry.Text, nil
}
