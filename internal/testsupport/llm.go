package testsupport

import (
	"context"
	"strconv"
	"sync"

	"refinery/internal/services/llm"
)

// FakeService is a scripted llm.Service. Reply decides each response; when
// nil every call returns "reply N" with N counting from 1.
type FakeService struct {
	Reply func(call int, req llm.Request) (string, error)

	mu       sync.Mutex
	requests []llm.Request
}

// Generate records req and returns the scripted reply.
func (f *FakeService) Generate(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	call := len(f.requests)
	f.mu.Unlock()
	if f.Reply == nil {
		return "reply " + strconv.Itoa(call), nil
	}
	return f.Reply(call, req)
}

// Calls returns how many requests were made.
func (f *FakeService) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of the recorded requests.
func (f *FakeService) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}
