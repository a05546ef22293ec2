package inference

import (
	"context"
	"sync"
)

// Mock implements Provider for testing.
//
// Replies are served in order, one per Chat call; once they run out the
// last reply repeats. ChatFunc, when set, takes precedence.
type Mock struct {
	ChatFunc   func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	HealthFunc func(ctx context.Context) error
	Replies    []string

	mu       sync.Mutex
	requests []*ChatRequest
	closed   bool
}

// NewMock creates a mock provider that answers with the given replies.
func NewMock(replies ...string) *Mock {
	return &Mock{Replies: replies}
}

// Chat records the request and returns the next reply.
func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	// Copy the history so later appends by the caller don't show up here.
	snapshot := *req
	snapshot.Messages = append([]Message(nil), req.Messages...)
	m.requests = append(m.requests, &snapshot)
	n := len(m.requests)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if len(m.Replies) == 0 {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	reply := m.Replies[min(n, len(m.Replies))-1]
	return &ChatResponse{
		Message:      NewAssistantMessage(reply),
		FinishReason: "stop",
		Model:        "mock",
	}, nil
}

// Health calls HealthFunc, or succeeds.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Requests returns the recorded chat requests.
func (m *Mock) Requests() []*ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ChatRequest(nil), m.requests...)
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		ChatFunc: func(context.Context, *ChatRequest) (*ChatResponse, error) {
			return nil, err
		},
		HealthFunc: func(context.Context) error {
			return err
		},
	}
}

var _ Provider = (*Mock)(nil)
