package inference

import (
	"context"
	"sync"
)

// MockReply is what NewMock answers with.
const MockReply = "Mock response"

// Mock implements Provider for tests and records every history it is sent.
type Mock struct {
	// SendFunc answers Send. Nil answers MockReply.
	SendFunc func(ctx context.Context, messages []Message) (string, error)

	// HealthFunc answers Health. Nil reports healthy.
	HealthFunc func(ctx context.Context) error

	mu    sync.Mutex
	sent  [][]Message
	calls map[string]int
}

// NewMock returns a mock that always answers MockReply.
func NewMock() *Mock {
	return &Mock{}
}

// WithError returns a mock whose Send and Health both fail with err.
func WithError(err error) *Mock {
	return &Mock{
		SendFunc:   func(context.Context, []Message) (string, error) { return "", err },
		HealthFunc: func(context.Context) error { return err },
	}
}

// Send records a copy of messages and answers via SendFunc.
func (m *Mock) Send(ctx context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	m.count("Send")
	m.sent = append(m.sent, append([]Message(nil), messages...))
	fn := m.SendFunc
	m.mu.Unlock()

	if fn == nil {
		return MockReply, nil
	}
	return fn(ctx, messages)
}

// Health answers via HealthFunc.
func (m *Mock) Health(ctx context.Context) error {
	m.mu.Lock()
	m.count("Health")
	fn := m.HealthFunc
	m.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Close records the call.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.count("Close")
	m.mu.Unlock()
	return nil
}

func (m *Mock) count(method string) {
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

// CallCount returns how many times method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Sent returns every history passed to Send, oldest first.
func (m *Mock) Sent() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.sent...)
}

// LastMessages returns the history passed to the most recent Send.
func (m *Mock) LastMessages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

// Reset forgets recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.calls = nil
}

var _ Provider = (*Mock)(nil)
