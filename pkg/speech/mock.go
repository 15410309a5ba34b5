package speech

import (
	"context"
	"sync"
	"time"
)

// Heard is one scripted Listen result.
type Heard struct {
	Text string
	Err  error
}

// MockListener is a scripted listener for tests.
// Queued results are returned in order; once the queue is empty Listen
// calls ListenFunc if set, otherwise blocks until ctx is done.
type MockListener struct {
	mu       sync.Mutex
	queue    []Heard
	timeouts []time.Duration

	// ListenFunc answers once the queue is empty.
	ListenFunc func(ctx context.Context, timeout time.Duration) (string, error)
}

// NewMockListener creates a MockListener that returns each text in turn.
func NewMockListener(texts ...string) *MockListener {
	m := &MockListener{}
	for _, t := range texts {
		m.queue = append(m.queue, Heard{Text: t})
	}
	return m
}

// Push appends results to the queue.
func (m *MockListener) Push(h ...Heard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, h...)
}

// Listen returns the next scripted result.
func (m *MockListener) Listen(ctx context.Context, timeout time.Duration) (string, error) {
	m.mu.Lock()
	m.timeouts = append(m.timeouts, timeout)
	if len(m.queue) > 0 {
		h := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return h.Text, h.Err
	}
	fn := m.ListenFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, timeout)
	}
	<-ctx.Done()
	return "", ctx.Err()
}

// Calls returns how many times Listen was called.
func (m *MockListener) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timeouts)
}

// Timeouts returns the timeout passed to each Listen call.
func (m *MockListener) Timeouts() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.timeouts))
	copy(out, m.timeouts)
	return out
}

// Pending returns how many scripted results remain.
func (m *MockListener) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// MockRecognizer is a mock recognizer for testing.
type MockRecognizer struct {
	RecognizeFunc func(ctx context.Context, u *Utterance) (string, error)

	mu    sync.Mutex
	calls []*Utterance
}

// Name returns "mock".
func (m *MockRecognizer) Name() string {
	return "mock"
}

// Recognize records the call and delegates to RecognizeFunc.
func (m *MockRecognizer) Recognize(ctx context.Context, u *Utterance) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, u)
	fn := m.RecognizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, u)
	}
	return "mock transcript", nil
}

// Calls returns every utterance passed to Recognize.
func (m *MockRecognizer) Calls() []*Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Utterance, len(m.calls))
	copy(out, m.calls)
	return out
}

var _ Recognizer = (*MockRecognizer)(nil)
