package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for tests. By default it returns 20ms of 24 kHz
// silence per character.
type Mock struct {
	SynthesizeFunc func(ctx context.Context, text string) (*Clip, error)
	HealthFunc     func(ctx context.Context) error

	// Delay is waited out before every Synthesize.
	Delay time.Duration

	mu    sync.Mutex
	texts []string
	calls map[string]int
}

func NewMock() *Mock {
	return &Mock{}
}

// WithError returns a mock whose Synthesize and Health fail with err.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(context.Context, string) (*Clip, error) { return nil, err },
		HealthFunc:     func(context.Context) error { return err },
	}
}

// WithLatency sets m.Delay and returns m.
func WithLatency(m *Mock, d time.Duration) *Mock {
	m.Delay = d
	return m
}

func (m *Mock) Synthesize(ctx context.Context, text string) (*Clip, error) {
	m.mu.Lock()
	m.bump("Synthesize")
	m.texts = append(m.texts, text)
	fn, delay := m.SynthesizeFunc, m.Delay
	m.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if fn != nil {
		return fn(ctx, text)
	}
	return &Clip{
		Audio:      make([]byte, len(text)*960),
		Encoding:   EncodingPCM16,
		SampleRate: OpenAISampleRate,
		Channels:   1,
	}, nil
}

func (m *Mock) Health(ctx context.Context) error {
	m.mu.Lock()
	m.bump("Health")
	fn := m.HealthFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.bump("Close")
	m.mu.Unlock()
	return nil
}

func (m *Mock) bump(method string) {
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

// Texts returns every text passed to Synthesize.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// Reset forgets recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = nil
	m.calls = nil
}

var _ Provider = (*Mock)(nil)

// MockSpeaker records spoken replies. Each one is also sent on Spoken(),
// which buffers up to 64.
type MockSpeaker struct {
	SpeakFunc func(ctx context.Context, text string) error

	mu     sync.Mutex
	spoken []string
	notify chan string
}

func NewMockSpeaker() *MockSpeaker {
	return &MockSpeaker{notify: make(chan string, 64)}
}

func (m *MockSpeaker) Speak(ctx context.Context, text string) error {
	m.mu.Lock()
	m.spoken = append(m.spoken, text)
	fn := m.SpeakFunc
	m.mu.Unlock()

	select {
	case m.notify <- text:
	default:
	}
	if fn != nil {
		return fn(ctx, text)
	}
	return nil
}

// Texts returns everything spoken so far.
func (m *MockSpeaker) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}

// Spoken returns a channel receiving each spoken text.
func (m *MockSpeaker) Spoken() <-chan string {
	return m.notify
}

var _ Synthesizer = (*MockSpeaker)(nil)
