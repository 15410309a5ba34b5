package telemetry

import (
	"context"
	"sync"
)

// Mock implements Reader and PumpController for testing.
type Mock struct {
	ReadFunc    func(ctx context.Context) (Reading, error)
	SetPumpFunc func(ctx context.Context, on bool) error

	mu    sync.Mutex
	reads int
	pumps []bool
}

// NewMock returns a mock that always reports r.
func NewMock(r Reading) *Mock {
	return &Mock{
		ReadFunc: func(ctx context.Context) (Reading, error) { return r, nil },
	}
}

// ReadCurrent calls ReadFunc.
func (m *Mock) ReadCurrent(ctx context.Context) (Reading, error) {
	m.mu.Lock()
	m.reads++
	fn := m.ReadFunc
	m.mu.Unlock()
	if fn == nil {
		return Reading{}, ErrNotConfigured
	}
	return fn(ctx)
}

// SetPump records the request and calls SetPumpFunc.
func (m *Mock) SetPump(ctx context.Context, on bool) error {
	m.mu.Lock()
	m.pumps = append(m.pumps, on)
	fn := m.SetPumpFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, on)
	}
	return nil
}

// Reads returns how many times ReadCurrent was called.
func (m *Mock) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// PumpCalls returns every requested pump state.
func (m *Mock) PumpCalls() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bool, len(m.pumps))
	copy(out, m.pumps)
	return out
}

var (
	_ Reader         = (*Mock)(nil)
	_ PumpController = (*Mock)(nil)
)
