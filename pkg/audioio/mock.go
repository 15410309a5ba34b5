package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"
)

// MockSource serves scripted chunks first, then paced chunks of silence or
// a sine tone, one per BufferDuration.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	stop    chan struct{}
	script  []AudioChunk

	startErr error
	readErr  error

	tone      float64 // Hz, 0 is silence
	amplitude float64 // fraction of full scale
	phase     int

	starts int
	stats  SourceStats
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave generates a tone at frequency and amplitude (0..1).
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) { m.tone, m.amplitude = frequency, amplitude }
}

// WithScript queues chunks that Read returns immediately, in order.
func WithScript(chunks ...AudioChunk) MockSourceOption {
	return func(m *MockSource) { m.script = append(m.script, chunks...) }
}

// WithStartError makes Start fail with err.
func WithStartError(err error) MockSourceOption {
	return func(m *MockSource) { m.startErr = err }
}

// WithReadError makes every Read after the script fail with err.
func WithReadError(err error) MockSourceOption {
	return func(m *MockSource) { m.readErr = err }
}

// NewMockSource creates a stopped mock source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{cfg: cfg, logger: logger.With("component", "audioio.mock_source")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tone returns d worth of samples alternating between +amplitude and
// -amplitude, so its RMS equals amplitude. Zero gives silence.
func Tone(cfg Config, amplitude int16, d time.Duration) AudioChunk {
	samples := make([]int16, int(float64(cfg.SampleRate)*d.Seconds())*cfg.Channels)
	for i := range samples {
		samples[i] = amplitude
		if i%2 == 1 {
			samples[i] = -amplitude
		}
	}
	return AudioChunk{Samples: samples, SampleRate: cfg.SampleRate, Channels: cfg.Channels}
}

func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return ErrClosed
	case m.startErr != nil:
		return m.startErr
	case m.running:
		return nil
	}
	m.running = true
	m.stop = make(chan struct{})
	m.starts++
	return nil
}

// Read returns the next scripted chunk, the configured read error, or a
// generated chunk after one buffer period. A stopped source returns io.EOF.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return AudioChunk{}, io.EOF
	}
	if len(m.script) > 0 {
		chunk := m.script[0]
		m.script = m.script[1:]
		m.count(chunk)
		m.mu.Unlock()
		return chunk, nil
	}
	if m.readErr != nil {
		err := m.readErr
		m.mu.Unlock()
		return AudioChunk{}, err
	}
	stop := m.stop
	m.mu.Unlock()

	t := time.NewTimer(m.cfg.BufferDuration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case <-stop:
		return AudioChunk{}, io.EOF
	case <-t.C:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	chunk := m.generate()
	m.count(chunk)
	return chunk, nil
}

func (m *MockSource) count(chunk AudioChunk) {
	m.stats.ChunksRead++
	m.stats.SamplesRead += int64(len(chunk.Samples))
}

func (m *MockSource) generate() AudioChunk {
	frames := m.cfg.BufferSize()
	samples := make([]int16, frames*m.cfg.Channels)
	if m.tone > 0 {
		for f := 0; f < frames; f++ {
			angle := 2 * math.Pi * m.tone * float64(m.phase) / float64(m.cfg.SampleRate)
			v := int16(m.amplitude * math.MaxInt16 * math.Sin(angle))
			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[f*m.cfg.Channels+ch] = v
			}
			m.phase = (m.phase + 1) % m.cfg.SampleRate
		}
	}
	return AudioChunk{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels}
}

// Stop ends the stream. Pending and later Reads return io.EOF.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.running = false
		close(m.stop)
	}
	return nil
}

func (m *MockSource) Config() Config { return m.cfg }

func (m *MockSource) Name() string { return string(BackendMock) }

// Close stops the source for good.
func (m *MockSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

// Starts returns how many times Start actually started the source.
func (m *MockSource) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Running = m.running
	s.Backend = m.Name()
	return s
}

var _ Source = (*MockSource)(nil)

// MockSink buffers written chunks and moves them to Played on Flush.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	pending []AudioChunk
	played  []AudioChunk
	flushes int
	stats   SinkStats
}

// NewMockSink creates a stopped mock sink.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSink{cfg: cfg, logger: logger.With("component", "audioio.mock_sink")}
}

func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.running = true
	return nil
}

func (m *MockSink) Stop() error {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	return nil
}

// Write queues chunk. The sink must be started.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.running {
		return ErrClosed
	}
	m.pending = append(m.pending, chunk)
	m.stats.ChunksWritten++
	m.stats.SamplesWritten += int64(len(chunk.Samples))
	return nil
}

// Flush "plays" everything queued.
func (m *MockSink) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, m.pending...)
	m.pending = nil
	m.flushes++
	return nil
}

// Clear drops queued audio.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
	return nil
}

// Played returns every flushed chunk.
func (m *MockSink) Played() []AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AudioChunk(nil), m.played...)
}

// Flushes returns how many times Flush ran.
func (m *MockSink) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

func (m *MockSink) Config() Config { return m.cfg }

func (m *MockSink) Name() string { return string(BackendMock) }

func (m *MockSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Running = m.running
	s.Backend = m.Name()
	for _, c := range m.pending {
		s.BufferedSamples += int64(len(c.Samples))
	}
	return s
}

var _ Sink = (*MockSink)(nil)
