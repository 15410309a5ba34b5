package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/journal"
)

// Recorder persists readings.
type Recorder interface {
	SaveReading(ctx context.Context, r Reading) error
}

// Poller reads the lab on an interval.
type Poller struct {
	reader   Reader
	interval time.Duration
	recorder Recorder
	sink     journal.Sink
	logger   *slog.Logger

	mu       sync.RWMutex
	latest   Reading
	have     bool
	alerting bool
	failures int
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithRecorder persists every reading.
func WithRecorder(r Recorder) PollerOption {
	return func(p *Poller) { p.recorder = r }
}

// WithSink sets where gas alerts are recorded.
func WithSink(s journal.Sink) PollerOption {
	return func(p *Poller) { p.sink = s }
}

// WithPollerLogger sets the logger.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// NewPoller creates a Poller. A non-positive interval defaults to 2s.
func NewPoller(reader Reader, interval time.Duration, opts ...PollerOption) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	p := &Poller{
		reader:   reader,
		interval: interval,
		sink:     journal.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "telemetry.poller")
	return p
}

// Run polls until ctx is done. It always returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("polling lab", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("polling stopped")
			return ctx.Err()
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll performs a single read.
func (p *Poller) Poll(ctx context.Context) {
	r, err := p.reader.ReadCurrent(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.mu.Lock()
		p.failures++
		n := p.failures
		p.mu.Unlock()
		// Only the first failure of a streak is logged at warn.
		if n == 1 {
			p.logger.Warn("lab read failed", "error", err)
		} else {
			p.logger.Debug("lab read failed", "error", err, "consecutive", n)
		}
		return
	}

	p.mu.Lock()
	rising := r.GasAlert && !p.alerting
	p.alerting = r.GasAlert
	p.latest = r
	p.have = true
	p.failures = 0
	p.mu.Unlock()

	if rising {
		p.logger.Warn("hazardous gas levels detected")
		p.sink.Record(journal.EventGasAlert, map[string]any{
			"temperature": r.Temperature,
			"humidity":    r.Humidity,
		})
	}

	if p.recorder != nil {
		if err := p.recorder.SaveReading(ctx, r); err != nil && ctx.Err() == nil {
			p.logger.Warn("failed to persist reading", "error", err)
		}
	}
}

// Latest returns the most recent successful reading.
func (p *Poller) Latest() (Reading, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.have
}
