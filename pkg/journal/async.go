package journal

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the queue length used by NewAsync when size <= 0.
const DefaultBuffer = 256

// Async decouples callers from a slow sink. Record enqueues and returns
// immediately; a single goroutine drains the queue into the wrapped sink.
// Events are dropped when the queue is full.
type Async struct {
	next    Sink
	queue   chan Entry
	done    chan struct{}
	dropped atomic.Int64
	logger  *slog.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsync starts the drain goroutine. Call Close to flush and stop it.
func NewAsync(next Sink, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		next:   next,
		queue:  make(chan Entry, size),
		done:   make(chan struct{}),
		logger: logger.With("component", "journal.async"),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.queue {
		a.next.Record(e.Event, e.Detail)
	}
}

// Record enqueues the event without blocking.
func (a *Async) Record(event string, detail map[string]any) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- NewEntry(event, detail):
	default:
		if n := a.dropped.Add(1); n == 1 || n%100 == 0 {
			a.logger.Warn("journal queue full, dropping events", "dropped", n)
		}
	}
}

// Dropped returns how many events were discarded.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain.
func (a *Async) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done
	return nil
}
