// Package journal records session events: heard and spoken text, retry
// attempts, faults and telemetry alerts.
//
// Sinks are best-effort. Record must never block the caller; a sink that
// cannot keep up drops events instead of stalling the session loop.
package journal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names recorded by the assistant.
const (
	EventSessionStarted = "session.started"
	EventSessionStopped = "session.stopped"
	EventSessionFault   = "session.fault"
	EventHeard          = "speech.heard"
	EventListenFailed   = "speech.failed"
	EventUserTurn       = "conversation.user"
	EventAssistantTurn  = "conversation.assistant"
	EventKnowledgeTry   = "knowledge.attempt"
	EventKnowledgeFail  = "knowledge.failed"
	EventAuthDenied     = "auth.denied"
	EventAuthGranted    = "auth.granted"
	EventGasAlert       = "telemetry.gas_alert"
	EventDeviceCommand  = "iot.command"
	EventDeviceStatus   = "iot.status"
)

// Sink receives events.
type Sink interface {
	Record(event string, detail map[string]any)
}

// Entry is one recorded event.
type Entry struct {
	ID     string         `json:"id"`
	Time   time.Time      `json:"time"`
	Event  string         `json:"event"`
	Detail map[string]any `json:"detail,omitempty"`
}

// NewEntry stamps an event with an ID and the current time.
func NewEntry(event string, detail map[string]any) Entry {
	return Entry{
		ID:     uuid.NewString(),
		Time:   time.Now(),
		Event:  event,
		Detail: detail,
	}
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event string, detail map[string]any)

// Record calls f.
func (f SinkFunc) Record(event string, detail map[string]any) {
	f(event, detail)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(string, map[string]any) {})

// Multi fans an event out to every sink in order.
func Multi(sinks ...Sink) Sink {
	var nonNil []Sink
	for _, s := range sinks {
		if s != nil {
			nonNil = append(nonNil, s)
		}
	}
	return multi(nonNil)
}

type multi []Sink

func (m multi) Record(event string, detail map[string]any) {
	for _, s := range m {
		s.Record(event, detail)
	}
}

// Logger writes events to a structured logger.
type Logger struct {
	logger *slog.Logger
}

// NewLogger returns a Sink that logs each event at info level
// (warn for faults and failures).
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With("component", "journal")}
}

// Record logs the event.
func (l *Logger) Record(event string, detail map[string]any) {
	args := make([]any, 0, len(detail)*2+2)
	args = append(args, "event", event)
	for k, v := range detail {
		args = append(args, k, v)
	}
	switch event {
	case EventSessionFault, EventKnowledgeFail, EventGasAlert, EventAuthDenied:
		l.logger.Warn("journal", args...)
	default:
		l.logger.Info("journal", args...)
	}
}

// Recorder keeps every event in memory. Useful in tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends the event.
func (r *Recorder) Record(event string, detail map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, NewEntry(event, detail))
}

// Entries returns a copy of everything recorded.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Events returns the recorded event names in order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Event
	}
	return out
}

// Count returns how many times event was recorded.
func (r *Recorder) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Event == event {
			n++
		}
	}
	return n
}

// Filter returns entries with the given event name.
func (r *Recorder) Filter(event string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
