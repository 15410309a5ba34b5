// Package session runs the listen, route and speak loop.
//
// A Controller owns one loop goroutine at a time. Start launches it and
// returns immediately; Stop cancels it and waits for it to exit. The loop
// greets the user, then repeatedly listens for an utterance, routes it,
// records the exchange and speaks the reply until it is stopped, a
// handler asks it to halt, or the capture device disappears.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-jarvis/pkg/command"
	"github.com/teslashibe/go-jarvis/pkg/conversation"
	"github.com/teslashibe/go-jarvis/pkg/journal"
	"github.com/teslashibe/go-jarvis/pkg/speech"
)

// Sentinel errors.
var (
	ErrAlreadyRunning = errors.New("session: already running")
	ErrNotRunning     = errors.New("session: not running")
)

// Spoken lines.
const (
	DefaultGreeting      = "How may I assist you?"
	ApologyMicrophone    = "I'm unable to access the microphone, sir."
	ApologyUnderstanding = "I'm having trouble understanding you, sir."
	ApologyNoSpeech      = "I beg your pardon, sir, I did not catch that."
	ApologyUnexpected    = "An unexpected error occurred, but I will continue assisting."
)

const (
	defaultListenTimeout  = 10 * time.Second
	defaultCaptureBackoff = time.Second
)

// State is the listening state.
type State int

const (
	Idle State = iota
	Listening
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Listener hears one utterance; satisfied by *speech.Listener.
type Listener interface {
	Listen(ctx context.Context, timeout time.Duration) (string, error)
}

// Speaker speaks a reply; satisfied by tts.Synthesizer implementations.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Router answers a command; satisfied by *command.Router.
type Router interface {
	Route(ctx context.Context, cmd command.Command) command.Reply
}

// Controller owns the listening lifecycle.
type Controller struct {
	listener Listener
	speaker  Speaker
	router   Router
	conv     *conversation.Context
	sink     journal.Sink
	logger   *slog.Logger

	greeting       string
	listenTimeout  time.Duration
	captureBackoff time.Duration

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	done      chan struct{}
	sessionID string
}

// Option configures a Controller.
type Option func(*Controller)

// WithGreeting sets the line spoken when listening starts.
func WithGreeting(g string) Option {
	return func(c *Controller) { c.greeting = g }
}

// WithListenTimeout sets how long each capture waits for speech onset.
func WithListenTimeout(d time.Duration) Option {
	return func(c *Controller) { c.listenTimeout = d }
}

// WithCaptureBackoff sets the pause after a capture failure.
func WithCaptureBackoff(d time.Duration) Option {
	return func(c *Controller) { c.captureBackoff = d }
}

// WithSink sets where session events are recorded.
func WithSink(s journal.Sink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates an idle Controller. conv holds the history for every run
// of this controller.
func New(listener Listener, speaker Speaker, router Router, conv *conversation.Context, opts ...Option) *Controller {
	c := &Controller{
		listener:       listener,
		speaker:        speaker,
		router:         router,
		conv:           conv,
		sink:           journal.Discard,
		logger:         slog.Default(),
		greeting:       DefaultGreeting,
		listenTimeout:  defaultListenTimeout,
		captureBackoff: defaultCaptureBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "session.controller")
	return c
}

// Start begins listening in a new goroutine.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.state = Listening
	c.cancel = cancel
	c.done = make(chan struct{})
	c.sessionID = uuid.NewString()

	c.logger.Info("listening started", "session", c.sessionID)
	c.sink.Record(journal.EventSessionStarted, map[string]any{"session": c.sessionID})

	go c.run(loopCtx, cancel, c.done, c.sessionID)
	return nil
}

// Stop cancels the loop and waits for it to exit.
// Concurrent callers all wait for the same exit.
func (c *Controller) Stop() error {
	c.mu.Lock()
	switch c.state {
	case Idle:
		c.mu.Unlock()
		return ErrNotRunning
	case Listening:
		c.state = Stopping
		c.cancel()
	}
	done := c.done
	c.mu.Unlock()

	<-done
	return nil
}

// Wait blocks until the current run ends or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the ID of the current or most recent run.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Conversation returns the history shared by every run.
func (c *Controller) Conversation() *conversation.Context {
	return c.conv
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, id string) {
	reason := "stopped"
	defer func() {
		cancel()
		c.mu.Lock()
		c.state = Idle
		c.cancel = nil
		c.mu.Unlock()

		c.logger.Info("listening stopped", "session", id, "reason", reason)
		c.sink.Record(journal.EventSessionStopped, map[string]any{"session": id, "reason": reason})
		close(done)
	}()

	logger := c.logger.With("session", id)

	if c.greeting != "" {
		c.say(ctx, logger, c.greeting)
	}

	for ctx.Err() == nil {
		text, err := c.listener.Listen(ctx, c.listenTimeout)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if speech.IsFatal(err) {
				reason = "fault"
				logger.Error("capture device lost", "error", err)
				c.sink.Record(journal.EventSessionFault, map[string]any{"session": id, "error": err.Error()})
				return
			}
			if speech.IsNoSpeech(err) {
				logger.Debug("no speech before timeout")
				continue
			}
			c.apologize(ctx, logger, id, err)
			continue
		}

		cmd := command.New(text)
		c.sink.Record(journal.EventHeard, map[string]any{"session": id, "text": cmd.Text})

		reply := c.router.Route(ctx, cmd)
		if ctx.Err() != nil {
			return
		}

		c.conv.AppendExchange(cmd.Text, reply.Text)
		c.sink.Record(journal.EventUserTurn, map[string]any{"session": id, "text": cmd.Text})
		c.sink.Record(journal.EventAssistantTurn, map[string]any{"session": id, "text": reply.Text})

		c.say(ctx, logger, reply.Text)
		if reply.Halt {
			reason = "shutdown"
			return
		}
	}
}

// apologize apologizes for a failed listen and pauses after capture faults.
func (c *Controller) apologize(ctx context.Context, logger *slog.Logger, id string, err error) {
	var apology, kind string
	pause := false

	switch {
	case speech.IsBlankInput(err):
		apology, kind = ApologyNoSpeech, "blank"
	case speech.IsRecognitionError(err):
		apology, kind = ApologyUnderstanding, "recognition"
	case speech.IsCaptureError(err):
		apology, kind, pause = ApologyMicrophone, "capture", true
	default:
		apology, kind, pause = ApologyUnexpected, "unexpected", true
	}

	logger.Warn("listen failed", "kind", kind, "error", err)
	c.sink.Record(journal.EventListenFailed, map[string]any{"session": id, "kind": kind, "error": err.Error()})
	c.say(ctx, logger, apology)

	if pause && c.captureBackoff > 0 {
		t := time.NewTimer(c.captureBackoff)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
}

func (c *Controller) say(ctx context.Context, logger *slog.Logger, text string) {
	if err := c.speaker.Speak(ctx, text); err != nil && ctx.Err() == nil {
		logger.Warn("speak failed", "error", err)
	}
}

// Ask answers a single question with a fresh conversation. Nothing is
// remembered between calls.
func Ask(ctx context.Context, asker command.Asker, systemPrompt, question string) string {
	turns := conversation.New(systemPrompt).Snapshot()
	turns = append(turns, conversation.Turn{Role: conversation.RoleUser, Text: question})
	return asker.Call(ctx, turns)
}
