package command

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/journal"
)

// AuthGate asks for a spoken password before a privileged command.
//
// An empty secret disables the gate and Verify always succeeds. This keeps
// unconfigured installs usable but means anyone in earshot can shut the
// assistant down.
type AuthGate struct {
	secret   string
	prompt   string
	timeout  time.Duration
	speaker  Speaker
	listener Listener
	sink     journal.Sink
	logger   *slog.Logger
}

// AuthOption configures an AuthGate.
type AuthOption func(*AuthGate)

// WithPrompt overrides the challenge prompt.
func WithPrompt(p string) AuthOption {
	return func(g *AuthGate) { g.prompt = p }
}

// WithAuthTimeout sets how long to wait for the answer (default 5s).
func WithAuthTimeout(d time.Duration) AuthOption {
	return func(g *AuthGate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithAuthSink records grant and denial events.
func WithAuthSink(s journal.Sink) AuthOption {
	return func(g *AuthGate) { g.sink = s }
}

// WithAuthLogger sets the logger.
func WithAuthLogger(l *slog.Logger) AuthOption {
	return func(g *AuthGate) { g.logger = l }
}

// NewAuthGate creates a gate for secret.
func NewAuthGate(secret string, speaker Speaker, listener Listener, opts ...AuthOption) *AuthGate {
	g := &AuthGate{
		secret:   strings.TrimSpace(secret),
		prompt:   ReplyAuthPrompt,
		timeout:  5 * time.Second,
		speaker:  speaker,
		listener: listener,
		sink:     journal.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "command.auth")
	if g.secret == "" {
		g.logger.Warn("no password configured, privileged commands are unguarded")
	}
	return g
}

// Enabled reports whether a secret is configured.
func (g *AuthGate) Enabled() bool {
	return g.secret != ""
}

// Verify challenges the speaker once. It returns true only when the
// trimmed answer equals the secret ignoring case.
func (g *AuthGate) Verify(ctx context.Context) bool {
	if g.secret == "" {
		return true
	}

	if err := g.speaker.Speak(ctx, g.prompt); err != nil {
		g.deny("prompt failed", err)
		return false
	}

	answer, err := g.listener.Listen(ctx, g.timeout)
	if err != nil {
		g.deny("no answer", err)
		return false
	}

	if !strings.EqualFold(strings.TrimSpace(answer), g.secret) {
		g.deny("mismatch", nil)
		return false
	}

	g.logger.Info("access granted")
	g.sink.Record(journal.EventAuthGranted, nil)
	return true
}

func (g *AuthGate) deny(reason string, err error) {
	detail := map[string]any{"reason": reason}
	if err != nil {
		detail["error"] = err.Error()
	}
	g.logger.Warn("access denied", "reason", reason, "error", err)
	g.sink.Record(journal.EventAuthDenied, detail)
}
