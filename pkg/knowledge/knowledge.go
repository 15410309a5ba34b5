// Package knowledge wraps a single knowledge-service call with bounded retry
// and exponential backoff.
//
// Call never fails: transient errors are retried up to Policy.MaxAttempts
// times, and the caller gets a fixed apology when the service is out of
// reach or not configured.
package knowledge

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/conversation"
	"github.com/teslashibe/go-jarvis/pkg/inference"
	"github.com/teslashibe/go-jarvis/pkg/journal"
)

// Fixed replies returned instead of errors.
const (
	ReplyNotConfigured = "Apologies, I'm currently unable to access my knowledge base."
	ReplyDegraded      = "Apologies, I'm experiencing difficulties reaching my knowledge base."
)

// Policy controls retry behavior. It is immutable once the Client is built.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultPolicy returns 3 attempts starting at 1s and doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
	}
}

// Delay returns the wait after the given failed attempt (1-based):
// BaseDelay * Multiplier^(attempt-1).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// Client retries a Transport under a Policy.
type Client struct {
	transport  inference.Transport
	policy     Policy
	configured bool
	sink       journal.Sink
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithPolicy overrides the retry policy.
func WithPolicy(p Policy) Option {
	return func(c *Client) { c.policy = p.normalized() }
}

// WithCredential marks the client unconfigured when key is empty, so Call
// answers ReplyNotConfigured without contacting the service.
func WithCredential(key string) Option {
	return func(c *Client) { c.configured = key != "" }
}

// WithSink sets where attempts are recorded.
func WithSink(s journal.Sink) Option {
	return func(c *Client) { c.sink = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client around transport.
func New(transport inference.Transport, opts ...Option) *Client {
	c := &Client{
		transport:  transport,
		policy:     DefaultPolicy(),
		configured: true,
		sink:       journal.Discard,
		logger:     slog.Default(),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "knowledge.client")
	return c
}

// Policy returns the active retry policy.
func (c *Client) Policy() Policy {
	return c.policy
}

// Call sends the conversation to the service and returns the reply text.
func (c *Client) Call(ctx context.Context, turns []conversation.Turn) string {
	if !c.configured || c.transport == nil {
		c.logger.Warn("knowledge service not configured")
		return ReplyNotConfigured
	}

	messages := ToMessages(turns)

	attempts := 0
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		attempts = attempt
		reply, err := c.transport.Send(ctx, messages)

		detail := map[string]any{
			"attempt":      attempt,
			"max_attempts": c.policy.MaxAttempts,
		}
		if err != nil {
			detail["error"] = err.Error()
		}
		c.sink.Record(journal.EventKnowledgeTry, detail)

		if err == nil {
			return reply
		}

		if inference.IsConfigurationError(err) {
			c.logger.Error("knowledge service rejected credentials", "error", err)
			return ReplyNotConfigured
		}
		if ctx.Err() != nil {
			return ReplyDegraded
		}
		if !inference.IsTransient(err) {
			c.logger.Warn("non-retryable knowledge error", "attempt", attempt, "error", err)
			break
		}
		if attempt == c.policy.MaxAttempts {
			break
		}

		delay := c.policy.Delay(attempt)
		c.logger.Warn("knowledge call failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := c.sleep(ctx, delay); err != nil {
			return ReplyDegraded
		}
	}

	c.sink.Record(journal.EventKnowledgeFail, map[string]any{"attempts": attempts})
	return ReplyDegraded
}

// ToMessages converts conversation turns to wire messages.
func ToMessages(turns []conversation.Turn) []inference.Message {
	out := make([]inference.Message, len(turns))
	for i, t := range turns {
		out[i] = inference.Message{Role: inference.Role(t.Role), Content: t.Text}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
