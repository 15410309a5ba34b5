// Package command routes recognized text to the handler that answers it.
//
// A Router checks the shutdown keyword first (guarded by an AuthGate),
// then scans its routes in order; the first match wins and anything left
// over goes to the fallback handler, usually Chat. Routing never fails:
// every path produces a Reply.
package command

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode"
)

// Fixed replies.
const (
	ReplyShutdown     = "Shutting down. Goodbye, sir."
	ReplyAccessDenied = "Access denied."
	ReplyAuthPrompt   = "Please state the password, sir."
)

// Command is one recognized utterance.
type Command struct {
	// Text is the trimmed transcript as heard.
	Text string

	// Key is the lower-cased text used for matching.
	Key string
}

// New creates a Command from a transcript.
func New(text string) Command {
	t := strings.TrimSpace(text)
	return Command{Text: t, Key: strings.ToLower(t)}
}

// Reply is a handler's answer.
type Reply struct {
	Text string

	// Halt asks the session to stop after speaking Text.
	Halt bool
}

// Handler produces a reply for a command.
type Handler interface {
	Handle(ctx context.Context, cmd Command) Reply
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd Command) Reply

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cmd Command) Reply {
	return f(ctx, cmd)
}

// Matcher decides whether a route applies to a match key.
type Matcher func(key string) bool

// Any matches when the key contains at least one of words as a whole word.
func Any(words ...string) Matcher {
	return func(key string) bool {
		for _, w := range words {
			if HasPhrase(key, w) {
				return true
			}
		}
		return false
	}
}

// All matches when the key contains every one of words as a whole word.
func All(words ...string) Matcher {
	return func(key string) bool {
		for _, w := range words {
			if !HasPhrase(key, w) {
				return false
			}
		}
		return len(words) > 0
	}
}

// HasPhrase reports whether phrase occurs in key on word boundaries, so
// "gas" matches "gas levels?" but not "las vegas".
func HasPhrase(key, phrase string) bool {
	want := words(phrase)
	if len(want) == 0 {
		return false
	}
	have := words(key)
	for i := 0; i+len(want) <= len(have); i++ {
		if slices.Equal(have[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Speaker says a line out loud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Listener hears one utterance.
type Listener interface {
	Listen(ctx context.Context, timeout time.Duration) (string, error)
}
