// Package conversation holds the rolling turn history of a session.
//
// A Context always starts with exactly one system turn. Turns are only ever
// appended; readers get copies via Snapshot so they never observe a partially
// applied exchange.
package conversation

import (
	"errors"
	"sync"
	"time"
)

// Role tags who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Sentinel errors for the conversation package.
var (
	// ErrSystemTurn is returned when appending a second system turn.
	ErrSystemTurn = errors.New("conversation: system turn is fixed at index 0")

	// ErrInvalidRole is returned for roles outside system/user/assistant.
	ErrInvalidRole = errors.New("conversation: invalid role")
)

// Turn is one message in the history.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Context is an append-only, goroutine-safe turn history.
type Context struct {
	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

// New creates a Context seeded with the system prompt.
func New(systemPrompt string) *Context {
	c := &Context{now: time.Now}
	c.turns = []Turn{{Role: RoleSystem, Text: systemPrompt, At: c.now()}}
	return c
}

// Append adds a user or assistant turn.
func (c *Context) Append(role Role, text string) error {
	if role == RoleSystem {
		return ErrSystemTurn
	}
	if !role.Valid() {
		return ErrInvalidRole
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, Turn{Role: role, Text: text, At: c.now()})
	return nil
}

// AppendExchange adds a user turn followed by the assistant's reply as a
// single step, so snapshots never see the user turn alone.
func (c *Context) AppendExchange(user, assistant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at := c.now()
	c.turns = append(c.turns,
		Turn{Role: RoleUser, Text: user, At: at},
		Turn{Role: RoleAssistant, Text: assistant, At: at},
	)
}

// Snapshot returns a copy of every turn, system turn first.
func (c *Context) Snapshot() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Recent returns a copy of the last n non-system turns.
func (c *Context) Recent(n int) []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	history := c.turns[1:]
	if n < 0 {
		n = 0
	}
	if n < len(history) {
		history = history[len(history)-n:]
	}
	out := make([]Turn, len(history))
	copy(out, history)
	return out
}

// Len returns the number of turns including the system turn.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// SystemPrompt returns the text of the system turn.
func (c *Context) SystemPrompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.turns[0].Text
}
