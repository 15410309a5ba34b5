// Package hub fans journal entries out to websocket clients.
package hub

import "github.com/teslashibe/go-jarvis/pkg/journal"

// Message is one pre-encoded frame queued for broadcast.
type Message struct {
	Data []byte

	seq uint64 // backlog sequence, zero for frames outside the backlog
}

// Envelope is the JSON frame sent to dashboard clients.
type Envelope struct {
	Type  string        `json:"type"`
	Entry journal.Entry `json:"entry"`
}

// TypeLog marks an Envelope carrying a journal entry.
const TypeLog = "log"
