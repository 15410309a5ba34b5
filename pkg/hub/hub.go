package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-jarvis/pkg/journal"
)

// DefaultBacklog is how many entries a Hub keeps for late joiners.
const DefaultBacklog = 500

// Hub maintains the set of active clients and broadcasts entries to them.
// It is a journal.Sink: Record never blocks.
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	backlogMu sync.RWMutex
	backlog   []logged
	maxLog    int
	seq       uint64

	runOnce sync.Once
}

type logged struct {
	seq   uint64
	entry journal.Entry
}

// Option configures a Hub.
type Option func(*Hub)

// WithBacklog sets how many recent entries are retained.
func WithBacklog(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxLog = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// New creates a Hub. Call Run to start delivering.
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		logger:     slog.Default(),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		maxLog:     DefaultBacklog,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub."+name)
	return h
}

// Run delivers broadcasts until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	started := false
	h.runOnce.Do(func() { started = true })
	if !started {
		return
	}
	defer func() {
		h.mu.Lock()
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			c.after = h.replay(c)
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "clients", count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "clients", count)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if msg.seq != 0 && msg.seq <= c.after {
					continue
				}
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
					h.logger.Warn("dropped slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues msg for every client, dropping it if the queue is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts v.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Message{Data: data})
	return nil
}

// Record stores the event in the backlog and broadcasts it.
func (h *Hub) Record(event string, detail map[string]any) {
	entry := journal.NewEntry(event, detail)
	data, err := json.Marshal(Envelope{Type: TypeLog, Entry: entry})
	if err != nil {
		h.logger.Warn("failed to encode entry", "event", event, "error", err)
		return
	}

	// Sequencing and queueing happen under one lock so replay and
	// broadcast agree on which entries a new client has already seen.
	h.backlogMu.Lock()
	defer h.backlogMu.Unlock()
	h.seq++
	h.backlog = append(h.backlog, logged{seq: h.seq, entry: entry})
	if over := len(h.backlog) - h.maxLog; over > 0 {
		h.backlog = append(h.backlog[:0:0], h.backlog[over:]...)
	}
	h.Broadcast(Message{Data: data, seq: h.seq})
}

// replay queues the backlog on a newly registered client and returns
// the sequence number of the newest entry it covered.
func (h *Hub) replay(c *Client) uint64 {
	h.backlogMu.RLock()
	defer h.backlogMu.RUnlock()

	var last uint64
	for _, l := range h.backlog {
		last = l.seq
		data, err := json.Marshal(Envelope{Type: TypeLog, Entry: l.entry})
		if err != nil {
			continue
		}
		select {
		case c.send <- Message{Data: data, seq: l.seq}:
		default:
			h.logger.Warn("client queue full during replay", "seq", l.seq)
		}
	}
	return last
}

// Recent returns up to n of the newest entries, oldest first.
// n <= 0 returns the whole backlog.
func (h *Hub) Recent(n int) []journal.Entry {
	h.backlogMu.RLock()
	defer h.backlogMu.RUnlock()
	start := 0
	if n > 0 && n < len(h.backlog) {
		start = len(h.backlog) - n
	}
	out := make([]journal.Entry, 0, len(h.backlog)-start)
	for _, l := range h.backlog[start:] {
		out = append(out, l.entry)
	}
	return out
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

var _ journal.Sink = (*Hub)(nil)
