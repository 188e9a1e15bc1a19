// Package bridge exposes the controller to browser clients over a websocket:
// controller events go out as JSON text frames and start/stop/ask commands
// come in.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-companion/pkg/companion/chat"
	"github.com/vango-go/vai-companion/pkg/companion/session"
	"github.com/vango-go/vai-companion/pkg/companion/transcript"
)

const (
	defaultPingInterval   = 20 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultClientBuffer   = 64
	defaultCommandTimeout = time.Minute
	maxCommandBytes       = 64 << 10
)

// Controller is the part of session.Controller the hub drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	State() session.State
	SessionID() string
}

// Asker answers text prompts.
type Asker interface {
	Ask(ctx context.Context, prompt string) (transcript.Entry, error)
}

// Config configures a Hub.
type Config struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	// ClientBuffer is the per-client outbound queue. A client that falls this
	// far behind is disconnected.
	ClientBuffer int
	// CommandTimeout bounds start and ask commands.
	CommandTimeout time.Duration
}

// Hub fans controller events out to every connected client.
type Hub struct {
	ctrl   Controller
	asker  Asker
	cfg    Config
	logger *slog.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	speaking bool
	// transcript holds the entries already broadcast, so a snapshot never
	// overlaps a transcript event still waiting in the events channel.
	transcript []transcript.Entry
}

// NewHub creates a Hub. asker may be nil to disable text queries.
func NewHub(ctrl Controller, asker Asker, cfg Config, logger *slog.Logger) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = defaultClientBuffer
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		ctrl:   ctrl,
		asker:  asker,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Run broadcasts events until the channel closes or ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context, events <-chan session.Event) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(ev)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves one client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.cfg.ClientBuffer),
		done: make(chan struct{}),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("client connected", "remote_addr", r.RemoteAddr)

	go c.writeLoop()
	c.readLoop(context.WithoutCancel(r.Context()))
	h.unregister(c)
	h.logger.Debug("client disconnected", "remote_addr", r.RemoteAddr)
}

// register queues the snapshot and adds c under one lock so no broadcast
// can slip in between.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	payload, err := encode(envelope{Type: "snapshot", Data: snapshot{
		State:      h.ctrl.State(),
		SessionID:  h.ctrl.SessionID(),
		Speaking:   h.speaking,
		Transcript: append([]transcript.Entry{}, h.transcript...),
	}})
	if err != nil {
		h.logger.Error("encode snapshot", "error", err)
		return false
	}
	c.send <- payload
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) broadcast(ev session.Event) {
	payload, err := encode(envelope{Type: ev.EventType(), Data: ev})
	if err != nil {
		h.logger.Error("encode event", "type", ev.EventType(), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch e := ev.(type) {
	case *session.SpeakingEvent:
		h.speaking = e.Speaking
	case *session.TranscriptEvent:
		h.transcript = append(h.transcript, e.Entries...)
	case *session.StateChangedEvent:
		if e.To == session.StateIdle {
			h.speaking = false
		}
	}
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("client too slow, disconnecting")
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// handle runs one client command.
func (h *Hub) handle(ctx context.Context, c *client, cmd command) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.CommandTimeout)
	defer cancel()

	switch cmd.Type {
	case "start":
		err := h.ctrl.Start(ctx)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrAlreadyStarted):
			c.reply(cmd.Type, "A conversation is already running.")
		case errors.Is(err, session.ErrMicrophoneUnavailable), errors.Is(err, session.ErrConnection):
			// The controller reports these to every client as error events.
		default:
			h.logger.Warn("start command failed", "error", err)
			c.reply(cmd.Type, "Could not start the conversation.")
		}
	case "stop":
		h.ctrl.Stop()
	case "ask":
		if h.asker == nil {
			c.reply(cmd.Type, "Text chat is not available.")
			return
		}
		if _, err := h.asker.Ask(ctx, cmd.Text); err != nil {
			if errors.Is(err, chat.ErrEmptyPrompt) {
				c.reply(cmd.Type, "Type a message first.")
				return
			}
			c.reply(cmd.Type, "Sorry, I couldn't get a reply. Please try again.")
		}
	default:
		c.reply(cmd.Type, "Unknown command.")
	}
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type snapshot struct {
	State      session.State      `json:"state"`
	SessionID  string             `json:"session_id,omitempty"`
	Speaking   bool               `json:"speaking"`
	Transcript []transcript.Entry `json:"transcript"`
}

type command struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type commandError struct {
	Command string `json:"command"`
	Message string `json:"message"`
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
