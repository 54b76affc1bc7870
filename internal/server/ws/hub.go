// Package ws streams live position events to browser clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 4096
	sendBufferSize = 256
	// replayLimit caps the backlog sent to a client resuming with ?after=.
	replayLimit = 200
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS and auth middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// envelope is the frame shape sent to clients.
type envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"` // stream ID for replayed events
	Payload json.RawMessage `json:"payload"`
}

// client is one connection. An empty owner receives every wallet's events.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	owner string
	mu    sync.RWMutex
}

// subscribeMsg changes the owner filter of a connection.
type subscribeMsg struct {
	Action string `json:"action"` // "subscribe"
	Owner  string `json:"owner"`
}

// Hub fans position events from the SignalBus out to WebSocket clients.
type Hub struct {
	bus        domain.SignalBus
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		bus:        bus,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
	}
}

// Run subscribes to the positions channel and serves clients until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	events, err := h.bus.Subscribe(ctx, domain.ChannelPositions)
	if err != nil {
		h.logger.ErrorContext(ctx, "subscribe failed",
			slog.String("channel", domain.ChannelPositions),
			slog.String("error", err.Error()),
		)
		events = nil // keep serving connects; nothing will be broadcast
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", total))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", total))

		case data, ok := <-events:
			if !ok {
				h.logger.Warn("position subscription closed")
				events = nil
				continue
			}
			h.fanOut(data)
		}
	}
}

func (h *Hub) fanOut(data []byte) {
	var evt domain.PositionEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		h.logger.Warn("dropping malformed position event", slog.String("error", err.Error()))
		return
	}
	frame, err := json.Marshal(envelope{Type: "position", Payload: data})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(evt.Owner) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping message for slow client")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client. ?owner= limits the
// stream to one wallet; ?after=<stream id> first replays missed events.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		owner: r.URL.Query().Get("owner"),
	}

	// Queue the backlog before registering: once registered, Run owns send.
	c.queue(h.helloFrame())
	if after := r.URL.Query().Get("after"); after != "" {
		h.replay(r.Context(), c, after)
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) helloFrame() []byte {
	payload, _ := json.Marshal(map[string]any{
		"ws_connected":   true,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
	frame, _ := json.Marshal(envelope{Type: "hello", Payload: payload})
	return frame
}

// replay queues stream entries recorded after the given ID.
func (h *Hub) replay(ctx context.Context, c *client, after string) {
	msgs, err := h.bus.StreamRead(ctx, domain.StreamPositions, after, replayLimit)
	if err != nil {
		h.logger.Warn("replay failed", slog.String("error", err.Error()))
		return
	}
	for _, m := range msgs {
		var evt domain.PositionEvent
		if json.Unmarshal(m.Payload, &evt) != nil || !c.wants(evt.Owner) {
			continue
		}
		frame, err := json.Marshal(envelope{Type: "position", ID: m.ID, Payload: m.Payload})
		if err == nil {
			c.queue(frame)
		}
	}
}

func (c *client) wants(owner string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner == "" || c.owner == owner
}

func (c *client) queue(frame []byte) {
	select {
	case c.send <- frame:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action == "subscribe" {
			c.mu.Lock()
			c.owner = sub.Owner
			c.mu.Unlock()
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
