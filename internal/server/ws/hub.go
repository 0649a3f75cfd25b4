// Package ws fans line updates out to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	sendBufferSize = 64
)

// Envelope types sent to clients.
const (
	TypeHello      = "hello"
	TypeLineUpdate = "line_update"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// envelope wraps every frame sent to a client.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// watchMsg is a client request to narrow (or widen) the markets it hears
// about. An empty watch list means every market.
type watchMsg struct {
	Action  string   `json:"action"` // "watch" or "unwatch"
	Markets []string `json:"markets"`
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	mu    sync.RWMutex
	watch map[string]bool
}

type update struct {
	marketID string
	frame    []byte
}

// Hub relays line updates from the event bus to connected clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan update
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.EventBus
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.EventBus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan update, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
	}
}

// Run subscribes to the line channel and serves clients until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	updates, err := h.bus.Subscribe(ctx, domain.ChannelLineUpdates)
	if err != nil {
		return err
	}
	h.logger.Info("ws: subscribed", slog.String("channel", domain.ChannelLineUpdates))

	for {
		select {
		case <-ctx.Done():
			close(h.done)
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
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws: client disconnected", slog.Int("total_clients", n))

		case payload, ok := <-updates:
			if !ok {
				h.logger.Warn("ws: line subscription closed")
				updates = nil
				continue
			}
			u, err := decodeUpdate(payload)
			if err != nil {
				h.logger.Warn("ws: bad line update", slog.String("error", err.Error()))
				continue
			}
			h.fanOut(u)
		}
	}
}

func decodeUpdate(payload []byte) (update, error) {
	var lu domain.LineUpdate
	if err := json.Unmarshal(payload, &lu); err != nil {
		return update{}, err
	}
	frame, err := json.Marshal(envelope{Type: TypeLineUpdate, Payload: payload})
	if err != nil {
		return update{}, err
	}
	return update{marketID: lu.MarketID, frame: frame}, nil
}

func (h *Hub) fanOut(u update) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.watches(u.marketID) {
			continue
		}
		select {
		case c.send <- u.frame:
		default:
			h.logger.Warn("ws: dropping update for slow client")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the connection.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		watch: make(map[string]bool),
	}
	// Queued before registering: once registered, Run may close c.send.
	c.hello()
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) watches(marketID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.watch) == 0 || c.watch[marketID]
}

func (c *client) applyWatch(msg watchMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "watch":
		for _, id := range msg.Markets {
			c.watch[id] = true
		}
	case "unwatch":
		if len(msg.Markets) == 0 {
			clear(c.watch)
		}
		for _, id := range msg.Markets {
			delete(c.watch, id)
		}
	}
}

// hello lets the client mark the connection live before any vote arrives.
func (c *client) hello() {
	payload, err := json.Marshal(map[string]any{
		"channel":        domain.ChannelLineUpdates,
		"uptime_seconds": int64(time.Since(c.hub.startedAt).Seconds()),
	})
	if err != nil {
		return
	}
	frame, err := json.Marshal(envelope{Type: TypeHello, Payload: payload})
	if err != nil {
		return
	}
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
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg watchMsg
		if json.Unmarshal(message, &msg) == nil && msg.Action != "" {
			c.applyWatch(msg)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
