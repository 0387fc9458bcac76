package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voxtype/voxtype/internal/observability"
	"github.com/voxtype/voxtype/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The feed is bound to localhost; any local UI may subscribe
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

const (
	writeTimeout = 5 * time.Second

	// clientBuffer bounds the per-client queue; a client that cannot keep
	// up with the 30 Hz meter stream is disconnected rather than backing
	// up the hub
	clientBuffer = 256
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session events out to websocket subscribers (level meters,
// spectrum visualizers, state badges in a local UI).
type Hub struct {
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		logger:  observability.WithComponent("feed"),
		clients: make(map[string]*client),
	}
}

// ServeHTTP upgrades an HTTP request to a websocket subscription
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString()[:8],
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Info().Str("client", c.id).Msg("Feed client connected")

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Publish sends an event to every connected client. Slow clients are
// dropped, never waited on.
func (h *Hub) Publish(e session.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal feed event")
		return
	}

	h.mu.Lock()
	var slow []*client
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn().Str("client", c.id).Msg("Dropping slow feed client")
	}
}

// Forward pumps a session's event channel into the hub until it is drained
func (h *Hub) Forward(events <-chan session.Event) {
	for e := range events {
		h.Publish(e)
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readLoop discards inbound messages and detects disconnects. The feed is
// one-way; clients only listen.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
}
