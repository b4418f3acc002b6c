package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/praptisharma28/consciousness-oracle/pkg/types"
)

const (
	// clientBuffer is how many undelivered events an observer may queue
	// before it is dropped as too slow.
	clientBuffer = 256

	writeTimeout = 10 * time.Second
)

// WebSocketHub is the registry of connected observers. Publish fans one
// encoded event out to every observer; the registry lock is held for the
// whole fan-out, so all observers receive events in the same global order.
type WebSocketHub struct {
	mu             sync.Mutex
	clients        map[clientInterface]struct{}
	stopped        bool
	originPatterns []string
	logger         *slog.Logger
}

// clientInterface allows for both real clients and mock clients.
type clientInterface interface {
	getSendChannel() chan []byte
	close()
}

// Client represents a WebSocket connection.
type Client struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte
}

func (c *Client) getSendChannel() chan []byte {
	return c.send
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// NewWebSocketHub creates a hub accepting upgrades from origins whose host
// matches one of originPatterns (path.Match syntax, "*" matches any).
// A nil logger uses slog.Default().
func NewWebSocketHub(originPatterns []string, logger *slog.Logger) *WebSocketHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHub{
		clients:        make(map[clientInterface]struct{}),
		originPatterns: originPatterns,
		logger:         logger,
	}
}

// Register adds a client to the hub. Registering after Stop closes the
// client immediately.
func (h *WebSocketHub) Register(client clientInterface) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		close(client.getSendChannel())
		client.close()
		return
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected", "total", count)
}

// Unregister removes a client from the hub and closes its send channel.
// Unregistering an unknown or already removed client is a no-op.
func (h *WebSocketHub) Unregister(client clientInterface) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.getSendChannel())
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Info("websocket client disconnected", "total", count)
	}
}

// Count returns the number of registered clients.
func (h *WebSocketHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish delivers event to every registered client. A client whose
// buffer is full is dropped; the others are unaffected.
func (h *WebSocketHub) Publish(event types.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "type", event.EventType(), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		sendChan := client.getSendChannel()
		select {
		case sendChan <- data:
		default:
			close(sendChan)
			delete(h.clients, client)
			h.logger.Warn("dropped slow websocket client", "type", event.EventType(), "total", len(h.clients))
		}
	}
}

// Stop disconnects every client. Later registrations are refused.
func (h *WebSocketHub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	for client := range h.clients {
		close(client.getSendChannel())
		client.close()
	}
	h.clients = make(map[clientInterface]struct{})
}

// originAllowed reports whether the request's Origin host matches the
// configured patterns. Requests without an Origin are not from a browser
// and are allowed.
func (h *WebSocketHub) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return matchOrigin(h.originPatterns, u.Host)
}

func matchOrigin(patterns []string, host string) bool {
	host = strings.ToLower(host)
	for _, pattern := range patterns {
		if pattern == "*" {
			return true
		}
		if ok, err := path.Match(strings.ToLower(pattern), host); err == nil && ok {
			return true
		}
	}
	return false
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.originAllowed(r) {
		http.Error(w, "Forbidden: invalid origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The origin was checked above against the same patterns.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}

	h.Register(client)

	go client.writePump()
	go client.readPump()
}

// writePump sends queued events to the connection until the hub closes
// the send channel or a write fails.
func (c *Client) writePump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, message)
		cancel()

		if err != nil {
			c.hub.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// readPump drains inbound frames to detect disconnects. Observers have
// nothing to say to the server.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}

// MockClient is a mock client for testing.
type MockClient struct {
	SendChan chan []byte
}

func (m *MockClient) getSendChannel() chan []byte {
	return m.SendChan
}

func (m *MockClient) close() {}
