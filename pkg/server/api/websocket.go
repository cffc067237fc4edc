package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SuperReturn/Oracle/pkg/logging"
	"github.com/SuperReturn/Oracle/pkg/server/aggregator"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebSocketServer streams aggregator events to connected clients.
type WebSocketServer struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	// Client management
	mu      sync.RWMutex
	clients map[*WebSocketClient]bool
}

// WebSocketClient represents a connected WebSocket client.
type WebSocketClient struct {
	conn       *websocket.Conn
	send       chan []byte
	server     *WebSocketServer
	subscribed map[aggregator.Outcome]bool // empty means every outcome
	mu         sync.RWMutex
}

// WebSocketMessage represents a client message.
type WebSocketMessage struct {
	Type     string               `json:"type"` // "subscribe", "unsubscribe", "ping"
	Outcomes []aggregator.Outcome `json:"outcomes"`
}

// EventMessage is sent to clients for every update cycle.
type EventMessage struct {
	Type      string           `json:"type"`      // "update"
	Timestamp string           `json:"timestamp"` // ISO 8601 timestamp
	Event     aggregator.Event `json:"event"`
}

// NewWebSocketServer creates a new WebSocket server.
func NewWebSocketServer(logger *logging.Logger) *WebSocketServer {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &WebSocketServer{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		clients: make(map[*WebSocketClient]bool),
	}
}

// Run forwards events to clients until ctx is done. The caller owns the
// subscription that feeds events.
func (s *WebSocketServer) Run(ctx context.Context, events <-chan aggregator.Event) {
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case ev := <-events:
			s.broadcast(ev)
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *WebSocketServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP upgrades the connection and registers the client.
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := &WebSocketClient{
		conn:       conn,
		send:       make(chan []byte, 256),
		server:     s,
		subscribed: make(map[aggregator.Outcome]bool),
	}

	s.registerClient(client)

	go client.writePump()
	go client.readPump()

	s.logger.Info("New WebSocket client connected", "remote", conn.RemoteAddr())
}

func (s *WebSocketServer) registerClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *WebSocketServer) unregisterClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
}

func (s *WebSocketServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		delete(s.clients, client)
		close(client.send)
	}
}

// broadcast sends ev to every client subscribed to its outcome.
func (s *WebSocketServer) broadcast(ev aggregator.Event) {
	data, err := json.Marshal(EventMessage{
		Type:      "update",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Event:     ev,
	})
	if err != nil {
		s.logger.Error("Failed to marshal event", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		if !client.shouldReceive(ev.Outcome) {
			continue
		}
		select {
		case client.send <- data:
		default:
			s.logger.Warn("Client send buffer full, skipping event", "outcome", ev.Outcome)
		}
	}
}

// writePump sends messages to the WebSocket connection.
func (c *WebSocketClient) writePump() {
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
				c.server.logger.Debug("Failed to write message", "error", err)
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

// readPump reads messages from the WebSocket connection.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.server.unregisterClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Error("WebSocket error", "error", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

func (c *WebSocketClient) handleMessage(data []byte) {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.server.logger.Warn("Invalid client message", "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Outcomes)
	case "unsubscribe":
		c.unsubscribe(msg.Outcomes)
	case "ping":
		c.reply(map[string]string{"type": "pong"})
		return
	default:
		c.server.logger.Warn("Unknown message type", "type", msg.Type)
		return
	}
	c.reply(map[string]interface{}{"type": msg.Type + "d", "outcomes": c.outcomes()})
}

// subscribe narrows the stream to outcomes. An empty list restores every outcome.
func (c *WebSocketClient) subscribe(outcomes []aggregator.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(outcomes) == 0 {
		c.subscribed = make(map[aggregator.Outcome]bool)
		return
	}
	for _, o := range outcomes {
		c.subscribed[o] = true
	}
}

// unsubscribe drops outcomes. Dropping the last one restores every outcome.
func (c *WebSocketClient) unsubscribe(outcomes []aggregator.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, o := range outcomes {
		delete(c.subscribed, o)
	}
}

func (c *WebSocketClient) outcomes() []aggregator.Outcome {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]aggregator.Outcome, 0, len(c.subscribed))
	for o := range c.subscribed {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *WebSocketClient) shouldReceive(outcome aggregator.Outcome) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribed) == 0 || c.subscribed[outcome]
}

// reply queues a control message for the client. The send channel may already
// be closed by unregisterClient, so the write happens under the server lock.
func (c *WebSocketClient) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.server.mu.RLock()
	defer c.server.mu.RUnlock()
	if !c.server.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
