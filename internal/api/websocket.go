package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/avx-core/internal/infrastructure/config"
	"github.com/nerrad567/avx-core/internal/infrastructure/logging"
	"github.com/nerrad567/avx-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/avx-core/internal/remote"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
	WSTypeWelcome     = "welcome"

	// WSScheme prefixes the client URI of every WebSocket connection.
	WSScheme = "ws"

	// EventDeviceState is the channel bridge state updates are relayed on.
	EventDeviceState = "device.state_changed"

	wsSendBufferSize = 256
)

// ErrClientGone is returned when calling a WebSocket client that has
// disconnected or whose send buffer is full.
var ErrClientGone = errors.New("api: websocket client gone")

// WSMessage is a frame sent to or from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub tracks WebSocket connections by client URI.
//
// It is a remote.ClientDialer for the "ws" scheme: a broadcast call to
// "ws:<id>" becomes an event frame on that connection. Channel broadcasts
// (bridge state) only reach connections subscribed to the channel.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[string]*WSClient
	mu      sync.RWMutex
}

// WSClient is one WebSocket connection.
type WSClient struct {
	hub           *Hub
	uri           string
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*WSClient),
	}
}

// NewClientURI returns a fresh "ws:" client URI.
func NewClientURI() string {
	return WSScheme + ":" + uuid.NewString()
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client.uri] = client
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "uri", client.uri, "clients", n)
}

// Unregister removes a client and closes its send channel. Only the caller
// that removes the entry closes the channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	current, existed := h.clients[client.uri]
	if existed && current == client {
		delete(h.clients, client.uri)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if existed && current == client {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "uri", client.uri, "clients", n)
}

// DialClient returns the connection registered under uri.
func (h *Hub) DialClient(uri string) (remote.ClientConn, error) {
	if !strings.HasPrefix(uri, WSScheme+":") {
		return nil, fmt.Errorf("%w: %q", remote.ErrUnsupportedScheme, uri)
	}
	h.mu.RLock()
	client, ok := h.clients[uri]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientGone, uri)
	}
	return client, nil
}

// Broadcast sends an event to every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(newEvent(channel, payload))
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	// Snapshot under the hub lock; client locks are taken after release.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.isSubscribed(channel) && client.trySend(data) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for uri, client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, uri)
	}
}

func newEvent(eventType string, payload any) WSMessage {
	return WSMessage{
		Type:      WSTypeEvent,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
}

// Call queues method as an event frame. It fails if the client has gone or
// its buffer stays full until ctx is done.
func (c *WSClient) Call(ctx context.Context, method string, payload any) (err error) {
	data, err := json.Marshal(newEvent(method, payload))
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", method, err)
	}

	defer func() {
		if recover() != nil {
			err = fmt.Errorf("%w: %s", ErrClientGone, c.uri)
		}
	}()
	select {
	case c.send <- data:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrClientGone, c.uri, ctx.Err())
	}
}

// URI returns the client URI the connection is registered under.
func (c *WSClient) URI() string { return c.uri }

// subscribeStateUpdates relays bridge state messages to WebSocket clients
// subscribed to EventDeviceState.
func (s *Server) subscribeStateUpdates() error {
	if s.mqtt == nil {
		return nil
	}
	topic := mqtt.Topics{}.AllBridgeStates()
	s.logger.Info("subscribing to bridge state for WebSocket relay", "topic", topic)

	return s.mqtt.Subscribe(topic, 1, func(t string, payload []byte) error {
		var state map[string]any
		if err := json.Unmarshal(payload, &state); err != nil {
			s.logger.Warn("failed to parse bridge state message", "topic", t, "error", err)
			return nil
		}

		// avx/state/<bridge>/<device_id>
		if parts := strings.Split(t, "/"); len(parts) == 4 {
			if _, ok := state["device_id"]; !ok {
				state["device_id"] = parts[3]
			}
			state["bridge"] = parts[2]
		}
		s.hub.Broadcast(EventDeviceState, state)
		return nil
	})
}

// handleWebSocket upgrades the connection, registers it with the hub and
// adds its URI to the controller's client set. The first frame sent is a
// welcome carrying the URI. Disconnecting removes the client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		uri:           NewClientURI(),
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	s.hub.Register(client)
	client.sendResponse("", WSTypeWelcome, map[string]string{"uri": client.uri})

	ctx := context.WithoutCancel(r.Context())
	s.ctrl.RegisterClient(ctx, client.uri)

	go client.writePump(s.wsCfg)
	go func() {
		client.readPump(s.wsCfg)
		s.ctrl.UnregisterClient(ctx, client.uri)
	}()
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "uri", c.uri, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(wait))
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	interval := time.Duration(cfg.PingInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.handleSubscription(msg)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func (c *WSClient) handleSubscription(msg WSMessage) {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		c.sendError(msg.ID, "invalid "+msg.Type+" payload")
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if msg.Type == WSTypeSubscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "subscribed"
	if msg.Type == WSTypeUnsubscribe {
		key = "unsubscribed"
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{key: sub.Channels})
}

// trySend queues data without blocking. It reports false if the client's
// channel is closed or full.
func (c *WSClient) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
