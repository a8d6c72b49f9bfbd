package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/colonylab/nestfeed/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB

	defaultBufferSize = 64
)

// Message represents a JSON payload delivered to realtime subscribers.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// Hub fans realtime streams out to connected clients, keyed by account
// address. A single account may hold several connections (multiple tabs),
// each with its own subscription set.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[string]map[*connection]struct{}
	actions       map[string]func(account string)
	upgrader      websocket.Upgrader
	log           *zap.Logger
}

// NewHub constructs a realtime hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]map[string]map[*connection]struct{}),
		log:           logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Allow same-origin requests and explicit localhost development.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
	}
}

// HandleAction registers a callback for a custom control action. The
// callback receives the account of the connection that sent the action.
func (h *Hub) HandleAction(action string, fn func(account string)) {
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" || fn == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.actions == nil {
		h.actions = make(map[string]func(account string))
	}
	h.actions[action] = fn
}

func (h *Hub) lookupAction(action string) func(account string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.actions[action]
}

// Serve upgrades the HTTP connection to a WebSocket and registers the client
// with the provided streams.
func (h *Hub) Serve(account string, streams []string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newConnection(h, conn, strings.ToLower(account))
	h.subscribe(client, streams)

	go client.writeLoop()
	client.readLoop()
}

// BroadcastToAccount delivers a message to all of the account's connections
// subscribed to a stream.
func (h *Hub) BroadcastToAccount(stream, account string, message Message) {
	stream = normalizeStream(stream)
	account = strings.ToLower(account)
	if stream == "" || account == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	clientsByAccount, ok := h.subscriptions[stream]
	if !ok {
		return
	}

	targets := clientsByAccount[account]
	if len(targets) == 0 {
		return
	}

	message.Stream = stream
	for client := range targets {
		h.enqueue(client, message)
	}
}

// BroadcastStream delivers a message to every subscriber on the stream.
func (h *Hub) BroadcastStream(stream string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	clientsByAccount, ok := h.subscriptions[stream]
	if !ok {
		return
	}

	message.Stream = stream
	for _, clients := range clientsByAccount {
		for client := range clients {
			h.enqueue(client, message)
		}
	}
}

// Subscribers reports how many of the account's connections listen on the
// stream.
func (h *Hub) Subscribers(stream, account string) int {
	stream = normalizeStream(stream)
	account = strings.ToLower(account)

	h.mu.RLock()
	defer h.mu.RUnlock()

	clientsByAccount, ok := h.subscriptions[stream]
	if !ok {
		return 0
	}
	return len(clientsByAccount[account])
}

func (h *Hub) subscribe(client *connection, streams []string) {
	if len(streams) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		if !KnownStream(stream) {
			h.log.Debug("ignoring unknown stream",
				zap.String("stream", stream),
				zap.String("account", client.account))
			continue
		}
		if client.streams == nil {
			client.streams = make(map[string]struct{})
		}
		if _, exists := client.streams[stream]; exists {
			continue
		}

		if h.subscriptions[stream] == nil {
			h.subscriptions[stream] = make(map[string]map[*connection]struct{})
		}
		if h.subscriptions[stream][client.account] == nil {
			h.subscriptions[stream][client.account] = make(map[*connection]struct{})
		}

		client.streams[stream] = struct{}{}
		h.subscriptions[stream][client.account][client] = struct{}{}
	}
}

func (h *Hub) unsubscribe(client *connection, streams []string) {
	if len(streams) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		h.removeSubscriptionLocked(client, stream, false)
	}
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range client.streams {
		h.removeSubscriptionLocked(client, stream, true)
	}
}

func (h *Hub) removeSubscriptionLocked(client *connection, stream string, removeAll bool) {
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}

	clientsByAccount, ok := h.subscriptions[stream]
	if !ok {
		return
	}

	accountClients := clientsByAccount[client.account]
	if len(accountClients) == 0 {
		return
	}

	delete(accountClients, client)
	if len(accountClients) == 0 {
		delete(clientsByAccount, client.account)
	}
	if len(clientsByAccount) == 0 {
		delete(h.subscriptions, stream)
	}

	if removeAll {
		delete(client.streams, stream)
	}
}

func (h *Hub) enqueue(client *connection, message Message) {
	select {
	case client.send <- message:
	default:
		h.log.Warn("dropping backpressure client", zap.String("account", client.account))
		client.close()
	}
}

type connection struct {
	hub     *Hub
	socket  *websocket.Conn
	account string
	streams map[string]struct{}
	send    chan Message
	once    sync.Once
}

func newConnection(hub *Hub, conn *websocket.Conn, account string) *connection {
	return &connection{
		hub:     hub,
		socket:  conn,
		account: account,
		send:    make(chan Message, defaultBufferSize),
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close",
					zap.String("account", c.account), zap.Error(err))
			}
			break
		}

		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control payload",
				zap.String("account", c.account), zap.Error(err))
			continue
		}

		action := strings.ToLower(strings.TrimSpace(ctrl.Action))
		switch action {
		case "subscribe":
			c.hub.subscribe(c, ctrl.Streams)
		case "unsubscribe":
			c.hub.unsubscribe(c, ctrl.Streams)
		case "ping":
			c.send <- Message{Event: "pong"}
		default:
			if fn := c.hub.lookupAction(action); fn != nil {
				fn(c.account)
				continue
			}
			c.hub.log.Debug("unsupported control action",
				zap.String("action", ctrl.Action), zap.String("account", c.account))
		}
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.send)
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	unique := make(map[string]struct{}, len(streams))
	var result []string
	for _, stream := range streams {
		if stream = normalizeStream(stream); stream != "" {
			if _, exists := unique[stream]; !exists {
				unique[stream] = struct{}{}
				result = append(result, stream)
			}
		}
	}
	return result
}
