// Package ws relays bus events to WebSocket clients. Frames are protobuf
// encoded google.protobuf.Struct envelopes {channel, payload} by default;
// clients connecting with ?format=json receive the same envelope as JSON
// text frames.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256

	// StatusChannel carries the hub status sent on connect.
	StatusChannel = "hub_status"
)

// busPatterns are the bus subscriptions relayed to clients.
var busPatterns = []string{
	domain.FundingChannelPrefix + "*",
	domain.MarketChannelPrefix + "*",
}

// upgrader configures the WebSocket upgrade parameters. Origin checks are
// left to the CORS configuration of the HTTP server.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	json bool
	subs map[string]bool // channel names or prefix patterns ending in *
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to change its
// subscriptions, e.g. {"action":"subscribe","channels":["ch:funding:0xabc"]}.
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	Account   string
	StartedAt time.Time
}

// Hub manages connected WebSocket clients and fans out bus messages to
// those subscribed to the message's channel.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan domain.Message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	cfg        Config
}

// NewHub creates a hub that bridges bus to connected clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	cfg.Mode = strings.TrimSpace(strings.ToLower(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan domain.Message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		cfg:        cfg,
	}
}

// Run starts the hub's event loop and the bus subscriptions. It returns when
// ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for _, p := range busPatterns {
		go h.subscribe(ctx, p)
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
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg domain.Message) {
	var binFrame, jsonFrame []byte
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(msg.Channel) {
			continue
		}
		var frame []byte
		var err error
		if c.json {
			if jsonFrame == nil {
				jsonFrame, err = encodeJSON(msg)
			}
			frame = jsonFrame
		} else {
			if binFrame == nil {
				binFrame, err = encodeProto(msg)
			}
			frame = binFrame
		}
		if err != nil {
			h.logger.Warn("ws: encode frame failed",
				slog.String("channel", msg.Channel),
				slog.String("error", err.Error()),
			)
			return
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("ws: dropping message for slow client", slog.String("channel", msg.Channel))
		}
	}
}

// subscribe forwards messages of one bus pattern to the broadcast loop.
func (h *Hub) subscribe(ctx context.Context, pattern string) {
	msgs, err := h.bus.Subscribe(ctx, pattern)
	if err != nil {
		h.logger.Error("ws: failed to subscribe",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: subscribed", slog.String("pattern", pattern))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: subscription closed", slog.String("pattern", pattern))
				return
			}
			select {
			case h.broadcast <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client, subscribed to
// every channel until it says otherwise.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		json: r.URL.Query().Get("format") == "json",
		subs: make(map[string]bool),
	}
	for _, p := range busPatterns {
		c.subs[p] = true
	}

	c.sendStatus()
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// encodeProto wraps msg in a structpb envelope. Payloads that are not JSON
// are carried as strings.
func encodeProto(msg domain.Message) ([]byte, error) {
	var payload any
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		payload = string(msg.Payload)
	}
	s, err := structpb.NewStruct(map[string]any{
		"channel": msg.Channel,
		"payload": payload,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func encodeJSON(msg domain.Message) ([]byte, error) {
	payload := json.RawMessage(msg.Payload)
	if !json.Valid(msg.Payload) {
		quoted, err := json.Marshal(string(msg.Payload))
		if err != nil {
			return nil, err
		}
		payload = quoted
	}
	return json.Marshal(struct {
		Channel string          `json:"channel"`
		Payload json.RawMessage `json:"payload"`
	}{msg.Channel, payload})
}

// sendStatus queues the hub status so clients can mark the connection live
// before any funding event flows.
func (c *client) sendStatus() {
	cfg := c.hub.cfg
	payload, err := json.Marshal(map[string]any{
		"mode":           cfg.Mode,
		"account":        cfg.Account,
		"uptime_seconds": max(0, int64(time.Since(cfg.StartedAt).Seconds())),
	})
	if err != nil {
		return
	}
	msg := domain.Message{Channel: StatusChannel, Payload: payload}
	encode := encodeProto
	if c.json {
		encode = encodeJSON
	}
	frame, err := encode(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// readPump handles subscription changes sent by the client.
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
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[strings.ToLower(ch)] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, strings.ToLower(ch))
		}
	case "only":
		c.subs = make(map[string]bool, len(msg.Channels))
		for _, ch := range msg.Channels {
			c.subs[strings.ToLower(ch)] = true
		}
	}
}

// isSubscribed reports whether channel matches a subscription exactly or by
// prefix pattern ("ch:funding:*").
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// writePump writes queued frames and periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	frameType := websocket.BinaryMessage
	if c.json {
		frameType = websocket.TextMessage
	}

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(frameType, message); err != nil {
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
