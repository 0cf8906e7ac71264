// Package api provides WebSocket functionality for real-time updates.
package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/atlas-desktop/futures-core/internal/orchestrator"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType defines WebSocket message types pushed by the monitoring hub.
type MessageType string

const (
	MsgTypeGuardianMode MessageType = "guardian_mode"
	MsgTypeMarginLevel  MessageType = "margin_level"
	MsgTypeOrderState   MessageType = "order_state"
	MsgTypeTradeUpdate  MessageType = "trade_update"
	MsgTypeRejection    MessageType = "rejection"
	MsgTypePnLUpdate    MessageType = "pnl_update"
	MsgTypeHeartbeat    MessageType = "heartbeat"

	MsgTypeSubscribe   MessageType = "subscribe"
	MsgTypeUnsubscribe MessageType = "unsubscribe"
)

// WSMessage is a WebSocket message.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client is a WebSocket client connection. The monitoring surface is
// read-only: a client may subscribe/unsubscribe from channels but cannot
// issue any command that mutates core state.
type Client struct {
	id            string
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]bool
	mu            sync.RWMutex
}

// Hub manages WebSocket connections and channel subscriptions.
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	channels   map[string]map[*Client]bool
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger.Named("api-hub"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		channels:   make(map[string]map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's registration/broadcast/heartbeat loop. Call it once
// in its own goroutine; it returns when Close is called.
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("id", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				for channel := range client.subscriptions {
					if clients, ok := h.channels[channel]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.channels, channel)
						}
					}
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("id", client.id))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()

		case <-ticker.C:
			h.sendHeartbeat()

		case <-h.done:
			return
		}
	}
}

// Close stops the hub's run loop. It does not close connected clients.
func (h *Hub) Close() {
	close(h.done)
}

func (h *Hub) sendHeartbeat() {
	msg := WSMessage{Type: MsgTypeHeartbeat, Timestamp: time.Now().UnixMilli()}
	data, _ := json.Marshal(msg)

	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
	h.mu.RUnlock()
}

// Subscribe subscribes a client to a channel.
func (h *Hub) Subscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][client] = true

	client.mu.Lock()
	client.subscriptions[channel] = true
	client.mu.Unlock()
}

// Unsubscribe unsubscribes a client from a channel.
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.channels[channel]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}

	client.mu.Lock()
	delete(client.subscriptions, channel)
	client.mu.Unlock()
}

func (h *Hub) publish(channel string, msgType MessageType, data interface{}) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal message data", zap.Error(err))
		return
	}
	msg := WSMessage{Type: msgType, Channel: channel, Data: dataBytes, Timestamp: time.Now().UnixMilli()}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.channels[channel]; ok {
		for client := range clients {
			select {
			case client.send <- msgBytes:
			default:
			}
		}
	}
}

// BroadcastGuardianMode publishes a Guardian mode transition to the
// "guardian" channel (spec.md §4.3).
func (h *Hub) BroadcastGuardianMode(mode types.GuardianMode, trigger, reason string) {
	h.publish("guardian", MsgTypeGuardianMode, map[string]interface{}{
		"mode": mode, "trigger": trigger, "reason": reason,
	})
}

// BroadcastMarginLevel publishes a margin level change to the "margin" channel.
func (h *Hub) BroadcastMarginLevel(level types.MarginLevel) {
	h.publish("margin", MsgTypeMarginLevel, map[string]interface{}{"level": level})
}

// BroadcastOrderState publishes an order FSM transition to the "orders"
// channel and to a per-symbol sub-channel.
func (h *Hub) BroadcastOrderState(localID, symbol string, old, new types.OrderState) {
	payload := map[string]interface{}{"local_id": localID, "symbol": symbol, "old": old, "new": new}
	h.publish("orders", MsgTypeOrderState, payload)
	h.publish("orders:"+symbol, MsgTypeOrderState, payload)
}

// BroadcastTrade publishes a fill to the "trades" channel and its per-symbol
// sub-channel.
func (h *Hub) BroadcastTrade(trade types.Trade) {
	h.publish("trades", MsgTypeTradeUpdate, trade)
	h.publish("trades:"+trade.Symbol, MsgTypeTradeUpdate, trade)
}

// BroadcastRejection publishes a protection/edge-gate rejection to the
// "rejections" channel.
func (h *Hub) BroadcastRejection(r orchestrator.RejectionRecord) {
	h.publish("rejections", MsgTypeRejection, r)
}

// BroadcastPnL publishes a realized/unrealized P&L snapshot to the "pnl" channel.
func (h *Hub) BroadcastPnL(symbol string, realized, unrealized interface{}) {
	h.publish("pnl", MsgTypePnLUpdate, map[string]interface{}{
		"symbol": symbol, "realized": realized, "unrealized": unrealized,
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient creates a new client bound to hub over conn.
func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:            id,
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
	}
}

// ReadPump pumps subscribe/unsubscribe requests from the WebSocket to the
// hub. Any other message type is ignored; this surface takes no commands.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket read error", zap.Error(err))
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.logger.Warn("invalid websocket message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case MsgTypeSubscribe:
			c.hub.Subscribe(c, msg.Channel)
		case MsgTypeUnsubscribe:
			c.hub.Unsubscribe(c, msg.Channel)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
