package ws

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// control is a message a client sends to change its channels.
type control struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// controlAck answers a control message on the status channel.
type controlAck struct {
	Action     string   `json:"action"`
	Subscribed []string `json:"subscribed"`
	Unknown    []string `json:"unknown,omitempty"`
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string
	send   chan *websocket.PreparedMessage

	mu   sync.RWMutex
	subs map[string]bool

	qmu    sync.Mutex
	closed bool
}

func newClient(h *Hub, conn *websocket.Conn, remote string) *client {
	c := &client{
		hub:    h,
		conn:   conn,
		remote: remote,
		send:   make(chan *websocket.PreparedMessage, sendBufferSize),
		subs:   make(map[string]bool, len(defaultChannels)),
	}
	for _, ch := range defaultChannels {
		c.subs[ch] = true
	}
	return c
}

// enqueue reports false when the client's queue is full or closed.
func (c *client) enqueue(frame *websocket.PreparedMessage) bool {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) enqueueJSON(channel string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	data, err := json.Marshal(Envelope{Channel: channel, Data: payload})
	if err != nil {
		return
	}
	if frame, err := websocket.NewPreparedMessage(websocket.TextMessage, data); err == nil {
		c.enqueue(frame)
	}
}

// close ends the write pump, which then sends a close frame.
func (c *client) close() {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

func (c *client) apply(msg control) controlAck {
	c.mu.Lock()
	defer c.mu.Unlock()

	ack := controlAck{Action: msg.Action}
	for _, ch := range msg.Channels {
		if !slices.Contains(defaultChannels, ch) {
			ack.Unknown = append(ack.Unknown, ch)
			continue
		}
		if msg.Action == "subscribe" {
			c.subs[ch] = true
		} else {
			delete(c.subs, ch)
		}
	}
	for ch := range c.subs {
		ack.Subscribed = append(ack.Subscribed, ch)
	}
	slices.Sort(ack.Subscribed)
	return ack
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("remote", c.remote), slog.String("error", err.Error()))
			}
			return
		}
		var msg control
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		if msg.Action == "subscribe" || msg.Action == "unsubscribe" {
			c.enqueueJSON(ChannelStatus, c.apply(msg))
		}
	}
}

// writePump drains the queue and pings every pingPeriod. It owns all
// writes to the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WritePreparedMessage(frame); err != nil {
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
