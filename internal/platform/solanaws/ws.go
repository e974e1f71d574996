// Package solanaws is a minimal Solana JSON-RPC PubSub client that supports
// logsSubscribe notifications.
package solanaws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// LogsNotification is one logsNotification payload.
type LogsNotification struct {
	Subscription uint64
	Program      string
	Slot         uint64
	Signature    string
	Err          json.RawMessage
	Logs         []string
	ReceivedAt   time.Time
}

// Failed reports whether the transaction carried an error.
func (n LogsNotification) Failed() bool {
	return len(n.Err) > 0 && string(n.Err) != "null"
}

// LogsHandler is called for every log notification.
type LogsHandler func(LogsNotification)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type envelope struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Method string `json:"method"`
	Params struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string          `json:"signature"`
				Err       json.RawMessage `json:"err"`
				Logs      []string        `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Client is one PubSub connection. It does not reconnect by itself; callers
// watch Done and build a new Client.
type Client struct {
	url  string
	conn *websocket.Conn

	mu      sync.Mutex
	closed  bool
	pending map[uint64]string
	subs    map[uint64]string
	nextID  atomic.Uint64

	handlerMu sync.RWMutex
	handlers  []LogsHandler

	errMu   sync.Mutex
	readErr error

	done     chan struct{}
	doneOnce sync.Once
}

// NewClient creates a client for the given websocket endpoint.
func NewClient(url string) *Client {
	return &Client{
		url:     url,
		pending: make(map[uint64]string),
		subs:    make(map[uint64]string),
		done:    make(chan struct{}),
	}
}

// Connect dials the endpoint and starts the read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("solanaws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("solanaws: connect: %w", err)
	}
	c.conn = conn

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()
	return nil
}

// SubscribeLogs sends a logsSubscribe request for transactions mentioning
// program. The subscription id is bound when the server acknowledges it.
func (c *Client) SubscribeLogs(program, commitment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("solanaws: not connected")
	}
	if commitment == "" {
		commitment = "confirmed"
	}
	id := c.nextID.Add(1)
	req := request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "logsSubscribe",
		Params: []any{
			map[string]any{"mentions": []string{program}},
			map[string]any{"commitment": commitment},
		},
	}
	if err := c.send(req); err != nil {
		return fmt.Errorf("solanaws: subscribe %s: %w", program, err)
	}
	c.pending[id] = program
	return nil
}

// Subscriptions returns the number of acknowledged subscriptions.
func (c *Client) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// OnLogs registers a handler for log notifications.
func (c *Client) OnLogs(h LogsHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Done is closed when the connection drops or Close is called.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the read loop, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

// Close shuts down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.finish(nil)

	if c.conn != nil {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return c.conn.Close()
	}
	return nil
}

// send writes a JSON request. Caller must hold c.mu.
func (c *Client) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) finish(err error) {
	c.doneOnce.Do(func() {
		c.errMu.Lock()
		c.readErr = err
		c.errMu.Unlock()
		close(c.done)
	})
}

func (c *Client) readLoop() {
	conn := c.conn
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.finish(fmt.Errorf("solanaws: read: %w: %v", domain.ErrWSDisconnect, err))
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	if env.ID != nil {
		c.mu.Lock()
		program, ok := c.pending[*env.ID]
		delete(c.pending, *env.ID)
		if ok && env.Error == nil {
			var subID uint64
			if err := json.Unmarshal(env.Result, &subID); err == nil {
				c.subs[subID] = program
			}
		}
		c.mu.Unlock()
		return
	}

	if env.Method != "logsNotification" {
		return
	}

	c.mu.Lock()
	program := c.subs[env.Params.Subscription]
	c.mu.Unlock()

	v := env.Params.Result.Value
	n := LogsNotification{
		Subscription: env.Params.Subscription,
		Program:      program,
		Slot:         env.Params.Result.Context.Slot,
		Signature:    v.Signature,
		Err:          v.Err,
		Logs:         v.Logs,
		ReceivedAt:   time.Now().UTC(),
	}

	c.handlerMu.RLock()
	handlers := c.handlers
	c.handlerMu.RUnlock()

	for _, h := range handlers {
		h(n)
	}
}
