// Package ws streams operator events to websocket clients. It tails the
// in-process event log and the execution stream, and relays new-token
// announcements from the signal bus.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/eventlog"
	"github.com/alanyoungcy/sniperbot/internal/server/middleware"
)

const (
	defaultPollInterval = 250 * time.Millisecond

	// streamBatch caps the entries taken from a stream per poll.
	streamBatch = 100
)

// Channel names a client can subscribe to.
const (
	ChannelEvents     = "events"
	ChannelNewTokens  = domain.ChannelNewTokens
	ChannelExecutions = domain.StreamExecutions
	ChannelStatus     = "status"
)

var defaultChannels = []string{ChannelEvents, ChannelNewTokens, ChannelExecutions, ChannelStatus}

// Envelope is the frame sent to clients.
type Envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Config captures the metadata sent to clients on connect.
type Config struct {
	Mode           string
	StartedAt      time.Time
	AllowedOrigins []string
	PollInterval   time.Duration
}

// Hub fans frames out to connected clients. Each source runs in its own
// goroutine and writes straight into the clients' queues; a client whose
// queue is full is disconnected.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	events   *eventlog.Log
	bus      domain.SignalBus
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub creates a hub. events and bus may be nil; the corresponding
// channel then stays silent.
func NewHub(events *eventlog.Log, bus domain.SignalBus, cfg Config, logger *slog.Logger) *Hub {
	if cfg.Mode == "" {
		cfg.Mode = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	allowed := middleware.OriginMatcher(cfg.AllowedOrigins)
	return &Hub{
		clients: make(map[*client]struct{}),
		events:  events,
		bus:     bus,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed(origin)
			},
		},
		logger: logger.With(slog.String("component", "ws_hub")),
	}
}

// Run feeds the hub until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	var sources sync.WaitGroup
	if h.events != nil {
		var last uint64
		if recent := h.events.Recent(1); len(recent) > 0 {
			last = recent[0].Seq
		}
		sources.Go(func() { h.tailEvents(ctx, last) })
	}
	if h.bus != nil {
		sources.Go(func() { h.relay(ctx, domain.ChannelNewTokens) })
		cursor := streamCursor(time.Now())
		sources.Go(func() { h.tailStream(ctx, domain.StreamExecutions, ChannelExecutions, cursor) })
	}

	<-ctx.Done()
	sources.Wait()

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
	return nil
}

// fanout queues env for every client subscribed to its channel. The frame
// is encoded once for all of them.
func (h *Hub) fanout(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	frame, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if c.isSubscribed(env.Channel) && !c.enqueue(frame) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("disconnecting slow client", slog.String("channel", env.Channel), slog.String("remote", c.remote))
		h.remove(c)
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Info("client connected", slog.String("remote", c.remote), slog.Int("total_clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.close()
	h.logger.Info("client disconnected", slog.String("remote", c.remote), slog.Int("total_clients", len(h.clients)))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and attaches the connection to the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := newClient(h, conn, r.RemoteAddr)
	c.enqueueJSON(ChannelStatus, h.hello())
	if !h.add(c) {
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// hello is the first status frame; clients use it to mark the connection
// live before any event arrives.
func (h *Hub) hello() map[string]any {
	uptime := max(int64(time.Since(h.cfg.StartedAt).Seconds()), 0)
	out := map[string]any{
		"mode":           h.cfg.Mode,
		"uptime_seconds": uptime,
		"channels":       defaultChannels,
	}
	if h.events != nil {
		if recent := h.events.Recent(1); len(recent) > 0 {
			out["last_seq"] = recent[0].Seq
		}
	}
	return out
}

func (h *Hub) tick(ctx context.Context, each func() bool) {
	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !each() {
				return
			}
		}
	}
}

// tailEvents forwards event log entries with a sequence number above last,
// oldest first.
func (h *Hub) tailEvents(ctx context.Context, last uint64) {
	h.tick(ctx, func() bool {
		for _, e := range h.events.Since(last) {
			last = e.Seq
			if data, err := json.Marshal(e); err == nil {
				h.fanout(Envelope{Channel: ChannelEvents, Data: data})
			}
		}
		return true
	})
}

// streamCursor is a stream id that sorts after every entry Redis assigned
// before t.
func streamCursor(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10) + "-0"
}

// tailStream forwards each JSON payload appended to stream after cursor.
// Read errors are logged and retried on the next tick.
func (h *Hub) tailStream(ctx context.Context, stream, channel, cursor string) {
	h.tick(ctx, func() bool {
		msgs, err := h.bus.StreamRead(ctx, stream, cursor, streamBatch)
		if err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("stream read failed", slog.String("stream", stream), slog.String("error", err.Error()))
			}
			return ctx.Err() == nil
		}
		for _, m := range msgs {
			cursor = m.ID
			if json.Valid(m.Payload) {
				h.fanout(Envelope{Channel: channel, Data: m.Payload})
			}
		}
		return true
	})
}

// relay forwards one signal bus channel until the subscription ends.
func (h *Hub) relay(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("bus subscribe failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("bus subscription closed", slog.String("channel", channel))
				return
			}
			if json.Valid(data) {
				h.fanout(Envelope{Channel: channel, Data: data})
			}
		}
	}
}
