// Package reflex is the fast path: it watches DEX programs for new pools,
// enriches each detection, and snipes the safe ones without waiting for the
// pipeline.
package reflex

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/eventlog"
	"github.com/alanyoungcy/sniperbot/internal/metrics"
	"github.com/alanyoungcy/sniperbot/internal/platform/solanaws"
)

const (
	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// seenTTL is how long a signature is remembered for duplicate delivery.
	seenTTL = 10 * time.Minute

	// seenCap bounds the remembered signatures; the oldest go first.
	seenCap = 4096
)

type seenEntry struct {
	sig string
	at  time.Time
}

// Detection is a pool-creation transaction seen in the log stream.
type Detection struct {
	Signature  string
	Slot       uint64
	Program    string
	Dex        domain.DexOrigin
	DetectedAt time.Time
}

// creationMarkers are log lines emitted by each program's pool-creating
// instruction.
var creationMarkers = map[domain.DexOrigin][]string{
	domain.DexRaydiumAMM:  {"initialize2"},
	domain.DexRaydiumCLMM: {"Instruction: CreatePool"},
	domain.DexPumpFun:     {"Instruction: Create"},
}

// IsPoolCreation reports whether logs from program contain a pool-creation
// instruction.
func IsPoolCreation(program string, logs []string) bool {
	markers := creationMarkers[domain.DexForProgram(program)]
	for _, line := range logs {
		for _, m := range markers {
			if strings.HasSuffix(line, m) || strings.Contains(line, m+":") {
				return true
			}
		}
	}
	return false
}

// ListenerConfig configures the log-stream listener.
type ListenerConfig struct {
	URL           string
	Programs      []string
	Commitment    string
	QueueSize     int
	MaxEnrich     int
	EnrichTimeout time.Duration
}

// ListenerStats counts listener outcomes.
type ListenerStats struct {
	Notifications int64 `json:"notifications"`
	Detections    int64 `json:"detections"`
	Emitted       int64 `json:"emitted"`
	Dropped       int64 `json:"dropped"`
	EnrichFailed  int64 `json:"enrich_failed"`
	Reconnects    int64 `json:"reconnects"`
}

// Listener subscribes to program logs and emits enriched opportunities into a
// bounded channel. The feed is never blocked: a full channel or a saturated
// enrichment pool drops the detection.
type Listener struct {
	cfg      ListenerConfig
	enricher Enricher
	out      chan domain.NewTokenOpportunity
	sem      chan struct{}
	metrics  *metrics.Registry
	events   *eventlog.Log
	logger   *slog.Logger

	seenMu   sync.Mutex
	seen     map[string]time.Time
	seenRing []seenEntry
	seenNext int

	connected     atomic.Bool
	notifications atomic.Int64
	detections    atomic.Int64
	emitted       atomic.Int64
	dropped       atomic.Int64
	enrichFailed  atomic.Int64
	reconnects    atomic.Int64
}

// NewListener creates a listener. m and events may be nil.
func NewListener(cfg ListenerConfig, enricher Enricher, m *metrics.Registry, events *eventlog.Log, logger *slog.Logger) *Listener {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxEnrich <= 0 {
		cfg.MaxEnrich = 8
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		cfg:      cfg,
		enricher: enricher,
		out:      make(chan domain.NewTokenOpportunity, cfg.QueueSize),
		sem:      make(chan struct{}, cfg.MaxEnrich),
		metrics:  m,
		events:   events,
		logger:   logger.With(slog.String("component", "reflex_listener")),
		seen:     make(map[string]time.Time, seenCap),
		seenRing: make([]seenEntry, seenCap),
	}
}

// Opportunities is the bounded output channel.
func (l *Listener) Opportunities() <-chan domain.NewTokenOpportunity { return l.out }

// Connected reports whether a subscription is currently live.
func (l *Listener) Connected() bool { return l.connected.Load() }

// Run connects, subscribes to every configured program, and runs until ctx
// is cancelled. It reconnects with exponential backoff on disconnect.
func (l *Listener) Run(ctx context.Context) error {
	if len(l.cfg.Programs) == 0 {
		l.logger.InfoContext(ctx, "no programs to watch, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		start := time.Now()
		err := l.runConnection(ctx)
		l.connected.Store(false)
		if ctx.Err() != nil {
			return nil
		}
		// A connection that stayed up for a while resets the backoff.
		if time.Since(start) > maxReconnectDelay {
			delay = reconnectDelay
		}
		l.reconnects.Add(1)
		l.logger.WarnContext(ctx, "log stream disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (l *Listener) runConnection(ctx context.Context) error {
	client := solanaws.NewClient(l.cfg.URL)
	defer client.Close()

	client.OnLogs(func(n solanaws.LogsNotification) { l.handle(ctx, n) })

	if err := client.Connect(ctx); err != nil {
		return err
	}
	for _, p := range l.cfg.Programs {
		if err := client.SubscribeLogs(p, l.cfg.Commitment); err != nil {
			return err
		}
	}
	l.connected.Store(true)
	l.logger.InfoContext(ctx, "log stream subscribed", slog.Int("programs", len(l.cfg.Programs)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.Done():
		return client.Err()
	}
}

func (l *Listener) handle(ctx context.Context, n solanaws.LogsNotification) {
	l.notifications.Add(1)
	if n.Failed() || n.Signature == "" || !IsPoolCreation(n.Program, n.Logs) {
		return
	}
	if !l.markSeen(n.Signature, n.ReceivedAt) {
		return
	}

	d := Detection{
		Signature:  n.Signature,
		Slot:       n.Slot,
		Program:    n.Program,
		Dex:        domain.DexForProgram(n.Program),
		DetectedAt: n.ReceivedAt,
	}
	l.detections.Add(1)

	select {
	case l.sem <- struct{}{}:
	default:
		l.drop(ctx, d.Signature, "enrichment saturated")
		return
	}
	go func() {
		defer func() { <-l.sem }()
		l.enrich(ctx, d)
	}()
}

func (l *Listener) enrich(ctx context.Context, d Detection) {
	ectx, cancel := context.WithTimeout(ctx, l.cfg.EnrichTimeout)
	defer cancel()

	opp, err := l.enricher.Enrich(ectx, d)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.enrichFailed.Add(1)
		l.metrics.IncReflex("enrich_failed")
		level := slog.LevelWarn
		if errors.Is(err, ErrNotPoolCreation) {
			level = slog.LevelDebug
		}
		l.logger.Log(ctx, level, "enrich detection failed",
			slog.String("signature", d.Signature),
			slog.String("dex", string(d.Dex)),
			slog.String("error", err.Error()),
		)
		return
	}
	l.Emit(ctx, opp)
}

// Emit hands an opportunity to the sniper without blocking.
func (l *Listener) Emit(ctx context.Context, opp domain.NewTokenOpportunity) bool {
	select {
	case l.out <- opp:
		l.emitted.Add(1)
		if l.events != nil {
			l.events.Add(eventlog.KindDetected, opp.TokenAddress, "new pool on "+string(opp.Dex))
		}
		return true
	default:
		l.drop(ctx, opp.TokenAddress, "opportunity queue full")
		return false
	}
}

func (l *Listener) drop(ctx context.Context, subject, reason string) {
	l.dropped.Add(1)
	l.metrics.IncListenerDropped()
	l.logger.WarnContext(ctx, "detection dropped",
		slog.String("subject", subject),
		slog.String("reason", reason),
	)
}

// markSeen records sig and reports whether it was new.
func (l *Listener) markSeen(sig string, now time.Time) bool {
	l.seenMu.Lock()
	defer l.seenMu.Unlock()

	if at, ok := l.seen[sig]; ok && now.Sub(at) <= seenTTL {
		return false
	}

	// Overwrite the oldest slot. Its signature is forgotten unless it was
	// re-recorded later under a newer slot.
	old := l.seenRing[l.seenNext]
	if old.sig != "" && l.seen[old.sig].Equal(old.at) {
		delete(l.seen, old.sig)
	}
	l.seenRing[l.seenNext] = seenEntry{sig: sig, at: now}
	l.seenNext = (l.seenNext + 1) % len(l.seenRing)
	l.seen[sig] = now
	return true
}

// Stats returns a snapshot of the listener counters.
func (l *Listener) Stats() ListenerStats {
	return ListenerStats{
		Notifications: l.notifications.Load(),
		Detections:    l.detections.Load(),
		Emitted:       l.emitted.Load(),
		Dropped:       l.dropped.Load(),
		EnrichFailed:  l.enrichFailed.Load(),
		Reconnects:    l.reconnects.Load(),
	}
}

func errString(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}
