// Package notify pushes operator alerts to chat channels. A Notifier filters
// messages by event type, throttles repeated failures and fans each message
// out to every configured Sender.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Event types.
const (
	EventStartup       = "startup"
	EventShutdown      = "shutdown"
	EventSnipeExecuted = "snipe_executed"
	EventOrderFailed   = "order_failed"
	EventCycleFailed   = "cycle_failed"
)

const deliveryTimeout = 10 * time.Second

// Severity selects how a sender styles a message. Warn and above are
// subject to the cooldown.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Field is a labelled value rendered below the body.
type Field struct {
	Name  string
	Value string
}

// Message is one alert.
type Message struct {
	Event    string
	Title    string
	Body     string
	Severity Severity
	Fields   []Field
}

// Sender delivers a message to one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Config controls filtering and throttling. An empty Events list allows
// every event. Cooldown is the minimum spacing between warning or error
// messages of one event type; zero disables throttling.
type Config struct {
	Events   []string
	Cooldown time.Duration
}

// Notifier is safe for concurrent use. A nil Notifier drops everything.
type Notifier struct {
	senders  []Sender
	allowed  map[string]bool
	cooldown time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	suppressed map[string]int
}

func NewNotifier(senders []Sender, cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders:    senders,
		allowed:    allowed,
		cooldown:   cfg.Cooldown,
		logger:     logger.With(slog.String("component", "notifier")),
		limiters:   make(map[string]*rate.Limiter),
		suppressed: make(map[string]int),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify delivers msg unless its event is filtered out or still cooling
// down. A message sent after a cooldown notes how many were held back.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.allowed) > 0 && !n.allowed[msg.Event] {
		return nil
	}
	if !n.admit(&msg) {
		n.logger.DebugContext(ctx, "notification throttled", slog.String("event", msg.Event))
		return nil
	}
	return n.dispatch(ctx, msg)
}

// NotifyAll delivers msg to every sender, ignoring the filter and cooldown.
func (n *Notifier) NotifyAll(ctx context.Context, msg Message) error {
	if !n.Enabled() {
		return nil
	}
	return n.dispatch(ctx, msg)
}

// Go runs Notify in the background under its own timeout so a slow webhook
// never holds up the caller.
func (n *Notifier) Go(msg Message) {
	if !n.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()
		_ = n.Notify(ctx, msg)
	}()
}

func (n *Notifier) admit(msg *Message) bool {
	if n.cooldown <= 0 || msg.Severity < SeverityWarn {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	lim, ok := n.limiters[msg.Event]
	if !ok {
		lim = rate.NewLimiter(rate.Every(n.cooldown), 1)
		n.limiters[msg.Event] = lim
	}
	if !lim.Allow() {
		n.suppressed[msg.Event]++
		return false
	}
	if held := n.suppressed[msg.Event]; held > 0 {
		msg.Fields = append(msg.Fields, Field{Name: "suppressed", Value: fmt.Sprintf("%d similar since last alert", held)})
		delete(n.suppressed, msg.Event)
	}
	return true
}

// dispatch tries every sender; one failing channel does not starve the rest.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.WarnContext(ctx, "notification failed",
				slog.String("sender", s.Name()),
				slog.String("event", msg.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
