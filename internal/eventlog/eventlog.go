// Package eventlog is a bounded, owned ring buffer of recent operator-facing
// events. When full, the oldest event is evicted.
package eventlog

import (
	"sync"
	"time"
)

// Kind classifies an event.
type Kind string

const (
	KindCycle     Kind = "cycle"
	KindDecision  Kind = "decision"
	KindDetected  Kind = "detected"
	KindRejected  Kind = "rejected"
	KindExpired   Kind = "expired"
	KindExecution Kind = "execution"
	KindFailure   Kind = "failure"
	KindHealth    Kind = "health"
)

// Event is a single log entry. Seq increases monotonically per Log.
type Event struct {
	Seq     uint64            `json:"seq"`
	At      time.Time         `json:"at"`
	Kind    Kind              `json:"kind"`
	Token   string            `json:"token,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Log is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	buf     []Event
	head    int // index of the oldest event
	size    int
	seq     uint64
	dropped uint64
	now     func() time.Time
}

// New returns a Log holding at most capacity events. A capacity below one is
// raised to one.
func New(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{buf: make([]Event, capacity), now: time.Now}
}

// Append records an event, stamping Seq and, when zero, At. It returns the
// stored copy.
func (l *Log) Append(e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	e.Seq = l.seq
	if e.At.IsZero() {
		e.At = l.now().UTC()
	}

	if l.size == len(l.buf) {
		l.buf[l.head] = e
		l.head = (l.head + 1) % len(l.buf)
		l.dropped++
		return e
	}
	l.buf[(l.head+l.size)%len(l.buf)] = e
	l.size++
	return e
}

// Add is shorthand for Append with the common fields.
func (l *Log) Add(kind Kind, token, message string) {
	l.Append(Event{Kind: kind, Token: token, Message: message})
}

// Recent returns up to n events, newest first. n <= 0 returns everything.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.size {
		n = l.size
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.head + l.size - 1 - i) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

// Since returns events with Seq greater than seq, oldest first.
func (l *Log) Since(seq uint64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Event
	for i := 0; i < l.size; i++ {
		e := l.buf[(l.head+i)%len(l.buf)]
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of buffered events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Cap returns the capacity.
func (l *Log) Cap() int { return len(l.buf) }

// Dropped returns how many events were evicted.
func (l *Log) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
