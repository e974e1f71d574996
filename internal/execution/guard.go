package execution

import (
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// signedOrder is everything produced for an order before it leaves the
// process. It is built once per order id and reused by later attempts.
type signedOrder struct {
	payloads    []string // base64 transactions, swap first
	signature   string   // swap transaction signature
	bundle      bool
	tipLamports uint64
	outMint     string
	quotedOut   uint64
	inAmount    uint64
}

type guardEntry struct {
	signed   *signedOrder
	sent     bool
	inFlight bool
	seenAt   time.Time
}

// submissionGuard maps each order id to exactly one signed payload. An id
// may be attempted again only while nothing was sent for it.
type submissionGuard struct {
	mu      sync.Mutex
	entries map[string]*guardEntry
	ttl     time.Duration
	now     func() time.Time
}

func newSubmissionGuard(ttl time.Duration) *submissionGuard {
	return &submissionGuard{
		entries: make(map[string]*guardEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// begin claims id for one attempt and returns any payload signed by an
// earlier attempt that failed before sending.
func (g *submissionGuard) begin(id string) (*signedOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if ok && (e.sent || e.inFlight) {
		return nil, fmt.Errorf("execution: order %s: %w", id, domain.ErrDuplicateSubmission)
	}
	if !ok {
		e = &guardEntry{}
		g.entries[id] = e
	}
	e.inFlight = true
	e.seenAt = g.now()
	return e.signed, nil
}

// store records the signed payload for id. The first payload wins.
func (g *submissionGuard) store(id string, s *signedOrder) *signedOrder {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		e = &guardEntry{inFlight: true, seenAt: g.now()}
		g.entries[id] = e
	}
	if e.signed == nil {
		e.signed = s
	}
	return e.signed
}

// markSent records that a send was attempted for id. From here on the id is
// permanently spent.
func (g *submissionGuard) markSent(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[id]; ok {
		e.sent = true
	}
}

// finish ends the current attempt for id.
func (g *submissionGuard) finish(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[id]; ok {
		e.inFlight = false
	}
}

// cleanup forgets settled ids older than the TTL.
func (g *submissionGuard) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for id, e := range g.entries {
		if !e.inFlight && now.Sub(e.seenAt) >= g.ttl {
			delete(g.entries, id)
		}
	}
}
