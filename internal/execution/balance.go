package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/metrics"
)

// BalanceSource reads the wallet balance in lamports.
type BalanceSource interface {
	GetBalance(ctx context.Context, account string) (uint64, error)
}

// BalanceTracker is the single authoritative view of spendable SOL. Orders
// reserve their notional before submission; the reservation is committed on
// a fill and released otherwise, so concurrent submitters cannot overspend.
type BalanceTracker struct {
	mu          sync.Mutex
	source      BalanceSource
	account     string
	balance     decimal.Decimal
	reserved    map[string]decimal.Decimal
	refreshedAt time.Time

	metrics *metrics.Registry
	logger  *slog.Logger
}

// NewBalanceTracker creates a tracker for account. A nil source makes
// Refresh a no-op; the balance is then whatever Set last stored.
func NewBalanceTracker(source BalanceSource, account string, m *metrics.Registry, logger *slog.Logger) *BalanceTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &BalanceTracker{
		source:   source,
		account:  account,
		reserved: make(map[string]decimal.Decimal),
		metrics:  m,
		logger:   logger.With(slog.String("component", "balance_tracker")),
	}
}

// Refresh reloads the on-chain balance.
func (b *BalanceTracker) Refresh(ctx context.Context) error {
	if b.source == nil {
		return nil
	}
	lamports, err := b.source.GetBalance(ctx, b.account)
	if err != nil {
		return &domain.CollaboratorUnavailable{Name: "rpc", Err: fmt.Errorf("get balance: %w", err)}
	}

	b.mu.Lock()
	b.balance = decU64(lamports).Shift(-9)
	b.refreshedAt = time.Now().UTC()
	avail := b.availableLocked()
	b.mu.Unlock()

	b.metrics.SetBalance(avail)
	return nil
}

// Set overwrites the balance in SOL.
func (b *BalanceTracker) Set(sol float64) {
	b.mu.Lock()
	b.balance = decimal.NewFromFloat(sol)
	avail := b.availableLocked()
	b.mu.Unlock()
	b.metrics.SetBalance(avail)
}

// Reserve earmarks amount SOL for order id.
func (b *BalanceTracker) Reserve(id string, amount float64) error {
	if !(amount > 0) {
		return fmt.Errorf("execution: reserve %s: amount %v: %w", id, amount, domain.ErrInvalidOrder)
	}
	amt := decimal.NewFromFloat(amount)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.reserved[id]; ok {
		return fmt.Errorf("execution: reserve %s: %w", id, domain.ErrAlreadyReserved)
	}
	if avail := b.balance.Sub(b.sumReservedLocked()); avail.LessThan(amt) {
		return fmt.Errorf("execution: reserve %s: need %s SOL, have %s: %w",
			id, amt.String(), avail.StringFixed(9), domain.ErrInsufficientFunds)
	}
	b.reserved[id] = amt
	return nil
}

// Commit drops the reservation for id and deducts spent SOL from the
// balance. A missing reservation only deducts.
func (b *BalanceTracker) Commit(id string, spent float64) {
	b.mu.Lock()
	delete(b.reserved, id)
	if spent > 0 {
		b.balance = b.balance.Sub(decimal.NewFromFloat(spent))
		if b.balance.IsNegative() {
			b.balance = decimal.Zero
		}
	}
	avail := b.availableLocked()
	b.mu.Unlock()
	b.metrics.SetBalance(avail)
}

// Release drops the reservation for id without spending.
func (b *BalanceTracker) Release(id string) {
	b.mu.Lock()
	delete(b.reserved, id)
	b.mu.Unlock()
}

// Available returns balance minus outstanding reservations.
func (b *BalanceTracker) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.availableLocked()
}

// Balance returns the last known balance in SOL.
func (b *BalanceTracker) Balance() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, _ := b.balance.Float64()
	return f
}

// Reserved returns the total outstanding reservations in SOL.
func (b *BalanceTracker) Reserved() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, _ := b.sumReservedLocked().Float64()
	return f
}

// RefreshedAt returns when the balance was last read from chain.
func (b *BalanceTracker) RefreshedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshedAt
}

// Run refreshes the balance every interval until ctx is cancelled.
func (b *BalanceTracker) Run(ctx context.Context, interval time.Duration) error {
	if b.source == nil || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := b.Refresh(ctx); err != nil {
				b.logger.WarnContext(ctx, "balance refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (b *BalanceTracker) sumReservedLocked() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range b.reserved {
		sum = sum.Add(v)
	}
	return sum
}

func (b *BalanceTracker) availableLocked() float64 {
	avail := b.balance.Sub(b.sumReservedLocked())
	if avail.IsNegative() {
		return 0
	}
	f, _ := avail.Float64()
	return f
}
