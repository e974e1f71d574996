package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/metrics"
)

type fixedBalance struct {
	lamports uint64
	err      error
	account  string
}

func (f *fixedBalance) GetBalance(_ context.Context, account string) (uint64, error) {
	f.account = account
	return f.lamports, f.err
}

func TestBalanceTrackerReservations(t *testing.T) {
	b := NewBalanceTracker(nil, "", metrics.New(), quietLogger())
	b.Set(1.0)

	require.NoError(t, b.Reserve("o1", 0.4))
	require.NoError(t, b.Reserve("o2", 0.5))
	assert.InDelta(t, 0.1, b.Available(), 1e-12)
	assert.InDelta(t, 0.9, b.Reserved(), 1e-12)

	err := b.Reserve("o3", 0.2)
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))

	err = b.Reserve("o1", 0.01)
	assert.True(t, errors.Is(err, domain.ErrAlreadyReserved))

	assert.True(t, errors.Is(b.Reserve("o4", 0), domain.ErrInvalidOrder))

	b.Release("o2")
	assert.InDelta(t, 0.6, b.Available(), 1e-12)

	b.Commit("o1", 0.41)
	assert.InDelta(t, 0.59, b.Balance(), 1e-12)
	assert.InDelta(t, 0.59, b.Available(), 1e-12)
	assert.Zero(t, b.Reserved())

	b.Commit("unknown", 5)
	assert.Zero(t, b.Balance(), "balance never goes negative")
}

func TestBalanceTrackerRefresh(t *testing.T) {
	src := &fixedBalance{lamports: 2_500_000_000}
	b := NewBalanceTracker(src, "Wallet111", nil, quietLogger())

	require.NoError(t, b.Refresh(context.Background()))
	assert.Equal(t, "Wallet111", src.account)
	assert.InDelta(t, 2.5, b.Balance(), 1e-12)
	assert.False(t, b.RefreshedAt().IsZero())

	src.err = fmt.Errorf("node down")
	err := b.Refresh(context.Background())
	var cu *domain.CollaboratorUnavailable
	require.True(t, errors.As(err, &cu))
	assert.Equal(t, "rpc", cu.Name)
	assert.InDelta(t, 2.5, b.Balance(), 1e-12, "failed refresh keeps the last balance")
}

func TestBalanceTrackerConcurrentReserve(t *testing.T) {
	b := NewBalanceTracker(nil, "", nil, quietLogger())
	b.Set(1.0)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if b.Reserve(fmt.Sprintf("o%d", i), 0.1) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, ok, "exactly the affordable reservations succeed")
	assert.InDelta(t, 0, b.Available(), 1e-12)
}

func TestSubmissionGuard(t *testing.T) {
	g := newSubmissionGuard(0)

	prev, err := g.begin("o1")
	require.NoError(t, err)
	assert.Nil(t, prev)

	_, err = g.begin("o1")
	assert.True(t, errors.Is(err, domain.ErrDuplicateSubmission), "concurrent attempt is rejected")

	s := &signedOrder{payloads: []string{"tx"}, signature: "sig"}
	assert.Same(t, s, g.store("o1", s))
	assert.Same(t, s, g.store("o1", &signedOrder{}), "first payload wins")
	g.finish("o1")

	prev, err = g.begin("o1")
	require.NoError(t, err, "nothing was sent, so a retry is allowed")
	assert.Same(t, s, prev, "the retry reuses the signed payload")

	g.markSent("o1")
	g.finish("o1")
	_, err = g.begin("o1")
	assert.True(t, errors.Is(err, domain.ErrDuplicateSubmission))

	g.cleanup()
	_, err = g.begin("o1")
	assert.NoError(t, err, "settled entries are forgotten after the ttl")
}
