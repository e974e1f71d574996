package execution

import (
	"context"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/metrics"
)

// StrategyTier is the minimum wallet balance at which a strategy may trade.
type StrategyTier struct {
	Name          string
	MinBalanceSOL float64
}

// PortfolioConfig carries the static part of the portfolio context.
type PortfolioConfig struct {
	MaxConcurrentPositions int
	RiskTolerance          float64
	MinConfidence          float64
	MinPositionSize        float64
	MaxPositionSize        float64
	Tiers                  []StrategyTier
}

// Portfolio assembles the decision engine's view of the wallet from the
// balance tracker and the shared position book.
type Portfolio struct {
	cfg       PortfolioConfig
	balances  *BalanceTracker
	positions domain.PositionBook
	metrics   *metrics.Registry
}

// NewPortfolio creates a Portfolio.
func NewPortfolio(cfg PortfolioConfig, balances *BalanceTracker, positions domain.PositionBook, m *metrics.Registry) *Portfolio {
	return &Portfolio{cfg: cfg, balances: balances, positions: positions, metrics: m}
}

// Context returns the current portfolio context. Failing to read the
// position book is a collaborator failure; callers must not decide without
// it.
func (p *Portfolio) Context(ctx context.Context) (domain.PortfolioContext, error) {
	open, err := p.positions.Count(ctx)
	if err != nil {
		return domain.PortfolioContext{}, &domain.CollaboratorUnavailable{Name: "store", Err: err}
	}
	p.metrics.SetOpenPositions(open)

	return domain.PortfolioContext{
		AvailableBalance:       p.balances.Available(),
		OpenPositions:          open,
		MaxConcurrentPositions: p.cfg.MaxConcurrentPositions,
		RiskTolerance:          p.cfg.RiskTolerance,
		MinConfidence:          p.cfg.MinConfidence,
		MinPositionSize:        p.cfg.MinPositionSize,
		MaxPositionSize:        p.cfg.MaxPositionSize,
	}, nil
}

// StrategyEnabled reports whether the wallet balance meets strategy's tier.
// Strategies without a tier are always enabled.
func (p *Portfolio) StrategyEnabled(strategy string) bool {
	for _, t := range p.cfg.Tiers {
		if t.Name == strategy {
			return p.balances.Balance() >= t.MinBalanceSOL
		}
	}
	return true
}

// Strategies reports the enablement of every tiered strategy.
func (p *Portfolio) Strategies() map[string]bool {
	out := make(map[string]bool, len(p.cfg.Tiers))
	for _, t := range p.cfg.Tiers {
		out[t.Name] = p.StrategyEnabled(t.Name)
	}
	return out
}
