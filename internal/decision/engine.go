// Package decision turns validated opportunities into sized trading
// decisions.
package decision

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Config holds the engine's scoring weights and gates. Scores are on a 0-10
// scale.
type Config struct {
	MinCombinedScore   float64
	WatchThreshold     float64
	HighQualityScore   float64
	QuantWeight        float64
	SentimentWeight    float64
	ScoreScale         float64
	MaxBalanceFraction float64
	PriorityHalfLife   time.Duration
	LPMinAPR           float64
	LPMinLiquidityUSD  float64
	MonitorInterval    time.Duration
	MonitorMaxDuration time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinCombinedScore:   5.0,
		WatchThreshold:     6.0,
		HighQualityScore:   3.0,
		QuantWeight:        0.6,
		SentimentWeight:    0.4,
		ScoreScale:         4,
		MaxBalanceFraction: 0.2,
		PriorityHalfLife:   30 * time.Minute,
		LPMinAPR:           25,
		LPMinLiquidityUSD:  100_000,
		MonitorInterval:    5 * time.Minute,
		MonitorMaxDuration: 24 * time.Hour,
	}
}

// highRiskTolerance is the tolerance at which High-risk candidates become
// tradable.
const highRiskTolerance = 0.8

// Engine is stateless apart from its configuration; Decide is safe for
// concurrent use.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewEngine creates an engine.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "decision_engine")),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// CombinedScore blends the quantitative score and the confidence-weighted
// sentiment into [0,10]. It is monotonically non-decreasing in both inputs.
func (e *Engine) CombinedScore(score, sentiment, confidence float64) float64 {
	wq, ws := e.cfg.QuantWeight, e.cfg.SentimentWeight
	if wq+ws <= 0 {
		return 0
	}
	quant := clamp(score/e.cfg.ScoreScale, 0, 1)
	sent := clamp((sentiment+1)/2, 0, 1) * clamp(confidence, 0, 1)
	return 10 * (wq*quant + ws*sent) / (wq + ws)
}

// Decide never fails: malformed inputs downgrade to NoAction with a reason.
func (e *Engine) Decide(opp domain.ValidatedOpportunity, pc domain.PortfolioContext) domain.TradingDecision {
	raw, sent := opp.Raw, opp.Sentiment

	if reason := invalidInput(opp, pc); reason != "" {
		return e.noAction(raw.Address, reason)
	}

	s := e.CombinedScore(raw.Score, sent.Score, sent.Confidence)
	watch := s >= e.cfg.WatchThreshold
	deferOrDrop := func(reason string) domain.TradingDecision {
		if watch {
			return e.monitor(raw.Address, s, sent.Confidence, reason)
		}
		return e.noAction(raw.Address, reason)
	}

	switch {
	case sent.Confidence < pc.MinConfidence:
		return e.noAction(raw.Address, fmt.Sprintf("sentiment confidence %.2f below minimum %.2f", sent.Confidence, pc.MinConfidence))
	case s < e.cfg.MinCombinedScore:
		return e.noAction(raw.Address, fmt.Sprintf("combined score %.2f below minimum %.2f", s, e.cfg.MinCombinedScore))
	}

	switch opp.Risk {
	case domain.RiskVeryHigh:
		return e.noAction(raw.Address, "risk level very_high")
	case domain.RiskHigh:
		if pc.RiskTolerance < highRiskTolerance {
			return deferOrDrop(fmt.Sprintf("high risk exceeds tolerance %.2f", pc.RiskTolerance))
		}
	}

	if pc.MaxConcurrentPositions > 0 && pc.OpenPositions >= pc.MaxConcurrentPositions {
		return deferOrDrop(fmt.Sprintf("position limit reached (%d/%d open)", pc.OpenPositions, pc.MaxConcurrentPositions))
	}
	if raw.Score < e.cfg.HighQualityScore {
		return deferOrDrop(fmt.Sprintf("quantitative score %.2f below high-quality cutoff %.2f", raw.Score, e.cfg.HighQualityScore))
	}

	size, ok := e.size(s, pc)
	if !ok {
		return deferOrDrop(fmt.Sprintf("available balance %.4f cannot fund minimum position %.4f", pc.AvailableBalance, pc.MinPositionSize))
	}

	confidence := clamp(0.5*sent.Confidence+0.5*s/10, 0, 1)
	d := domain.TradingDecision{
		ID:                 e.newID(),
		OpportunityAddress: raw.Address,
		Confidence:         confidence,
		Priority:           e.priority(raw, confidence),
		CreatedAt:          e.now().UTC(),
	}

	switch e.kind(raw) {
	case domain.OpportunityKindPool:
		d.Type = domain.DecisionProvideLiquidity
		d.ProvideLiquidity = &domain.ProvideLiquidity{
			Pool:     raw.Address,
			Amount:   size,
			Duration: lpDuration(raw.APR),
		}
	default:
		sl, tp := stopLoss(opp.Risk), takeProfit(s)
		d.Type = domain.DecisionBuyToken
		d.BuyToken = &domain.BuyToken{
			Token:          raw.Address,
			TargetAmount:   size,
			MaxSlippageBps: slippageBps(raw.LiquidityUSD),
			StopLossPct:    &sl,
			TakeProfitPct:  &tp,
		}
	}
	d.Reasoning = fmt.Sprintf("score %.1f/10, risk %s, liquidity $%.0f, volume $%.0f, apr %.1f%%, size %.4f SOL",
		s, opp.Risk, raw.LiquidityUSD, raw.Volume24hUSD, raw.APR, size)

	e.logger.Debug("decision made",
		slog.String("token", raw.Address),
		slog.String("type", string(d.Type)),
		slog.Float64("combined_score", s),
		slog.Float64("size_sol", size),
	)
	return d
}

// size returns clamp(balance*tolerance*s/10, min, max), further capped by
// the balance fraction. ok is false when the balance cannot fund the minimum.
func (e *Engine) size(s float64, pc domain.PortfolioContext) (float64, bool) {
	ceiling := pc.MaxPositionSize
	if e.cfg.MaxBalanceFraction > 0 {
		ceiling = math.Min(ceiling, pc.AvailableBalance*e.cfg.MaxBalanceFraction)
	}
	if ceiling < pc.MinPositionSize || pc.AvailableBalance < pc.MinPositionSize {
		return 0, false
	}
	target := pc.AvailableBalance * pc.RiskTolerance * (s / 10)
	return clamp(target, pc.MinPositionSize, ceiling), true
}

// priority is round(1 + 9*confidence*freshness), plus two for very high
// volume, capped at 10.
func (e *Engine) priority(raw domain.RawOpportunity, confidence float64) int {
	freshness := 1.0
	if e.cfg.PriorityHalfLife > 0 && !raw.DiscoveredAt.IsZero() {
		age := e.now().Sub(raw.DiscoveredAt)
		if age > 0 {
			freshness = math.Exp(-age.Seconds() / e.cfg.PriorityHalfLife.Seconds())
		}
	}
	p := int(math.Round(1 + 9*confidence*freshness))
	if raw.Volume24hUSD > 5_000_000 {
		p += 2
	}
	return min(max(p, 1), 10)
}

func (e *Engine) kind(raw domain.RawOpportunity) domain.OpportunityKind {
	if raw.Kind != "" {
		return raw.Kind
	}
	if raw.APR >= e.cfg.LPMinAPR && raw.LiquidityUSD >= e.cfg.LPMinLiquidityUSD {
		return domain.OpportunityKindPool
	}
	return domain.OpportunityKindToken
}

func (e *Engine) monitor(addr string, s, sentConfidence float64, reason string) domain.TradingDecision {
	return domain.TradingDecision{
		ID:                 e.newID(),
		OpportunityAddress: addr,
		Type:               domain.DecisionMonitor,
		Monitor: &domain.Monitor{
			Interval:    e.cfg.MonitorInterval,
			MaxDuration: e.cfg.MonitorMaxDuration,
		},
		Confidence: clamp(0.5*sentConfidence+0.5*s/10, 0, 1),
		Priority:   1,
		Reasoning:  fmt.Sprintf("watching (score %.1f/10): %s", s, reason),
		CreatedAt:  e.now().UTC(),
	}
}

func (e *Engine) noAction(addr, reason string) domain.TradingDecision {
	e.logger.Debug("no action", slog.String("token", addr), slog.String("reason", reason))
	return domain.TradingDecision{
		ID:                 e.newID(),
		OpportunityAddress: addr,
		Type:               domain.DecisionNoAction,
		NoAction:           &domain.NoAction{Reason: reason},
		Priority:           1,
		Reasoning:          reason,
		CreatedAt:          e.now().UTC(),
	}
}

func invalidInput(opp domain.ValidatedOpportunity, pc domain.PortfolioContext) string {
	checks := []struct {
		name string
		v    float64
	}{
		{"opportunity_score", opp.Raw.Score},
		{"liquidity_usd", opp.Raw.LiquidityUSD},
		{"volume_24h_usd", opp.Raw.Volume24hUSD},
		{"apr", opp.Raw.APR},
		{"sentiment_score", opp.Sentiment.Score},
		{"sentiment_confidence", opp.Sentiment.Confidence},
		{"available_balance", pc.AvailableBalance},
		{"risk_tolerance", pc.RiskTolerance},
		{"min_position_size", pc.MinPositionSize},
		{"max_position_size", pc.MaxPositionSize},
	}
	for _, c := range checks {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			return "invalid input: " + c.name + " is not a finite number"
		}
	}
	switch {
	case opp.Raw.Address == "":
		return "invalid input: empty address"
	case pc.AvailableBalance < 0:
		return "invalid input: negative available balance"
	case pc.RiskTolerance < 0 || pc.RiskTolerance > 1:
		return "invalid input: risk tolerance outside [0,1]"
	case pc.MinPositionSize <= 0 || pc.MaxPositionSize < pc.MinPositionSize:
		return "invalid input: position bounds"
	}
	return ""
}

func slippageBps(liquidityUSD float64) int {
	switch {
	case liquidityUSD > 1_000_000:
		return 50
	case liquidityUSD > 100_000:
		return 100
	default:
		return 300
	}
}

func stopLoss(r domain.RiskLevel) float64 {
	switch r {
	case domain.RiskMedium:
		return 20
	case domain.RiskHigh:
		return 25
	case domain.RiskVeryHigh:
		return 30
	default:
		return 15
	}
}

func takeProfit(s float64) float64 {
	switch {
	case s > 8:
		return 100
	case s > 6:
		return 50
	default:
		return 25
	}
}

func lpDuration(apr float64) time.Duration {
	switch {
	case apr >= 50:
		return 4 * time.Hour
	case apr >= 25:
		return 12 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
