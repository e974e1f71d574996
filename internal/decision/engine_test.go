package decision

import (
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	e := NewEngine(DefaultConfig(), nil)
	e.now = func() time.Time { return testNow }
	n := 0
	e.newID = func() string { n++; return "d-" + strconv.Itoa(n) }
	return e
}

func candidate() domain.ValidatedOpportunity {
	raw := domain.RawOpportunity{
		Address:      "TokA",
		LiquidityUSD: 25_000,
		Volume24hUSD: 90_000,
		Score:        3.5,
		DiscoveredAt: testNow.Add(-2 * time.Minute),
	}
	sent := domain.SentimentResult{Score: 0.6, Confidence: 0.75, SourceCount: 12}
	return domain.ValidatedOpportunity{
		Raw:       raw,
		Sentiment: sent,
		Risk:      domain.AssessRisk(raw, sent),
		Status:    domain.OpportunityValidated,
	}
}

func portfolio() domain.PortfolioContext {
	return domain.PortfolioContext{
		AvailableBalance:       5,
		OpenPositions:          0,
		MaxConcurrentPositions: 5,
		RiskTolerance:          0.7,
		MinConfidence:          0.5,
		MinPositionSize:        0.1,
		MaxPositionSize:        1.0,
	}
}

func TestHighQualityCandidateBuys(t *testing.T) {
	e := newTestEngine()
	pc := portfolio()

	d := e.Decide(candidate(), pc)
	require.NoError(t, d.Validate())
	require.Equal(t, domain.DecisionBuyToken, d.Type, d.Reasoning)
	assert.GreaterOrEqual(t, d.Confidence, 0.6)
	assert.GreaterOrEqual(t, d.BuyToken.TargetAmount, pc.MinPositionSize)
	assert.LessOrEqual(t, d.BuyToken.TargetAmount, pc.MaxPositionSize)
	assert.Equal(t, 300, d.BuyToken.MaxSlippageBps)
	require.NotNil(t, d.BuyToken.StopLossPct)
	assert.Equal(t, 15.0, *d.BuyToken.StopLossPct)
	require.NotNil(t, d.BuyToken.TakeProfitPct)
	assert.Equal(t, 50.0, *d.BuyToken.TakeProfitPct)
	assert.True(t, d.Executable())
	assert.Equal(t, "TokA", d.OpportunityAddress)
	assert.Equal(t, testNow, d.CreatedAt)
}

func TestPositionLimitNeverBuys(t *testing.T) {
	e := newTestEngine()
	pc := portfolio()
	pc.OpenPositions = pc.MaxConcurrentPositions

	d := e.Decide(candidate(), pc)
	assert.NotEqual(t, domain.DecisionBuyToken, d.Type)
	assert.Contains(t, []domain.DecisionType{domain.DecisionMonitor, domain.DecisionNoAction}, d.Type)
	assert.Contains(t, d.Reason(), "position limit")

	weak := candidate()
	weak.Raw.Score = 2.2
	weak.Sentiment.Score = 0.4
	weak.Sentiment.Confidence = 0.8
	d = e.Decide(weak, pc)
	assert.Equal(t, domain.DecisionNoAction, d.Type, "below watch threshold is dropped")
	assert.Contains(t, d.Reason(), "position limit")
}

func TestGatesFailClosed(t *testing.T) {
	e := newTestEngine()

	cases := map[string]func(o *domain.ValidatedOpportunity, pc *domain.PortfolioContext){
		"nan score":           func(o *domain.ValidatedOpportunity, _ *domain.PortfolioContext) { o.Raw.Score = math.NaN() },
		"inf liquidity":       func(o *domain.ValidatedOpportunity, _ *domain.PortfolioContext) { o.Raw.LiquidityUSD = math.Inf(1) },
		"nan balance":         func(_ *domain.ValidatedOpportunity, pc *domain.PortfolioContext) { pc.AvailableBalance = math.NaN() },
		"negative balance":    func(_ *domain.ValidatedOpportunity, pc *domain.PortfolioContext) { pc.AvailableBalance = -1 },
		"low confidence":      func(o *domain.ValidatedOpportunity, _ *domain.PortfolioContext) { o.Sentiment.Confidence = 0.2 },
		"low combined score":  func(o *domain.ValidatedOpportunity, _ *domain.PortfolioContext) { o.Raw.Score = 0.5; o.Sentiment.Score = -0.8 },
		"very high risk":      func(o *domain.ValidatedOpportunity, _ *domain.PortfolioContext) { o.Risk = domain.RiskVeryHigh },
		"empty address":       func(o *domain.ValidatedOpportunity, _ *domain.PortfolioContext) { o.Raw.Address = "" },
		"inverted bounds":     func(_ *domain.ValidatedOpportunity, pc *domain.PortfolioContext) { pc.MinPositionSize = 2 },
		"tolerance above one": func(_ *domain.ValidatedOpportunity, pc *domain.PortfolioContext) { pc.RiskTolerance = 1.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o, pc := candidate(), portfolio()
			mutate(&o, &pc)
			d := e.Decide(o, pc)
			require.NoError(t, d.Validate())
			assert.Equal(t, domain.DecisionNoAction, d.Type)
			assert.NotEmpty(t, d.Reason())
		})
	}
}

func TestInsufficientBalanceMonitorsPromisingCandidate(t *testing.T) {
	e := newTestEngine()
	o, pc := candidate(), portfolio()
	o.Raw.Score = 4
	o.Sentiment.Score = 0.9
	o.Sentiment.Confidence = 0.95
	pc.AvailableBalance = 0.3

	d := e.Decide(o, pc)
	require.Equal(t, domain.DecisionMonitor, d.Type, d.Reasoning)
	assert.Equal(t, 5*time.Minute, d.Monitor.Interval)
	assert.Equal(t, 24*time.Hour, d.Monitor.MaxDuration)
}

func TestHighRiskNeedsTolerance(t *testing.T) {
	e := newTestEngine()
	o, pc := candidate(), portfolio()
	o.Risk = domain.RiskHigh

	assert.NotEqual(t, domain.DecisionBuyToken, e.Decide(o, pc).Type)

	pc.RiskTolerance = 0.85
	d := e.Decide(o, pc)
	require.Equal(t, domain.DecisionBuyToken, d.Type)
	assert.Equal(t, 25.0, *d.BuyToken.StopLossPct)
}

func TestPoolCandidateProvidesLiquidity(t *testing.T) {
	e := newTestEngine()
	o, pc := candidate(), portfolio()
	o.Raw.LiquidityUSD = 400_000
	o.Raw.APR = 60
	o.Risk = domain.AssessRisk(o.Raw, o.Sentiment)

	d := e.Decide(o, pc)
	require.Equal(t, domain.DecisionProvideLiquidity, d.Type, d.Reasoning)
	assert.Equal(t, 4*time.Hour, d.ProvideLiquidity.Duration)
	assert.Equal(t, "TokA", d.ProvideLiquidity.Pool)

	o.Raw.Kind = domain.OpportunityKindToken
	assert.Equal(t, domain.DecisionBuyToken, e.Decide(o, pc).Type, "explicit kind wins over inference")
}

func TestSizeIsDeterministicAndBounded(t *testing.T) {
	e := newTestEngine()
	o, pc := candidate(), portfolio()

	a := e.Decide(o, pc)
	b := e.Decide(o, pc)
	assert.Equal(t, a.BuyToken.TargetAmount, b.BuyToken.TargetAmount)
	assert.Equal(t, a.Confidence, b.Confidence)
	assert.Equal(t, a.Priority, b.Priority)

	for _, bal := range []float64{0.5, 1, 2, 5, 50, 5000} {
		pc.AvailableBalance = bal
		d := e.Decide(o, pc)
		if d.Type != domain.DecisionBuyToken {
			continue
		}
		assert.GreaterOrEqual(t, d.BuyToken.TargetAmount, pc.MinPositionSize)
		assert.LessOrEqual(t, d.BuyToken.TargetAmount, pc.MaxPositionSize)
		assert.LessOrEqual(t, d.BuyToken.TargetAmount, bal*0.2+1e-12)
	}
}

func TestCombinedScoreMonotonic(t *testing.T) {
	e := newTestEngine()
	prev := -1.0
	for _, score := range []float64{-1, 0, 1, 2, 3, 4, 5} {
		s := e.CombinedScore(score, 0.2, 0.7)
		assert.GreaterOrEqual(t, s, prev)
		prev = s
	}
	prev = -1.0
	for _, sent := range []float64{-1, -0.5, 0, 0.5, 1} {
		s := e.CombinedScore(3, sent, 0.7)
		assert.GreaterOrEqual(t, s, prev)
		prev = s
	}
	assert.InDelta(t, 10.0, e.CombinedScore(4, 1, 1), 1e-9)
	assert.InDelta(t, 0.0, e.CombinedScore(0, -1, 1), 1e-9)
}

func TestPriorityFavoursFreshAndConfident(t *testing.T) {
	e := newTestEngine()
	fresh := domain.RawOpportunity{DiscoveredAt: testNow}
	stale := domain.RawOpportunity{DiscoveredAt: testNow.Add(-3 * time.Hour)}

	assert.Equal(t, 10, e.priority(fresh, 1))
	assert.Greater(t, e.priority(fresh, 0.8), e.priority(stale, 0.8))
	assert.Greater(t, e.priority(fresh, 0.9), e.priority(fresh, 0.3))
	assert.Equal(t, 1, e.priority(stale, 0))

	loud := fresh
	loud.Volume24hUSD = 6_000_000
	assert.Equal(t, 10, e.priority(loud, 1), "capped")
}

func TestTiers(t *testing.T) {
	assert.Equal(t, 50, slippageBps(2_000_000))
	assert.Equal(t, 100, slippageBps(500_000))
	assert.Equal(t, 300, slippageBps(100_000))

	assert.Equal(t, 100.0, takeProfit(8.5))
	assert.Equal(t, 25.0, takeProfit(6))

	assert.Equal(t, 12*time.Hour, lpDuration(25))
	assert.Equal(t, 24*time.Hour, lpDuration(10))
}
