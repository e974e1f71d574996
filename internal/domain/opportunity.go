package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OpportunityKind distinguishes token-buy candidates from liquidity pools.
type OpportunityKind string

const (
	OpportunityKindToken OpportunityKind = "token"
	OpportunityKindPool  OpportunityKind = "pool"
)

// OpportunityStatus tracks a validated opportunity through one cycle.
type OpportunityStatus string

const (
	OpportunityPending    OpportunityStatus = "pending"
	OpportunityValidating OpportunityStatus = "validating"
	OpportunityValidated  OpportunityStatus = "validated"
	OpportunityDecided    OpportunityStatus = "decided"
	OpportunityExpired    OpportunityStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s OpportunityStatus) Terminal() bool {
	return s == OpportunityDecided || s == OpportunityExpired
}

var opportunityTransitions = map[OpportunityStatus][]OpportunityStatus{
	OpportunityPending:    {OpportunityValidating, OpportunityExpired},
	OpportunityValidating: {OpportunityValidated, OpportunityExpired},
	OpportunityValidated:  {OpportunityDecided, OpportunityExpired},
	OpportunityDecided:    {OpportunityExpired},
}

// RiskLevel is a coarse assessment of a candidate's downside.
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "very_low"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// RawOpportunity is a quantitative candidate produced by a scanner. It is
// never mutated once produced.
type RawOpportunity struct {
	Address      string          `json:"address"`
	Symbol       string          `json:"symbol,omitempty"`
	Kind         OpportunityKind `json:"kind,omitempty"`
	LiquidityUSD float64         `json:"liquidity_usd"`
	Volume24hUSD float64         `json:"volume_24h_usd"`
	APR          float64         `json:"apr,omitempty"`
	Score        float64         `json:"opportunity_score"`
	Source       string          `json:"source,omitempty"`
	DiscoveredAt time.Time       `json:"discovered_at"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

// Expired reports whether the record carries an expiry that has passed.
func (r RawOpportunity) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// rawOpportunityWire mirrors RawOpportunity with pointer fields so that
// missing required values can be told apart from zero values.
type rawOpportunityWire struct {
	Address      *string         `json:"address"`
	Symbol       string          `json:"symbol,omitempty"`
	Kind         OpportunityKind `json:"kind,omitempty"`
	LiquidityUSD *float64        `json:"liquidity_usd"`
	Volume24hUSD *float64        `json:"volume_24h_usd"`
	APR          float64         `json:"apr,omitempty"`
	Score        *float64        `json:"opportunity_score"`
	Source       string          `json:"source,omitempty"`
	DiscoveredAt *time.Time      `json:"discovered_at"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

// DecodeRawOpportunity strictly decodes a stored raw-opportunity record.
// Unknown fields, missing required fields, and trailing data are rejected with
// a *CandidateError instead of defaulting to zero.
func DecodeRawOpportunity(key string, data []byte) (RawOpportunity, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w rawOpportunityWire
	if err := dec.Decode(&w); err != nil {
		return RawOpportunity{}, &CandidateError{Address: key, Reason: "malformed record", Err: err}
	}
	if dec.More() {
		return RawOpportunity{}, &CandidateError{Address: key, Reason: "trailing data after record"}
	}

	var missing []string
	if w.Address == nil || strings.TrimSpace(*w.Address) == "" {
		missing = append(missing, "address")
	}
	if w.LiquidityUSD == nil {
		missing = append(missing, "liquidity_usd")
	}
	if w.Volume24hUSD == nil {
		missing = append(missing, "volume_24h_usd")
	}
	if w.Score == nil {
		missing = append(missing, "opportunity_score")
	}
	if w.DiscoveredAt == nil || w.DiscoveredAt.IsZero() {
		missing = append(missing, "discovered_at")
	}
	if len(missing) > 0 {
		return RawOpportunity{}, &CandidateError{
			Address: key,
			Reason:  "missing required fields: " + strings.Join(missing, ", "),
		}
	}

	switch w.Kind {
	case "", OpportunityKindToken, OpportunityKindPool:
	default:
		return RawOpportunity{}, &CandidateError{Address: *w.Address, Reason: fmt.Sprintf("unknown kind %q", w.Kind)}
	}
	if *w.LiquidityUSD < 0 || *w.Volume24hUSD < 0 {
		return RawOpportunity{}, &CandidateError{Address: *w.Address, Reason: "negative liquidity or volume"}
	}

	return RawOpportunity{
		Address:      strings.TrimSpace(*w.Address),
		Symbol:       w.Symbol,
		Kind:         w.Kind,
		LiquidityUSD: *w.LiquidityUSD,
		Volume24hUSD: *w.Volume24hUSD,
		APR:          w.APR,
		Score:        *w.Score,
		Source:       w.Source,
		DiscoveredAt: w.DiscoveredAt.UTC(),
		ExpiresAt:    w.ExpiresAt,
	}, nil
}

// SentimentResult is the qualitative signal returned by the validation
// service for one candidate.
type SentimentResult struct {
	Score       float64   `json:"sentiment_score"` // -1..1
	Confidence  float64   `json:"confidence"`      // 0..1
	SourceCount int       `json:"source_count"`
	Patterns    []string  `json:"patterns,omitempty"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
}

// ValidatedOpportunity is a raw candidate enriched with sentiment. It is owned
// by the pipeline controller for the duration of one cycle.
type ValidatedOpportunity struct {
	Raw         RawOpportunity    `json:"raw"`
	Sentiment   SentimentResult   `json:"sentiment"`
	Risk        RiskLevel         `json:"risk_level"`
	Status      OpportunityStatus `json:"status"`
	CycleID     string            `json:"cycle_id,omitempty"`
	DecisionID  string            `json:"decision_id,omitempty"`
	ValidatedAt time.Time         `json:"validated_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewValidatedOpportunity wraps a raw candidate in the Pending state.
func NewValidatedOpportunity(raw RawOpportunity, cycleID string, now time.Time) ValidatedOpportunity {
	return ValidatedOpportunity{
		Raw:       raw,
		Status:    OpportunityPending,
		CycleID:   cycleID,
		UpdatedAt: now,
	}
}

// Advance moves the opportunity to the next status, rejecting transitions
// that skip or reverse the lifecycle.
func (v *ValidatedOpportunity) Advance(to OpportunityStatus, now time.Time) error {
	for _, allowed := range opportunityTransitions[v.Status] {
		if allowed == to {
			v.Status = to
			v.UpdatedAt = now
			if to == OpportunityValidated {
				v.ValidatedAt = now
			}
			return nil
		}
	}
	return fmt.Errorf("opportunity %s: %s -> %s: %w", v.Raw.Address, v.Status, to, ErrInvalidTransition)
}

// AssessRisk scores liquidity depth, sentiment, confidence, and wash-trading
// exposure into a coarse risk level.
func AssessRisk(raw RawOpportunity, s SentimentResult) RiskLevel {
	points := 0

	switch {
	case raw.LiquidityUSD < 50_000:
		points += 2
	case raw.LiquidityUSD < 200_000:
		points++
	}

	switch {
	case s.Score < -0.1:
		points += 2
	case s.Score < 0.2:
		points++
	}

	switch {
	case s.Confidence < 0.3:
		points += 2
	case s.Confidence < 0.6:
		points++
	}

	if raw.LiquidityUSD > 0 {
		ratio := raw.Volume24hUSD / raw.LiquidityUSD
		switch {
		case ratio > 50:
			points += 2
		case ratio > 20:
			points++
		}
	} else {
		points += 2
	}

	switch {
	case points <= 1:
		return RiskVeryLow
	case points <= 3:
		return RiskLow
	case points <= 5:
		return RiskMedium
	case points <= 7:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}
