package types

import "time"

// RecommendationAction is the advisory direction suggested by an expert.
type RecommendationAction string

const (
	RecommendBuy  RecommendationAction = "BUY"
	RecommendSell RecommendationAction = "SELL"
	RecommendHold RecommendationAction = "HOLD"
)

// UseCase selects which ruleset family applies to an evaluation pass.
type UseCase string

const (
	UseCaseEnterMarket   UseCase = "ENTER_MARKET"
	UseCaseOpenPositions UseCase = "OPEN_POSITIONS"
)

// Recommendation is an immutable advisory signal produced by an expert
// instance. The engine only reads it.
type Recommendation struct {
	ID                    int64
	ExpertInstanceID      int64
	Symbol                string
	Action                RecommendationAction
	Confidence            float64 // 1..100
	ExpectedProfitPercent float64
	ReferencePrice        float64
	TimeHorizon           string
	RiskLevel             string
	CreatedAt             time.Time
}

// TargetPrice derives the expert target from the recommendation's
// reference price and expected profit. SELL recommendations target
// below the reference.
func (r Recommendation) TargetPrice() float64 {
	if r.ReferencePrice <= 0 {
		return 0
	}
	pct := r.ExpectedProfitPercent / 100
	if r.Action == RecommendSell {
		return r.ReferencePrice * (1 - pct)
	}
	return r.ReferencePrice * (1 + pct)
}
