// Package store defines the persistence records and the Store contract
// used by the decision engine. Implementations live in subpackages
// (gormstore for the sqlite-backed one).
package store

import (
	"time"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// RecommendationRecord is a persisted advisory signal. Records are
// written by the expert collaborator and only flagged as processed here.
type RecommendationRecord struct {
	ID                    int64
	ExpertInstanceID      int64
	Symbol                string
	Action                types.RecommendationAction
	Confidence            float64
	ExpectedProfitPercent float64
	ReferencePrice        float64
	TimeHorizon           string
	RiskLevel             string
	Processed             bool
	CreatedAt             time.Time
}

// Recommendation converts the record into the immutable domain value.
func (r RecommendationRecord) Recommendation() types.Recommendation {
	return types.Recommendation{
		ID:                    r.ID,
		ExpertInstanceID:      r.ExpertInstanceID,
		Symbol:                r.Symbol,
		Action:                r.Action,
		Confidence:            r.Confidence,
		ExpectedProfitPercent: r.ExpectedProfitPercent,
		ReferencePrice:        r.ReferencePrice,
		TimeHorizon:           r.TimeHorizon,
		RiskLevel:             r.RiskLevel,
		CreatedAt:             r.CreatedAt,
	}
}

// TradingOrderRecord is a persisted broker order (or a not-yet-submitted
// intent, when Status is WAITING_TRIGGER or quantity is still zero).
type TradingOrderRecord struct {
	ID               int64
	AccountID        int64
	ExpertInstanceID int64
	RecommendationID int64
	TransactionID    int64
	Symbol           string
	Side             types.OrderSide
	OrderType        types.OrderType
	Quantity         float64
	LimitPrice       float64
	StopPrice        float64
	Status           types.OrderStatus
	DependsOnOrderID int64 // 0 = independent
	BrokerOrderID    string
	StatusReason     string
	Metadata         types.OrderMetadata
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsClosingOrder reports whether the order was created to flatten a
// position.
func (o TradingOrderRecord) IsClosingOrder() bool {
	return o.Metadata.ClosingOrder
}

// TransactionRecord tracks one position per (expert, symbol).
type TransactionRecord struct {
	ID               int64
	AccountID        int64
	ExpertInstanceID int64
	Symbol           string
	Quantity         float64
	OpenPrice        float64
	Status           types.TransactionStatus
	OpenDate         *time.Time
	CloseDate        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ActionResultRecord is the audit record written once per executed
// (deduplicated) action, and for contained failures so no outcome is a
// silent no-op.
type ActionResultRecord struct {
	ID                int64
	ExpertInstanceID  int64
	RecommendationID  int64
	Symbol            string
	ActionType        string
	ReferenceType     string
	ReferencePrice    float64
	AdjustmentPercent float64
	CalculatedPrice   float64
	OrderIDs          []int64
	Outcome           string // "executed", "skipped", "error"
	Detail            string
	CreatedAt         time.Time
}

// ExpertSettingsRecord carries the per-expert capital configuration used
// by position sizing.
type ExpertSettingsRecord struct {
	ExpertInstanceID          int64
	AccountID                 int64
	VirtualBalance            float64
	MaxEquityPerInstrumentPct float64 // fraction, e.g. 0.10
	AllocationFraction        float64 // share of remaining cap per new order
	TopRankException          int     // rank cutoff for the conviction exception
	UpdatedAt                 time.Time
}
