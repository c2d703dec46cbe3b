// Package rules implements the condition/action catalog and the rule
// evaluator. Conditions and actions form a closed tagged-variant set so
// the evaluator can match exhaustively and the operand-audit contract
// holds for every variant.
package rules

import (
	"context"
	"fmt"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/gateway/quote"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// EvalContext carries everything a condition or action may need for one
// recommendation. Evaluation never mutates it.
type EvalContext struct {
	ExpertInstanceID int64
	AccountID        int64
	UseCase          types.UseCase
	Recommendation   types.Recommendation

	// Transaction is the active position for (expert, symbol), nil when
	// flat. EntryOrder is its entry order when one exists.
	Transaction *store.TransactionRecord
	EntryOrder  *store.TradingOrderRecord

	// Current TP/SL prices from the existing opposite order, 0 if unset.
	CurrentTakeProfit float64
	CurrentStopLoss   float64

	Quotes quote.Source
}

// Side returns the position side implied by the context: the open
// transaction's entry side when one exists, otherwise the
// recommendation's direction.
func (ec *EvalContext) Side() types.OrderSide {
	if ec.EntryOrder != nil {
		return ec.EntryOrder.Side
	}
	if ec.Recommendation.Action == types.RecommendSell {
		return types.SideSell
	}
	return types.SideBuy
}

// currentPrice resolves a live quote for the context's symbol.
func (ec *EvalContext) currentPrice(ctx context.Context) (float64, error) {
	if ec.Quotes == nil {
		return 0, fmt.Errorf("no quote source configured")
	}
	price, err := ec.Quotes.LatestPrice(ctx, ec.Recommendation.Symbol)
	if err != nil {
		return 0, fmt.Errorf("quote %s: %w", ec.Recommendation.Symbol, err)
	}
	return price, nil
}

// entryPrice resolves the position entry basis: fill price of the open
// transaction, else the entry order's limit price.
func (ec *EvalContext) entryPrice() (float64, error) {
	if ec.Transaction != nil && ec.Transaction.OpenPrice > 0 {
		return ec.Transaction.OpenPrice, nil
	}
	if ec.EntryOrder != nil && ec.EntryOrder.LimitPrice > 0 {
		return ec.EntryOrder.LimitPrice, nil
	}
	return 0, fmt.Errorf("no entry price available for %s", ec.Recommendation.Symbol)
}

// ResolveReference resolves a reference price selector against the
// context.
func (ec *EvalContext) ResolveReference(ctx context.Context, ref ReferenceType) (float64, error) {
	switch ref {
	case RefOrderOpenPrice:
		return ec.entryPrice()
	case RefCurrentPrice:
		return ec.currentPrice(ctx)
	case RefExpertTargetPrice:
		target := ec.Recommendation.TargetPrice()
		if target <= 0 {
			return 0, fmt.Errorf("recommendation %d has no usable target price", ec.Recommendation.ID)
		}
		return target, nil
	default:
		return 0, fmt.Errorf("unknown reference type %q", ref)
	}
}
