package rules

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// ActionType tags the closed set of action variants.
type ActionType string

const (
	ActionOpenPosition     ActionType = "OPEN_POSITION"
	ActionClosePosition    ActionType = "CLOSE_POSITION"
	ActionAdjustTakeProfit ActionType = "ADJUST_TAKE_PROFIT"
	ActionAdjustStopLoss   ActionType = "ADJUST_STOP_LOSS"
)

// ReferenceType selects the price basis an action computes its target
// from.
type ReferenceType string

const (
	RefOrderOpenPrice    ReferenceType = "ORDER_OPEN_PRICE"
	RefCurrentPrice      ReferenceType = "CURRENT_PRICE"
	RefExpertTargetPrice ReferenceType = "EXPERT_TARGET_PRICE"
)

// CalculationPreview shows what an action would do, without doing it.
type CalculationPreview struct {
	ReferenceType     ReferenceType `json:"reference_type"`
	ReferencePrice    float64       `json:"reference_price"`
	AdjustmentPercent float64       `json:"adjustment_percent"`
	CalculatedPrice   float64       `json:"calculated_price"`
}

// ActionResult is the audit record of one executed action.
type ActionResult struct {
	ActionType        ActionType
	ReferenceType     ReferenceType
	ReferencePrice    float64
	AdjustmentPercent float64
	CalculatedPrice   float64
	OrderIDs          []int64
	Err               error
	CreatedAt         time.Time
}

// OpenIntent describes a new position request handed to the controller.
// Quantity stays zero; the sizing engine fills it in later.
type OpenIntent struct {
	Side              types.OrderSide
	LimitPrice        float64
	TakeProfitPercent float64
	StopLossPercent   float64
}

// RiskAdjustment carries a TP or SL change for consolidation.
type RiskAdjustment struct {
	Kind    ActionType // ADJUST_TAKE_PROFIT or ADJUST_STOP_LOSS
	Price   float64
	Percent float64
}

// PositionController is what actions delegate their side effects to.
// The order lifecycle manager implements it; evaluation alone never
// touches it.
type PositionController interface {
	OpenPosition(ctx context.Context, ec *EvalContext, intent OpenIntent) ([]int64, error)
	ClosePosition(ctx context.Context, ec *EvalContext, reason string) ([]int64, error)
	AdjustRisk(ctx context.Context, ec *EvalContext, adj RiskAdjustment) ([]int64, error)
}

// Action is a typed mutation with a pure preview.
type Action interface {
	Type() ActionType
	// Preview computes the reference resolution and target price
	// without mutating anything.
	Preview(ctx context.Context, ec *EvalContext) (CalculationPreview, error)
	// Execute performs the mutation through the controller and returns
	// the audit record.
	Execute(ctx context.Context, ec *EvalContext, ctrl PositionController) (*ActionResult, error)
	// Hash identifies the logical action for per-pass deduplication.
	Hash(symbol string) uint64
}

func actionHash(t ActionType, ref ReferenceType, percent float64, symbol string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%.6f|%s", t, ref, percent, symbol)
	return h.Sum64()
}

func resultFromPreview(t ActionType, p CalculationPreview, orderIDs []int64, err error) *ActionResult {
	return &ActionResult{
		ActionType:        t,
		ReferenceType:     p.ReferenceType,
		ReferencePrice:    p.ReferencePrice,
		AdjustmentPercent: p.AdjustmentPercent,
		CalculatedPrice:   p.CalculatedPrice,
		OrderIDs:          orderIDs,
		Err:               err,
		CreatedAt:         time.Now(),
	}
}

// ---------------------------------------------------------------------

// OpenPositionAction opens a zero-quantity entry order at a limit price
// offset from the reference, with TP/SL percents recorded for the
// lifecycle manager to consolidate.
type OpenPositionAction struct {
	Reference          ReferenceType
	EntryOffsetPercent float64
	TakeProfitPercent  float64
	StopLossPercent    float64
}

func (a *OpenPositionAction) Type() ActionType { return ActionOpenPosition }

func (a *OpenPositionAction) Hash(symbol string) uint64 {
	return actionHash(a.Type(), a.Reference, a.EntryOffsetPercent, symbol)
}

func (a *OpenPositionAction) Preview(ctx context.Context, ec *EvalContext) (CalculationPreview, error) {
	ref, err := ec.ResolveReference(ctx, a.Reference)
	if err != nil {
		return CalculationPreview{ReferenceType: a.Reference}, err
	}
	return CalculationPreview{
		ReferenceType:     a.Reference,
		ReferencePrice:    ref,
		AdjustmentPercent: a.EntryOffsetPercent,
		CalculatedPrice:   TargetPrice(ref, a.EntryOffsetPercent, ec.Side()),
	}, nil
}

func (a *OpenPositionAction) Execute(ctx context.Context, ec *EvalContext, ctrl PositionController) (*ActionResult, error) {
	preview, err := a.Preview(ctx, ec)
	if err != nil {
		return resultFromPreview(a.Type(), preview, nil, err), err
	}
	ids, err := ctrl.OpenPosition(ctx, ec, OpenIntent{
		Side:              ec.Side(),
		LimitPrice:        preview.CalculatedPrice,
		TakeProfitPercent: a.TakeProfitPercent,
		StopLossPercent:   a.StopLossPercent,
	})
	return resultFromPreview(a.Type(), preview, ids, err), err
}

// ClosePositionAction flattens the open transaction.
type ClosePositionAction struct {
	Reason string
}

func (a *ClosePositionAction) Type() ActionType { return ActionClosePosition }

func (a *ClosePositionAction) Hash(symbol string) uint64 {
	return actionHash(a.Type(), RefCurrentPrice, 0, symbol)
}

func (a *ClosePositionAction) Preview(ctx context.Context, ec *EvalContext) (CalculationPreview, error) {
	ref, err := ec.ResolveReference(ctx, RefCurrentPrice)
	if err != nil {
		return CalculationPreview{ReferenceType: RefCurrentPrice}, err
	}
	return CalculationPreview{
		ReferenceType:   RefCurrentPrice,
		ReferencePrice:  ref,
		CalculatedPrice: ref,
	}, nil
}

func (a *ClosePositionAction) Execute(ctx context.Context, ec *EvalContext, ctrl PositionController) (*ActionResult, error) {
	preview, err := a.Preview(ctx, ec)
	if err != nil {
		return resultFromPreview(a.Type(), preview, nil, err), err
	}
	reason := a.Reason
	if reason == "" {
		reason = "rule close"
	}
	ids, err := ctrl.ClosePosition(ctx, ec, reason)
	return resultFromPreview(a.Type(), preview, ids, err), err
}

// AdjustTakeProfitAction recomputes the take-profit price. It never
// submits an opposite order itself; consolidation with the stop-loss
// happens in the controller.
type AdjustTakeProfitAction struct {
	Reference ReferenceType
	Percent   float64
}

func (a *AdjustTakeProfitAction) Type() ActionType { return ActionAdjustTakeProfit }

func (a *AdjustTakeProfitAction) Hash(symbol string) uint64 {
	return actionHash(a.Type(), a.Reference, a.Percent, symbol)
}

func (a *AdjustTakeProfitAction) Preview(ctx context.Context, ec *EvalContext) (CalculationPreview, error) {
	ref, err := ec.ResolveReference(ctx, a.Reference)
	if err != nil {
		return CalculationPreview{ReferenceType: a.Reference}, err
	}
	return CalculationPreview{
		ReferenceType:     a.Reference,
		ReferencePrice:    ref,
		AdjustmentPercent: a.Percent,
		CalculatedPrice:   TargetPrice(ref, a.Percent, ec.Side()),
	}, nil
}

func (a *AdjustTakeProfitAction) Execute(ctx context.Context, ec *EvalContext, ctrl PositionController) (*ActionResult, error) {
	preview, err := a.Preview(ctx, ec)
	if err != nil {
		return resultFromPreview(a.Type(), preview, nil, err), err
	}
	ids, err := ctrl.AdjustRisk(ctx, ec, RiskAdjustment{
		Kind:    a.Type(),
		Price:   preview.CalculatedPrice,
		Percent: a.Percent,
	})
	return resultFromPreview(a.Type(), preview, ids, err), err
}

// AdjustStopLossAction recomputes the stop-loss price, consolidated the
// same way.
type AdjustStopLossAction struct {
	Reference ReferenceType
	Percent   float64
}

func (a *AdjustStopLossAction) Type() ActionType { return ActionAdjustStopLoss }

func (a *AdjustStopLossAction) Hash(symbol string) uint64 {
	return actionHash(a.Type(), a.Reference, a.Percent, symbol)
}

func (a *AdjustStopLossAction) Preview(ctx context.Context, ec *EvalContext) (CalculationPreview, error) {
	ref, err := ec.ResolveReference(ctx, a.Reference)
	if err != nil {
		return CalculationPreview{ReferenceType: a.Reference}, err
	}
	return CalculationPreview{
		ReferenceType:     a.Reference,
		ReferencePrice:    ref,
		AdjustmentPercent: a.Percent,
		CalculatedPrice:   TargetPrice(ref, a.Percent, ec.Side()),
	}, nil
}

func (a *AdjustStopLossAction) Execute(ctx context.Context, ec *EvalContext, ctrl PositionController) (*ActionResult, error) {
	preview, err := a.Preview(ctx, ec)
	if err != nil {
		return resultFromPreview(a.Type(), preview, nil, err), err
	}
	ids, err := ctrl.AdjustRisk(ctx, ec, RiskAdjustment{
		Kind:    a.Type(),
		Price:   preview.CalculatedPrice,
		Percent: a.Percent,
	})
	return resultFromPreview(a.Type(), preview, ids, err), err
}
