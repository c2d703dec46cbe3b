package rules

import (
	"context"
	"fmt"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// ConditionType tags the closed set of condition variants.
type ConditionType string

const (
	CondConfidenceThreshold     ConditionType = "CONFIDENCE_THRESHOLD"
	CondExpectedProfitThreshold ConditionType = "EXPECTED_PROFIT_THRESHOLD"
	CondPositionProfitPercent   ConditionType = "POSITION_PROFIT_PERCENT"
	CondNewTargetHigher         ConditionType = "NEW_TARGET_HIGHER"
	CondNewTargetLower          ConditionType = "NEW_TARGET_LOWER"
)

// Operator is a numeric comparison operator used by threshold
// conditions.
type Operator string

const (
	OpGT  Operator = ">"
	OpGTE Operator = ">="
	OpLT  Operator = "<"
	OpLTE Operator = "<="
	OpEQ  Operator = "=="
)

// Compare applies the operator with decimal arithmetic so float noise
// cannot flip a threshold.
func (op Operator) Compare(left, right float64) (bool, error) {
	cmp := decFromFloat(left).Cmp(decFromFloat(right))
	switch op {
	case OpGT:
		return cmp > 0, nil
	case OpGTE:
		return cmp >= 0, nil
	case OpLT:
		return cmp < 0, nil
	case OpLTE:
		return cmp <= 0, nil
	case OpEQ:
		return cmp == 0, nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// Operands is the audit payload every condition records: what was
// compared against what, and any intermediate computed value. Flag
// conditions populate it too so failures are explainable without
// re-running the comparison.
type Operands struct {
	Left       float64 `json:"left"`
	Right      float64 `json:"right"`
	Calculated float64 `json:"calculated"`
}

// Condition is a typed predicate over an EvalContext.
type Condition interface {
	Type() ConditionType
	// Evaluate returns the verdict and records operands internally.
	// Implementations must not panic; data errors come back as err.
	Evaluate(ctx context.Context, ec *EvalContext) (bool, error)
	// Operands returns the operands captured by the last Evaluate call.
	Operands() Operands
}

// ConditionReport is the per-condition audit entry the evaluator emits.
type ConditionReport struct {
	Type     ConditionType `json:"type"`
	Passed   bool          `json:"passed"`
	Operands Operands      `json:"operands"`
	Err      string        `json:"error,omitempty"`
}

// evaluateContained runs a condition, converting any error (or panic in
// a variant's math) into a failed report instead of letting it escape
// the evaluator.
func evaluateContained(ctx context.Context, cond Condition, ec *EvalContext) (report ConditionReport) {
	report = ConditionReport{Type: cond.Type()}
	defer func() {
		if r := recover(); r != nil {
			report.Passed = false
			report.Err = fmt.Sprintf("condition panic: %v", r)
			report.Operands = cond.Operands()
		}
	}()
	passed, err := cond.Evaluate(ctx, ec)
	report.Operands = cond.Operands()
	if err != nil {
		report.Passed = false
		report.Err = err.Error()
		return report
	}
	report.Passed = passed
	return report
}

// ---------------------------------------------------------------------
// Threshold conditions.

// ConfidenceThresholdCondition compares the recommendation confidence
// against a configured threshold.
type ConfidenceThresholdCondition struct {
	Operator  Operator
	Threshold float64

	operands Operands
}

func (c *ConfidenceThresholdCondition) Type() ConditionType { return CondConfidenceThreshold }
func (c *ConfidenceThresholdCondition) Operands() Operands  { return c.operands }

func (c *ConfidenceThresholdCondition) Evaluate(_ context.Context, ec *EvalContext) (bool, error) {
	conf := ec.Recommendation.Confidence
	c.operands = Operands{Left: conf, Right: c.Threshold, Calculated: conf}
	if conf < 1 || conf > 100 {
		return false, fmt.Errorf("confidence %.2f outside [1,100]", conf)
	}
	return c.Operator.Compare(conf, c.Threshold)
}

// ExpectedProfitThresholdCondition compares the recommendation's
// expected profit percent against a threshold.
type ExpectedProfitThresholdCondition struct {
	Operator  Operator
	Threshold float64

	operands Operands
}

func (c *ExpectedProfitThresholdCondition) Type() ConditionType { return CondExpectedProfitThreshold }
func (c *ExpectedProfitThresholdCondition) Operands() Operands  { return c.operands }

func (c *ExpectedProfitThresholdCondition) Evaluate(_ context.Context, ec *EvalContext) (bool, error) {
	expected := ec.Recommendation.ExpectedProfitPercent
	c.operands = Operands{Left: expected, Right: c.Threshold, Calculated: expected}
	return c.Operator.Compare(expected, c.Threshold)
}

// PositionProfitPercentCondition compares the open position's
// unrealized profit percent (from entry to current quote) against a
// threshold. Requires an open position and a live quote.
type PositionProfitPercentCondition struct {
	Operator  Operator
	Threshold float64

	operands Operands
}

func (c *PositionProfitPercentCondition) Type() ConditionType { return CondPositionProfitPercent }
func (c *PositionProfitPercentCondition) Operands() Operands  { return c.operands }

func (c *PositionProfitPercentCondition) Evaluate(ctx context.Context, ec *EvalContext) (bool, error) {
	c.operands = Operands{Right: c.Threshold}
	entry, err := ec.entryPrice()
	if err != nil {
		return false, err
	}
	current, err := ec.currentPrice(ctx)
	if err != nil {
		return false, err
	}
	profitPct := percentDiff(entry, current)
	if ec.Side() == types.SideSell {
		profitPct = -profitPct
	}
	c.operands = Operands{Left: entry, Right: current, Calculated: profitPct}
	return c.Operator.Compare(profitPct, c.Threshold)
}

// ---------------------------------------------------------------------
// Flag conditions.

// NewTargetHigherCondition passes when the expert's new target price is
// above the current take-profit beyond a tolerance percent. Operands
// are recorded (current TP, new target, percent difference) even though
// the verdict is boolean.
type NewTargetHigherCondition struct {
	TolerancePercent float64

	operands Operands
}

func (c *NewTargetHigherCondition) Type() ConditionType { return CondNewTargetHigher }
func (c *NewTargetHigherCondition) Operands() Operands  { return c.operands }

func (c *NewTargetHigherCondition) Evaluate(_ context.Context, ec *EvalContext) (bool, error) {
	currentTP := ec.CurrentTakeProfit
	target := ec.Recommendation.TargetPrice()
	diff := percentDiff(currentTP, target)
	c.operands = Operands{Left: currentTP, Right: target, Calculated: diff}
	if currentTP <= 0 {
		return false, fmt.Errorf("no current take-profit to compare against")
	}
	if target <= 0 {
		return false, fmt.Errorf("recommendation has no usable target price")
	}
	return diff > c.TolerancePercent, nil
}

// NewTargetLowerCondition is the downward counterpart, used for
// stop-loss tightening rules.
type NewTargetLowerCondition struct {
	TolerancePercent float64

	operands Operands
}

func (c *NewTargetLowerCondition) Type() ConditionType { return CondNewTargetLower }
func (c *NewTargetLowerCondition) Operands() Operands  { return c.operands }

func (c *NewTargetLowerCondition) Evaluate(_ context.Context, ec *EvalContext) (bool, error) {
	currentTP := ec.CurrentTakeProfit
	target := ec.Recommendation.TargetPrice()
	diff := percentDiff(currentTP, target)
	c.operands = Operands{Left: currentTP, Right: target, Calculated: diff}
	if currentTP <= 0 {
		return false, fmt.Errorf("no current take-profit to compare against")
	}
	if target <= 0 {
		return false, fmt.Errorf("recommendation has no usable target price")
	}
	return diff < -c.TolerancePercent, nil
}
