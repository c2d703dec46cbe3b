package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/gateway/quote"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

func buyContext(confidence, expectedProfit, refPrice float64) *EvalContext {
	return &EvalContext{
		ExpertInstanceID: 1,
		UseCase:          types.UseCaseEnterMarket,
		Recommendation: types.Recommendation{
			ID:                    10,
			ExpertInstanceID:      1,
			Symbol:                "AAPL",
			Action:                types.RecommendBuy,
			Confidence:            confidence,
			ExpectedProfitPercent: expectedProfit,
			ReferencePrice:        refPrice,
		},
	}
}

func TestConfidenceThresholdCondition(t *testing.T) {
	ctx := context.Background()

	cond := &ConfidenceThresholdCondition{Operator: OpGTE, Threshold: 80}
	passed, err := cond.Evaluate(ctx, buyContext(85, 5, 100))
	assert.NoError(t, err)
	assert.True(t, passed)
	assert.Equal(t, 85.0, cond.Operands().Left)
	assert.Equal(t, 80.0, cond.Operands().Right)

	passed, err = cond.Evaluate(ctx, buyContext(79.9, 5, 100))
	assert.NoError(t, err)
	assert.False(t, passed)
}

func TestConfidenceOutsideRangeIsError(t *testing.T) {
	cond := &ConfidenceThresholdCondition{Operator: OpGTE, Threshold: 50}
	passed, err := cond.Evaluate(context.Background(), buyContext(0, 5, 100))
	assert.Error(t, err)
	assert.False(t, passed)
	// Operands are captured even on the error path.
	assert.Equal(t, 0.0, cond.Operands().Left)
	assert.Equal(t, 50.0, cond.Operands().Right)
}

func TestExpectedProfitThresholdCondition(t *testing.T) {
	cond := &ExpectedProfitThresholdCondition{Operator: OpGT, Threshold: 3}
	passed, err := cond.Evaluate(context.Background(), buyContext(90, 4.5, 100))
	assert.NoError(t, err)
	assert.True(t, passed)
	assert.Equal(t, 4.5, cond.Operands().Calculated)
}

func TestPositionProfitPercentLongAndShort(t *testing.T) {
	ctx := context.Background()
	quotes := quote.NewStatic(map[string]float64{"AAPL": 110})

	long := buyContext(90, 5, 100)
	long.Quotes = quotes
	long.Transaction = &store.TransactionRecord{OpenPrice: 100, Status: types.TxOpened}
	long.EntryOrder = &store.TradingOrderRecord{Side: types.SideBuy, LimitPrice: 100}

	cond := &PositionProfitPercentCondition{Operator: OpGTE, Threshold: 5}
	passed, err := cond.Evaluate(ctx, long)
	assert.NoError(t, err)
	assert.True(t, passed)
	assert.InDelta(t, 10.0, cond.Operands().Calculated, 1e-9)

	// The same move is a loss for a short position.
	short := buyContext(90, 5, 100)
	short.Quotes = quotes
	short.Transaction = &store.TransactionRecord{OpenPrice: 100, Status: types.TxOpened}
	short.EntryOrder = &store.TradingOrderRecord{Side: types.SideSell, LimitPrice: 100}

	passed, err = cond.Evaluate(ctx, short)
	assert.NoError(t, err)
	assert.False(t, passed)
	assert.InDelta(t, -10.0, cond.Operands().Calculated, 1e-9)
}

func TestNewTargetHigherCondition(t *testing.T) {
	ec := buyContext(90, 10, 100) // target = 100 * 1.10 = 110
	ec.CurrentTakeProfit = 105

	cond := &NewTargetHigherCondition{TolerancePercent: 1}
	passed, err := cond.Evaluate(context.Background(), ec)
	assert.NoError(t, err)
	assert.True(t, passed)
	assert.Equal(t, 105.0, cond.Operands().Left)
	assert.InDelta(t, 110.0, cond.Operands().Right, 1e-9)

	// Within tolerance: not higher enough.
	ec.CurrentTakeProfit = 109.5
	passed, err = cond.Evaluate(context.Background(), ec)
	assert.NoError(t, err)
	assert.False(t, passed)
}

func TestNewTargetHigherWithoutCurrentTP(t *testing.T) {
	ec := buyContext(90, 10, 100)
	cond := &NewTargetHigherCondition{TolerancePercent: 1}
	passed, err := cond.Evaluate(context.Background(), ec)
	assert.Error(t, err)
	assert.False(t, passed)
	// The flag variant records operands even when it cannot compare.
	assert.InDelta(t, 110.0, cond.Operands().Right, 1e-9)
}

func TestNewTargetLowerCondition(t *testing.T) {
	ec := buyContext(90, 2, 100) // target = 102
	ec.CurrentTakeProfit = 110

	cond := &NewTargetLowerCondition{TolerancePercent: 1}
	passed, err := cond.Evaluate(context.Background(), ec)
	assert.NoError(t, err)
	assert.True(t, passed)
}

func TestEvaluateContainedTurnsErrorsIntoFailedReports(t *testing.T) {
	cond := &NewTargetHigherCondition{TolerancePercent: 1}
	report := evaluateContained(context.Background(), cond, buyContext(90, 10, 100))
	assert.False(t, report.Passed)
	assert.NotEmpty(t, report.Err)
	assert.Equal(t, CondNewTargetHigher, report.Type)
}

func TestTargetPriceMath(t *testing.T) {
	assert.InDelta(t, 210.0, TargetPrice(200, 5, types.SideBuy), 1e-9)
	assert.InDelta(t, 190.0, TargetPrice(200, 5, types.SideSell), 1e-9)
	assert.InDelta(t, 198.0, TargetPrice(200, -1, types.SideBuy), 1e-9)
}
