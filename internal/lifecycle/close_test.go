package lifecycle

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/gateway/broker"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// openFilledPosition drives a position all the way to OPENED with a live
// TP/SL guard at the broker.
func openFilledPosition(t *testing.T, m *Manager, st store.Store, paper *broker.Paper, qty float64) *store.TransactionRecord {
	t.Helper()
	ctx := context.Background()
	tx, entry, _ := openPendingPosition(t, m, st)
	sizeAndSubmitEntry(t, m, st, entry, qty)
	paper.SetStatus(entry.BrokerOrderID, types.StatusFilled)
	require.NoError(t, m.RefreshOrders(ctx))

	tx, err := st.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, types.TxOpened, tx.Status)
	return tx
}

func findClosingOrder(t *testing.T, st store.Store, txID int64) *store.TradingOrderRecord {
	t.Helper()
	orders, err := st.ListOrdersByTransaction(context.Background(), txID)
	require.NoError(t, err)
	for i := range orders {
		if orders[i].IsClosingOrder() {
			return &orders[i]
		}
	}
	return nil
}

func TestCloseTransactionFlattensOpenPosition(t *testing.T) {
	ctx := context.Background()
	m, st, paper := newTestManager(t, map[string]float64{"AAPL": 100},
		staticRulesets{types.UseCaseEnterMarket: entryRuleset()})
	tx := openFilledPosition(t, m, st, paper, 4)

	require.NoError(t, m.CloseTransaction(ctx, tx.ID))

	tx, err := st.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TxClosing, tx.Status)

	closing := findClosingOrder(t, st, tx.ID)
	require.NotNil(t, closing)
	assert.Equal(t, types.OrderTypeMarket, closing.OrderType)
	assert.Equal(t, types.SideSell, closing.Side)
	assert.InDelta(t, 4.0, closing.Quantity, 1e-9)
	assert.Equal(t, types.StatusOpen, closing.Status)

	// The live guard was cancelled before the offsetting order went out.
	orders, err := st.ListOrdersByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	for _, o := range orders {
		if o.OrderType == types.OrderTypeStopLimit {
			assert.Equal(t, types.StatusCanceled, o.Status)
		}
	}

	// The closing fill settles the transaction.
	paper.SetStatus(closing.BrokerOrderID, types.StatusFilled)
	require.NoError(t, m.RefreshOrders(ctx))
	tx, err = st.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TxClosed, tx.Status)
	require.NotNil(t, tx.CloseDate)
}

func TestCloseTransactionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, st, paper := newTestManager(t, map[string]float64{"AAPL": 100},
		staticRulesets{types.UseCaseEnterMarket: entryRuleset()})
	tx := openFilledPosition(t, m, st, paper, 4)

	require.NoError(t, m.CloseTransaction(ctx, tx.ID))
	orders, err := st.ListOrdersByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	submits := paper.SubmitCount()

	// A second close while the closing order is in flight is a no-op.
	require.NoError(t, m.CloseTransaction(ctx, tx.ID))
	again, err := st.ListOrdersByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, again, len(orders))
	assert.Equal(t, submits, paper.SubmitCount())
}

func TestCloseNeverFilledTransaction(t *testing.T) {
	ctx := context.Background()
	m, st, paper := newTestManager(t, map[string]float64{"AAPL": 100},
		staticRulesets{types.UseCaseEnterMarket: entryRuleset()})
	tx, entry, guard := openPendingPosition(t, m, st)

	require.NoError(t, m.CloseTransaction(ctx, tx.ID))

	// No fill, so no offsetting order is needed.
	assert.Zero(t, paper.SubmitCount())
	assert.Nil(t, findClosingOrder(t, st, tx.ID))

	// The waiting guard is gone, the unsubmitted entry is cancelled.
	_, err := st.GetOrder(ctx, guard.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	entry, err = st.GetOrder(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCanceled, entry.Status)

	tx, err = st.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TxClosed, tx.Status)
	require.NotNil(t, tx.CloseDate)

	// Closing an already-closed transaction stays a no-op.
	require.NoError(t, m.CloseTransaction(ctx, tx.ID))
}

func TestRuleCloseSharesManualCloseLock(t *testing.T) {
	ctx := context.Background()
	m, st, paper := newTestManager(t, map[string]float64{"AAPL": 100},
		staticRulesets{types.UseCaseEnterMarket: entryRuleset()})
	openFilledPosition(t, m, st, paper, 4)

	ec := evalContextFor(t, m, st)
	release, ok := m.locks.Acquire("expert:1:close", 0)
	require.True(t, ok)

	// While a manual close holds the lock, the rule-driven close backs
	// off instead of racing a second closing order into existence.
	_, err := m.ClosePosition(ctx, ec, "drawdown limit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scope lock busy")
	assert.Nil(t, findClosingOrder(t, st, ec.Transaction.ID))

	release()
	_, err = m.ClosePosition(ctx, ec, "drawdown limit")
	require.NoError(t, err)
	require.NotNil(t, findClosingOrder(t, st, ec.Transaction.ID))
}

func TestRetryCloseResubmitsErroredClosingOrder(t *testing.T) {
	ctx := context.Background()
	m, st, paper := newTestManager(t, map[string]float64{"AAPL": 100},
		staticRulesets{types.UseCaseEnterMarket: entryRuleset()})
	tx := openFilledPosition(t, m, st, paper, 4)

	paper.FailSubmissions(fmt.Errorf("broker unavailable"))
	err := m.CloseTransaction(ctx, tx.ID)
	require.Error(t, err)

	closing := findClosingOrder(t, st, tx.ID)
	require.NotNil(t, closing)
	assert.Equal(t, types.StatusError, closing.Status)
	assert.Contains(t, closing.StatusReason, "broker unavailable")

	tx, err = st.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TxClosing, tx.Status)

	// Once the broker recovers, the retry resubmits the same order.
	paper.FailSubmissions(nil)
	require.NoError(t, m.RetryClose(ctx, tx.ID))

	reloaded, err := st.GetOrder(ctx, closing.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, reloaded.Status)
	assert.NotEmpty(t, reloaded.BrokerOrderID)

	// No duplicate closing order was created.
	orders, err := st.ListOrdersByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	count := 0
	for _, o := range orders {
		if o.IsClosingOrder() {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
