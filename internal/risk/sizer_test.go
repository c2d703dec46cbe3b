package risk

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/gateway/quote"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/store/gormstore"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

func newTestSizer(t *testing.T, prices map[string]float64, defaults Defaults) (*Sizer, *gormstore.GormStore) {
	t.Helper()
	st, err := gormstore.New(filepath.Join(t.TempDir(), "risk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s, err := NewSizer(st, quote.NewStatic(prices), defaults)
	require.NoError(t, err)
	return s, st
}

// insertCandidate persists a recommendation plus the matching unsized
// entry order and returns the order.
func insertCandidate(t *testing.T, st store.Store, symbol string, profit, price float64) *store.TradingOrderRecord {
	t.Helper()
	ctx := context.Background()
	rec := &store.RecommendationRecord{
		ExpertInstanceID:      1,
		Symbol:                symbol,
		Action:                types.RecommendBuy,
		Confidence:            90,
		ExpectedProfitPercent: profit,
		ReferencePrice:        price,
	}
	require.NoError(t, st.InsertRecommendation(ctx, rec))
	order := &store.TradingOrderRecord{
		AccountID:        1,
		ExpertInstanceID: 1,
		RecommendationID: rec.ID,
		Symbol:           symbol,
		Side:             types.SideBuy,
		OrderType:        types.OrderTypeLimit,
		LimitPrice:       price,
		Status:           types.StatusPendingNew,
	}
	require.NoError(t, st.InsertOrder(ctx, order))
	return order
}

func TestStandardAllocationRespectsInstrumentCap(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSizer(t, nil, Defaults{VirtualBalance: 10000})
	order := insertCandidate(t, st, "AAPL", 5, 50)

	updated, err := s.SizePendingOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, updated, 1)

	// Cap per instrument is $1,000; half of it goes to the first order.
	sized, err := st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, sized.Quantity, 1e-9)
	assert.Equal(t, types.StatusPendingNew, sized.Status)
	assert.LessOrEqual(t, sized.Quantity*sized.LimitPrice, 1000.0)
}

func TestTopRankExceptionGrantsOneShare(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSizer(t, nil, Defaults{VirtualBalance: 10000})

	// The expensive symbol has the highest expectation, so it ranks
	// first; one share busts the 10% cap but fits the balance.
	expensive := insertCandidate(t, st, "EXPN", 12, 2400)
	cheap := make([]*store.TradingOrderRecord, 0, 4)
	for i := 0; i < 4; i++ {
		cheap = append(cheap, insertCandidate(t, st, fmt.Sprintf("SYM%d", i), 5, 40))
	}

	_, err := s.SizePendingOrders(ctx, 1)
	require.NoError(t, err)

	sized, err := st.GetOrder(ctx, expensive.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sized.Quantity, 1e-9)
	assert.Equal(t, types.StatusPendingNew, sized.Status)

	// The cheap candidates still get their standard allocation.
	for _, o := range cheap {
		sized, err := st.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Greater(t, sized.Quantity, 0.0)
	}
}

func TestUnaffordableOrderIsCanceledNotDeleted(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSizer(t, nil, Defaults{VirtualBalance: 1000})
	order := insertCandidate(t, st, "EXPN", 12, 2400)

	updated, err := s.SizePendingOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, updated, 1)

	sized, err := st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Zero(t, sized.Quantity)
	assert.Equal(t, types.StatusCanceled, sized.Status)
	assert.Equal(t, "insufficient capital for one share", sized.StatusReason)
}

func TestUnaffordableEntryReleasesTransaction(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSizer(t, nil, Defaults{VirtualBalance: 1000})

	tx := &store.TransactionRecord{AccountID: 1, ExpertInstanceID: 1, Symbol: "EXPN", Status: types.TxWaiting}
	require.NoError(t, st.InsertTransaction(ctx, tx))
	order := insertCandidate(t, st, "EXPN", 12, 2400)
	order.TransactionID = tx.ID
	require.NoError(t, st.UpdateOrder(ctx, order))

	_, err := s.SizePendingOrders(ctx, 1)
	require.NoError(t, err)

	sized, err := st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCanceled, sized.Status)

	// The never-opened transaction is closed with its entry, freeing the
	// (expert, symbol) pair for the next recommendation.
	tx, err = st.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TxClosed, tx.Status)
	require.NotNil(t, tx.CloseDate)
	_, err = st.FindActiveTransaction(ctx, 1, "EXPN")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRankingOrdersByProfitThenRecommendationID(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSizer(t, nil, Defaults{VirtualBalance: 10000})

	a := insertCandidate(t, st, "AAA", 4, 50)
	b := insertCandidate(t, st, "BBB", 8, 50)
	c := insertCandidate(t, st, "CCC", 4, 50) // same profit as AAA, later id

	updated, err := s.SizePendingOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, updated, 3)

	assert.Equal(t, b.ID, updated[0].ID)
	assert.Equal(t, a.ID, updated[1].ID)
	assert.Equal(t, c.ID, updated[2].ID)
}

func TestCommittedEquityShrinksInstrumentBudget(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSizer(t, nil, Defaults{VirtualBalance: 10000})

	// $900 of AAPL already held leaves only $100 of the $1,000 cap.
	now := time.Now()
	tx := &store.TransactionRecord{
		AccountID:        1,
		ExpertInstanceID: 1,
		Symbol:           "AAPL",
		Quantity:         10,
		OpenPrice:        90,
		Status:           types.TxOpened,
		OpenDate:         &now,
	}
	require.NoError(t, st.InsertTransaction(ctx, tx))
	order := insertCandidate(t, st, "AAPL", 5, 50)

	_, err := s.SizePendingOrders(ctx, 1)
	require.NoError(t, err)

	sized, err := st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sized.Quantity, 1e-9)
}

func TestExpertSettingsOverrideDefaults(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSizer(t, nil, Defaults{VirtualBalance: 10000})
	require.NoError(t, st.UpsertExpertSettings(ctx, &store.ExpertSettingsRecord{
		ExpertInstanceID:          1,
		VirtualBalance:            2000,
		MaxEquityPerInstrumentPct: 0.5,
		AllocationFraction:        1,
	}))
	order := insertCandidate(t, st, "AAPL", 5, 100)

	_, err := s.SizePendingOrders(ctx, 1)
	require.NoError(t, err)

	// Cap = 2000 * 0.5, fully allocated: ten shares at $100.
	sized, err := st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, sized.Quantity, 1e-9)
}

func TestBusySizingLockSkipsPass(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSizer(t, nil, Defaults{VirtualBalance: 10000, LockTimeout: 10 * time.Millisecond})
	order := insertCandidate(t, st, "AAPL", 5, 50)

	release, ok := s.locks.Acquire("expert:1:sizing", 0)
	require.True(t, ok)
	defer release()

	updated, err := s.SizePendingOrders(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, updated)

	// The order is untouched for the next pass.
	sized, err := st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Zero(t, sized.Quantity)
	assert.Equal(t, types.StatusPendingNew, sized.Status)
}
