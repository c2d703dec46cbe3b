// Package risk converts zero-quantity intent orders into sized orders
// under per-instrument capital caps, with a top-rank conviction
// exception for expensive high-expectation candidates.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/gateway/quote"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/lifecycle"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/logger"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// Defaults apply when an expert has no persisted settings row.
type Defaults struct {
	VirtualBalance            float64
	MaxEquityPerInstrumentPct float64 // fraction of virtual balance per symbol
	AllocationFraction        float64 // share of remaining cap given to one new order
	TopRankException          int
	LockTimeout               time.Duration
}

func (d Defaults) withFallbacks() Defaults {
	if d.MaxEquityPerInstrumentPct <= 0 {
		d.MaxEquityPerInstrumentPct = 0.10
	}
	if d.AllocationFraction <= 0 {
		d.AllocationFraction = 0.5
	}
	if d.TopRankException <= 0 {
		d.TopRankException = 3
	}
	if d.LockTimeout <= 0 {
		d.LockTimeout = 500 * time.Millisecond
	}
	return d
}

// Sizer runs the position-sizing pass. Each pass is serialized per
// expert and persists all quantity decisions in one batch so concurrent
// runs never see a half-allocated budget.
type Sizer struct {
	store    store.Store
	quotes   quote.Source
	locks    *lifecycle.ScopeLocks
	defaults Defaults
}

func NewSizer(st store.Store, quotes quote.Source, defaults Defaults) (*Sizer, error) {
	if st == nil {
		return nil, fmt.Errorf("risk: store is required")
	}
	if quotes == nil {
		return nil, fmt.Errorf("risk: quote source is required")
	}
	return &Sizer{
		store:    st,
		quotes:   quotes,
		locks:    lifecycle.NewScopeLocks(),
		defaults: defaults.withFallbacks(),
	}, nil
}

// candidate pairs an unsized order with the recommendation that
// produced it, for ranking.
type candidate struct {
	order store.TradingOrderRecord
	rec   *store.RecommendationRecord
	price float64
}

// SizePendingOrders ranks the expert's zero-quantity orders by expected
// profit (ties broken by ascending recommendation id), allocates under
// the per-instrument cap with a diversification bias, applies the
// top-rank exception, and persists every decision in a single batch.
func (s *Sizer) SizePendingOrders(ctx context.Context, expertID int64) ([]store.TradingOrderRecord, error) {
	release, ok := s.locks.Acquire(fmt.Sprintf("expert:%d:sizing", expertID), s.defaults.LockTimeout)
	if !ok {
		logger.Warnf("risk: skip sizing pass expert=%d: lock busy", expertID)
		return nil, nil
	}
	defer release()

	settings, err := s.loadSettings(ctx, expertID)
	if err != nil {
		return nil, err
	}
	orders, err := s.store.ListUnsizedOrders(ctx, expertID)
	if err != nil {
		return nil, fmt.Errorf("list unsized orders: %w", err)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	candidates, err := s.collectCandidates(ctx, orders)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.rec.ExpectedProfitPercent != b.rec.ExpectedProfitPercent {
			return a.rec.ExpectedProfitPercent > b.rec.ExpectedProfitPercent
		}
		return a.rec.ID < b.rec.ID
	})

	committed, total, err := s.committedEquity(ctx, expertID)
	if err != nil {
		return nil, err
	}
	remaining := settings.VirtualBalance - total
	perInstrumentCap := settings.VirtualBalance * settings.MaxEquityPerInstrumentPct

	updated := make([]store.TradingOrderRecord, 0, len(candidates))
	for rank, c := range candidates {
		order := c.order
		qty := s.allocate(rank+1, c, perInstrumentCap-committed[order.Symbol], remaining, settings)
		if qty > 0 {
			spent := qty * c.price
			committed[order.Symbol] += spent
			remaining -= spent
			order.Quantity = qty
			logger.Infof("risk: sized order %d %s qty=%.0f @ %.2f (rank %d)",
				order.ID, order.Symbol, qty, c.price, rank+1)
		} else {
			// Dropped, not deleted: the order stays auditable.
			order.Quantity = 0
			order.Status = types.StatusCanceled
			order.StatusReason = "insufficient capital for one share"
			logger.Warnf("risk: order %d %s unaffordable at %.2f (rank %d)",
				order.ID, order.Symbol, c.price, rank+1)
		}
		order.UpdatedAt = time.Now()
		updated = append(updated, order)
	}

	if err := s.store.UpdateOrdersBatch(ctx, updated); err != nil {
		return nil, fmt.Errorf("persist sized orders: %w", err)
	}
	for _, o := range updated {
		if o.Status != types.StatusCanceled || o.TransactionID == 0 {
			continue
		}
		if err := s.closeDeadTransaction(ctx, o.TransactionID); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// closeDeadTransaction closes a never-opened transaction whose entry
// the sizing pass dropped. Without this the WAITING row would hold the
// (expert, symbol) pair hostage through the duplicate-transaction guard
// forever; the refresh pass cleans up any dependent guard orders once
// the parent is terminal.
func (s *Sizer) closeDeadTransaction(ctx context.Context, txID int64) error {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load transaction %d: %w", txID, err)
	}
	if tx.Status != types.TxWaiting {
		return nil
	}
	now := time.Now()
	tx.Status = types.TxClosed
	tx.CloseDate = &now
	tx.UpdatedAt = now
	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("close transaction %d: %w", txID, err)
	}
	logger.Infof("risk: closed transaction %d after dropping its entry order", txID)
	return nil
}

// allocate returns the share quantity for one candidate. The standard
// path sizes from the instrument's remaining cap, scaled down so later
// candidates can still be funded. The exception path grants one share
// to a top-ranked candidate whose price busts the cap but fits the
// remaining balance.
func (s *Sizer) allocate(rank int, c candidate, capBudget, remaining float64, settings Defaults) float64 {
	if c.price <= 0 || remaining <= 0 {
		return 0
	}
	alloc := capBudget * settings.AllocationFraction
	if alloc > remaining {
		alloc = remaining
	}
	qty := math.Floor(alloc / c.price)
	if qty >= 1 {
		return qty
	}
	if rank <= settings.TopRankException && c.price <= remaining {
		return 1
	}
	return 0
}

func (s *Sizer) loadSettings(ctx context.Context, expertID int64) (Defaults, error) {
	rec, err := s.store.GetExpertSettings(ctx, expertID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.defaults, nil
		}
		return Defaults{}, fmt.Errorf("load expert settings: %w", err)
	}
	settings := s.defaults
	if rec.VirtualBalance > 0 {
		settings.VirtualBalance = rec.VirtualBalance
	}
	if rec.MaxEquityPerInstrumentPct > 0 {
		settings.MaxEquityPerInstrumentPct = rec.MaxEquityPerInstrumentPct
	}
	if rec.AllocationFraction > 0 {
		settings.AllocationFraction = rec.AllocationFraction
	}
	if rec.TopRankException > 0 {
		settings.TopRankException = rec.TopRankException
	}
	return settings, nil
}

func (s *Sizer) collectCandidates(ctx context.Context, orders []store.TradingOrderRecord) ([]candidate, error) {
	candidates := make([]candidate, 0, len(orders))
	for _, o := range orders {
		rec, err := s.store.GetRecommendation(ctx, o.RecommendationID)
		if err != nil {
			logger.Errorf("risk: order %d has no recommendation %d: %v", o.ID, o.RecommendationID, err)
			continue
		}
		price := o.LimitPrice
		if price <= 0 {
			price, err = s.quotes.LatestPrice(ctx, o.Symbol)
			if err != nil {
				logger.Warnf("risk: no price for %s, deferring order %d: %v", o.Symbol, o.ID, err)
				continue
			}
		}
		candidates = append(candidates, candidate{order: o, rec: rec, price: price})
	}
	return candidates, nil
}

// committedEquity sums equity already bound per symbol: open positions
// plus sized-but-unfilled live orders.
func (s *Sizer) committedEquity(ctx context.Context, expertID int64) (map[string]float64, float64, error) {
	committed := make(map[string]float64)
	total := 0.0

	txs, err := s.store.ListActiveTransactions(ctx, expertID)
	if err != nil {
		return nil, 0, fmt.Errorf("list active transactions: %w", err)
	}
	for _, tx := range txs {
		if tx.Status == types.TxOpened && tx.Quantity > 0 {
			v := tx.Quantity * tx.OpenPrice
			committed[tx.Symbol] += v
			total += v
		}
	}

	live, err := s.store.ListOrdersByStatus(ctx, types.StatusPendingNew, types.StatusOpen)
	if err != nil {
		return nil, 0, fmt.Errorf("list live orders: %w", err)
	}
	for _, o := range live {
		if o.ExpertInstanceID != expertID || o.IsClosingOrder() || o.DependsOnOrderID != 0 {
			continue
		}
		if o.Quantity > 0 && o.LimitPrice > 0 {
			v := o.Quantity * o.LimitPrice
			committed[o.Symbol] += v
			total += v
		}
	}
	return committed, total, nil
}
