package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/gateway/broker"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/logger"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/rules"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// OpenPosition materializes a new zero-quantity entry order plus (when
// TP/SL percents are present) one consolidated opposite STOP_LIMIT
// order waiting on the entry fill. The duplicate-transaction guard runs
// first: it is a safety net independent of the scope lock.
func (m *Manager) OpenPosition(ctx context.Context, ec *rules.EvalContext, intent rules.OpenIntent) ([]int64, error) {
	symbol := ec.Recommendation.Symbol
	if ec.Recommendation.Action == types.RecommendHold {
		return nil, fmt.Errorf("HOLD recommendation cannot open a position for %s", symbol)
	}
	existing, err := m.store.FindActiveTransaction(ctx, ec.ExpertInstanceID, symbol)
	if err == nil && existing != nil {
		logger.Warnf("lifecycle: duplicate transaction guard hit expert=%d symbol=%s tx=%d",
			ec.ExpertInstanceID, symbol, existing.ID)
		return nil, fmt.Errorf("%w: expert=%d symbol=%s", ErrDuplicateTransaction, ec.ExpertInstanceID, symbol)
	}
	if err != nil && err != store.ErrNotFound {
		return nil, fmt.Errorf("duplicate guard query: %w", err)
	}

	tx := store.TransactionRecord{
		AccountID:        m.opts.AccountID,
		ExpertInstanceID: ec.ExpertInstanceID,
		Symbol:           symbol,
		Status:           types.TxWaiting,
	}
	if err := m.store.InsertTransaction(ctx, &tx); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	orderType := types.OrderTypeLimit
	if intent.LimitPrice <= 0 {
		orderType = types.OrderTypeMarket
	}
	entry := store.TradingOrderRecord{
		AccountID:        m.opts.AccountID,
		ExpertInstanceID: ec.ExpertInstanceID,
		RecommendationID: ec.Recommendation.ID,
		TransactionID:    tx.ID,
		Symbol:           symbol,
		Side:             intent.Side,
		OrderType:        orderType,
		Quantity:         0, // sized by the risk engine before submission
		LimitPrice:       intent.LimitPrice,
		Status:           types.StatusPendingNew,
		Metadata: types.OrderMetadata{
			RiskControls: &types.RiskControls{
				TakeProfitPercent: intent.TakeProfitPercent,
				StopLossPercent:   intent.StopLossPercent,
			},
		},
	}
	if err := m.store.InsertOrder(ctx, &entry); err != nil {
		return nil, fmt.Errorf("insert entry order: %w", err)
	}
	ids := []int64{entry.ID}

	if intent.TakeProfitPercent != 0 || intent.StopLossPercent != 0 {
		basis := intent.LimitPrice
		if basis <= 0 {
			basis = ec.Recommendation.ReferencePrice
		}
		guard, err := m.buildConsolidatedOrder(ec, tx.ID, entry.ID, intent, basis)
		if err != nil {
			return ids, fmt.Errorf("build TP/SL order: %w", err)
		}
		if err := m.store.InsertOrder(ctx, guard); err != nil {
			return ids, fmt.Errorf("insert TP/SL order: %w", err)
		}
		ids = append(ids, guard.ID)
	}

	m.sendNotification(fmt.Sprintf("open intent: %s %s (expert %d, rec %d)",
		intent.Side, symbol, ec.ExpertInstanceID, ec.Recommendation.ID))
	return ids, nil
}

// buildConsolidatedOrder creates the single opposite STOP_LIMIT that
// carries both TP (limit) and SL (stop) prices, WAITING_TRIGGER until
// the entry fills.
func (m *Manager) buildConsolidatedOrder(ec *rules.EvalContext, txID, entryID int64, intent rules.OpenIntent, basis float64) (*store.TradingOrderRecord, error) {
	if basis <= 0 {
		return nil, fmt.Errorf("no price basis for TP/SL computation")
	}
	// Both percents are signed offsets along the position direction;
	// a long carries a negative stop-loss percent.
	var tpPrice, slPrice float64
	if intent.TakeProfitPercent != 0 {
		tpPrice = rules.TargetPrice(basis, intent.TakeProfitPercent, intent.Side)
	}
	if intent.StopLossPercent != 0 {
		slPrice = rules.TargetPrice(basis, intent.StopLossPercent, intent.Side)
	}
	controls := types.RiskControls{
		TakeProfitPercent: intent.TakeProfitPercent,
		StopLossPercent:   intent.StopLossPercent,
		TakeProfitPrice:   tpPrice,
		StopLossPrice:     slPrice,
		TriggerStatus:     string(types.StatusFilled),
	}
	return &store.TradingOrderRecord{
		AccountID:        m.opts.AccountID,
		ExpertInstanceID: ec.ExpertInstanceID,
		RecommendationID: ec.Recommendation.ID,
		TransactionID:    txID,
		Symbol:           ec.Recommendation.Symbol,
		Side:             intent.Side.Opposite(),
		OrderType:        guardOrderType(controls),
		Quantity:         0, // synced to the filled quantity at submission
		LimitPrice:       tpPrice,
		StopPrice:        slPrice,
		Status:           types.StatusWaitingTrigger,
		DependsOnOrderID: entryID,
		Metadata: types.OrderMetadata{
			RiskControls: &controls,
		},
	}, nil
}

// guardOrderType picks the broker order type for the consolidated
// opposite order. Both legs need a STOP_LIMIT; a TP-only guard is a
// plain LIMIT and an SL-only guard a plain STOP, since a zero-priced
// missing leg would be rejected at the broker.
func guardOrderType(controls types.RiskControls) types.OrderType {
	switch {
	case controls.TakeProfitPrice > 0 && controls.StopLossPrice > 0:
		return types.OrderTypeStopLimit
	case controls.TakeProfitPrice > 0:
		return types.OrderTypeLimit
	default:
		return types.OrderTypeStop
	}
}

// ClosePosition flattens the context's active transaction. It takes the
// same close scope lock as the manual path so a rule-driven close and a
// manual close can never race into two closing orders.
func (m *Manager) ClosePosition(ctx context.Context, ec *rules.EvalContext, reason string) ([]int64, error) {
	if ec.Transaction == nil {
		return nil, fmt.Errorf("no active transaction for %s", ec.Recommendation.Symbol)
	}
	res, err := m.closeWithLock(ctx, ec.Transaction.ExpertInstanceID, ec.Transaction.ID, reason)
	if err != nil {
		return nil, err
	}
	return res.OrderIDs, nil
}

// AdjustRisk updates the TP or SL leg and re-consolidates the single
// opposite order. The broker never sees two opposite-direction orders:
// a live one is replaced (atomically when the gateway supports it),
// a not-yet-submitted one is edited in place.
func (m *Manager) AdjustRisk(ctx context.Context, ec *rules.EvalContext, adj rules.RiskAdjustment) ([]int64, error) {
	if ec.Transaction == nil || ec.EntryOrder == nil {
		return nil, fmt.Errorf("no open position to adjust for %s", ec.Recommendation.Symbol)
	}
	tx := ec.Transaction
	entry := ec.EntryOrder
	oppSide := entry.Side.Opposite()

	existing, err := m.store.FindOppositeOrder(ctx, tx.ID, oppSide)
	if err != nil && err != store.ErrNotFound {
		return nil, fmt.Errorf("find opposite order: %w", err)
	}

	controls := types.RiskControls{TriggerStatus: string(types.StatusFilled)}
	if existing != nil && existing.Metadata.RiskControls != nil {
		controls = *existing.Metadata.RiskControls
	}
	switch adj.Kind {
	case rules.ActionAdjustTakeProfit:
		controls.TakeProfitPercent = adj.Percent
		controls.TakeProfitPrice = adj.Price
	case rules.ActionAdjustStopLoss:
		controls.StopLossPercent = adj.Percent
		controls.StopLossPrice = adj.Price
	default:
		return nil, fmt.Errorf("unsupported risk adjustment %q", adj.Kind)
	}

	quantity := tx.Quantity
	if quantity <= 0 && existing != nil {
		quantity = existing.Quantity
	}

	if existing == nil {
		return m.createOppositeOrder(ctx, tx, entry, oppSide, controls, quantity)
	}
	if existing.Status == types.StatusWaitingTrigger {
		// Not at the broker yet: edit in place.
		existing.OrderType = guardOrderType(controls)
		existing.LimitPrice = controls.TakeProfitPrice
		existing.StopPrice = controls.StopLossPrice
		existing.Metadata.RiskControls = &controls
		if err := m.store.UpdateOrder(ctx, existing); err != nil {
			return nil, fmt.Errorf("update waiting TP/SL order: %w", err)
		}
		return []int64{existing.ID}, nil
	}
	return m.replaceOppositeOrder(ctx, tx, existing, controls, quantity)
}

func (m *Manager) createOppositeOrder(ctx context.Context, tx *store.TransactionRecord, entry *store.TradingOrderRecord, side types.OrderSide, controls types.RiskControls, quantity float64) ([]int64, error) {
	order := store.TradingOrderRecord{
		AccountID:        m.opts.AccountID,
		ExpertInstanceID: tx.ExpertInstanceID,
		TransactionID:    tx.ID,
		Symbol:           tx.Symbol,
		Side:             side,
		OrderType:        guardOrderType(controls),
		Quantity:         quantity,
		LimitPrice:       controls.TakeProfitPrice,
		StopPrice:        controls.StopLossPrice,
		Status:           types.StatusWaitingTrigger,
		DependsOnOrderID: entry.ID,
		Metadata:         types.OrderMetadata{RiskControls: &controls},
	}
	if entry.Status == types.StatusFilled && quantity > 0 {
		// Entry already filled: no trigger to wait for, go live now.
		order.Status = types.StatusPendingNew
		order.DependsOnOrderID = 0
		if err := m.store.InsertOrder(ctx, &order); err != nil {
			return nil, fmt.Errorf("insert TP/SL order: %w", err)
		}
		if err := m.submitOrder(ctx, &order); err != nil {
			return []int64{order.ID}, err
		}
		return []int64{order.ID}, nil
	}
	if err := m.store.InsertOrder(ctx, &order); err != nil {
		return nil, fmt.Errorf("insert TP/SL order: %w", err)
	}
	return []int64{order.ID}, nil
}

// replaceOppositeOrder swaps a live opposite order for new terms. The
// old order is marked REPLACED either way; with no atomic replace the
// old/new pair may briefly coexist at the broker, which is tolerated.
func (m *Manager) replaceOppositeOrder(ctx context.Context, tx *store.TransactionRecord, old *store.TradingOrderRecord, controls types.RiskControls, quantity float64) ([]int64, error) {
	terms := orderTerms(tx.Symbol, old.Side, quantity, controls)
	newOrder := store.TradingOrderRecord{
		AccountID:        m.opts.AccountID,
		ExpertInstanceID: tx.ExpertInstanceID,
		TransactionID:    tx.ID,
		Symbol:           tx.Symbol,
		Side:             old.Side,
		OrderType:        guardOrderType(controls),
		Quantity:         quantity,
		LimitPrice:       controls.TakeProfitPrice,
		StopPrice:        controls.StopLossPrice,
		Status:           types.StatusPendingNew,
		Metadata:         types.OrderMetadata{RiskControls: &controls},
	}

	if m.gateway.SupportsReplace() {
		brokerID, err := m.gateway.Replace(ctx, old.BrokerOrderID, terms)
		if err != nil {
			return nil, fmt.Errorf("replace order %s: %w", old.BrokerOrderID, err)
		}
		newOrder.BrokerOrderID = brokerID
		newOrder.Status = types.StatusOpen
	} else {
		if err := m.gateway.Cancel(ctx, old.BrokerOrderID); err != nil {
			return nil, fmt.Errorf("cancel order %s: %w", old.BrokerOrderID, err)
		}
	}

	old.Status = types.StatusReplaced
	old.StatusReason = "superseded by TP/SL adjustment"
	if err := m.store.UpdateOrder(ctx, old); err != nil {
		return nil, fmt.Errorf("mark order %d replaced: %w", old.ID, err)
	}
	if err := m.store.InsertOrder(ctx, &newOrder); err != nil {
		return nil, fmt.Errorf("insert replacement order: %w", err)
	}
	if newOrder.Status == types.StatusPendingNew {
		if err := m.submitOrder(ctx, &newOrder); err != nil {
			return []int64{old.ID, newOrder.ID}, err
		}
	}
	m.sendNotification(fmt.Sprintf("TP/SL updated: %s tp=%.4f sl=%.4f (tx %d)",
		tx.Symbol, controls.TakeProfitPrice, controls.StopLossPrice, tx.ID))
	return []int64{old.ID, newOrder.ID}, nil
}

func orderTerms(symbol string, side types.OrderSide, quantity float64, controls types.RiskControls) broker.OrderTerms {
	return broker.OrderTerms{
		Symbol:     symbol,
		Side:       side,
		OrderType:  guardOrderType(controls),
		Quantity:   quantity,
		LimitPrice: controls.TakeProfitPrice,
		StopPrice:  controls.StopLossPrice,
	}
}

// submitOrder sends a persisted order to the gateway and records the
// outcome. Submission failures park the order in ERROR; nothing retries
// automatically.
func (m *Manager) submitOrder(ctx context.Context, order *store.TradingOrderRecord) error {
	brokerID, err := m.gateway.Submit(ctx, order)
	if err != nil {
		order.Status = types.StatusError
		order.StatusReason = err.Error()
		if uerr := m.store.UpdateOrder(ctx, order); uerr != nil {
			logger.Errorf("lifecycle: record submit error for order %d: %v", order.ID, uerr)
		}
		return fmt.Errorf("submit order %d: %w", order.ID, err)
	}
	order.BrokerOrderID = brokerID
	order.Status = types.StatusOpen
	order.StatusReason = ""
	order.UpdatedAt = time.Now()
	if err := m.store.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("persist submitted order %d: %w", order.ID, err)
	}
	return nil
}
