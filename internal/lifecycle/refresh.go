package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/logger"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// RefreshOrders is the periodic broker-sync pass. It runs in three
// stages, in order: pull broker statuses for live orders, apply
// terminal-state consequences to transactions, then resolve
// WAITING_TRIGGER dependents. Terminal handling runs before trigger
// checks so a cancelled parent cancels its dependents instead of
// triggering them.
func (m *Manager) RefreshOrders(ctx context.Context) error {
	live, err := m.store.ListOrdersByStatus(ctx, types.StatusPendingNew, types.StatusOpen)
	if err != nil {
		return fmt.Errorf("list live orders: %w", err)
	}
	for i := range live {
		o := &live[i]
		if o.BrokerOrderID == "" {
			continue
		}
		status, err := m.gateway.RefreshStatus(ctx, o)
		if err != nil {
			logger.Warnf("lifecycle: refresh order %d (%s): %v", o.ID, o.BrokerOrderID, err)
			continue
		}
		if status == o.Status {
			continue
		}
		logger.Infof("lifecycle: order %d %s -> %s", o.ID, o.Status, status)
		o.Status = status
		o.UpdatedAt = time.Now()
		if err := m.store.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("persist status of order %d: %w", o.ID, err)
		}
		if status.IsTerminal() {
			if err := m.syncTransactionForOrder(ctx, o); err != nil {
				return err
			}
		}
	}
	return m.resolveWaitingTriggers(ctx)
}

// resolveWaitingTriggers walks the WAITING_TRIGGER backlog. A dependent
// whose parent reached its trigger status is submitted exactly once
// (submission moves it out of WAITING_TRIGGER); a parent that ended
// terminal any other way takes the dependent down with it.
func (m *Manager) resolveWaitingTriggers(ctx context.Context) error {
	waiting, err := m.store.ListOrdersByStatus(ctx, types.StatusWaitingTrigger)
	if err != nil {
		return fmt.Errorf("list waiting orders: %w", err)
	}
	for i := range waiting {
		dep := &waiting[i]
		if dep.DependsOnOrderID == 0 {
			logger.Errorf("lifecycle: waiting order %d has no parent", dep.ID)
			continue
		}
		parent, err := m.store.GetOrder(ctx, dep.DependsOnOrderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				dep.Status = types.StatusCanceled
				dep.StatusReason = "parent order removed"
				if err := m.store.UpdateOrder(ctx, dep); err != nil {
					return fmt.Errorf("cancel orphan order %d: %w", dep.ID, err)
				}
				continue
			}
			return fmt.Errorf("load parent of order %d: %w", dep.ID, err)
		}
		if !parent.Status.IsTerminal() {
			continue
		}
		trigger := dep.Metadata.TriggerStatus()
		if parent.Status != trigger {
			dep.Status = parent.Status
			dep.StatusReason = fmt.Sprintf("parent order %d ended %s", parent.ID, parent.Status)
			if err := m.store.UpdateOrder(ctx, dep); err != nil {
				return fmt.Errorf("propagate terminal status to order %d: %w", dep.ID, err)
			}
			logger.Infof("lifecycle: order %d inherited %s from parent %d", dep.ID, parent.Status, parent.ID)
			continue
		}
		if dep.Quantity <= 0 {
			dep.Quantity = parent.Quantity
		}
		dep.Status = types.StatusPendingNew
		if err := m.submitOrder(ctx, dep); err != nil {
			logger.Errorf("lifecycle: trigger submit of order %d failed: %v", dep.ID, err)
			continue
		}
		logger.Infof("lifecycle: order %d triggered by parent %d fill", dep.ID, parent.ID)
	}
	return nil
}

// syncTransactionForOrder applies one terminal order status to its
// transaction.
func (m *Manager) syncTransactionForOrder(ctx context.Context, order *store.TradingOrderRecord) error {
	if order.TransactionID == 0 {
		return nil
	}
	tx, err := m.store.GetTransaction(ctx, order.TransactionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load transaction %d: %w", order.TransactionID, err)
	}
	now := time.Now()

	switch {
	case order.Status == types.StatusFilled && order.IsClosingOrder():
		tx.Status = types.TxClosed
		tx.CloseDate = &now
		m.sendNotification(fmt.Sprintf("position closed: %s (tx %d)", tx.Symbol, tx.ID))
	case order.Status == types.StatusFilled && order.DependsOnOrderID != 0:
		// The consolidated TP/SL order filled: position is flat.
		tx.Status = types.TxClosed
		tx.CloseDate = &now
		m.sendNotification(fmt.Sprintf("TP/SL filled: %s (tx %d)", tx.Symbol, tx.ID))
	case order.Status == types.StatusFilled:
		tx.Status = types.TxOpened
		tx.Quantity = order.Quantity
		tx.OpenPrice = m.fillPrice(ctx, order)
		tx.OpenDate = &now
		m.sendNotification(fmt.Sprintf("position opened: %s %s qty=%.4f @ %.4f (tx %d)",
			order.Side, tx.Symbol, order.Quantity, tx.OpenPrice, tx.ID))
	case tx.Status == types.TxWaiting:
		// Entry died without a fill; the transaction never opened.
		if order.DependsOnOrderID == 0 && !order.IsClosingOrder() {
			tx.Status = types.TxClosed
			tx.CloseDate = &now
		} else {
			return nil
		}
	default:
		return nil
	}
	tx.UpdatedAt = now
	if err := m.store.UpdateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("sync transaction %d: %w", tx.ID, err)
	}
	return nil
}

// fillPrice estimates the execution price of a filled order: the limit
// price when the order carried one, otherwise the latest quote. The
// gateway status feed does not report execution prices.
func (m *Manager) fillPrice(ctx context.Context, order *store.TradingOrderRecord) float64 {
	if order.LimitPrice > 0 {
		return order.LimitPrice
	}
	price, err := m.quotes.LatestPrice(ctx, order.Symbol)
	if err != nil {
		logger.Warnf("lifecycle: no fill price for order %d (%s): %v", order.ID, order.Symbol, err)
		return 0
	}
	return price
}
