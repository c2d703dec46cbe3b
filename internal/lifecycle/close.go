package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/logger"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// closeResult reports what a close pass did.
type closeResult struct {
	OrderIDs       []int64
	AlreadyClosing bool
	AlreadyClosed  bool
	ClosingOrderID int64
	NothingToClose bool
}

// CloseTransaction flattens one transaction: waiting orders are deleted,
// unfilled live orders are cancelled, and a market closing order is
// submitted for any filled quantity. Calling it again while a closing
// order is in flight is a no-op.
func (m *Manager) CloseTransaction(ctx context.Context, txID int64) error {
	tx, err := m.store.GetTransaction(ctx, txID)
	if err != nil {
		return fmt.Errorf("load transaction %d: %w", txID, err)
	}
	_, err = m.closeWithLock(ctx, tx.ExpertInstanceID, txID, "manual close")
	return err
}

// closeWithLock serializes every close path, manual or rule-driven, on
// one per-expert key.
func (m *Manager) closeWithLock(ctx context.Context, expertID, txID int64, reason string) (*closeResult, error) {
	key := fmt.Sprintf("expert:%d:close", expertID)
	release, ok := m.locks.Acquire(key, m.opts.LockTimeout)
	if !ok {
		return nil, fmt.Errorf("close transaction %d: scope lock busy", txID)
	}
	defer release()
	return m.closeTransactionLocked(ctx, txID, reason)
}

// RetryClose re-runs the close for a transaction whose closing order
// errored. The regular close path already resubmits errored closing
// orders, so this is a named alias for operator tooling.
func (m *Manager) RetryClose(ctx context.Context, txID int64) error {
	return m.CloseTransaction(ctx, txID)
}

func (m *Manager) closeTransactionLocked(ctx context.Context, txID int64, reason string) (*closeResult, error) {
	tx, err := m.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("load transaction %d: %w", txID, err)
	}
	if tx.Status == types.TxClosed {
		return &closeResult{AlreadyClosed: true}, nil
	}
	orders, err := m.store.ListOrdersByTransaction(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("list orders for transaction %d: %w", txID, err)
	}

	// An in-flight closing order means a previous close already ran.
	for i := range orders {
		o := &orders[i]
		if !o.IsClosingOrder() {
			continue
		}
		if o.Status == types.StatusError {
			// Previous close attempt failed at the broker; resubmit.
			o.Status = types.StatusPendingNew
			o.StatusReason = ""
			if err := m.submitOrder(ctx, o); err != nil {
				return &closeResult{ClosingOrderID: o.ID}, fmt.Errorf("resubmit closing order: %w", err)
			}
			logger.Infof("lifecycle: resubmitted closing order %d for tx %d", o.ID, txID)
			return &closeResult{OrderIDs: []int64{o.ID}, ClosingOrderID: o.ID}, nil
		}
		if !o.Status.IsTerminal() {
			logger.Debugf("lifecycle: close already in progress tx=%d order=%d", txID, o.ID)
			return &closeResult{AlreadyClosing: true, ClosingOrderID: o.ID}, nil
		}
	}

	var (
		touched   []int64
		entrySide = types.SideBuy
	)
	for i := range orders {
		o := &orders[i]
		if o.IsClosingOrder() {
			continue
		}
		if o.DependsOnOrderID == 0 {
			entrySide = o.Side
		}
		switch {
		case o.Status == types.StatusWaitingTrigger:
			// Never reached the broker; nothing to cancel remotely.
			if err := m.store.DeleteOrder(ctx, o.ID); err != nil {
				return nil, fmt.Errorf("delete waiting order %d: %w", o.ID, err)
			}
			touched = append(touched, o.ID)
		case o.Status.IsTerminal():
			// Done already, leave it.
		case o.BrokerOrderID != "":
			if err := m.gateway.Cancel(ctx, o.BrokerOrderID); err != nil {
				return nil, fmt.Errorf("cancel order %s: %w", o.BrokerOrderID, err)
			}
			o.Status = types.StatusCanceled
			o.StatusReason = reason
			if err := m.store.UpdateOrder(ctx, o); err != nil {
				return nil, fmt.Errorf("persist cancel of order %d: %w", o.ID, err)
			}
			touched = append(touched, o.ID)
		default:
			// Persisted but never submitted (unsized entry).
			o.Status = types.StatusCanceled
			o.StatusReason = reason
			if err := m.store.UpdateOrder(ctx, o); err != nil {
				return nil, fmt.Errorf("persist cancel of order %d: %w", o.ID, err)
			}
			touched = append(touched, o.ID)
		}
	}

	// Only a filled position needs an offsetting market order.
	if tx.Status != types.TxOpened || tx.Quantity <= 0 {
		now := time.Now()
		tx.Status = types.TxClosed
		tx.CloseDate = &now
		if err := m.store.UpdateTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("close empty transaction %d: %w", txID, err)
		}
		logger.Infof("lifecycle: transaction %d closed without fill", txID)
		return &closeResult{OrderIDs: touched, NothingToClose: true}, nil
	}

	closing := store.TradingOrderRecord{
		AccountID:        tx.AccountID,
		ExpertInstanceID: tx.ExpertInstanceID,
		TransactionID:    tx.ID,
		Symbol:           tx.Symbol,
		Side:             entrySide.Opposite(),
		OrderType:        types.OrderTypeMarket,
		Quantity:         tx.Quantity,
		Status:           types.StatusPendingNew,
		Metadata:         types.OrderMetadata{ClosingOrder: true, Annotations: map[string]string{"reason": reason}},
	}
	if err := m.store.InsertOrder(ctx, &closing); err != nil {
		return nil, fmt.Errorf("insert closing order: %w", err)
	}
	touched = append(touched, closing.ID)

	tx.Status = types.TxClosing
	if err := m.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("mark transaction %d closing: %w", txID, err)
	}

	if err := m.submitOrder(ctx, &closing); err != nil {
		// Order parked in ERROR; RetryClose resubmits it.
		return &closeResult{OrderIDs: touched, ClosingOrderID: closing.ID}, err
	}
	m.sendNotification(fmt.Sprintf("closing %s qty=%.4f (tx %d): %s", tx.Symbol, tx.Quantity, tx.ID, reason))
	return &closeResult{OrderIDs: touched, ClosingOrderID: closing.ID}, nil
}
