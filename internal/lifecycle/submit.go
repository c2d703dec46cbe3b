package lifecycle

import (
	"context"
	"fmt"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/logger"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// SubmitSizedOrders sends the entry orders the sizing pass gave a
// positive quantity. Orders still at zero quantity stay pending for the
// next sizing round; failures are parked in ERROR per order, the pass
// keeps going.
func (m *Manager) SubmitSizedOrders(ctx context.Context, expertID int64) (int, error) {
	pending, err := m.store.ListOrdersByStatus(ctx, types.StatusPendingNew)
	if err != nil {
		return 0, fmt.Errorf("list pending orders: %w", err)
	}
	submitted := 0
	for i := range pending {
		o := &pending[i]
		if o.ExpertInstanceID != expertID || o.BrokerOrderID != "" {
			continue
		}
		if o.Quantity <= 0 || o.DependsOnOrderID != 0 || o.IsClosingOrder() {
			continue
		}
		if err := m.submitOrder(ctx, o); err != nil {
			logger.Errorf("lifecycle: submit sized order %d: %v", o.ID, err)
			continue
		}
		submitted++
	}
	return submitted, nil
}
