// Package broker abstracts the external order gateway. The engine only
// depends on the order-state contract: submit, cancel, replace and
// status refresh. The gateway (not the engine) enforces the
// one-opposite-order constraint; the engine respects it structurally by
// consolidating TP/SL before anything reaches this interface.
package broker

import (
	"context"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// OrderTerms are the replace/new-order parameters sent to the broker.
type OrderTerms struct {
	Symbol     string
	Side       types.OrderSide
	OrderType  types.OrderType
	Quantity   float64
	LimitPrice float64
	StopPrice  float64
}

// OrderGateway is the broker connection used by the lifecycle manager.
type OrderGateway interface {
	// Submit sends the order and returns the broker-assigned id.
	Submit(ctx context.Context, order *store.TradingOrderRecord) (string, error)
	// Cancel requests cancellation of a live order.
	Cancel(ctx context.Context, brokerOrderID string) error
	// Replace atomically swaps a live order for new terms and returns
	// the new broker id. Only valid when SupportsReplace is true.
	Replace(ctx context.Context, brokerOrderID string, terms OrderTerms) (string, error)
	// RefreshStatus fetches the current broker-side status.
	RefreshStatus(ctx context.Context, order *store.TradingOrderRecord) (types.OrderStatus, error)
	// SupportsReplace reports whether Replace is atomic at this broker.
	// When false the caller falls back to cancel+recreate.
	SupportsReplace() bool
}
