package types

import "strings"

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the broker order type.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderStatus is the finite state an order can be in.
type OrderStatus string

const (
	// Non-terminal states.
	StatusPendingNew     OrderStatus = "PENDING_NEW"
	StatusOpen           OrderStatus = "OPEN"
	StatusWaitingTrigger OrderStatus = "WAITING_TRIGGER"

	// Terminal states.
	StatusFilled   OrderStatus = "FILLED"
	StatusClosed   OrderStatus = "CLOSED"
	StatusRejected OrderStatus = "REJECTED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusStopped  OrderStatus = "STOPPED"
	StatusError    OrderStatus = "ERROR"
	StatusReplaced OrderStatus = "REPLACED"
)

var terminalStatuses = map[OrderStatus]bool{
	StatusFilled:   true,
	StatusClosed:   true,
	StatusRejected: true,
	StatusCanceled: true,
	StatusExpired:  true,
	StatusStopped:  true,
	StatusError:    true,
	StatusReplaced: true,
}

// IsTerminal reports whether no further transition can occur from s.
func (s OrderStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// ParseOrderStatus normalizes a broker status string into an OrderStatus.
// Unknown values map to StatusError so a broken feed never leaves an
// order stuck in a non-terminal state.
func ParseOrderStatus(raw string) OrderStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING_NEW", "NEW", "PENDING":
		return StatusPendingNew
	case "OPEN", "ACCEPTED", "PARTIALLY_FILLED":
		return StatusOpen
	case "WAITING_TRIGGER":
		return StatusWaitingTrigger
	case "FILLED":
		return StatusFilled
	case "CLOSED":
		return StatusClosed
	case "REJECTED":
		return StatusRejected
	case "CANCELED", "CANCELLED":
		return StatusCanceled
	case "EXPIRED":
		return StatusExpired
	case "STOPPED":
		return StatusStopped
	case "REPLACED":
		return StatusReplaced
	default:
		return StatusError
	}
}

// RiskControls is the reserved metadata sub-record for TP/SL state.
// It lives under a single well-known key so unrelated order annotations
// can never collide with it.
type RiskControls struct {
	TakeProfitPercent float64 `json:"take_profit_percent,omitempty"`
	StopLossPercent   float64 `json:"stop_loss_percent,omitempty"`
	TakeProfitPrice   float64 `json:"take_profit_price,omitempty"`
	StopLossPrice     float64 `json:"stop_loss_price,omitempty"`
	TriggerStatus     string  `json:"trigger_status,omitempty"`
}

// OrderMetadata is the structured content of an order's metadata column.
// RiskControls is the only field the engine writes TP/SL state to;
// Annotations carries everything else.
type OrderMetadata struct {
	RiskControls *RiskControls     `json:"risk_controls,omitempty"`
	ClosingOrder bool              `json:"closing_order,omitempty"`
	Annotations  map[string]string `json:"annotations,omitempty"`
}

// TriggerStatus returns the parent status that releases a dependent
// order, defaulting to FILLED.
func (m *OrderMetadata) TriggerStatus() OrderStatus {
	if m != nil && m.RiskControls != nil && m.RiskControls.TriggerStatus != "" {
		return OrderStatus(m.RiskControls.TriggerStatus)
	}
	return StatusFilled
}
