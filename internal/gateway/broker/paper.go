package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// Paper is an in-memory gateway for dry-run mode and tests. It accepts
// every order, keeps it OPEN until a test (or the fill simulator) moves
// it, and honors the one-opposite-order constraint the way a real
// broker would: a second opposite-side order for the same symbol is
// rejected.
type Paper struct {
	mu           sync.Mutex
	orders       map[string]*paperOrder
	atomicSwap   bool
	submitErr    error
	submitCalls  int
	replaceCalls int
}

type paperOrder struct {
	terms  OrderTerms
	status types.OrderStatus
}

var _ OrderGateway = (*Paper)(nil)

// NewPaper builds a paper gateway. atomicSwap selects whether Replace
// is advertised.
func NewPaper(atomicSwap bool) *Paper {
	return &Paper{
		orders:     make(map[string]*paperOrder),
		atomicSwap: atomicSwap,
	}
}

// FailSubmissions makes every Submit return err (nil restores normal
// behavior). Test hook.
func (p *Paper) FailSubmissions(err error) {
	p.mu.Lock()
	p.submitErr = err
	p.mu.Unlock()
}

// SetStatus forces a broker-side status, simulating fills, rejections
// and expiries.
func (p *Paper) SetStatus(brokerOrderID string, status types.OrderStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if o, ok := p.orders[brokerOrderID]; ok {
		o.status = status
	}
}

// SubmitCount returns how many submissions the gateway accepted.
func (p *Paper) SubmitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitCalls
}

// OpenOppositeCount counts live orders on the given side for a symbol.
func (p *Paper) OpenOppositeCount(symbol string, side types.OrderSide) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, o := range p.orders {
		if o.terms.Symbol == symbol && o.terms.Side == side && !o.status.IsTerminal() {
			n++
		}
	}
	return n
}

func (p *Paper) Submit(_ context.Context, order *store.TradingOrderRecord) (string, error) {
	if order == nil {
		return "", fmt.Errorf("paper: order is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return "", p.submitErr
	}
	terms := OrderTerms{
		Symbol:     order.Symbol,
		Side:       order.Side,
		OrderType:  order.OrderType,
		Quantity:   order.Quantity,
		LimitPrice: order.LimitPrice,
		StopPrice:  order.StopPrice,
	}
	// One opposite order per symbol: reject a second live one.
	for _, o := range p.orders {
		if o.terms.Symbol == terms.Symbol && o.terms.Side == terms.Side &&
			isProtective(o.terms.OrderType) && isProtective(terms.OrderType) &&
			!o.status.IsTerminal() {
			return "", fmt.Errorf("paper: opposite order already open for %s", terms.Symbol)
		}
	}
	id := newPaperID()
	p.orders[id] = &paperOrder{terms: terms, status: types.StatusOpen}
	p.submitCalls++
	return id, nil
}

func (p *Paper) Cancel(_ context.Context, brokerOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("paper: unknown order %s", brokerOrderID)
	}
	if o.status.IsTerminal() {
		return fmt.Errorf("paper: order %s already terminal (%s)", brokerOrderID, o.status)
	}
	o.status = types.StatusCanceled
	return nil
}

func (p *Paper) Replace(_ context.Context, brokerOrderID string, terms OrderTerms) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.atomicSwap {
		return "", fmt.Errorf("paper: replace not supported")
	}
	o, ok := p.orders[brokerOrderID]
	if !ok {
		return "", fmt.Errorf("paper: unknown order %s", brokerOrderID)
	}
	if o.status.IsTerminal() {
		return "", fmt.Errorf("paper: order %s already terminal (%s)", brokerOrderID, o.status)
	}
	o.status = types.StatusReplaced
	id := newPaperID()
	p.orders[id] = &paperOrder{terms: terms, status: types.StatusOpen}
	p.replaceCalls++
	return id, nil
}

func (p *Paper) RefreshStatus(_ context.Context, order *store.TradingOrderRecord) (types.OrderStatus, error) {
	if order == nil || order.BrokerOrderID == "" {
		return "", fmt.Errorf("paper: order has no broker id")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[order.BrokerOrderID]
	if !ok {
		return "", fmt.Errorf("paper: unknown order %s", order.BrokerOrderID)
	}
	return o.status, nil
}

func (p *Paper) SupportsReplace() bool { return p.atomicSwap }

func isProtective(t types.OrderType) bool {
	return t == types.OrderTypeStop || t == types.OrderTypeStopLimit
}

func newPaperID() string {
	return "paper-" + strings.Split(uuid.NewString(), "-")[0]
}
