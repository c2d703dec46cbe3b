package quote

import (
	"context"
	"fmt"
	"sync"
)

// Static serves prices from an in-memory table. Used by the paper
// gateway setup and by tests.
type Static struct {
	mu     sync.RWMutex
	prices map[string]float64
}

var _ Source = (*Static)(nil)

func NewStatic(prices map[string]float64) *Static {
	cp := make(map[string]float64, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return &Static{prices: cp}
}

// Set updates the quoted price for symbol.
func (s *Static) Set(symbol string, price float64) {
	s.mu.Lock()
	s.prices[symbol] = price
	s.mu.Unlock()
}

func (s *Static) LatestPrice(_ context.Context, symbol string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[symbol]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("no quote for %s", symbol)
	}
	return price, nil
}
