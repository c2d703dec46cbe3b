// Package quote abstracts live price lookup so the engine can run
// against an exchange feed or a fixed source in tests.
package quote

import "context"

// Source supplies the latest traded price for a symbol.
type Source interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}
