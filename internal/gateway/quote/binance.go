package quote

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
)

// BinanceConfig configures the Binance-backed quote source.
type BinanceConfig struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
}

func (c BinanceConfig) withDefaults() BinanceConfig {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}

// Binance resolves CURRENT_PRICE references from the Binance spot API.
type Binance struct {
	client *binance.Client
}

var _ Source = (*Binance)(nil)

// NewBinance builds a read-only client; no API keys are needed for
// public ticker data.
func NewBinance(cfg BinanceConfig) *Binance {
	final := cfg.withDefaults()
	client := binance.NewClient("", "")
	if base := strings.TrimSpace(final.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Binance{client: client}
}

func (b *Binance) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	clean := cleanSymbol(symbol)
	if clean == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	prices, err := b.client.NewListPricesService().Symbol(clean).Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range prices {
		if p == nil {
			continue
		}
		val, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return 0, fmt.Errorf("parse price %q for %s: %w", p.Price, clean, err)
		}
		if val <= 0 {
			return 0, fmt.Errorf("non-positive price for %s", clean)
		}
		return val, nil
	}
	return 0, fmt.Errorf("no price returned for %s", clean)
}

// cleanSymbol strips separators; the exchange wants "ETHUSDT", callers
// may pass "ETH/USDT".
func cleanSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	symbol = strings.ReplaceAll(symbol, "/", "")
	return strings.ReplaceAll(symbol, "-", "")
}
