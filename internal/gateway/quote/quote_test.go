package quote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSource(t *testing.T) {
	ctx := context.Background()
	s := NewStatic(map[string]float64{"AAPL": 101.5})

	price, err := s.LatestPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 101.5, price)

	_, err = s.LatestPrice(ctx, "MSFT")
	assert.Error(t, err)

	s.Set("MSFT", 350)
	price, err = s.LatestPrice(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 350.0, price)
}

func TestCleanSymbol(t *testing.T) {
	assert.Equal(t, "ETHUSDT", cleanSymbol(" eth/usdt "))
	assert.Equal(t, "BTCUSDT", cleanSymbol("BTC-USDT"))
	assert.Equal(t, "", cleanSymbol("  "))
}

func TestBinanceLatestPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"2450.10"}`))
	}))
	t.Cleanup(srv.Close)

	b := NewBinance(BinanceConfig{RESTBaseURL: srv.URL, HTTPTimeout: time.Second})
	price, err := b.LatestPrice(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 2450.10, price, 1e-9)
}

func TestBinanceRejectsEmptySymbol(t *testing.T) {
	b := NewBinance(BinanceConfig{})
	_, err := b.LatestPrice(context.Background(), "  ")
	assert.Error(t, err)
}
