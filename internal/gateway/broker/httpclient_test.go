package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

func newBridgeClient(t *testing.T, handler http.Handler) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(HTTPConfig{APIURL: srv.URL, APIToken: "test-token"})
	require.NoError(t, err)
	return c, srv
}

func TestHTTPSubmitSendsOrderAndReadsID(t *testing.T) {
	var got orderPayload
	c, _ := newBridgeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"order_id":"brk-123","status":"NEW"}`))
	}))

	id, err := c.Submit(context.Background(), &store.TradingOrderRecord{
		Symbol:     "AAPL",
		Side:       types.SideBuy,
		OrderType:  types.OrderTypeLimit,
		Quantity:   4,
		LimitPrice: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "brk-123", id)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, "BUY", got.Side)
	assert.Equal(t, 4.0, got.Quantity)
}

func TestHTTPSubmitRequiresOrderID(t *testing.T) {
	c, _ := newBridgeClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	_, err := c.Submit(context.Background(), &store.TradingOrderRecord{Symbol: "AAPL"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no order_id")
}

func TestHTTPRefreshStatusNormalizesBrokerStates(t *testing.T) {
	c, _ := newBridgeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/brk-123", r.URL.Path)
		w.Write([]byte(`{"order_id":"brk-123","status":"partially_filled"}`))
	}))

	status, err := c.RefreshStatus(context.Background(), &store.TradingOrderRecord{BrokerOrderID: "brk-123"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, status)

	_, err = c.RefreshStatus(context.Background(), &store.TradingOrderRecord{})
	assert.Error(t, err)
}

func TestHTTPErrorResponsesSurfaceDetail(t *testing.T) {
	c, _ := newBridgeClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"insufficient margin"}`))
	}))

	err := c.Cancel(context.Background(), "brk-123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=422")
	assert.Contains(t, err.Error(), "insufficient margin")
}

func TestHTTPReplaceHonorsCapability(t *testing.T) {
	c, err := NewHTTPClient(HTTPConfig{APIURL: "http://broker.invalid/api"})
	require.NoError(t, err)
	assert.False(t, c.SupportsReplace())
	_, err = c.Replace(context.Background(), "brk-1", OrderTerms{})
	assert.Error(t, err)

	replaced := false
	c2, _ := newBridgeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		replaced = true
		assert.Equal(t, "/orders/brk-1/replace", r.URL.Path)
		w.Write([]byte(`{"order_id":"brk-2"}`))
	}))
	c2.atomicReplace = true
	id, err := c2.Replace(context.Background(), "brk-1", OrderTerms{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, "brk-2", id)
}

func TestHTTPBasicAuthFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "engine", user)
		assert.Equal(t, "secret", pass)
		w.Write([]byte(`{"order_id":"brk-9"}`))
	}))
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(HTTPConfig{APIURL: srv.URL, Username: "engine", Password: "secret"})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), &store.TradingOrderRecord{Symbol: "AAPL"})
	assert.NoError(t, err)
}
