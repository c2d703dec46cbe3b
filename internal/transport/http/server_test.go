package enginehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/gateway/broker"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/gateway/quote"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/lifecycle"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/risk"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/rules"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/store/gormstore"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

type singleRuleset struct {
	rs *rules.Ruleset
}

func (s singleRuleset) Ruleset(_ int64, useCase types.UseCase) (*rules.Ruleset, bool) {
	if useCase != types.UseCaseEnterMarket {
		return nil, false
	}
	return s.rs, true
}

func newTestServer(t *testing.T) (*Server, *gormstore.GormStore) {
	t.Helper()
	st, err := gormstore.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	provider := singleRuleset{rs: &rules.Ruleset{
		ID: "expert-1-entry",
		Rules: []rules.Rule{{
			Name: "entry",
			Conditions: []rules.Condition{
				&rules.ConfidenceThresholdCondition{Operator: rules.OpGTE, Threshold: 80},
			},
			Actions: []rules.Action{
				&rules.OpenPositionAction{Reference: rules.RefCurrentPrice, TakeProfitPercent: 5, StopLossPercent: -2},
			},
		}},
	}}
	quotes := quote.NewStatic(map[string]float64{"AAPL": 100})
	manager, err := lifecycle.NewManager(st, broker.NewPaper(false), quotes, provider, nil, lifecycle.Options{
		AccountID:   1,
		LockTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	sizer, err := risk.NewSizer(st, quotes, risk.Defaults{VirtualBalance: 10000})
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{Addr: ":0", Router: NewRouter(manager, sizer, st)})
	require.NoError(t, err)
	return srv, st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecommendationEvaluateFlow(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/engine/recommendations", map[string]any{
		"expert_instance_id":      1,
		"symbol":                  "aapl",
		"action":                  "buy",
		"confidence":              85,
		"expected_profit_percent": 5,
		"reference_price":         100,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Greater(t, gjson.Get(rec.Body.String(), "id").Int(), int64(0))

	rec = doJSON(t, h, http.MethodPost, "/api/engine/experts/1/evaluate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, int64(1), gjson.Get(body, "report.evaluated").Int())
	assert.False(t, gjson.Get(body, "report.skipped").Bool())

	tx, err := st.FindActiveTransaction(context.Background(), 1, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, types.TxWaiting, tx.Status)

	// Orders are visible through the query endpoint.
	rec = doJSON(t, h, http.MethodGet, "/api/engine/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, gjson.Get(rec.Body.String(), "orders").Array(), 2)

	// Sizing gives the entry a quantity and submits it.
	rec = doJSON(t, h, http.MethodPost, "/api/engine/experts/1/size", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "sized").Int())
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "submitted").Int())

	// Close the transaction through the API.
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/engine/transactions/%d/close", tx.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEvaluateValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/engine/experts/0/evaluate", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/engine/experts/1/evaluate?use_case=SIDEWAYS", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/engine/recommendations", map[string]any{"symbol": "AAPL"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEndpointsRequireExpert(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/engine/transactions", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/engine/results", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/engine/transactions?expert=1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
