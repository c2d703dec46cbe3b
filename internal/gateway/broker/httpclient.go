package broker

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// HTTPConfig describes how to reach the broker's REST bridge.
type HTTPConfig struct {
	APIURL             string
	Username           string
	Password           string
	APIToken           string
	TimeoutSeconds     int
	InsecureSkipVerify bool
	AtomicReplace      bool
}

// HTTPClient talks to the broker bridge over REST. Responses are probed
// with gjson so schema drift in fields we ignore cannot break decoding.
type HTTPClient struct {
	baseURL       *url.URL
	httpClient    *http.Client
	username      string
	password      string
	token         string
	atomicReplace bool
}

var _ OrderGateway = (*HTTPClient)(nil)

// NewHTTPClient constructs a broker client from configuration.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	raw := strings.TrimSpace(cfg.APIURL)
	if raw == "" {
		return nil, fmt.Errorf("broker.api_url cannot be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse broker.api_url: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true // #nosec G402
		}
	}
	return &HTTPClient{
		baseURL:       parsed,
		httpClient:    &http.Client{Timeout: timeout, Transport: transport},
		username:      strings.TrimSpace(cfg.Username),
		password:      strings.TrimSpace(cfg.Password),
		token:         strings.TrimSpace(cfg.APIToken),
		atomicReplace: cfg.AtomicReplace,
	}, nil
}

// SetHTTPClient swaps the HTTP client for testing.
func (c *HTTPClient) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

type orderPayload struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	OrderType  string  `json:"order_type"`
	Quantity   float64 `json:"quantity"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	StopPrice  float64 `json:"stop_price,omitempty"`
}

func payloadFromTerms(t OrderTerms) orderPayload {
	return orderPayload{
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		OrderType:  string(t.OrderType),
		Quantity:   t.Quantity,
		LimitPrice: t.LimitPrice,
		StopPrice:  t.StopPrice,
	}
}

func (c *HTTPClient) Submit(ctx context.Context, order *store.TradingOrderRecord) (string, error) {
	if order == nil {
		return "", fmt.Errorf("order is required")
	}
	payload := payloadFromTerms(OrderTerms{
		Symbol:     order.Symbol,
		Side:       order.Side,
		OrderType:  order.OrderType,
		Quantity:   order.Quantity,
		LimitPrice: order.LimitPrice,
		StopPrice:  order.StopPrice,
	})
	raw, err := c.doRequest(ctx, http.MethodPost, "/orders", payload)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(raw, "order_id").String()
	if id == "" {
		return "", fmt.Errorf("broker returned no order_id")
	}
	return id, nil
}

func (c *HTTPClient) Cancel(ctx context.Context, brokerOrderID string) error {
	if strings.TrimSpace(brokerOrderID) == "" {
		return fmt.Errorf("broker order id is required")
	}
	_, err := c.doRequest(ctx, http.MethodDelete, "/orders/"+url.PathEscape(brokerOrderID), nil)
	return err
}

func (c *HTTPClient) Replace(ctx context.Context, brokerOrderID string, terms OrderTerms) (string, error) {
	if !c.atomicReplace {
		return "", fmt.Errorf("broker does not support atomic replace")
	}
	raw, err := c.doRequest(ctx, http.MethodPost,
		"/orders/"+url.PathEscape(brokerOrderID)+"/replace", payloadFromTerms(terms))
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(raw, "order_id").String()
	if id == "" {
		return "", fmt.Errorf("broker replace returned no order_id")
	}
	return id, nil
}

func (c *HTTPClient) RefreshStatus(ctx context.Context, order *store.TradingOrderRecord) (types.OrderStatus, error) {
	if order == nil || strings.TrimSpace(order.BrokerOrderID) == "" {
		return "", fmt.Errorf("order has no broker id")
	}
	raw, err := c.doRequest(ctx, http.MethodGet, "/orders/"+url.PathEscape(order.BrokerOrderID), nil)
	if err != nil {
		return "", err
	}
	status := gjson.GetBytes(raw, "status").String()
	if status == "" {
		return "", fmt.Errorf("broker returned no status for %s", order.BrokerOrderID)
	}
	return types.ParseOrderStatus(status), nil
}

func (c *HTTPClient) SupportsReplace() bool { return c.atomicReplace }

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	endpoint := *c.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		detail := gjson.GetBytes(raw, "error").String()
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("broker %s %s: status=%d %s", method, path, resp.StatusCode, detail)
	}
	return raw, nil
}
