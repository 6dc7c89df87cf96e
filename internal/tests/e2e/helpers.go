package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/adapters/handler"
	"github.com/stretchr/testify/require"
)

// Envelope mirrors the API response envelope with the payload left raw.
type Envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   *handler.APIError `json:"error"`
}

// TestClient wraps HTTP calls to the checkout service
type TestClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *TestClient) do(t *testing.T, method, path, token string, headers map[string]string, body any) (int, Envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

// Checkout calls POST /checkout with tempOrderID as the Idempotency-Key.
func (c *TestClient) Checkout(t *testing.T, token, tempOrderID string, req handler.CheckoutRequest) (int, Envelope) {
	return c.do(t, http.MethodPost, "/checkout", token, map[string]string{"Idempotency-Key": tempOrderID}, req)
}

func (c *TestClient) Callback(t *testing.T, token, tempOrderID string, req handler.GatewayCallbackRequest) (int, Envelope) {
	return c.do(t, http.MethodPost, "/checkout/"+tempOrderID+"/gateway-callback", token, nil, req)
}

func (c *TestClient) Status(t *testing.T, token, tempOrderID string) (int, Envelope) {
	return c.do(t, http.MethodGet, "/checkout/"+tempOrderID, token, nil, nil)
}

func (c *TestClient) Balance(t *testing.T, token string) handler.BalanceResponse {
	status, env := c.do(t, http.MethodGet, "/credits/balance", token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var out handler.BalanceResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (c *TestClient) Transactions(t *testing.T, token string) []handler.TransactionResponse {
	status, env := c.do(t, http.MethodGet, "/credits/transactions", token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var out []handler.TransactionResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (c *TestClient) GrantCredit(t *testing.T, adminToken string, req handler.CreditGrantRequest) {
	status, env := c.do(t, http.MethodPost, "/admin/credits", adminToken, nil, req)
	require.Equal(t, http.StatusCreated, status, "grant failed: %+v", env.Error)
}

// FakeGateway answers order registration like the hosted gateway does.
type FakeGateway struct {
	Server *httptest.Server

	mu      sync.Mutex
	orders  map[string]string
	calls   atomic.Int32
	counter atomic.Int64
}

func NewFakeGateway() *FakeGateway {
	g := &FakeGateway{orders: make(map[string]string)}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/orders", g.createOrder)
	g.Server = httptest.NewServer(mux)
	return g
}

func (g *FakeGateway) createOrder(w http.ResponseWriter, r *http.Request) {
	g.calls.Add(1)

	var req struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Receipt  string `json:"receipt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	key := r.Header.Get("Idempotency-Key")
	id, ok := g.orders[key]
	if !ok {
		id = fmt.Sprintf("order_%d", g.counter.Add(1))
		g.orders[key] = id
	}
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":       id,
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"status":   "created",
	})
}

func (g *FakeGateway) Calls() int {
	return int(g.calls.Load())
}

func (g *FakeGateway) Close() {
	g.Server.Close()
}
