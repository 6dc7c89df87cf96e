package middleware_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/adapters/handler"
	"github.com/DanielPopoola/ficmart-checkout/internal/adapters/handler/middleware"
	"github.com/DanielPopoola/ficmart-checkout/internal/auth"
	"github.com/DanielPopoola/ficmart-checkout/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func decodeError(t *testing.T, body io.Reader) *handler.APIError {
	t.Helper()
	var resp handler.APIResponse
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestAuthenticate(t *testing.T) {
	tokens := auth.NewTokenService("0123456789abcdef0123", "ficmart")
	valid, err := tokens.Issue("user-1", "", time.Hour)
	require.NoError(t, err)

	var seen *auth.Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := middleware.Authenticate(tokens, discard)(next)

	t.Run("guest passes through", func(t *testing.T) {
		seen = nil
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Nil(t, seen)
	})

	t.Run("valid token attaches claims", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+valid)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "user-1", seen.UserID())
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer not-a-jwt")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Nil(t, seen)
		assert.Equal(t, handler.ErrCodeUnauthorized, decodeError(t, rr.Body).Code)
	})
}

func TestRecoverPanics(t *testing.T) {
	h := middleware.RecoverPanics(discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	apiErr := decodeError(t, rr.Body)
	assert.Equal(t, handler.ErrCodeInternal, apiErr.Code)
	assert.NotContains(t, apiErr.Message, "boom")
}

func TestRecoverPanics_RethrowsAbort(t *testing.T) {
	h := middleware.RecoverPanics(discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestDeadline(t *testing.T) {
	t.Run("slow checkout gets the timeout envelope", func(t *testing.T) {
		h := middleware.Deadline(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		apiErr := decodeError(t, rr.Body)
		assert.Equal(t, handler.ErrCodeTimeout, apiErr.Code)
		assert.Contains(t, apiErr.Message, "temp_order_id")
	})

	t.Run("fast route keeps its own content type", func(t *testing.T) {
		h := middleware.Deadline(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write([]byte("openapi: 3.0.3"))
		}))

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/yaml", rr.Header().Get("Content-Type"))
	})
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	recorder := metrics.NewRecorder(prometheus.NewRegistry(), "test")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /checkout/{tempOrderId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := middleware.Metrics(recorder)(mux)

	for _, path := range []string{"/checkout/a", "/checkout/b", "/nowhere"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	rr := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()

	assert.Contains(t, body, `test_http_requests_total{route="GET /checkout/{tempOrderId}",status="200"} 2`)
	assert.Contains(t, body, `test_http_requests_total{route="unmatched",status="404"} 1`)
}

func TestLogging_PassesResponseThrough(t *testing.T) {
	h := middleware.Logging(discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "short and stout", rr.Body.String())
}

func TestOpenAPIValidator(t *testing.T) {
	validator, err := middleware.NewOpenAPIValidator(handler.OpenAPISpec())
	require.NoError(t, err)

	reached := false
	h := validator.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		// The body must still be readable after validation.
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 && r.Method == http.MethodPost {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	validCheckout := `{"items":[{"product_id":"sku-1","quantity":1,"unit_price":"10.00","product_type":"digital"}],` +
		`"currency":"INR","contact":{"name":"Asha"},"payment_method":"gateway"}`

	tests := []struct {
		name        string
		method      string
		path        string
		body        string
		idemKey     string
		wantReached bool
		wantStatus  int
	}{
		{"valid checkout", http.MethodPost, "/checkout", validCheckout, "temp-1", true, http.StatusNoContent},
		{"missing idempotency key", http.MethodPost, "/checkout", validCheckout, "", false, http.StatusBadRequest},
		{"bad payment method", http.MethodPost, "/checkout", strings.Replace(validCheckout, `"gateway"`, `"barter"`, 1), "temp-1", false, http.StatusBadRequest},
		{"malformed money", http.MethodPost, "/checkout", strings.Replace(validCheckout, `"10.00"`, `"ten"`, 1), "temp-1", false, http.StatusBadRequest},
		{"limit out of range", http.MethodGet, "/credits/transactions?limit=1000", "", "", false, http.StatusBadRequest},
		{"path outside contract", http.MethodGet, "/metrics", "", "", true, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = false
			var body io.Reader
			if tt.body != "" {
				body = bytes.NewReader([]byte(tt.body))
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			if tt.idemKey != "" {
				req.Header.Set("Idempotency-Key", tt.idemKey)
			}

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantReached, reached)
			if !tt.wantReached {
				assert.Equal(t, handler.ErrCodeValidation, decodeError(t, rr.Body).Code)
			}
		})
	}
}
