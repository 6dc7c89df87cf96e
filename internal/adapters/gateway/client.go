// Package gateway adapts the hosted payment gateway to the checkout core.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/DanielPopoola/ficmart-checkout/internal/config"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
)

type HTTPClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

func NewHTTPClient(cfg config.GatewayConfig) ports.GatewayClient {
	return &HTTPClient{
		baseURL:   cfg.BaseURL,
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		httpClient: &http.Client{
			Timeout: cfg.ConnTimeout,
		},
	}
}

func (c *HTTPClient) CreateOrder(ctx context.Context, req domain.GatewayOrderRequest, idempotencyKey string) (*domain.GatewayOrderResponse, error) {
	url := fmt.Sprintf("%s/v1/orders", c.baseURL)
	return sendRequest[domain.GatewayOrderRequest, domain.GatewayOrderResponse](c, ctx, http.MethodPost, url, &req, idempotencyKey)
}

func sendRequest[Req any, Resp any](c *HTTPClient, ctx context.Context, method, url string, reqBody *Req, idempotencyKey string) (*Resp, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("error marshalling json: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		var errResp GatewayErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Code == "" {
			return nil, &GatewayError{
				Code:       "UNKNOWN",
				Message:    string(body),
				StatusCode: resp.StatusCode,
			}
		}
		return nil, &GatewayError{
			Code:       errResp.Error.Code,
			Message:    errResp.Error.Description,
			StatusCode: resp.StatusCode,
		}
	}

	var gwResp Resp
	if err := json.NewDecoder(resp.Body).Decode(&gwResp); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}

	return &gwResp, nil
}
