package gateway

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/config"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
)

// RetryClient retries transient gateway failures a bounded number of times.
// Exhausted retries surface as ErrCodeGatewayUnavailable and explicit
// rejections as ErrCodePaymentFailed.
type RetryClient struct {
	inner      ports.GatewayClient
	baseDelay  time.Duration
	maxRetries int
}

func NewRetryClient(inner ports.GatewayClient, cfg config.RetryConfig) ports.GatewayClient {
	return &RetryClient{
		inner:      inner,
		baseDelay:  cfg.BaseDelay,
		maxRetries: cfg.MaxRetries,
	}
}

func (r *RetryClient) CreateOrder(ctx context.Context, req domain.GatewayOrderRequest, idempotencyKey string) (*domain.GatewayOrderResponse, error) {
	return retry(r, ctx, func(ctx context.Context) (*domain.GatewayOrderResponse, error) {
		return r.inner.CreateOrder(ctx, req, idempotencyKey)
	})
}

func retry[T any](r *RetryClient, ctx context.Context, operation func(ctx context.Context) (*T, error)) (*T, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewGatewayUnavailableError(err)
		}

		resp, err := operation(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) {
			if gwErr, ok := IsGatewayError(err); ok {
				return nil, domain.NewPaymentFailedError(gwErr.Message)
			}
			return nil, err
		}

		if attempt < r.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, domain.NewGatewayUnavailableError(ctx.Err())
			case <-time.After(r.backoff(attempt)):
			}
		}
	}

	return nil, domain.NewGatewayUnavailableError(lastErr)
}

// Network failures and timeouts are retryable; gateway errors only when the
// gateway says so.
func isRetryable(err error) bool {
	if gwErr, ok := IsGatewayError(err); ok {
		return gwErr.IsRetryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Backoff calculation with exponential delay and jitter
func (r *RetryClient) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Int64N(int64(r.baseDelay)/2 + 1))
	return base + jitter
}
