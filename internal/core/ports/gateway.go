package ports

import (
	"context"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
)

// GatewayClient talks to the hosted payment gateway.
type GatewayClient interface {
	CreateOrder(ctx context.Context, req domain.GatewayOrderRequest, idempotencyKey string) (*domain.GatewayOrderResponse, error)
}

// SignatureVerifier checks gateway payment signatures with a server-held secret.
type SignatureVerifier interface {
	Verify(gatewayOrderID, gatewayPaymentID, signature string) bool
}

// GatewayAdapter is what the orchestrator sees of the payment gateway.
type GatewayAdapter interface {
	RegisterOrder(ctx context.Context, amount int64, currency, correlationID string) (string, error)
	VerifySignature(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (bool, error)
	RecordFailure(ctx context.Context, gatewayOrderID, reason string) error
	// Payment returns the local record of a registered gateway order.
	Payment(ctx context.Context, gatewayOrderID string) (*domain.GatewayPayment, error)
}

type GatewayPaymentRepository interface {
	Create(ctx context.Context, p *domain.GatewayPayment) error
	FindByCorrelationID(ctx context.Context, correlationID string) (*domain.GatewayPayment, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.GatewayPayment, error)
	Update(ctx context.Context, p *domain.GatewayPayment) error
}

// OutcomeAwaiter blocks until the buyer finishes the external payment step.
type OutcomeAwaiter interface {
	Await(ctx context.Context, pending *domain.PendingPayment) (domain.GatewayOutcome, error)
}
