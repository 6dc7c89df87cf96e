package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
	"github.com/DanielPopoola/ficmart-checkout/internal/metrics"
)

// Adapter is the orchestrator's view of the gateway. It keeps one local
// payment record per correlation id, which is what makes RegisterOrder
// idempotent across retries and restarts.
type Adapter struct {
	client   ports.GatewayClient
	verifier ports.SignatureVerifier
	payments ports.GatewayPaymentRepository
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

func NewAdapter(
	client ports.GatewayClient,
	verifier ports.SignatureVerifier,
	payments ports.GatewayPaymentRepository,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) *Adapter {
	return &Adapter{
		client:   client,
		verifier: verifier,
		payments: payments,
		metrics:  recorder,
		logger:   logger,
	}
}

func (a *Adapter) RegisterOrder(ctx context.Context, amount int64, currency, correlationID string) (string, error) {
	if amount <= 0 {
		return "", domain.NewInvalidAmountError(amount)
	}
	if correlationID == "" {
		return "", domain.NewMissingRequiredFieldError("correlation_id")
	}

	existing, err := a.payments.FindByCorrelationID(ctx, correlationID)
	if err == nil {
		return a.reuse(existing, amount, currency)
	}
	if !domain.IsErrorCode(err, domain.ErrCodeGatewayPaymentMissing) {
		return "", err
	}

	resp, err := a.client.CreateOrder(ctx, domain.GatewayOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  correlationID,
		Notes:    map[string]string{"temp_order_id": correlationID},
	}, correlationID)
	if err != nil {
		result := domain.ErrorCode(err)
		if result == "" {
			result = "error"
		}
		a.metrics.GatewayRequest("register_order", result)
		a.logger.Warn("gateway order registration failed",
			"correlation_id", correlationID,
			"amount", amount,
			"error", err,
		)
		return "", err
	}

	now := time.Now().UTC()
	payment := &domain.GatewayPayment{
		GatewayOrderID: resp.ID,
		CorrelationID:  correlationID,
		Amount:         amount,
		Currency:       currency,
		Status:         domain.GatewayCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.payments.Create(ctx, payment); err != nil {
		if domain.IsErrorCode(err, domain.ErrCodeDuplicateKey) {
			// A concurrent registration won; the gateway deduplicated on the
			// same idempotency key, so both saw the same order.
			stored, findErr := a.payments.FindByCorrelationID(ctx, correlationID)
			if findErr != nil {
				return "", fmt.Errorf("failed to load concurrent gateway payment: %w", findErr)
			}
			return a.reuse(stored, amount, currency)
		}
		return "", err
	}

	a.metrics.GatewayRequest("register_order", "ok")
	a.logger.Info("gateway order registered",
		"correlation_id", correlationID,
		"gateway_order_id", resp.ID,
		"amount", amount,
		"currency", currency,
	)
	return resp.ID, nil
}

func (a *Adapter) reuse(p *domain.GatewayPayment, amount int64, currency string) (string, error) {
	if p.Amount != amount || p.Currency != currency {
		return "", domain.NewIdempotencyMismatchError()
	}
	a.metrics.GatewayRequest("register_order", "reused")
	return p.GatewayOrderID, nil
}

// VerifySignature checks the payment signature server-side and marks the
// gateway payment paid. A replay of an already verified payment is valid.
func (a *Adapter) VerifySignature(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
	payment, err := a.payments.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return false, err
	}

	if payment.Status == domain.GatewayPaid {
		sameID := payment.GatewayPaymentID != nil && *payment.GatewayPaymentID == gatewayPaymentID
		return sameID && a.verifier.Verify(gatewayOrderID, gatewayPaymentID, signature), nil
	}

	if !a.verifier.Verify(gatewayOrderID, gatewayPaymentID, signature) {
		a.metrics.GatewayRequest("verify_signature", "invalid")
		a.logger.Warn("gateway signature rejected",
			"gateway_order_id", gatewayOrderID,
			"gateway_payment_id", gatewayPaymentID,
		)
		return false, nil
	}

	payment.Status = domain.GatewayPaid
	payment.GatewayPaymentID = &gatewayPaymentID
	payment.SignatureVerified = true
	payment.UpdatedAt = time.Now().UTC()
	if err := a.payments.Update(ctx, payment); err != nil {
		return false, err
	}

	a.metrics.GatewayRequest("verify_signature", "ok")
	return true, nil
}

// RecordFailure marks a created gateway payment failed. Paid payments are left alone.
func (a *Adapter) RecordFailure(ctx context.Context, gatewayOrderID, reason string) error {
	payment, err := a.payments.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return err
	}
	if payment.Status != domain.GatewayCreated {
		return nil
	}

	payment.Status = domain.GatewayFailed
	payment.FailureReason = &reason
	payment.UpdatedAt = time.Now().UTC()
	return a.payments.Update(ctx, payment)
}

func (a *Adapter) Payment(ctx context.Context, gatewayOrderID string) (*domain.GatewayPayment, error) {
	return a.payments.FindByGatewayOrderID(ctx, gatewayOrderID)
}
