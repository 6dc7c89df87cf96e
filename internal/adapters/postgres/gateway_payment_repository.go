package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
	"github.com/jackc/pgx/v5"
)

const gatewayPaymentColumns = `gateway_order_id, correlation_id, amount, currency, status,
	gateway_payment_id, signature_verified, failure_reason, created_at, updated_at`

type GatewayPaymentRepository struct {
	q Executor
}

func NewGatewayPaymentRepository(q Executor) ports.GatewayPaymentRepository {
	return &GatewayPaymentRepository{q: q}
}

func (r *GatewayPaymentRepository) Create(ctx context.Context, p *domain.GatewayPayment) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO gateway_payments (`+gatewayPaymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.GatewayOrderID,
		p.CorrelationID,
		p.Amount,
		p.Currency,
		p.Status,
		p.GatewayPaymentID,
		p.SignatureVerified,
		p.FailureReason,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.NewDuplicateKeyError(p.CorrelationID)
		}
		return fmt.Errorf("failed to create gateway payment: %w", err)
	}
	return nil
}

func (r *GatewayPaymentRepository) FindByCorrelationID(ctx context.Context, correlationID string) (*domain.GatewayPayment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+gatewayPaymentColumns+` FROM gateway_payments WHERE correlation_id = $1`, correlationID)
	return findGatewayPayment(row, correlationID)
}

func (r *GatewayPaymentRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.GatewayPayment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+gatewayPaymentColumns+` FROM gateway_payments WHERE gateway_order_id = $1`, gatewayOrderID)
	return findGatewayPayment(row, gatewayOrderID)
}

func (r *GatewayPaymentRepository) Update(ctx context.Context, p *domain.GatewayPayment) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE gateway_payments SET
			status = $2,
			gateway_payment_id = $3,
			signature_verified = $4,
			failure_reason = $5,
			updated_at = $6
		WHERE gateway_order_id = $1`,
		p.GatewayOrderID,
		p.Status,
		p.GatewayPaymentID,
		p.SignatureVerified,
		p.FailureReason,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update gateway payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewGatewayPaymentNotFoundError(p.GatewayOrderID)
	}
	return nil
}

func findGatewayPayment(row pgx.Row, key string) (*domain.GatewayPayment, error) {
	var p domain.GatewayPayment
	err := row.Scan(
		&p.GatewayOrderID,
		&p.CorrelationID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.GatewayPaymentID,
		&p.SignatureVerified,
		&p.FailureReason,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewGatewayPaymentNotFoundError(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find gateway payment: %w", err)
	}
	return &p, nil
}
