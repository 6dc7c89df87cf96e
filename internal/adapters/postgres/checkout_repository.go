package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
	"github.com/jackc/pgx/v5"
)

const attemptColumns = `temp_order_id, user_id, request_hash, cart, selection, store_credit_requested,
	state, payment_method, allocated, total_amount, currency, credit_applied, credit_debited,
	gateway_amount, gateway_order_id, gateway_payment_id, order_id, payment_id,
	failure_code, failure_reason, compensated, created_at, updated_at`

type CheckoutRepository struct {
	q Executor
}

func NewCheckoutRepository(q Executor) ports.CheckoutRepository {
	return &CheckoutRepository{q: q}
}

func (r *CheckoutRepository) Create(ctx context.Context, a *domain.CheckoutAttempt) error {
	cart, selection, err := encodeAttempt(a)
	if err != nil {
		return err
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO checkout_attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		a.TempOrderID,
		a.UserID,
		a.RequestHash,
		cart,
		selection,
		a.StoreCreditRequested,
		a.State,
		a.PaymentMethod,
		a.Allocated,
		a.TotalAmount,
		a.Currency,
		a.CreditApplied,
		a.CreditDebited,
		a.GatewayAmount,
		a.GatewayOrderID,
		a.GatewayPaymentID,
		a.OrderID,
		a.PaymentID,
		a.FailureCode,
		a.FailureReason,
		a.Compensated,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.NewDuplicateKeyError(a.TempOrderID)
		}
		return fmt.Errorf("failed to create checkout attempt: %w", err)
	}
	return nil
}

func (r *CheckoutRepository) FindByTempOrderID(ctx context.Context, tempOrderID string) (*domain.CheckoutAttempt, error) {
	row := r.q.QueryRow(ctx, `SELECT `+attemptColumns+` FROM checkout_attempts WHERE temp_order_id = $1`, tempOrderID)
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewCheckoutNotFoundError(tempOrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find checkout attempt: %w", err)
	}
	return a, nil
}

// Update is a compare-and-set on state. Zero affected rows means another
// worker moved the attempt first.
func (r *CheckoutRepository) Update(ctx context.Context, a *domain.CheckoutAttempt, from domain.CheckoutState) error {
	query := `
		UPDATE checkout_attempts SET
			state = $3,
			payment_method = $4,
			allocated = $5,
			total_amount = $6,
			credit_applied = $7,
			credit_debited = $8,
			gateway_amount = $9,
			gateway_order_id = $10,
			gateway_payment_id = $11,
			order_id = $12,
			payment_id = $13,
			failure_code = $14,
			failure_reason = $15,
			compensated = $16,
			updated_at = $17
		WHERE temp_order_id = $1 AND state = $2
	`

	tag, err := r.q.Exec(ctx, query,
		a.TempOrderID,
		from,
		a.State,
		a.PaymentMethod,
		a.Allocated,
		a.TotalAmount,
		a.CreditApplied,
		a.CreditDebited,
		a.GatewayAmount,
		a.GatewayOrderID,
		a.GatewayPaymentID,
		a.OrderID,
		a.PaymentID,
		a.FailureCode,
		a.FailureReason,
		a.Compensated,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update checkout attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewCheckoutInProgressError(a.TempOrderID)
	}
	return nil
}

func (r *CheckoutRepository) FindStale(ctx context.Context, state domain.CheckoutState, olderThan time.Duration, limit int) ([]*domain.CheckoutAttempt, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	rows, err := r.q.Query(ctx, `
		SELECT `+attemptColumns+`
		FROM checkout_attempts
		WHERE state = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`,
		state, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale attempts: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.CheckoutAttempt, error) {
		return scanAttempt(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan stale attempts: %w", err)
	}
	return attempts, nil
}

func (r *CheckoutRepository) FindUncompensated(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.CheckoutAttempt, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	rows, err := r.q.Query(ctx, `
		SELECT `+attemptColumns+`
		FROM checkout_attempts
		WHERE state = $1
			AND credit_debited AND credit_applied > 0 AND NOT compensated
			AND failure_code IS DISTINCT FROM $2
			AND updated_at < $3
		ORDER BY updated_at ASC
		LIMIT $4`,
		domain.StateFailed, domain.ErrCodeReconciliationNeeded, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query uncompensated attempts: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.CheckoutAttempt, error) {
		return scanAttempt(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan uncompensated attempts: %w", err)
	}
	return attempts, nil
}

func encodeAttempt(a *domain.CheckoutAttempt) ([]byte, []byte, error) {
	cart, err := json.Marshal(a.Cart)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode cart: %w", err)
	}
	selection, err := json.Marshal(a.Selection)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode payment selection: %w", err)
	}
	return cart, selection, nil
}

func scanAttempt(row pgx.Row) (*domain.CheckoutAttempt, error) {
	var (
		a         domain.CheckoutAttempt
		cart      []byte
		selection []byte
	)
	err := row.Scan(
		&a.TempOrderID,
		&a.UserID,
		&a.RequestHash,
		&cart,
		&selection,
		&a.StoreCreditRequested,
		&a.State,
		&a.PaymentMethod,
		&a.Allocated,
		&a.TotalAmount,
		&a.Currency,
		&a.CreditApplied,
		&a.CreditDebited,
		&a.GatewayAmount,
		&a.GatewayOrderID,
		&a.GatewayPaymentID,
		&a.OrderID,
		&a.PaymentID,
		&a.FailureCode,
		&a.FailureReason,
		&a.Compensated,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cart, &a.Cart); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	if err := json.Unmarshal(selection, &a.Selection); err != nil {
		return nil, fmt.Errorf("failed to decode payment selection: %w", err)
	}
	return &a, nil
}
