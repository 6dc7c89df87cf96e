package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/auth"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderWriter writes orders through two pools. The primary pool runs under
// the caller's claims so row-level security decides; the fallback pool holds
// the elevated credential and may be nil.
type OrderWriter struct {
	primary     Pool
	fallback    Pool
	primaryRole string
	logger      *slog.Logger
}

func NewOrderWriter(primary, fallback Pool, primaryRole string, logger *slog.Logger) ports.OrderWriter {
	return &OrderWriter{
		primary:     primary,
		fallback:    fallback,
		primaryRole: primaryRole,
		logger:      logger,
	}
}

func (w *OrderWriter) WritePrimary(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
	return w.write(ctx, w.primary, order, true)
}

func (w *OrderWriter) WriteFallback(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
	if w.fallback == nil {
		return uuid.Nil, domain.NewFallbackUnavailableError()
	}
	return w.write(ctx, w.fallback, order, false)
}

type writeOutcome struct {
	id       uuid.UUID
	complete bool
	written  int
}

func (w *OrderWriter) write(ctx context.Context, pool Pool, order *domain.Order, scoped bool) (uuid.UUID, error) {
	if err := order.Validate(); err != nil {
		return uuid.Nil, domain.NewOrderWriteError(err)
	}

	var out writeOutcome
	err := WithinTransaction(ctx, pool, func(tx pgx.Tx) error {
		if scoped {
			if err := w.assumeCaller(ctx, tx); err != nil {
				return err
			}
		}

		id, created, err := insertOrder(ctx, tx, order)
		if err != nil {
			return err
		}
		out.id = id

		if !created {
			out.complete, out.written, err = existingOrderState(ctx, tx, id)
			return err
		}

		out.written, err = w.insertItems(ctx, tx, id, order)
		if err != nil {
			return err
		}
		if out.written != len(order.Items) {
			return nil
		}

		if _, err := tx.Exec(ctx, `UPDATE orders SET items_complete = TRUE WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to mark order complete: %w", err)
		}
		out.complete = true
		return nil
	})
	if err != nil {
		return uuid.Nil, classifyWriteError(err)
	}

	if !out.complete {
		w.logger.Error("order stored without all items",
			"order_id", out.id,
			"temp_order_id", order.TempOrderID,
			"written", out.written,
			"expected", len(order.Items),
		)
		return out.id, domain.NewOrderIncompleteError(out.id.String(), out.written, len(order.Items))
	}
	return out.id, nil
}

// assumeCaller scopes the transaction to the request's claims and, when
// configured, the restricted role that row-level security policies target.
func (w *OrderWriter) assumeCaller(ctx context.Context, tx pgx.Tx) error {
	payload := []byte("{}")
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		var err error
		if payload, err = json.Marshal(claims); err != nil {
			return fmt.Errorf("failed to encode claims: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, string(payload)); err != nil {
		return fmt.Errorf("failed to set request claims: %w", err)
	}
	if w.primaryRole == "" {
		return nil
	}
	if _, err := tx.Exec(ctx, "SET LOCAL ROLE "+pgx.Identifier{w.primaryRole}.Sanitize()); err != nil {
		return fmt.Errorf("failed to assume role %s: %w", w.primaryRole, err)
	}
	return nil
}

// insertOrder returns the id of the row for order.TempOrderID and whether
// this call created it.
func insertOrder(ctx context.Context, tx pgx.Tx, o *domain.Order) (uuid.UUID, bool, error) {
	id := o.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `INSERT INTO orders (
				id, temp_order_id, customer_id, contact_name, contact_email, contact_phone,
				total_amount, currency, payment_method, payment_id, credit_applied,
				shipping_address, billing_address, status, notes, items_expected, items_complete, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, FALSE, $17)
				ON CONFLICT (temp_order_id) DO NOTHING
				RETURNING id
	`

	var inserted uuid.UUID
	err := tx.QueryRow(ctx, query,
		id,
		o.TempOrderID,
		o.CustomerID,
		o.Contact.Name,
		o.Contact.Email,
		o.Contact.Phone,
		o.TotalAmount,
		o.Currency,
		o.PaymentMethod,
		o.PaymentID,
		o.CreditApplied,
		o.ShippingAddress,
		o.BillingAddress,
		o.Status,
		o.Notes,
		len(o.Items),
		createdAt,
	).Scan(&inserted)
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, err
	}

	var existing uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM orders WHERE temp_order_id = $1`, o.TempOrderID).Scan(&existing); err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to load existing order: %w", err)
	}
	return existing, false, nil
}

func existingOrderState(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, int, error) {
	var (
		complete bool
		written  int64
	)
	err := tx.QueryRow(ctx, `
		SELECT o.items_complete, (SELECT count(*) FROM order_items i WHERE i.order_id = o.id)
		FROM orders o WHERE o.id = $1`, id,
	).Scan(&complete, &written)
	if err != nil {
		return false, 0, fmt.Errorf("failed to load order state: %w", err)
	}
	return complete, int(written), nil
}

// insertItems writes the lines under a savepoint. A failure that is not an
// authorization rejection rolls the lines back and keeps the order row, which
// then stays marked incomplete.
func (w *OrderWriter) insertItems(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, o *domain.Order) (int, error) {
	if _, err := tx.Exec(ctx, `SAVEPOINT order_items`); err != nil {
		return 0, fmt.Errorf("failed to create savepoint: %w", err)
	}

	written := 0
	for i, item := range o.Items {
		tag, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, title, quantity, unit_price, total_price, product_type, options)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			orderID,
			i+1,
			item.ProductID,
			item.Title,
			item.Quantity,
			item.UnitPrice,
			item.TotalPrice,
			item.ProductType,
			item.Options,
		)
		if err != nil {
			if IsInsufficientPrivilege(err) {
				return 0, err
			}
			w.logger.Warn("order item insert failed",
				"order_id", orderID,
				"line_no", i+1,
				"error", err,
			)
			break
		}
		written += int(tag.RowsAffected())
	}

	if written == len(o.Items) {
		return written, nil
	}
	if _, err := tx.Exec(ctx, `ROLLBACK TO SAVEPOINT order_items`); err != nil {
		return 0, fmt.Errorf("failed to roll back items: %w", err)
	}
	return 0, nil
}

func classifyWriteError(err error) error {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if IsInsufficientPrivilege(err) {
		return domain.NewAuthorizationDeniedError(err)
	}
	return domain.NewOrderWriteError(err)
}
