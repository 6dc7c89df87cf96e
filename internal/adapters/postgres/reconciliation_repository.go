package postgres

import (
	"context"
	"fmt"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
	"github.com/jackc/pgx/v5"
)

type ReconciliationRepository struct {
	q Executor
}

func NewReconciliationRepository(q Executor) ports.ReconciliationRepository {
	return &ReconciliationRepository{q: q}
}

func (r *ReconciliationRepository) Create(ctx context.Context, item *domain.ReconciliationItem) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO reconciliation_items (id, temp_order_id, user_id, kind, amount, currency, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID,
		item.TempOrderID,
		item.UserID,
		item.Kind,
		item.Amount,
		item.Currency,
		item.Detail,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reconciliation item: %w", err)
	}
	return nil
}

// ListOpen returns unresolved items, oldest first.
func (r *ReconciliationRepository) ListOpen(ctx context.Context, limit int) ([]*domain.ReconciliationItem, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, temp_order_id, user_id, kind, amount, currency, detail, created_at, resolved_at
		FROM reconciliation_items
		WHERE resolved_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation items: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.ReconciliationItem, error) {
		var item domain.ReconciliationItem
		err := row.Scan(
			&item.ID,
			&item.TempOrderID,
			&item.UserID,
			&item.Kind,
			&item.Amount,
			&item.Currency,
			&item.Detail,
			&item.CreatedAt,
			&item.ResolvedAt,
		)
		return &item, err
	})
}
