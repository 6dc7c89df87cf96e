package ports

import (
	"context"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
)

type CheckoutRepository interface {
	Create(ctx context.Context, attempt *domain.CheckoutAttempt) error
	FindByTempOrderID(ctx context.Context, tempOrderID string) (*domain.CheckoutAttempt, error)
	// Update persists attempt only if its stored state is still from.
	Update(ctx context.Context, attempt *domain.CheckoutAttempt, from domain.CheckoutState) error
	FindStale(ctx context.Context, state domain.CheckoutState, olderThan time.Duration, limit int) ([]*domain.CheckoutAttempt, error)
	// FindUncompensated lists failed attempts whose reserved credit was never
	// returned, excluding those already escalated to reconciliation.
	FindUncompensated(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.CheckoutAttempt, error)
}

type ReconciliationRepository interface {
	Create(ctx context.Context, item *domain.ReconciliationItem) error
	ListOpen(ctx context.Context, limit int) ([]*domain.ReconciliationItem, error)
}
