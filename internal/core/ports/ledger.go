package ports

import (
	"context"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
)

// CreditLedger is the only entry point allowed to mutate store-credit balances.
type CreditLedger interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	Credit(ctx context.Context, entry domain.LedgerEntry) (*domain.CreditTransaction, error)
	Debit(ctx context.Context, entry domain.LedgerEntry) (*domain.CreditTransaction, error)
}

// LedgerRepository persists balances and their transaction log.
type LedgerRepository interface {
	// GetBalance returns zero when the user has no balance row.
	GetBalance(ctx context.Context, userID string) (int64, error)
	// Apply locks the user's balance, applies entry and appends the log row
	// in one transaction. An entry whose idempotency key was already applied
	// returns the original transaction unchanged.
	Apply(ctx context.Context, entry domain.LedgerEntry) (*domain.CreditTransaction, error)
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*domain.CreditTransaction, error)
	SumTransactions(ctx context.Context, userID string) (int64, error)
}
