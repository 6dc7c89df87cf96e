package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, user_id, amount, type, order_ref, description,
	balance_before, balance_after, idempotency_key, created_at`

type LedgerRepository struct {
	pool   Pool
	logger *slog.Logger
}

func NewLedgerRepository(pool Pool, logger *slog.Logger) ports.LedgerRepository {
	return &LedgerRepository{pool: pool, logger: logger}
}

func (r *LedgerRepository) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT balance FROM credit_balances WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// Apply serializes on the user's balance row. The idempotency key is checked
// after the lock is held so two replays of the same entry cannot both apply.
func (r *LedgerRepository) Apply(ctx context.Context, entry domain.LedgerEntry) (*domain.CreditTransaction, error) {
	var result *domain.CreditTransaction

	err := WithinTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO credit_balances (user_id, balance) VALUES ($1, 0) ON CONFLICT (user_id) DO NOTHING`,
			entry.UserID,
		); err != nil {
			return fmt.Errorf("failed to ensure balance row: %w", err)
		}

		var balance int64
		if err := tx.QueryRow(ctx,
			`SELECT balance FROM credit_balances WHERE user_id = $1 FOR UPDATE`,
			entry.UserID,
		).Scan(&balance); err != nil {
			return fmt.Errorf("failed to lock balance: %w", err)
		}

		if entry.IdempotencyKey != nil {
			existing, err := findTransactionByKey(ctx, tx, *entry.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				result = existing
				return nil
			}
		}

		txn, err := entry.Apply(balance)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO credit_transactions (`+transactionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			txn.ID,
			txn.UserID,
			txn.Amount,
			txn.Type,
			txn.OrderRef,
			txn.Description,
			txn.BalanceBefore,
			txn.BalanceAfter,
			txn.IdempotencyKey,
			txn.CreatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) && entry.IdempotencyKey != nil {
				return domain.NewDuplicateKeyError(*entry.IdempotencyKey)
			}
			return fmt.Errorf("failed to append transaction: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE credit_balances SET balance = $2, updated_at = now() WHERE user_id = $1`,
			entry.UserID, txn.BalanceAfter,
		); err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		result = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("ledger entry applied",
		"user_id", result.UserID,
		"type", result.Type,
		"amount", result.Amount,
		"balance_after", result.BalanceAfter,
	)
	return result, nil
}

func (r *LedgerRepository) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*domain.CreditTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	txns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.CreditTransaction, error) {
		return scanTransaction(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan transactions: %w", err)
	}
	return txns, nil
}

func (r *LedgerRepository) SumTransactions(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::BIGINT FROM credit_transactions WHERE user_id = $1`,
		userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}

func findTransactionByKey(ctx context.Context, q Executor, key string) (*domain.CreditTransaction, error) {
	row := q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM credit_transactions WHERE idempotency_key = $1`, key)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return txn, nil
}

func scanTransaction(row pgx.Row) (*domain.CreditTransaction, error) {
	var t domain.CreditTransaction
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Amount,
		&t.Type,
		&t.OrderRef,
		&t.Description,
		&t.BalanceBefore,
		&t.BalanceAfter,
		&t.IdempotencyKey,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
