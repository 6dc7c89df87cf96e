package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
	"github.com/DanielPopoola/ficmart-checkout/internal/metrics"
)

// LedgerService owns store-credit balance consistency. Mutations for the same
// user are serialized in-process; the repository additionally row-locks the
// balance so concurrent instances stay correct.
type LedgerService struct {
	repo    ports.LedgerRepository
	locks   *userLocks
	metrics *metrics.Recorder
	logger  *slog.Logger
}

func NewLedgerService(repo ports.LedgerRepository, recorder *metrics.Recorder, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		repo:    repo,
		locks:   newUserLocks(),
		metrics: recorder,
		logger:  logger,
	}
}

// GetBalance returns the user's balance. A user without a balance row has zero.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domain.NewMissingRequiredFieldError("user_id")
	}
	return s.repo.GetBalance(ctx, userID)
}

// Credit adds a credit, refund or return entry to the user's balance.
func (s *LedgerService) Credit(ctx context.Context, entry domain.LedgerEntry) (*domain.CreditTransaction, error) {
	if entry.Type == "" {
		entry.Type = domain.TxCredit
	}
	if !entry.Type.Increases() {
		return nil, domain.NewInvalidCreditTypeError(entry.Type)
	}
	return s.apply(ctx, entry, "credit")
}

// Debit removes amount from the user's balance or fails with
// ErrCodeInsufficientFunds. The check and the mutation are one atomic step.
func (s *LedgerService) Debit(ctx context.Context, entry domain.LedgerEntry) (*domain.CreditTransaction, error) {
	entry.Type = domain.TxDebit
	return s.apply(ctx, entry, "debit")
}

func (s *LedgerService) apply(ctx context.Context, entry domain.LedgerEntry, op string) (*domain.CreditTransaction, error) {
	if entry.UserID == "" {
		return nil, domain.NewMissingRequiredFieldError("user_id")
	}
	if entry.Amount <= 0 {
		return nil, domain.NewInvalidAmountError(entry.Amount)
	}

	unlock := s.locks.lock(entry.UserID)
	defer unlock()

	tx, err := s.repo.Apply(ctx, entry)
	if err != nil {
		result := "error"
		if domain.IsErrorCode(err, domain.ErrCodeInsufficientFunds) {
			result = "insufficient_funds"
		}
		s.metrics.LedgerOperation(op, result)
		s.logger.Warn("ledger mutation rejected",
			"user_id", entry.UserID,
			"operation", op,
			"amount", entry.Amount,
			"error", err,
		)
		return nil, err
	}

	s.metrics.LedgerOperation(op, "ok")
	s.logger.Info("ledger mutation applied",
		"user_id", entry.UserID,
		"operation", op,
		"type", tx.Type,
		"amount", tx.Amount,
		"balance_after", tx.BalanceAfter,
		"transaction_id", tx.ID,
	)
	return tx, nil
}

func (s *LedgerService) History(ctx context.Context, userID string, limit, offset int) ([]*domain.CreditTransaction, error) {
	if userID == "" {
		return nil, domain.NewMissingRequiredFieldError("user_id")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactions(ctx, userID, limit, offset)
}

// VerifyConsistency checks that the stored balance equals the sum of the
// user's signed log entries.
func (s *LedgerService) VerifyConsistency(ctx context.Context, userID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	sum, err := s.repo.SumTransactions(ctx, userID)
	if err != nil {
		return err
	}
	if balance != sum {
		s.logger.Error("ledger inconsistency detected", "user_id", userID, "balance", balance, "log_sum", sum)
		return domain.NewLedgerInconsistentError(userID, balance, sum)
	}
	return nil
}

// userLocks hands out one mutex per user id and drops it when unused.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
