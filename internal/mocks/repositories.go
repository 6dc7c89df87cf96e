// Package mocks provides in-memory doubles of the core ports for tests.
package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
)

// MockLedgerRepository keeps balances and the transaction log in memory with
// the same atomicity as the Postgres repository.
type MockLedgerRepository struct {
	mu           sync.Mutex
	balances     map[string]int64
	transactions []*domain.CreditTransaction

	// BeforeApply can reject an entry before it touches the balance.
	BeforeApply  func(ctx context.Context, entry domain.LedgerEntry) error
	GetBalanceFn func(ctx context.Context, userID string) (int64, error)

	// Delay is slept while the balance is held, to widen race windows.
	Delay time.Duration
}

func NewMockLedgerRepository() *MockLedgerRepository {
	return &MockLedgerRepository{balances: make(map[string]int64)}
}

// Seed credits userID through the normal apply path so the log stays consistent.
func (m *MockLedgerRepository) Seed(userID string, amount int64) {
	_, _ = m.apply(domain.LedgerEntry{UserID: userID, Amount: amount, Type: domain.TxCredit, Description: "seed"})
}

func (m *MockLedgerRepository) GetBalance(ctx context.Context, userID string) (int64, error) {
	if m.GetBalanceFn != nil {
		return m.GetBalanceFn(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *MockLedgerRepository) Apply(ctx context.Context, entry domain.LedgerEntry) (*domain.CreditTransaction, error) {
	if m.BeforeApply != nil {
		if err := m.BeforeApply(ctx, entry); err != nil {
			return nil, err
		}
	}
	return m.apply(entry)
}

func (m *MockLedgerRepository) apply(entry domain.LedgerEntry) (*domain.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.IdempotencyKey != nil {
		for _, tx := range m.transactions {
			if tx.IdempotencyKey != nil && *tx.IdempotencyKey == *entry.IdempotencyKey {
				return tx, nil
			}
		}
	}

	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	tx, err := entry.Apply(m.balances[entry.UserID])
	if err != nil {
		return nil, err
	}
	m.balances[entry.UserID] = tx.BalanceAfter
	m.transactions = append(m.transactions, tx)
	return tx, nil
}

func (m *MockLedgerRepository) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*domain.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CreditTransaction
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].UserID == userID {
			out = append(out, m.transactions[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockLedgerRepository) SumTransactions(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, tx := range m.transactions {
		if tx.UserID == userID {
			sum += tx.Amount
		}
	}
	return sum, nil
}

// Transactions returns the log entries of userID in insertion order.
func (m *MockLedgerRepository) Transactions(userID string) []*domain.CreditTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CreditTransaction
	for _, tx := range m.transactions {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out
}

// MockCheckoutRepository stores attempts by value so callers cannot mutate
// stored state without Update.
type MockCheckoutRepository struct {
	mu       sync.Mutex
	attempts map[string]domain.CheckoutAttempt

	UpdateFn func(ctx context.Context, attempt *domain.CheckoutAttempt, from domain.CheckoutState) error
}

func NewMockCheckoutRepository() *MockCheckoutRepository {
	return &MockCheckoutRepository{attempts: make(map[string]domain.CheckoutAttempt)}
}

func (m *MockCheckoutRepository) Create(ctx context.Context, attempt *domain.CheckoutAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[attempt.TempOrderID]; ok {
		return domain.NewDuplicateKeyError(attempt.TempOrderID)
	}
	m.attempts[attempt.TempOrderID] = *attempt
	return nil
}

func (m *MockCheckoutRepository) FindByTempOrderID(ctx context.Context, tempOrderID string) (*domain.CheckoutAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[tempOrderID]
	if !ok {
		return nil, domain.NewCheckoutNotFoundError(tempOrderID)
	}
	return &a, nil
}

func (m *MockCheckoutRepository) Update(ctx context.Context, attempt *domain.CheckoutAttempt, from domain.CheckoutState) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, attempt, from)
	}
	return m.Store(ctx, attempt, from)
}

// Store is the default conditional update, usable from UpdateFn.
func (m *MockCheckoutRepository) Store(ctx context.Context, attempt *domain.CheckoutAttempt, from domain.CheckoutState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.attempts[attempt.TempOrderID]
	if !ok {
		return domain.NewCheckoutNotFoundError(attempt.TempOrderID)
	}
	if stored.State != from {
		return domain.NewCheckoutInProgressError(attempt.TempOrderID)
	}
	m.attempts[attempt.TempOrderID] = *attempt
	return nil
}

func (m *MockCheckoutRepository) FindStale(ctx context.Context, state domain.CheckoutState, olderThan time.Duration, limit int) ([]*domain.CheckoutAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []*domain.CheckoutAttempt
	for _, a := range m.attempts {
		if a.State == state && a.UpdatedAt.Before(cutoff) {
			copied := a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockCheckoutRepository) FindUncompensated(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.CheckoutAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []*domain.CheckoutAttempt
	for _, a := range m.attempts {
		escalated := a.FailureCode != nil && *a.FailureCode == domain.ErrCodeReconciliationNeeded
		if a.State == domain.StateFailed && a.NeedsCompensation() && !escalated && a.UpdatedAt.Before(cutoff) {
			copied := a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores attempt directly, bypassing state checks.
func (m *MockCheckoutRepository) Put(attempt domain.CheckoutAttempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[attempt.TempOrderID] = attempt
}

type MockReconciliationRepository struct {
	mu    sync.Mutex
	Items []*domain.ReconciliationItem

	CreateFn func(ctx context.Context, item *domain.ReconciliationItem) error
}

func (m *MockReconciliationRepository) Create(ctx context.Context, item *domain.ReconciliationItem) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, item)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Items = append(m.Items, item)
	return nil
}

func (m *MockReconciliationRepository) ListOpen(ctx context.Context, limit int) ([]*domain.ReconciliationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*domain.ReconciliationItem(nil), m.Items...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockReconciliationRepository) Kinds() []domain.ReconciliationKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]domain.ReconciliationKind, 0, len(m.Items))
	for _, item := range m.Items {
		kinds = append(kinds, item.Kind)
	}
	return kinds
}

type MockEventPublisher struct {
	mu     sync.Mutex
	Events []domain.CheckoutEvent
}

func (m *MockEventPublisher) Publish(ctx context.Context, event domain.CheckoutEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockEventPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.Events))
	for _, e := range m.Events {
		types = append(types, e.Type)
	}
	return types
}
