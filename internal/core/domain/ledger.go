package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies a store-credit ledger entry.
type TransactionType string

const (
	TxCredit TransactionType = "credit"
	TxDebit  TransactionType = "debit"
	TxRefund TransactionType = "refund"
	TxReturn TransactionType = "return"
)

// Increases reports whether entries of this type add to a balance.
func (t TransactionType) Increases() bool {
	return t == TxCredit || t == TxRefund || t == TxReturn
}

// CreditBalance is the current store-credit balance of a user.
type CreditBalance struct {
	UserID    string
	Balance   int64
	UpdatedAt time.Time
}

// CreditTransaction is an immutable ledger entry. Amount is signed: debits are negative.
type CreditTransaction struct {
	ID             uuid.UUID
	UserID         string
	Amount         int64
	Type           TransactionType
	OrderRef       *string
	Description    string
	BalanceBefore  int64
	BalanceAfter   int64
	IdempotencyKey *string
	CreatedAt      time.Time
}

// LedgerEntry is a pending mutation handed to the ledger repository.
type LedgerEntry struct {
	UserID         string
	Amount         int64
	Type           TransactionType
	OrderRef       *string
	Description    string
	IdempotencyKey *string
}

// Apply computes the transaction produced by applying the entry to balance.
// Debits that would take the balance below zero are rejected, never clamped.
func (e LedgerEntry) Apply(balance int64) (*CreditTransaction, error) {
	if e.Amount <= 0 {
		return nil, NewInvalidAmountError(e.Amount)
	}
	delta := e.Amount
	if e.Type == TxDebit {
		if e.Amount > balance {
			return nil, NewInsufficientFundsError(e.UserID, balance, e.Amount)
		}
		delta = -e.Amount
	} else if !e.Type.Increases() {
		return nil, NewInvalidCreditTypeError(e.Type)
	}

	return &CreditTransaction{
		ID:             uuid.New(),
		UserID:         e.UserID,
		Amount:         delta,
		Type:           e.Type,
		OrderRef:       e.OrderRef,
		Description:    e.Description,
		BalanceBefore:  balance,
		BalanceAfter:   balance + delta,
		IdempotencyKey: e.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Idempotency keys anchoring ledger mutations made on behalf of a checkout attempt.
func DebitKey(tempOrderID string) string    { return "debit:" + tempOrderID }
func ReversalKey(tempOrderID string) string { return "reversal:" + tempOrderID }
