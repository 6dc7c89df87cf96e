package service

import (
	"context"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
)

// allocate splits the total between store credit and the selected method.
// Credit covering the whole total collapses the checkout to store_credit.
func (o *Orchestrator) allocate(ctx context.Context, a *domain.CheckoutAttempt) error {
	var credit, balance int64

	if a.StoreCreditRequested && a.UserID != nil {
		var err error
		balance, err = o.ledger.GetBalance(ctx, *a.UserID)
		if err != nil {
			return err
		}
		credit = min(balance, a.TotalAmount)
		if limit := a.Selection.CreditLimit; limit != nil && *limit < credit {
			credit = *limit
		}
	}

	switch {
	case credit == a.TotalAmount:
		a.PaymentMethod = domain.MethodStoreCredit
	case a.Selection.Method == domain.MethodStoreCredit:
		return domain.NewInsufficientCreditError(a.TotalAmount, balance)
	default:
		a.PaymentMethod = a.Selection.Method
	}

	a.CreditApplied = credit
	if a.PaymentMethod == domain.MethodGateway {
		a.GatewayAmount = a.TotalAmount - credit
	}
	a.Allocated = true

	o.logger.Info("checkout allocated",
		"temp_order_id", a.TempOrderID,
		"method", a.PaymentMethod,
		"credit_applied", a.CreditApplied,
		"gateway_amount", a.GatewayAmount,
	)
	return nil
}

// reserveCredit debits the allocated credit before any order or gateway step.
// An insufficient balance fails the attempt. Any other ledger error leaves the
// attempt in INIT: the debit may or may not have landed, and only a replay
// under the same idempotency key can tell.
func (o *Orchestrator) reserveCredit(ctx context.Context, a *domain.CheckoutAttempt) error {
	ref := a.TempOrderID
	key := domain.DebitKey(a.TempOrderID)

	_, err := o.ledger.Debit(ctx, domain.LedgerEntry{
		UserID:         *a.UserID,
		Amount:         a.CreditApplied,
		OrderRef:       &ref,
		Description:    "payment:" + a.TempOrderID,
		IdempotencyKey: &key,
	})
	if err != nil {
		if domain.IsErrorCode(err, domain.ErrCodeInsufficientFunds) {
			return o.fail(ctx, a, &domain.DomainError{
				Code:    domain.ErrCodeInsufficientCredit,
				Message: "store credit balance changed before it could be applied",
				Err:     err,
			})
		}
		o.logger.Error("credit reservation outcome unknown",
			"temp_order_id", a.TempOrderID,
			"user_id", *a.UserID,
			"amount", a.CreditApplied,
			"error", err,
		)
		return err
	}

	a.CreditDebited = true
	return o.transition(ctx, a, domain.StateCreditReserved)
}
