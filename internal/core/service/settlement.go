package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/google/uuid"
)

func (o *Orchestrator) openGatewaySession(ctx context.Context, a *domain.CheckoutAttempt) (*domain.CheckoutResult, error) {
	gatewayOrderID, err := o.gateway.RegisterOrder(ctx, a.GatewayAmount, a.Currency, a.TempOrderID)
	if err != nil {
		return nil, o.fail(ctx, a, err)
	}

	a.GatewayOrderID = &gatewayOrderID
	if err := o.transition(ctx, a, domain.StateGatewayPending); err != nil {
		return nil, err
	}

	o.metrics.CheckoutOutcome(string(a.PaymentMethod), "pending")
	o.logger.Info("awaiting gateway payment",
		"temp_order_id", a.TempOrderID,
		"gateway_order_id", gatewayOrderID,
		"amount", a.GatewayAmount,
		"credit_applied", a.CreditApplied,
	)
	return &domain.CheckoutResult{Pending: a.Pending()}, nil
}

func (o *Orchestrator) settleGatewayPayment(ctx context.Context, a *domain.CheckoutAttempt, outcome domain.GatewayOutcome) (*domain.OrderResult, error) {
	if a.GatewayOrderID == nil || outcome.GatewayOrderID != *a.GatewayOrderID {
		expected := ""
		if a.GatewayOrderID != nil {
			expected = *a.GatewayOrderID
		}
		o.logger.Warn("gateway callback for unexpected order",
			"temp_order_id", a.TempOrderID,
			"expected", expected,
			"got", outcome.GatewayOrderID,
		)
		return nil, domain.NewGatewayOrderMismatchError(expected, outcome.GatewayOrderID)
	}

	// VERIFYING is held by exactly one callback; whoever loses this
	// transition gets the settled outcome or CHECKOUT_IN_PROGRESS.
	if err := o.transition(ctx, a, domain.StateVerifying); err != nil {
		return o.settledOrder(ctx, a.TempOrderID, err)
	}

	valid, err := o.gateway.VerifySignature(ctx, outcome.GatewayOrderID, outcome.GatewayPaymentID, outcome.Signature)
	if err != nil {
		o.reopenGatewaySession(ctx, a)
		return nil, fmt.Errorf("verify payment signature: %w", err)
	}
	if !valid {
		cause := domain.NewPaymentVerificationError(outcome.GatewayOrderID)
		if err := o.markFailed(ctx, a, cause); err != nil {
			return nil, err
		}
		o.recordReconciliation(ctx, a, domain.ReconVerificationFailed, a.GatewayAmount,
			fmt.Sprintf("invalid signature for gateway payment %s", outcome.GatewayPaymentID))
		return nil, o.settleFailure(ctx, a, cause)
	}

	paymentID := outcome.GatewayPaymentID
	a.GatewayPaymentID = &paymentID

	res, err := o.confirm(ctx, a, paymentID)
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// abandonGatewayPayment fails a pending gateway checkout after a failure or
// cancellation callback. A gateway order already marked paid is never abandoned.
func (o *Orchestrator) abandonGatewayPayment(ctx context.Context, a *domain.CheckoutAttempt, reason string, cause error) error {
	if a.GatewayOrderID != nil {
		payment, err := o.gateway.Payment(ctx, *a.GatewayOrderID)
		if err != nil {
			return fmt.Errorf("load gateway payment: %w", err)
		}
		if payment.Status == domain.GatewayPaid {
			o.logger.Warn("refusing to abandon a paid gateway order",
				"temp_order_id", a.TempOrderID,
				"gateway_order_id", *a.GatewayOrderID,
				"reason", reason,
			)
			return domain.NewCheckoutInProgressError(a.TempOrderID)
		}
	}

	if err := o.markFailed(ctx, a, cause); err != nil {
		return err
	}
	o.recordGatewayFailure(ctx, a, reason)
	return o.settleFailure(ctx, a, cause)
}

// reopenGatewaySession hands an attempt whose verification errored back to
// GATEWAY_PENDING so a redelivered callback can verify it again.
func (o *Orchestrator) reopenGatewaySession(ctx context.Context, a *domain.CheckoutAttempt) {
	if err := o.transition(ctx, a, domain.StateGatewayPending); err != nil {
		o.logger.Error("failed to reopen gateway session; recovery will resolve it",
			"temp_order_id", a.TempOrderID,
			"error", err,
		)
	}
}

// recoverVerification resolves an attempt left in VERIFYING by the state
// of its gateway payment record.
func (o *Orchestrator) recoverVerification(ctx context.Context, a *domain.CheckoutAttempt) (*domain.CheckoutResult, error) {
	if a.GatewayOrderID == nil {
		return nil, domain.NewGatewayPaymentNotFoundError(a.TempOrderID)
	}
	payment, err := o.gateway.Payment(ctx, *a.GatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("load gateway payment: %w", err)
	}

	switch {
	case payment.Status == domain.GatewayPaid && payment.GatewayPaymentID != nil:
		paymentID := *payment.GatewayPaymentID
		a.GatewayPaymentID = &paymentID
		return o.confirm(ctx, a, paymentID)
	case payment.Status == domain.GatewayFailed:
		return nil, o.fail(ctx, a, domain.NewPaymentFailedError(derefString(payment.FailureReason)))
	default:
		if err := o.transition(ctx, a, domain.StateGatewayPending); err != nil {
			return nil, err
		}
		o.logger.Info("verification reopened, awaiting gateway callback",
			"temp_order_id", a.TempOrderID,
			"gateway_order_id", *a.GatewayOrderID,
		)
		return &domain.CheckoutResult{Pending: a.Pending()}, nil
	}
}

// confirm writes the order once the payment allocation is settled.
func (o *Orchestrator) confirm(ctx context.Context, a *domain.CheckoutAttempt, paymentID string) (*domain.CheckoutResult, error) {
	order := buildOrder(a, paymentID)

	orderID, err := o.writeOrder(ctx, order)
	if err != nil {
		switch {
		case domain.IsErrorCode(err, domain.ErrCodeOrderIncomplete):
			o.recordReconciliation(ctx, a, domain.ReconOrderIncomplete, a.TotalAmount, err.Error())
			// The order row exists, so the credit stays applied to it.
			a.Compensated = a.CreditDebited
			return nil, o.fail(ctx, a, domain.NewReconciliationError(a.TempOrderID, a.TotalAmount, err))
		case a.GatewayPaymentID != nil:
			o.recordReconciliation(ctx, a, domain.ReconChargedWithoutOrder, a.GatewayAmount, err.Error())
			return nil, o.fail(ctx, a, domain.NewReconciliationError(a.TempOrderID, a.GatewayAmount, err))
		default:
			return nil, o.fail(ctx, a, err)
		}
	}

	a.OrderID = &orderID
	a.PaymentID = &paymentID
	if err := o.transition(ctx, a, domain.StateConfirmed); err != nil {
		settled, conflictErr := o.confirmConflict(ctx, a, orderID, err)
		if conflictErr != nil {
			return nil, conflictErr
		}
		return &domain.CheckoutResult{Order: settled}, nil
	}

	o.metrics.CheckoutOutcome(string(a.PaymentMethod), "confirmed")
	o.publish(ctx, a, domain.EventOrderConfirmed)
	o.logger.Info("checkout confirmed",
		"temp_order_id", a.TempOrderID,
		"order_id", orderID,
		"method", a.PaymentMethod,
		"credit_applied", a.CreditApplied,
		"charged", a.ChargedOutsideCredit(),
	)

	result := a.Result()
	if result == nil {
		result = &domain.OrderResult{
			OrderID:       orderID,
			TempOrderID:   a.TempOrderID,
			PaymentMethod: a.PaymentMethod,
			PaymentID:     paymentID,
			CreditApplied: a.CreditApplied,
			TotalAmount:   a.TotalAmount,
			Currency:      a.Currency,
			Status:        order.Status,
		}
	}
	return &domain.CheckoutResult{Order: result}, nil
}

// confirmConflict handles an order that was written while the attempt could
// not be moved to CONFIRMED. A concurrent writer that confirmed the same
// idempotent order is fine; an attempt that failed meanwhile is escalated.
func (o *Orchestrator) confirmConflict(ctx context.Context, a *domain.CheckoutAttempt, orderID uuid.UUID, cause error) (*domain.OrderResult, error) {
	if !domain.IsErrorCode(cause, domain.ErrCodeCheckoutInProgress) {
		o.logger.Error("order written but checkout state not updated",
			"temp_order_id", a.TempOrderID,
			"order_id", orderID,
			"error", cause,
		)
		return nil, fmt.Errorf("order %s written but checkout %s not confirmed: %w", orderID, a.TempOrderID, cause)
	}

	stored, err := o.attempts.FindByTempOrderID(ctx, a.TempOrderID)
	if err != nil {
		return nil, fmt.Errorf("reload checkout %s after lost confirmation: %w", a.TempOrderID, err)
	}

	switch stored.State {
	case domain.StateConfirmed:
		return stored.Result(), nil
	case domain.StateFailed:
		conflict := fmt.Errorf("order %s written after checkout failed with %s", orderID, derefString(stored.FailureCode))
		o.recordReconciliation(ctx, stored, domain.ReconSettlementConflict, stored.TotalAmount, conflict.Error())
		o.metrics.CheckoutOutcome(string(stored.PaymentMethod), "reconciliation")
		return nil, &domain.CheckoutFailure{
			TempOrderID:     stored.TempOrderID,
			AttemptedAmount: stored.TotalAmount,
			Currency:        stored.Currency,
			Err:             domain.NewReconciliationError(stored.TempOrderID, stored.TotalAmount, conflict),
		}
	default:
		return nil, cause
	}
}

// settledOrder answers a caller that lost a state transition with the
// attempt's terminal outcome, or with cause while it is still in flight.
func (o *Orchestrator) settledOrder(ctx context.Context, tempOrderID string, cause error) (*domain.OrderResult, error) {
	if !domain.IsErrorCode(cause, domain.ErrCodeCheckoutInProgress) {
		return nil, cause
	}
	stored, err := o.attempts.FindByTempOrderID(ctx, tempOrderID)
	if err != nil {
		return nil, cause
	}
	switch stored.State {
	case domain.StateConfirmed:
		return stored.Result(), nil
	case domain.StateFailed:
		return nil, stored.Failure()
	default:
		return nil, cause
	}
}

// writeOrder tries the primary path and falls back exactly once, only when
// the primary write was rejected by the authorization policy.
func (o *Orchestrator) writeOrder(ctx context.Context, order *domain.Order) (uuid.UUID, error) {
	orderID, err := o.orders.WritePrimary(ctx, order)
	if err == nil {
		return orderID, nil
	}
	if !domain.IsErrorCode(err, domain.ErrCodeAuthorizationDenied) {
		return uuid.Nil, err
	}

	o.logger.Warn("primary order write denied, using fallback path",
		"temp_order_id", order.TempOrderID,
		"error", err,
	)
	return o.orders.WriteFallback(ctx, order)
}

// fail ends the attempt with cause. The move to FAILED is won before any
// credit is returned, so a concurrent settlement never sees refunded credit.
func (o *Orchestrator) fail(ctx context.Context, a *domain.CheckoutAttempt, cause error) error {
	if err := o.markFailed(ctx, a, cause); err != nil {
		return err
	}
	return o.settleFailure(ctx, a, cause)
}

// markFailed records cause and moves the attempt to FAILED. It has no other
// side effect, so losing the transition leaves nothing to undo.
func (o *Orchestrator) markFailed(ctx context.Context, a *domain.CheckoutAttempt, cause error) error {
	if a.State == domain.StateFailed {
		return nil
	}
	from := a.State
	a.Fail(cause)
	if err := o.transition(ctx, a, domain.StateFailed); err != nil {
		a.State = from
		o.logger.Warn("could not mark checkout failed",
			"temp_order_id", a.TempOrderID,
			"from", from,
			"cause", cause,
			"error", err,
		)
		return err
	}
	return nil
}

// settleFailure returns reserved credit of a FAILED attempt. A compensation
// that fails escalates to a reconciliation error.
func (o *Orchestrator) settleFailure(ctx context.Context, a *domain.CheckoutAttempt, cause error) error {
	final := cause

	if a.NeedsCompensation() {
		if err := o.compensate(ctx, a); err != nil {
			final = domain.NewReconciliationError(a.TempOrderID, a.CreditApplied, errors.Join(cause, err))
			o.logger.Error("compensating credit failed",
				"temp_order_id", a.TempOrderID,
				"user_id", derefString(a.UserID),
				"amount", a.CreditApplied,
				"cause", cause,
				"error", err,
			)
			o.recordReconciliation(ctx, a, domain.ReconCompensationFailed, a.CreditApplied,
				fmt.Sprintf("reversal of %d failed after %v: %v", a.CreditApplied, cause, err))
			a.Fail(final)
		}
		if err := o.save(ctx, a, domain.StateFailed); err != nil {
			o.logger.Error("failed to persist compensation", "temp_order_id", a.TempOrderID, "error", err)
		}
	}

	outcome := "failed"
	if domain.IsErrorCode(final, domain.ErrCodeReconciliationNeeded) {
		outcome = "reconciliation"
	}
	o.metrics.CheckoutOutcome(string(a.PaymentMethod), outcome)
	o.publish(ctx, a, domain.EventCheckoutFailed)
	o.logger.Warn("checkout failed",
		"temp_order_id", a.TempOrderID,
		"state", a.State,
		"code", domain.ErrorCode(final),
		"attempted_amount", a.TotalAmount,
		"error", final,
	)

	return &domain.CheckoutFailure{
		TempOrderID:     a.TempOrderID,
		AttemptedAmount: a.TotalAmount,
		Currency:        a.Currency,
		Err:             final,
	}
}

func (o *Orchestrator) compensate(ctx context.Context, a *domain.CheckoutAttempt) error {
	ref := a.TempOrderID
	key := domain.ReversalKey(a.TempOrderID)

	tx, err := o.ledger.Credit(ctx, domain.LedgerEntry{
		UserID:         *a.UserID,
		Amount:         a.CreditApplied,
		Type:           domain.TxRefund,
		OrderRef:       &ref,
		Description:    "reversal:payment:" + a.TempOrderID,
		IdempotencyKey: &key,
	})
	if err != nil {
		return err
	}

	a.Compensated = true
	o.logger.Info("reserved credit returned",
		"temp_order_id", a.TempOrderID,
		"user_id", *a.UserID,
		"amount", a.CreditApplied,
		"balance_after", tx.BalanceAfter,
	)
	return nil
}

func (o *Orchestrator) recordGatewayFailure(ctx context.Context, a *domain.CheckoutAttempt, reason string) {
	if a.GatewayOrderID == nil {
		return
	}
	if err := o.gateway.RecordFailure(ctx, *a.GatewayOrderID, reason); err != nil {
		o.logger.Error("failed to record gateway failure",
			"temp_order_id", a.TempOrderID,
			"gateway_order_id", *a.GatewayOrderID,
			"error", err,
		)
	}
}

func (o *Orchestrator) recordReconciliation(ctx context.Context, a *domain.CheckoutAttempt, kind domain.ReconciliationKind, amount int64, detail string) {
	item := &domain.ReconciliationItem{
		ID:          uuid.New(),
		TempOrderID: a.TempOrderID,
		UserID:      a.UserID,
		Kind:        kind,
		Amount:      amount,
		Currency:    a.Currency,
		Detail:      detail,
		CreatedAt:   time.Now().UTC(),
	}

	o.logger.Error("RECONCILIATION_REQUIRED",
		"kind", kind,
		"temp_order_id", a.TempOrderID,
		"user_id", derefString(a.UserID),
		"amount", amount,
		"currency", a.Currency,
		"gateway_order_id", derefString(a.GatewayOrderID),
		"detail", detail,
	)

	if err := o.recon.Create(ctx, item); err != nil {
		o.logger.Error("failed to store reconciliation item", "temp_order_id", a.TempOrderID, "kind", kind, "error", err)
	}
	o.publish(ctx, a, domain.EventReconciliationRequired)
}

func (o *Orchestrator) publish(ctx context.Context, a *domain.CheckoutAttempt, eventType string) {
	event := domain.CheckoutEvent{
		EventID:       uuid.New(),
		Type:          eventType,
		TempOrderID:   a.TempOrderID,
		OrderID:       a.OrderID,
		UserID:        a.UserID,
		PaymentMethod: a.PaymentMethod,
		TotalAmount:   a.TotalAmount,
		CreditApplied: a.CreditApplied,
		Currency:      a.Currency,
		OccurredAt:    time.Now().UTC(),
	}
	if a.FailureCode != nil {
		event.FailureCode = *a.FailureCode
	}
	if err := o.events.Publish(ctx, event); err != nil {
		o.logger.Error("failed to publish checkout event", "temp_order_id", a.TempOrderID, "type", eventType, "error", err)
	}
}

func buildOrder(a *domain.CheckoutAttempt, paymentID string) *domain.Order {
	status := domain.OrderCompleted
	if a.PaymentMethod == domain.MethodCOD {
		status = domain.OrderPending
	}
	return &domain.Order{
		TempOrderID:     a.TempOrderID,
		CustomerID:      a.UserID,
		Contact:         a.Cart.Contact,
		Items:           a.Cart.OrderItems(),
		TotalAmount:     a.TotalAmount,
		Currency:        a.Currency,
		PaymentMethod:   a.PaymentMethod,
		PaymentID:       paymentID,
		CreditApplied:   a.CreditApplied,
		ShippingAddress: a.Cart.ShippingAddress,
		BillingAddress:  a.Cart.BillingAddress,
		Status:          status,
		Notes:           a.Cart.Notes,
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
