package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/ports"
	"github.com/DanielPopoola/ficmart-checkout/internal/metrics"
	"github.com/google/uuid"
)

// Orchestrator drives one checkout attempt across the credit ledger, the
// payment gateway and the order writer to a single terminal outcome.
type Orchestrator struct {
	attempts    ports.CheckoutRepository
	ledger      ports.CreditLedger
	gateway     ports.GatewayAdapter
	orders      ports.OrderWriter
	recon       ports.ReconciliationRepository
	events      ports.EventPublisher
	replayAfter time.Duration
	metrics     *metrics.Recorder
	logger      *slog.Logger
}

func NewOrchestrator(
	attempts ports.CheckoutRepository,
	ledger ports.CreditLedger,
	gateway ports.GatewayAdapter,
	orders ports.OrderWriter,
	recon ports.ReconciliationRepository,
	events ports.EventPublisher,
	replayAfter time.Duration,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		attempts:    attempts,
		ledger:      ledger,
		gateway:     gateway,
		orders:      orders,
		recon:       recon,
		events:      events,
		replayAfter: replayAfter,
		metrics:     recorder,
		logger:      logger,
	}
}

// CompleteCheckout runs a checkout to its terminal outcome, suspending on
// awaiter while the buyer completes an external gateway payment.
func (o *Orchestrator) CompleteCheckout(ctx context.Context, req domain.CheckoutRequest, awaiter ports.OutcomeAwaiter) (*domain.OrderResult, error) {
	res, err := o.Begin(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Order != nil {
		return res.Order, nil
	}

	outcome, err := awaiter.Await(ctx, res.Pending)
	if err != nil {
		// The attempt stays GATEWAY_PENDING; the gateway callback can still settle it.
		return nil, fmt.Errorf("awaiting gateway outcome for %s: %w", res.Pending.TempOrderID, err)
	}
	return o.Resume(ctx, res.Pending.TempOrderID, outcome)
}

// Begin validates the request, allocates store credit and dispatches by the
// resolved payment method. Credit-only and COD checkouts finish here; gateway
// checkouts return a PendingPayment to be settled with Resume.
func (o *Orchestrator) Begin(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	if req.TempOrderID == "" {
		req.TempOrderID = uuid.NewString()
	}

	if err := o.validate(req); err != nil {
		o.metrics.CheckoutOutcome(string(req.Selection.Method), "rejected")
		return nil, &domain.CheckoutFailure{
			TempOrderID:     req.TempOrderID,
			AttemptedAmount: req.Cart.Total(),
			Currency:        req.Cart.Currency,
			Err:             err,
		}
	}

	hash, err := domain.RequestHash(req)
	if err != nil {
		return nil, fmt.Errorf("hash checkout request: %w", err)
	}

	existing, err := o.attempts.FindByTempOrderID(ctx, req.TempOrderID)
	if err == nil {
		return o.replay(ctx, existing, hash)
	}
	if !domain.IsErrorCode(err, domain.ErrCodeCheckoutNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	attempt := &domain.CheckoutAttempt{
		TempOrderID:          req.TempOrderID,
		UserID:               req.Cart.UserID,
		RequestHash:          hash,
		Cart:                 req.Cart,
		Selection:            req.Selection,
		StoreCreditRequested: req.StoreCreditRequested || req.Selection.Method == domain.MethodStoreCredit,
		State:                domain.StateInit,
		PaymentMethod:        req.Selection.Method,
		TotalAmount:          req.Cart.Total(),
		Currency:             req.Cart.Currency,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := o.attempts.Create(ctx, attempt); err != nil {
		if domain.IsErrorCode(err, domain.ErrCodeDuplicateKey) {
			existing, findErr := o.attempts.FindByTempOrderID(ctx, req.TempOrderID)
			if findErr != nil {
				return nil, fmt.Errorf("failed to load concurrent checkout: %w", findErr)
			}
			return o.replay(ctx, existing, hash)
		}
		return nil, err
	}

	o.logger.Info("checkout started",
		"temp_order_id", attempt.TempOrderID,
		"method", attempt.PaymentMethod,
		"total", attempt.TotalAmount,
		"store_credit_requested", attempt.StoreCreditRequested,
	)

	return o.run(ctx, attempt)
}

// Resume settles a gateway checkout with the outcome of the external payment step.
// Only one callback settles an attempt: while a success callback is
// verifying, every other callback gets CHECKOUT_IN_PROGRESS.
func (o *Orchestrator) Resume(ctx context.Context, tempOrderID string, outcome domain.GatewayOutcome) (*domain.OrderResult, error) {
	a, err := o.attempts.FindByTempOrderID(ctx, tempOrderID)
	if err != nil {
		return nil, err
	}

	switch a.State {
	case domain.StateConfirmed:
		return a.Result(), nil
	case domain.StateFailed:
		return nil, a.Failure()
	case domain.StateGatewayPending:
	case domain.StateVerifying:
		o.logger.Warn("gateway callback while payment is verifying",
			"temp_order_id", a.TempOrderID,
			"outcome", outcome.Kind,
		)
		return nil, domain.NewCheckoutInProgressError(a.TempOrderID)
	default:
		return nil, domain.NewInvalidTransitionError(a.State, domain.StateVerifying)
	}

	switch outcome.Kind {
	case domain.OutcomeCancelled:
		return nil, o.abandonGatewayPayment(ctx, a, "cancelled", domain.NewPaymentCancelledError())
	case domain.OutcomeFailed:
		return nil, o.abandonGatewayPayment(ctx, a, outcome.Reason, domain.NewPaymentFailedError(outcome.Reason))
	case domain.OutcomeSuccess:
		return o.settleGatewayPayment(ctx, a, outcome)
	default:
		return nil, fmt.Errorf("unknown gateway outcome %q", outcome.Kind)
	}
}

// Recover continues an attempt that stopped before a terminal outcome,
// typically after a crash. Every step it repeats is idempotent on the
// attempt's tempOrderId. Failed attempts are only revisited to return
// reserved credit that was never compensated.
func (o *Orchestrator) Recover(ctx context.Context, tempOrderID string) (*domain.CheckoutResult, error) {
	a, err := o.attempts.FindByTempOrderID(ctx, tempOrderID)
	if err != nil {
		return nil, err
	}

	switch a.State {
	case domain.StateInit, domain.StateCreditReserved:
		o.logger.Warn("recovering interrupted checkout", "temp_order_id", a.TempOrderID, "state", a.State)
		return o.run(ctx, a)
	case domain.StateVerifying:
		o.logger.Warn("recovering interrupted verification", "temp_order_id", a.TempOrderID)
		return o.recoverVerification(ctx, a)
	case domain.StateFailed:
		failure := a.Failure()
		if !a.NeedsCompensation() || domain.IsErrorCode(failure, domain.ErrCodeReconciliationNeeded) {
			return nil, failure
		}
		o.logger.Warn("returning credit of failed checkout", "temp_order_id", a.TempOrderID, "amount", a.CreditApplied)
		return nil, o.settleFailure(ctx, a, failure.Err)
	default:
		return nil, domain.NewInvalidTransitionError(a.State, domain.StateConfirmed)
	}
}

// Status returns the stored attempt for tempOrderID.
func (o *Orchestrator) Status(ctx context.Context, tempOrderID string) (*domain.CheckoutAttempt, error) {
	return o.attempts.FindByTempOrderID(ctx, tempOrderID)
}

func (o *Orchestrator) validate(req domain.CheckoutRequest) error {
	if err := req.Cart.Validate(); err != nil {
		return err
	}
	if !req.Selection.Method.Valid() {
		return domain.NewInvalidPaymentMethodError(req.Selection.Method)
	}
	if req.Selection.Method == domain.MethodCOD && !req.Cart.HasPhysicalItem() {
		return domain.NewCODNotAllowedError()
	}
	if req.Selection.CreditLimit != nil && *req.Selection.CreditLimit < 0 {
		return domain.NewInvalidAmountError(*req.Selection.CreditLimit)
	}
	return nil
}

// replay answers a request whose tempOrderId already has an attempt.
func (o *Orchestrator) replay(ctx context.Context, a *domain.CheckoutAttempt, hash string) (*domain.CheckoutResult, error) {
	if a.RequestHash != hash {
		return nil, domain.NewIdempotencyMismatchError()
	}

	switch a.State {
	case domain.StateConfirmed:
		return &domain.CheckoutResult{Order: a.Result()}, nil
	case domain.StateFailed:
		return nil, a.Failure()
	case domain.StateGatewayPending:
		return &domain.CheckoutResult{Pending: a.Pending()}, nil
	case domain.StateInit, domain.StateCreditReserved:
		if time.Since(a.UpdatedAt) < o.replayAfter {
			return nil, domain.NewCheckoutInProgressError(a.TempOrderID)
		}
		o.logger.Warn("replaying interrupted checkout", "temp_order_id", a.TempOrderID, "state", a.State)
		return o.run(ctx, a)
	default:
		return nil, domain.NewCheckoutInProgressError(a.TempOrderID)
	}
}

// run advances an attempt from INIT or CREDIT_RESERVED.
func (o *Orchestrator) run(ctx context.Context, a *domain.CheckoutAttempt) (*domain.CheckoutResult, error) {
	if a.State == domain.StateInit && !a.Allocated {
		if err := o.allocate(ctx, a); err != nil {
			return nil, o.fail(ctx, a, err)
		}
		if err := o.save(ctx, a, domain.StateInit); err != nil {
			return nil, err
		}
	}

	if a.State == domain.StateInit && a.CreditApplied > 0 {
		if err := o.reserveCredit(ctx, a); err != nil {
			return nil, err
		}
	}

	switch a.PaymentMethod {
	case domain.MethodStoreCredit:
		return o.confirm(ctx, a, domain.CreditPaymentID(a.TempOrderID))
	case domain.MethodCOD:
		return o.confirm(ctx, a, domain.CODPendingPaymentID)
	case domain.MethodGateway:
		return o.openGatewaySession(ctx, a)
	default:
		return nil, o.fail(ctx, a, domain.NewInvalidPaymentMethodError(a.PaymentMethod))
	}
}

func (o *Orchestrator) save(ctx context.Context, a *domain.CheckoutAttempt, from domain.CheckoutState) error {
	a.UpdatedAt = time.Now().UTC()
	if err := o.attempts.Update(ctx, a, from); err != nil {
		o.logger.Error("failed to persist checkout state",
			"temp_order_id", a.TempOrderID,
			"from", from,
			"to", a.State,
			"error", err,
		)
		return err
	}
	return nil
}

// transition moves a to target and persists it, guarding against a
// concurrent writer that already moved the attempt on.
func (o *Orchestrator) transition(ctx context.Context, a *domain.CheckoutAttempt, target domain.CheckoutState) error {
	from := a.State
	if err := a.TransitionTo(target); err != nil {
		return err
	}
	return o.save(ctx, a, from)
}
