package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CheckoutState is the state of a single checkout attempt.
type CheckoutState string

const (
	StateInit           CheckoutState = "INIT"
	StateCreditReserved CheckoutState = "CREDIT_RESERVED"
	StateGatewayPending CheckoutState = "GATEWAY_PENDING"
	StateVerifying      CheckoutState = "VERIFYING"
	StateConfirmed      CheckoutState = "CONFIRMED"
	StateFailed         CheckoutState = "FAILED"
)

// PaymentSelection is the buyer's choice of payment method. CreditLimit
// optionally caps how much store credit may be applied.
type PaymentSelection struct {
	Method      PaymentMethod `json:"method"`
	CreditLimit *int64        `json:"credit_limit,omitempty"`
}

// CheckoutRequest starts a checkout attempt. TempOrderID is generated when empty.
type CheckoutRequest struct {
	TempOrderID          string
	Cart                 Cart
	Selection            PaymentSelection
	StoreCreditRequested bool
}

// OrderResult is returned for a confirmed checkout.
type OrderResult struct {
	OrderID       uuid.UUID
	TempOrderID   string
	PaymentMethod PaymentMethod
	PaymentID     string
	CreditApplied int64
	TotalAmount   int64
	Currency      string
	Status        OrderStatus
}

// PendingPayment is returned while the buyer completes the external gateway step.
type PendingPayment struct {
	TempOrderID    string
	GatewayOrderID string
	Amount         int64
	Currency       string
	CreditApplied  int64
}

// CheckoutResult holds exactly one of Order or Pending.
type CheckoutResult struct {
	Order   *OrderResult
	Pending *PendingPayment
}

// CheckoutAttempt is the persisted progress of one checkout, keyed by TempOrderID.
type CheckoutAttempt struct {
	TempOrderID          string
	UserID               *string
	RequestHash          string
	Cart                 Cart
	Selection            PaymentSelection
	StoreCreditRequested bool
	State                CheckoutState
	// PaymentMethod starts as the selected method and holds the resolved
	// method once Allocated is set.
	PaymentMethod    PaymentMethod
	Allocated        bool
	TotalAmount      int64
	Currency         string
	CreditApplied    int64
	CreditDebited    bool
	GatewayAmount    int64
	GatewayOrderID   *string
	GatewayPaymentID *string
	OrderID          *uuid.UUID
	PaymentID        *string
	FailureCode      *string
	FailureReason    *string
	Compensated      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CanTransitionTo validates whether an attempt can move from its current state to target.
//
// Valid transitions are:
//   - Init → CreditReserved, GatewayPending, Confirmed, Failed
//   - CreditReserved → GatewayPending, Confirmed, Failed
//   - GatewayPending → Verifying, Failed
//   - Verifying → Confirmed, Failed, GatewayPending (verification interrupted)
func (a *CheckoutAttempt) CanTransitionTo(target CheckoutState) error {
	switch a.State {
	case StateInit:
		if target == StateCreditReserved || target == StateGatewayPending || target == StateConfirmed || target == StateFailed {
			return nil
		}
	case StateCreditReserved:
		if target == StateGatewayPending || target == StateConfirmed || target == StateFailed {
			return nil
		}
	case StateGatewayPending:
		if target == StateVerifying || target == StateFailed {
			return nil
		}
	case StateVerifying:
		if target == StateConfirmed || target == StateFailed || target == StateGatewayPending {
			return nil
		}
	}
	return NewInvalidTransitionError(a.State, target)
}

// TransitionTo moves the attempt to target if the transition is allowed.
func (a *CheckoutAttempt) TransitionTo(target CheckoutState) error {
	if err := a.CanTransitionTo(target); err != nil {
		return err
	}
	a.State = target
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (a *CheckoutAttempt) IsTerminal() bool {
	return a.State == StateConfirmed || a.State == StateFailed
}

// NeedsCompensation reports whether reserved credit is still outstanding.
func (a *CheckoutAttempt) NeedsCompensation() bool {
	return a.CreditDebited && a.CreditApplied > 0 && !a.Compensated
}

// ChargedOutsideCredit is the part of the total settled by gateway or on delivery.
func (a *CheckoutAttempt) ChargedOutsideCredit() int64 {
	return a.TotalAmount - a.CreditApplied
}

// Fail records a failure on the attempt. The state transition is the caller's job.
func (a *CheckoutAttempt) Fail(err error) {
	code := ErrorCode(err)
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	reason := err.Error()
	a.FailureCode = &code
	a.FailureReason = &reason
}

// Result returns the caller-visible result of a confirmed attempt.
func (a *CheckoutAttempt) Result() *OrderResult {
	if a.State != StateConfirmed || a.OrderID == nil {
		return nil
	}
	status := OrderCompleted
	if a.PaymentMethod == MethodCOD {
		status = OrderPending
	}
	var paymentID string
	if a.PaymentID != nil {
		paymentID = *a.PaymentID
	}
	return &OrderResult{
		OrderID:       *a.OrderID,
		TempOrderID:   a.TempOrderID,
		PaymentMethod: a.PaymentMethod,
		PaymentID:     paymentID,
		CreditApplied: a.CreditApplied,
		TotalAmount:   a.TotalAmount,
		Currency:      a.Currency,
		Status:        status,
	}
}

// Pending returns the gateway session of an attempt awaiting the buyer.
func (a *CheckoutAttempt) Pending() *PendingPayment {
	if a.State != StateGatewayPending || a.GatewayOrderID == nil {
		return nil
	}
	return &PendingPayment{
		TempOrderID:    a.TempOrderID,
		GatewayOrderID: *a.GatewayOrderID,
		Amount:         a.GatewayAmount,
		Currency:       a.Currency,
		CreditApplied:  a.CreditApplied,
	}
}

// Failure rebuilds the typed failure of a failed attempt.
func (a *CheckoutAttempt) Failure() *CheckoutFailure {
	if a.State != StateFailed {
		return nil
	}
	domainErr := &DomainError{Code: "INTERNAL_ERROR", Message: "checkout failed"}
	if a.FailureCode != nil {
		domainErr.Code = *a.FailureCode
	}
	if a.FailureReason != nil {
		domainErr.Message = *a.FailureReason
	}
	return &CheckoutFailure{
		TempOrderID:     a.TempOrderID,
		AttemptedAmount: a.TotalAmount,
		Currency:        a.Currency,
		Err:             domainErr,
	}
}

// ReconciliationKind names why an attempt needs out-of-band resolution.
type ReconciliationKind string

const (
	ReconCompensationFailed  ReconciliationKind = "compensation_failed"
	ReconVerificationFailed  ReconciliationKind = "verification_failed"
	ReconChargedWithoutOrder ReconciliationKind = "charged_without_order"
	ReconOrderIncomplete     ReconciliationKind = "order_incomplete"
	ReconSettlementConflict  ReconciliationKind = "settlement_conflict"
)

// ReconciliationItem records money that moved without a matching order or refund.
type ReconciliationItem struct {
	ID          uuid.UUID
	TempOrderID string
	UserID      *string
	Kind        ReconciliationKind
	Amount      int64
	Currency    string
	Detail      string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// Checkout event types published through the outbox.
const (
	EventOrderConfirmed         = "checkout.order_confirmed"
	EventCheckoutFailed         = "checkout.failed"
	EventReconciliationRequired = "checkout.reconciliation_required"
)

// CheckoutEvent is the payload of a checkout outbox event.
type CheckoutEvent struct {
	EventID       uuid.UUID     `json:"event_id"`
	Type          string        `json:"type"`
	TempOrderID   string        `json:"temp_order_id"`
	OrderID       *uuid.UUID    `json:"order_id,omitempty"`
	UserID        *string       `json:"user_id,omitempty"`
	PaymentMethod PaymentMethod `json:"payment_method,omitempty"`
	TotalAmount   int64         `json:"total_amount"`
	CreditApplied int64         `json:"credit_applied"`
	Currency      string        `json:"currency"`
	FailureCode   string        `json:"failure_code,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// OutboxRecord is a stored event awaiting relay.
type OutboxRecord struct {
	ID        int64
	EventID   uuid.UUID
	Topic     string
	Key       string
	Payload   json.RawMessage
	CreatedAt time.Time
	SentAt    *time.Time
}
