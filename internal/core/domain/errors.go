package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Checkout outcome errors
const (
	ErrCodeEmptyCart             = "EMPTY_CART"
	ErrCodeInsufficientCredit    = "INSUFFICIENT_CREDIT"
	ErrCodePaymentFailed         = "PAYMENT_FAILED"
	ErrCodePaymentCancelled      = "PAYMENT_CANCELLED"
	ErrCodePaymentVerification   = "PAYMENT_VERIFICATION_FAILED"
	ErrCodeGatewayUnavailable    = "GATEWAY_UNAVAILABLE"
	ErrCodeGatewayOrderMismatch  = "GATEWAY_ORDER_MISMATCH"
	ErrCodeReconciliationNeeded  = "RECONCILIATION_REQUIRED"
	ErrCodeCODNotAllowed         = "COD_NOT_ALLOWED"
	ErrCodeCheckoutNotFound      = "CHECKOUT_NOT_FOUND"
	ErrCodeCheckoutInProgress    = "CHECKOUT_IN_PROGRESS"
	ErrCodeIdempotencyMismatch   = "IDEMPOTENCY_MISMATCH"
	ErrCodeInvalidTransition     = "INVALID_TRANSITION"
	ErrCodeInvalidAmount         = "INVALID_AMOUNT"
	ErrCodeMissingRequiredField  = "MISSING_REQUIRED_FIELD"
	ErrCodeInvalidPaymentMethod  = "INVALID_PAYMENT_METHOD"
	ErrCodeGatewayPaymentMissing = "GATEWAY_PAYMENT_NOT_FOUND"
)

// Ledger errors
const (
	ErrCodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	ErrCodeInvalidCreditType  = "INVALID_CREDIT_TYPE"
	ErrCodeLedgerInconsistent = "LEDGER_INCONSISTENT"
)

// Order writer errors
const (
	ErrCodeAuthorizationDenied = "AUTHORIZATION_DENIED"
	ErrCodeFallbackUnavailable = "FALLBACK_UNAVAILABLE"
	ErrCodeOrderWriteFailed    = "ORDER_WRITE_FAILED"
	ErrCodeOrderIncomplete     = "ORDER_INCOMPLETE"
)

// IsErrorCode reports whether err is a DomainError carrying code.
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ErrorCode returns the code of the first DomainError in err's chain.
func ErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

func NewEmptyCartError() *DomainError {
	return &DomainError{
		Code:    ErrCodeEmptyCart,
		Message: "cart has no items",
	}
}

func NewInsufficientCreditError(requested, available int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInsufficientCredit,
		Message: fmt.Sprintf("store credit balance %d does not cover %d", available, requested),
	}
}

func NewPaymentFailedError(reason string) *DomainError {
	if reason == "" {
		reason = "payment was declined"
	}
	return &DomainError{
		Code:    ErrCodePaymentFailed,
		Message: reason,
	}
}

func NewPaymentCancelledError() *DomainError {
	return &DomainError{
		Code:    ErrCodePaymentCancelled,
		Message: "payment was cancelled",
	}
}

func NewPaymentVerificationError(gatewayOrderID string) *DomainError {
	return &DomainError{
		Code:    ErrCodePaymentVerification,
		Message: fmt.Sprintf("payment signature for gateway order %s is invalid", gatewayOrderID),
	}
}

func NewGatewayUnavailableError(err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeGatewayUnavailable,
		Message: "payment gateway unavailable",
		Err:     err,
	}
}

func NewGatewayOrderMismatchError(expected, got string) *DomainError {
	return &DomainError{
		Code:    ErrCodeGatewayOrderMismatch,
		Message: fmt.Sprintf("callback gateway order %s does not match %s", got, expected),
	}
}

func NewGatewayPaymentNotFoundError(key string) *DomainError {
	return &DomainError{
		Code:    ErrCodeGatewayPaymentMissing,
		Message: fmt.Sprintf("gateway payment %s not found", key),
	}
}

func NewReconciliationError(tempOrderID string, amount int64, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeReconciliationNeeded,
		Message: fmt.Sprintf("checkout %s requires manual reconciliation of %d", tempOrderID, amount),
		Err:     err,
	}
}

func NewCODNotAllowedError() *DomainError {
	return &DomainError{
		Code:    ErrCodeCODNotAllowed,
		Message: "cash on delivery requires at least one physical item",
	}
}

func NewCheckoutNotFoundError(tempOrderID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeCheckoutNotFound,
		Message: fmt.Sprintf("checkout %s not found", tempOrderID),
	}
}

func NewCheckoutInProgressError(tempOrderID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeCheckoutInProgress,
		Message: fmt.Sprintf("checkout %s is still being processed", tempOrderID),
	}
}

func NewIdempotencyMismatchError() *DomainError {
	return &DomainError{
		Code:    ErrCodeIdempotencyMismatch,
		Message: "checkout id reused with a different cart",
	}
}

func NewInvalidTransitionError(from, to CheckoutState) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func NewInvalidAmountError(amount int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("invalid amount: %d", amount),
	}
}

func NewAmountOverflowError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("amount out of range: %s", field),
	}
}

func NewMissingRequiredFieldError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingRequiredField,
		Message: fmt.Sprintf("missing required field: %s", field),
	}
}

func NewInvalidPaymentMethodError(method PaymentMethod) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidPaymentMethod,
		Message: fmt.Sprintf("unsupported payment method %q", method),
	}
}

func NewInsufficientFundsError(userID string, balance, amount int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInsufficientFunds,
		Message: fmt.Sprintf("balance %d of user %s is below %d", balance, userID, amount),
	}
}

func NewInvalidCreditTypeError(t TransactionType) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidCreditType,
		Message: fmt.Sprintf("transaction type %q cannot increase a balance", t),
	}
}

func NewLedgerInconsistentError(userID string, balance, logSum int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeLedgerInconsistent,
		Message: fmt.Sprintf("balance %d of user %s differs from log sum %d", balance, userID, logSum),
	}
}

func NewAuthorizationDeniedError(err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeAuthorizationDenied,
		Message: "order write rejected by authorization policy",
		Err:     err,
	}
}

func NewFallbackUnavailableError() *DomainError {
	return &DomainError{
		Code:    ErrCodeFallbackUnavailable,
		Message: "elevated order write path is not configured",
	}
}

func NewOrderWriteError(err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeOrderWriteFailed,
		Message: "failed to write order",
		Err:     err,
	}
}

func NewOrderIncompleteError(orderID string, written, expected int) *DomainError {
	return &DomainError{
		Code:    ErrCodeOrderIncomplete,
		Message: fmt.Sprintf("order %s stored %d of %d items", orderID, written, expected),
	}
}

// CheckoutFailure is returned for every failed checkout attempt. It carries
// what the caller needs to render a failure view.
type CheckoutFailure struct {
	TempOrderID     string
	AttemptedAmount int64
	Currency        string
	Err             error
}

func (f *CheckoutFailure) Error() string {
	return fmt.Sprintf("checkout %s failed: %v", f.TempOrderID, f.Err)
}

func (f *CheckoutFailure) Unwrap() error {
	return f.Err
}

const ErrCodeDuplicateKey = "DUPLICATE_KEY"

func NewDuplicateKeyError(key string) *DomainError {
	return &DomainError{
		Code:    ErrCodeDuplicateKey,
		Message: fmt.Sprintf("record with key %s already exists", key),
	}
}
