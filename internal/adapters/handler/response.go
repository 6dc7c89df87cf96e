package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
)

// HTTP-only error codes.
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeTimeout      = "REQUEST_TIMEOUT"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	TempOrderID string `json:"temp_order_id,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success: status >= 200 && status < 300,
	}

	if response.Success {
		response.Data = data
	} else {
		if apiErr, ok := data.(*APIError); ok {
			response.Error = apiErr
		}
	}

	_ = json.NewEncoder(w).Encode(response)
}

// WriteError renders err in the response envelope. Only the domain message is
// exposed; wrapped causes stay in the logs.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *domain.DomainError
	apiErr := &APIError{Code: ErrCodeInternal, Message: "internal server error"}
	status := http.StatusInternalServerError

	if errors.As(err, &domainErr) {
		apiErr.Code = domainErr.Code
		apiErr.Message = domainErr.Message
		status = statusFor(domainErr.Code)
	}

	var failure *domain.CheckoutFailure
	if errors.As(err, &failure) {
		apiErr.TempOrderID = failure.TempOrderID
	}

	if status == http.StatusAccepted {
		// Accepted is a success status; keep the envelope marked as not done.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(APIResponse{Success: false, Error: apiErr})
		return
	}

	respondWithJSON(w, status, apiErr)
}

func respondWithError(w http.ResponseWriter, err error) {
	WriteError(w, err)
}

func statusFor(code string) int {
	switch code {
	case domain.ErrCodeEmptyCart, domain.ErrCodeInvalidAmount, domain.ErrCodeMissingRequiredField,
		domain.ErrCodeInvalidPaymentMethod, domain.ErrCodeCODNotAllowed, domain.ErrCodeIdempotencyMismatch,
		domain.ErrCodeInvalidCreditType, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case domain.ErrCodeInsufficientCredit, domain.ErrCodeInsufficientFunds, domain.ErrCodePaymentFailed,
		domain.ErrCodePaymentCancelled, domain.ErrCodePaymentVerification:
		return http.StatusPaymentRequired
	case domain.ErrCodeCheckoutNotFound, domain.ErrCodeGatewayPaymentMissing:
		return http.StatusNotFound
	case domain.ErrCodeInvalidTransition, domain.ErrCodeGatewayOrderMismatch:
		return http.StatusConflict
	case domain.ErrCodeCheckoutInProgress:
		return http.StatusAccepted
	case domain.ErrCodeGatewayUnavailable, domain.ErrCodeFallbackUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
