package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/DanielPopoola/ficmart-checkout/internal/auth"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
)

const maxBodyBytes = 1 << 20

// HandleCheckout starts (or replays) a checkout.
// @Summary      Start a checkout
// @Description  Allocates store credit and pays the remainder by gateway or cash on delivery. Gateway checkouts return 202 with the gateway order to open in the payment widget.
// @Tags         checkout
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header    string           true  "Client-generated tempOrderId"
// @Param        request          body      CheckoutRequest  true  "Cart and payment selection"
// @Success      201              {object}  APIResponse      "Order confirmed"
// @Success      202              {object}  APIResponse      "Awaiting gateway payment"
// @Failure      400              {object}  APIResponse      "Invalid cart or payment selection"
// @Failure      402              {object}  APIResponse      "Insufficient store credit or payment failed"
// @Failure      503              {object}  APIResponse      "Payment gateway unavailable"
// @Router       /checkout [post]
func (h *CheckoutHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	tempOrderID := r.Header.Get("Idempotency-Key")
	if tempOrderID == "" {
		respondWithError(w, validationError("Idempotency-Key header is required"))
		return
	}

	var req CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, validationError(err.Error()))
		return
	}

	checkoutReq, err := req.toDomain(tempOrderID, auth.UserIDFromContext(r.Context()))
	if err != nil {
		respondWithError(w, err)
		return
	}

	result, err := h.checkout.Begin(r.Context(), checkoutReq)
	if err != nil {
		h.logger.Info("checkout rejected", "temp_order_id", tempOrderID, "code", domain.ErrorCode(err), "error", err)
		respondWithError(w, err)
		return
	}

	if result.Pending != nil {
		respondWithJSON(w, http.StatusAccepted, newPendingResponse(result.Pending, h.gatewayKeyID))
		return
	}
	respondWithJSON(w, http.StatusCreated, newOrderResponse(result.Order))
}

// HandleGatewayCallback settles a gateway checkout with the outcome reported by
// the payment widget.
// @Summary      Settle a gateway checkout
// @Tags         checkout
// @Accept       json
// @Produce      json
// @Param        tempOrderId  path      string                  true  "Checkout id"
// @Param        request      body      GatewayCallbackRequest  true  "Gateway outcome"
// @Success      200          {object}  APIResponse             "Order confirmed"
// @Failure      402          {object}  APIResponse             "Payment failed, cancelled or not verified"
// @Failure      404          {object}  APIResponse             "Unknown checkout"
// @Router       /checkout/{tempOrderId}/gateway-callback [post]
func (h *CheckoutHandler) HandleGatewayCallback(w http.ResponseWriter, r *http.Request) {
	tempOrderID := r.PathValue("tempOrderId")

	var req GatewayCallbackRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, validationError(err.Error()))
		return
	}
	outcome, err := req.toOutcome()
	if err != nil {
		respondWithError(w, err)
		return
	}

	if _, err := h.ownedAttempt(r, tempOrderID); err != nil {
		respondWithError(w, err)
		return
	}

	order, err := h.checkout.Resume(r.Context(), tempOrderID, outcome)
	if err != nil {
		h.logger.Info("gateway checkout not confirmed", "temp_order_id", tempOrderID, "code", domain.ErrorCode(err), "error", err)
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newOrderResponse(order))
}

// HandleCheckoutStatus reports where a checkout attempt stands.
// @Summary      Get checkout status
// @Tags         checkout
// @Produce      json
// @Param        tempOrderId  path      string       true  "Checkout id"
// @Success      200          {object}  APIResponse  "Checkout attempt"
// @Failure      404          {object}  APIResponse  "Unknown checkout"
// @Router       /checkout/{tempOrderId} [get]
func (h *CheckoutHandler) HandleCheckoutStatus(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.ownedAttempt(r, r.PathValue("tempOrderId"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newStatusResponse(attempt))
}

// ownedAttempt loads an attempt the caller may see. Another customer's attempt
// is reported as not found; guest attempts are addressable by id alone.
func (h *CheckoutHandler) ownedAttempt(r *http.Request, tempOrderID string) (*domain.CheckoutAttempt, error) {
	attempt, err := h.checkout.Status(r.Context(), tempOrderID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID == nil {
		return attempt, nil
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if ok && (claims.IsAdmin() || claims.UserID() == *attempt.UserID) {
		return attempt, nil
	}
	return nil, domain.NewCheckoutNotFoundError(tempOrderID)
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return validationError("could not read request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return validationError("request body is not valid JSON: " + err.Error())
	}
	return nil
}
