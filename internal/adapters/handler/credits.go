package handler

import (
	"net/http"
	"strconv"

	"github.com/DanielPopoola/ficmart-checkout/internal/auth"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// HandleBalance returns the caller's store credit balance.
// @Summary      Store credit balance
// @Tags         credits
// @Produce      json
// @Security     bearerAuth
// @Success      200  {object}  APIResponse  "Balance"
// @Failure      401  {object}  APIResponse  "Missing or invalid token"
// @Router       /credits/balance [get]
func (h *CheckoutHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	claims, err := requireClaims(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	balance, err := h.credits.GetBalance(r.Context(), claims.UserID())
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, BalanceResponse{
		UserID:   claims.UserID(),
		Balance:  formatMoney(balance),
		Currency: h.currency,
	})
}

// HandleTransactions pages through the caller's ledger, newest first.
// @Summary      Store credit history
// @Tags         credits
// @Produce      json
// @Security     bearerAuth
// @Param        limit   query     int          false  "Page size (1-100)"
// @Param        offset  query     int          false  "Entries to skip"
// @Success      200     {object}  APIResponse  "Transactions"
// @Failure      401     {object}  APIResponse  "Missing or invalid token"
// @Router       /credits/transactions [get]
func (h *CheckoutHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	claims, err := requireClaims(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	txs, err := h.credits.History(r.Context(), claims.UserID(), limit, offset)
	if err != nil {
		respondWithError(w, err)
		return
	}

	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, newTransactionResponse(tx))
	}
	respondWithJSON(w, http.StatusOK, out)
}

// HandleGrantCredit issues store credit, a refund or a return to a customer.
// @Summary      Grant store credit
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     bearerAuth
// @Param        request  body      CreditGrantRequest  true  "Credit to grant"
// @Success      201      {object}  APIResponse         "Ledger entry"
// @Failure      403      {object}  APIResponse         "Caller is not an administrator"
// @Router       /admin/credits [post]
func (h *CheckoutHandler) HandleGrantCredit(w http.ResponseWriter, r *http.Request) {
	claims, err := requireClaims(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if !claims.IsAdmin() {
		respondWithError(w, &domain.DomainError{Code: ErrCodeForbidden, Message: "administrator role required"})
		return
	}

	var req CreditGrantRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, validationError(err.Error()))
		return
	}
	amount, err := parseMoney("amount", req.Amount)
	if err != nil {
		respondWithError(w, err)
		return
	}

	entry := domain.LedgerEntry{
		UserID:      req.UserID,
		Amount:      amount,
		Type:        domain.TransactionType(req.Type),
		Description: req.Description,
	}
	if req.IdempotencyKey != "" {
		entry.IdempotencyKey = &req.IdempotencyKey
	}

	tx, err := h.credits.Credit(r.Context(), entry)
	if err != nil {
		respondWithError(w, err)
		return
	}

	h.logger.Info("store credit granted",
		"user_id", req.UserID,
		"amount", amount,
		"type", req.Type,
		"granted_by", claims.UserID(),
	)
	respondWithJSON(w, http.StatusCreated, newTransactionResponse(tx))
}

func requireClaims(r *http.Request) (*auth.Claims, error) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return nil, &domain.DomainError{Code: ErrCodeUnauthorized, Message: "authentication required"}
	}
	return claims, nil
}

func pagination(r *http.Request) (limit, offset int, err error) {
	limit, offset = defaultPageSize, 0
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxPageSize {
			return 0, 0, validationError("limit must be between 1 and 100")
		}
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, validationError("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
