package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/go-playground/validator"
)

type CheckoutService interface {
	Begin(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error)
	Resume(ctx context.Context, tempOrderID string, outcome domain.GatewayOutcome) (*domain.OrderResult, error)
	Status(ctx context.Context, tempOrderID string) (*domain.CheckoutAttempt, error)
}

type CreditService interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	Credit(ctx context.Context, entry domain.LedgerEntry) (*domain.CreditTransaction, error)
	History(ctx context.Context, userID string, limit, offset int) ([]*domain.CreditTransaction, error)
}

type CheckoutHandler struct {
	checkout     CheckoutService
	credits      CreditService
	validate     *validator.Validate
	gatewayKeyID string
	currency     string
	logger       *slog.Logger
}

// NewCheckoutHandler builds the storefront API. gatewayKeyID is the public key
// handed to the client for the gateway widget; currency labels balances.
func NewCheckoutHandler(
	checkout CheckoutService,
	credits CreditService,
	gatewayKeyID string,
	currency string,
	logger *slog.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:     checkout,
		credits:      credits,
		validate:     validator.New(),
		gatewayKeyID: gatewayKeyID,
		currency:     currency,
		logger:       logger,
	}
}

func (h *CheckoutHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /checkout", h.HandleCheckout)
	mux.HandleFunc("GET /checkout/{tempOrderId}", h.HandleCheckoutStatus)
	mux.HandleFunc("POST /checkout/{tempOrderId}/gateway-callback", h.HandleGatewayCallback)
	mux.HandleFunc("GET /credits/balance", h.HandleBalance)
	mux.HandleFunc("GET /credits/transactions", h.HandleTransactions)
	mux.HandleFunc("POST /admin/credits", h.HandleGrantCredit)
	mux.HandleFunc("GET /openapi.yaml", HandleOpenAPISpec)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
