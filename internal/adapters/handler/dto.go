package handler

import (
	"math"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// minorUnitExponent is the number of minor-unit digits of supported currencies.
const minorUnitExponent = 2

var maxMinorAmount = decimal.NewFromInt(math.MaxInt64)

// parseMoney converts a decimal amount in major units to minor units. Amounts
// with more precision than the currency allows are rejected, never rounded.
func parseMoney(field, s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, validationError(field + " is not a decimal amount")
	}
	minor := d.Shift(minorUnitExponent)
	if !minor.IsInteger() || minor.IsNegative() {
		return 0, validationError(field + " must be a non-negative amount with at most 2 decimals")
	}
	if minor.GreaterThan(maxMinorAmount) {
		return 0, validationError(field + " is out of range")
	}
	return minor.IntPart(), nil
}

func formatMoney(minor int64) string {
	return decimal.New(minor, -minorUnitExponent).StringFixed(minorUnitExponent)
}

func validationError(msg string) *domain.DomainError {
	return &domain.DomainError{Code: ErrCodeValidation, Message: msg}
}

type ContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

type CartItemRequest struct {
	ProductID   string            `json:"product_id" validate:"required" example:"sku-123"`
	Title       string            `json:"title" example:"Ceramic mug"`
	Quantity    int               `json:"quantity" validate:"required,gt=0" example:"2"`
	UnitPrice   string            `json:"unit_price" validate:"required" example:"249.50"`
	ProductType string            `json:"product_type" validate:"required,oneof=physical digital service"`
	Options     map[string]string `json:"options,omitempty"`
}

type CheckoutRequest struct {
	Items           []CartItemRequest `json:"items" validate:"required,min=1,dive"`
	Currency        string            `json:"currency" validate:"required,len=3"`
	Contact         ContactRequest    `json:"contact"`
	ShippingAddress string            `json:"shipping_address"`
	BillingAddress  string            `json:"billing_address"`
	Notes           string            `json:"notes,omitempty"`
	PaymentMethod   string            `json:"payment_method" validate:"required,oneof=gateway cod store_credit"`
	UseStoreCredit  bool              `json:"use_store_credit"`
	CreditLimit     *string           `json:"credit_limit,omitempty"`
}

// toDomain builds the domain request. userID is taken from the verified token,
// never from the body.
func (r CheckoutRequest) toDomain(tempOrderID string, userID *string) (domain.CheckoutRequest, error) {
	items := make([]domain.CartItem, 0, len(r.Items))
	for _, item := range r.Items {
		price, err := parseMoney("unit_price", item.UnitPrice)
		if err != nil {
			return domain.CheckoutRequest{}, err
		}
		items = append(items, domain.CartItem{
			ProductID:   item.ProductID,
			Title:       item.Title,
			Quantity:    item.Quantity,
			UnitPrice:   price,
			ProductType: domain.ProductType(item.ProductType),
			Options:     item.Options,
		})
	}

	selection := domain.PaymentSelection{Method: domain.PaymentMethod(r.PaymentMethod)}
	if r.CreditLimit != nil {
		limit, err := parseMoney("credit_limit", *r.CreditLimit)
		if err != nil {
			return domain.CheckoutRequest{}, err
		}
		selection.CreditLimit = &limit
	}

	return domain.CheckoutRequest{
		TempOrderID: tempOrderID,
		Cart: domain.Cart{
			UserID:          userID,
			Contact:         domain.Contact(r.Contact),
			Items:           items,
			Currency:        r.Currency,
			ShippingAddress: r.ShippingAddress,
			BillingAddress:  r.BillingAddress,
			Notes:           r.Notes,
		},
		Selection:            selection,
		StoreCreditRequested: r.UseStoreCredit,
	}, nil
}

type OrderResponse struct {
	OrderID       uuid.UUID `json:"order_id"`
	TempOrderID   string    `json:"temp_order_id"`
	PaymentMethod string    `json:"payment_method"`
	PaymentID     string    `json:"payment_id"`
	CreditApplied string    `json:"credit_applied"`
	TotalAmount   string    `json:"total_amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
}

func newOrderResponse(o *domain.OrderResult) OrderResponse {
	return OrderResponse{
		OrderID:       o.OrderID,
		TempOrderID:   o.TempOrderID,
		PaymentMethod: string(o.PaymentMethod),
		PaymentID:     o.PaymentID,
		CreditApplied: formatMoney(o.CreditApplied),
		TotalAmount:   formatMoney(o.TotalAmount),
		Currency:      o.Currency,
		Status:        string(o.Status),
	}
}

// PendingPaymentResponse carries what the storefront needs to open the
// gateway's checkout widget.
type PendingPaymentResponse struct {
	TempOrderID    string `json:"temp_order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	GatewayKeyID   string `json:"gateway_key_id"`
	Amount         string `json:"amount"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	CreditApplied  string `json:"credit_applied"`
}

func newPendingResponse(p *domain.PendingPayment, keyID string) PendingPaymentResponse {
	return PendingPaymentResponse{
		TempOrderID:    p.TempOrderID,
		GatewayOrderID: p.GatewayOrderID,
		GatewayKeyID:   keyID,
		Amount:         formatMoney(p.Amount),
		AmountMinor:    p.Amount,
		Currency:       p.Currency,
		CreditApplied:  formatMoney(p.CreditApplied),
	}
}

type GatewayCallbackRequest struct {
	Status           string `json:"status" validate:"required,oneof=success failed cancelled"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
	Reason           string `json:"reason"`
}

func (r GatewayCallbackRequest) toOutcome() (domain.GatewayOutcome, error) {
	switch r.Status {
	case "success":
		if r.GatewayOrderID == "" || r.GatewayPaymentID == "" || r.Signature == "" {
			return domain.GatewayOutcome{}, validationError("gateway_order_id, gateway_payment_id and signature are required for a successful payment")
		}
		return domain.SuccessOutcome(r.GatewayOrderID, r.GatewayPaymentID, r.Signature), nil
	case "failed":
		return domain.FailedOutcome(r.Reason), nil
	default:
		return domain.CancelledOutcome(), nil
	}
}

type CheckoutStatusResponse struct {
	TempOrderID    string     `json:"temp_order_id"`
	State          string     `json:"state"`
	PaymentMethod  string     `json:"payment_method"`
	TotalAmount    string     `json:"total_amount"`
	CreditApplied  string     `json:"credit_applied"`
	Currency       string     `json:"currency"`
	GatewayOrderID *string    `json:"gateway_order_id,omitempty"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
	FailureCode    *string    `json:"failure_code,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func newStatusResponse(a *domain.CheckoutAttempt) CheckoutStatusResponse {
	return CheckoutStatusResponse{
		TempOrderID:    a.TempOrderID,
		State:          string(a.State),
		PaymentMethod:  string(a.PaymentMethod),
		TotalAmount:    formatMoney(a.TotalAmount),
		CreditApplied:  formatMoney(a.CreditApplied),
		Currency:       a.Currency,
		GatewayOrderID: a.GatewayOrderID,
		OrderID:        a.OrderID,
		FailureCode:    a.FailureCode,
		UpdatedAt:      a.UpdatedAt,
	}
}

type BalanceResponse struct {
	UserID   string `json:"user_id"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

type TransactionResponse struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	OrderRef     *string   `json:"order_ref,omitempty"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

func newTransactionResponse(t *domain.CreditTransaction) TransactionResponse {
	return TransactionResponse{
		ID:           t.ID,
		Type:         string(t.Type),
		Amount:       formatMoney(t.Amount),
		BalanceAfter: formatMoney(t.BalanceAfter),
		OrderRef:     t.OrderRef,
		Description:  t.Description,
		CreatedAt:    t.CreatedAt,
	}
}

type CreditGrantRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	Amount         string `json:"amount" validate:"required"`
	Type           string `json:"type" validate:"required,oneof=credit refund return"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key"`
}
