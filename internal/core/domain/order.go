// Package domain defines the checkout, ledger and order models.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod is how the part of an order not covered by store credit is settled.
type PaymentMethod string

const (
	MethodGateway     PaymentMethod = "gateway"
	MethodCOD         PaymentMethod = "cod"
	MethodStoreCredit PaymentMethod = "store_credit"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodGateway, MethodCOD, MethodStoreCredit:
		return true
	}
	return false
}

// OrderStatus is the persisted order status.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
)

// ProductType tags a line item. Only physical products can be shipped for COD.
type ProductType string

const (
	ProductPhysical ProductType = "physical"
	ProductDigital  ProductType = "digital"
	ProductService  ProductType = "service"
)

// Payment ids recorded on orders that were not paid through the gateway.
const (
	CODPendingPaymentID = "COD-PENDING"
	creditPaymentPrefix = "CREDIT_"
)

// CreditPaymentID is the payment id of an order paid in full with store credit.
func CreditPaymentID(tempOrderID string) string {
	return creditPaymentPrefix + tempOrderID
}

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type OrderItem struct {
	ProductID   string
	Title       string
	Quantity    int
	UnitPrice   int64
	TotalPrice  int64
	ProductType ProductType
	Options     map[string]string
}

// Order is the durable record of a confirmed checkout.
type Order struct {
	ID              uuid.UUID
	TempOrderID     string
	CustomerID      *string
	Contact         Contact
	Items           []OrderItem
	TotalAmount     int64
	Currency        string
	PaymentMethod   PaymentMethod
	PaymentID       string
	CreditApplied   int64
	ShippingAddress string
	BillingAddress  string
	Status          OrderStatus
	Notes           string
	ItemsComplete   bool
	CreatedAt       time.Time
}

// Validate checks the amount invariants that must hold before an order is persisted.
func (o *Order) Validate() error {
	if o.TempOrderID == "" {
		return NewMissingRequiredFieldError("temp_order_id")
	}
	if len(o.Items) == 0 {
		return NewEmptyCartError()
	}
	if !o.PaymentMethod.Valid() {
		return NewInvalidPaymentMethodError(o.PaymentMethod)
	}
	var sum int64
	for _, item := range o.Items {
		if item.Quantity <= 0 || item.UnitPrice < 0 {
			return NewInvalidAmountError(item.TotalPrice)
		}
		line, ok := mulAmount(int64(item.Quantity), item.UnitPrice)
		if !ok {
			return NewAmountOverflowError(item.ProductID)
		}
		if item.TotalPrice != line {
			return NewInvalidAmountError(item.TotalPrice)
		}
		if sum, ok = addAmount(sum, line); !ok {
			return NewAmountOverflowError("total")
		}
	}
	if sum != o.TotalAmount {
		return NewInvalidAmountError(o.TotalAmount)
	}
	if o.CreditApplied < 0 || o.CreditApplied > o.TotalAmount {
		return NewInvalidAmountError(o.CreditApplied)
	}
	if o.PaymentMethod == MethodCOD && !hasPhysical(o.Items) {
		return NewCODNotAllowedError()
	}
	return nil
}

func hasPhysical(items []OrderItem) bool {
	for _, item := range items {
		if item.ProductType == ProductPhysical {
			return true
		}
	}
	return false
}
