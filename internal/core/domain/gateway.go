package domain

import "time"

// GatewayPaymentStatus tracks a hosted gateway order.
type GatewayPaymentStatus string

const (
	GatewayCreated GatewayPaymentStatus = "created"
	GatewayPaid    GatewayPaymentStatus = "paid"
	GatewayFailed  GatewayPaymentStatus = "failed"
)

// GatewayPayment is the local record of an order registered with the gateway.
type GatewayPayment struct {
	GatewayOrderID    string
	CorrelationID     string
	Amount            int64
	Currency          string
	Status            GatewayPaymentStatus
	GatewayPaymentID  *string
	SignatureVerified bool
	FailureReason     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// GatewayOrderRequest is sent to the gateway to open a payment session.
type GatewayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// GatewayOrderResponse is the gateway's view of a registered order.
type GatewayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// OutcomeKind is the variant of a gateway outcome.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// GatewayOutcome is how an external payment step ended.
type GatewayOutcome struct {
	Kind             OutcomeKind
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Reason           string
}

func SuccessOutcome(gatewayOrderID, gatewayPaymentID, signature string) GatewayOutcome {
	return GatewayOutcome{
		Kind:             OutcomeSuccess,
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: gatewayPaymentID,
		Signature:        signature,
	}
}

func FailedOutcome(reason string) GatewayOutcome {
	return GatewayOutcome{Kind: OutcomeFailed, Reason: reason}
}

func CancelledOutcome() GatewayOutcome {
	return GatewayOutcome{Kind: OutcomeCancelled}
}
