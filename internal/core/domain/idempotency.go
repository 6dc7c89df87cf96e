package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// RequestHash fingerprints a checkout request so a reused tempOrderId with a
// different cart or selection is detected instead of silently replayed.
func RequestHash(req CheckoutRequest) (string, error) {
	payload, err := json.Marshal(struct {
		Cart        Cart             `json:"cart"`
		Selection   PaymentSelection `json:"selection"`
		StoreCredit bool             `json:"store_credit"`
	}{req.Cart, req.Selection, req.StoreCreditRequested})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
