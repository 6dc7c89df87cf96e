package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HMACVerifier checks payment signatures with the gateway key secret. It runs
// only on the server, so the payer never sees the secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 of "gatewayOrderID|gatewayPaymentID".
func (v *HMACVerifier) Sign(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *HMACVerifier) Verify(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if len(v.secret) == 0 || signature == "" {
		return false
	}
	expected := v.Sign(gatewayOrderID, gatewayPaymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
