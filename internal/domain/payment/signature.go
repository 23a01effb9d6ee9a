// internal/domain/payment/signature.go
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyPaymentSignature checks the checkout signature Razorpay returns to
// the browser: hex HMAC-SHA256 of "order_id|payment_id" keyed with the API
// secret. Empty or malformed input is simply invalid.
func VerifyPaymentSignature(secret, gatewayOrderID, gatewayPaymentID, signature string) bool {
	if secret == "" || gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}
	return verifyHMAC(secret, []byte(gatewayOrderID+"|"+gatewayPaymentID), signature)
}

// VerifyWebhookSignature checks X-Razorpay-Signature against the raw body.
// An unset secret accepts everything; callers log that.
func VerifyWebhookSignature(secret, signature string, rawBody []byte) bool {
	if secret == "" {
		return true
	}
	if signature == "" {
		return false
	}
	return verifyHMAC(secret, rawBody, signature)
}

// SignPayment produces the checkout signature for an order/payment pair
func SignPayment(secret, gatewayOrderID, gatewayPaymentID string) string {
	return sign(secret, []byte(gatewayOrderID+"|"+gatewayPaymentID))
}

// SignWebhook produces the webhook signature for a body
func SignWebhook(secret string, rawBody []byte) string {
	return sign(secret, rawBody)
}

func sign(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyHMAC compares against the exact lowercase hex digest the gateway
// sends, so a case change in the supplied signature does not verify.
func verifyHMAC(secret string, msg []byte, signature string) bool {
	expected := sign(secret, msg)
	return hmac.Equal([]byte(expected), []byte(signature))
}
