package payment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestVerifyPaymentSignature(t *testing.T) {
	valid := SignPayment("secret", "order_1", "pay_1")

	tests := []struct {
		name      string
		secret    string
		orderID   string
		paymentID string
		signature string
		want      bool
	}{
		{"valid", "secret", "order_1", "pay_1", valid, true},
		{"wrong secret", "other", "order_1", "pay_1", valid, false},
		{"swapped ids", "secret", "pay_1", "order_1", valid, false},
		{"not hex", "secret", "order_1", "pay_1", "zz-not-hex", false},
		{"truncated", "secret", "order_1", "pay_1", valid[:10], false},
		{"upper case hex", "secret", "order_1", "pay_1", strings.ToUpper(valid), false},
		{"one letter upper cased", "secret", "order_1", "pay_1", upperFirstLetter(valid), false},
		{"empty signature", "secret", "order_1", "pay_1", "", false},
		{"empty secret", "", "order_1", "pay_1", valid, false},
		{"empty order", "secret", "", "pay_1", valid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyPaymentSignature(tt.secret, tt.orderID, tt.paymentID, tt.signature))
		})
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := SignWebhook("hook", body)

	assert.True(t, VerifyWebhookSignature("hook", sig, body))
	assert.False(t, VerifyWebhookSignature("hook", sig, []byte(`{"event":"payment.failed"}`)))
	assert.False(t, VerifyWebhookSignature("hook", "", body))
	assert.False(t, VerifyWebhookSignature("hook", upperFirstLetter(sig), body))
	assert.True(t, VerifyWebhookSignature("", "anything", body))
}

func TestSignatureRejectsAnyTamperedByte(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		secret := rapid.StringN(1, 32, -1).Draw(t, "secret")
		orderID := rapid.StringMatching(`order_[A-Za-z0-9]{6,14}`).Draw(t, "order")
		paymentID := rapid.StringMatching(`pay_[A-Za-z0-9]{6,14}`).Draw(t, "payment")

		sig := SignPayment(secret, orderID, paymentID)
		if !VerifyPaymentSignature(secret, orderID, paymentID, sig) {
			t.Fatalf("signature should verify")
		}

		i := rapid.IntRange(0, len(sig)-1).Draw(t, "pos")
		replacement := byte('0')
		switch {
		case sig[i] >= 'a' && sig[i] <= 'f' && rapid.Bool().Draw(t, "flipCase"):
			replacement = sig[i] - 'a' + 'A'
		case sig[i] == '0':
			replacement = '1'
		}
		tampered := sig[:i] + string(replacement) + sig[i+1:]
		if VerifyPaymentSignature(secret, orderID, paymentID, tampered) {
			t.Fatalf("tampered signature %q verified", tampered)
		}
	})
}

// upperFirstLetter upper-cases the first a-f hex digit
func upperFirstLetter(sig string) string {
	i := strings.IndexAny(sig, "abcdef")
	if i < 0 {
		return sig
	}
	return sig[:i] + strings.ToUpper(sig[i:i+1]) + sig[i+1:]
}
