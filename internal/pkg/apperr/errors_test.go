package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSentinel = errors.New("cart is empty")

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("bad input", nil), KindValidation},
		{"wrapped not found", fmt.Errorf("load order: %w", NotFound("order not found", nil)), KindNotFound},
		{"conflict", Conflict("INSUFFICIENT_STOCK", "out of stock", nil, nil), KindConflict},
		{"security", Security("invalid signature", nil), KindSecurity},
		{"upstream", Upstream("gateway down", true, nil), KindUpstream},
		{"plain", errors.New("boom"), KindInternal},
		{"nil", nil, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestSentinelSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("place order: %w", Validation("cart is empty", errSentinel))

	assert.ErrorIs(t, err, errSentinel)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "place order: cart is empty", err.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Upstream("timeout", true, errors.New("deadline exceeded"))))
	assert.False(t, IsRetryable(Upstream("rejected", false, nil)))
	assert.False(t, IsRetryable(Validation("bad", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Upstream("razorpay create order failed", true, errors.New("connection reset"))
	assert.Equal(t, "razorpay create order failed: connection reset", err.Error())
}
