// internal/interfaces/http/handlers/payment.go
package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/payment"
)

const (
	headerRazorpaySignature = "X-Razorpay-Signature"
	maxWebhookBody          = 1 << 20
)

// PaymentService is the payment reconciler as seen by the handlers
type PaymentService interface {
	CreateIntent(ctx context.Context, ownerID uuid.UUID, req payment.IntentRequest) (*payment.IntentResponse, error)
	VerifyAndCommit(ctx context.Context, ownerID uuid.UUID, req payment.VerifyRequest) (*payment.VerifyResult, error)
	HandleWebhook(ctx context.Context, signature string, rawBody []byte) payment.WebhookResult
}

// PaymentHandler handles payment endpoints
type PaymentHandler struct {
	payments PaymentService
	log      logrus.FieldLogger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentService, log logrus.FieldLogger) *PaymentHandler {
	return &PaymentHandler{payments: payments, log: log}
}

// CreateIntent handles POST /payments/intent
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req payment.IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	intent, err := h.payments.CreateIntent(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Payment order created",
		"data":    intent,
	})
}

// VerifyPayment handles POST /payments/verify
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req payment.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.payments.VerifyAndCommit(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	message := "Payment verified and order placed"
	if result.AlreadyProcessed {
		status = http.StatusOK
		message = "Payment already processed"
	}

	c.JSON(status, gin.H{
		"message": message,
		"data":    result,
	})
}

// Webhook handles POST /payments/webhook. The gateway retries anything
// other than 2xx, so every outcome is acknowledged and only logged.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.log.WithError(err).Warn("Failed to read webhook body")
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	result := h.payments.HandleWebhook(c.Request.Context(), c.GetHeader(headerRazorpaySignature), body)

	entry := h.log.WithFields(logrus.Fields{
		"event":              result.Event,
		"action":             result.Action,
		"gateway_order_id":   result.GatewayOrderID,
		"gateway_payment_id": result.GatewayPaymentID,
	})
	if result.Error != "" {
		entry.WithField("error", result.Error).Warn("Webhook processed with error")
	} else {
		entry.Info("Webhook processed")
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
