// internal/domain/payment/webhook.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/checkout"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/outbox"
	"github.com/your-org/storefront-backend/internal/domain/pricing"
)

// Webhook event names
const (
	WebhookPaymentCaptured = "payment.captured"
	WebhookPaymentFailed   = "payment.failed"
	WebhookOrderPaid       = "order.paid"
)

// WebhookAction describes what a webhook delivery did
type WebhookAction string

const (
	ActionInvalidSignature WebhookAction = "invalid_signature"
	ActionMalformed        WebhookAction = "malformed"
	ActionIgnored          WebhookAction = "ignored"
	ActionOrderNotFound    WebhookAction = "order_not_found"
	ActionMarkedPaid       WebhookAction = "marked_paid"
	ActionAlreadyPaid      WebhookAction = "already_paid"
	ActionPlacedFromIntent WebhookAction = "placed_from_intent"
	ActionDeferred         WebhookAction = "deferred"
	ActionMarkedFailed     WebhookAction = "marked_failed"
	ActionNoChange         WebhookAction = "no_change"
	ActionError            WebhookAction = "error"
)

// WebhookResult is logged and returned to the handler, which always
// acknowledges the delivery
type WebhookResult struct {
	Event            string        `json:"event"`
	Action           WebhookAction `json:"action"`
	GatewayOrderID   string        `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string        `json:"gateway_payment_id,omitempty"`
	OrderID          *uuid.UUID    `json:"order_id,omitempty"`
	Error            string        `json:"error,omitempty"`
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity GatewayPayment `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity GatewayOrder `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// paymentEvent is the body published for payment events
type paymentEvent struct {
	Type             outbox.EventType `json:"type"`
	OrderID          uuid.UUID        `json:"order_id"`
	OrderNumber      string           `json:"order_number"`
	UserID           uuid.UUID        `json:"user_id"`
	GatewayOrderID   string           `json:"gateway_order_id"`
	GatewayPaymentID string           `json:"gateway_payment_id"`
	Amount           string           `json:"amount"`
	Currency         string           `json:"currency"`
	Reason           string           `json:"reason,omitempty"`
	OccurredAt       time.Time        `json:"occurred_at"`
}

// HandleWebhook applies a gateway notification. It never fails: bad
// deliveries are logged and ignored so the gateway stops retrying them.
func (r *Reconciler) HandleWebhook(ctx context.Context, signature string, rawBody []byte) WebhookResult {
	if !VerifyWebhookSignature(r.cfg.WebhookSecret, signature, rawBody) {
		r.log.Warn("Webhook signature verification failed")
		return WebhookResult{Action: ActionInvalidSignature}
	}

	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		r.log.WithError(err).Warn("Malformed webhook payload")
		return WebhookResult{Action: ActionMalformed}
	}

	result := WebhookResult{Event: env.Event}
	var payment GatewayPayment
	if env.Payload.Payment != nil {
		payment = env.Payload.Payment.Entity
	}
	result.GatewayPaymentID = payment.ID
	result.GatewayOrderID = payment.OrderID
	if result.GatewayOrderID == "" && env.Payload.Order != nil {
		result.GatewayOrderID = env.Payload.Order.Entity.ID
	}

	switch env.Event {
	case WebhookPaymentCaptured, WebhookOrderPaid:
		if result.GatewayOrderID == "" {
			result.Action = ActionMalformed
		} else {
			r.applyCaptured(ctx, &result, payment)
		}
	case WebhookPaymentFailed:
		if result.GatewayOrderID == "" {
			result.Action = ActionMalformed
		} else {
			r.applyFailed(ctx, &result, payment)
		}
	default:
		result.Action = ActionIgnored
	}

	entry := r.log.WithFields(logrus.Fields{
		"event":              result.Event,
		"action":             result.Action,
		"gateway_order_id":   result.GatewayOrderID,
		"gateway_payment_id": result.GatewayPaymentID,
	})
	if result.Action == ActionError {
		entry.WithField("error", result.Error).Error("Webhook processing failed")
	} else {
		entry.Info("Webhook processed")
	}
	return result
}

func (r *Reconciler) applyCaptured(ctx context.Context, result *WebhookResult, payment GatewayPayment) {
	o, err := r.existingOrder(ctx, result.GatewayOrderID)
	if err != nil {
		result.fail(err)
		return
	}
	if o == nil {
		r.placeFromIntent(ctx, result, payment)
		return
	}
	result.OrderID = &o.ID

	if o.IsPaid() {
		result.Action = ActionAlreadyPaid
		return
	}

	changed, err := r.orders.MarkPaid(ctx, o.ID, payment.ID)
	if err != nil {
		result.fail(err)
		return
	}
	if !changed {
		result.Action = ActionAlreadyPaid
		return
	}
	result.Action = ActionMarkedPaid

	amount := o.FinalTotal
	if payment.Amount > 0 {
		amount = pricing.FromMinorUnits(payment.Amount)
	}
	if payment.ID != "" {
		record := &order.PaymentRecord{
			OrderID:          o.ID,
			UserID:           o.UserID,
			Provider:         providerRazorpay,
			GatewayOrderID:   result.GatewayOrderID,
			GatewayPaymentID: payment.ID,
			Amount:           amount,
			Currency:         firstNonEmpty(payment.Currency, o.Currency),
			Method:           payment.Method,
			Status:           "captured",
			IsSuccess:        true,
		}
		if _, err := r.orders.RecordPayment(ctx, record); err != nil {
			r.log.WithError(err).WithField("order_id", o.ID).Warn("Failed to record webhook payment")
		}
	}

	r.publish(ctx, o, outbox.EventPaymentCaptured, payment.ID, amount, "")
}

// placeFromIntent covers a customer who paid but never came back to
// verify. The stored intent has everything needed to place the order.
func (r *Reconciler) placeFromIntent(ctx context.Context, result *WebhookResult, payment GatewayPayment) {
	intent, err := r.intents.Get(ctx, result.GatewayOrderID)
	if err != nil {
		if errors.Is(err, ErrIntentNotFound) {
			result.Action = ActionOrderNotFound
			return
		}
		result.fail(err)
		return
	}

	locked, err := r.intents.Lock(ctx, result.GatewayOrderID, r.opts.LockTTL)
	if err != nil {
		result.fail(err)
		return
	}
	if !locked {
		// the customer's verify request is committing it right now
		result.Action = ActionDeferred
		return
	}
	defer func() {
		if err := r.intents.Unlock(context.WithoutCancel(ctx), result.GatewayOrderID); err != nil {
			r.log.WithError(err).Warn("Failed to release payment lock")
		}
	}()

	if o, err := r.existingOrder(ctx, result.GatewayOrderID); err != nil {
		result.fail(err)
		return
	} else if o != nil {
		result.OrderID = &o.ID
		result.Action = ActionAlreadyPaid
		return
	}

	expected := intent.Amount
	if payment.Amount > 0 {
		expected = pricing.FromMinorUnits(payment.Amount)
	}

	placed, _, err := r.placer.PlaceOrder(ctx, intent.OwnerID, checkout.PlaceOrderRequest{
		Details: intent.Details,
		Payment: &checkout.OnlinePayment{
			Provider:         providerRazorpay,
			GatewayOrderID:   result.GatewayOrderID,
			GatewayPaymentID: payment.ID,
			Currency:         firstNonEmpty(payment.Currency, intent.Currency),
			Method:           payment.Method,
			ExpectedAmount:   &expected,
		},
	})
	if err != nil {
		result.fail(err)
		return
	}

	if err := r.intents.Delete(ctx, result.GatewayOrderID); err != nil {
		r.log.WithError(err).Warn("Failed to delete payment intent")
	}
	result.OrderID = &placed.ID
	result.Action = ActionPlacedFromIntent
}

func (r *Reconciler) applyFailed(ctx context.Context, result *WebhookResult, payment GatewayPayment) {
	o, err := r.existingOrder(ctx, result.GatewayOrderID)
	if err != nil {
		result.fail(err)
		return
	}
	if o == nil {
		result.Action = ActionOrderNotFound
		return
	}
	result.OrderID = &o.ID

	if o.IsPaid() {
		result.Action = ActionAlreadyPaid
		return
	}

	changed, err := r.orders.MarkPaymentFailed(ctx, o.ID)
	if err != nil {
		result.fail(err)
		return
	}
	if !changed {
		result.Action = ActionNoChange
		return
	}
	result.Action = ActionMarkedFailed
	r.publish(ctx, o, outbox.EventPaymentFailed, payment.ID, pricing.FromMinorUnits(payment.Amount), payment.ErrorDescription)
}

func (r *Reconciler) publish(ctx context.Context, o *order.Order, eventType outbox.EventType, paymentID string, amount decimal.Decimal, reason string) {
	body := paymentEvent{
		Type:             eventType,
		OrderID:          o.ID,
		OrderNumber:      o.OrderNumber,
		UserID:           o.UserID,
		GatewayPaymentID: paymentID,
		Amount:           amount.StringFixed(2),
		Currency:         o.Currency,
		Reason:           reason,
		OccurredAt:       r.now(),
	}
	if o.GatewayOrderID != nil {
		body.GatewayOrderID = *o.GatewayOrderID
	}

	ev, err := outbox.NewEvent(o.ID.String(), eventType, body)
	if err == nil {
		err = r.events.AddEvent(ctx, ev)
	}
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"order_id":   o.ID,
			"event_type": eventType,
		}).Warn("Failed to queue payment event")
	}
}

func (res *WebhookResult) fail(err error) {
	res.Action = ActionError
	res.Error = err.Error()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
