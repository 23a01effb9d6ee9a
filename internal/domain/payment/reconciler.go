// internal/domain/payment/reconciler.go
package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/checkout"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/outbox"
	"github.com/your-org/storefront-backend/internal/domain/pricing"
	"github.com/your-org/storefront-backend/internal/pkg/apperr"
)

var (
	ErrInvalidSignature       = errors.New("invalid payment signature")
	ErrOwnerMismatch          = errors.New("payment intent belongs to another customer")
	ErrVerificationInProgress = errors.New("payment verification already in progress")
	ErrIntentExpired          = errors.New("payment intent expired and no order details were supplied")
	ErrZeroAmount             = errors.New("order total must be greater than zero")
	ErrPaymentOrderMismatch   = errors.New("payment does not belong to this gateway order")
)

// CodeVerificationInProgress is returned while another request verifies
// the same gateway order
const CodeVerificationInProgress = "VERIFICATION_IN_PROGRESS"

const providerRazorpay = "razorpay"

// Placer places orders from a cart
type Placer interface {
	Prepare(ctx context.Context, ownerID uuid.UUID, details checkout.Details) (*checkout.Prepared, error)
	PlaceOrder(ctx context.Context, ownerID uuid.UUID, req checkout.PlaceOrderRequest) (*order.Order, *checkout.PlacementReport, error)
}

// OrderLedger is the slice of the order service payments touch
type OrderLedger interface {
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*order.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, gatewayPaymentID string) (bool, error)
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) (bool, error)
	RecordPayment(ctx context.Context, record *order.PaymentRecord) (*order.PaymentRecord, error)
}

// EventSink queues domain events
type EventSink interface {
	AddEvent(ctx context.Context, e *outbox.Event) error
}

// Options holds reconciler timings
type Options struct {
	IntentTTL time.Duration
	LockTTL   time.Duration
}

// IntentRequest is the checkout form submitted before paying online
type IntentRequest struct {
	checkout.Details
}

// IntentResponse is everything the browser needs to open the gateway
// checkout
type IntentResponse struct {
	GatewayOrderID string           `json:"gateway_order_id"`
	Amount         decimal.Decimal  `json:"amount"`
	AmountMinor    int64            `json:"amount_minor"`
	Currency       string           `json:"currency"`
	KeyID          string           `json:"key_id"`
	Receipt        string           `json:"receipt"`
	Totals         pricing.Totals   `json:"totals"`
	Metadata       checkout.Details `json:"metadata"`
}

// VerifyRequest is the gateway callback forwarded by the browser.
// Metadata is only used when the stored intent has expired.
type VerifyRequest struct {
	GatewayOrderID   string            `json:"razorpay_order_id" binding:"required"`
	GatewayPaymentID string            `json:"razorpay_payment_id" binding:"required"`
	Signature        string            `json:"razorpay_signature" binding:"required"`
	Metadata         *checkout.Details `json:"metadata,omitempty"`
}

// VerifyResult is the committed order. AlreadyProcessed is set when an
// earlier request or webhook created it.
type VerifyResult struct {
	Order            *order.Order              `json:"order"`
	Report           *checkout.PlacementReport `json:"report,omitempty"`
	AlreadyProcessed bool                      `json:"already_processed"`
}

// Reconciler turns gateway payments into orders
type Reconciler struct {
	cfg     GatewayConfig
	gateway Gateway
	intents IntentStore
	placer  Placer
	orders  OrderLedger
	events  EventSink
	opts    Options
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewReconciler creates a new payment reconciler
func NewReconciler(cfg GatewayConfig, gateway Gateway, intents IntentStore, placer Placer, orders OrderLedger, events EventSink, opts Options, log logrus.FieldLogger) *Reconciler {
	if opts.IntentTTL <= 0 {
		opts.IntentTTL = 2 * time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.WebhookSecret == "" {
		log.Warn("Razorpay webhook secret not configured, webhook signatures will not be checked")
	}
	return &Reconciler{
		cfg:     cfg,
		gateway: gateway,
		intents: intents,
		placer:  placer,
		orders:  orders,
		events:  events,
		opts:    opts,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateIntent prices the owner's cart and opens a gateway order for it.
// The checkout details are kept with the intent so verification places
// exactly what was priced here.
func (r *Reconciler) CreateIntent(ctx context.Context, ownerID uuid.UUID, req IntentRequest) (*IntentResponse, error) {
	prepared, err := r.placer.Prepare(ctx, ownerID, req.Details)
	if err != nil {
		return nil, err
	}

	amount := prepared.Totals.FinalTotal
	amountMinor := pricing.ToMinorUnits(amount)
	if amountMinor <= 0 {
		return nil, apperr.Validation(ErrZeroAmount.Error(), ErrZeroAmount)
	}

	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	gwOrder, err := r.gateway.CreateOrder(ctx, amountMinor, r.cfg.Currency, receipt, map[string]string{
		"owner_id": ownerID.String(),
	})
	if err != nil {
		return nil, err
	}

	intent := &Intent{
		GatewayOrderID: gwOrder.ID,
		OwnerID:        ownerID,
		Amount:         amount,
		AmountMinor:    amountMinor,
		Currency:       r.cfg.Currency,
		Receipt:        receipt,
		Details:        req.Details,
		CreatedAt:      r.now(),
	}
	if err := r.intents.Save(ctx, intent, r.opts.IntentTTL); err != nil {
		return nil, apperr.Upstream("failed to store payment intent", true, err)
	}

	r.log.WithFields(logrus.Fields{
		"owner_id":         ownerID,
		"gateway_order_id": gwOrder.ID,
		"amount":           amount.StringFixed(2),
	}).Info("Payment intent created")

	return &IntentResponse{
		GatewayOrderID: gwOrder.ID,
		Amount:         amount,
		AmountMinor:    amountMinor,
		Currency:       r.cfg.Currency,
		KeyID:          r.cfg.KeyID,
		Receipt:        receipt,
		Totals:         prepared.Totals,
		Metadata:       req.Details,
	}, nil
}

// VerifyAndCommit checks the checkout signature and places the paid
// order. Submitting the same payment twice returns the first order.
func (r *Reconciler) VerifyAndCommit(ctx context.Context, ownerID uuid.UUID, req VerifyRequest) (*VerifyResult, error) {
	entry := r.log.WithFields(logrus.Fields{
		"owner_id":           ownerID,
		"gateway_order_id":   req.GatewayOrderID,
		"gateway_payment_id": req.GatewayPaymentID,
	})

	if !VerifyPaymentSignature(r.cfg.KeySecret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		entry.Warn("Payment signature verification failed")
		return nil, apperr.Security("payment verification failed", ErrInvalidSignature)
	}

	locked, err := r.intents.Lock(ctx, req.GatewayOrderID, r.opts.LockTTL)
	if err != nil {
		return nil, apperr.Upstream("failed to lock payment", true, err)
	}
	if !locked {
		return nil, apperr.Conflict(CodeVerificationInProgress, ErrVerificationInProgress.Error(), nil, ErrVerificationInProgress)
	}
	defer func() {
		if err := r.intents.Unlock(context.WithoutCancel(ctx), req.GatewayOrderID); err != nil {
			entry.WithError(err).Warn("Failed to release payment lock")
		}
	}()

	if existing, err := r.existingOrder(ctx, req.GatewayOrderID); err != nil {
		return nil, err
	} else if existing != nil {
		if existing.UserID != ownerID {
			return nil, apperr.Security("payment verification failed", ErrOwnerMismatch)
		}
		entry.WithField("order_id", existing.ID).Info("Payment already committed")
		return &VerifyResult{Order: existing, AlreadyProcessed: true}, nil
	}

	details, expected, err := r.resolveIntent(ctx, ownerID, req)
	if err != nil {
		return nil, err
	}

	placed, report, err := r.placer.PlaceOrder(ctx, ownerID, checkout.PlaceOrderRequest{
		Details: details,
		Payment: &checkout.OnlinePayment{
			Provider:         providerRazorpay,
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			Signature:        req.Signature,
			Currency:         r.cfg.Currency,
			ExpectedAmount:   expected,
		},
	})
	if err != nil {
		if errors.Is(err, order.ErrDuplicateOrder) {
			if existing, findErr := r.existingOrder(ctx, req.GatewayOrderID); findErr == nil && existing != nil {
				return &VerifyResult{Order: existing, AlreadyProcessed: true}, nil
			}
		}
		entry.WithError(err).Error("Payment captured but order could not be placed")
		return nil, err
	}

	if err := r.intents.Delete(ctx, req.GatewayOrderID); err != nil {
		entry.WithError(err).Warn("Failed to delete payment intent")
	}

	entry.WithFields(logrus.Fields{
		"order_id":     placed.ID,
		"needs_review": placed.NeedsReview,
	}).Info("Payment verified and order committed")

	return &VerifyResult{Order: placed, Report: report}, nil
}

// resolveIntent returns the checkout details and the amount the customer
// was charged. The stored intent wins; without it the request metadata is
// used and the amount comes from the gateway.
func (r *Reconciler) resolveIntent(ctx context.Context, ownerID uuid.UUID, req VerifyRequest) (checkout.Details, *decimal.Decimal, error) {
	intent, err := r.intents.Get(ctx, req.GatewayOrderID)
	switch {
	case err == nil:
		if intent.OwnerID != ownerID {
			r.log.WithFields(logrus.Fields{
				"owner_id":         ownerID,
				"intent_owner_id":  intent.OwnerID,
				"gateway_order_id": req.GatewayOrderID,
			}).Warn("Payment intent owner mismatch")
			return checkout.Details{}, nil, apperr.Security("payment verification failed", ErrOwnerMismatch)
		}
		amount := intent.Amount
		return intent.Details, &amount, nil

	case errors.Is(err, ErrIntentNotFound):
		if req.Metadata == nil {
			return checkout.Details{}, nil, apperr.Validation(ErrIntentExpired.Error(), ErrIntentExpired)
		}
		payment, err := r.gateway.FetchPayment(ctx, req.GatewayPaymentID)
		if err != nil {
			return checkout.Details{}, nil, err
		}
		if payment.OrderID != req.GatewayOrderID {
			return checkout.Details{}, nil, apperr.Security("payment verification failed", ErrPaymentOrderMismatch)
		}
		amount := pricing.FromMinorUnits(payment.Amount)
		return *req.Metadata, &amount, nil

	default:
		return checkout.Details{}, nil, apperr.Upstream("failed to load payment intent", true, err)
	}
}

func (r *Reconciler) existingOrder(ctx context.Context, gatewayOrderID string) (*order.Order, error) {
	o, err := r.orders.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return o, nil
}
