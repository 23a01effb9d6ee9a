// internal/domain/checkout/entity.go
package checkout

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/pricing"
)

// DeliveryRequest is the delivery option the customer picked
type DeliveryRequest struct {
	Mode          string     `json:"mode"`
	EstimatedDays int        `json:"estimated_days"`
	ExpectedDate  *time.Time `json:"expected_date,omitempty"`
	Pincode       string     `json:"pincode"`
	City          string     `json:"city"`
	State         string     `json:"state"`
}

// Details is everything the customer supplies at checkout besides the
// cart. For online payments it is stored with the intent and replayed on
// verification.
type Details struct {
	ShippingAddress order.Address   `json:"shipping_address"`
	Delivery        DeliveryRequest `json:"delivery"`
	Discount        decimal.Decimal `json:"discount"`
	GiftWrap        bool            `json:"gift_wrap"`
	GiftMessage     string          `json:"gift_message"`
	Notes           string          `json:"notes"`
}

// QuoteRequest represents a totals preview
type QuoteRequest struct {
	Delivery DeliveryRequest `json:"delivery"`
	Discount decimal.Decimal `json:"discount"`
}

// Quote is the read-only preview of a checkout
type Quote struct {
	Cart         *cart.View           `json:"cart"`
	Stock        *cart.StockReport    `json:"stock"`
	DeliveryMode pricing.DeliveryMode `json:"delivery_mode"`
	Totals       pricing.Totals       `json:"totals"`
	CanPlace     bool                 `json:"can_place"`
}

// OnlinePayment carries the verified gateway payment into placement
type OnlinePayment struct {
	Provider         string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Currency         string
	Method           string
	// ExpectedAmount is what the customer was asked to pay; nil skips the
	// amount check
	ExpectedAmount *decimal.Decimal
}

// PlaceOrderRequest represents order placement data. Payment is nil for
// cash on delivery.
type PlaceOrderRequest struct {
	Details
	Payment *OnlinePayment `json:"-"`
}

// Prepared is a validated cart priced and ready to become an order
type Prepared struct {
	Cart   *cart.View
	Stock  *cart.StockReport
	Mode   pricing.DeliveryMode
	Totals pricing.Totals
}

// StepName identifies one side effect of order placement
type StepName string

const (
	StepAmountCheck   StepName = "amount_check"
	StepPaymentRecord StepName = "payment_record"
	StepStockDeduct   StepName = "stock_deduct"
	StepStockRestore  StepName = "stock_restore"
	StepCartClear     StepName = "cart_clear"
	StepShipment      StepName = "shipment"
	StepEventPublish  StepName = "event_publish"
)

// StepResult is the outcome of one best-effort step
type StepResult struct {
	Step   StepName    `json:"step"`
	OK     bool        `json:"ok"`
	Error  string      `json:"error,omitempty"`
	Detail interface{} `json:"detail,omitempty"`
}

// PlacementReport aggregates the side effects that ran after an order was
// committed. A failed step never undoes the order; it is queued for repair.
type PlacementReport struct {
	OrderID     string       `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	Steps       []StepResult `json:"steps"`
}

// Complete reports whether every step succeeded
func (r *PlacementReport) Complete() bool {
	for _, s := range r.Steps {
		if !s.OK {
			return false
		}
	}
	return true
}

// Failed returns the failed steps
func (r *PlacementReport) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if !s.OK {
			out = append(out, s)
		}
	}
	return out
}

// Step returns the result for name, if it ran
func (r *PlacementReport) Step(name StepName) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return StepResult{}, false
}

func (r *PlacementReport) add(step StepName, err error, detail interface{}) {
	res := StepResult{Step: step, OK: err == nil, Detail: detail}
	if err != nil {
		res.Error = err.Error()
	}
	r.Steps = append(r.Steps, res)
}
