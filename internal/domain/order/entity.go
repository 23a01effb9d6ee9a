// internal/domain/order/entity.go
package order

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/domain/pricing"
)

// Status represents the order status
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusProcessing     Status = "processing"
	StatusPickedUp       Status = "picked_up"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusFailed         Status = "failed"
	StatusRTOInitiated   Status = "rto_initiated"
	StatusRTODelivered   Status = "rto_delivered"
	StatusCancelled      Status = "cancelled"
)

// PaymentStatus represents payment status
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentMethod represents how the customer pays
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
)

// transitions lists the forward moves of the order lifecycle. Writes are
// not rejected when they fall outside this table, only logged.
var transitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusCancelled, StatusFailed},
	StatusConfirmed:      {StatusProcessing, StatusCancelled, StatusFailed},
	StatusProcessing:     {StatusPickedUp, StatusFailed},
	StatusPickedUp:       {StatusInTransit, StatusFailed, StatusRTOInitiated},
	StatusInTransit:      {StatusOutForDelivery, StatusFailed, StatusRTOInitiated},
	StatusOutForDelivery: {StatusDelivered, StatusFailed, StatusRTOInitiated},
	StatusRTOInitiated:   {StatusRTODelivered},
}

// ParseStatus validates a raw status value
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusPickedUp, StatusInTransit,
		StatusOutForDelivery, StatusDelivered, StatusFailed, StatusRTOInitiated,
		StatusRTODelivered, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// ParsePaymentStatus validates a raw payment status value
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	s := PaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case PaymentUnpaid, PaymentPaid, PaymentFailed, PaymentRefunded:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentStatus, raw)
}

// CanTransition reports whether from -> to is a forward move of the lifecycle
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Address is the structured shipping address (embedded in Order)
type Address struct {
	Line1    string `gorm:"size:255" json:"line1" binding:"required"`
	Line2    string `gorm:"size:255" json:"line2"`
	City     string `gorm:"size:100" json:"city" binding:"required"`
	State    string `gorm:"size:100" json:"state" binding:"required"`
	Country  string `gorm:"size:100" json:"country"`
	Zip      string `gorm:"size:20" json:"zip" binding:"required"`
	Phone    string `gorm:"size:20" json:"phone" binding:"required"`
	Landmark string `gorm:"size:255" json:"landmark"`
}

// DeliveryMetadata is what the customer saw when choosing a delivery option
type DeliveryMetadata struct {
	Mode          pricing.DeliveryMode `gorm:"size:20" json:"mode"`
	EstimatedDays int                  `json:"estimated_days"`
	ExpectedDate  *time.Time           `json:"expected_date,omitempty"`
	ExpressCharge decimal.Decimal      `gorm:"type:numeric(12,2)" json:"express_charge"`
	Pincode       string               `gorm:"size:20" json:"pincode"`
	City          string               `gorm:"size:100" json:"city"`
	State         string               `gorm:"size:100" json:"state"`
	SavedAt       *time.Time           `json:"saved_at,omitempty"`
}

// Order represents the order entity. Only status, payment status, review
// flags and timestamps change after creation.
type Order struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber   string        `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	UserID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	Status        Status        `gorm:"not null;size:30" json:"status"`
	PaymentStatus PaymentStatus `gorm:"not null;size:20" json:"payment_status"`
	PaymentMethod PaymentMethod `gorm:"not null;size:20" json:"payment_method"`

	// Financial Information
	Subtotal             decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	ExpressCharge        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"express_charge"`
	Discount             decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount"`
	FinalTotal           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"final_total"`
	Currency             string          `gorm:"size:3" json:"currency"`
	EstimatedWeightGrams int             `json:"estimated_weight_grams"`

	ShippingAddress Address          `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`
	Delivery        DeliveryMetadata `gorm:"embedded;embeddedPrefix:delivery_" json:"delivery"`

	GiftWrap    bool   `json:"gift_wrap"`
	GiftMessage string `gorm:"type:text" json:"gift_message"`
	Notes       string `gorm:"type:text" json:"notes"`

	// Gateway identifiers, set for online payments only
	GatewayOrderID   *string `gorm:"size:100" json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string `gorm:"size:100" json:"gateway_payment_id,omitempty"`
	GatewaySignature *string `gorm:"size:255" json:"-"`

	NeedsReview  bool   `json:"needs_review"`
	ReviewReason string `gorm:"type:text" json:"review_reason,omitempty"`

	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Lines []OrderLine `gorm:"foreignKey:OrderID" json:"lines,omitempty"`
}

// OrderLine is a bundle snapshot taken when the order was placed
type OrderLine struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	BundleID  uuid.UUID       `gorm:"type:uuid;not null" json:"bundle_id"`
	SKU       string          `gorm:"size:100" json:"sku"`
	Name      string          `gorm:"not null;size:255" json:"name"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	LineTotal decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"line_total"`
	Origin    string          `gorm:"size:30" json:"origin"`
	CreatedAt time.Time       `json:"created_at"`
}

// PaymentRecord is one captured gateway payment
type PaymentRecord struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	UserID           uuid.UUID       `gorm:"type:uuid;not null" json:"user_id"`
	Provider         string          `gorm:"size:30;not null" json:"provider"`
	GatewayOrderID   string          `gorm:"size:100" json:"gateway_order_id"`
	GatewayPaymentID string          `gorm:"size:100;uniqueIndex;not null" json:"gateway_payment_id"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency         string          `gorm:"size:3;not null" json:"currency"`
	Method           string          `gorm:"size:30" json:"method"`
	Status           string          `gorm:"size:20;not null" json:"status"`
	IsSuccess        bool            `json:"is_success"`
	CreatedAt        time.Time       `json:"created_at"`
}

// StatusHistory tracks order status changes
type StatusHistory struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID    uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	FromStatus Status    `gorm:"size:30" json:"from_status"`
	Status     Status    `gorm:"size:30;not null" json:"status"`
	Note       string    `gorm:"type:text" json:"note"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName overrides
func (Order) TableName() string         { return "orders" }
func (OrderLine) TableName() string     { return "order_lines" }
func (PaymentRecord) TableName() string { return "payment_records" }
func (StatusHistory) TableName() string { return "order_status_history" }

// Business methods for Order

// CanBeCancelled checks if order can be cancelled
func (o *Order) CanBeCancelled() bool {
	return o.Status == StatusPending || o.Status == StatusConfirmed
}

// IsPaid reports whether the payment has been captured
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid
}

// TotalsConsistent checks final_total == subtotal + express_charge - discount
func (o *Order) TotalsConsistent() bool {
	return o.FinalTotal.Equal(o.Subtotal.Add(o.ExpressCharge).Sub(o.Discount))
}

const orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateOrderNumber returns a human readable number: ORD-YYYYMMDD-XXXXXX
func GenerateOrderNumber(now time.Time) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("ORD-%s-%06d", now.Format("20060102"), now.UnixNano()%1_000_000)
	}
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), buf)
}

func decimalFromInt(v int) decimal.Decimal {
	return decimal.NewFromInt(int64(v))
}
