// internal/domain/shipment/entity.go
package shipment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/domain/pricing"
)

// Status represents the shipment status
type Status string

const (
	StatusPendingReview Status = "pending_review"
)

// PaymentMode tells the courier whether to collect cash on delivery
type PaymentMode string

const (
	PaymentModePrepaid PaymentMode = "prepaid"
	PaymentModeCOD     PaymentMode = "cod"
)

// Destination is where the parcel goes
type Destination struct {
	Pincode string `gorm:"size:20" json:"pincode"`
	City    string `gorm:"size:100" json:"city"`
	State   string `gorm:"size:100" json:"state"`
}

// Shipment is the stub created for every placed order
type Shipment struct {
	ID            uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID       uuid.UUID            `gorm:"type:uuid;uniqueIndex;not null" json:"order_id"`
	Destination   Destination          `gorm:"embedded" json:"destination"`
	WeightGrams   int                  `gorm:"not null" json:"weight_grams"`
	Mode          pricing.DeliveryMode `gorm:"size:20;not null" json:"mode"`
	PaymentMode   PaymentMode          `gorm:"size:20;not null" json:"payment_mode"`
	EstimatedCost decimal.Decimal      `gorm:"type:numeric(12,2);not null" json:"estimated_cost"`
	Status        Status               `gorm:"size:30;not null" json:"status"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// TableName overrides
func (Shipment) TableName() string { return "shipments" }

// Request asks for a shipment to be costed and recorded
type Request struct {
	OrderID     uuid.UUID
	Destination Destination
	WeightGrams int
	Mode        pricing.DeliveryMode
	PaymentMode PaymentMode
}

// Result is what the creator hands back
type Result struct {
	ShipmentID    uuid.UUID       `json:"shipment_id"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Status        Status          `json:"status"`
}
