// internal/domain/inventory/entity.go
package inventory

import (
	"time"

	"github.com/google/uuid"
)

// MovementType represents the direction of a stock change
type MovementType string

const (
	MovementSale   MovementType = "sale"
	MovementReturn MovementType = "return"
)

// StockMovement is the audit row written with every limited stock change
type StockMovement struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	BundleID      uuid.UUID    `gorm:"type:uuid;not null;index" json:"bundle_id"`
	MovementType  MovementType `gorm:"not null" json:"movement_type"`
	Quantity      int          `gorm:"not null" json:"quantity"`
	PreviousStock int          `gorm:"not null" json:"previous_stock"`
	NewStock      int          `gorm:"not null" json:"new_stock"`
	ReferenceType string       `gorm:"size:30" json:"reference_type"`
	ReferenceID   string       `gorm:"size:100" json:"reference_id"`
	Note          string       `gorm:"type:text" json:"note"`
	CreatedAt     time.Time    `json:"created_at"`
}

// TableName overrides
func (StockMovement) TableName() string { return "stock_movements" }

// Adjustment asks for quantity units of one bundle
type Adjustment struct {
	BundleID uuid.UUID `json:"bundle_id"`
	Quantity int       `json:"quantity"`
}

// Reference ties stock movements to the order that caused them
type Reference struct {
	Type string
	ID   string
	Note string
}

// Outcome is the result of one applied adjustment. PreviousStock and
// NewStock are nil for unlimited bundles.
type Outcome struct {
	BundleID        uuid.UUID `json:"bundle_id"`
	Quantity        int       `json:"quantity"`
	PreviousStock   *int      `json:"previous_stock"`
	NewStock        *int      `json:"new_stock"`
	Unlimited       bool      `json:"unlimited"`
	IsNowOutOfStock bool      `json:"is_now_out_of_stock"`
}

// Failure is one adjustment that could not be applied
type Failure struct {
	BundleID uuid.UUID `json:"bundle_id"`
	Quantity int       `json:"quantity"`
	Reason   string    `json:"reason"`
}

// AdjustmentResult aggregates a batch. Success is true only when nothing
// failed; applied items are never unwound because of a later failure.
type AdjustmentResult struct {
	Success bool      `json:"success"`
	Applied []Outcome `json:"applied"`
	Failed  []Failure `json:"failed"`
}

// FailedAdjustments returns the failed items in a form that can be retried
func (r AdjustmentResult) FailedAdjustments() []Adjustment {
	out := make([]Adjustment, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, Adjustment{BundleID: f.BundleID, Quantity: f.Quantity})
	}
	return out
}
