// internal/domain/cart/entity.go
package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/domain/pricing"
)

// Cart is the single cart row owned by a customer
type Cart struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID   uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartItem references exactly one bundle or one standalone product.
// Prices are not stored here, they are re-read from the catalog.
type CartItem struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CartID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"cart_id"`
	BundleID  *uuid.UUID `gorm:"type:uuid" json:"bundle_id,omitempty"`
	ProductID *uuid.UUID `gorm:"type:uuid" json:"product_id,omitempty"`
	Quantity  int        `gorm:"not null;default:1" json:"quantity"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName overrides
func (Cart) TableName() string     { return "carts" }
func (CartItem) TableName() string { return "cart_items" }

// ItemRef points at the catalog entry of a cart line
type ItemRef struct {
	BundleID  *uuid.UUID
	ProductID *uuid.UUID
}

// Line is a cart item joined with its current catalog data
type Line struct {
	LineID      uuid.UUID       `json:"line_id"`
	BundleID    *uuid.UUID      `json:"bundle_id,omitempty"`
	ProductID   *uuid.UUID      `json:"product_id,omitempty"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	WeightGrams *int            `json:"weight_grams,omitempty"`
	StockLimit  *int            `json:"stock_limit"`
	Available   bool            `json:"available"`
	AddedAt     time.Time       `json:"added_at"`
}

// IsBundle reports whether the line references a bundle
func (l Line) IsBundle() bool {
	return l.BundleID != nil
}

// View is the materialized cart
type View struct {
	CartID        uuid.UUID       `json:"cart_id"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	Lines         []Line          `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	ItemCount     int             `json:"item_count"`
	TotalQuantity int             `json:"total_quantity"`
}

// IsEmpty reports whether the cart has no lines
func (v *View) IsEmpty() bool {
	return len(v.Lines) == 0
}

// PricingLines returns the sellable lines as calculator input
func (v *View) PricingLines() []pricing.LineInput {
	inputs := make([]pricing.LineInput, 0, len(v.Lines))
	for _, line := range v.Lines {
		if !line.Available {
			continue
		}
		inputs = append(inputs, pricing.LineInput{
			Price:       line.UnitPrice,
			Quantity:    line.Quantity,
			WeightGrams: line.WeightGrams,
		})
	}
	return inputs
}

// StockItem is the availability verdict for one line
type StockItem struct {
	LineID         uuid.UUID  `json:"line_id"`
	BundleID       *uuid.UUID `json:"bundle_id,omitempty"`
	ProductID      *uuid.UUID `json:"product_id,omitempty"`
	Name           string     `json:"name"`
	RequiredQty    int        `json:"required_qty"`
	AvailableStock *int       `json:"available_stock"`
	InStock        bool       `json:"in_stock"`
}

// StockReport is the stock verdict for a whole cart
type StockReport struct {
	AllInStock      bool        `json:"all_in_stock"`
	Items           []StockItem `json:"items"`
	OutOfStockItems []StockItem `json:"out_of_stock_items"`
}

// AddItemRequest represents add to cart data
type AddItemRequest struct {
	BundleID  *uuid.UUID `json:"bundle_id"`
	ProductID *uuid.UUID `json:"product_id"`
	Quantity  int        `json:"quantity" binding:"required,min=1"`
}

// UpdateItemRequest represents a cart line quantity update
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}
