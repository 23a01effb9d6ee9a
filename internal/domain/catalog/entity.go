// internal/domain/catalog/entity.go
package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a standalone sellable item. A nil StockLimit means the
// product is not stock tracked.
type Product struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SKU         string          `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name        string          `gorm:"not null;size:255" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	WeightGrams *int            `json:"weight_grams,omitempty"`
	StockLimit  *int            `json:"stock_limit"`
	IsActive    bool            `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Bundle groups one or more products that are priced and stocked as one
// unit. Orders only ever record bundles.
type Bundle struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SKU         string          `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name        string          `gorm:"not null;size:255" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	WeightGrams *int            `json:"weight_grams,omitempty"`
	StockLimit  *int            `json:"stock_limit"`
	IsActive    bool            `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Items []BundleItem `gorm:"foreignKey:BundleID" json:"items,omitempty"`
}

// BundleItem is one product inside a bundle
type BundleItem struct {
	BundleID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"bundle_id"`
	ProductID uuid.UUID `gorm:"type:uuid;primaryKey" json:"product_id"`
	Quantity  int       `gorm:"not null;default:1" json:"quantity"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// TableName overrides
func (Product) TableName() string    { return "products" }
func (Bundle) TableName() string     { return "bundles" }
func (BundleItem) TableName() string { return "bundle_items" }

// Unlimited reports whether the bundle has no stock ceiling
func (b Bundle) Unlimited() bool {
	return b.StockLimit == nil
}

// HasStockFor reports whether qty units can currently be sold
func (b Bundle) HasStockFor(qty int) bool {
	return b.StockLimit == nil || *b.StockLimit >= qty
}

// HasStockFor reports whether qty units can currently be sold
func (p Product) HasStockFor(qty int) bool {
	return p.StockLimit == nil || *p.StockLimit >= qty
}
