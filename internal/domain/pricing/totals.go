// internal/domain/pricing/totals.go
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DeliveryMode is how an order is shipped
type DeliveryMode string

const (
	DeliverySurface DeliveryMode = "surface"
	DeliveryExpress DeliveryMode = "express"
)

// DefaultItemWeightGrams is used for items without a configured weight
const DefaultItemWeightGrams = 1000

// ParseDeliveryMode normalizes a client supplied delivery mode. An empty
// value means surface delivery.
func ParseDeliveryMode(value string) (DeliveryMode, error) {
	switch DeliveryMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", DeliverySurface:
		return DeliverySurface, nil
	case DeliveryExpress:
		return DeliveryExpress, nil
	default:
		return "", fmt.Errorf("unknown delivery mode %q", value)
	}
}

// LineInput is one priced line fed into the calculator
type LineInput struct {
	Price       decimal.Decimal
	Quantity    int
	WeightGrams *int
}

// Totals is the outcome of a totals calculation
type Totals struct {
	Subtotal             decimal.Decimal `json:"subtotal"`
	ExpressCharge        decimal.Decimal `json:"express_charge"`
	Discount             decimal.Decimal `json:"discount"`
	Total                decimal.Decimal `json:"total"`
	FinalTotal           decimal.Decimal `json:"final_total"`
	ItemCount            int             `json:"item_count"`
	TotalQuantity        int             `json:"total_quantity"`
	EstimatedWeightGrams int             `json:"estimated_weight_grams"`
}

// CalculateTotals prices a list of lines. It never fails and does not
// validate its input; callers reject negative prices or quantities first.
func CalculateTotals(items []LineInput, mode DeliveryMode, expressCharge, discount decimal.Decimal) Totals {
	if len(items) == 0 {
		return Totals{}
	}

	subtotal := decimal.Zero
	totals := Totals{ItemCount: len(items)}
	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		subtotal = subtotal.Add(item.Price.Mul(qty))
		totals.TotalQuantity += item.Quantity

		weight := DefaultItemWeightGrams
		if item.WeightGrams != nil {
			weight = *item.WeightGrams
		}
		totals.EstimatedWeightGrams += weight * item.Quantity
	}

	totals.Subtotal = subtotal.Round(2)
	totals.ExpressCharge = decimal.Zero
	if mode == DeliveryExpress {
		totals.ExpressCharge = expressCharge
	}
	totals.Discount = discount
	totals.Total = totals.Subtotal.Add(totals.ExpressCharge)
	totals.FinalTotal = totals.Total.Sub(discount)

	return totals
}

// ToMinorUnits converts an amount to the smallest currency unit (paise)
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts a minor unit amount back to a decimal amount
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
