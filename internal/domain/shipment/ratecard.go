// internal/domain/shipment/ratecard.go
package shipment

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/pricing"
)

// RateCard prices a parcel: a base rate covers the first slab, every
// further slab costs PerSlabRate. Express multiplies the sum and COD adds
// a flat fee.
type RateCard struct {
	BaseRate          decimal.Decimal
	PerSlabRate       decimal.Decimal
	SlabGrams         int
	ExpressMultiplier decimal.Decimal
	CODFee            decimal.Decimal
}

// RateCardFromConfig parses the configured rate card
func RateCardFromConfig(cfg config.ShippingConfig) (RateCard, error) {
	parse := func(name, raw string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid shipping %s %q: %w", name, raw, err)
		}
		if d.IsNegative() {
			return decimal.Zero, fmt.Errorf("shipping %s must not be negative", name)
		}
		return d, nil
	}

	var (
		card RateCard
		err  error
	)
	if card.BaseRate, err = parse("base rate", cfg.BaseRate); err != nil {
		return RateCard{}, err
	}
	if card.PerSlabRate, err = parse("per slab rate", cfg.PerSlabRate); err != nil {
		return RateCard{}, err
	}
	if card.ExpressMultiplier, err = parse("express multiplier", cfg.ExpressMultiplier); err != nil {
		return RateCard{}, err
	}
	if card.CODFee, err = parse("cod fee", cfg.CODFee); err != nil {
		return RateCard{}, err
	}
	if cfg.SlabGrams <= 0 {
		return RateCard{}, fmt.Errorf("shipping slab grams must be positive")
	}
	card.SlabGrams = cfg.SlabGrams
	return card, nil
}

// Estimate returns the cost for a parcel of weightGrams
func (r RateCard) Estimate(weightGrams int, mode pricing.DeliveryMode, payment PaymentMode) decimal.Decimal {
	slabs := 1
	if weightGrams > r.SlabGrams {
		slabs = (weightGrams + r.SlabGrams - 1) / r.SlabGrams
	}

	cost := r.BaseRate.Add(r.PerSlabRate.Mul(decimal.NewFromInt(int64(slabs - 1))))
	if mode == pricing.DeliveryExpress {
		cost = cost.Mul(r.ExpressMultiplier)
	}
	if payment == PaymentModeCOD {
		cost = cost.Add(r.CODFee)
	}
	return cost.Round(2)
}
