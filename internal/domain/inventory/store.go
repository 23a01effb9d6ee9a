// internal/domain/inventory/store.go
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore applies stock changes in postgres
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates an inventory store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

type stockRow struct {
	ID         uuid.UUID
	StockLimit *int
}

// Decrement lowers a bundle's stock by qty, clamping at zero
func (s *GormStore) Decrement(ctx context.Context, bundleID uuid.UUID, qty int, ref Reference) (Outcome, error) {
	return s.apply(ctx, bundleID, qty, MovementSale, ref,
		"UPDATE bundles SET stock_limit = GREATEST(stock_limit - ?, 0), updated_at = NOW() WHERE id = ? AND stock_limit IS NOT NULL RETURNING stock_limit")
}

// Increment raises a bundle's stock by qty
func (s *GormStore) Increment(ctx context.Context, bundleID uuid.UUID, qty int, ref Reference) (Outcome, error) {
	return s.apply(ctx, bundleID, qty, MovementReturn, ref,
		"UPDATE bundles SET stock_limit = stock_limit + ?, updated_at = NOW() WHERE id = ? AND stock_limit IS NOT NULL RETURNING stock_limit")
}

// apply locks the bundle row, leaves unlimited bundles untouched, and
// otherwise runs the single conditional update plus its audit row in one
// transaction.
func (s *GormStore) apply(ctx context.Context, bundleID uuid.UUID, qty int, kind MovementType, ref Reference, update string) (Outcome, error) {
	outcome := Outcome{BundleID: bundleID, Quantity: qty}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row stockRow
		err := tx.Table("bundles").
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "stock_limit").
			Where("id = ?", bundleID).
			Take(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBundleNotFound
			}
			return err
		}

		if row.StockLimit == nil {
			outcome.Unlimited = true
			return nil
		}

		var updated stockRow
		if err := tx.Raw(update, qty, bundleID).Scan(&updated).Error; err != nil {
			return err
		}
		if updated.StockLimit == nil {
			return fmt.Errorf("stock update for bundle %s returned no row", bundleID)
		}

		previous, next := *row.StockLimit, *updated.StockLimit
		outcome.PreviousStock = &previous
		outcome.NewStock = &next
		outcome.IsNowOutOfStock = next == 0

		movement := StockMovement{
			ID:            uuid.New(),
			BundleID:      bundleID,
			MovementType:  kind,
			Quantity:      qty,
			PreviousStock: previous,
			NewStock:      next,
			ReferenceType: ref.Type,
			ReferenceID:   ref.ID,
			Note:          ref.Note,
		}
		return tx.Create(&movement).Error
	})
	if err != nil {
		return Outcome{}, err
	}

	return outcome, nil
}

// Outstanding sums, per bundle, the units removed for ref minus the units
// already returned for it
func (s *GormStore) Outstanding(ctx context.Context, ref Reference) ([]Adjustment, error) {
	var items []Adjustment
	// sales store previous > new and returns previous < new, so the signed
	// difference nets them out
	err := s.db.WithContext(ctx).Raw(`
		SELECT bundle_id, SUM(previous_stock - new_stock) AS quantity
		FROM stock_movements
		WHERE reference_type = ? AND reference_id = ?
		GROUP BY bundle_id
		HAVING SUM(previous_stock - new_stock) > 0`,
		ref.Type, ref.ID).
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Movements lists the audit trail for a bundle, newest first
func (s *GormStore) Movements(ctx context.Context, bundleID uuid.UUID, limit int) ([]StockMovement, error) {
	var movements []StockMovement
	err := s.db.WithContext(ctx).
		Where("bundle_id = ?", bundleID).
		Order("created_at DESC").
		Limit(limit).
		Find(&movements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stock movements: %w", err)
	}
	return movements, nil
}
