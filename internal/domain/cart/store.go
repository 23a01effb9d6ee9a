// internal/domain/cart/store.go
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists carts in postgres
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a cart store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// FindOrCreateCart returns the owner's cart, creating it on first use
func (s *GormStore) FindOrCreateCart(ctx context.Context, ownerID uuid.UUID) (*Cart, error) {
	db := s.db.WithContext(ctx)

	var cart Cart
	err := db.Where("owner_id = ?", ownerID).First(&cart).Error
	if err == nil {
		return &cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	cart = Cart{ID: uuid.New(), OwnerID: ownerID}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoNothing: true,
	}).Create(&cart).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	// A concurrent request may have won the insert
	if err := db.Where("owner_id = ?", ownerID).First(&cart).Error; err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return &cart, nil
}

// ListItems returns the cart items oldest first
func (s *GormStore) ListItems(ctx context.Context, cartID uuid.UUID) ([]CartItem, error) {
	var items []CartItem
	err := s.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	return items, nil
}

// AddOrIncrement adds qty to the line for ref, creating it if needed
func (s *GormStore) AddOrIncrement(ctx context.Context, cartID uuid.UUID, ref ItemRef, qty int) (*CartItem, error) {
	var (
		item CartItem
		err  error
	)

	// Two first-time adds can race on the unique (cart, bundle) index; the
	// loser retries and takes the increment path.
	for attempt := 0; attempt < 2; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			query := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("cart_id = ?", cartID)
			if ref.BundleID != nil {
				query = query.Where("bundle_id = ?", *ref.BundleID)
			} else {
				query = query.Where("product_id = ?", *ref.ProductID)
			}

			findErr := query.First(&item).Error
			switch {
			case findErr == nil:
				if err := tx.Model(&CartItem{}).Where("id = ?", item.ID).UpdateColumns(map[string]interface{}{
					"quantity":   gorm.Expr("quantity + ?", qty),
					"updated_at": time.Now().UTC(),
				}).Error; err != nil {
					return err
				}
				return tx.Where("id = ?", item.ID).First(&item).Error
			case errors.Is(findErr, gorm.ErrRecordNotFound):
				item = CartItem{
					ID:        uuid.New(),
					CartID:    cartID,
					BundleID:  ref.BundleID,
					ProductID: ref.ProductID,
					Quantity:  qty,
				}
				return tx.Create(&item).Error
			default:
				return findErr
			}
		})
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}
	return &item, nil
}

// SetQuantity overwrites the quantity of a line in the cart
func (s *GormStore) SetQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) (*CartItem, error) {
	result := s.db.WithContext(ctx).Model(&CartItem{}).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		Updates(map[string]interface{}{"quantity": qty, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrCartItemNotFound
	}

	var item CartItem
	if err := s.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to load cart item: %w", err)
	}
	return &item, nil
}

// DeleteItem removes one line from the cart
func (s *GormStore) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).Delete(&CartItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove cart item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

// DeleteAll empties the cart and reports how many lines were removed
func (s *GormStore) DeleteAll(ctx context.Context, cartID uuid.UUID) (int64, error) {
	result := s.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&CartItem{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", result.Error)
	}
	return result.RowsAffected, nil
}
