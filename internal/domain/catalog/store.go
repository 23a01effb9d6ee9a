// internal/domain/catalog/store.go
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrBundleNotFound is returned when a bundle id does not exist
var ErrBundleNotFound = errors.New("bundle not found")

// GormStore reads bundles and products from postgres
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a catalog store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// BundlesByID loads the given bundles keyed by id. Missing ids are simply
// absent from the map.
func (s *GormStore) BundlesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Bundle, error) {
	out := make(map[uuid.UUID]Bundle, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var bundles []Bundle
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&bundles).Error; err != nil {
		return nil, fmt.Errorf("failed to load bundles: %w", err)
	}
	for _, b := range bundles {
		out[b.ID] = b
	}
	return out, nil
}

// ProductsByID loads the given products keyed by id
func (s *GormStore) ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	out := make(map[uuid.UUID]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var products []Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// ListActiveBundles returns sellable bundles with their products
func (s *GormStore) ListActiveBundles(ctx context.Context, offset, limit int) ([]Bundle, int64, error) {
	var (
		bundles []Bundle
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&Bundle{}).Where("is_active = ?", true)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bundles: %w", err)
	}

	err := query.
		Preload("Items.Product").
		Order("name ASC").
		Offset(offset).
		Limit(limit).
		Find(&bundles).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bundles: %w", err)
	}

	return bundles, total, nil
}

// GetBundle loads one bundle with its products
func (s *GormStore) GetBundle(ctx context.Context, id uuid.UUID) (*Bundle, error) {
	var bundle Bundle
	err := s.db.WithContext(ctx).Preload("Items.Product").Where("id = ?", id).First(&bundle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBundleNotFound
		}
		return nil, fmt.Errorf("failed to retrieve bundle: %w", err)
	}
	return &bundle, nil
}
