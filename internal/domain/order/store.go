// internal/domain/order/store.go
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Guard restricts a conditional update to rows in an expected state
type Guard struct {
	StatusIn        []Status
	PaymentStatusIn []PaymentStatus
	UserID          *uuid.UUID
}

// Filter selects orders for listing
type Filter struct {
	UserID *uuid.UUID
	Status Status
	Offset int
	Limit  int
}

// Store is the order persistence port
type Store interface {
	InsertHeader(ctx context.Context, o *Order) error
	InsertLines(ctx context.Context, lines []OrderLine) error
	DeleteHeader(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, int64, error)
	UpdateIf(ctx context.Context, id uuid.UUID, guard Guard, fields map[string]interface{}) (bool, error)
	AppendHistory(ctx context.Context, h *StatusHistory) error
	History(ctx context.Context, orderID uuid.UUID) ([]StatusHistory, error)
	InsertPayment(ctx context.Context, p *PaymentRecord) (*PaymentRecord, bool, error)
}

// GormStore persists orders in postgres
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates an order store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) InsertHeader(ctx context.Context, o *Order) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(o).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateOrder
	}
	return err
}

func (s *GormStore) InsertLines(ctx context.Context, lines []OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&lines).Error
}

func (s *GormStore) DeleteHeader(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Delete(&Order{}, "id = ?", id).Error
}

func (s *GormStore) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *GormStore) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error) {
	return s.first(ctx, "gateway_order_id = ?", gatewayOrderID)
}

func (s *GormStore) first(ctx context.Context, query string, args ...interface{}) (*Order, error) {
	var o Order
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, name ASC")
		}).
		Where(query, args...).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", err)
	}
	return &o, nil
}

func (s *GormStore) List(ctx context.Context, f Filter) ([]Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&Order{})
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", string(f.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []Order
	err := query.
		Preload("Lines").
		Order("created_at DESC").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to retrieve orders: %w", err)
	}
	return orders, total, nil
}

// UpdateIf applies fields only when the row still matches guard and
// reports whether a row changed.
func (s *GormStore) UpdateIf(ctx context.Context, id uuid.UUID, guard Guard, fields map[string]interface{}) (bool, error) {
	query := s.db.WithContext(ctx).Model(&Order{}).Where("id = ?", id)
	if len(guard.StatusIn) > 0 {
		query = query.Where("status IN ?", statusStrings(guard.StatusIn))
	}
	if len(guard.PaymentStatusIn) > 0 {
		query = query.Where("payment_status IN ?", paymentStatusStrings(guard.PaymentStatusIn))
	}
	if guard.UserID != nil {
		query = query.Where("user_id = ?", *guard.UserID)
	}

	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["updated_at"] = time.Now().UTC()

	result := query.Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update order: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) AppendHistory(ctx context.Context, h *StatusHistory) error {
	return s.db.WithContext(ctx).Create(h).Error
}

func (s *GormStore) History(ctx context.Context, orderID uuid.UUID) ([]StatusHistory, error) {
	var history []StatusHistory
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&history).Error
	return history, err
}

// InsertPayment stores a payment record. A second record for the same
// gateway payment id returns the existing row with created=false.
func (s *GormStore) InsertPayment(ctx context.Context, p *PaymentRecord) (*PaymentRecord, bool, error) {
	db := s.db.WithContext(ctx)

	err := db.Create(p).Error
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, fmt.Errorf("failed to record payment: %w", err)
	}

	var existing PaymentRecord
	if err := db.Where("gateway_payment_id = ?", p.GatewayPaymentID).First(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("failed to load existing payment: %w", err)
	}
	return &existing, false, nil
}

func statusStrings(in []Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func paymentStatusStrings(in []PaymentStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
