// internal/domain/shipment/service.go
package shipment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidRequest = errors.New("shipment request needs an order id and a positive weight")

// Creator books a shipment for an order
type Creator interface {
	CreateShipment(ctx context.Context, req Request) (*Result, error)
}

// Store persists shipment stubs
type Store interface {
	Insert(ctx context.Context, s *Shipment) (*Shipment, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*Shipment, error)
}

// RateCardCreator prices shipments from a rate card and records them for
// manual review
type RateCardCreator struct {
	card  RateCard
	store Store
	log   logrus.FieldLogger
}

// NewRateCardCreator creates a shipment creator
func NewRateCardCreator(card RateCard, store Store, log logrus.FieldLogger) *RateCardCreator {
	return &RateCardCreator{card: card, store: store, log: log}
}

// CreateShipment records one stub per order. Calling it again for the same
// order returns the stub created first.
func (c *RateCardCreator) CreateShipment(ctx context.Context, req Request) (*Result, error) {
	if req.OrderID == uuid.Nil || req.WeightGrams <= 0 {
		return nil, ErrInvalidRequest
	}

	stub := &Shipment{
		ID:            uuid.New(),
		OrderID:       req.OrderID,
		Destination:   req.Destination,
		WeightGrams:   req.WeightGrams,
		Mode:          req.Mode,
		PaymentMode:   req.PaymentMode,
		EstimatedCost: c.card.Estimate(req.WeightGrams, req.Mode, req.PaymentMode),
		Status:        StatusPendingReview,
	}

	saved, err := c.store.Insert(ctx, stub)
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"order_id":       saved.OrderID,
		"shipment_id":    saved.ID,
		"weight_grams":   saved.WeightGrams,
		"estimated_cost": saved.EstimatedCost.StringFixed(2),
	}).Info("Shipment stub created")

	return &Result{ShipmentID: saved.ID, EstimatedCost: saved.EstimatedCost, Status: saved.Status}, nil
}

// GormStore persists shipments in postgres
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a shipment store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Insert(ctx context.Context, stub *Shipment) (*Shipment, error) {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(stub).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create shipment: %w", err)
	}
	return s.GetByOrder(ctx, stub.OrderID)
}

func (s *GormStore) GetByOrder(ctx context.Context, orderID uuid.UUID) (*Shipment, error) {
	var stub Shipment
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&stub).Error; err != nil {
		return nil, fmt.Errorf("failed to load shipment: %w", err)
	}
	return &stub, nil
}
