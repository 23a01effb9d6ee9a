// internal/domain/inventory/service.go
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrBundleNotFound  = errors.New("bundle not found")
	ErrInvalidQuantity = errors.New("adjustment quantity must be positive")
)

// Store applies one stock change atomically
type Store interface {
	Decrement(ctx context.Context, bundleID uuid.UUID, qty int, ref Reference) (Outcome, error)
	Increment(ctx context.Context, bundleID uuid.UUID, qty int, ref Reference) (Outcome, error)
	Outstanding(ctx context.Context, ref Reference) ([]Adjustment, error)
}

// Service is the stock adjuster
type Service struct {
	store Store
	log   logrus.FieldLogger
}

// NewService creates a new inventory service
func NewService(store Store, log logrus.FieldLogger) *Service {
	return &Service{store: store, log: log}
}

// Deduct takes stock for every item independently. A failing item never
// blocks or rolls back the others.
func (s *Service) Deduct(ctx context.Context, items []Adjustment, ref Reference) AdjustmentResult {
	return s.run(ctx, items, ref, "deduct", s.store.Decrement)
}

// Restore puts stock back for every item independently
func (s *Service) Restore(ctx context.Context, items []Adjustment, ref Reference) AdjustmentResult {
	return s.run(ctx, items, ref, "restore", s.store.Increment)
}

// RestoreOutstanding puts back exactly what was taken for ref and not yet
// returned. Clamped deductions only count the units actually removed, so
// calling it again after a partial failure never over-restores.
func (s *Service) RestoreOutstanding(ctx context.Context, ref Reference) (AdjustmentResult, error) {
	items, err := s.store.Outstanding(ctx, ref)
	if err != nil {
		return AdjustmentResult{}, fmt.Errorf("failed to compute outstanding stock for %s %s: %w", ref.Type, ref.ID, err)
	}
	if len(items) == 0 {
		return AdjustmentResult{Success: true, Applied: []Outcome{}, Failed: []Failure{}}, nil
	}
	return s.Restore(ctx, items, ref), nil
}

type applyFunc func(ctx context.Context, bundleID uuid.UUID, qty int, ref Reference) (Outcome, error)

func (s *Service) run(ctx context.Context, items []Adjustment, ref Reference, op string, apply applyFunc) AdjustmentResult {
	result := AdjustmentResult{
		Applied: make([]Outcome, 0, len(items)),
		Failed:  []Failure{},
	}

	for _, item := range items {
		if item.Quantity <= 0 {
			result.Failed = append(result.Failed, Failure{
				BundleID: item.BundleID,
				Quantity: item.Quantity,
				Reason:   ErrInvalidQuantity.Error(),
			})
			continue
		}

		outcome, err := apply(ctx, item.BundleID, item.Quantity, ref)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"op":        op,
				"bundle_id": item.BundleID,
				"quantity":  item.Quantity,
				"reference": ref.ID,
			}).Warn("Stock adjustment failed")

			result.Failed = append(result.Failed, Failure{
				BundleID: item.BundleID,
				Quantity: item.Quantity,
				Reason:   err.Error(),
			})
			continue
		}

		if outcome.IsNowOutOfStock {
			s.log.WithFields(logrus.Fields{
				"bundle_id": item.BundleID,
				"reference": ref.ID,
			}).Info("Bundle is now out of stock")
		}
		result.Applied = append(result.Applied, outcome)
	}

	result.Success = len(result.Failed) == 0
	return result
}
