// internal/domain/outbox/store.go
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore persists outbox events and repair tasks in postgres
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates an outbox store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AddEvent appends an event to the outbox
func (s *GormStore) AddEvent(ctx context.Context, e *Event) error {
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to write outbox event: %w", err)
	}
	return nil
}

// UnprocessedEvents returns the oldest unpublished events
func (s *GormStore) UnprocessedEvents(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox events: %w", err)
	}
	return events, nil
}

// MarkEventProcessed stamps an event as published
func (s *GormStore) MarkEventProcessed(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).
		Model(&Event{}).
		Where("id = ? AND processed_at IS NULL", id).
		Update("processed_at", time.Now().UTC()).Error
}

// AddRepair records a failed side effect
func (s *GormStore) AddRepair(ctx context.Context, t *RepairTask) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("failed to write repair task: %w", err)
	}
	return nil
}

// OpenRepairs returns unresolved tasks that still have attempts left
func (s *GormStore) OpenRepairs(ctx context.Context, maxAttempts, limit int) ([]RepairTask, error) {
	var tasks []RepairTask
	err := s.db.WithContext(ctx).
		Where("resolved_at IS NULL AND attempts < ?", maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repair tasks: %w", err)
	}
	return tasks, nil
}

// ListOpenRepairs pages through every unresolved task for operators
func (s *GormStore) ListOpenRepairs(ctx context.Context, offset, limit int) ([]RepairTask, int64, error) {
	query := s.db.WithContext(ctx).Model(&RepairTask{}).Where("resolved_at IS NULL")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count repair tasks: %w", err)
	}

	var tasks []RepairTask
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&tasks).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list repair tasks: %w", err)
	}
	return tasks, total, nil
}

// ResolveRepair closes a task after a successful retry
func (s *GormStore) ResolveRepair(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).
		Model(&RepairTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"resolved_at": now,
			"attempts":    gorm.Expr("attempts + 1"),
			"last_error":  "",
			"updated_at":  now,
		}).Error
}

// RecordRepairFailure bumps the attempt counter and keeps the last error
func (s *GormStore) RecordRepairFailure(ctx context.Context, id uuid.UUID, cause error) error {
	return s.db.WithContext(ctx).
		Model(&RepairTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause.Error(),
			"updated_at": time.Now().UTC(),
		}).Error
}
