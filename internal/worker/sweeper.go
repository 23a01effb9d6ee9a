// internal/worker/sweeper.go
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/outbox"
	"github.com/your-org/storefront-backend/internal/infrastructure/events"
)

// Store is the outbox persistence the sweeper drains
type Store interface {
	UnprocessedEvents(ctx context.Context, limit int) ([]outbox.Event, error)
	MarkEventProcessed(ctx context.Context, id int64) error
	OpenRepairs(ctx context.Context, maxAttempts, limit int) ([]outbox.RepairTask, error)
	ResolveRepair(ctx context.Context, id uuid.UUID) error
	RecordRepairFailure(ctx context.Context, id uuid.UUID, cause error) error
}

// Repairer re-runs a failed side effect
type Repairer interface {
	RetryStep(ctx context.Context, task outbox.RepairTask) error
}

// Sweeper publishes outbox events and retries failed side effects on two
// independent tickers
type Sweeper struct {
	store     Store
	publisher events.Publisher
	repairer  Repairer
	cfg       config.WorkerConfig
	log       logrus.FieldLogger
}

// NewSweeper creates a new sweeper
func NewSweeper(store Store, publisher events.Publisher, repairer Repairer, cfg config.WorkerConfig, log logrus.FieldLogger) *Sweeper {
	if cfg.EventInterval <= 0 {
		cfg.EventInterval = 2 * time.Second
	}
	if cfg.RepairInterval <= 0 {
		cfg.RepairInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Sweeper{
		store:     store,
		publisher: publisher,
		repairer:  repairer,
		cfg:       cfg,
		log:       log.WithField("component", "sweeper"),
	}
}

// Run blocks until ctx is cancelled. It returns immediately when the
// sweeper is disabled.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("Sweeper disabled, outbox events and repairs will not be processed")
		return
	}

	eventTicker := time.NewTicker(s.cfg.EventInterval)
	repairTicker := time.NewTicker(s.cfg.RepairInterval)
	defer eventTicker.Stop()
	defer repairTicker.Stop()

	s.log.WithFields(logrus.Fields{
		"event_interval":  s.cfg.EventInterval.String(),
		"repair_interval": s.cfg.RepairInterval.String(),
	}).Info("Sweeper started")

	for {
		select {
		case <-eventTicker.C:
			s.PublishPending(ctx)
		case <-repairTicker.C:
			s.RepairPending(ctx)
		case <-ctx.Done():
			s.log.Info("Sweeper stopped")
			return
		}
	}
}

// PublishPending publishes one batch of unprocessed events and returns how
// many were delivered. Failed events stay unprocessed for the next tick.
func (s *Sweeper) PublishPending(ctx context.Context) int {
	pending, err := s.store.UnprocessedEvents(ctx, s.cfg.BatchSize)
	if err != nil {
		s.log.WithError(err).Error("Failed to fetch outbox events")
		return 0
	}

	published := 0
	for _, e := range pending {
		if ctx.Err() != nil {
			break
		}
		entry := s.log.WithFields(logrus.Fields{"event_id": e.ID, "event_type": e.EventType})

		if err := s.publisher.Publish(ctx, e); err != nil {
			entry.WithError(err).Warn("Failed to publish event")
			continue
		}
		if err := s.store.MarkEventProcessed(ctx, e.ID); err != nil {
			entry.WithError(err).Warn("Failed to mark event processed")
			continue
		}
		published++
	}
	return published
}

// RepairPending retries one batch of open repair tasks
func (s *Sweeper) RepairPending(ctx context.Context) (resolved, failed int) {
	tasks, err := s.store.OpenRepairs(ctx, s.cfg.MaxAttempts, s.cfg.BatchSize)
	if err != nil {
		s.log.WithError(err).Error("Failed to fetch repair tasks")
		return 0, 0
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		entry := s.log.WithFields(logrus.Fields{
			"task_id":  task.ID,
			"order_id": task.OrderID,
			"step":     task.Step,
			"attempt":  task.Attempts + 1,
		})

		if err := s.repairer.RetryStep(ctx, task); err != nil {
			failed++
			if recErr := s.store.RecordRepairFailure(ctx, task.ID, err); recErr != nil {
				entry.WithError(recErr).Error("Failed to record repair failure")
			}
			if task.Attempts+1 >= s.cfg.MaxAttempts {
				entry.WithError(err).Error("Repair task exhausted its attempts")
			} else {
				entry.WithError(err).Warn("Repair attempt failed")
			}
			continue
		}

		if err := s.store.ResolveRepair(ctx, task.ID); err != nil {
			entry.WithError(err).Error("Failed to resolve repair task")
			continue
		}
		resolved++
		entry.Info("Repair task resolved")
	}
	return resolved, failed
}
