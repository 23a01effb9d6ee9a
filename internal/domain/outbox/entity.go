// internal/domain/outbox/entity.go
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Step names a best-effort side effect of order placement that can be
// retried later
type Step string

const (
	StepPaymentRecord Step = "payment_record"
	StepStockDeduct   Step = "stock_deduct"
	StepStockRestore  Step = "stock_restore"
	StepCartClear     Step = "cart_clear"
	StepShipment      Step = "shipment"
	StepEventPublish  Step = "event_publish"
)

// EventType names a domain event written to the outbox
type EventType string

const (
	EventOrderPlaced        EventType = "order.placed"
	EventOrderCancelled     EventType = "order.cancelled"
	EventPaymentCaptured    EventType = "payment.captured"
	EventPaymentFailed      EventType = "payment.failed"
	EventOrderStatusChanged EventType = "order.status_changed"
)

// RepairTask is a failed side effect waiting for the sweeper
type RepairTask struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	Step       Step            `gorm:"size:30;not null" json:"step"`
	Payload    json.RawMessage `gorm:"type:jsonb;serializer:json" json:"payload"`
	Attempts   int             `gorm:"not null" json:"attempts"`
	LastError  string          `gorm:"type:text" json:"last_error"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Event is an outbox row waiting to be published
type Event struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AggregateID string          `gorm:"size:100;not null" json:"aggregate_id"`
	EventType   EventType       `gorm:"size:50;not null" json:"event_type"`
	Payload     json.RawMessage `gorm:"type:jsonb;serializer:json" json:"payload"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TableName overrides
func (RepairTask) TableName() string { return "repair_tasks" }
func (Event) TableName() string      { return "outbox_events" }

// NewRepairTask builds a task for step with a JSON payload
func NewRepairTask(orderID uuid.UUID, step Step, payload interface{}, cause error) (*RepairTask, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal repair payload: %w", err)
	}
	task := &RepairTask{
		ID:      uuid.New(),
		OrderID: orderID,
		Step:    step,
		Payload: raw,
	}
	if cause != nil {
		task.LastError = cause.Error()
	}
	return task, nil
}

// NewEvent builds an outbox event with a JSON payload
func NewEvent(aggregateID string, eventType EventType, payload interface{}) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &Event{AggregateID: aggregateID, EventType: eventType, Payload: raw}, nil
}

// Decode unmarshals the task payload into v
func (t *RepairTask) Decode(v interface{}) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("repair task %s has no payload", t.ID)
	}
	return json.Unmarshal(t.Payload, v)
}
