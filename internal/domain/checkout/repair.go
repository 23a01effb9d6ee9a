// internal/domain/checkout/repair.go
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/outbox"
	"github.com/your-org/storefront-backend/internal/domain/shipment"
)

var ErrUnknownRepairStep = errors.New("unknown repair step")

type stockPayload struct {
	Reference inventory.Reference    `json:"reference"`
	Items     []inventory.Adjustment `json:"items,omitempty"`
}

type cartPayload struct {
	OwnerID uuid.UUID   `json:"owner_id"`
	LineIDs []uuid.UUID `json:"line_ids"`
}

type eventPayload struct {
	AggregateID string           `json:"aggregate_id"`
	EventType   outbox.EventType `json:"event_type"`
	Event       orderEvent       `json:"event"`
}

type eventLine struct {
	BundleID uuid.UUID `json:"bundle_id"`
	SKU      string    `json:"sku"`
	Quantity int       `json:"quantity"`
}

// orderEvent is the body published for every order event
type orderEvent struct {
	Type          outbox.EventType    `json:"type"`
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	UserID        uuid.UUID           `json:"user_id"`
	Status        order.Status        `json:"status"`
	PaymentStatus order.PaymentStatus `json:"payment_status"`
	PaymentMethod order.PaymentMethod `json:"payment_method"`
	FinalTotal    string              `json:"final_total"`
	Currency      string              `json:"currency"`
	NeedsReview   bool                `json:"needs_review"`
	Lines         []eventLine         `json:"lines,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

func newOrderEvent(o *order.Order, eventType outbox.EventType, at time.Time) orderEvent {
	ev := orderEvent{
		Type:          eventType,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		FinalTotal:    o.FinalTotal.StringFixed(2),
		Currency:      o.Currency,
		NeedsReview:   o.NeedsReview,
		OccurredAt:    at,
	}
	for _, l := range o.Lines {
		ev.Lines = append(ev.Lines, eventLine{BundleID: l.BundleID, SKU: l.SKU, Quantity: l.Quantity})
	}
	return ev
}

// RetryStep re-runs one failed side effect. A nil error resolves the task.
func (s *Service) RetryStep(ctx context.Context, task outbox.RepairTask) error {
	switch task.Step {
	case outbox.StepStockDeduct:
		return s.retryDeduct(ctx, task)

	case outbox.StepStockRestore:
		var p stockPayload
		if err := task.Decode(&p); err != nil {
			return err
		}
		result, err := s.stock.RestoreOutstanding(ctx, p.Reference)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("%d stock restorations still failing", len(result.Failed))
		}
		return nil

	case outbox.StepCartClear:
		var p cartPayload
		if err := task.Decode(&p); err != nil {
			return err
		}
		// only the ordered lines; the customer may have started a new cart
		for _, lineID := range p.LineIDs {
			if _, err := s.carts.RemoveItem(ctx, p.OwnerID, lineID); err != nil && !errors.Is(err, cart.ErrCartItemNotFound) {
				return err
			}
		}
		return nil

	case outbox.StepShipment:
		var req shipment.Request
		if err := task.Decode(&req); err != nil {
			return err
		}
		_, err := s.shipments.CreateShipment(ctx, req)
		return err

	case outbox.StepPaymentRecord:
		var record order.PaymentRecord
		if err := task.Decode(&record); err != nil {
			return err
		}
		_, err := s.orders.RecordPayment(ctx, &record)
		return err

	case outbox.StepEventPublish:
		var p eventPayload
		if err := task.Decode(&p); err != nil {
			return err
		}
		ev, err := outbox.NewEvent(p.AggregateID, p.EventType, p.Event)
		if err != nil {
			return err
		}
		return s.outbox.AddEvent(ctx, ev)
	}

	return fmt.Errorf("%w: %s", ErrUnknownRepairStep, task.Step)
}

// retryDeduct takes the stock that could not be taken at placement. A
// cancelled order needs nothing. When only part of the retry succeeds
// the rest is queued as a fresh task so applied items are never taken
// twice.
func (s *Service) retryDeduct(ctx context.Context, task outbox.RepairTask) error {
	var p stockPayload
	if err := task.Decode(&p); err != nil {
		return err
	}

	o, err := s.orders.Get(ctx, task.OrderID)
	if err != nil {
		return err
	}
	if o.Status == order.StatusCancelled {
		s.log.WithField("order_id", o.ID).Info("Skipping stock deduction for cancelled order")
		return nil
	}

	result := s.stock.Deduct(ctx, p.Items, p.Reference)
	if result.Success {
		return nil
	}
	if len(result.Applied) == 0 {
		return fmt.Errorf("%d stock deductions still failing", len(result.Failed))
	}

	remaining := fmt.Errorf("%d stock deductions still failing", len(result.Failed))
	s.queueRepair(ctx, task.OrderID, outbox.StepStockDeduct,
		stockPayload{Reference: p.Reference, Items: result.FailedAdjustments()}, remaining)
	return nil
}
