package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/outbox"
	"github.com/your-org/storefront-backend/internal/domain/shipment"
	"github.com/your-org/storefront-backend/internal/pkg/apperr"
)

type fakeCarts struct {
	mu       sync.Mutex
	views    map[uuid.UUID]*cart.View
	clearErr error
	cleared  []uuid.UUID
	removed  []uuid.UUID
	missing  map[uuid.UUID]bool
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{views: map[uuid.UUID]*cart.View{}, missing: map[uuid.UUID]bool{}}
}

func (f *fakeCarts) GetCart(_ context.Context, ownerID uuid.UUID) (*cart.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.views[ownerID]; ok {
		return v, nil
	}
	return &cart.View{CartID: uuid.New(), OwnerID: ownerID}, nil
}

func (f *fakeCarts) RemoveItem(_ context.Context, _ uuid.UUID, lineID uuid.UUID) (*cart.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[lineID] {
		return nil, apperr.NotFound(cart.ErrCartItemNotFound.Error(), cart.ErrCartItemNotFound)
	}
	f.removed = append(f.removed, lineID)
	return &cart.View{}, nil
}

func (f *fakeCarts) Clear(_ context.Context, ownerID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, ownerID)
	delete(f.views, ownerID)
	return nil
}

type fakeStock struct {
	mu         sync.Mutex
	failFor    map[uuid.UUID]bool
	deducted   []inventory.Adjustment
	restored   []inventory.Reference
	restoreErr error
}

func newFakeStock() *fakeStock {
	return &fakeStock{failFor: map[uuid.UUID]bool{}}
}

func (f *fakeStock) Deduct(_ context.Context, items []inventory.Adjustment, _ inventory.Reference) inventory.AdjustmentResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := inventory.AdjustmentResult{Applied: []inventory.Outcome{}, Failed: []inventory.Failure{}}
	for _, item := range items {
		if f.failFor[item.BundleID] {
			result.Failed = append(result.Failed, inventory.Failure{BundleID: item.BundleID, Quantity: item.Quantity, Reason: "bundle not found"})
			continue
		}
		f.deducted = append(f.deducted, item)
		result.Applied = append(result.Applied, inventory.Outcome{BundleID: item.BundleID, Quantity: item.Quantity})
	}
	result.Success = len(result.Failed) == 0
	return result
}

func (f *fakeStock) RestoreOutstanding(_ context.Context, ref inventory.Reference) (inventory.AdjustmentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restoreErr != nil {
		return inventory.AdjustmentResult{}, f.restoreErr
	}
	f.restored = append(f.restored, ref)
	return inventory.AdjustmentResult{Success: true}, nil
}

type fakeOrders struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*order.Order
	payments  []*order.PaymentRecord
	createErr error
	recordErr error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[uuid.UUID]*order.Order{}}
}

func (f *fakeOrders) Create(_ context.Context, header *order.Order, lines []order.OrderLine) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if !header.TotalsConsistent() {
		return nil, errors.New("totals mismatch")
	}
	header.ID = uuid.New()
	header.OrderNumber = order.GenerateOrderNumber(time.Now())
	for i := range lines {
		lines[i].ID = uuid.New()
		lines[i].OrderID = header.ID
	}
	header.Lines = lines
	f.orders[header.ID] = header
	return header, nil
}

func (f *fakeOrders) Get(_ context.Context, id uuid.UUID) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, apperr.NotFound(order.ErrOrderNotFound.Error(), order.ErrOrderNotFound)
	}
	return o, nil
}

func (f *fakeOrders) Cancel(_ context.Context, id, ownerID uuid.UUID, _ string) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.UserID != ownerID {
		return nil, apperr.NotFound(order.ErrOrderNotFound.Error(), order.ErrOrderNotFound)
	}
	if !o.CanBeCancelled() {
		return nil, apperr.Conflict(order.CodeOrderCannotBeCancelled, "cannot cancel", nil, order.ErrOrderCannotBeCancelled)
	}
	o.Status = order.StatusCancelled
	return o, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id uuid.UUID, status order.Status, _ string) (*order.Transition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, apperr.NotFound(order.ErrOrderNotFound.Error(), order.ErrOrderNotFound)
	}
	from := o.Status
	o.Status = status
	return &order.Transition{Order: o, From: from, To: status}, nil
}

func (f *fakeOrders) RecordPayment(_ context.Context, record *order.PaymentRecord) (*order.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	f.payments = append(f.payments, record)
	return record, nil
}

type fakeShipments struct {
	mu   sync.Mutex
	err  error
	reqs []shipment.Request
}

func (f *fakeShipments) CreateShipment(_ context.Context, req shipment.Request) (*shipment.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.reqs = append(f.reqs, req)
	return &shipment.Result{ShipmentID: uuid.New(), EstimatedCost: decimal.NewFromInt(40), Status: shipment.StatusPendingReview}, nil
}

type fakeOutbox struct {
	mu       sync.Mutex
	eventErr error
	events   []*outbox.Event
	repairs  []*outbox.RepairTask
}

func (f *fakeOutbox) AddEvent(_ context.Context, e *outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eventErr != nil {
		return f.eventErr
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeOutbox) AddRepair(_ context.Context, t *outbox.RepairTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repairs = append(f.repairs, t)
	return nil
}

func (f *fakeOutbox) repairSteps() []outbox.Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]outbox.Step, len(f.repairs))
	for i, r := range f.repairs {
		out[i] = r.Step
	}
	return out
}
