package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*Order
	lines    map[uuid.UUID][]OrderLine
	history  []StatusHistory
	payments map[string]*PaymentRecord

	failLines error
	failGet   error
	deleted   []uuid.UUID
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders:   make(map[uuid.UUID]*Order),
		lines:    make(map[uuid.UUID][]OrderLine),
		payments: make(map[string]*PaymentRecord),
	}
}

func (m *memoryStore) InsertHeader(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.GatewayOrderID != nil {
		for _, existing := range m.orders {
			if existing.GatewayOrderID != nil && *existing.GatewayOrderID == *o.GatewayOrderID {
				return ErrDuplicateOrder
			}
		}
	}
	cp := *o
	cp.CreatedAt = time.Now()
	m.orders[o.ID] = &cp
	return nil
}

func (m *memoryStore) InsertLines(_ context.Context, lines []OrderLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLines != nil {
		return m.failLines
	}
	for _, l := range lines {
		m.lines[l.OrderID] = append(m.lines[l.OrderID], l)
	}
	return nil
}

func (m *memoryStore) DeleteHeader(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, id)
	delete(m.lines, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memoryStore) Get(_ context.Context, id uuid.UUID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return m.snapshot(o), nil
}

func (m *memoryStore) GetByGatewayOrderID(_ context.Context, gatewayOrderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.GatewayOrderID != nil && *o.GatewayOrderID == gatewayOrderID {
			return m.snapshot(o), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *memoryStore) snapshot(o *Order) *Order {
	cp := *o
	cp.Lines = append([]OrderLine(nil), m.lines[o.ID]...)
	return &cp
}

func (m *memoryStore) List(_ context.Context, f Filter) ([]Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *m.snapshot(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if f.Offset >= len(out) {
		return []Order{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[f.Offset:end], total, nil
}

func (m *memoryStore) UpdateIf(_ context.Context, id uuid.UUID, g Guard, fields map[string]interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, nil
	}
	if len(g.StatusIn) > 0 && !containsStatus(g.StatusIn, o.Status) {
		return false, nil
	}
	if len(g.PaymentStatusIn) > 0 && !containsPaymentStatus(g.PaymentStatusIn, o.PaymentStatus) {
		return false, nil
	}
	if g.UserID != nil && o.UserID != *g.UserID {
		return false, nil
	}

	for k, v := range fields {
		switch k {
		case "status":
			o.Status = Status(v.(string))
		case "payment_status":
			o.PaymentStatus = PaymentStatus(v.(string))
		case "gateway_payment_id":
			s := v.(string)
			o.GatewayPaymentID = &s
		case "needs_review":
			o.NeedsReview = v.(bool)
		case "review_reason":
			o.ReviewReason = v.(string)
		case "confirmed_at":
			t := v.(time.Time)
			o.ConfirmedAt = &t
		case "delivered_at":
			t := v.(time.Time)
			o.DeliveredAt = &t
		case "cancelled_at":
			t := v.(time.Time)
			o.CancelledAt = &t
		default:
			return false, errors.New("unexpected field " + k)
		}
	}
	return true, nil
}

func (m *memoryStore) AppendHistory(_ context.Context, h *StatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *h)
	return nil
}

func (m *memoryStore) History(_ context.Context, orderID uuid.UUID) ([]StatusHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StatusHistory
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].OrderID == orderID {
			out = append(out, m.history[i])
		}
	}
	return out, nil
}

func (m *memoryStore) InsertPayment(_ context.Context, p *PaymentRecord) (*PaymentRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.payments[p.GatewayPaymentID]; ok {
		return existing, false, nil
	}
	cp := *p
	m.payments[p.GatewayPaymentID] = &cp
	return &cp, true, nil
}

func containsStatus(in []Status, s Status) bool {
	for _, v := range in {
		if v == s {
			return true
		}
	}
	return false
}

func containsPaymentStatus(in []PaymentStatus, s PaymentStatus) bool {
	for _, v := range in {
		if v == s {
			return true
		}
	}
	return false
}
