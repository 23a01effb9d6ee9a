package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/domain/checkout"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/outbox"
	"github.com/your-org/storefront-backend/internal/domain/pricing"
	redisdb "github.com/your-org/storefront-backend/internal/infrastructure/database/redis"
	"github.com/your-org/storefront-backend/internal/pkg/apperr"
	"github.com/your-org/storefront-backend/internal/pkg/logger"
)

const (
	testKeySecret     = "key_secret_for_tests"
	testWebhookSecret = "webhook_secret_for_tests"
)

type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	fetchErr  error
	created   []int64
	payments  map[string]*GatewayPayment
	nextID    int
}

func (g *fakeGateway) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string, _ map[string]string) (*GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.nextID++
	g.created = append(g.created, amountMinor)
	return &GatewayOrder{
		ID:       "order_test" + string(rune('A'+g.nextID-1)),
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) FetchPayment(_ context.Context, paymentID string) (*GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, apperr.Upstream("payment not found", false, nil)
	}
	return p, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	byGW     map[string]*order.Order
	payments []*order.PaymentRecord
	findErr  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{byGW: map[string]*order.Order{}}
}

func (l *fakeLedger) add(o *order.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byGW[*o.GatewayOrderID] = o
}

func (l *fakeLedger) FindByGatewayOrderID(_ context.Context, id string) (*order.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.findErr != nil {
		return nil, l.findErr
	}
	o, ok := l.byGW[id]
	if !ok {
		return nil, apperr.NotFound(order.ErrOrderNotFound.Error(), order.ErrOrderNotFound)
	}
	return o, nil
}

func (l *fakeLedger) find(id uuid.UUID) *order.Order {
	for _, o := range l.byGW {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (l *fakeLedger) MarkPaid(_ context.Context, id uuid.UUID, paymentID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o := l.find(id)
	if o == nil || o.PaymentStatus == order.PaymentPaid {
		return false, nil
	}
	o.PaymentStatus = order.PaymentPaid
	o.GatewayPaymentID = &paymentID
	if o.Status == order.StatusPending {
		o.Status = order.StatusConfirmed
	}
	return true, nil
}

func (l *fakeLedger) MarkPaymentFailed(_ context.Context, id uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o := l.find(id)
	if o == nil || o.PaymentStatus != order.PaymentUnpaid {
		return false, nil
	}
	o.PaymentStatus = order.PaymentFailed
	return true, nil
}

func (l *fakeLedger) RecordPayment(_ context.Context, record *order.PaymentRecord) (*order.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payments = append(l.payments, record)
	return record, nil
}

type fakePlacer struct {
	mu         sync.Mutex
	ledger     *fakeLedger
	total      decimal.Decimal
	prepareErr error
	placeErr   error
	placed     []checkout.PlaceOrderRequest
	owners     []uuid.UUID
}

func (p *fakePlacer) Prepare(_ context.Context, _ uuid.UUID, _ checkout.Details) (*checkout.Prepared, error) {
	if p.prepareErr != nil {
		return nil, p.prepareErr
	}
	return &checkout.Prepared{
		Mode:   pricing.DeliverySurface,
		Totals: pricing.Totals{Subtotal: p.total, Total: p.total, FinalTotal: p.total},
	}, nil
}

func (p *fakePlacer) PlaceOrder(_ context.Context, ownerID uuid.UUID, req checkout.PlaceOrderRequest) (*order.Order, *checkout.PlacementReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.placeErr != nil {
		return nil, nil, p.placeErr
	}
	p.placed = append(p.placed, req)
	p.owners = append(p.owners, ownerID)

	gwID := req.Payment.GatewayOrderID
	o := &order.Order{
		ID:             uuid.New(),
		OrderNumber:    order.GenerateOrderNumber(time.Now()),
		UserID:         ownerID,
		Status:         order.StatusConfirmed,
		PaymentStatus:  order.PaymentPaid,
		PaymentMethod:  order.PaymentMethodOnline,
		FinalTotal:     p.total,
		Currency:       "INR",
		GatewayOrderID: &gwID,
	}
	if req.Payment.ExpectedAmount != nil && !req.Payment.ExpectedAmount.Equal(p.total) {
		o.NeedsReview = true
	}
	p.ledger.add(o)
	return o, &checkout.PlacementReport{OrderID: o.ID.String(), OrderNumber: o.OrderNumber}, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*outbox.Event
}

func (e *fakeEvents) AddEvent(_ context.Context, ev *outbox.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

type reconcilerHarness struct {
	rec     *Reconciler
	mr      *miniredis.Miniredis
	intents *RedisIntentStore
	gateway *fakeGateway
	ledger  *fakeLedger
	placer  *fakePlacer
	events  *fakeEvents
}

func newReconcilerHarness(t *testing.T) *reconcilerHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ledger := newFakeLedger()
	h := &reconcilerHarness{
		mr:      mr,
		intents: NewRedisIntentStore(redisdb.Wrap(rdb)),
		gateway: &fakeGateway{payments: map[string]*GatewayPayment{}},
		ledger:  ledger,
		placer:  &fakePlacer{ledger: ledger, total: decimal.RequireFromString("1350.00")},
		events:  &fakeEvents{},
	}
	cfg := GatewayConfig{KeyID: "rzp_test_key", KeySecret: testKeySecret, WebhookSecret: testWebhookSecret, Currency: "INR"}
	h.rec = NewReconciler(cfg, h.gateway, h.intents, h.placer, h.ledger, h.events,
		Options{IntentTTL: time.Hour, LockTTL: 10 * time.Second}, logger.Discard())
	return h
}

func testDetails() checkout.Details {
	return checkout.Details{
		ShippingAddress: order.Address{Line1: "1 Park St", City: "Kolkata", State: "WB", Zip: "700016", Phone: "9000000000"},
		Delivery:        checkout.DeliveryRequest{Mode: "express"},
	}
}
