package handlers

import (
	"bytes"
	"context"

	"github.com/google/uuid"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/checkout"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/outbox"
	"github.com/your-org/storefront-backend/internal/domain/payment"
)

type fakeCarts struct {
	view    *cart.View
	stock   *cart.StockReport
	err     error
	added   cart.AddItemRequest
	updated int
	cleared bool
}

func (f *fakeCarts) GetCart(ctx context.Context, ownerID uuid.UUID) (*cart.View, error) {
	return f.view, f.err
}

func (f *fakeCarts) CheckStock(ctx context.Context, ownerID uuid.UUID) (*cart.StockReport, error) {
	return f.stock, f.err
}

func (f *fakeCarts) AddItem(ctx context.Context, ownerID uuid.UUID, req cart.AddItemRequest) (*cart.View, error) {
	f.added = req
	return f.view, f.err
}

func (f *fakeCarts) UpdateQuantity(ctx context.Context, ownerID, lineID uuid.UUID, qty int) (*cart.View, error) {
	f.updated = qty
	return f.view, f.err
}

func (f *fakeCarts) RemoveItem(ctx context.Context, ownerID, lineID uuid.UUID) (*cart.View, error) {
	return f.view, f.err
}

func (f *fakeCarts) Clear(ctx context.Context, ownerID uuid.UUID) error {
	f.cleared = true
	return f.err
}

type fakeCheckout struct {
	order      *order.Order
	report     *checkout.PlacementReport
	transition *order.Transition
	err        error

	placedFor    uuid.UUID
	placed       checkout.PlaceOrderRequest
	cancelReason string
	adminStatus  order.Status
}

func (f *fakeCheckout) Quote(ctx context.Context, ownerID uuid.UUID, req checkout.QuoteRequest) (*checkout.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &checkout.Quote{CanPlace: true}, nil
}

func (f *fakeCheckout) PlaceOrder(ctx context.Context, ownerID uuid.UUID, req checkout.PlaceOrderRequest) (*order.Order, *checkout.PlacementReport, error) {
	f.placedFor = ownerID
	f.placed = req
	return f.order, f.report, f.err
}

func (f *fakeCheckout) CancelOrder(ctx context.Context, orderID, ownerID uuid.UUID, reason string) (*order.Order, *checkout.PlacementReport, error) {
	f.cancelReason = reason
	return f.order, f.report, f.err
}

func (f *fakeCheckout) AdminUpdateStatus(ctx context.Context, orderID uuid.UUID, status order.Status, note string) (*order.Transition, *checkout.PlacementReport, error) {
	f.adminStatus = status
	return f.transition, f.report, f.err
}

type fakeOrders struct {
	order   *order.Order
	list    *order.ListResponse
	err     error
	listReq order.ListRequest
	payment order.PaymentStatus
}

func (f *fakeOrders) Get(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	return f.order, f.err
}

func (f *fakeOrders) GetForOwner(ctx context.Context, orderID, ownerID uuid.UUID) (*order.Order, error) {
	return f.order, f.err
}

func (f *fakeOrders) List(ctx context.Context, req order.ListRequest) (*order.ListResponse, error) {
	f.listReq = req
	return f.list, f.err
}

func (f *fakeOrders) History(ctx context.Context, orderID uuid.UUID) ([]order.StatusHistory, error) {
	return nil, nil
}

func (f *fakeOrders) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status order.PaymentStatus, gatewayPaymentID *string) (*order.Order, error) {
	f.payment = status
	return f.order, f.err
}

type fakeInvoices struct{}

func (fakeInvoices) GenerateInvoice(o *order.Order) (*bytes.Buffer, error) {
	return bytes.NewBufferString("%PDF-1.4 " + o.OrderNumber), nil
}

type fakePayments struct {
	intent  *payment.IntentResponse
	result  *payment.VerifyResult
	webhook payment.WebhookResult
	err     error

	signature string
	body      []byte
}

func (f *fakePayments) CreateIntent(ctx context.Context, ownerID uuid.UUID, req payment.IntentRequest) (*payment.IntentResponse, error) {
	return f.intent, f.err
}

func (f *fakePayments) VerifyAndCommit(ctx context.Context, ownerID uuid.UUID, req payment.VerifyRequest) (*payment.VerifyResult, error) {
	return f.result, f.err
}

func (f *fakePayments) HandleWebhook(ctx context.Context, signature string, rawBody []byte) payment.WebhookResult {
	f.signature = signature
	f.body = rawBody
	return f.webhook
}

type fakeRepairs struct {
	tasks  []outbox.RepairTask
	offset int
	limit  int
}

func (f *fakeRepairs) ListOpenRepairs(ctx context.Context, offset, limit int) ([]outbox.RepairTask, int64, error) {
	f.offset, f.limit = offset, limit
	return f.tasks, int64(len(f.tasks)), nil
}
