package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/outbox"
	"github.com/your-org/storefront-backend/internal/domain/pricing"
	"github.com/your-org/storefront-backend/internal/domain/shipment"
	"github.com/your-org/storefront-backend/internal/pkg/apperr"
	"github.com/your-org/storefront-backend/internal/pkg/logger"
)

type harness struct {
	svc       *Service
	carts     *fakeCarts
	stock     *fakeStock
	orders    *fakeOrders
	shipments *fakeShipments
	outbox    *fakeOutbox
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		carts:     newFakeCarts(),
		stock:     newFakeStock(),
		orders:    newFakeOrders(),
		shipments: &fakeShipments{},
		outbox:    &fakeOutbox{},
	}
	h.svc = NewService(h.carts, h.stock, h.orders, h.shipments, h.outbox,
		Options{ExpressCharge: decimal.NewFromInt(50), Currency: "INR"}, logger.Discard())
	return h
}

func intPtr(v int) *int { return &v }

func bundleLine(name, price string, qty int, stock *int) cart.Line {
	id := uuid.New()
	unit := decimal.RequireFromString(price)
	return cart.Line{
		LineID:     uuid.New(),
		BundleID:   &id,
		SKU:        "BND-" + name,
		Name:       name,
		Quantity:   qty,
		UnitPrice:  unit,
		LineTotal:  unit.Mul(decimal.NewFromInt(int64(qty))),
		StockLimit: stock,
		Available:  true,
	}
}

func (h *harness) withCart(owner uuid.UUID, lines ...cart.Line) *cart.View {
	v := &cart.View{CartID: uuid.New(), OwnerID: owner, Lines: lines}
	h.carts.views[owner] = v
	return v
}

func validDetails() Details {
	return Details{
		ShippingAddress: order.Address{
			Line1: "12 MG Road", City: "Bengaluru", State: "KA", Zip: "560001", Phone: "9999999999",
		},
		Delivery: DeliveryRequest{Mode: "express", EstimatedDays: 2},
	}
}

func TestPlaceOrder_COD(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.withCart(owner,
		bundleLine("starter", "500", 2, intPtr(10)),
		bundleLine("floss", "300", 1, nil),
	)

	o, report, err := h.svc.PlaceOrder(context.Background(), owner, PlaceOrderRequest{Details: validDetails()})
	require.NoError(t, err)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, order.PaymentMethodCOD, o.PaymentMethod)
	assert.Equal(t, "1300.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "50.00", o.ExpressCharge.StringFixed(2))
	assert.Equal(t, "1350.00", o.FinalTotal.StringFixed(2))
	assert.Equal(t, "India", o.ShippingAddress.Country)
	assert.Equal(t, pricing.DeliveryExpress, o.Delivery.Mode)
	assert.Equal(t, "560001", o.Delivery.Pincode)
	assert.NotNil(t, o.Delivery.SavedAt)
	assert.Nil(t, o.GatewayOrderID)

	assert.True(t, report.Complete())
	assert.Equal(t, o.ID.String(), report.OrderID)
	_, ran := report.Step(StepPaymentRecord)
	assert.False(t, ran)

	assert.Len(t, h.stock.deducted, 2)
	assert.Equal(t, []uuid.UUID{owner}, h.carts.cleared)
	require.Len(t, h.shipments.reqs, 1)
	assert.Equal(t, shipment.PaymentModeCOD, h.shipments.reqs[0].PaymentMode)
	assert.Equal(t, 3000, h.shipments.reqs[0].WeightGrams)
	require.Len(t, h.outbox.events, 1)
	assert.Equal(t, outbox.EventOrderPlaced, h.outbox.events[0].EventType)
	assert.Empty(t, h.outbox.repairs)

	var body orderEvent
	require.NoError(t, json.Unmarshal(h.outbox.events[0].Payload, &body))
	assert.Equal(t, o.OrderNumber, body.OrderNumber)
	assert.Len(t, body.Lines, 2)
}

func TestPlaceOrder_Rejections(t *testing.T) {
	owner := uuid.New()
	productID := uuid.New()

	tests := []struct {
		name     string
		lines    []cart.Line
		details  func(d *Details)
		wantErr  error
		wantKind apperr.Kind
	}{
		{
			name:     "empty cart",
			wantErr:  ErrEmptyCart,
			wantKind: apperr.KindValidation,
		},
		{
			name:     "out of stock",
			lines:    []cart.Line{bundleLine("family", "799", 3, intPtr(2))},
			wantErr:  ErrInsufficientStock,
			wantKind: apperr.KindConflict,
		},
		{
			name: "standalone product",
			lines: []cart.Line{{
				LineID: uuid.New(), ProductID: &productID, Name: "brush", Quantity: 1,
				UnitPrice: decimal.NewFromInt(99), Available: true,
			}},
			wantErr:  ErrStandaloneProduct,
			wantKind: apperr.KindValidation,
		},
		{
			name:     "missing address",
			lines:    []cart.Line{bundleLine("a", "100", 1, nil)},
			details:  func(d *Details) { d.ShippingAddress.Line1 = " " },
			wantErr:  ErrIncompleteAddress,
			wantKind: apperr.KindValidation,
		},
		{
			name:     "unknown delivery mode",
			lines:    []cart.Line{bundleLine("a", "100", 1, nil)},
			details:  func(d *Details) { d.Delivery.Mode = "drone" },
			wantErr:  ErrInvalidDeliveryMode,
			wantKind: apperr.KindValidation,
		},
		{
			name:     "negative discount",
			lines:    []cart.Line{bundleLine("a", "100", 1, nil)},
			details:  func(d *Details) { d.Discount = decimal.NewFromInt(-1) },
			wantErr:  ErrInvalidDiscount,
			wantKind: apperr.KindValidation,
		},
		{
			name:     "discount above total",
			lines:    []cart.Line{bundleLine("a", "100", 1, nil)},
			details:  func(d *Details) { d.Discount = decimal.NewFromInt(500) },
			wantErr:  ErrInvalidDiscount,
			wantKind: apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.lines != nil {
				h.withCart(owner, tt.lines...)
			}
			d := validDetails()
			if tt.details != nil {
				tt.details(&d)
			}

			o, report, err := h.svc.PlaceOrder(context.Background(), owner, PlaceOrderRequest{Details: d})

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Nil(t, o)
			assert.Nil(t, report)
			assert.Empty(t, h.orders.orders)
			assert.Empty(t, h.stock.deducted)
		})
	}
}

func TestPlaceOrder_OutOfStockCarriesLines(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	short := bundleLine("family", "799", 3, intPtr(2))
	h.withCart(owner, short, bundleLine("ok", "100", 1, intPtr(5)))

	_, _, err := h.svc.PlaceOrder(context.Background(), owner, PlaceOrderRequest{Details: validDetails()})

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, CodeInsufficientStock, appErr.Code)
	items, ok := appErr.Details.([]cart.StockItem)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, short.LineID, items[0].LineID)
}

func TestPlaceOrder_BestEffortFailuresAreQueued(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	broken := bundleLine("broken", "200", 1, intPtr(4))
	h.withCart(owner, bundleLine("fine", "100", 1, intPtr(4)), broken)
	h.stock.failFor[*broken.BundleID] = true
	h.carts.clearErr = errors.New("cart store unavailable")
	h.shipments.err = errors.New("courier timeout")

	o, report, err := h.svc.PlaceOrder(context.Background(), owner, PlaceOrderRequest{Details: validDetails()})
	require.NoError(t, err)
	require.NotNil(t, o)

	assert.False(t, report.Complete())
	assert.ElementsMatch(t, []string{"stock_deduct", "cart_clear", "shipment"}, stepNames(report.Failed()))
	assert.ElementsMatch(t,
		[]outbox.Step{outbox.StepStockDeduct, outbox.StepCartClear, outbox.StepShipment},
		h.outbox.repairSteps())

	var payload stockPayload
	for _, r := range h.outbox.repairs {
		if r.Step == outbox.StepStockDeduct {
			require.NoError(t, r.Decode(&payload))
		}
	}
	require.Len(t, payload.Items, 1)
	assert.Equal(t, *broken.BundleID, payload.Items[0].BundleID)
	assert.Equal(t, o.ID.String(), payload.Reference.ID)
}

func TestPlaceOrder_CreateFailureStopsPipeline(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.withCart(owner, bundleLine("a", "100", 1, nil))
	h.orders.createErr = apperr.Upstream("failed to create order", true, errors.New("db down"))

	_, _, err := h.svc.PlaceOrder(context.Background(), owner, PlaceOrderRequest{Details: validDetails()})

	assert.True(t, apperr.IsRetryable(err))
	assert.Empty(t, h.stock.deducted)
	assert.Empty(t, h.carts.cleared)
	assert.Empty(t, h.outbox.events)
}

func TestPlaceOrder_OnlinePayment(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.withCart(owner, bundleLine("a", "500", 2, nil))
	expected := decimal.RequireFromString("1050.00")

	o, report, err := h.svc.PlaceOrder(context.Background(), owner, PlaceOrderRequest{
		Details: validDetails(),
		Payment: &OnlinePayment{
			Provider:         "razorpay",
			GatewayOrderID:   "order_1",
			GatewayPaymentID: "pay_1",
			Signature:        "sig",
			ExpectedAmount:   &expected,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, order.StatusConfirmed, o.Status)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, order.PaymentMethodOnline, o.PaymentMethod)
	assert.Equal(t, "order_1", *o.GatewayOrderID)
	assert.False(t, o.NeedsReview)

	check, ok := report.Step(StepAmountCheck)
	require.True(t, ok)
	assert.True(t, check.OK)
	require.Len(t, h.orders.payments, 1)
	assert.Equal(t, "pay_1", h.orders.payments[0].GatewayPaymentID)
	assert.Equal(t, shipment.PaymentModePrepaid, h.shipments.reqs[0].PaymentMode)
}

func TestPlaceOrder_AmountMismatchFlagsReview(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.withCart(owner, bundleLine("a", "500", 2, nil))
	paid := decimal.RequireFromString("900.00")

	o, report, err := h.svc.PlaceOrder(context.Background(), owner, PlaceOrderRequest{
		Details: validDetails(),
		Payment: &OnlinePayment{GatewayOrderID: "order_2", GatewayPaymentID: "pay_2", ExpectedAmount: &paid},
	})
	require.NoError(t, err)

	assert.True(t, o.NeedsReview)
	assert.Contains(t, o.ReviewReason, "900.00")
	check, ok := report.Step(StepAmountCheck)
	require.True(t, ok)
	assert.False(t, check.OK)
	assert.Equal(t, "900.00", h.orders.payments[0].Amount.StringFixed(2))
}

func TestPlaceOrder_PaymentRecordFailureIsQueued(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.withCart(owner, bundleLine("a", "500", 1, nil))
	h.orders.recordErr = errors.New("insert failed")

	_, report, err := h.svc.PlaceOrder(context.Background(), owner, PlaceOrderRequest{
		Details: validDetails(),
		Payment: &OnlinePayment{GatewayOrderID: "order_3", GatewayPaymentID: "pay_3"},
	})
	require.NoError(t, err)

	step, _ := report.Step(StepPaymentRecord)
	assert.False(t, step.OK)
	assert.Equal(t, []outbox.Step{outbox.StepPaymentRecord}, h.outbox.repairSteps())
}

func TestQuote(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.withCart(owner, bundleLine("a", "500", 2, intPtr(1)))

	q, err := h.svc.Quote(context.Background(), owner, QuoteRequest{Delivery: DeliveryRequest{Mode: "surface"}})
	require.NoError(t, err)

	assert.False(t, q.CanPlace)
	assert.False(t, q.Stock.AllInStock)
	assert.Equal(t, "1000.00", q.Totals.FinalTotal.StringFixed(2))
	assert.True(t, q.Totals.ExpressCharge.IsZero())
	assert.Empty(t, h.orders.orders)
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.withCart(owner, bundleLine("a", "100", 1, intPtr(3)))
	o, _, err := h.svc.PlaceOrder(context.Background(), owner, PlaceOrderRequest{Details: validDetails()})
	require.NoError(t, err)

	cancelled, report, err := h.svc.CancelOrder(context.Background(), o.ID, owner, "ordered twice")
	require.NoError(t, err)

	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.True(t, report.Complete())
	require.Len(t, h.stock.restored, 1)
	assert.Equal(t, o.ID.String(), h.stock.restored[0].ID)
	assert.Equal(t, outbox.EventOrderCancelled, h.outbox.events[len(h.outbox.events)-1].EventType)
}

func TestCancelOrder_RestoreFailureIsQueued(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.withCart(owner, bundleLine("a", "100", 1, intPtr(3)))
	o, _, err := h.svc.PlaceOrder(context.Background(), owner, PlaceOrderRequest{Details: validDetails()})
	require.NoError(t, err)
	h.stock.restoreErr = errors.New("db down")

	_, report, err := h.svc.CancelOrder(context.Background(), o.ID, owner, "")
	require.NoError(t, err)

	assert.False(t, report.Complete())
	assert.Equal(t, []outbox.Step{outbox.StepStockRestore}, h.outbox.repairSteps())
}

func TestCancelOrder_GuardErrorsPassThrough(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.withCart(owner, bundleLine("a", "100", 1, nil))
	o, _, err := h.svc.PlaceOrder(context.Background(), owner, PlaceOrderRequest{Details: validDetails()})
	require.NoError(t, err)
	h.orders.orders[o.ID].Status = order.StatusDelivered

	_, _, err = h.svc.CancelOrder(context.Background(), o.ID, owner, "")
	assert.ErrorIs(t, err, order.ErrOrderCannotBeCancelled)

	_, _, err = h.svc.CancelOrder(context.Background(), o.ID, uuid.New(), "")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	assert.Empty(t, h.stock.restored)
}

func TestAdminUpdateStatus(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.withCart(owner, bundleLine("a", "100", 1, nil))
	o, _, err := h.svc.PlaceOrder(context.Background(), owner, PlaceOrderRequest{Details: validDetails()})
	require.NoError(t, err)

	_, _, err = h.svc.AdminUpdateStatus(context.Background(), o.ID, order.StatusConfirmed, "")
	require.NoError(t, err)
	assert.Empty(t, h.stock.restored)
	assert.Equal(t, outbox.EventOrderStatusChanged, h.outbox.events[len(h.outbox.events)-1].EventType)

	tr, _, err := h.svc.AdminUpdateStatus(context.Background(), o.ID, order.StatusCancelled, "fraud")
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, tr.From)
	assert.Len(t, h.stock.restored, 1)

	_, _, err = h.svc.AdminUpdateStatus(context.Background(), o.ID, order.StatusCancelled, "again")
	require.NoError(t, err)
	assert.Len(t, h.stock.restored, 1)
}

func TestRetryStep(t *testing.T) {
	ctx := context.Background()

	t.Run("cart clear removes only ordered lines", func(t *testing.T) {
		h := newHarness(t)
		gone, present := uuid.New(), uuid.New()
		h.carts.missing[gone] = true
		task, err := outbox.NewRepairTask(uuid.New(), outbox.StepCartClear, cartPayload{OwnerID: uuid.New(), LineIDs: []uuid.UUID{gone, present}}, nil)
		require.NoError(t, err)

		require.NoError(t, h.svc.RetryStep(ctx, *task))
		assert.Equal(t, []uuid.UUID{present}, h.carts.removed)
	})

	t.Run("stock deduct skipped for cancelled order", func(t *testing.T) {
		h := newHarness(t)
		owner := uuid.New()
		h.withCart(owner, bundleLine("a", "100", 1, nil))
		o, _, err := h.svc.PlaceOrder(ctx, owner, PlaceOrderRequest{Details: validDetails()})
		require.NoError(t, err)
		h.orders.orders[o.ID].Status = order.StatusCancelled
		before := len(h.stock.deducted)

		task, err := outbox.NewRepairTask(o.ID, outbox.StepStockDeduct, stockPayload{
			Reference: orderReference(o),
			Items:     []inventory.Adjustment{{BundleID: uuid.New(), Quantity: 1}},
		}, nil)
		require.NoError(t, err)

		require.NoError(t, h.svc.RetryStep(ctx, *task))
		assert.Len(t, h.stock.deducted, before)
	})

	t.Run("partial stock deduct requeues the remainder", func(t *testing.T) {
		h := newHarness(t)
		owner := uuid.New()
		h.withCart(owner, bundleLine("a", "100", 1, nil))
		o, _, err := h.svc.PlaceOrder(ctx, owner, PlaceOrderRequest{Details: validDetails()})
		require.NoError(t, err)

		ok, bad := uuid.New(), uuid.New()
		h.stock.failFor[bad] = true
		task, err := outbox.NewRepairTask(o.ID, outbox.StepStockDeduct, stockPayload{
			Reference: orderReference(o),
			Items:     []inventory.Adjustment{{BundleID: ok, Quantity: 1}, {BundleID: bad, Quantity: 2}},
		}, nil)
		require.NoError(t, err)

		require.NoError(t, h.svc.RetryStep(ctx, *task))
		require.Len(t, h.outbox.repairs, 1)
		var p stockPayload
		require.NoError(t, h.outbox.repairs[0].Decode(&p))
		assert.Equal(t, []inventory.Adjustment{{BundleID: bad, Quantity: 2}}, p.Items)

		task, err = outbox.NewRepairTask(o.ID, outbox.StepStockDeduct, p, nil)
		require.NoError(t, err)
		assert.Error(t, h.svc.RetryStep(ctx, *task))
	})

	t.Run("event publish re-adds the event", func(t *testing.T) {
		h := newHarness(t)
		o := &order.Order{ID: uuid.New(), OrderNumber: "ORD-1", FinalTotal: decimal.NewFromInt(10)}
		task, err := outbox.NewRepairTask(o.ID, outbox.StepEventPublish, eventPayload{
			AggregateID: o.ID.String(),
			EventType:   outbox.EventOrderPlaced,
			Event:       newOrderEvent(o, outbox.EventOrderPlaced, time.Now()),
		}, nil)
		require.NoError(t, err)

		require.NoError(t, h.svc.RetryStep(ctx, *task))
		require.Len(t, h.outbox.events, 1)
		assert.Equal(t, o.ID.String(), h.outbox.events[0].AggregateID)
	})

	t.Run("unknown step", func(t *testing.T) {
		h := newHarness(t)
		err := h.svc.RetryStep(ctx, outbox.RepairTask{ID: uuid.New(), Step: "teleport", Payload: []byte(`{}`)})
		assert.ErrorIs(t, err, ErrUnknownRepairStep)
	})
}
