// internal/domain/checkout/service.go
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/outbox"
	"github.com/your-org/storefront-backend/internal/domain/pricing"
	"github.com/your-org/storefront-backend/internal/domain/shipment"
	"github.com/your-org/storefront-backend/internal/pkg/apperr"
)

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInsufficientStock   = errors.New("some items are out of stock")
	ErrStandaloneProduct   = errors.New("only bundles can be ordered")
	ErrIncompleteAddress   = errors.New("shipping address is incomplete")
	ErrInvalidDiscount     = errors.New("discount must be between zero and the order total")
	ErrInvalidDeliveryMode = errors.New("invalid delivery mode")
)

// CodeInsufficientStock is the machine readable code for stock conflicts
const CodeInsufficientStock = "INSUFFICIENT_STOCK"

// CartStore reads and clears carts
type CartStore interface {
	GetCart(ctx context.Context, ownerID uuid.UUID) (*cart.View, error)
	RemoveItem(ctx context.Context, ownerID, lineID uuid.UUID) (*cart.View, error)
	Clear(ctx context.Context, ownerID uuid.UUID) error
}

// StockAdjuster changes bundle stock
type StockAdjuster interface {
	Deduct(ctx context.Context, items []inventory.Adjustment, ref inventory.Reference) inventory.AdjustmentResult
	RestoreOutstanding(ctx context.Context, ref inventory.Reference) (inventory.AdjustmentResult, error)
}

// OrderWriter persists orders
type OrderWriter interface {
	Create(ctx context.Context, header *order.Order, lines []order.OrderLine) (*order.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*order.Order, error)
	Cancel(ctx context.Context, orderID, ownerID uuid.UUID, reason string) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status order.Status, note string) (*order.Transition, error)
	RecordPayment(ctx context.Context, record *order.PaymentRecord) (*order.PaymentRecord, error)
}

// Outbox queues events and repair tasks
type Outbox interface {
	AddEvent(ctx context.Context, e *outbox.Event) error
	AddRepair(ctx context.Context, t *outbox.RepairTask) error
}

// Options holds the checkout pricing settings
type Options struct {
	ExpressCharge decimal.Decimal
	Currency      string
}

// Service orchestrates order placement and cancellation
type Service struct {
	carts     CartStore
	stock     StockAdjuster
	orders    OrderWriter
	shipments shipment.Creator
	outbox    Outbox
	opts      Options
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewService creates a new checkout service
func NewService(carts CartStore, stock StockAdjuster, orders OrderWriter, shipments shipment.Creator, box Outbox, opts Options, log logrus.FieldLogger) *Service {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	return &Service{
		carts:     carts,
		stock:     stock,
		orders:    orders,
		shipments: shipments,
		outbox:    box,
		opts:      opts,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Quote previews totals and stock for the current cart without writing
func (s *Service) Quote(ctx context.Context, ownerID uuid.UUID, req QuoteRequest) (*Quote, error) {
	mode, err := pricing.ParseDeliveryMode(req.Delivery.Mode)
	if err != nil {
		return nil, apperr.Validation(err.Error(), ErrInvalidDeliveryMode)
	}
	if req.Discount.IsNegative() {
		return nil, apperr.Validation(ErrInvalidDiscount.Error(), ErrInvalidDiscount)
	}

	view, err := s.carts.GetCart(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	stock := cart.EvaluateStock(view)
	totals := pricing.CalculateTotals(view.PricingLines(), mode, s.opts.ExpressCharge, req.Discount)

	return &Quote{
		Cart:         view,
		Stock:        stock,
		DeliveryMode: mode,
		Totals:       totals,
		CanPlace: !view.IsEmpty() && stock.AllInStock && onlyBundles(view) &&
			req.Discount.LessThanOrEqual(totals.Total),
	}, nil
}

// Prepare re-reads the cart, checks stock and prices it. Nothing is
// written; the same checks run again when the order is placed.
func (s *Service) Prepare(ctx context.Context, ownerID uuid.UUID, details Details) (*Prepared, error) {
	if err := validateAddress(details.ShippingAddress); err != nil {
		return nil, err
	}
	mode, err := pricing.ParseDeliveryMode(details.Delivery.Mode)
	if err != nil {
		return nil, apperr.Validation(err.Error(), ErrInvalidDeliveryMode)
	}
	if details.Discount.IsNegative() {
		return nil, apperr.Validation(ErrInvalidDiscount.Error(), ErrInvalidDiscount)
	}

	view, err := s.carts.GetCart(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if view.IsEmpty() {
		return nil, apperr.Validation(ErrEmptyCart.Error(), ErrEmptyCart)
	}
	for _, line := range view.Lines {
		if !line.IsBundle() {
			return nil, apperr.Validation(
				fmt.Sprintf("%s: remove %q from the cart", ErrStandaloneProduct.Error(), line.Name),
				ErrStandaloneProduct)
		}
	}

	stock := cart.EvaluateStock(view)
	if !stock.AllInStock {
		return nil, apperr.Conflict(CodeInsufficientStock, ErrInsufficientStock.Error(), stock.OutOfStockItems, ErrInsufficientStock)
	}

	totals := pricing.CalculateTotals(view.PricingLines(), mode, s.opts.ExpressCharge, details.Discount)
	if details.Discount.GreaterThan(totals.Total) {
		return nil, apperr.Validation(ErrInvalidDiscount.Error(), ErrInvalidDiscount)
	}

	return &Prepared{Cart: view, Stock: stock, Mode: mode, Totals: totals}, nil
}

// PlaceOrder commits the owner's cart as an order and then runs the side
// effects. Only validation and the order insert can fail the call; every
// later step is reported and, on failure, queued for repair.
func (s *Service) PlaceOrder(ctx context.Context, ownerID uuid.UUID, req PlaceOrderRequest) (*order.Order, *PlacementReport, error) {
	prepared, err := s.Prepare(ctx, ownerID, req.Details)
	if err != nil {
		return nil, nil, err
	}

	header := s.buildHeader(ownerID, req, prepared)
	lines := buildLines(prepared.Cart)

	var amountErr error
	if p := req.Payment; p != nil && p.ExpectedAmount != nil && !p.ExpectedAmount.Equal(prepared.Totals.FinalTotal) {
		amountErr = fmt.Errorf("paid amount %s differs from order total %s",
			p.ExpectedAmount.StringFixed(2), prepared.Totals.FinalTotal.StringFixed(2))
		header.NeedsReview = true
		header.ReviewReason = amountErr.Error()
	}

	created, err := s.orders.Create(ctx, header, lines)
	if err != nil {
		return nil, nil, err
	}

	report := &PlacementReport{OrderID: created.ID.String(), OrderNumber: created.OrderNumber}

	if req.Payment != nil {
		if req.Payment.ExpectedAmount != nil {
			report.add(StepAmountCheck, amountErr, map[string]string{
				"expected": req.Payment.ExpectedAmount.StringFixed(2),
				"total":    prepared.Totals.FinalTotal.StringFixed(2),
			})
		}
		s.recordPayment(ctx, created, req.Payment, report)
	}

	s.deductStock(ctx, created, report)
	s.clearCart(ctx, ownerID, prepared.Cart, created, report)
	s.requestShipment(ctx, created, report)
	s.publish(ctx, created, outbox.EventOrderPlaced, report)

	entry := s.log.WithFields(logrus.Fields{
		"order_id":       created.ID,
		"order_number":   created.OrderNumber,
		"owner_id":       ownerID,
		"payment_method": created.PaymentMethod,
		"final_total":    created.FinalTotal.StringFixed(2),
	})
	if failed := report.Failed(); len(failed) > 0 {
		entry.WithField("failed_steps", stepNames(failed)).Warn("Order placed with incomplete side effects")
	} else {
		entry.Info("Order placed")
	}

	return created, report, nil
}

// CancelOrder cancels the owner's order, puts its stock back and emits a
// cancellation event
func (s *Service) CancelOrder(ctx context.Context, orderID, ownerID uuid.UUID, reason string) (*order.Order, *PlacementReport, error) {
	cancelled, err := s.orders.Cancel(ctx, orderID, ownerID, reason)
	if err != nil {
		return nil, nil, err
	}

	report := &PlacementReport{OrderID: cancelled.ID.String(), OrderNumber: cancelled.OrderNumber}
	s.restoreStock(ctx, cancelled, report)
	s.publish(ctx, cancelled, outbox.EventOrderCancelled, report)

	s.log.WithFields(logrus.Fields{
		"order_id": cancelled.ID,
		"owner_id": ownerID,
		"reason":   reason,
	}).Info("Order cancelled")

	return cancelled, report, nil
}

// AdminUpdateStatus writes a status on behalf of an operator. Moving an
// order to cancelled restores its stock the same way a customer cancel
// does.
func (s *Service) AdminUpdateStatus(ctx context.Context, orderID uuid.UUID, status order.Status, note string) (*order.Transition, *PlacementReport, error) {
	tr, err := s.orders.UpdateStatus(ctx, orderID, status, note)
	if err != nil {
		return nil, nil, err
	}

	report := &PlacementReport{OrderID: tr.Order.ID.String(), OrderNumber: tr.Order.OrderNumber}
	if tr.To == order.StatusCancelled && tr.From != order.StatusCancelled {
		s.restoreStock(ctx, tr.Order, report)
		s.publish(ctx, tr.Order, outbox.EventOrderCancelled, report)
	} else {
		s.publish(ctx, tr.Order, outbox.EventOrderStatusChanged, report)
	}
	return tr, report, nil
}

func (s *Service) buildHeader(ownerID uuid.UUID, req PlaceOrderRequest, p *Prepared) *order.Order {
	now := s.now()
	d := req.Delivery

	header := &order.Order{
		UserID:               ownerID,
		Status:               order.StatusPending,
		PaymentStatus:        order.PaymentUnpaid,
		PaymentMethod:        order.PaymentMethodCOD,
		Subtotal:             p.Totals.Subtotal,
		ExpressCharge:        p.Totals.ExpressCharge,
		Discount:             p.Totals.Discount,
		FinalTotal:           p.Totals.FinalTotal,
		Currency:             s.opts.Currency,
		EstimatedWeightGrams: p.Totals.EstimatedWeightGrams,
		ShippingAddress:      req.ShippingAddress,
		Delivery: order.DeliveryMetadata{
			Mode:          p.Mode,
			EstimatedDays: d.EstimatedDays,
			ExpectedDate:  d.ExpectedDate,
			ExpressCharge: p.Totals.ExpressCharge,
			Pincode:       firstNonEmpty(d.Pincode, req.ShippingAddress.Zip),
			City:          firstNonEmpty(d.City, req.ShippingAddress.City),
			State:         firstNonEmpty(d.State, req.ShippingAddress.State),
			SavedAt:       &now,
		},
		GiftWrap:    req.GiftWrap,
		GiftMessage: req.GiftMessage,
		Notes:       req.Notes,
	}
	if header.ShippingAddress.Country == "" {
		header.ShippingAddress.Country = "India"
	}

	if pay := req.Payment; pay != nil {
		header.Status = order.StatusConfirmed
		header.PaymentStatus = order.PaymentPaid
		header.PaymentMethod = order.PaymentMethodOnline
		header.GatewayOrderID = stringPtr(pay.GatewayOrderID)
		header.GatewayPaymentID = stringPtr(pay.GatewayPaymentID)
		header.GatewaySignature = stringPtr(pay.Signature)
		if pay.Currency != "" {
			header.Currency = pay.Currency
		}
	}
	return header
}

func buildLines(view *cart.View) []order.OrderLine {
	lines := make([]order.OrderLine, 0, len(view.Lines))
	for _, l := range view.Lines {
		lines = append(lines, order.OrderLine{
			BundleID:  *l.BundleID,
			SKU:       l.SKU,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
			Origin:    "cart",
		})
	}
	return lines
}

func (s *Service) recordPayment(ctx context.Context, o *order.Order, pay *OnlinePayment, report *PlacementReport) {
	record := &order.PaymentRecord{
		ID:               uuid.New(),
		OrderID:          o.ID,
		UserID:           o.UserID,
		Provider:         firstNonEmpty(pay.Provider, "razorpay"),
		GatewayOrderID:   pay.GatewayOrderID,
		GatewayPaymentID: pay.GatewayPaymentID,
		Amount:           o.FinalTotal,
		Currency:         o.Currency,
		Method:           pay.Method,
		Status:           "captured",
		IsSuccess:        true,
	}
	if pay.ExpectedAmount != nil {
		record.Amount = *pay.ExpectedAmount
	}

	_, err := s.orders.RecordPayment(ctx, record)
	report.add(StepPaymentRecord, err, nil)
	if err != nil {
		s.queueRepair(ctx, o.ID, outbox.StepPaymentRecord, record, err)
	}
}

func (s *Service) deductStock(ctx context.Context, o *order.Order, report *PlacementReport) {
	items := make([]inventory.Adjustment, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, inventory.Adjustment{BundleID: l.BundleID, Quantity: l.Quantity})
	}

	ref := orderReference(o)
	result := s.stock.Deduct(ctx, items, ref)

	var err error
	if !result.Success {
		err = fmt.Errorf("%d of %d stock deductions failed", len(result.Failed), len(items))
		s.queueRepair(ctx, o.ID, outbox.StepStockDeduct, stockPayload{Reference: ref, Items: result.FailedAdjustments()}, err)
	}
	report.add(StepStockDeduct, err, result)
}

func (s *Service) restoreStock(ctx context.Context, o *order.Order, report *PlacementReport) {
	ref := orderReference(o)
	result, err := s.stock.RestoreOutstanding(ctx, ref)
	if err == nil && !result.Success {
		err = fmt.Errorf("%d stock restorations failed", len(result.Failed))
	}
	if err != nil {
		s.queueRepair(ctx, o.ID, outbox.StepStockRestore, stockPayload{Reference: ref}, err)
	}
	report.add(StepStockRestore, err, result)
}

func (s *Service) clearCart(ctx context.Context, ownerID uuid.UUID, view *cart.View, o *order.Order, report *PlacementReport) {
	err := s.carts.Clear(ctx, ownerID)
	report.add(StepCartClear, err, nil)
	if err != nil {
		lineIDs := make([]uuid.UUID, 0, len(view.Lines))
		for _, l := range view.Lines {
			lineIDs = append(lineIDs, l.LineID)
		}
		s.queueRepair(ctx, o.ID, outbox.StepCartClear, cartPayload{OwnerID: ownerID, LineIDs: lineIDs}, err)
	}
}

func (s *Service) requestShipment(ctx context.Context, o *order.Order, report *PlacementReport) {
	req := shipmentRequest(o)
	result, err := s.shipments.CreateShipment(ctx, req)
	if err != nil {
		report.add(StepShipment, err, nil)
		s.queueRepair(ctx, o.ID, outbox.StepShipment, req, err)
		return
	}
	report.add(StepShipment, nil, result)
}

func (s *Service) publish(ctx context.Context, o *order.Order, eventType outbox.EventType, report *PlacementReport) {
	payload := newOrderEvent(o, eventType, s.now())

	ev, err := outbox.NewEvent(o.ID.String(), eventType, payload)
	if err == nil {
		err = s.outbox.AddEvent(ctx, ev)
	}
	report.add(StepEventPublish, err, map[string]string{"event_type": string(eventType)})
	if err != nil {
		s.queueRepair(ctx, o.ID, outbox.StepEventPublish, eventPayload{
			AggregateID: o.ID.String(),
			EventType:   eventType,
			Event:       payload,
		}, err)
	}
}

func (s *Service) queueRepair(ctx context.Context, orderID uuid.UUID, step outbox.Step, payload interface{}, cause error) {
	entry := s.log.WithError(cause).WithFields(logrus.Fields{"order_id": orderID, "step": step})

	task, err := outbox.NewRepairTask(orderID, step, payload, cause)
	if err == nil {
		err = s.outbox.AddRepair(ctx, task)
	}
	if err != nil {
		entry.WithField("repair_error", err.Error()).Error("Side effect failed and could not be queued for repair")
		return
	}
	entry.Warn("Side effect failed, queued for repair")
}

func shipmentRequest(o *order.Order) shipment.Request {
	payment := shipment.PaymentModePrepaid
	if o.PaymentMethod == order.PaymentMethodCOD {
		payment = shipment.PaymentModeCOD
	}
	weight := o.EstimatedWeightGrams
	if weight <= 0 {
		weight = pricing.DefaultItemWeightGrams
	}
	return shipment.Request{
		OrderID: o.ID,
		Destination: shipment.Destination{
			Pincode: firstNonEmpty(o.Delivery.Pincode, o.ShippingAddress.Zip),
			City:    firstNonEmpty(o.Delivery.City, o.ShippingAddress.City),
			State:   firstNonEmpty(o.Delivery.State, o.ShippingAddress.State),
		},
		WeightGrams: weight,
		Mode:        o.Delivery.Mode,
		PaymentMode: payment,
	}
}

func orderReference(o *order.Order) inventory.Reference {
	return inventory.Reference{Type: "order", ID: o.ID.String(), Note: o.OrderNumber}
}

func validateAddress(a order.Address) error {
	if strings.TrimSpace(a.Line1) == "" || strings.TrimSpace(a.City) == "" ||
		strings.TrimSpace(a.State) == "" || strings.TrimSpace(a.Zip) == "" ||
		strings.TrimSpace(a.Phone) == "" {
		return apperr.Validation(ErrIncompleteAddress.Error(), ErrIncompleteAddress)
	}
	return nil
}

func onlyBundles(view *cart.View) bool {
	for _, l := range view.Lines {
		if !l.IsBundle() {
			return false
		}
	}
	return true
}

func stepNames(steps []StepResult) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = string(s.Step)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
