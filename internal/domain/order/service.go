// internal/domain/order/service.go
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/pkg/apperr"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStatus          = errors.New("invalid order status")
	ErrInvalidPaymentStatus   = errors.New("invalid payment status")
	ErrOrderCannotBeCancelled = errors.New("order cannot be cancelled in its current status")
	ErrDuplicateOrder         = errors.New("an order already exists for this payment")
	ErrNoLines                = errors.New("order must have at least one line")
	ErrTotalsMismatch         = errors.New("final total must equal subtotal + express charge - discount")
	ErrConcurrentUpdate       = errors.New("order was modified concurrently")
)

const (
	CodeOrderCannotBeCancelled = "ORDER_CANNOT_BE_CANCELLED"
	CodeDuplicateOrder         = "DUPLICATE_ORDER"
)

// Service is the order writer
type Service struct {
	store Store
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewService creates a new order service
func NewService(store Store, log logrus.FieldLogger) *Service {
	return &Service{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ListRequest represents order list query parameters
type ListRequest struct {
	Page   int    `form:"page,default=1"`
	Limit  int    `form:"limit,default=20"`
	Status Status `form:"status"`
	UserID *uuid.UUID
}

// ListResponse represents orders with pagination
type ListResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Pagination represents pagination information
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// Transition describes one applied status change
type Transition struct {
	Order *Order `json:"order"`
	From  Status `json:"from"`
	To    Status `json:"to"`
}

// Create inserts the header and then its lines. When the lines cannot be
// written the header is deleted again and the error returned, so no order
// ever exists without its lines.
func (s *Service) Create(ctx context.Context, header *Order, lines []OrderLine) (*Order, error) {
	if len(lines) == 0 {
		return nil, apperr.Validation(ErrNoLines.Error(), ErrNoLines)
	}
	if !header.TotalsConsistent() {
		return nil, apperr.Validation(ErrTotalsMismatch.Error(), ErrTotalsMismatch)
	}

	now := s.now()
	if header.ID == uuid.Nil {
		header.ID = uuid.New()
	}
	if header.OrderNumber == "" {
		header.OrderNumber = GenerateOrderNumber(now)
	}
	if header.Status == "" {
		header.Status = StatusPending
	}
	if header.PaymentStatus == "" {
		header.PaymentStatus = PaymentUnpaid
	}
	if header.Status == StatusConfirmed && header.ConfirmedAt == nil {
		header.ConfirmedAt = &now
	}
	header.Lines = nil

	persisted := make([]OrderLine, len(lines))
	for i, line := range lines {
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		line.OrderID = header.ID
		if line.Origin == "" {
			line.Origin = "cart"
		}
		if line.LineTotal.IsZero() {
			line.LineTotal = line.UnitPrice.Mul(decimalFromInt(line.Quantity)).Round(2)
		}
		persisted[i] = line
	}

	if err := s.store.InsertHeader(ctx, header); err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			return nil, apperr.Conflict(CodeDuplicateOrder, ErrDuplicateOrder.Error(), nil, ErrDuplicateOrder)
		}
		return nil, apperr.Upstream("failed to create order", true, err)
	}

	if err := s.store.InsertLines(ctx, persisted); err != nil {
		if delErr := s.store.DeleteHeader(ctx, header.ID); delErr != nil {
			s.log.WithError(delErr).WithField("order_id", header.ID).
				Error("Failed to remove order header after line insert failure")
		}
		return nil, apperr.Upstream("failed to create order lines", true, err)
	}

	header.Lines = persisted
	s.appendHistory(ctx, header.ID, "", header.Status, "Order created")

	s.log.WithFields(logrus.Fields{
		"order_id":       header.ID,
		"order_number":   header.OrderNumber,
		"payment_method": header.PaymentMethod,
		"final_total":    header.FinalTotal.StringFixed(2),
		"lines":          len(persisted),
	}).Info("Order created")

	return header, nil
}

// Get retrieves a single order with its lines
func (s *Service) Get(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, s.wrapLookup(err)
	}
	return o, nil
}

// GetForOwner retrieves an order that must belong to ownerID
func (s *Service) GetForOwner(ctx context.Context, orderID, ownerID uuid.UUID) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != ownerID {
		return nil, apperr.NotFound(ErrOrderNotFound.Error(), ErrOrderNotFound)
	}
	return o, nil
}

// FindByGatewayOrderID looks an order up by its payment intent id
func (s *Service) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error) {
	o, err := s.store.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, s.wrapLookup(err)
	}
	return o, nil
}

// List retrieves orders with filtering and pagination
func (s *Service) List(ctx context.Context, req ListRequest) (*ListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Status != "" {
		if _, err := ParseStatus(string(req.Status)); err != nil {
			return nil, apperr.Validation(err.Error(), err)
		}
	}

	orders, total, err := s.store.List(ctx, Filter{
		UserID: req.UserID,
		Status: req.Status,
		Offset: (req.Page - 1) * req.Limit,
		Limit:  req.Limit,
	})
	if err != nil {
		return nil, apperr.Upstream("failed to list orders", true, err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &ListResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}

// History returns the status changes of an order, newest first
func (s *Service) History(ctx context.Context, orderID uuid.UUID) ([]StatusHistory, error) {
	history, err := s.store.History(ctx, orderID)
	if err != nil {
		return nil, apperr.Upstream("failed to load order history", true, err)
	}
	return history, nil
}

// UpdateStatus writes a new status. Unknown values are rejected; moves
// outside the lifecycle are applied but logged.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status, note string) (*Transition, error) {
	status, err := ParseStatus(string(newStatus))
	if err != nil {
		return nil, apperr.Validation(err.Error(), err)
	}

	current, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(current.Status, status) {
		s.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"from":     current.Status,
			"to":       status,
		}).Warn("Illegal order status transition applied")
	}

	now := s.now()
	fields := map[string]interface{}{"status": string(status)}
	switch status {
	case StatusConfirmed:
		fields["confirmed_at"] = now
	case StatusDelivered:
		fields["delivered_at"] = now
	case StatusCancelled:
		fields["cancelled_at"] = now
		if current.IsPaid() {
			fields["payment_status"] = string(PaymentRefunded)
		}
	}

	changed, err := s.store.UpdateIf(ctx, orderID, Guard{StatusIn: []Status{current.Status}}, fields)
	if err != nil {
		return nil, apperr.Upstream("failed to update order status", true, err)
	}
	if !changed {
		return nil, apperr.Conflict("ORDER_CHANGED", ErrConcurrentUpdate.Error(), nil, ErrConcurrentUpdate)
	}

	s.appendHistory(ctx, orderID, current.Status, status, note)

	updated, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &Transition{Order: updated, From: current.Status, To: status}, nil
}

// UpdatePaymentStatus writes a new payment status and optionally the
// gateway payment id
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, newStatus PaymentStatus, gatewayPaymentID *string) (*Order, error) {
	status, err := ParsePaymentStatus(string(newStatus))
	if err != nil {
		return nil, apperr.Validation(err.Error(), err)
	}
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{"payment_status": string(status)}
	if gatewayPaymentID != nil && *gatewayPaymentID != "" {
		fields["gateway_payment_id"] = *gatewayPaymentID
	}
	if _, err := s.store.UpdateIf(ctx, orderID, Guard{}, fields); err != nil {
		return nil, apperr.Upstream("failed to update payment status", true, err)
	}

	return s.Get(ctx, orderID)
}

// Cancel cancels an order owned by ownerID. Only pending and confirmed
// orders can be cancelled; a paid order is flagged refunded. The returned
// order carries its lines so the caller can put stock back.
func (s *Service) Cancel(ctx context.Context, orderID, ownerID uuid.UUID, reason string) (*Order, error) {
	current, err := s.GetForOwner(ctx, orderID, ownerID)
	if err != nil {
		return nil, err
	}
	if !current.CanBeCancelled() {
		return nil, cannotCancel(current.Status)
	}

	now := s.now()
	fields := map[string]interface{}{
		"status":       string(StatusCancelled),
		"cancelled_at": now,
	}
	if current.IsPaid() {
		fields["payment_status"] = string(PaymentRefunded)
	}

	guard := Guard{
		StatusIn: []Status{StatusPending, StatusConfirmed},
		UserID:   &ownerID,
	}
	changed, err := s.store.UpdateIf(ctx, orderID, guard, fields)
	if err != nil {
		return nil, apperr.Upstream("failed to cancel order", true, err)
	}
	if !changed {
		latest, err := s.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return nil, cannotCancel(latest.Status)
	}

	note := "Order cancelled"
	if reason != "" {
		note = fmt.Sprintf("Order cancelled: %s", reason)
	}
	s.appendHistory(ctx, orderID, current.Status, StatusCancelled, note)

	return s.Get(ctx, orderID)
}

// RecordPayment stores a captured payment. Recording the same gateway
// payment twice returns the first record.
func (s *Service) RecordPayment(ctx context.Context, record *PaymentRecord) (*PaymentRecord, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	saved, created, err := s.store.InsertPayment(ctx, record)
	if err != nil {
		return nil, apperr.Upstream("failed to record payment", true, err)
	}
	if !created {
		s.log.WithField("gateway_payment_id", record.GatewayPaymentID).Info("Payment already recorded")
	}
	return saved, nil
}

// MarkPaid moves an unpaid or failed order to paid and confirms it when it
// is still pending. It reports false when the order was already paid, which
// makes repeated gateway notifications no-ops.
func (s *Service) MarkPaid(ctx context.Context, orderID uuid.UUID, gatewayPaymentID string) (bool, error) {
	fields := map[string]interface{}{"payment_status": string(PaymentPaid)}
	if gatewayPaymentID != "" {
		fields["gateway_payment_id"] = gatewayPaymentID
	}

	changed, err := s.store.UpdateIf(ctx, orderID,
		Guard{PaymentStatusIn: []PaymentStatus{PaymentUnpaid, PaymentFailed}}, fields)
	if err != nil {
		return false, apperr.Upstream("failed to mark order paid", true, err)
	}
	if !changed {
		return false, nil
	}

	confirmed, err := s.store.UpdateIf(ctx, orderID,
		Guard{StatusIn: []Status{StatusPending}},
		map[string]interface{}{"status": string(StatusConfirmed), "confirmed_at": s.now()})
	if err != nil {
		s.log.WithError(err).WithField("order_id", orderID).Warn("Failed to confirm paid order")
		return true, nil
	}
	if confirmed {
		s.appendHistory(ctx, orderID, StatusPending, StatusConfirmed, "Payment captured")
	}
	return true, nil
}

// MarkPaymentFailed records a failed payment attempt unless the order has
// already been paid
func (s *Service) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) (bool, error) {
	changed, err := s.store.UpdateIf(ctx, orderID,
		Guard{PaymentStatusIn: []PaymentStatus{PaymentUnpaid}},
		map[string]interface{}{"payment_status": string(PaymentFailed)})
	if err != nil {
		return false, apperr.Upstream("failed to mark payment failed", true, err)
	}
	return changed, nil
}

// FlagForReview marks an order for manual review with a reason
func (s *Service) FlagForReview(ctx context.Context, orderID uuid.UUID, reason string) error {
	_, err := s.store.UpdateIf(ctx, orderID, Guard{}, map[string]interface{}{
		"needs_review":  true,
		"review_reason": reason,
	})
	if err != nil {
		return apperr.Upstream("failed to flag order for review", true, err)
	}
	s.log.WithFields(logrus.Fields{"order_id": orderID, "reason": reason}).Warn("Order flagged for review")
	return nil
}

func (s *Service) appendHistory(ctx context.Context, orderID uuid.UUID, from, to Status, note string) {
	h := &StatusHistory{
		ID:         uuid.New(),
		OrderID:    orderID,
		FromStatus: from,
		Status:     to,
		Note:       note,
		CreatedAt:  s.now(),
	}
	if err := s.store.AppendHistory(ctx, h); err != nil {
		s.log.WithError(err).WithField("order_id", orderID).Warn("Failed to write status history")
	}
}

func (s *Service) wrapLookup(err error) error {
	if errors.Is(err, ErrOrderNotFound) {
		return apperr.NotFound(ErrOrderNotFound.Error(), ErrOrderNotFound)
	}
	return apperr.Upstream("failed to retrieve order", true, err)
}

func cannotCancel(status Status) error {
	return apperr.Conflict(CodeOrderCannotBeCancelled,
		fmt.Sprintf("%s: %s", ErrOrderCannotBeCancelled.Error(), status),
		map[string]string{"status": string(status)},
		ErrOrderCannotBeCancelled)
}
