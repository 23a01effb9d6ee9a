// internal/interfaces/http/handlers/order.go
package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/checkout"
	"github.com/your-org/storefront-backend/internal/domain/order"
)

// CheckoutService places, cancels and re-statuses orders
type CheckoutService interface {
	Quote(ctx context.Context, ownerID uuid.UUID, req checkout.QuoteRequest) (*checkout.Quote, error)
	PlaceOrder(ctx context.Context, ownerID uuid.UUID, req checkout.PlaceOrderRequest) (*order.Order, *checkout.PlacementReport, error)
	CancelOrder(ctx context.Context, orderID, ownerID uuid.UUID, reason string) (*order.Order, *checkout.PlacementReport, error)
	AdminUpdateStatus(ctx context.Context, orderID uuid.UUID, status order.Status, note string) (*order.Transition, *checkout.PlacementReport, error)
}

// OrderReader reads orders
type OrderReader interface {
	Get(ctx context.Context, orderID uuid.UUID) (*order.Order, error)
	GetForOwner(ctx context.Context, orderID, ownerID uuid.UUID) (*order.Order, error)
	List(ctx context.Context, req order.ListRequest) (*order.ListResponse, error)
	History(ctx context.Context, orderID uuid.UUID) ([]order.StatusHistory, error)
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status order.PaymentStatus, gatewayPaymentID *string) (*order.Order, error)
}

// InvoiceGenerator renders order invoices as PDF
type InvoiceGenerator interface {
	GenerateInvoice(o *order.Order) (*bytes.Buffer, error)
}

// OrderHandler handles checkout and order endpoints
type OrderHandler struct {
	checkout CheckoutService
	orders   OrderReader
	invoices InvoiceGenerator
	log      logrus.FieldLogger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(checkout CheckoutService, orders OrderReader, invoices InvoiceGenerator, log logrus.FieldLogger) *OrderHandler {
	return &OrderHandler{
		checkout: checkout,
		orders:   orders,
		invoices: invoices,
		log:      log,
	}
}

// CancelOrderRequest represents a customer cancellation
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// Quote handles POST /checkout/quote
func (h *OrderHandler) Quote(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req checkout.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	quote, err := h.checkout.Quote(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkout quote calculated",
		"data":    quote,
	})
}

// PlaceOrder handles POST /orders for cash on delivery
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var details checkout.Details
	if err := c.ShouldBindJSON(&details); err != nil {
		respondBindError(c, err)
		return
	}

	created, report, err := h.checkout.PlaceOrder(c.Request.Context(), userID, checkout.PlaceOrderRequest{Details: details})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order placed successfully",
		"data": gin.H{
			"order":  created,
			"report": report,
		},
	})
}

// ListOrders handles GET /orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req order.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query parameters",
			"details": err.Error(),
		})
		return
	}
	req.UserID = &userID

	resp, err := h.orders.List(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Orders retrieved successfully",
		"data":    resp,
	})
}

// GetOrder handles GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "id", "order ID")
	if !ok {
		return
	}

	o, err := h.orders.GetForOwner(c.Request.Context(), orderID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	history, err := h.orders.History(c.Request.Context(), o.ID)
	if err != nil {
		h.log.WithError(err).WithField("order_id", o.ID).Warn("Failed to load order history")
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order retrieved successfully",
		"data": gin.H{
			"order":   o,
			"history": history,
		},
	})
}

// CancelOrder handles POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "id", "order ID")
	if !ok {
		return
	}

	var req CancelOrderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	cancelled, report, err := h.checkout.CancelOrder(c.Request.Context(), orderID, userID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order cancelled successfully",
		"data": gin.H{
			"order":  cancelled,
			"report": report,
		},
	})
}

// DownloadInvoice handles GET /orders/:id/invoice
func (h *OrderHandler) DownloadInvoice(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "id", "order ID")
	if !ok {
		return
	}

	o, err := h.orders.GetForOwner(c.Request.Context(), orderID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	pdf, err := h.invoices.GenerateInvoice(o)
	if err != nil {
		h.log.WithError(err).WithField("order_id", o.ID).Error("Failed to generate invoice")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate invoice",
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=invoice-%s.pdf", o.OrderNumber))
	c.Header("Content-Length", strconv.Itoa(pdf.Len()))
	c.Data(http.StatusOK, "application/pdf", pdf.Bytes())
}
