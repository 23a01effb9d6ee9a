// internal/interfaces/http/handlers/admin.go
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/outbox"
)

// RepairLister lists unresolved repair tasks
type RepairLister interface {
	ListOpenRepairs(ctx context.Context, offset, limit int) ([]outbox.RepairTask, int64, error)
}

// AdminHandler handles operator endpoints
type AdminHandler struct {
	checkout CheckoutService
	orders   OrderReader
	repairs  RepairLister
	log      logrus.FieldLogger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(checkout CheckoutService, orders OrderReader, repairs RepairLister, log logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{
		checkout: checkout,
		orders:   orders,
		repairs:  repairs,
		log:      log,
	}
}

// UpdateStatusRequest represents an operator status change
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note" binding:"max=500"`
}

// UpdatePaymentStatusRequest represents an operator payment status change
type UpdatePaymentStatusRequest struct {
	PaymentStatus    string  `json:"payment_status" binding:"required"`
	GatewayPaymentID *string `json:"gateway_payment_id"`
}

// ListRepairsRequest represents repair list query parameters
type ListRepairsRequest struct {
	Page  int `form:"page,default=1" binding:"min=1"`
	Limit int `form:"limit,default=50" binding:"min=1,max=200"`
}

// ListOrders handles GET /admin/orders
func (h *AdminHandler) ListOrders(c *gin.Context) {
	var req order.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query parameters",
			"details": err.Error(),
		})
		return
	}

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

// UpdateOrderStatus handles PUT /admin/orders/:id/status
func (h *AdminHandler) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := uuidParam(c, "id", "order ID")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	status, err := order.ParseStatus(req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	tr, report, err := h.checkout.AdminUpdateStatus(c.Request.Context(), orderID, status, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order status updated successfully",
		"data": gin.H{
			"order":  tr.Order,
			"from":   tr.From,
			"to":     tr.To,
			"report": report,
		},
	})
}

// UpdatePaymentStatus handles PUT /admin/orders/:id/payment-status
func (h *AdminHandler) UpdatePaymentStatus(c *gin.Context) {
	orderID, ok := uuidParam(c, "id", "order ID")
	if !ok {
		return
	}

	var req UpdatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	status, err := order.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.orders.UpdatePaymentStatus(c.Request.Context(), orderID, status, req.GatewayPaymentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment status updated successfully",
		"data":    updated,
	})
}

// ListRepairs handles GET /admin/repairs
func (h *AdminHandler) ListRepairs(c *gin.Context) {
	var req ListRepairsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query parameters",
			"details": err.Error(),
		})
		return
	}

	tasks, total, err := h.repairs.ListOpenRepairs(c.Request.Context(), (req.Page-1)*req.Limit, req.Limit)
	if err != nil {
		h.log.WithError(err).Error("Failed to list repair tasks")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list repair tasks",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Repair tasks retrieved successfully",
		"data": gin.H{
			"tasks": tasks,
			"total": total,
			"page":  req.Page,
			"limit": req.Limit,
		},
	})
}
