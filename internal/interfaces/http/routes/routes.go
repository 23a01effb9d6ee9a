// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/interfaces/http/handlers"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
)

// Handlers groups the endpoint handlers
type Handlers struct {
	Cart     *handlers.CartHandler
	Orders   *handlers.OrderHandler
	Payments *handlers.PaymentHandler
	Admin    *handlers.AdminHandler
}

// Guards are the per-route middleware
type Guards struct {
	Auth        gin.HandlerFunc
	Idempotency gin.HandlerFunc
}

// SetupRoutes sets up all API routes
func SetupRoutes(rg *gin.RouterGroup, h Handlers, g Guards) {
	SetupWebhookRoutes(rg, h)
	SetupCartRoutes(rg, h, g)
	SetupOrderRoutes(rg, h, g)
	SetupPaymentRoutes(rg, h, g)
	SetupAdminRoutes(rg, h, g)
}

// SetupWebhookRoutes sets up the public gateway callback
func SetupWebhookRoutes(rg *gin.RouterGroup, h Handlers) {
	rg.POST("/payments/webhook", h.Payments.Webhook)
}

// SetupCartRoutes sets up cart related routes
func SetupCartRoutes(rg *gin.RouterGroup, h Handlers, g Guards) {
	cart := rg.Group("/cart")
	cart.Use(g.Auth)
	{
		cart.GET("", h.Cart.GetCart)
		cart.DELETE("", h.Cart.ClearCart)
		cart.GET("/stock", h.Cart.CheckStock)
		cart.POST("/items", h.Cart.AddItem)
		cart.PUT("/items/:id", h.Cart.UpdateItem)
		cart.DELETE("/items/:id", h.Cart.RemoveItem)
	}
}

// SetupOrderRoutes sets up checkout and order routes
func SetupOrderRoutes(rg *gin.RouterGroup, h Handlers, g Guards) {
	rg.POST("/checkout/quote", g.Auth, h.Orders.Quote)

	orders := rg.Group("/orders")
	orders.Use(g.Auth)
	{
		orders.POST("", g.Idempotency, h.Orders.PlaceOrder)
		orders.GET("", h.Orders.ListOrders)
		orders.GET("/:id", h.Orders.GetOrder)
		orders.POST("/:id/cancel", h.Orders.CancelOrder)
		orders.GET("/:id/invoice", h.Orders.DownloadInvoice)
	}
}

// SetupPaymentRoutes sets up authenticated payment routes
func SetupPaymentRoutes(rg *gin.RouterGroup, h Handlers, g Guards) {
	payments := rg.Group("/payments")
	payments.Use(g.Auth)
	{
		payments.POST("/intent", h.Payments.CreateIntent)
		payments.POST("/verify", g.Idempotency, h.Payments.VerifyPayment)
	}
}

// SetupAdminRoutes sets up operator routes
func SetupAdminRoutes(rg *gin.RouterGroup, h Handlers, g Guards) {
	admin := rg.Group("/admin")
	admin.Use(g.Auth, middleware.Admin())
	{
		admin.GET("/orders", h.Admin.ListOrders)
		admin.PUT("/orders/:id/status", h.Admin.UpdateOrderStatus)
		admin.PUT("/orders/:id/payment-status", h.Admin.UpdatePaymentStatus)
		admin.GET("/repairs", h.Admin.ListRepairs)
	}
}
