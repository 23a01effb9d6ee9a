// cmd/api/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/catalog"
	"github.com/your-org/storefront-backend/internal/domain/checkout"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/outbox"
	"github.com/your-org/storefront-backend/internal/domain/payment"
	"github.com/your-org/storefront-backend/internal/domain/shipment"
	"github.com/your-org/storefront-backend/internal/infrastructure/database/postgres"
	"github.com/your-org/storefront-backend/internal/infrastructure/database/redis"
	"github.com/your-org/storefront-backend/internal/infrastructure/events"
	"github.com/your-org/storefront-backend/internal/interfaces/http"
	"github.com/your-org/storefront-backend/internal/interfaces/http/handlers"
	"github.com/your-org/storefront-backend/internal/interfaces/http/routes"
	"github.com/your-org/storefront-backend/internal/pkg/auth"
	"github.com/your-org/storefront-backend/internal/pkg/logger"
	"github.com/your-org/storefront-backend/internal/pkg/pdf"
	"github.com/your-org/storefront-backend/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logr := logger.New(cfg.Logging)
	log.Printf("🚀 Starting %s v%s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Environment)

	// Connect to database
	db, err := postgres.NewConnection(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Connect to Redis
	redisClient, err := redis.NewConnection(cfg, logr)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	if err := db.Health(); err != nil {
		log.Fatalf("Database health check failed: %v", err)
	}

	// Run database migrations
	migration := postgres.NewMigration(db.GetDB())
	if err := migration.RunMigrations(); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}
	if err := migration.CreateIndexes(); err != nil {
		log.Printf("Warning: Index creation failed: %v", err)
	}

	// Seed initial data in development
	if cfg.IsDevelopment() {
		if err := migration.SeedInitialData(); err != nil {
			log.Printf("Warning: Data seeding failed: %v", err)
		}
		_ = migration.GetTableInfo()
	}

	expressCharge, err := decimal.NewFromString(cfg.Checkout.ExpressCharge)
	if err != nil {
		log.Fatalf("Invalid CHECKOUT_EXPRESS_CHARGE: %v", err)
	}
	rateCard, err := shipment.RateCardFromConfig(cfg.Shipping)
	if err != nil {
		log.Fatalf("Invalid shipping rate card: %v", err)
	}

	// Stores
	gdb := db.GetDB()
	outboxStore := outbox.NewGormStore(gdb)

	// Domain services
	cartService := cart.NewService(cart.NewGormStore(gdb), catalog.NewGormStore(gdb), logr.WithField("component", "cart"))
	inventoryService := inventory.NewService(inventory.NewGormStore(gdb), logr.WithField("component", "inventory"))
	orderService := order.NewService(order.NewGormStore(gdb), logr.WithField("component", "order"))
	shipments := shipment.NewRateCardCreator(rateCard, shipment.NewGormStore(gdb), logr.WithField("component", "shipment"))

	checkoutService := checkout.NewService(cartService, inventoryService, orderService, shipments, outboxStore,
		checkout.Options{ExpressCharge: expressCharge, Currency: cfg.Razorpay.Currency},
		logr.WithField("component", "checkout"))

	gatewayCfg := payment.GatewayConfigFrom(cfg.Razorpay)
	reconciler := payment.NewReconciler(
		gatewayCfg,
		payment.NewRazorpayClient(gatewayCfg, logr.WithField("component", "razorpay")),
		payment.NewRedisIntentStore(redisClient),
		checkoutService,
		orderService,
		outboxStore,
		payment.Options{IntentTTL: cfg.Checkout.IntentTTL, LockTTL: cfg.Checkout.VerifyLockTTL},
		logr.WithField("component", "payment"),
	)

	// Background sweeper: publishes outbox events and retries failed steps.
	// Run returns at once when WORKER_ENABLED=false.
	publisher := events.NewPublisher(cfg.Kafka, logr.WithField("component", "events"))
	defer publisher.Close()
	sweeper := worker.NewSweeper(outboxStore, publisher, checkoutService, cfg.Worker, logr.WithField("component", "sweeper"))

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		sweeper.Run(workerCtx)
	}()

	log.Println("✅ All systems operational!")

	// Create and start HTTP server
	server := http.NewServer(cfg, http.Dependencies{
		Redis:  redisClient.Redis,
		Tokens: auth.NewJWTManager(cfg.JWT),
		Handlers: routes.Handlers{
			Cart:     handlers.NewCartHandler(cartService),
			Orders:   handlers.NewOrderHandler(checkoutService, orderService, pdf.NewService(cfg.Invoice), logr),
			Payments: handlers.NewPaymentHandler(reconciler, logr),
			Admin:    handlers.NewAdminHandler(checkoutService, orderService, outboxStore, logr),
		},
		Checks: []http.HealthCheck{
			{Name: "database", Check: func(ctx context.Context) error { return db.Health() }},
			{Name: "redis", Check: redisClient.Health},
		},
	}, logr)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("👋 Shutting down gracefully...")

	// Give server 30 seconds to shutdown gracefully
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("Failed to shutdown HTTP server gracefully: %v", err)
	}

	stopWorker()
	<-workerDone

	log.Println("✅ Server shutdown completed")
}
