// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/domain/catalog"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunMigrations applies the embedded SQL migrations
func (m *Migration) RunMigrations() error {
	log.Println("🔄 Running database migrations...")

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	version, dirty, _ := mg.Version()
	log.Printf("✅ Database schema at version %d (dirty=%t)", version, dirty)
	return nil
}

// CreateIndexes creates additional indexes for the read paths
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating additional database indexes...")

	indexes := []string{
		// Catalog indexes
		"CREATE INDEX IF NOT EXISTS idx_bundles_active_name ON bundles(is_active, name)",
		"CREATE INDEX IF NOT EXISTS idx_products_active ON products(is_active)",

		// Cart indexes
		"CREATE INDEX IF NOT EXISTS idx_cart_items_cart_created ON cart_items(cart_id, created_at)",

		// Order indexes
		"CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_payment_status ON orders(payment_status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_needs_review ON orders(needs_review) WHERE needs_review",
		"CREATE INDEX IF NOT EXISTS idx_order_lines_order ON order_lines(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_payment_records_order ON payment_records(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_status_history_order ON order_status_history(order_id, created_at DESC)",

		// Fulfillment indexes
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_bundle ON stock_movements(bundle_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_reference ON stock_movements(reference_type, reference_id)",
		"CREATE INDEX IF NOT EXISTS idx_repair_tasks_open ON repair_tasks(created_at) WHERE resolved_at IS NULL",
		"CREATE INDEX IF NOT EXISTS idx_outbox_events_unprocessed ON outbox_events(id) WHERE processed_at IS NULL",
	}

	successCount := 0
	failCount := 0

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			log.Printf("⚠️ Failed to create index: %v", err)
			failCount++
		} else {
			successCount++
		}
	}

	log.Printf("✅ Created %d indexes successfully (%d failed)", successCount, failCount)
	return nil
}

// SeedInitialData inserts a small development catalog
func (m *Migration) SeedInitialData() error {
	log.Println("🌱 Seeding initial data...")

	var bundleCount int64
	if err := m.db.Model(&catalog.Bundle{}).Count(&bundleCount).Error; err != nil {
		return fmt.Errorf("failed to count bundles: %w", err)
	}
	if bundleCount > 0 {
		log.Println("⏭️ Catalog already seeded")
		return nil
	}

	intPtr := func(v int) *int { return &v }

	products := []catalog.Product{
		{ID: uuid.New(), SKU: "PRD-BRUSH-01", Name: "Bamboo Toothbrush", Price: decimal.RequireFromString("99.00"), WeightGrams: intPtr(40), StockLimit: intPtr(200), IsActive: true},
		{ID: uuid.New(), SKU: "PRD-PASTE-01", Name: "Herbal Toothpaste", Price: decimal.RequireFromString("149.00"), WeightGrams: intPtr(150), StockLimit: intPtr(120), IsActive: true},
		{ID: uuid.New(), SKU: "PRD-FLOSS-01", Name: "Silk Floss", Price: decimal.RequireFromString("199.00"), WeightGrams: intPtr(30), IsActive: true},
	}

	bundles := []catalog.Bundle{
		{
			ID: uuid.New(), SKU: "BND-STARTER", Name: "Oral Care Starter Kit",
			Description: "Toothbrush and toothpaste",
			Price:       decimal.RequireFromString("229.00"), WeightGrams: intPtr(200), StockLimit: intPtr(25), IsActive: true,
		},
		{
			ID: uuid.New(), SKU: "BND-FAMILY", Name: "Family Pack",
			Description: "Four toothbrushes, two toothpastes and floss",
			Price:       decimal.RequireFromString("799.00"), WeightGrams: intPtr(650), StockLimit: intPtr(5), IsActive: true,
		},
		{
			ID: uuid.New(), SKU: "BND-EGIFT", Name: "Gift Voucher Pack",
			Description: "Printed voucher, never out of stock",
			Price:       decimal.RequireFromString("500.00"), WeightGrams: intPtr(20), IsActive: true,
		},
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&products).Error; err != nil {
			return fmt.Errorf("failed to seed products: %w", err)
		}
		if err := tx.Create(&bundles).Error; err != nil {
			return fmt.Errorf("failed to seed bundles: %w", err)
		}

		items := []catalog.BundleItem{
			{BundleID: bundles[0].ID, ProductID: products[0].ID, Quantity: 1},
			{BundleID: bundles[0].ID, ProductID: products[1].ID, Quantity: 1},
			{BundleID: bundles[1].ID, ProductID: products[0].ID, Quantity: 4},
			{BundleID: bundles[1].ID, ProductID: products[1].ID, Quantity: 2},
			{BundleID: bundles[1].ID, ProductID: products[2].ID, Quantity: 1},
		}
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("failed to seed bundle items: %w", err)
		}

		log.Printf("✅ Seeded %d products and %d bundles", len(products), len(bundles))
		return nil
	})
}

// GetTableInfo logs row counts per table
func (m *Migration) GetTableInfo() error {
	var tables []string

	if err := m.db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename").Scan(&tables).Error; err != nil {
		return err
	}

	log.Println("📊 Database Tables Information:")
	log.Println("================================")

	totalRecords := int64(0)
	for _, table := range tables {
		var count int64
		m.db.Table(table).Count(&count)
		totalRecords += count

		status := "✅"
		if count == 0 {
			status = "📭"
		}

		log.Printf("%s %-25s | %d records", status, table, count)
	}

	log.Println("================================")
	log.Printf("📈 Total records across all tables: %d", totalRecords)
	return nil
}
