package database

import (
	"fmt"

	"gorm.io/gorm"

	"checkout/internal/model"
	"checkout/pkg/log"
)

// AutoMigrate auto migrate database table schema
func AutoMigrate(db *gorm.DB) error {
	log.Info("Starting database migration...")

	models := []interface{}{
		&model.CartItem{},
		&model.Stock{},
		&model.StockReservation{},
		&model.ReservationItem{},
		&model.Order{},
		&model.Payment{},
		&model.ProcessedEvent{},
	}

	for _, model := range models {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
		log.Infof("Migrated model: %T", model)
	}

	log.Info("Database migration completed successfully")
	return nil
}

// CreateIndexes create additional indexes
func CreateIndexes(db *gorm.DB) error {
	log.Info("Creating additional indexes...")

	indexes := []struct {
		table string
		name  string
		sql   string
	}{
		{
			table: "cart_items",
			name:  "idx_cart_items_user_status",
			sql:   "CREATE INDEX IF NOT EXISTS idx_cart_items_user_status ON cart_items (user_id, status)",
		},
		{
			table: "orders",
			name:  "idx_orders_user_status",
			sql:   "CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders (user_id, status, created_at)",
		},
		{
			table: "stock_reservations",
			name:  "idx_reservations_status_expire",
			sql:   "CREATE INDEX IF NOT EXISTS idx_reservations_status_expire ON stock_reservations (status, expire_at)",
		},
		{
			table: "payments",
			name:  "idx_payments_status_updated",
			sql:   "CREATE INDEX IF NOT EXISTS idx_payments_status_updated ON payments (status, updated_at)",
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.sql).Error; err != nil {
			log.Warnf("Failed to create index %s on table %s: %v", idx.name, idx.table, err)
		} else {
			log.Infof("Created index: %s on table %s", idx.name, idx.table)
		}
	}

	log.Info("Index creation completed")
	return nil
}

// DropTables drop all tables
func DropTables(db *gorm.DB) error {
	log.Warn("Dropping all tables...")

	tables := []string{
		"processed_events",
		"payments",
		"orders",
		"reservation_items",
		"stock_reservations",
		"stocks",
		"cart_items",
	}

	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)).Error; err != nil {
			log.Warnf("Failed to drop table %s: %v", table, err)
		} else {
			log.Infof("Dropped table: %s", table)
		}
	}

	log.Warn("All tables dropped")
	return nil
}
