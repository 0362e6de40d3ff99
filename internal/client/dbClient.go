package client

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"datanexus-marketplace/internal/model"
)

func InitSqliteClient(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&model.Product{},
		&model.Order{},
		&model.DataRequest{},
		&model.Proposal{},
		&model.Escrow{},
		&model.Dispute{},
		&model.Refund{},
		&model.ChainRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	// At most one completed order per (product, buyer); the database backs
	// the check the order service runs in its completion transaction.
	if err := db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_completed_pair ON orders (product_id, buyer_id) WHERE status = 'completed'",
	).Error; err != nil {
		return nil, fmt.Errorf("create completed-order index: %w", err)
	}

	return db, nil
}
