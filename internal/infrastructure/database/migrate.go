package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
)

// Models lists every table owned by the payment service
func Models() []interface{} {
	return []interface{}{
		&model.Plan{},
		&model.Payment{},
		&model.Subscription{},
		&model.Resource{},
		&model.WebhookEvent{},
	}
}

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	if err := db.AutoMigrate(Models()...); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}
	logger.Info("GORM auto-migrations completed successfully")

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomIndexes creates partial indexes that GORM tags cannot express
func createCustomIndexes(db *gorm.DB) error {
	statements := []string{
		// pending sweep for the reconciler and in-flight renewal lookups
		`CREATE INDEX IF NOT EXISTS idx_payments_pending ON payments (created_at) WHERE status IN ('pending', 'partially_paid')`,
		`CREATE INDEX IF NOT EXISTS idx_payments_subscription_pending ON payments (subscription_id) WHERE status = 'pending' AND subscription_id IS NOT NULL`,
		// billing due set
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_due ON subscriptions (next_payment_at) WHERE status = 'active'`,
		// activation scans only inactive rows
		`CREATE INDEX IF NOT EXISTS idx_resources_inactive ON resources (owner_id) WHERE active = false`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_events_unprocessed ON webhook_events (created_at) WHERE processing_status IN ('pending', 'failed')`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
