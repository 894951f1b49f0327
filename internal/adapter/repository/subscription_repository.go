package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type subscriptionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB, logger *zap.Logger) repository.SubscriptionRepository {
	return &subscriptionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a subscription, ignoring a second insert for the same origin payment
func (r *subscriptionRepository) Create(ctx context.Context, subscription *model.Subscription) (bool, error) {
	if subscription.ID == "" {
		subscription.ID = model.NewID("sub")
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "origin_payment_id"}},
			DoNothing: true,
		}).
		Create(subscription)

	if result.Error != nil {
		r.logger.Error("Failed to create subscription",
			zap.String("owner_id", subscription.OwnerID),
			zap.String("origin_payment_id", subscription.OriginPaymentID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to create subscription: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

// FindByID retrieves a subscription by id
func (r *subscriptionRepository) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	var sub model.Subscription

	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get subscription by ID",
			zap.String("subscription_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// FindDue lists active subscriptions whose next payment is due
func (r *subscriptionRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error) {
	var subs []*model.Subscription

	query := r.db.WithContext(ctx).
		Where("status = ? AND next_payment_at <= ?", model.SubscriptionStatusActive, now).
		Order("next_payment_at ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&subs).Error; err != nil {
		r.logger.Error("Failed to get due subscriptions", zap.Error(err))
		return nil, fmt.Errorf("failed to get due subscriptions: %w", err)
	}

	return subs, nil
}

// RecordSuccess resets the failure counter and stores the new period. A
// renewal that settles late restores a past_due subscription. The renewal
// payment id guards the row so one payment advances it only once.
func (r *subscriptionRepository) RecordSuccess(ctx context.Context, id, paymentID string, periodStart, periodEnd, chargedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("id = ? AND (last_renewal_payment_id IS NULL OR last_renewal_payment_id <> ?)", id, paymentID).
		Updates(map[string]interface{}{
			"status":                  model.SubscriptionStatusActive,
			"consecutive_failures":    0,
			"current_period_start":    periodStart,
			"current_period_end":      periodEnd,
			"next_payment_at":         periodEnd,
			"last_charged_at":         chargedAt,
			"last_failure_reason":     nil,
			"last_renewal_payment_id": paymentID,
		})

	if result.Error != nil {
		r.logger.Error("Failed to record successful renewal",
			zap.String("subscription_id", id),
			zap.String("payment_id", paymentID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to record renewal: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	sub, err := r.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, fmt.Errorf("subscription not found: %s", id)
	}
	return false, nil
}

// RecordFailure increments the counter in SQL so concurrent writers cannot
// lose an increment, and flips to past_due at the threshold.
func (r *subscriptionRepository) RecordFailure(ctx context.Context, id, reason string, threshold int) (*model.Subscription, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("id = ? AND status = ?", id, model.SubscriptionStatusActive).
		Updates(map[string]interface{}{
			"consecutive_failures": gorm.Expr("consecutive_failures + 1"),
			"status": gorm.Expr("CASE WHEN consecutive_failures + 1 >= ? THEN ? ELSE status END",
				threshold, model.SubscriptionStatusPastDue),
			"last_failure_reason": truncate(reason, 255),
		})

	if result.Error != nil {
		r.logger.Error("Failed to record renewal failure",
			zap.String("subscription_id", id),
			zap.Error(result.Error))
		return nil, fmt.Errorf("failed to record renewal failure: %w", result.Error)
	}

	return r.FindByID(ctx, id)
}

// Reactivate moves a past_due subscription back to active for its owner
func (r *subscriptionRepository) Reactivate(ctx context.Context, id, ownerID string, nextPaymentAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("id = ? AND owner_id = ? AND status = ?", id, ownerID, model.SubscriptionStatusPastDue).
		Updates(map[string]interface{}{
			"status":               model.SubscriptionStatusActive,
			"consecutive_failures": 0,
			"next_payment_at":      nextPaymentAt,
		})

	if result.Error != nil {
		r.logger.Error("Failed to reactivate subscription",
			zap.String("subscription_id", id),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to reactivate subscription: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}
