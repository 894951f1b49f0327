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

type webhookEventRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db *gorm.DB, logger *zap.Logger) repository.WebhookEventRepository {
	return &webhookEventRepository{
		db:     db,
		logger: logger,
	}
}

// SaveEvent saves a webhook event; a redelivery of the same key is ignored
func (r *webhookEventRepository) SaveEvent(ctx context.Context, event *model.WebhookEvent) (bool, error) {
	if event.ProcessingStatus == "" {
		event.ProcessingStatus = model.WebhookStatusPending
	}

	// Use ON CONFLICT to handle duplicate events
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)

	if result.Error != nil {
		r.logger.Error("Failed to save webhook event",
			zap.String("provider", event.Provider),
			zap.String("event_key", event.EventKey),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to save webhook event: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

// MarkProcessed marks a webhook event as processed
func (r *webhookEventRepository) MarkProcessed(ctx context.Context, provider, eventKey string) error {
	now := time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("provider = ? AND event_key = ?", provider, eventKey).
		Updates(map[string]interface{}{
			"processing_status": model.WebhookStatusCompleted,
			"processed_at":      &now,
			"last_error":        nil,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark webhook as processed",
			zap.String("provider", provider),
			zap.String("event_key", eventKey),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark webhook as processed: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook event not found: %s/%s", provider, eventKey)
	}

	return nil
}

// MarkFailed marks a webhook event as failed and schedules the next look
func (r *webhookEventRepository) MarkFailed(ctx context.Context, provider, eventKey string, cause error) error {
	var event model.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND event_key = ?", provider, eventKey).
		First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("webhook event not found: %s/%s", provider, eventKey)
		}
		return fmt.Errorf("failed to get webhook event: %w", err)
	}

	// Exponential backoff: 10, 20, 40 minutes ... capped at one day
	retryCount := event.RetryCount + 1
	retryMinutes := 5 * (1 << retryCount)
	if retryMinutes > 1440 || retryCount > 8 {
		retryMinutes = 1440
	}
	nextRetry := time.Now().Add(time.Duration(retryMinutes) * time.Minute)

	errorMsg := cause.Error()

	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]interface{}{
			"processing_status": model.WebhookStatusFailed,
			"retry_count":       retryCount,
			"last_error":        &errorMsg,
			"next_retry_at":     &nextRetry,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark webhook as failed",
			zap.String("provider", provider),
			zap.String("event_key", eventKey),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark webhook as failed: %w", result.Error)
	}

	return nil
}

// GetFailedEvents lists failed events whose retry time has come
func (r *webhookEventRepository) GetFailedEvents(ctx context.Context, limit int) ([]*model.WebhookEvent, error) {
	var events []*model.WebhookEvent

	query := r.db.WithContext(ctx).
		Where("processing_status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
			model.WebhookStatusFailed, time.Now()).
		Order("created_at ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&events).Error; err != nil {
		r.logger.Error("Failed to get failed webhook events", zap.Error(err))
		return nil, fmt.Errorf("failed to get failed webhook events: %w", err)
	}

	return events, nil
}
