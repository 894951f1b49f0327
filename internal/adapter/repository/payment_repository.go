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
)

type paymentRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment ledger backed by gorm
func NewPaymentRepository(db *gorm.DB, logger *zap.Logger) repository.PaymentRepository {
	return &paymentRepository{
		db:     db,
		logger: logger,
	}
}

// InsertPending writes the pending row before any provider call is made
func (r *paymentRepository) InsertPending(ctx context.Context, payment *model.Payment) error {
	if payment.ID == "" {
		payment.ID = model.NewID("pay")
	}
	payment.Status = model.PaymentStatusPending

	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		r.logger.Error("Failed to insert pending payment",
			zap.String("payment_id", payment.ID),
			zap.String("owner_id", payment.OwnerID),
			zap.Error(err))
		return fmt.Errorf("failed to insert pending payment: %w", err)
	}

	return nil
}

// AttachExternalRef stores the provider reference once. Attaching the same
// reference again is a no-op; attaching a different one is an error.
func (r *paymentRepository) AttachExternalRef(ctx context.Context, id, externalRef string) error {
	if externalRef == "" {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND external_ref IS NULL", id).
		Update("external_ref", externalRef)

	if result.Error != nil {
		r.logger.Error("Failed to attach external reference",
			zap.String("payment_id", id),
			zap.String("external_ref", externalRef),
			zap.Error(result.Error))
		return fmt.Errorf("failed to attach external reference: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	payment, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if payment == nil {
		return fmt.Errorf("payment not found: %s", id)
	}
	if payment.Ref() != externalRef {
		return fmt.Errorf("payment %s already has external reference %s", id, payment.Ref())
	}
	return nil
}

// MergeMetadata adds keys to the payment metadata, keeping existing ones
func (r *paymentRepository) MergeMetadata(ctx context.Context, id string, values model.JSONB) error {
	if len(values) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment model.Payment
		if err := tx.Select("id", "metadata").Where("id = ?", id).First(&payment).Error; err != nil {
			return fmt.Errorf("failed to load payment metadata: %w", err)
		}

		merged := model.JSONB{}
		for k, v := range payment.Metadata {
			merged[k] = v
		}
		for k, v := range values {
			merged[k] = v
		}

		if err := tx.Model(&model.Payment{}).Where("id = ?", id).Update("metadata", merged).Error; err != nil {
			return fmt.Errorf("failed to update payment metadata: %w", err)
		}
		return nil
	})
}

// MarkCompleted moves the payment to completed. It returns true only for the
// call that performed the transition.
func (r *paymentRepository) MarkCompleted(ctx context.Context, externalRef string, at time.Time) (bool, error) {
	return r.transition(ctx, "external_ref", externalRef, model.PaymentStatusCompleted, map[string]interface{}{
		"confirmed_at": at,
	})
}

// MarkPartiallyPaid moves a pending payment to partially_paid
func (r *paymentRepository) MarkPartiallyPaid(ctx context.Context, externalRef string) (bool, error) {
	return r.transition(ctx, "external_ref", externalRef, model.PaymentStatusPartiallyPaid, nil)
}

// MarkFailed moves a non-terminal payment to failed
func (r *paymentRepository) MarkFailed(ctx context.Context, externalRef, reason string) (bool, error) {
	return r.transition(ctx, "external_ref", externalRef, model.PaymentStatusFailed, map[string]interface{}{
		"failure_reason": truncate(reason, 255),
	})
}

// MarkFailedByID fails a payment that never received a provider reference
func (r *paymentRepository) MarkFailedByID(ctx context.Context, id, reason string) (bool, error) {
	return r.transition(ctx, "id", id, model.PaymentStatusFailed, map[string]interface{}{
		"failure_reason": truncate(reason, 255),
	})
}

func (r *paymentRepository) transition(ctx context.Context, column, key string, next model.PaymentStatus, extra map[string]interface{}) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("empty %s for %s transition", column, next)
	}

	updates := map[string]interface{}{
		"status": next,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where(column+" = ? AND status IN ?", key, model.TransitionSources(next)).
		Updates(updates)

	if result.Error != nil {
		r.logger.Error("Failed to transition payment",
			zap.String(column, key),
			zap.String("status", string(next)),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to mark payment %s: %w", next, result.Error)
	}

	return result.RowsAffected == 1, nil
}

// FindByID retrieves a payment by its id
func (r *paymentRepository) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByExternalRef retrieves a payment by provider reference
func (r *paymentRepository) FindByExternalRef(ctx context.Context, externalRef string) (*model.Payment, error) {
	return r.findOne(ctx, "external_ref = ?", externalRef)
}

// FindPendingForSubscription returns the in-flight renewal of a subscription
func (r *paymentRepository) FindPendingForSubscription(ctx context.Context, subscriptionID string) (*model.Payment, error) {
	var payment model.Payment

	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND purpose = ? AND status = ?",
			subscriptionID, model.PurposeRenewal, model.PaymentStatusPending).
		Order("created_at DESC").
		First(&payment).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get pending renewal",
			zap.String("subscription_id", subscriptionID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get pending renewal: %w", err)
	}

	return &payment, nil
}

// FindDueForRetry lists card payments stuck in pending since before olderThan
func (r *paymentRepository) FindDueForRetry(ctx context.Context, olderThan time.Time, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment

	query := r.db.WithContext(ctx).
		Where("provider = ? AND status = ? AND created_at <= ?",
			model.ProviderCard, model.PaymentStatusPending, olderThan).
		Order("created_at ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&payments).Error; err != nil {
		r.logger.Error("Failed to get stale pending payments", zap.Error(err))
		return nil, fmt.Errorf("failed to get stale pending payments: %w", err)
	}

	return payments, nil
}

func (r *paymentRepository) findOne(ctx context.Context, where string, arg interface{}) (*model.Payment, error) {
	var payment model.Payment

	err := r.db.WithContext(ctx).Where(where, arg).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get payment",
			zap.String("query", where),
			zap.Any("value", arg),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return &payment, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
