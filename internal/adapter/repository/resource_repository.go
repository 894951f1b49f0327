package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type resourceRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewResourceRepository creates a new resource repository
func NewResourceRepository(db *gorm.DB, logger *zap.Logger) repository.ResourceRepository {
	return &resourceRepository{
		db:     db,
		logger: logger,
	}
}

// ActivatePending activates every inactive resource of the owner. A second
// call finds nothing left to flip and returns 0.
func (r *resourceRepository) ActivatePending(ctx context.Context, ownerID, paymentID string, expiresAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Resource{}).
		Where("owner_id = ? AND active = ?", ownerID, false).
		Updates(map[string]interface{}{
			"active":                  true,
			"expires_at":              expiresAt,
			"activated_by_payment_id": paymentID,
		})

	if result.Error != nil {
		r.logger.Error("Failed to activate resources",
			zap.String("owner_id", ownerID),
			zap.String("payment_id", paymentID),
			zap.Error(result.Error))
		return 0, fmt.Errorf("failed to activate resources: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// ExtendActive moves the expiry of the owner's active resources
func (r *resourceRepository) ExtendActive(ctx context.Context, ownerID string, expiresAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Resource{}).
		Where("owner_id = ? AND active = ?", ownerID, true).
		Update("expires_at", expiresAt)

	if result.Error != nil {
		r.logger.Error("Failed to extend resources",
			zap.String("owner_id", ownerID),
			zap.Error(result.Error))
		return 0, fmt.Errorf("failed to extend resources: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// CountActive counts the owner's active resources
func (r *resourceRepository) CountActive(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Resource{}).
		Where("owner_id = ? AND active = ?", ownerID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active resources: %w", err)
	}
	return count, nil
}

// FindByID retrieves a resource by id
func (r *resourceRepository) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	var resource model.Resource

	err := r.db.WithContext(ctx).Where("id = ?", id).First(&resource).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}

	return &resource, nil
}

// BindDomain gives the domain to exactly one resource of the owner
func (r *resourceRepository) BindDomain(ctx context.Context, ownerID, resourceID, domain string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target model.Resource
		if err := tx.Where("id = ? AND owner_id = ?", resourceID, ownerID).First(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainErrors.ErrResourceNotFound
			}
			return err
		}

		// Domains are unique across resources; release it first.
		if err := tx.Model(&model.Resource{}).
			Where("domain = ? AND id <> ?", domain, resourceID).
			Update("domain", nil).Error; err != nil {
			return err
		}

		return tx.Model(&model.Resource{}).
			Where("id = ?", resourceID).
			Update("domain", domain).Error
	})

	if err != nil {
		r.logger.Error("Failed to bind domain",
			zap.String("resource_id", resourceID),
			zap.String("domain", domain),
			zap.Error(err))
		if errors.Is(err, domainErrors.ErrResourceNotFound) {
			return err
		}
		return fmt.Errorf("failed to bind domain: %w", err)
	}

	return nil
}
