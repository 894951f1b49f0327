package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type planRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *gorm.DB, logger *zap.Logger) repository.PlanRepository {
	return &planRepository{
		db:     db,
		logger: logger,
	}
}

// FindByID retrieves an active plan
func (r *planRepository) FindByID(ctx context.Context, id string) (*model.Plan, error) {
	var plan model.Plan

	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&plan).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get plan",
			zap.String("plan_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	return &plan, nil
}

// ListActive retrieves all active plans
func (r *planRepository) ListActive(ctx context.Context) ([]*model.Plan, error) {
	var plans []*model.Plan

	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, name ASC").
		Find(&plans).Error

	if err != nil {
		r.logger.Error("Failed to get all plans", zap.Error(err))
		return nil, fmt.Errorf("failed to get plans: %w", err)
	}

	return plans, nil
}

// Upsert creates or updates a plan
func (r *planRepository) Upsert(ctx context.Context, plan *model.Plan) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "amount", "currency", "billing_cycle", "recurring", "sort_order", "is_active", "updated_at",
			}),
		}).
		Create(plan).Error

	if err != nil {
		r.logger.Error("Failed to upsert plan",
			zap.String("plan_id", plan.ID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert plan: %w", err)
	}

	return nil
}
