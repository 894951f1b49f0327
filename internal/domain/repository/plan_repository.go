package repository

import (
	"context"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
)

type PlanRepository interface {
	FindByID(ctx context.Context, id string) (*model.Plan, error)
	ListActive(ctx context.Context) ([]*model.Plan, error)
	Upsert(ctx context.Context, plan *model.Plan) error
}
