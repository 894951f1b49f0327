package usecase

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/repository"
)

type plansFile struct {
	Plans []planEntry `yaml:"plans"`
}

type planEntry struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Amount       string `yaml:"amount"`
	Currency     string `yaml:"currency"`
	BillingCycle string `yaml:"billing_cycle"`
	Recurring    bool   `yaml:"recurring"`
	SortOrder    int    `yaml:"sort_order"`
	IsActive     *bool  `yaml:"is_active"`
}

// ParsePlans decodes a plans YAML document. Amounts are strings so they
// never pass through a float.
func ParsePlans(data []byte) ([]*model.Plan, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var file plansFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal plans yaml: %w", err)
	}

	seen := make(map[string]bool, len(file.Plans))
	plans := make([]*model.Plan, 0, len(file.Plans))
	for i, entry := range file.Plans {
		if entry.ID == "" {
			return nil, fmt.Errorf("plans[%d]: id is required", i)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("plans[%d]: duplicate id %q", i, entry.ID)
		}
		seen[entry.ID] = true
		if entry.Name == "" {
			return nil, fmt.Errorf("plans[%d]: name is required", i)
		}

		amount, err := decimal.NewFromString(entry.Amount)
		if err != nil || !amount.IsPositive() {
			return nil, fmt.Errorf("plans[%d]: amount must be a positive decimal", i)
		}

		currency := strings.ToUpper(strings.TrimSpace(entry.Currency))
		if currency == "" {
			currency = "USD"
		}
		if len(currency) != 3 {
			return nil, fmt.Errorf("plans[%d]: invalid currency %q", i, entry.Currency)
		}

		cycle := model.BillingCycle(entry.BillingCycle)
		if cycle == "" {
			cycle = model.BillingCycleMonthly
		}
		if !cycle.Valid() {
			return nil, fmt.Errorf("plans[%d]: invalid billing_cycle %q", i, entry.BillingCycle)
		}

		isActive := true
		if entry.IsActive != nil {
			isActive = *entry.IsActive
		}

		plans = append(plans, &model.Plan{
			ID:           entry.ID,
			Name:         entry.Name,
			Amount:       amount.Round(2),
			Currency:     currency,
			BillingCycle: cycle,
			Recurring:    entry.Recurring,
			SortOrder:    entry.SortOrder,
			IsActive:     isActive,
		})
	}
	return plans, nil
}

// PlanCatalog keeps the plans table in step with a YAML catalog
type PlanCatalog struct {
	planRepo repository.PlanRepository
	logger   *zap.Logger
}

func NewPlanCatalog(planRepo repository.PlanRepository, logger *zap.Logger) *PlanCatalog {
	return &PlanCatalog{planRepo: planRepo, logger: logger}
}

// Sync upserts every plan and returns how many were written. It keeps going
// past a failed plan so one bad row does not block the rest.
func (c *PlanCatalog) Sync(ctx context.Context, plans []*model.Plan) (int, error) {
	synced := 0
	var firstErr error
	for _, plan := range plans {
		if err := c.planRepo.Upsert(ctx, plan); err != nil {
			c.logger.Error("Failed to upsert plan",
				zap.String("plan_id", plan.ID),
				zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("upsert plan %s: %w", plan.ID, err)
			}
			continue
		}
		synced++
	}

	c.logger.Info("Plan catalog synced",
		zap.Int("plans", len(plans)),
		zap.Int("synced", synced))
	return synced, firstErr
}
