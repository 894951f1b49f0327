package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/adapter/repository"
	domainRepo "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/repository"
)

// Repositories holds all repository instances
type Repositories struct {
	Payment      domainRepo.PaymentRepository
	Subscription domainRepo.SubscriptionRepository
	Resource     domainRepo.ResourceRepository
	Plan         domainRepo.PlanRepository
	Webhook      domainRepo.WebhookEventRepository
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Payment:      repository.NewPaymentRepository(db, logger),
		Subscription: repository.NewSubscriptionRepository(db, logger),
		Resource:     repository.NewResourceRepository(db, logger),
		Plan:         repository.NewPlanRepository(db, logger),
		Webhook:      repository.NewWebhookEventRepository(db, logger),
	}
}
