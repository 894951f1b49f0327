package repository

import (
	"context"
	"time"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
)

type ResourceRepository interface {
	// ActivatePending flips every inactive resource of the owner to active in
	// one conditional update and returns how many rows changed.
	ActivatePending(ctx context.Context, ownerID, paymentID string, expiresAt time.Time) (int64, error)
	ExtendActive(ctx context.Context, ownerID string, expiresAt time.Time) (int64, error)
	CountActive(ctx context.Context, ownerID string) (int64, error)
	FindByID(ctx context.Context, id string) (*model.Resource, error)
	// BindDomain clears the domain from any other resource and sets it on the
	// owner's resource, in one transaction.
	BindDomain(ctx context.Context, ownerID, resourceID, domain string) error
}
