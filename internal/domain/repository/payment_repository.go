package repository

import (
	"context"
	"time"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
)

// PaymentRepository is the payment ledger. Every mutator is a conditional
// update restricted to legal source states; the returned bool reports whether
// this call performed the transition.
type PaymentRepository interface {
	InsertPending(ctx context.Context, payment *model.Payment) error
	AttachExternalRef(ctx context.Context, id, externalRef string) error
	MergeMetadata(ctx context.Context, id string, values model.JSONB) error
	MarkCompleted(ctx context.Context, externalRef string, at time.Time) (bool, error)
	MarkPartiallyPaid(ctx context.Context, externalRef string) (bool, error)
	MarkFailed(ctx context.Context, externalRef, reason string) (bool, error)
	MarkFailedByID(ctx context.Context, id, reason string) (bool, error)
	FindByID(ctx context.Context, id string) (*model.Payment, error)
	FindByExternalRef(ctx context.Context, externalRef string) (*model.Payment, error)
	FindPendingForSubscription(ctx context.Context, subscriptionID string) (*model.Payment, error)
	FindDueForRetry(ctx context.Context, olderThan time.Time, limit int) ([]*model.Payment, error)
}
