package repository

import (
	"context"
	"time"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
)

type SubscriptionRepository interface {
	// Create inserts the subscription unless one already exists for the same
	// origin payment. It reports whether a row was inserted.
	Create(ctx context.Context, subscription *model.Subscription) (bool, error)
	FindByID(ctx context.Context, id string) (*model.Subscription, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error)
	// RecordSuccess resets the failure counter and moves the period forward
	// to the given bounds on behalf of paymentID. It reports false when that
	// payment has already been recorded.
	RecordSuccess(ctx context.Context, id, paymentID string, periodStart, periodEnd, chargedAt time.Time) (bool, error)
	// RecordFailure increments the failure counter atomically and flips the
	// subscription to past_due once the counter reaches threshold.
	RecordFailure(ctx context.Context, id, reason string, threshold int) (*model.Subscription, error)
	Reactivate(ctx context.Context, id, ownerID string, nextPaymentAt time.Time) (bool, error)
}
