package repository

import (
	"context"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
)

// WebhookEventRepository stores the audit trail of authenticated callbacks.
type WebhookEventRepository interface {
	// SaveEvent records the event and reports whether it was new for its
	// provider and event key.
	SaveEvent(ctx context.Context, event *model.WebhookEvent) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventKey string) error
	MarkFailed(ctx context.Context, provider, eventKey string, cause error) error
	GetFailedEvents(ctx context.Context, limit int) ([]*model.WebhookEvent, error)
}
