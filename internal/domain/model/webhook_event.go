package model

import (
	"database/sql/driver"
	"time"
)

// WebhookStatus represents the processing status of a webhook
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusCompleted WebhookStatus = "completed"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// Scan implements sql.Scanner interface
func (w *WebhookStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*w = WebhookStatus(v)
	case []byte:
		*w = WebhookStatus(v)
	default:
		*w = WebhookStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (w WebhookStatus) Value() (driver.Value, error) {
	return string(w), nil
}

// WebhookEvent is the audit trail of every authenticated provider callback.
// The ledger, not this table, decides whether a delivery is a duplicate.
type WebhookEvent struct {
	ID               int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider         string        `gorm:"size:20;not null;uniqueIndex:idx_webhook_events_provider_key" json:"provider"`
	EventKey         string        `gorm:"column:event_key;size:255;not null;uniqueIndex:idx_webhook_events_provider_key" json:"event_key"`
	ExternalRef      string        `gorm:"column:external_ref;size:128;index" json:"external_ref"`
	EventStatus      string        `gorm:"column:event_status;size:50" json:"event_status"`
	ProcessingStatus WebhookStatus `gorm:"column:processing_status;size:20;not null;default:'pending';index" json:"processing_status"`
	RetryCount       int           `gorm:"default:0" json:"retry_count"`
	LastError        *string       `json:"last_error,omitempty"`
	NextRetryAt      *time.Time    `json:"next_retry_at,omitempty"`
	Payload          JSONB         `gorm:"type:jsonb" json:"payload"`
	ProcessedAt      *time.Time    `json:"processed_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
