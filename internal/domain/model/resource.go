package model

import "time"

// Resource is a customer-owned protected link. It becomes active only as a
// side effect of a completed payment.
type Resource struct {
	ID                   string     `gorm:"primaryKey;size:40" json:"id"`
	OwnerID              string     `gorm:"column:owner_id;size:64;not null;index" json:"owner_id"`
	Slug                 string     `gorm:"size:120;not null;uniqueIndex" json:"slug"`
	Active               bool       `gorm:"not null;default:false" json:"active"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	Domain               *string    `gorm:"size:253;uniqueIndex" json:"domain,omitempty"`
	ActivatedByPaymentID *string    `gorm:"column:activated_by_payment_id;size:40" json:"activated_by_payment_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Resource) TableName() string {
	return "resources"
}
