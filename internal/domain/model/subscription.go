package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingCycle is the renewal period of a plan.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// Valid reports whether c is a known cycle.
func (c BillingCycle) Valid() bool {
	return c == BillingCycleMonthly || c == BillingCycleYearly
}

// Advance moves t forward by exactly one cycle (calendar months/years, so
// Jan 31 + 1 month normalizes the way time.AddDate does).
func (c BillingCycle) Advance(t time.Time) time.Time {
	if c == BillingCycleYearly {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusPastDue SubscriptionStatus = "past_due"
)

// MaxConsecutiveFailures is the number of failed renewals after which a
// subscription becomes past_due.
const MaxConsecutiveFailures = 3

// Subscription is a recurring plan charged by the billing scheduler.
type Subscription struct {
	ID                    string             `gorm:"primaryKey;size:40" json:"id"`
	OwnerID               string             `gorm:"column:owner_id;size:64;not null;index" json:"owner_id"`
	PlanID                string             `gorm:"column:plan_id;size:64;not null" json:"plan_id"`
	Amount                decimal.Decimal    `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency              string             `gorm:"size:3;not null" json:"currency"`
	BillingCycle          BillingCycle       `gorm:"column:billing_cycle;size:20;not null" json:"billing_cycle"`
	Status                SubscriptionStatus `gorm:"size:20;not null;index" json:"status"`
	CurrentPeriodStart    time.Time          `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd      time.Time          `gorm:"not null" json:"current_period_end"`
	NextPaymentAt         time.Time          `gorm:"not null;index" json:"next_payment_at"`
	ConsecutiveFailures   int                `gorm:"not null;default:0" json:"consecutive_failures"`
	Gateway               string             `gorm:"size:30;not null" json:"gateway"`
	EncryptedPaymentToken string             `gorm:"column:encrypted_payment_token;type:text;not null" json:"-"`
	TokenIV               string             `gorm:"column:token_iv;type:text;not null" json:"-"`
	CustomerRef           string             `gorm:"column:customer_ref;size:128" json:"-"`
	CustomerEmail         string             `gorm:"column:customer_email;size:255" json:"customer_email,omitempty"`
	OriginPaymentID       string             `gorm:"column:origin_payment_id;size:40;uniqueIndex;not null" json:"origin_payment_id"`
	LastFailureReason     *string            `gorm:"column:last_failure_reason;size:255" json:"last_failure_reason,omitempty"`
	// LastRenewalPaymentID is the renewal payment that produced the current period
	LastRenewalPaymentID *string    `gorm:"column:last_renewal_payment_id;size:40" json:"-"`
	LastChargedAt        *time.Time `json:"last_charged_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}
