package model

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusCompleted     PaymentStatus = "completed"
	PaymentStatusFailed        PaymentStatus = "failed"
)

// transitionSources lists, for every target status, the statuses it may be
// entered from. Payments only move forward.
var transitionSources = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPartiallyPaid: {PaymentStatusPending},
	PaymentStatusCompleted:     {PaymentStatusPending, PaymentStatusPartiallyPaid},
	PaymentStatusFailed:        {PaymentStatusPending, PaymentStatusPartiallyPaid},
}

// TransitionSources returns the statuses from which next can be reached.
func TransitionSources(next PaymentStatus) []PaymentStatus {
	return transitionSources[next]
}

// CanTransitionTo reports whether s -> next is a legal forward move.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, from := range transitionSources[next] {
		if from == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// ProviderKind is the family of processor a payment went through.
type ProviderKind string

const (
	ProviderCard   ProviderKind = "card"
	ProviderWallet ProviderKind = "wallet"
	ProviderCrypto ProviderKind = "crypto"
)

// PaymentPurpose tells the fulfillment path what a completed payment buys.
type PaymentPurpose string

const (
	PurposeCheckout       PaymentPurpose = "checkout"
	PurposeRenewal        PaymentPurpose = "renewal"
	PurposeDomainPurchase PaymentPurpose = "domain_purchase"
)

// Metadata keys stored on Payment.Metadata
const (
	MetaBillingCycle      = "billing_cycle"
	MetaRecurring         = "recurring"
	MetaTokenCiphertext   = "payment_token_enc"
	MetaTokenIV           = "payment_token_iv"
	MetaCustomerRef       = "customer_ref"
	MetaCustomerEmail     = "customer_email"
	MetaSettlementAmount  = "settlement_amount_minor"
	MetaSettlementCcy     = "settlement_currency"
	MetaApprovalURL       = "approval_url"
	MetaPayAddress        = "pay_address"
	MetaPayAmount         = "pay_amount"
	MetaPayCurrency       = "pay_currency"
	MetaExpiresAt         = "expires_at"
	MetaDomain            = "domain"
	MetaRegistrarOrderID  = "registrar_order_id"
	MetaProviderRawStatus = "provider_status"
)

// Payment is the ledger row for one payment attempt. Rows are never deleted.
type Payment struct {
	ID             string          `gorm:"primaryKey;size:40" json:"id"`
	OwnerID        string          `gorm:"column:owner_id;size:64;not null;index" json:"owner_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency       string          `gorm:"size:3;not null" json:"currency"`
	Provider       ProviderKind    `gorm:"size:20;not null" json:"provider"`
	Gateway        string          `gorm:"size:30;not null" json:"gateway"`
	Purpose        PaymentPurpose  `gorm:"size:30;not null" json:"purpose"`
	Status         PaymentStatus   `gorm:"size:20;not null;index" json:"status"`
	ExternalRef    *string         `gorm:"column:external_ref;size:128;uniqueIndex" json:"external_ref,omitempty"`
	SubscriptionID *string         `gorm:"column:subscription_id;size:40;index" json:"subscription_id,omitempty"`
	PlanID         *string         `gorm:"column:plan_id;size:64" json:"plan_id,omitempty"`
	Metadata       JSONB           `gorm:"type:jsonb" json:"metadata,omitempty"`
	FailureReason  *string         `gorm:"column:failure_reason;size:255" json:"failure_reason,omitempty"`
	ConfirmedAt    *time.Time      `json:"confirmed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Payment) TableName() string {
	return "payments"
}

// Ref returns the provider reference or an empty string.
func (p *Payment) Ref() string {
	if p.ExternalRef == nil {
		return ""
	}
	return *p.ExternalRef
}

// NewID returns a sortable opaque id with the given prefix, e.g. "pay_01J...".
func NewID(prefix string) string {
	return prefix + "_" + ulid.Make().String()
}
