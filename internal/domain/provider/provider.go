package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
)

// PaymentEvent is the single normalized shape every adapter produces, whether
// from a synchronous capture, a webhook, an IPN, or a lookup.
type PaymentEvent struct {
	Provider    model.ProviderKind
	Gateway     string
	EventID     string // provider delivery id, used for the audit log
	ExternalRef string
	Reference   string // our payment id
	Status      model.PaymentStatus
	RawStatus   string
	Reason      string
	Amount      decimal.Decimal
	Currency    string
	Payload     map[string]interface{}
}

// ChargeRequest is a card charge for one payment row.
type ChargeRequest struct {
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	CustomerRef   string // processor customer id, when the gateway keeps one
	PaymentToken  string // tokenized card or stored payment source
	Installments  int
	OffSession    bool // merchant initiated (renewals)
	Vault         bool // keep the card for later off-session charges
	Description   string
}

// ChargeResult is the processor's answer to a charge or lookup.
type ChargeResult struct {
	ExternalID         string
	Reference          string
	Status             model.PaymentStatus
	RawStatus          string
	Reason             string
	SettlementAmount   int64
	SettlementCurrency string
	// ReusableToken is a token that can be charged again without the customer
	// present. Empty when the gateway did not vault the card.
	ReusableToken string
	CustomerRef   string
}

// Event converts the result to the normalized event.
func (r *ChargeResult) Event(gateway string, amount decimal.Decimal, currency string) *PaymentEvent {
	return &PaymentEvent{
		Provider:    model.ProviderCard,
		Gateway:     gateway,
		ExternalRef: r.ExternalID,
		Reference:   r.Reference,
		Status:      r.Status,
		RawStatus:   r.RawStatus,
		Reason:      r.Reason,
		Amount:      amount,
		Currency:    currency,
	}
}

// CardGateway charges a card synchronously.
type CardGateway interface {
	Name() string
	CreateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
	// Lookup reads a charge by processor id, or by our reference when the id
	// is unknown (e.g. the process crashed before it was stored).
	Lookup(ctx context.Context, externalID, reference string) (*ChargeResult, error)
	ParseWebhook(ctx context.Context, body []byte, header http.Header) (*PaymentEvent, error)
}

// OrderRequest creates a redirect-based wallet order.
type OrderRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Description string
	ReturnURL   string
	CancelURL   string
}

// OrderResult carries the URL the customer is sent to for approval.
type OrderResult struct {
	ExternalID  string
	ApprovalURL string
	RawStatus   string
}

// WalletGateway captures money after the customer approves on the wallet site.
type WalletGateway interface {
	Name() string
	CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error)
	CaptureOrder(ctx context.Context, orderID string) (*PaymentEvent, error)
	ParseWebhook(ctx context.Context, body []byte, header http.Header) (*PaymentEvent, error)
}

// CryptoPaymentRequest creates an address-based crypto payment.
type CryptoPaymentRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	PayCurrency string
	Description string
}

// CryptoPaymentResult is the deposit address and exact amount to send.
type CryptoPaymentResult struct {
	ExternalID  string
	PayAddress  string
	PayAmount   decimal.Decimal
	PayCurrency string
	Status      model.PaymentStatus
	RawStatus   string
	ExpiresAt   *time.Time
}

// CryptoStatus is a passive status read.
type CryptoStatus struct {
	ExternalID   string
	Reference    string
	Status       model.PaymentStatus
	RawStatus    string
	PayAmount    decimal.Decimal
	ActuallyPaid decimal.Decimal
	PayCurrency  string
	ExpiresAt    *time.Time
}

// CryptoGateway is a push-confirmed processor; status reads are advisory.
type CryptoGateway interface {
	Name() string
	CreatePayment(ctx context.Context, req *CryptoPaymentRequest) (*CryptoPaymentResult, error)
	GetStatus(ctx context.Context, externalID string) (*CryptoStatus, error)
	ParseIPN(ctx context.Context, body []byte, header http.Header) (*PaymentEvent, error)
}
