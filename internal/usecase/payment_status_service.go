package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/metrics"
)

// PollAfterSeconds is the interval clients wait between status polls
const PollAfterSeconds = 10

// PaymentStatusView is the polling answer for a payment
type PaymentStatusView struct {
	PaymentID        string              `json:"payment_id"`
	LedgerStatus     model.PaymentStatus `json:"ledger_status"`
	ProviderStatus   string              `json:"provider_status,omitempty"`
	Terminal         bool                `json:"terminal"`
	Success          bool                `json:"success"`
	Expired          bool                `json:"expired"`
	ExpiresAt        *time.Time          `json:"expires_at,omitempty"`
	PayAddress       string              `json:"pay_address,omitempty"`
	PayAmount        string              `json:"pay_amount,omitempty"`
	ActuallyPaid     string              `json:"actually_paid,omitempty"`
	PayCurrency      string              `json:"pay_currency,omitempty"`
	PollAfterSeconds int                 `json:"poll_after_seconds"`
}

// PaymentStatusService answers client polls. It only reads: the ledger moves
// on IPN delivery, never on a poll.
type PaymentStatusService struct {
	payments *PaymentService
	crypto   provider.CryptoGateway
	logger   *zap.Logger
	now      func() time.Time
}

func NewPaymentStatusService(payments *PaymentService, cryptoGateway provider.CryptoGateway, logger *zap.Logger) *PaymentStatusService {
	return &PaymentStatusService{
		payments: payments,
		crypto:   cryptoGateway,
		logger:   logger,
		now:      time.Now,
	}
}

// GetStatus returns the ledger status and, for crypto payments still open,
// the processor's advisory status.
func (s *PaymentStatusService) GetStatus(ctx context.Context, ownerID, paymentID string) (*PaymentStatusView, error) {
	payment, err := s.payments.GetPayment(ctx, ownerID, paymentID)
	if err != nil {
		return nil, err
	}

	view := &PaymentStatusView{
		PaymentID:        payment.ID,
		LedgerStatus:     payment.Status,
		ProviderStatus:   payment.Metadata.String(model.MetaProviderRawStatus),
		Terminal:         payment.Status.IsTerminal(),
		Success:          payment.Status == model.PaymentStatusCompleted,
		PayAddress:       payment.Metadata.String(model.MetaPayAddress),
		PayAmount:        payment.Metadata.String(model.MetaPayAmount),
		PayCurrency:      payment.Metadata.String(model.MetaPayCurrency),
		PollAfterSeconds: PollAfterSeconds,
	}
	if raw := payment.Metadata.String(model.MetaExpiresAt); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			view.ExpiresAt = &t
		}
	}

	if !view.Terminal && payment.Provider == model.ProviderCrypto && payment.Ref() != "" && s.crypto != nil {
		status, err := s.crypto.GetStatus(ctx, payment.Ref())
		if err != nil {
			metrics.ProviderCall(s.crypto.Name(), "status", "error")
			s.logger.Warn("Crypto status read failed, returning ledger status",
				zap.String("payment_id", payment.ID),
				zap.Error(err))
		} else {
			metrics.ProviderCall(s.crypto.Name(), "status", string(status.Status))
			view.ProviderStatus = status.RawStatus
			view.Terminal = status.Status.IsTerminal()
			view.Success = status.Status == model.PaymentStatusCompleted
			if !status.ActuallyPaid.IsZero() {
				view.ActuallyPaid = status.ActuallyPaid.String()
			}
			if status.ExpiresAt != nil {
				view.ExpiresAt = status.ExpiresAt
			}
		}
	}

	if !view.Terminal && view.ExpiresAt != nil && s.now().After(*view.ExpiresAt) {
		view.Expired = true
	}

	return view, nil
}
