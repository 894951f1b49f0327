package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/repository"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/crypto"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/metrics"
)

// CardGateways resolves a card backend by the name stored on a payment or
// subscription. The empty name selects the configured default.
type CardGateways interface {
	GatewayFromString(name string) (provider.CardGateway, error)
}

type CardCheckoutRequest struct {
	OwnerID       string
	PlanID        string
	PaymentToken  string
	CustomerEmail string
	Installments  int
}

type WalletCheckoutRequest struct {
	OwnerID   string
	PlanID    string
	ReturnURL string
	CancelURL string
}

type CryptoCheckoutRequest struct {
	OwnerID     string
	PlanID      string
	PayCurrency string
}

// CheckoutResult is what the client needs to continue a checkout
type CheckoutResult struct {
	PaymentID   string              `json:"payment_id"`
	Status      model.PaymentStatus `json:"status"`
	Provider    model.ProviderKind  `json:"provider"`
	Amount      decimal.Decimal     `json:"amount"`
	Currency    string              `json:"currency"`
	ExternalRef string              `json:"external_ref,omitempty"`
	Activation  *ActivationResult   `json:"activation,omitempty"`

	ApprovalURL string `json:"approval_url,omitempty"`

	PayAddress  string           `json:"pay_address,omitempty"`
	PayAmount   *decimal.Decimal `json:"pay_amount,omitempty"`
	PayCurrency string           `json:"pay_currency,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
}

// ChargeOutcome is the ledger view of one card charge
type ChargeOutcome struct {
	Payment *model.Payment
	Result  *provider.ChargeResult
	Applied *ApplyResult
}

// PaymentService starts payments. It always writes the pending ledger row
// before calling a processor.
type PaymentService struct {
	paymentRepo repository.PaymentRepository
	planRepo    repository.PlanRepository
	cards       CardGateways
	wallet      provider.WalletGateway
	crypto      provider.CryptoGateway
	cipher      crypto.EncryptionService
	ingestion   *IngestionService
	returnURL   string
	cancelURL   string
	logger      *zap.Logger
}

func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	planRepo repository.PlanRepository,
	cards CardGateways,
	wallet provider.WalletGateway,
	cryptoGateway provider.CryptoGateway,
	cipher crypto.EncryptionService,
	ingestion *IngestionService,
	returnURL, cancelURL string,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		paymentRepo: paymentRepo,
		planRepo:    planRepo,
		cards:       cards,
		wallet:      wallet,
		crypto:      cryptoGateway,
		cipher:      cipher,
		ingestion:   ingestion,
		returnURL:   returnURL,
		cancelURL:   cancelURL,
		logger:      logger,
	}
}

func (s *PaymentService) loadPlan(ctx context.Context, planID string) (*model.Plan, error) {
	plan, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domainErrors.ErrPlanNotFound
	}
	return plan, nil
}

func newCheckoutPayment(ownerID string, plan *model.Plan, kind model.ProviderKind, gateway string) *model.Payment {
	planID := plan.ID
	return &model.Payment{
		ID:       model.NewID("pay"),
		OwnerID:  ownerID,
		Amount:   plan.Amount,
		Currency: plan.Currency,
		Provider: kind,
		Gateway:  gateway,
		Purpose:  model.PurposeCheckout,
		Status:   model.PaymentStatusPending,
		PlanID:   &planID,
		Metadata: model.JSONB{
			model.MetaBillingCycle: string(plan.BillingCycle),
			model.MetaRecurring:    plan.Recurring,
		},
	}
}

// CheckoutCard charges a tokenized card for a plan. Recurring plans vault
// the card so the billing scheduler can renew off-session.
func (s *PaymentService) CheckoutCard(ctx context.Context, req *CardCheckoutRequest) (*CheckoutResult, error) {
	plan, err := s.loadPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	gateway, err := s.cards.GatewayFromString("")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrProviderNotConfigured, err)
	}

	payment := newCheckoutPayment(req.OwnerID, plan, model.ProviderCard, gateway.Name())
	if req.CustomerEmail != "" {
		payment.Metadata[model.MetaCustomerEmail] = req.CustomerEmail
	}

	outcome, err := s.ChargeCard(ctx, gateway, payment, &provider.ChargeRequest{
		Amount:        plan.Amount,
		Currency:      plan.Currency,
		CustomerEmail: req.CustomerEmail,
		PaymentToken:  req.PaymentToken,
		Installments:  req.Installments,
		Vault:         plan.Recurring,
		Description:   plan.Name,
	})
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{
		PaymentID:   payment.ID,
		Status:      outcome.Result.Status,
		Provider:    model.ProviderCard,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		ExternalRef: outcome.Result.ExternalID,
	}
	if outcome.Applied != nil {
		result.Activation = outcome.Applied.Activation
	}
	return result, nil
}

// ChargeCard writes payment as pending, charges it and applies the answer.
// A decline marks the row failed and returns *ProviderDeclinedError. When the
// processor is unreachable the row stays pending for the reconciler, since
// the charge may have gone through.
func (s *PaymentService) ChargeCard(ctx context.Context, gateway provider.CardGateway, payment *model.Payment, req *provider.ChargeRequest) (*ChargeOutcome, error) {
	payment.Status = model.PaymentStatusPending
	if err := s.paymentRepo.InsertPending(ctx, payment); err != nil {
		return nil, err
	}
	req.Reference = payment.ID

	res, err := gateway.CreateCharge(ctx, req)
	if err != nil {
		metrics.ProviderCall(gateway.Name(), "charge", "error")
		return nil, s.chargeFailed(ctx, payment, err)
	}
	metrics.ProviderCall(gateway.Name(), "charge", string(res.Status))

	if res.ExternalID != "" {
		if err := s.paymentRepo.AttachExternalRef(ctx, payment.ID, res.ExternalID); err != nil {
			return nil, fmt.Errorf("failed to attach charge %s to payment %s: %w", res.ExternalID, payment.ID, err)
		}
		payment.ExternalRef = &res.ExternalID
	}

	meta := model.JSONB{model.MetaProviderRawStatus: res.RawStatus}
	if res.SettlementCurrency != "" {
		meta[model.MetaSettlementAmount] = res.SettlementAmount
		meta[model.MetaSettlementCcy] = res.SettlementCurrency
	}
	if res.ReusableToken != "" && s.cipher != nil {
		ciphertext, iv, err := s.cipher.Encrypt(res.ReusableToken, payment.OwnerID)
		if err != nil {
			s.logger.Error("Failed to encrypt reusable payment token",
				zap.String("payment_id", payment.ID),
				zap.Error(err))
		} else {
			meta[model.MetaTokenCiphertext] = ciphertext
			meta[model.MetaTokenIV] = iv
			meta[model.MetaCustomerRef] = res.CustomerRef
		}
	}
	if err := s.paymentRepo.MergeMetadata(ctx, payment.ID, meta); err != nil {
		s.logger.Error("Failed to store charge metadata",
			zap.String("payment_id", payment.ID),
			zap.Error(err))
	}

	outcome := &ChargeOutcome{Payment: payment, Result: res}
	if res.ExternalID == "" {
		return outcome, nil
	}

	event := res.Event(gateway.Name(), payment.Amount, payment.Currency)
	event.Reference = payment.ID
	applied, err := s.ingestion.Apply(ctx, event)
	if err != nil {
		s.logger.Error("Failed to apply charge result",
			zap.String("payment_id", payment.ID),
			zap.Error(err))
		return outcome, nil
	}
	outcome.Applied = applied
	if applied.FulfillmentErr != nil {
		s.logger.Error("Charge completed with fulfillment pending",
			zap.String("payment_id", payment.ID),
			zap.Error(applied.FulfillmentErr))
	}

	s.logger.Info("Card charge processed",
		zap.String("payment_id", payment.ID),
		zap.String("external_ref", res.ExternalID),
		zap.String("status", string(res.Status)),
		zap.String("purpose", string(payment.Purpose)))

	return outcome, nil
}

func (s *PaymentService) chargeFailed(ctx context.Context, payment *model.Payment, err error) error {
	if domainErrors.IsRetryable(err) {
		s.logger.Warn("Card processor unavailable, payment left pending",
			zap.String("payment_id", payment.ID),
			zap.Error(err))
		return err
	}

	reason := err.Error()
	var declined *domainErrors.ProviderDeclinedError
	if errors.As(err, &declined) {
		reason = declined.Message
		if declined.ProviderCode != "" {
			reason = declined.ProviderCode + ": " + declined.Message
		}
	}
	if _, markErr := s.paymentRepo.MarkFailedByID(ctx, payment.ID, reason); markErr != nil {
		s.logger.Error("Failed to mark payment failed",
			zap.String("payment_id", payment.ID),
			zap.Error(markErr))
	}
	s.logger.Info("Card charge failed",
		zap.String("payment_id", payment.ID),
		zap.String("reason", reason))
	return err
}

// CheckoutWallet creates a wallet order and returns the approval URL
func (s *PaymentService) CheckoutWallet(ctx context.Context, req *WalletCheckoutRequest) (*CheckoutResult, error) {
	if s.wallet == nil {
		return nil, domainErrors.ErrProviderNotConfigured
	}
	plan, err := s.loadPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	payment := newCheckoutPayment(req.OwnerID, plan, model.ProviderWallet, s.wallet.Name())
	if err := s.paymentRepo.InsertPending(ctx, payment); err != nil {
		return nil, err
	}

	order, err := s.wallet.CreateOrder(ctx, &provider.OrderRequest{
		Reference:   payment.ID,
		Amount:      plan.Amount,
		Currency:    plan.Currency,
		Description: plan.Name,
		ReturnURL:   lo.CoalesceOrEmpty(req.ReturnURL, s.returnURL),
		CancelURL:   lo.CoalesceOrEmpty(req.CancelURL, s.cancelURL),
	})
	if err != nil {
		metrics.ProviderCall(s.wallet.Name(), "create_order", "error")
		// no money moves before approval
		if _, markErr := s.paymentRepo.MarkFailedByID(ctx, payment.ID, "order creation failed"); markErr != nil {
			s.logger.Error("Failed to mark payment failed", zap.String("payment_id", payment.ID), zap.Error(markErr))
		}
		return nil, err
	}
	metrics.ProviderCall(s.wallet.Name(), "create_order", "ok")

	if err := s.paymentRepo.AttachExternalRef(ctx, payment.ID, order.ExternalID); err != nil {
		return nil, err
	}
	if err := s.paymentRepo.MergeMetadata(ctx, payment.ID, model.JSONB{
		model.MetaApprovalURL:       order.ApprovalURL,
		model.MetaProviderRawStatus: order.RawStatus,
	}); err != nil {
		s.logger.Error("Failed to store order metadata", zap.String("payment_id", payment.ID), zap.Error(err))
	}

	return &CheckoutResult{
		PaymentID:   payment.ID,
		Status:      model.PaymentStatusPending,
		Provider:    model.ProviderWallet,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		ExternalRef: order.ExternalID,
		ApprovalURL: order.ApprovalURL,
	}, nil
}

// CaptureWallet captures the owner's approved wallet order
func (s *PaymentService) CaptureWallet(ctx context.Context, ownerID, paymentID string) (*CheckoutResult, error) {
	if s.wallet == nil {
		return nil, domainErrors.ErrProviderNotConfigured
	}
	payment, err := s.GetPayment(ctx, ownerID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Provider != model.ProviderWallet || payment.Ref() == "" {
		return nil, domainErrors.ErrPaymentNotFound
	}

	result := &CheckoutResult{
		PaymentID:   payment.ID,
		Status:      payment.Status,
		Provider:    payment.Provider,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		ExternalRef: payment.Ref(),
	}
	if payment.Status.IsTerminal() {
		return result, nil
	}

	applied, err := s.CaptureWalletOrder(ctx, payment.Ref(), payment.ID)
	if err != nil {
		return nil, err
	}
	result.Status = applied.Status
	result.Activation = applied.Activation
	return result, nil
}

// CaptureWalletOrder captures an approved order and applies the result. It
// is shared by the return-URL capture and the order-approved webhook.
func (s *PaymentService) CaptureWalletOrder(ctx context.Context, orderID, paymentID string) (*ApplyResult, error) {
	if s.wallet == nil {
		return nil, domainErrors.ErrProviderNotConfigured
	}
	event, err := s.wallet.CaptureOrder(ctx, orderID)
	if err != nil {
		metrics.ProviderCall(s.wallet.Name(), "capture", "error")
		return nil, err
	}
	metrics.ProviderCall(s.wallet.Name(), "capture", string(event.Status))
	if event.Reference == "" {
		event.Reference = paymentID
	}
	return s.ingestion.Apply(ctx, event)
}

// CheckoutCrypto creates a deposit address for a plan
func (s *PaymentService) CheckoutCrypto(ctx context.Context, req *CryptoCheckoutRequest) (*CheckoutResult, error) {
	if s.crypto == nil {
		return nil, domainErrors.ErrProviderNotConfigured
	}
	plan, err := s.loadPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	payment := newCheckoutPayment(req.OwnerID, plan, model.ProviderCrypto, s.crypto.Name())
	if err := s.paymentRepo.InsertPending(ctx, payment); err != nil {
		return nil, err
	}

	created, err := s.crypto.CreatePayment(ctx, &provider.CryptoPaymentRequest{
		Reference:   payment.ID,
		Amount:      plan.Amount,
		Currency:    plan.Currency,
		PayCurrency: req.PayCurrency,
		Description: plan.Name,
	})
	if err != nil {
		metrics.ProviderCall(s.crypto.Name(), "create_payment", "error")
		if _, markErr := s.paymentRepo.MarkFailedByID(ctx, payment.ID, "address creation failed"); markErr != nil {
			s.logger.Error("Failed to mark payment failed", zap.String("payment_id", payment.ID), zap.Error(markErr))
		}
		return nil, err
	}
	metrics.ProviderCall(s.crypto.Name(), "create_payment", "ok")

	if err := s.paymentRepo.AttachExternalRef(ctx, payment.ID, created.ExternalID); err != nil {
		return nil, err
	}
	meta := model.JSONB{
		model.MetaPayAddress:        created.PayAddress,
		model.MetaPayAmount:         created.PayAmount.String(),
		model.MetaPayCurrency:       created.PayCurrency,
		model.MetaProviderRawStatus: created.RawStatus,
	}
	if created.ExpiresAt != nil {
		meta[model.MetaExpiresAt] = created.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if err := s.paymentRepo.MergeMetadata(ctx, payment.ID, meta); err != nil {
		s.logger.Error("Failed to store crypto payment metadata", zap.String("payment_id", payment.ID), zap.Error(err))
	}

	s.logger.Info("Crypto checkout created",
		zap.String("payment_id", payment.ID),
		zap.String("external_ref", created.ExternalID),
		zap.String("pay_currency", created.PayCurrency))

	payAmount := created.PayAmount
	return &CheckoutResult{
		PaymentID:   payment.ID,
		Status:      model.PaymentStatusPending,
		Provider:    model.ProviderCrypto,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		ExternalRef: created.ExternalID,
		PayAddress:  created.PayAddress,
		PayAmount:   &payAmount,
		PayCurrency: created.PayCurrency,
		ExpiresAt:   created.ExpiresAt,
	}, nil
}

// GetPayment returns the owner's payment. Someone else's payment is reported
// as not found.
func (s *PaymentService) GetPayment(ctx context.Context, ownerID, paymentID string) (*model.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.OwnerID != ownerID {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return payment, nil
}
