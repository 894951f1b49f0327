package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/repository"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/metrics"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/notify"
)

// Notifier delivers customer notifications without reporting failures back
type Notifier interface {
	Notify(ctx context.Context, msg notify.Notification)
}

// ActivationResult reports what one activation changed
type ActivationResult struct {
	PaymentID string    `json:"payment_id"`
	Activated int64     `json:"activated"`
	ExpiresAt time.Time `json:"expires_at"`
	Notified  bool      `json:"notified"`
	// SubscriptionID is set when the payment started a recurring plan
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// FulfillmentService turns completed payments into product state. Callers
// must invoke it only after the ledger reported the first completion.
type FulfillmentService struct {
	paymentRepo      repository.PaymentRepository
	subscriptionRepo repository.SubscriptionRepository
	resourceRepo     repository.ResourceRepository
	notifier         Notifier
	logger           *zap.Logger
	now              func() time.Time
}

func NewFulfillmentService(
	paymentRepo repository.PaymentRepository,
	subscriptionRepo repository.SubscriptionRepository,
	resourceRepo repository.ResourceRepository,
	notifier Notifier,
	logger *zap.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		paymentRepo:      paymentRepo,
		subscriptionRepo: subscriptionRepo,
		resourceRepo:     resourceRepo,
		notifier:         notifier,
		logger:           logger,
		now:              time.Now,
	}
}

// Activate flips the owner's inactive resources to active. Running it again
// for the same payment finds nothing to flip and sends nothing.
func (s *FulfillmentService) Activate(ctx context.Context, ownerID, paymentID string, amount decimal.Decimal, currency string) (*ActivationResult, error) {
	cycle := model.BillingCycleMonthly
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment != nil {
		cycle = cycleOf(payment)
	}
	return s.activate(ctx, ownerID, paymentID, amount, currency, cycle)
}

func (s *FulfillmentService) activate(ctx context.Context, ownerID, paymentID string, amount decimal.Decimal, currency string, cycle model.BillingCycle) (*ActivationResult, error) {
	expiresAt := cycle.Advance(s.now().UTC())

	activated, err := s.resourceRepo.ActivatePending(ctx, ownerID, paymentID, expiresAt)
	if err != nil {
		metrics.PartialFulfillment(string(domainErrors.StageActivation))
		s.logger.Error("Payment completed but resource activation failed",
			zap.String("owner_id", ownerID),
			zap.String("payment_id", paymentID),
			zap.Error(err))
		return nil, domainErrors.NewPartialFulfillmentError(paymentID, domainErrors.StageActivation, err)
	}

	result := &ActivationResult{
		PaymentID: paymentID,
		Activated: activated,
		ExpiresAt: expiresAt,
	}
	if activated == 0 {
		s.logger.Info("No inactive resources to activate",
			zap.String("owner_id", ownerID),
			zap.String("payment_id", paymentID))
		return result, nil
	}

	metrics.ResourcesActivated(activated)
	s.notifier.Notify(ctx, notify.Notification{
		Type:      notify.TypeResourcesActivated,
		OwnerID:   ownerID,
		PaymentID: paymentID,
		Data: map[string]interface{}{
			"activated":  activated,
			"amount":     amount.StringFixed(2),
			"currency":   currency,
			"expires_at": expiresAt,
		},
	})
	result.Notified = true

	s.logger.Info("Resources activated",
		zap.String("owner_id", ownerID),
		zap.String("payment_id", paymentID),
		zap.Int64("activated", activated),
		zap.Time("expires_at", expiresAt))

	return result, nil
}

// Complete is the single entry point after a payment's first completion.
// Domain purchases are fulfilled by the purchase saga.
func (s *FulfillmentService) Complete(ctx context.Context, payment *model.Payment) (*ActivationResult, error) {
	switch payment.Purpose {
	case model.PurposeRenewal:
		return s.renew(ctx, payment)
	case model.PurposeDomainPurchase:
		return &ActivationResult{PaymentID: payment.ID}, nil
	}

	result, err := s.activate(ctx, payment.OwnerID, payment.ID, payment.Amount, payment.Currency, cycleOf(payment))
	if err != nil {
		return nil, err
	}

	if payment.Metadata.Bool(model.MetaRecurring) && payment.Metadata.String(model.MetaTokenCiphertext) != "" {
		subscriptionID, err := s.ensureSubscription(ctx, payment)
		if err != nil {
			metrics.PartialFulfillment(string(domainErrors.StageSubscription))
			s.logger.Error("Payment completed but subscription creation failed",
				zap.String("payment_id", payment.ID),
				zap.Error(err))
			return result, domainErrors.NewPartialFulfillmentError(payment.ID, domainErrors.StageSubscription, err)
		}
		result.SubscriptionID = subscriptionID
	}

	return result, nil
}

// renew advances the subscription by exactly one cycle from its due date and
// extends the owner's active resources to the new period end. It runs once
// per renewal payment whether the charge settled inline or by webhook.
func (s *FulfillmentService) renew(ctx context.Context, payment *model.Payment) (*ActivationResult, error) {
	if payment.SubscriptionID == nil {
		return nil, domainErrors.NewPartialFulfillmentError(payment.ID, domainErrors.StageSubscription,
			fmt.Errorf("renewal payment has no subscription"))
	}
	subscriptionID := *payment.SubscriptionID

	sub, err := s.subscriptionRepo.FindByID(ctx, subscriptionID)
	if err == nil && sub == nil {
		err = domainErrors.ErrSubscriptionNotFound
	}
	if err != nil {
		metrics.PartialFulfillment(string(domainErrors.StageSubscription))
		s.logger.Error("Renewal charged but subscription not loaded",
			zap.String("payment_id", payment.ID),
			zap.String("subscription_id", subscriptionID),
			zap.Error(err))
		return nil, domainErrors.NewPartialFulfillmentError(payment.ID, domainErrors.StageSubscription, err)
	}

	chargedAt := s.now().UTC()
	if payment.ConfirmedAt != nil {
		chargedAt = payment.ConfirmedAt.UTC()
	}
	periodStart := sub.NextPaymentAt
	periodEnd := sub.BillingCycle.Advance(periodStart)
	if sub.LastRenewalPaymentID != nil && *sub.LastRenewalPaymentID == payment.ID {
		// an earlier attempt already advanced the period for this payment
		periodEnd = sub.CurrentPeriodEnd
	} else {
		recorded, err := s.subscriptionRepo.RecordSuccess(ctx, sub.ID, payment.ID, periodStart, periodEnd, chargedAt)
		if err != nil {
			metrics.PartialFulfillment(string(domainErrors.StageSubscription))
			s.logger.Error("Renewal charged but subscription not advanced",
				zap.String("payment_id", payment.ID),
				zap.String("subscription_id", sub.ID),
				zap.Error(err))
			return nil, domainErrors.NewPartialFulfillmentError(payment.ID, domainErrors.StageSubscription, err)
		}
		if !recorded {
			s.logger.Info("Renewal already recorded for payment",
				zap.String("payment_id", payment.ID),
				zap.String("subscription_id", sub.ID))
			return &ActivationResult{PaymentID: payment.ID, SubscriptionID: sub.ID}, nil
		}
	}

	result := &ActivationResult{
		PaymentID:      payment.ID,
		ExpiresAt:      periodEnd,
		SubscriptionID: sub.ID,
	}

	extended, err := s.resourceRepo.ExtendActive(ctx, sub.OwnerID, periodEnd)
	if err != nil {
		metrics.PartialFulfillment(string(domainErrors.StageActivation))
		s.logger.Error("Renewal charged but resources not extended",
			zap.String("payment_id", payment.ID),
			zap.String("subscription_id", sub.ID),
			zap.Error(err))
		return result, domainErrors.NewPartialFulfillmentError(payment.ID, domainErrors.StageActivation, err)
	}
	result.Activated = extended

	s.notifier.Notify(ctx, notify.Notification{
		Type:      notify.TypeRenewalSucceeded,
		OwnerID:   sub.OwnerID,
		PaymentID: payment.ID,
		Data: map[string]interface{}{
			"subscription_id": sub.ID,
			"amount":          payment.Amount.StringFixed(2),
			"currency":        payment.Currency,
			"period_end":      periodEnd,
		},
	})
	result.Notified = true

	s.logger.Info("Subscription renewed",
		zap.String("subscription_id", sub.ID),
		zap.String("payment_id", payment.ID),
		zap.Time("next_payment_at", periodEnd))

	return result, nil
}

// ensureSubscription creates the subscription a recurring checkout starts.
// The origin payment id makes it safe to call more than once.
func (s *FulfillmentService) ensureSubscription(ctx context.Context, payment *model.Payment) (string, error) {
	if payment.PlanID == nil {
		return "", fmt.Errorf("recurring payment %s has no plan", payment.ID)
	}

	start := s.now().UTC()
	if payment.ConfirmedAt != nil {
		start = payment.ConfirmedAt.UTC()
	}
	cycle := cycleOf(payment)
	end := cycle.Advance(start)

	subscription := &model.Subscription{
		ID:                    model.NewID("sub"),
		OwnerID:               payment.OwnerID,
		PlanID:                *payment.PlanID,
		Amount:                payment.Amount,
		Currency:              payment.Currency,
		BillingCycle:          cycle,
		Status:                model.SubscriptionStatusActive,
		CurrentPeriodStart:    start,
		CurrentPeriodEnd:      end,
		NextPaymentAt:         end,
		Gateway:               payment.Gateway,
		EncryptedPaymentToken: payment.Metadata.String(model.MetaTokenCiphertext),
		TokenIV:               payment.Metadata.String(model.MetaTokenIV),
		CustomerRef:           payment.Metadata.String(model.MetaCustomerRef),
		CustomerEmail:         payment.Metadata.String(model.MetaCustomerEmail),
		OriginPaymentID:       payment.ID,
		LastChargedAt:         &start,
	}

	created, err := s.subscriptionRepo.Create(ctx, subscription)
	if err != nil {
		return "", err
	}
	if !created {
		s.logger.Info("Subscription already exists for payment",
			zap.String("payment_id", payment.ID))
		return "", nil
	}

	s.logger.Info("Subscription created",
		zap.String("subscription_id", subscription.ID),
		zap.String("owner_id", payment.OwnerID),
		zap.String("plan_id", subscription.PlanID),
		zap.Time("next_payment_at", subscription.NextPaymentAt))

	return subscription.ID, nil
}

func cycleOf(payment *model.Payment) model.BillingCycle {
	cycle := model.BillingCycle(payment.Metadata.String(model.MetaBillingCycle))
	if !cycle.Valid() {
		return model.BillingCycleMonthly
	}
	return cycle
}
