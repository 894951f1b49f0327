package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/repository"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/crypto"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/metrics"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/notify"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/messaging"
)

// ErrRunInProgress is returned when another billing run holds the guard
var ErrRunInProgress = errors.New("billing run already in progress")

const billingLockKey = "payment:billing:run"

// RunLocker is an advisory lock shared by every instance
type RunLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

type BillingConfig struct {
	BatchSize       int
	MaxFailures     int
	DistributedLock bool
	LockTTL         time.Duration
}

// Renewal outcomes
const (
	RenewalApproved = "approved"
	RenewalDeclined = "declined"
	RenewalPending  = "pending"
	RenewalError    = "error"
)

// RunSummary counts what one billing run did
type RunSummary struct {
	Due      int `json:"due"`
	Approved int `json:"approved"`
	Declined int `json:"declined"`
	Pending  int `json:"pending"`
	Errors   int `json:"errors"`
	PastDue  int `json:"past_due"`
}

type BillingService struct {
	subscriptionRepo repository.SubscriptionRepository
	paymentRepo      repository.PaymentRepository
	payments         *PaymentService
	ingestion        *IngestionService
	cards            CardGateways
	encryptService   crypto.EncryptionService
	notifier         Notifier
	locker           RunLocker
	cfg              BillingConfig
	running          atomic.Bool
	logger           *zap.Logger
	now              func() time.Time
}

func NewBillingService(
	subscriptionRepo repository.SubscriptionRepository,
	paymentRepo repository.PaymentRepository,
	payments *PaymentService,
	ingestion *IngestionService,
	cards CardGateways,
	encryptService crypto.EncryptionService,
	notifier Notifier,
	locker RunLocker,
	cfg BillingConfig,
	logger *zap.Logger,
) *BillingService {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = model.MaxConsecutiveFailures
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &BillingService{
		subscriptionRepo: subscriptionRepo,
		paymentRepo:      paymentRepo,
		payments:         payments,
		ingestion:        ingestion,
		cards:            cards,
		encryptService:   encryptService,
		notifier:         notifier,
		locker:           locker,
		cfg:              cfg,
		logger:           logger,
		now:              time.Now,
	}
}

// RunOnce charges every due subscription. Runs never overlap in a process,
// and with DistributedLock they never overlap across processes either.
func (s *BillingService) RunOnce(ctx context.Context) (*RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.BillingRun("skipped")
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	if s.cfg.DistributedLock && s.locker != nil {
		token, err := s.locker.TryLock(ctx, billingLockKey, s.cfg.LockTTL)
		if errors.Is(err, messaging.ErrLockHeld) {
			metrics.BillingRun("locked")
			s.logger.Info("Billing run held by another instance")
			return nil, ErrRunInProgress
		}
		if err != nil {
			metrics.BillingRun("failed")
			return nil, fmt.Errorf("failed to take billing lock: %w", err)
		}
		defer func() {
			// the run context may already be canceled
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.locker.Unlock(unlockCtx, billingLockKey, token); err != nil {
				s.logger.Warn("Failed to release billing lock", zap.Error(err))
			}
		}()
	}

	now := s.now().UTC()
	due, err := s.subscriptionRepo.FindDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		metrics.BillingRun("failed")
		return nil, fmt.Errorf("failed to load due subscriptions: %w", err)
	}
	if len(due) == s.cfg.BatchSize {
		s.logger.Warn("Billing batch is full, remaining subscriptions wait for the next run",
			zap.Int("batch_size", s.cfg.BatchSize))
	}

	summary := &RunSummary{Due: len(due)}
	for _, sub := range due {
		if ctx.Err() != nil {
			break
		}
		outcome, pastDue := s.renewSafely(ctx, sub)
		metrics.BillingCharge(outcome)
		switch outcome {
		case RenewalApproved:
			summary.Approved++
		case RenewalDeclined:
			summary.Declined++
		case RenewalPending:
			summary.Pending++
		default:
			summary.Errors++
		}
		if pastDue {
			summary.PastDue++
		}
	}

	metrics.BillingRun("completed")
	s.logger.Info("Billing run finished",
		zap.Int("due", summary.Due),
		zap.Int("approved", summary.Approved),
		zap.Int("declined", summary.Declined),
		zap.Int("pending", summary.Pending),
		zap.Int("errors", summary.Errors),
		zap.Int("past_due", summary.PastDue))

	return summary, ctx.Err()
}

// renewSafely contains one subscription's failure, panics included
func (s *BillingService) renewSafely(ctx context.Context, sub *model.Subscription) (outcome string, pastDue bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while renewing subscription",
				zap.String("subscription_id", sub.ID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			outcome, pastDue = RenewalError, false
		}
	}()
	return s.renew(ctx, sub)
}

func (s *BillingService) renew(ctx context.Context, sub *model.Subscription) (string, bool) {
	log := s.logger.With(
		zap.String("subscription_id", sub.ID),
		zap.String("owner_id", sub.OwnerID))

	gateway, err := s.cards.GatewayFromString(sub.Gateway)
	if err != nil {
		log.Error("No gateway for subscription", zap.String("gateway", sub.Gateway), zap.Error(err))
		return RenewalError, false
	}

	// an earlier run may have left a charge in flight; resolve it first so the
	// customer is never charged twice for one period
	inFlight, err := s.paymentRepo.FindPendingForSubscription(ctx, sub.ID)
	if err != nil {
		log.Error("Failed to check in-flight renewal", zap.Error(err))
		return RenewalError, false
	}
	if inFlight != nil {
		resolved, applied, err := s.resolveInFlight(ctx, gateway, sub, inFlight)
		if err != nil {
			// the processor cannot be reached; that is a failed attempt, and
			// the charge stays in flight so the next run never charges twice
			log.Warn("Could not read in-flight renewal", zap.Error(err))
			return RenewalError, s.onFailure(ctx, sub, "processor unavailable")
		}
		if applied != nil && applied.Status == model.PaymentStatusCompleted {
			s.onApproved(sub, inFlight, applied)
			return RenewalApproved, false
		}
		if !resolved {
			return RenewalPending, false
		}
	}

	token, err := s.encryptService.Decrypt(sub.EncryptedPaymentToken, sub.TokenIV, sub.OwnerID)
	if err != nil {
		log.Error("Stored payment method cannot be decrypted", zap.Error(err))
		return RenewalDeclined, s.onFailure(ctx, sub, "stored payment method unavailable")
	}

	subscriptionID, planID := sub.ID, sub.PlanID
	payment := &model.Payment{
		ID:             model.NewID("pay"),
		OwnerID:        sub.OwnerID,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		Provider:       model.ProviderCard,
		Gateway:        gateway.Name(),
		Purpose:        model.PurposeRenewal,
		SubscriptionID: &subscriptionID,
		PlanID:         &planID,
		Metadata: model.JSONB{
			model.MetaBillingCycle: string(sub.BillingCycle),
		},
	}

	outcome, err := s.payments.ChargeCard(ctx, gateway, payment, &provider.ChargeRequest{
		Amount:        sub.Amount,
		Currency:      sub.Currency,
		CustomerEmail: sub.CustomerEmail,
		CustomerRef:   sub.CustomerRef,
		PaymentToken:  token,
		OffSession:    true,
		Description:   "Renewal " + sub.PlanID,
	})
	if err != nil {
		var declined *domainErrors.ProviderDeclinedError
		if errors.As(err, &declined) {
			log.Info("Renewal declined", zap.String("code", declined.ProviderCode))
			return RenewalDeclined, s.onFailure(ctx, sub, declined.Message)
		}
		if domainErrors.IsRetryable(err) {
			// left pending; the next run resolves it before charging again
			log.Warn("Renewal charge undecided", zap.Error(err))
			return RenewalError, s.onFailure(ctx, sub, "processor unavailable")
		}
		log.Warn("Renewal charge errored", zap.Error(err))
		return RenewalError, s.onFailure(ctx, sub, "processor error")
	}

	switch outcome.Result.Status {
	case model.PaymentStatusCompleted:
		s.onApproved(sub, payment, outcome.Applied)
		return RenewalApproved, false
	case model.PaymentStatusFailed:
		reason := outcome.Result.Reason
		if reason == "" {
			reason = outcome.Result.RawStatus
		}
		return RenewalDeclined, s.onFailure(ctx, sub, reason)
	default:
		log.Info("Renewal pending at processor", zap.String("payment_id", payment.ID))
		return RenewalPending, false
	}
}

// resolveInFlight reads a pending renewal from the processor and applies the
// answer. resolved is false when the charge is still undecided; err is set
// only when the processor could not be read.
func (s *BillingService) resolveInFlight(ctx context.Context, gateway provider.CardGateway, sub *model.Subscription, payment *model.Payment) (resolved bool, applied *ApplyResult, err error) {
	log := s.logger.With(
		zap.String("subscription_id", sub.ID),
		zap.String("payment_id", payment.ID))

	res, err := gateway.Lookup(ctx, payment.Ref(), payment.ID)
	if errors.Is(err, domainErrors.ErrPaymentNotFound) {
		// the charge never reached the processor
		if _, err := s.paymentRepo.MarkFailedByID(ctx, payment.ID, "not found at processor"); err != nil {
			log.Error("Failed to close abandoned renewal", zap.Error(err))
			return false, nil, nil
		}
		return true, nil, nil
	}
	if err != nil {
		return false, nil, err
	}

	if res.Status == model.PaymentStatusPending || res.Status == model.PaymentStatusPartiallyPaid {
		return false, nil, nil
	}

	event := res.Event(gateway.Name(), payment.Amount, payment.Currency)
	event.Reference = payment.ID
	applied, err = s.ingestion.Apply(ctx, event)
	if err != nil {
		log.Error("Failed to apply in-flight renewal result", zap.Error(err))
		return false, nil, nil
	}

	log.Info("In-flight renewal resolved", zap.String("status", string(res.Status)))
	return true, applied, nil
}

// onApproved logs the approval. The ledger's first completion already ran
// the renewal through fulfillment.
func (s *BillingService) onApproved(sub *model.Subscription, payment *model.Payment, applied *ApplyResult) {
	if applied != nil && applied.FulfillmentErr != nil {
		s.logger.Error("Renewal approved with fulfillment pending",
			zap.String("subscription_id", sub.ID),
			zap.String("payment_id", payment.ID),
			zap.Error(applied.FulfillmentErr))
		return
	}
	s.logger.Info("Renewal approved",
		zap.String("subscription_id", sub.ID),
		zap.String("payment_id", payment.ID))
}

// onFailure counts a failed renewal and reports whether it made the
// subscription past due
func (s *BillingService) onFailure(ctx context.Context, sub *model.Subscription, reason string) bool {
	updated, err := s.subscriptionRepo.RecordFailure(ctx, sub.ID, reason, s.cfg.MaxFailures)
	if err != nil {
		s.logger.Error("Failed to record renewal failure",
			zap.String("subscription_id", sub.ID),
			zap.Error(err))
		return false
	}
	if updated == nil {
		return false
	}

	pastDue := updated.Status == model.SubscriptionStatusPastDue
	msgType := notify.TypeRenewalFailed
	if pastDue {
		msgType = notify.TypeSubscriptionPastDue
	}
	s.notifier.Notify(ctx, notify.Notification{
		Type:    msgType,
		OwnerID: sub.OwnerID,
		Data: map[string]interface{}{
			"subscription_id":      sub.ID,
			"consecutive_failures": updated.ConsecutiveFailures,
		},
	})

	s.logger.Info("Renewal failure recorded",
		zap.String("subscription_id", sub.ID),
		zap.Int("consecutive_failures", updated.ConsecutiveFailures),
		zap.String("status", string(updated.Status)))

	return pastDue
}

// Reactivate puts the owner's past-due subscription back in the due set
func (s *BillingService) Reactivate(ctx context.Context, ownerID, subscriptionID string) (*model.Subscription, error) {
	sub, err := s.subscriptionRepo.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.OwnerID != ownerID {
		return nil, domainErrors.ErrSubscriptionNotFound
	}
	if sub.Status != model.SubscriptionStatusPastDue {
		return nil, domainErrors.ErrSubscriptionNotPastDue
	}

	ok, err := s.subscriptionRepo.Reactivate(ctx, subscriptionID, ownerID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainErrors.ErrSubscriptionNotPastDue
	}

	s.logger.Info("Subscription reactivated",
		zap.String("subscription_id", subscriptionID),
		zap.String("owner_id", ownerID))

	return s.subscriptionRepo.FindByID(ctx, subscriptionID)
}
