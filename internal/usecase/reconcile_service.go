package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/repository"
)

type ReconcileConfig struct {
	// StaleAfter is how old a pending card payment must be before it is
	// looked up at the processor
	StaleAfter time.Duration
	BatchSize  int
	// EventRetryLimit caps how many failed webhook events are retried per run
	EventRetryLimit int
}

// ReconcileSummary counts what one reconciliation pass did
type ReconcileSummary struct {
	Checked         int `json:"checked"`
	Completed       int `json:"completed"`
	Failed          int `json:"failed"`
	StillPending    int `json:"still_pending"`
	Errors          int `json:"errors"`
	EventsRecovered int `json:"events_recovered"`
}

// ReconcileService settles card payments whose processor answer never
// arrived, e.g. after a timeout or a crash between charge and ledger write.
type ReconcileService struct {
	paymentRepo repository.PaymentRepository
	cards       CardGateways
	ingestion   *IngestionService
	cfg         ReconcileConfig
	logger      *zap.Logger
	now         func() time.Time
}

func NewReconcileService(
	paymentRepo repository.PaymentRepository,
	cards CardGateways,
	ingestion *IngestionService,
	cfg ReconcileConfig,
	logger *zap.Logger,
) *ReconcileService {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.EventRetryLimit <= 0 {
		cfg.EventRetryLimit = 50
	}
	return &ReconcileService{
		paymentRepo: paymentRepo,
		cards:       cards,
		ingestion:   ingestion,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// RunOnce looks up stale pending payments and applies whatever the processor
// decided, then retries fulfillment for failed webhook events.
func (s *ReconcileService) RunOnce(ctx context.Context) (*ReconcileSummary, error) {
	olderThan := s.now().UTC().Add(-s.cfg.StaleAfter)
	payments, err := s.paymentRepo.FindDueForRetry(ctx, olderThan, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load stale payments: %w", err)
	}

	summary := &ReconcileSummary{Checked: len(payments)}
	for _, payment := range payments {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		status, err := s.reconcile(ctx, payment)
		if err != nil {
			summary.Errors++
			s.logger.Warn("Could not reconcile payment",
				zap.String("payment_id", payment.ID),
				zap.Error(err))
			continue
		}
		switch status {
		case model.PaymentStatusCompleted:
			summary.Completed++
		case model.PaymentStatusFailed:
			summary.Failed++
		default:
			summary.StillPending++
		}
	}

	recovered, err := s.ingestion.RetryFailed(ctx, s.cfg.EventRetryLimit)
	summary.EventsRecovered = recovered
	if err != nil {
		s.logger.Error("Failed to retry webhook events", zap.Error(err))
	}

	if summary.Checked > 0 || recovered > 0 {
		s.logger.Info("Reconciliation finished",
			zap.Int("checked", summary.Checked),
			zap.Int("completed", summary.Completed),
			zap.Int("failed", summary.Failed),
			zap.Int("still_pending", summary.StillPending),
			zap.Int("errors", summary.Errors),
			zap.Int("events_recovered", summary.EventsRecovered))
	}
	return summary, nil
}

func (s *ReconcileService) reconcile(ctx context.Context, payment *model.Payment) (model.PaymentStatus, error) {
	gateway, err := s.cards.GatewayFromString(payment.Gateway)
	if err != nil {
		return "", err
	}

	res, err := gateway.Lookup(ctx, payment.Ref(), payment.ID)
	if errors.Is(err, domainErrors.ErrPaymentNotFound) {
		// the charge never reached the processor
		if _, err := s.paymentRepo.MarkFailedByID(ctx, payment.ID, "not found at processor"); err != nil {
			return "", err
		}
		return model.PaymentStatusFailed, nil
	}
	if err != nil {
		return "", err
	}
	if res.ExternalID == "" {
		return model.PaymentStatusPending, nil
	}

	event := res.Event(gateway.Name(), payment.Amount, payment.Currency)
	event.Reference = payment.ID
	applied, err := s.ingestion.Apply(ctx, event)
	if err != nil {
		return "", err
	}
	if applied.FulfillmentErr != nil {
		s.logger.Error("Reconciled payment completed with fulfillment pending",
			zap.String("payment_id", payment.ID),
			zap.Error(applied.FulfillmentErr))
	}
	return res.Status, nil
}
