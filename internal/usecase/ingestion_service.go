package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/repository"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/metrics"
)

const (
	tracerName = "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"

	// fulfillmentEventPrefix keys the event rows written for completions
	// that did not arrive as a callback
	fulfillmentEventPrefix = "fulfillment:"
)

// ApplyResult is the outcome of applying one normalized payment event
type ApplyResult struct {
	PaymentID string
	Status    model.PaymentStatus
	// Transitioned is true only for the call that moved the ledger row
	Transitioned bool
	Activation   *ActivationResult
	// FulfillmentErr is set when the payment completed but fulfillment did not
	FulfillmentErr error
}

// IngestionService applies payment events from every source to the ledger
// and hands first completions to the fulfillment engine.
type IngestionService struct {
	paymentRepo repository.PaymentRepository
	webhookRepo repository.WebhookEventRepository
	fulfillment *FulfillmentService
	tracer      trace.Tracer
	logger      *zap.Logger
	now         func() time.Time
}

func NewIngestionService(
	paymentRepo repository.PaymentRepository,
	webhookRepo repository.WebhookEventRepository,
	fulfillment *FulfillmentService,
	logger *zap.Logger,
) *IngestionService {
	return &IngestionService{
		paymentRepo: paymentRepo,
		webhookRepo: webhookRepo,
		fulfillment: fulfillment,
		tracer:      otel.Tracer(tracerName),
		logger:      logger,
		now:         time.Now,
	}
}

// Apply moves the ledger row for event forward. Concurrent and repeated
// calls for the same reference are safe: the ledger decides which one wins.
// Completions that arrive without a logged callback (inline charges, captures,
// reconciler lookups) get a failed event row when fulfillment does not finish,
// so RetryFailed picks them up.
func (s *IngestionService) Apply(ctx context.Context, event *provider.PaymentEvent) (*ApplyResult, error) {
	result, err := s.apply(ctx, event)
	if err == nil && result.FulfillmentErr != nil {
		s.recordFulfillmentFailure(ctx, event, result.PaymentID, result.FulfillmentErr)
	}
	return result, err
}

func (s *IngestionService) apply(ctx context.Context, event *provider.PaymentEvent) (*ApplyResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.apply", trace.WithAttributes(
		attribute.String("payment.gateway", event.Gateway),
		attribute.String("payment.external_ref", event.ExternalRef),
		attribute.String("payment.status", string(event.Status)),
	))
	defer span.End()

	if event.ExternalRef == "" {
		return nil, fmt.Errorf("payment event without external reference")
	}

	if event.Reference != "" {
		if err := s.paymentRepo.AttachExternalRef(ctx, event.Reference, event.ExternalRef); err != nil {
			s.logger.Warn("Could not attach external reference",
				zap.String("payment_id", event.Reference),
				zap.String("external_ref", event.ExternalRef),
				zap.Error(err))
		}
	}

	result := &ApplyResult{PaymentID: event.Reference, Status: event.Status}
	var (
		first bool
		err   error
	)

	if event.Status == model.PaymentStatusCompleted {
		if err := s.verifyAmount(ctx, event); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "amount mismatch")
			return nil, err
		}
	}

	switch event.Status {
	case model.PaymentStatusCompleted:
		first, err = s.paymentRepo.MarkCompleted(ctx, event.ExternalRef, s.now().UTC())
	case model.PaymentStatusPartiallyPaid:
		first, err = s.paymentRepo.MarkPartiallyPaid(ctx, event.ExternalRef)
	case model.PaymentStatusFailed:
		reason := event.Reason
		if reason == "" {
			reason = event.RawStatus
		}
		first, err = s.paymentRepo.MarkFailed(ctx, event.ExternalRef, reason)
	default:
		s.logger.Debug("Pending payment event, nothing to apply",
			zap.String("external_ref", event.ExternalRef),
			zap.String("raw_status", event.RawStatus))
		return result, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger transition failed")
		return nil, fmt.Errorf("failed to apply %s event: %w", event.Status, err)
	}

	result.Transitioned = first
	span.SetAttributes(attribute.Bool("payment.transitioned", first))
	metrics.PaymentTransition(string(event.Provider), string(event.Status), first)

	payment, err := s.paymentRepo.FindByExternalRef(ctx, event.ExternalRef)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		s.logger.Warn("Payment event for unknown reference",
			zap.String("gateway", event.Gateway),
			zap.String("external_ref", event.ExternalRef),
			zap.String("status", string(event.Status)))
		return result, nil
	}
	result.PaymentID = payment.ID

	if !first {
		if event.Status == model.PaymentStatusCompleted && payment.Status == model.PaymentStatusFailed {
			metrics.LateCompletion(string(event.Provider))
			s.logger.Error("Completed event for a payment already marked failed, manual review required",
				zap.String("payment_id", payment.ID),
				zap.String("external_ref", event.ExternalRef),
				zap.String("gateway", event.Gateway))
		}
		return result, nil
	}

	s.logger.Info("Payment transitioned",
		zap.String("payment_id", payment.ID),
		zap.String("external_ref", event.ExternalRef),
		zap.String("status", string(event.Status)))

	if event.Status != model.PaymentStatusCompleted {
		return result, nil
	}

	activation, err := s.fulfillment.Complete(ctx, payment)
	result.Activation = activation
	if err != nil {
		span.RecordError(err)
		result.FulfillmentErr = err
	}
	return result, nil
}

// Ingest records an authenticated callback in the event log and applies it.
// The log is an audit trail; a redelivered event is applied again and the
// ledger makes that a no-op.
func (s *IngestionService) Ingest(ctx context.Context, event *provider.PaymentEvent) (*ApplyResult, error) {
	key := event.EventID
	if key == "" {
		key = event.ExternalRef + ":" + event.RawStatus
	}

	record := &model.WebhookEvent{
		Provider:         event.Gateway,
		EventKey:         key,
		ExternalRef:      event.ExternalRef,
		EventStatus:      event.RawStatus,
		ProcessingStatus: model.WebhookStatusPending,
		Payload:          model.JSONB(event.Payload),
	}
	isNew, err := s.webhookRepo.SaveEvent(ctx, record)
	if err != nil {
		s.logger.Error("Failed to record webhook event, applying anyway",
			zap.String("gateway", event.Gateway),
			zap.String("event_key", key),
			zap.Error(err))
	} else if !isNew {
		s.logger.Info("Redelivered webhook event",
			zap.String("gateway", event.Gateway),
			zap.String("event_key", key))
	}

	result, applyErr := s.apply(ctx, event)

	cause := applyErr
	if cause == nil && result != nil {
		cause = result.FulfillmentErr
	}
	if cause != nil {
		metrics.WebhookEvent(event.Gateway, "failed")
		if err := s.webhookRepo.MarkFailed(ctx, event.Gateway, key, cause); err != nil {
			s.logger.Error("Failed to mark webhook event failed", zap.Error(err))
		}
	} else {
		metrics.WebhookEvent(event.Gateway, "processed")
		if err := s.webhookRepo.MarkProcessed(ctx, event.Gateway, key); err != nil {
			s.logger.Error("Failed to mark webhook event processed", zap.Error(err))
		}
	}

	return result, applyErr
}

// verifyAmount refuses a completion whose amount or currency differs from
// the pending payment. Sources that report no amount, or a card settlement
// currency the ledger has no figure for yet, cannot be checked.
func (s *IngestionService) verifyAmount(ctx context.Context, event *provider.PaymentEvent) error {
	if event.Amount.IsZero() || event.Currency == "" {
		return nil
	}
	payment, err := s.paymentRepo.FindByExternalRef(ctx, event.ExternalRef)
	if err != nil {
		return err
	}
	if payment == nil {
		return nil
	}

	matched, checked := amountMatches(payment, event)
	if !checked {
		s.logger.Debug("Completion amount not comparable with the ledger",
			zap.String("payment_id", payment.ID),
			zap.String("currency", event.Currency))
		return nil
	}
	if matched {
		return nil
	}

	metrics.AmountMismatch(string(event.Provider))
	s.logger.Error("Completed event amount differs from payment, manual review required",
		zap.String("payment_id", payment.ID),
		zap.String("external_ref", event.ExternalRef),
		zap.String("gateway", event.Gateway),
		zap.String("expected", payment.Amount.StringFixed(2)+" "+payment.Currency),
		zap.String("reported", event.Amount.String()+" "+event.Currency))
	return fmt.Errorf("payment %s: %w", payment.ID, domainErrors.ErrAmountMismatch)
}

func amountMatches(payment *model.Payment, event *provider.PaymentEvent) (matched, checked bool) {
	if strings.EqualFold(event.Currency, payment.Currency) {
		return event.Amount.Equal(payment.Amount), true
	}

	settlement := payment.Metadata.String(model.MetaSettlementCcy)
	minor, ok := payment.Metadata.Int64(model.MetaSettlementAmount)
	if settlement == "" || !ok {
		// only card charges settle in another currency
		return false, payment.Provider != model.ProviderCard
	}
	if !strings.EqualFold(event.Currency, settlement) {
		return false, true
	}
	return event.Amount.Shift(2).Round(0).IntPart() == minor, true
}

// recordFulfillmentFailure logs a failed event for a completion that did not
// come through Ingest.
func (s *IngestionService) recordFulfillmentFailure(ctx context.Context, event *provider.PaymentEvent, paymentID string, cause error) {
	key := fulfillmentEventPrefix + paymentID
	record := &model.WebhookEvent{
		Provider:         event.Gateway,
		EventKey:         key,
		ExternalRef:      event.ExternalRef,
		EventStatus:      event.RawStatus,
		ProcessingStatus: model.WebhookStatusPending,
	}
	if _, err := s.webhookRepo.SaveEvent(ctx, record); err != nil {
		s.logger.Error("Failed to record fulfillment retry",
			zap.String("payment_id", paymentID),
			zap.Error(err))
		return
	}
	if err := s.webhookRepo.MarkFailed(ctx, event.Gateway, key, cause); err != nil {
		s.logger.Error("Failed to mark fulfillment retry failed",
			zap.String("payment_id", paymentID),
			zap.Error(err))
	}
}

// RetryFailed re-runs fulfillment for logged events whose payment completed
// but whose fulfillment failed. Activation is idempotent and a renewal is
// recorded once per payment, so a retry never repeats finished work.
func (s *IngestionService) RetryFailed(ctx context.Context, limit int) (int, error) {
	events, err := s.webhookRepo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, ev := range events {
		payment, err := s.paymentRepo.FindByExternalRef(ctx, ev.ExternalRef)
		if err != nil {
			return recovered, err
		}
		if payment != nil && !payment.Status.IsTerminal() {
			// still undecided; look again later
			metrics.FulfillmentRetry("skipped")
			if err := s.webhookRepo.MarkFailed(ctx, ev.Provider, ev.EventKey,
				fmt.Errorf("payment still %s", payment.Status)); err != nil {
				s.logger.Error("Failed to reschedule webhook event", zap.Error(err))
			}
			continue
		}
		if payment == nil || payment.Status != model.PaymentStatusCompleted {
			// nothing to fulfill; the ledger outcome stands
			metrics.FulfillmentRetry("skipped")
			if err := s.webhookRepo.MarkProcessed(ctx, ev.Provider, ev.EventKey); err != nil {
				s.logger.Error("Failed to mark webhook event processed", zap.Error(err))
			}
			continue
		}

		if _, err := s.fulfillment.Complete(ctx, payment); err != nil {
			var partial *domainErrors.PartialFulfillmentError
			if !errors.As(err, &partial) {
				return recovered, err
			}
			metrics.FulfillmentRetry("failed")
			if err := s.webhookRepo.MarkFailed(ctx, ev.Provider, ev.EventKey, partial); err != nil {
				s.logger.Error("Failed to mark webhook event failed", zap.Error(err))
			}
			continue
		}

		if err := s.webhookRepo.MarkProcessed(ctx, ev.Provider, ev.EventKey); err != nil {
			s.logger.Error("Failed to mark webhook event processed", zap.Error(err))
		}
		recovered++
		metrics.FulfillmentRetry("recovered")
		s.logger.Info("Fulfillment retried",
			zap.String("payment_id", payment.ID),
			zap.String("event_key", ev.EventKey))
	}
	return recovered, nil
}
