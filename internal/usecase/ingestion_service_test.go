package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/notify"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"
)

func cardEvent(ref, eventID string, status model.PaymentStatus, raw string) *provider.PaymentEvent {
	return &provider.PaymentEvent{
		Provider:    model.ProviderCard,
		Gateway:     "signed",
		EventID:     eventID,
		ExternalRef: ref,
		Status:      status,
		RawStatus:   raw,
		Amount:      decimal.RequireFromString("74.99"),
		Currency:    "USD",
		Payload:     map[string]interface{}{"id": ref, "status": raw},
	}
}

func TestIngestionService_ApprovedCardEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addResources(t, "owner-1", 2)
	payment := h.pendingPayment(t, "owner-1", model.ProviderCard, "tx_1")

	event := cardEvent("tx_1", "evt_1", model.PaymentStatusCompleted, "APPROVED")

	t.Run("first delivery activates and notifies once", func(t *testing.T) {
		result, err := h.ingestion.Ingest(ctx, event)
		require.NoError(t, err)
		assert.True(t, result.Transitioned)
		assert.Equal(t, payment.ID, result.PaymentID)
		require.NotNil(t, result.Activation)
		assert.Equal(t, int64(2), result.Activation.Activated)
		assert.True(t, result.Activation.Notified)

		assert.Equal(t, model.PaymentStatusCompleted, h.payment(t, payment.ID).Status)
		assert.Equal(t, int64(2), h.activeCount(t, "owner-1"))
		assert.Len(t, h.notifier.ofType(notify.TypeResourcesActivated), 1)
	})

	t.Run("redelivery is a no-op", func(t *testing.T) {
		result, err := h.ingestion.Ingest(ctx, event)
		require.NoError(t, err)
		assert.False(t, result.Transitioned)
		assert.Nil(t, result.Activation)

		assert.Len(t, h.notifier.ofType(notify.TypeResourcesActivated), 1)
		assert.Equal(t, int64(2), h.activeCount(t, "owner-1"))
	})

	t.Run("event log keeps one row per delivery key", func(t *testing.T) {
		var count int64
		require.NoError(t, h.db.Model(&model.WebhookEvent{}).Where("event_key = ?", "evt_1").Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}

func TestIngestionService_ConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addResources(t, "owner-1", 1)
	h.pendingPayment(t, "owner-1", model.ProviderCard, "tx_9")

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		transitions int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.ingestion.Apply(ctx, cardEvent("tx_9", "", model.PaymentStatusCompleted, "APPROVED"))
			if assert.NoError(t, err) && result.Transitioned {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, transitions)
	assert.Len(t, h.notifier.ofType(notify.TypeResourcesActivated), 1)
}

func TestIngestionService_CryptoPartialThenFinished(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addResources(t, "owner-2", 2)
	payment := h.pendingPayment(t, "owner-2", model.ProviderCrypto, "5077125051")

	event := func(status model.PaymentStatus, raw string) *provider.PaymentEvent {
		return &provider.PaymentEvent{
			Provider:    model.ProviderCrypto,
			Gateway:     "nowpayments",
			EventID:     "5077125051:" + raw,
			ExternalRef: "5077125051",
			Status:      status,
			RawStatus:   raw,
			Amount:      decimal.RequireFromString("74.99"),
			Currency:    "USD",
		}
	}

	partial, err := h.ingestion.Ingest(ctx, event(model.PaymentStatusPartiallyPaid, "partially_paid"))
	require.NoError(t, err)
	assert.True(t, partial.Transitioned)
	assert.Nil(t, partial.Activation)
	assert.Equal(t, model.PaymentStatusPartiallyPaid, h.payment(t, payment.ID).Status)
	assert.Zero(t, h.activeCount(t, "owner-2"))

	finished, err := h.ingestion.Ingest(ctx, event(model.PaymentStatusCompleted, "finished"))
	require.NoError(t, err)
	assert.True(t, finished.Transitioned)
	require.NotNil(t, finished.Activation)
	assert.Equal(t, int64(2), finished.Activation.Activated)
	assert.Equal(t, model.PaymentStatusCompleted, h.payment(t, payment.ID).Status)
	assert.Len(t, h.notifier.ofType(notify.TypeResourcesActivated), 1)
}

func TestIngestionService_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("completion after failure is not applied", func(t *testing.T) {
		h := newHarness(t)
		h.addResources(t, "owner-3", 1)
		payment := h.pendingPayment(t, "owner-3", model.ProviderCard, "tx_late")

		failed, err := h.ingestion.Apply(ctx, cardEvent("tx_late", "", model.PaymentStatusFailed, "DECLINED"))
		require.NoError(t, err)
		assert.True(t, failed.Transitioned)

		late, err := h.ingestion.Apply(ctx, cardEvent("tx_late", "", model.PaymentStatusCompleted, "APPROVED"))
		require.NoError(t, err)
		assert.False(t, late.Transitioned)

		got := h.payment(t, payment.ID)
		assert.Equal(t, model.PaymentStatusFailed, got.Status)
		require.NotNil(t, got.FailureReason)
		assert.Equal(t, "DECLINED", *got.FailureReason)
		assert.Zero(t, h.activeCount(t, "owner-3"))
	})

	t.Run("pending event changes nothing", func(t *testing.T) {
		h := newHarness(t)
		payment := h.pendingPayment(t, "owner-4", model.ProviderCard, "tx_wait")

		result, err := h.ingestion.Apply(ctx, cardEvent("tx_wait", "", model.PaymentStatusPending, "PENDING"))
		require.NoError(t, err)
		assert.False(t, result.Transitioned)
		assert.Equal(t, model.PaymentStatusPending, h.payment(t, payment.ID).Status)
	})

	t.Run("unknown reference is ignored", func(t *testing.T) {
		h := newHarness(t)
		result, err := h.ingestion.Apply(ctx, cardEvent("tx_nobody", "", model.PaymentStatusCompleted, "APPROVED"))
		require.NoError(t, err)
		assert.False(t, result.Transitioned)
	})

	t.Run("event without reference is rejected", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.ingestion.Apply(ctx, cardEvent("", "", model.PaymentStatusCompleted, "APPROVED"))
		assert.Error(t, err)
	})

	t.Run("reference attached from our payment id", func(t *testing.T) {
		h := newHarness(t)
		h.addResources(t, "owner-5", 1)
		payment := h.pendingPayment(t, "owner-5", model.ProviderCard, "")

		event := cardEvent("tx_attached", "", model.PaymentStatusCompleted, "APPROVED")
		event.Reference = payment.ID
		result, err := h.ingestion.Apply(ctx, event)
		require.NoError(t, err)
		assert.True(t, result.Transitioned)
		assert.Equal(t, "tx_attached", h.payment(t, payment.ID).Ref())
	})
}

func TestIngestionService_RecurringCheckoutStartsSubscription(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addResources(t, "owner-6", 1)

	ct, iv, err := h.cipher.Encrypt("pmt_src_6", "owner-6")
	require.NoError(t, err)

	planID := "pro-monthly"
	payment := &model.Payment{
		ID:       model.NewID("pay"),
		OwnerID:  "owner-6",
		Amount:   decimal.RequireFromString("74.99"),
		Currency: "USD",
		Provider: model.ProviderCard,
		Gateway:  "signed",
		Purpose:  model.PurposeCheckout,
		PlanID:   &planID,
		Metadata: model.JSONB{
			model.MetaBillingCycle:    string(model.BillingCycleMonthly),
			model.MetaRecurring:       true,
			model.MetaTokenCiphertext: ct,
			model.MetaTokenIV:         iv,
		},
	}
	require.NoError(t, h.repos.Payment.InsertPending(ctx, payment))
	require.NoError(t, h.repos.Payment.AttachExternalRef(ctx, payment.ID, "tx_sub"))

	result, err := h.ingestion.Apply(ctx, cardEvent("tx_sub", "", model.PaymentStatusCompleted, "APPROVED"))
	require.NoError(t, err)
	require.NoError(t, result.FulfillmentErr)
	require.NotNil(t, result.Activation)
	require.NotEmpty(t, result.Activation.SubscriptionID)

	sub, err := h.repos.Subscription.FindByID(ctx, result.Activation.SubscriptionID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, payment.ID, sub.OriginPaymentID)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, sub.CurrentPeriodStart.AddDate(0, 1, 0).Unix(), sub.NextPaymentAt.Unix())

	token, err := h.cipher.Decrypt(sub.EncryptedPaymentToken, sub.TokenIV, "owner-6")
	require.NoError(t, err)
	assert.Equal(t, "pmt_src_6", token)
}

func TestFulfillmentService_ActivateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addResources(t, "owner-7", 3)
	payment := h.pendingPayment(t, "owner-7", model.ProviderCard, "tx_7")

	first, err := h.fulfillment.Activate(ctx, "owner-7", payment.ID, payment.Amount, payment.Currency)
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Activated)
	assert.True(t, first.Notified)

	second, err := h.fulfillment.Activate(ctx, "owner-7", payment.ID, payment.Amount, payment.Currency)
	require.NoError(t, err)
	assert.Equal(t, usecase.ActivationResult{PaymentID: payment.ID, ExpiresAt: second.ExpiresAt}, *second)
	assert.Len(t, h.notifier.ofType(notify.TypeResourcesActivated), 1)
}

func (h *harness) renewalPayment(t *testing.T, sub *model.Subscription, ref string) *model.Payment {
	t.Helper()
	ctx := context.Background()
	payment := &model.Payment{
		ID:             model.NewID("pay"),
		OwnerID:        sub.OwnerID,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		Provider:       model.ProviderCard,
		Gateway:        "signed",
		Purpose:        model.PurposeRenewal,
		SubscriptionID: &sub.ID,
	}
	require.NoError(t, h.repos.Payment.InsertPending(ctx, payment))
	require.NoError(t, h.repos.Payment.AttachExternalRef(ctx, payment.ID, ref))
	return payment
}

func TestIngestionService_RetryFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("first purchase is activated on retry", func(t *testing.T) {
		h := newHarness(t)
		h.addResources(t, "owner-f1", 2)
		payment := h.pendingPayment(t, "owner-f1", model.ProviderCard, "tx_f1")
		h.withFlakyResources(1)

		result, err := h.ingestion.Ingest(ctx, cardEvent("tx_f1", "evt_f1", model.PaymentStatusCompleted, "APPROVED"))
		require.NoError(t, err)
		assert.True(t, result.Transitioned)
		require.Error(t, result.FulfillmentErr)
		assert.Equal(t, model.PaymentStatusCompleted, h.payment(t, payment.ID).Status)
		assert.Zero(t, h.activeCount(t, "owner-f1"))
		assert.Equal(t, model.WebhookStatusFailed, h.event(t, "evt_f1").ProcessingStatus)

		recovered, err := h.ingestion.RetryFailed(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, recovered, "backoff not elapsed")

		h.dueForRetry(t, "evt_f1")
		recovered, err = h.ingestion.RetryFailed(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, recovered)
		assert.Equal(t, int64(2), h.activeCount(t, "owner-f1"))
		assert.Len(t, h.notifier.ofType(notify.TypeResourcesActivated), 1)
		assert.Equal(t, model.WebhookStatusCompleted, h.event(t, "evt_f1").ProcessingStatus)

		recovered, err = h.ingestion.RetryFailed(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, recovered)
	})

	t.Run("renewal advances the period once", func(t *testing.T) {
		h := newHarness(t)
		due := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
		sub := h.addSubscription(t, "owner-f2", due)
		h.addResources(t, "owner-f2", 1)
		_, err := h.repos.Resource.ActivatePending(ctx, "owner-f2", sub.OriginPaymentID, due)
		require.NoError(t, err)

		payment := h.renewalPayment(t, sub, "tx_f2")
		h.withFlakyResources(1)

		result, err := h.ingestion.Ingest(ctx, cardEvent("tx_f2", "evt_f2", model.PaymentStatusCompleted, "APPROVED"))
		require.NoError(t, err)
		require.Error(t, result.FulfillmentErr)

		next := due.AddDate(0, 1, 0)
		got, err := h.repos.Subscription.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, next.Unix(), got.NextPaymentAt.Unix())
		assert.Empty(t, h.notifier.ofType(notify.TypeRenewalSucceeded))

		h.dueForRetry(t, "evt_f2")
		recovered, err := h.ingestion.RetryFailed(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, recovered)

		got, err = h.repos.Subscription.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, next.Unix(), got.NextPaymentAt.Unix())
		assert.Equal(t, next.Unix(), got.CurrentPeriodEnd.Unix())
		require.NotNil(t, got.LastRenewalPaymentID)
		assert.Equal(t, payment.ID, *got.LastRenewalPaymentID)
		assert.Len(t, h.notifier.ofType(notify.TypeRenewalSucceeded), 1)

		var res model.Resource
		require.NoError(t, h.db.Where("owner_id = ?", "owner-f2").First(&res).Error)
		require.NotNil(t, res.ExpiresAt)
		assert.Equal(t, next.Unix(), res.ExpiresAt.Unix())

		_, err = h.fulfillment.Complete(ctx, h.payment(t, payment.ID))
		require.NoError(t, err)
		got, err = h.repos.Subscription.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, next.Unix(), got.NextPaymentAt.Unix())
	})

	t.Run("undecided payment stays in the log", func(t *testing.T) {
		h := newHarness(t)
		h.pendingPayment(t, "owner-f3", model.ProviderCard, "tx_f3")
		_, err := h.repos.Webhook.SaveEvent(ctx, &model.WebhookEvent{
			Provider:         "signed",
			EventKey:         "evt_f3",
			ExternalRef:      "tx_f3",
			ProcessingStatus: model.WebhookStatusPending,
		})
		require.NoError(t, err)
		require.NoError(t, h.repos.Webhook.MarkFailed(ctx, "signed", "evt_f3", assert.AnError))
		h.dueForRetry(t, "evt_f3")

		recovered, err := h.ingestion.RetryFailed(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, recovered)

		ev := h.event(t, "evt_f3")
		assert.Equal(t, model.WebhookStatusFailed, ev.ProcessingStatus)
		assert.Equal(t, 2, ev.RetryCount)
		require.NotNil(t, ev.NextRetryAt)
		assert.True(t, ev.NextRetryAt.After(time.Now()))
	})
}

func TestIngestionService_ApplyRecordsFulfillmentFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addResources(t, "owner-g1", 1)
	payment := h.pendingPayment(t, "owner-g1", model.ProviderCard, "tx_g1")
	h.withFlakyResources(1)

	result, err := h.ingestion.Apply(ctx, cardEvent("tx_g1", "", model.PaymentStatusCompleted, "APPROVED"))
	require.NoError(t, err)
	require.Error(t, result.FulfillmentErr)

	key := "fulfillment:" + payment.ID
	ev := h.event(t, key)
	assert.Equal(t, model.WebhookStatusFailed, ev.ProcessingStatus)
	assert.Equal(t, "tx_g1", ev.ExternalRef)

	h.dueForRetry(t, key)
	recovered, err := h.ingestion.RetryFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.Equal(t, int64(1), h.activeCount(t, "owner-g1"))
	assert.Equal(t, model.WebhookStatusCompleted, h.event(t, key).ProcessingStatus)
}

func TestIngestionService_AmountMismatch(t *testing.T) {
	ctx := context.Background()

	t.Run("different amount is refused", func(t *testing.T) {
		h := newHarness(t)
		h.addResources(t, "owner-m1", 1)
		payment := h.pendingPayment(t, "owner-m1", model.ProviderCard, "tx_m1")

		event := cardEvent("tx_m1", "evt_m1", model.PaymentStatusCompleted, "APPROVED")
		event.Amount = decimal.RequireFromString("1.00")
		_, err := h.ingestion.Ingest(ctx, event)
		require.ErrorIs(t, err, domainErrors.ErrAmountMismatch)

		assert.Equal(t, model.PaymentStatusPending, h.payment(t, payment.ID).Status)
		assert.Zero(t, h.activeCount(t, "owner-m1"))
		assert.Equal(t, model.WebhookStatusFailed, h.event(t, "evt_m1").ProcessingStatus)
	})

	t.Run("different currency is refused", func(t *testing.T) {
		h := newHarness(t)
		h.pendingPayment(t, "owner-m2", model.ProviderCrypto, "5077125099")

		event := cardEvent("5077125099", "", model.PaymentStatusCompleted, "finished")
		event.Provider = model.ProviderCrypto
		event.Currency = "EUR"
		_, err := h.ingestion.Apply(ctx, event)
		assert.ErrorIs(t, err, domainErrors.ErrAmountMismatch)
	})

	t.Run("settlement amount is accepted", func(t *testing.T) {
		h := newHarness(t)
		h.addResources(t, "owner-m3", 1)
		payment := h.pendingPayment(t, "owner-m3", model.ProviderCard, "tx_m3")
		require.NoError(t, h.repos.Payment.MergeMetadata(ctx, payment.ID, model.JSONB{
			model.MetaSettlementAmount: int64(29996000),
			model.MetaSettlementCcy:    "COP",
		}))

		event := cardEvent("tx_m3", "", model.PaymentStatusCompleted, "APPROVED")
		event.Amount = decimal.RequireFromString("299960.00")
		event.Currency = "COP"
		result, err := h.ingestion.Apply(ctx, event)
		require.NoError(t, err)
		assert.True(t, result.Transitioned)
		assert.Equal(t, int64(1), h.activeCount(t, "owner-m3"))
	})

	t.Run("wrong settlement amount is refused", func(t *testing.T) {
		h := newHarness(t)
		payment := h.pendingPayment(t, "owner-m4", model.ProviderCard, "tx_m4")
		require.NoError(t, h.repos.Payment.MergeMetadata(ctx, payment.ID, model.JSONB{
			model.MetaSettlementAmount: int64(29996000),
			model.MetaSettlementCcy:    "COP",
		}))

		event := cardEvent("tx_m4", "", model.PaymentStatusCompleted, "APPROVED")
		event.Amount = decimal.RequireFromString("100.00")
		event.Currency = "COP"
		_, err := h.ingestion.Apply(ctx, event)
		assert.ErrorIs(t, err, domainErrors.ErrAmountMismatch)
		assert.Equal(t, model.PaymentStatusPending, h.payment(t, payment.ID).Status)
	})
}
