package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/notify"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"
)

func (h *harness) stalePayment(t *testing.T, owner string, age time.Duration) *model.Payment {
	t.Helper()
	payment := &model.Payment{
		ID:        model.NewID("pay"),
		OwnerID:   owner,
		Amount:    decimal.RequireFromString("74.99"),
		Currency:  "USD",
		Provider:  model.ProviderCard,
		Gateway:   "signed",
		Purpose:   model.PurposeCheckout,
		CreatedAt: time.Now().UTC().Add(-age),
	}
	require.NoError(t, h.repos.Payment.InsertPending(context.Background(), payment))
	return payment
}

func TestReconcileService_RunOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addResources(t, "owner-r1", 1)

	approved := h.stalePayment(t, "owner-r1", time.Hour)
	lost := h.stalePayment(t, "owner-r2", time.Hour)
	undecided := h.stalePayment(t, "owner-r3", time.Hour)
	fresh := h.stalePayment(t, "owner-r4", time.Minute)

	h.card.On("Lookup", mock.Anything, "", approved.ID).Return(&provider.ChargeResult{
		ExternalID: "tx_rec_1",
		Reference:  approved.ID,
		Status:     model.PaymentStatusCompleted,
		RawStatus:  "APPROVED",
	}, nil).Once()
	h.card.On("Lookup", mock.Anything, "", lost.ID).Return(nil, domainErrors.ErrPaymentNotFound).Once()
	h.card.On("Lookup", mock.Anything, "", undecided.ID).Return(&provider.ChargeResult{
		ExternalID: "tx_rec_3",
		Reference:  undecided.ID,
		Status:     model.PaymentStatusPending,
		RawStatus:  "PENDING",
	}, nil).Once()

	reconciler := usecase.NewReconcileService(h.repos.Payment, singleCard{h.card}, h.ingestion,
		usecase.ReconcileConfig{StaleAfter: 15 * time.Minute}, zap.NewNop())

	summary, err := reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Checked)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.StillPending)

	assert.Equal(t, model.PaymentStatusCompleted, h.payment(t, approved.ID).Status)
	assert.Equal(t, int64(1), h.activeCount(t, "owner-r1"))
	assert.Equal(t, model.PaymentStatusFailed, h.payment(t, lost.ID).Status)
	assert.Equal(t, model.PaymentStatusPending, h.payment(t, undecided.ID).Status)
	assert.Equal(t, "tx_rec_3", h.payment(t, undecided.ID).Ref())
	assert.Equal(t, model.PaymentStatusPending, h.payment(t, fresh.ID).Status)

	h.card.AssertExpectations(t)
	h.card.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything, fresh.ID)
}

func TestReconcileService_RecoversFailedFulfillment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addResources(t, "owner-r5", 2)
	payment := h.stalePayment(t, "owner-r5", time.Hour)
	h.withFlakyResources(1)

	h.card.On("Lookup", mock.Anything, "", payment.ID).Return(&provider.ChargeResult{
		ExternalID: "tx_rec_5",
		Reference:  payment.ID,
		Status:     model.PaymentStatusCompleted,
		RawStatus:  "APPROVED",
	}, nil).Once()

	reconciler := usecase.NewReconcileService(h.repos.Payment, singleCard{h.card}, h.ingestion,
		usecase.ReconcileConfig{StaleAfter: 15 * time.Minute}, zap.NewNop())

	summary, err := reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Zero(t, summary.EventsRecovered)
	assert.Equal(t, model.PaymentStatusCompleted, h.payment(t, payment.ID).Status)
	assert.Zero(t, h.activeCount(t, "owner-r5"))

	h.dueForRetry(t, "fulfillment:"+payment.ID)
	summary, err = reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Checked)
	assert.Equal(t, 1, summary.EventsRecovered)
	assert.Equal(t, int64(2), h.activeCount(t, "owner-r5"))
	assert.Len(t, h.notifier.ofType(notify.TypeResourcesActivated), 1)

	h.card.AssertExpectations(t)
}
