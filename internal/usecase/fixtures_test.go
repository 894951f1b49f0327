package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/repository"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/crypto"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/database"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/notify"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestRepos(t *testing.T) (*gorm.DB, *database.Repositories) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db, zap.NewNop()))
	return db, database.NewRepositories(db, zap.NewNop())
}

func newCipher(t *testing.T) *crypto.AESEncryptionService {
	t.Helper()
	c, err := crypto.NewAESEncryptionService(testKey)
	require.NoError(t, err)
	return c
}

// recordingNotifier keeps every notification in memory
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) ofType(typ string) []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Notification
	for _, msg := range n.sent {
		if msg.Type == typ {
			out = append(out, msg)
		}
	}
	return out
}

// MockCardGateway is a mock implementation of provider.CardGateway
type MockCardGateway struct {
	mock.Mock
}

func (m *MockCardGateway) Name() string { return "signed" }

func (m *MockCardGateway) CreateCharge(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.ChargeResult), args.Error(1)
}

func (m *MockCardGateway) Lookup(ctx context.Context, externalID, reference string) (*provider.ChargeResult, error) {
	args := m.Called(ctx, externalID, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.ChargeResult), args.Error(1)
}

func (m *MockCardGateway) ParseWebhook(ctx context.Context, body []byte, header http.Header) (*provider.PaymentEvent, error) {
	args := m.Called(ctx, body, header)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.PaymentEvent), args.Error(1)
}

// MockCryptoGateway is a mock implementation of provider.CryptoGateway
type MockCryptoGateway struct {
	mock.Mock
}

func (m *MockCryptoGateway) Name() string { return "nowpayments" }

func (m *MockCryptoGateway) CreatePayment(ctx context.Context, req *provider.CryptoPaymentRequest) (*provider.CryptoPaymentResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CryptoPaymentResult), args.Error(1)
}

func (m *MockCryptoGateway) GetStatus(ctx context.Context, externalID string) (*provider.CryptoStatus, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CryptoStatus), args.Error(1)
}

func (m *MockCryptoGateway) ParseIPN(ctx context.Context, body []byte, header http.Header) (*provider.PaymentEvent, error) {
	args := m.Called(ctx, body, header)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.PaymentEvent), args.Error(1)
}

// singleCard resolves every gateway name to one gateway
type singleCard struct {
	gateway provider.CardGateway
}

func (s singleCard) GatewayFromString(string) (provider.CardGateway, error) {
	return s.gateway, nil
}

// harness wires the services the way the server does, on an in-memory ledger
type harness struct {
	db          *gorm.DB
	repos       *database.Repositories
	card        *MockCardGateway
	crypto      *MockCryptoGateway
	notifier    *recordingNotifier
	cipher      *crypto.AESEncryptionService
	fulfillment *usecase.FulfillmentService
	ingestion   *usecase.IngestionService
	payments    *usecase.PaymentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, repos := newTestRepos(t)
	h := &harness{
		db:       db,
		repos:    repos,
		card:     new(MockCardGateway),
		crypto:   new(MockCryptoGateway),
		notifier: &recordingNotifier{},
		cipher:   newCipher(t),
	}
	h.wire(repos.Resource)
	return h
}

func (h *harness) wire(resources repository.ResourceRepository) {
	log := zap.NewNop()
	h.fulfillment = usecase.NewFulfillmentService(h.repos.Payment, h.repos.Subscription, resources, h.notifier, log)
	h.ingestion = usecase.NewIngestionService(h.repos.Payment, h.repos.Webhook, h.fulfillment, log)
	h.payments = usecase.NewPaymentService(h.repos.Payment, h.repos.Plan, singleCard{h.card}, nil, h.crypto,
		h.cipher, h.ingestion, "https://app.test/return", "https://app.test/cancel", log)
}

// flakyResources fails the next n resource writes, then passes through
type flakyResources struct {
	repository.ResourceRepository
	mu       sync.Mutex
	failures int
}

func (f *flakyResources) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset by peer")
	}
	return nil
}

func (f *flakyResources) ActivatePending(ctx context.Context, ownerID, paymentID string, expiresAt time.Time) (int64, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	return f.ResourceRepository.ActivatePending(ctx, ownerID, paymentID, expiresAt)
}

func (f *flakyResources) ExtendActive(ctx context.Context, ownerID string, expiresAt time.Time) (int64, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	return f.ResourceRepository.ExtendActive(ctx, ownerID, expiresAt)
}

// withFlakyResources rewires the services so the next n resource writes fail
func (h *harness) withFlakyResources(n int) {
	h.wire(&flakyResources{ResourceRepository: h.repos.Resource, failures: n})
}

// dueForRetry makes a failed event eligible for the next retry pass
func (h *harness) dueForRetry(t *testing.T, eventKey string) {
	t.Helper()
	require.NoError(t, h.db.Model(&model.WebhookEvent{}).
		Where("event_key = ?", eventKey).
		Update("next_retry_at", time.Now().Add(-time.Minute)).Error)
}

func (h *harness) event(t *testing.T, eventKey string) *model.WebhookEvent {
	t.Helper()
	var ev model.WebhookEvent
	require.NoError(t, h.db.Where("event_key = ?", eventKey).First(&ev).Error)
	return &ev
}

func (h *harness) addResources(t *testing.T, owner string, n int) []*model.Resource {
	t.Helper()
	var out []*model.Resource
	for i := 0; i < n; i++ {
		r := &model.Resource{
			ID:      model.NewID("res"),
			OwnerID: owner,
			Slug:    model.NewID("link"),
		}
		require.NoError(t, h.db.Create(r).Error)
		out = append(out, r)
	}
	return out
}

func (h *harness) activeCount(t *testing.T, owner string) int64 {
	t.Helper()
	n, err := h.repos.Resource.CountActive(context.Background(), owner)
	require.NoError(t, err)
	return n
}

func (h *harness) pendingPayment(t *testing.T, owner string, kind model.ProviderKind, ref string) *model.Payment {
	t.Helper()
	ctx := context.Background()
	payment := &model.Payment{
		ID:       model.NewID("pay"),
		OwnerID:  owner,
		Amount:   decimal.RequireFromString("74.99"),
		Currency: "USD",
		Provider: kind,
		Gateway:  "signed",
		Purpose:  model.PurposeCheckout,
		Metadata: model.JSONB{model.MetaBillingCycle: string(model.BillingCycleMonthly)},
	}
	if kind == model.ProviderCrypto {
		payment.Gateway = "nowpayments"
	}
	require.NoError(t, h.repos.Payment.InsertPending(ctx, payment))
	if ref != "" {
		require.NoError(t, h.repos.Payment.AttachExternalRef(ctx, payment.ID, ref))
	}
	return payment
}

func (h *harness) payment(t *testing.T, id string) *model.Payment {
	t.Helper()
	p, err := h.repos.Payment.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

// addSubscription stores an active monthly subscription whose token was
// encrypted for its owner
func (h *harness) addSubscription(t *testing.T, owner string, due time.Time) *model.Subscription {
	t.Helper()
	ct, iv, err := h.cipher.Encrypt("pmt_src_1", owner)
	require.NoError(t, err)

	sub := &model.Subscription{
		ID:                    model.NewID("sub"),
		OwnerID:               owner,
		PlanID:                "pro-monthly",
		Amount:                decimal.RequireFromString("74.99"),
		Currency:              "USD",
		BillingCycle:          model.BillingCycleMonthly,
		Status:                model.SubscriptionStatusActive,
		CurrentPeriodStart:    due.AddDate(0, -1, 0),
		CurrentPeriodEnd:      due,
		NextPaymentAt:         due,
		Gateway:               "signed",
		EncryptedPaymentToken: ct,
		TokenIV:               iv,
		OriginPaymentID:       model.NewID("pay"),
	}
	created, err := h.repos.Subscription.Create(context.Background(), sub)
	require.NoError(t, err)
	require.True(t, created)
	return sub
}
