package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/dns"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/notify"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/registrar"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"
)

// MockRegistrar is a mock implementation of usecase.Registrar
type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) CheckAvailability(ctx context.Context, domain string) (*registrar.Availability, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registrar.Availability), args.Error(1)
}

func (m *MockRegistrar) Register(ctx context.Context, domain string, price decimal.Decimal) (*registrar.Registration, error) {
	args := m.Called(ctx, domain, price)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registrar.Registration), args.Error(1)
}

func (m *MockRegistrar) PointTo(ctx context.Context, domain, target string) error {
	args := m.Called(ctx, domain, target)
	return args.Error(0)
}

// MockCDN is a mock implementation of usecase.CDN
type MockCDN struct {
	mock.Mock
}

func (m *MockCDN) CreateCustomHostname(ctx context.Context, hostname string) (*dns.CustomHostname, error) {
	args := m.Called(ctx, hostname)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dns.CustomHostname), args.Error(1)
}

func (m *MockCDN) Target() string { return "edge.links.test" }

var domainPrice = decimal.RequireFromString("12.99")

func available(domain string) *registrar.Availability {
	return &registrar.Availability{Domain: domain, Available: true, Price: domainPrice, Currency: "USD"}
}

func approvedCharge(ref string) *provider.ChargeResult {
	return &provider.ChargeResult{ExternalID: ref, Status: model.PaymentStatusCompleted, RawStatus: "APPROVED"}
}

func outcomes(steps []usecase.StepResult) map[usecase.SagaStep]usecase.StepOutcome {
	out := make(map[usecase.SagaStep]usecase.StepOutcome, len(steps))
	for _, s := range steps {
		out[s.Step] = s.Outcome
	}
	return out
}

func TestDomainPurchaseSaga_Purchase(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, cdn usecase.CDN) (*harness, *MockRegistrar, *usecase.DomainPurchaseSaga, *model.Resource) {
		h := newHarness(t)
		reg := new(MockRegistrar)
		resource := h.addResources(t, "owner-d", 1)[0]
		saga := usecase.NewDomainPurchaseSaga(h.repos.Resource, h.repos.Payment, h.payments,
			singleCard{h.card}, reg, cdn, h.notifier, zap.NewNop())
		return h, reg, saga, resource
	}

	request := func(resource *model.Resource) *usecase.DomainPurchaseRequest {
		return &usecase.DomainPurchaseRequest{
			OwnerID:      "owner-d",
			ResourceID:   resource.ID,
			Domain:       " MyLinks.Example. ",
			PaymentToken: "tok_test",
		}
	}

	t.Run("all steps succeed", func(t *testing.T) {
		cdn := new(MockCDN)
		h, reg, saga, resource := setup(t, cdn)
		reg.On("CheckAvailability", mock.Anything, "mylinks.example").Return(available("mylinks.example"), nil)
		h.card.On("CreateCharge", mock.Anything, mock.MatchedBy(func(req *provider.ChargeRequest) bool {
			return req.Amount.Equal(domainPrice) && req.Currency == "USD"
		})).Return(approvedCharge("tx_dom_1"), nil).Once()
		reg.On("Register", mock.Anything, "mylinks.example", domainPrice).
			Return(&registrar.Registration{Domain: "mylinks.example", OrderID: "order-77"}, nil)
		cdn.On("CreateCustomHostname", mock.Anything, "mylinks.example").
			Return(&dns.CustomHostname{ID: "ch_1", Hostname: "mylinks.example", Status: "pending"}, nil)
		reg.On("PointTo", mock.Anything, "mylinks.example", "edge.links.test").Return(nil)

		purchase, err := saga.Purchase(ctx, request(resource))
		require.NoError(t, err)
		assert.Equal(t, "order-77", purchase.RegistrarOrderID)
		assert.Equal(t, "ch_1", purchase.HostnameID)
		assert.Equal(t, usecase.StepBinding, purchase.Cursor)
		for step, outcome := range outcomes(purchase.Steps) {
			assert.Equal(t, usecase.StepSucceeded, outcome, step)
		}
		assert.Len(t, purchase.Steps, 5)

		payment := h.payment(t, purchase.PaymentID)
		assert.Equal(t, model.PaymentStatusCompleted, payment.Status)
		assert.Equal(t, model.PurposeDomainPurchase, payment.Purpose)
		assert.Equal(t, "order-77", payment.Metadata.String(model.MetaRegistrarOrderID))

		bound, err := h.repos.Resource.FindByID(ctx, resource.ID)
		require.NoError(t, err)
		require.NotNil(t, bound.Domain)
		assert.Equal(t, "mylinks.example", *bound.Domain)
		assert.Len(t, h.notifier.ofType(notify.TypeDomainConnected), 1)
		// a domain purchase does not activate links
		assert.Empty(t, h.notifier.ofType(notify.TypeResourcesActivated))
	})

	t.Run("registration failure keeps the payment", func(t *testing.T) {
		h, reg, saga, resource := setup(t, nil)
		reg.On("CheckAvailability", mock.Anything, "mylinks.example").Return(available("mylinks.example"), nil)
		h.card.On("CreateCharge", mock.Anything, mock.Anything).Return(approvedCharge("tx_dom_2"), nil).Once()
		reg.On("Register", mock.Anything, "mylinks.example", domainPrice).
			Return(nil, errors.New("registry rejected the order"))

		purchase, err := saga.Purchase(ctx, request(resource))
		require.Error(t, err)

		var regErr *domainErrors.DomainRegistrationError
		require.ErrorAs(t, err, &regErr)
		assert.Equal(t, purchase.PaymentID, regErr.PaymentID)
		assert.Equal(t, "mylinks.example", regErr.Domain)

		var partial *domainErrors.PartialFulfillmentError
		require.ErrorAs(t, err, &partial)
		assert.Equal(t, domainErrors.StageRegistration, partial.Stage)

		assert.Equal(t, model.PaymentStatusCompleted, h.payment(t, purchase.PaymentID).Status)
		assert.Equal(t, usecase.StepRegistration, purchase.Cursor)
		steps := outcomes(purchase.Steps)
		assert.Equal(t, usecase.StepSucceeded, steps[usecase.StepPayment])
		assert.Equal(t, usecase.StepFailed, steps[usecase.StepRegistration])
		assert.NotContains(t, steps, usecase.StepBinding)

		unbound, err := h.repos.Resource.FindByID(ctx, resource.ID)
		require.NoError(t, err)
		assert.Nil(t, unbound.Domain)
		reg.AssertNotCalled(t, "PointTo", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unavailable domain has no side effects", func(t *testing.T) {
		h, reg, saga, resource := setup(t, nil)
		reg.On("CheckAvailability", mock.Anything, "mylinks.example").
			Return(&registrar.Availability{Domain: "mylinks.example", Available: false}, nil)

		purchase, err := saga.Purchase(ctx, request(resource))
		assert.ErrorIs(t, err, domainErrors.ErrDomainUnavailable)
		assert.Empty(t, purchase.PaymentID)
		assert.Len(t, purchase.Steps, 1)
		h.card.AssertNotCalled(t, "CreateCharge", mock.Anything, mock.Anything)

		var count int64
		require.NoError(t, h.db.Model(&model.Payment{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("declined charge stops before registration", func(t *testing.T) {
		h, reg, saga, resource := setup(t, nil)
		reg.On("CheckAvailability", mock.Anything, "mylinks.example").Return(available("mylinks.example"), nil)
		h.card.On("CreateCharge", mock.Anything, mock.Anything).
			Return(nil, domainErrors.NewProviderDeclinedError("signed", "", "51", "insufficient funds")).Once()

		purchase, err := saga.Purchase(ctx, request(resource))
		var declined *domainErrors.ProviderDeclinedError
		require.ErrorAs(t, err, &declined)
		assert.Equal(t, model.PaymentStatusFailed, h.payment(t, purchase.PaymentID).Status)
		assert.Equal(t, "insufficient funds", purchase.Steps[len(purchase.Steps)-1].Error)
		reg.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("pending charge is retryable and carries the payment id", func(t *testing.T) {
		h, reg, saga, resource := setup(t, nil)
		reg.On("CheckAvailability", mock.Anything, "mylinks.example").Return(available("mylinks.example"), nil)
		h.card.On("CreateCharge", mock.Anything, mock.Anything).
			Return(&provider.ChargeResult{ExternalID: "tx_dom_p", Status: model.PaymentStatusPending, RawStatus: "PENDING"}, nil).Once()

		purchase, err := saga.Purchase(ctx, request(resource))
		assert.ErrorIs(t, err, domainErrors.ErrPaymentPending)
		assert.Contains(t, err.Error(), purchase.PaymentID)
		last := purchase.Steps[len(purchase.Steps)-1]
		assert.Equal(t, usecase.StepPayment, last.Step)
		assert.True(t, last.Retryable)
		reg.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("dns failure does not stop binding", func(t *testing.T) {
		cdn := new(MockCDN)
		h, reg, saga, resource := setup(t, cdn)
		reg.On("CheckAvailability", mock.Anything, "mylinks.example").Return(available("mylinks.example"), nil)
		h.card.On("CreateCharge", mock.Anything, mock.Anything).Return(approvedCharge("tx_dom_3"), nil).Once()
		reg.On("Register", mock.Anything, "mylinks.example", domainPrice).
			Return(&registrar.Registration{Domain: "mylinks.example", OrderID: "order-78"}, nil)
		cdn.On("CreateCustomHostname", mock.Anything, "mylinks.example").
			Return(nil, domainErrors.NewProviderUnavailableError("cdn", "create hostname", 502, nil))

		purchase, err := saga.Purchase(ctx, request(resource))
		require.NoError(t, err)
		steps := outcomes(purchase.Steps)
		assert.Equal(t, usecase.StepFailed, steps[usecase.StepDNS])
		assert.Equal(t, usecase.StepSucceeded, steps[usecase.StepBinding])
	})

	t.Run("resource of another owner is rejected before charging", func(t *testing.T) {
		h, reg, saga, resource := setup(t, nil)
		req := request(resource)
		req.OwnerID = "intruder"

		_, err := saga.Purchase(ctx, req)
		assert.ErrorIs(t, err, domainErrors.ErrResourceNotFound)
		reg.AssertNotCalled(t, "CheckAvailability", mock.Anything, mock.Anything)
		h.card.AssertNotCalled(t, "CreateCharge", mock.Anything, mock.Anything)
	})

	t.Run("invalid domain", func(t *testing.T) {
		_, _, saga, resource := setup(t, nil)
		req := request(resource)
		req.Domain = "not a domain"
		_, err := saga.Purchase(ctx, req)
		assert.Error(t, err)
	})

	t.Run("skipped dns without cdn", func(t *testing.T) {
		h, reg, saga, resource := setup(t, nil)
		reg.On("CheckAvailability", mock.Anything, "mylinks.example").Return(available("mylinks.example"), nil)
		h.card.On("CreateCharge", mock.Anything, mock.Anything).Return(approvedCharge("tx_dom_4"), nil).Once()
		reg.On("Register", mock.Anything, "mylinks.example", domainPrice).
			Return(&registrar.Registration{Domain: "mylinks.example", OrderID: "order-79"}, nil)

		purchase, err := saga.Purchase(ctx, request(resource))
		require.NoError(t, err)
		assert.Equal(t, usecase.StepSkipped, outcomes(purchase.Steps)[usecase.StepDNS])
	})
}
