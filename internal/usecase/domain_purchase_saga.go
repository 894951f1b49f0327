package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/repository"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/dns"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/metrics"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/notify"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/registrar"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/retry"
)

// Registrar sells domains and edits their DNS records
type Registrar interface {
	CheckAvailability(ctx context.Context, domain string) (*registrar.Availability, error)
	Register(ctx context.Context, domain string, price decimal.Decimal) (*registrar.Registration, error)
	PointTo(ctx context.Context, domain, target string) error
}

// CDN serves customer domains once they are attached as custom hostnames
type CDN interface {
	CreateCustomHostname(ctx context.Context, hostname string) (*dns.CustomHostname, error)
	Target() string
}

type SagaStep string

const (
	StepAvailability SagaStep = "availability"
	StepPayment      SagaStep = "payment"
	StepRegistration SagaStep = "registration"
	StepDNS          SagaStep = "dns"
	StepBinding      SagaStep = "binding"
)

type StepOutcome string

const (
	StepSucceeded StepOutcome = "success"
	StepFailed    StepOutcome = "failed"
	StepSkipped   StepOutcome = "skipped"
)

// StepResult is the tagged outcome of one saga step
type StepResult struct {
	Step      SagaStep    `json:"step"`
	Outcome   StepOutcome `json:"outcome"`
	Retryable bool        `json:"retryable"`
	Error     string      `json:"error,omitempty"`
}

// DomainPurchase reports how far a purchase got. Every side effect it names
// can be inspected on its own: the payment row, the registrar order id in
// the payment metadata, the CDN hostname and resources.domain.
type DomainPurchase struct {
	Domain           string          `json:"domain"`
	ResourceID       string          `json:"resource_id"`
	PaymentID        string          `json:"payment_id,omitempty"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	Cursor           SagaStep        `json:"cursor"`
	Steps            []StepResult    `json:"steps"`
	RegistrarOrderID string          `json:"registrar_order_id,omitempty"`
	HostnameID       string          `json:"hostname_id,omitempty"`
}

type DomainPurchaseRequest struct {
	OwnerID       string
	ResourceID    string
	Domain        string
	PaymentToken  string
	CustomerEmail string
}

// DomainPurchaseSaga charges for a domain, registers it, points it at the
// CDN and binds it to a resource. Nothing is compensated: a failure after
// the charge leaves the payment completed and returns its id.
type DomainPurchaseSaga struct {
	resourceRepo repository.ResourceRepository
	paymentRepo  repository.PaymentRepository
	payments     *PaymentService
	cards        CardGateways
	registrar    Registrar
	cdn          CDN
	notifier     Notifier
	validate     *validator.Validate
	lookupPolicy retry.Policy
	tracer       trace.Tracer
	logger       *zap.Logger
}

func NewDomainPurchaseSaga(
	resourceRepo repository.ResourceRepository,
	paymentRepo repository.PaymentRepository,
	payments *PaymentService,
	cards CardGateways,
	registrar Registrar,
	cdn CDN,
	notifier Notifier,
	logger *zap.Logger,
) *DomainPurchaseSaga {
	return &DomainPurchaseSaga{
		resourceRepo: resourceRepo,
		paymentRepo:  paymentRepo,
		payments:     payments,
		cards:        cards,
		registrar:    registrar,
		cdn:          cdn,
		notifier:     notifier,
		validate:     validator.New(),
		lookupPolicy: retry.Default(domainErrors.IsRetryable),
		tracer:       otel.Tracer(tracerName),
		logger:       logger,
	}
}

// NormalizeDomain lowercases and validates a domain name
func (s *DomainPurchaseSaga) NormalizeDomain(domain string) (string, error) {
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if err := s.validate.Var(d, "required,fqdn"); err != nil {
		return "", fmt.Errorf("invalid domain %q", domain)
	}
	return d, nil
}

// CheckAvailability looks a domain up at the registrar without buying it
func (s *DomainPurchaseSaga) CheckAvailability(ctx context.Context, domain string) (*registrar.Availability, error) {
	d, err := s.NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	return retry.DoValue(ctx, s.lookupPolicy, func(ctx context.Context) (*registrar.Availability, error) {
		return s.registrar.CheckAvailability(ctx, d)
	})
}

// Purchase runs the saga. The returned DomainPurchase is never nil once the
// request passed validation, so callers can report partial progress.
func (s *DomainPurchaseSaga) Purchase(ctx context.Context, req *DomainPurchaseRequest) (*DomainPurchase, error) {
	domain, err := s.NormalizeDomain(req.Domain)
	if err != nil {
		return nil, err
	}

	resource, err := s.resourceRepo.FindByID(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	if resource == nil || resource.OwnerID != req.OwnerID {
		return nil, domainErrors.ErrResourceNotFound
	}

	ctx, span := s.tracer.Start(ctx, "domain.purchase", trace.WithAttributes(
		attribute.String("domain.name", domain),
		attribute.String("resource.id", req.ResourceID),
	))
	defer span.End()

	log := s.logger.With(
		zap.String("domain", domain),
		zap.String("owner_id", req.OwnerID),
		zap.String("resource_id", req.ResourceID))

	purchase := &DomainPurchase{Domain: domain, ResourceID: req.ResourceID}

	// availability: no side effects, nothing to undo
	var availability *registrar.Availability
	if err := s.runStep(ctx, purchase, StepAvailability, func(ctx context.Context) error {
		a, err := s.CheckAvailability(ctx, domain)
		if err != nil {
			return err
		}
		if !a.Available {
			return domainErrors.ErrDomainUnavailable
		}
		availability = a
		return nil
	}); err != nil {
		span.SetStatus(codes.Error, "domain unavailable")
		return purchase, err
	}
	purchase.Price = availability.Price
	purchase.Currency = availability.Currency

	// payment
	if err := s.runStep(ctx, purchase, StepPayment, func(ctx context.Context) error {
		return s.charge(ctx, purchase, req, availability)
	}); err != nil {
		span.SetStatus(codes.Error, "payment failed")
		return purchase, err
	}

	// registration: the charge is final from here on
	if err := s.runStep(ctx, purchase, StepRegistration, func(ctx context.Context) error {
		registration, err := s.registrar.Register(ctx, domain, availability.Price)
		if err != nil {
			return domainErrors.NewDomainRegistrationError(domain, purchase.PaymentID, err)
		}
		purchase.RegistrarOrderID = registration.OrderID
		return nil
	}); err != nil {
		metrics.PartialFulfillment(string(domainErrors.StageRegistration))
		log.Error("Domain paid but registration failed, manual reconciliation required",
			zap.String("payment_id", purchase.PaymentID),
			zap.Error(err))
		span.SetStatus(codes.Error, "registration failed")
		return purchase, err
	}
	if err := s.paymentRepo.MergeMetadata(ctx, purchase.PaymentID, model.JSONB{
		model.MetaRegistrarOrderID: purchase.RegistrarOrderID,
	}); err != nil {
		log.Warn("Failed to record registrar order on payment",
			zap.String("payment_id", purchase.PaymentID),
			zap.Error(err))
	}

	// dns is best effort; the domain can be pointed by hand later
	if s.cdn == nil {
		s.skipStep(purchase, StepDNS)
	} else if err := s.runStep(ctx, purchase, StepDNS, func(ctx context.Context) error {
		hostname, err := s.cdn.CreateCustomHostname(ctx, domain)
		if err != nil {
			return err
		}
		purchase.HostnameID = hostname.ID
		return s.registrar.PointTo(ctx, domain, s.cdn.Target())
	}); err != nil {
		log.Warn("Domain registered but DNS setup failed", zap.Error(err))
	}

	// binding
	if err := s.runStep(ctx, purchase, StepBinding, func(ctx context.Context) error {
		if err := s.resourceRepo.BindDomain(ctx, req.OwnerID, req.ResourceID, domain); err != nil {
			return domainErrors.NewPartialFulfillmentError(purchase.PaymentID, domainErrors.StageBinding, err)
		}
		return nil
	}); err != nil {
		metrics.PartialFulfillment(string(domainErrors.StageBinding))
		log.Error("Domain registered but not bound to resource",
			zap.String("payment_id", purchase.PaymentID),
			zap.Error(err))
		span.SetStatus(codes.Error, "binding failed")
		return purchase, err
	}

	s.notifier.Notify(ctx, notify.Notification{
		Type:      notify.TypeDomainConnected,
		OwnerID:   req.OwnerID,
		PaymentID: purchase.PaymentID,
		Data: map[string]interface{}{
			"domain":      domain,
			"resource_id": req.ResourceID,
		},
	})

	log.Info("Domain purchase completed",
		zap.String("payment_id", purchase.PaymentID),
		zap.String("registrar_order_id", purchase.RegistrarOrderID))

	return purchase, nil
}

func (s *DomainPurchaseSaga) charge(ctx context.Context, purchase *DomainPurchase, req *DomainPurchaseRequest, availability *registrar.Availability) error {
	gateway, err := s.cards.GatewayFromString("")
	if err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrProviderNotConfigured, err)
	}

	currency := availability.Currency
	if currency == "" {
		currency = "USD"
	}
	payment := &model.Payment{
		ID:       model.NewID("pay"),
		OwnerID:  req.OwnerID,
		Amount:   availability.Price,
		Currency: currency,
		Provider: model.ProviderCard,
		Gateway:  gateway.Name(),
		Purpose:  model.PurposeDomainPurchase,
		Metadata: model.JSONB{
			model.MetaDomain: purchase.Domain,
		},
	}
	purchase.PaymentID = payment.ID

	outcome, err := s.payments.ChargeCard(ctx, gateway, payment, &provider.ChargeRequest{
		Amount:        availability.Price,
		Currency:      currency,
		CustomerEmail: req.CustomerEmail,
		PaymentToken:  req.PaymentToken,
		Description:   "Domain " + purchase.Domain,
	})
	if err != nil {
		if domainErrors.IsRetryable(err) {
			return fmt.Errorf("%w: payment %s: %v", domainErrors.ErrPaymentPending, payment.ID, err)
		}
		return err
	}

	switch outcome.Result.Status {
	case model.PaymentStatusCompleted:
		return nil
	case model.PaymentStatusFailed:
		return domainErrors.NewProviderDeclinedError(gateway.Name(), payment.ID, outcome.Result.RawStatus, "payment declined")
	default:
		return fmt.Errorf("%w: payment %s", domainErrors.ErrPaymentPending, payment.ID)
	}
}

// runStep runs fn in its own span and appends its tagged result
func (s *DomainPurchaseSaga) runStep(ctx context.Context, purchase *DomainPurchase, step SagaStep, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "domain.purchase."+string(step))
	defer span.End()

	purchase.Cursor = step
	err := fn(ctx)

	result := StepResult{Step: step, Outcome: StepSucceeded}
	if err != nil {
		result.Outcome = StepFailed
		result.Error = stepMessage(err)
		result.Retryable = domainErrors.IsRetryable(err) || errors.Is(err, domainErrors.ErrPaymentPending)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(step)+" failed")
	}
	purchase.Steps = append(purchase.Steps, result)
	metrics.SagaStep(string(step), string(result.Outcome))
	return err
}

func (s *DomainPurchaseSaga) skipStep(purchase *DomainPurchase, step SagaStep) {
	purchase.Cursor = step
	purchase.Steps = append(purchase.Steps, StepResult{Step: step, Outcome: StepSkipped})
	metrics.SagaStep(string(step), string(StepSkipped))
}

// stepMessage keeps processor codes out of client-visible results
func stepMessage(err error) string {
	var declined *domainErrors.ProviderDeclinedError
	if errors.As(err, &declined) {
		return declined.UserMessage()
	}
	var unavailable *domainErrors.ProviderUnavailableError
	if errors.As(err, &unavailable) {
		return unavailable.Provider + " unavailable"
	}
	var partial *domainErrors.PartialFulfillmentError
	if errors.As(err, &partial) {
		return string(partial.Stage) + " failed"
	}
	return err.Error()
}
