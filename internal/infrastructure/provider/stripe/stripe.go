// Package stripe is the alternative card backend built on PaymentIntents.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
)

// GatewayName identifies this backend in payment rows and logs
const GatewayName = "stripe"

const metadataReference = "reference"

type Config struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides the API endpoint, used against stripe-mock and in tests
	BaseURL string
	Timeout time.Duration
}

// StripeProvider implements provider.CardGateway on PaymentIntents
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

// NewStripeProvider creates a new Stripe card gateway
func NewStripeProvider(cfg Config, logger *zap.Logger) *StripeProvider {
	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BaseURL != "" {
		backendConfig.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

var _ provider.CardGateway = (*StripeProvider)(nil)

func (s *StripeProvider) Name() string { return GatewayName }

func mapStatus(status stripe.PaymentIntentStatus) model.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return model.PaymentStatusCompleted
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture,
		stripe.PaymentIntentStatusRequiresConfirmation:
		return model.PaymentStatusPending
	default:
		return model.PaymentStatusFailed
	}
}

// CreateCharge creates and confirms a PaymentIntent. The payment id is the
// idempotency key, so a retried request cannot charge twice.
func (s *StripeProvider) CreateCharge(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	amountMinor := req.Amount.Shift(2).Round(0).IntPart()
	currency := strings.ToLower(req.Currency)

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amountMinor),
		Currency:           stripe.String(currency),
		PaymentMethod:      stripe.String(req.PaymentToken),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
		Description:        stripe.String(req.Description),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.Reference)
	params.AddMetadata(metadataReference, req.Reference)
	if req.CustomerRef != "" {
		params.Customer = stripe.String(req.CustomerRef)
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	if req.OffSession {
		params.OffSession = stripe.Bool(true)
	} else if req.Vault {
		params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return s.handleError("create charge", req.Reference, err)
	}

	s.logger.Info("Stripe payment intent created",
		zap.String("reference", req.Reference),
		zap.String("payment_intent_id", pi.ID),
		zap.String("status", string(pi.Status)))

	result := toResult(pi)
	if req.Vault && pi.PaymentMethod != nil {
		result.ReusableToken = pi.PaymentMethod.ID
	}
	return result, nil
}

// Lookup reads a PaymentIntent by id, or searches by our reference
func (s *StripeProvider) Lookup(ctx context.Context, externalID, reference string) (*provider.ChargeResult, error) {
	if externalID != "" {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		pi, err := s.api.PaymentIntents.Get(externalID, params)
		if err != nil {
			_, err = s.handleError("lookup", reference, err)
			return nil, err
		}
		return toResult(pi), nil
	}

	params := &stripe.PaymentIntentSearchParams{}
	params.Context = ctx
	params.Query = fmt.Sprintf("metadata['%s']:'%s'", metadataReference, reference)

	iter := s.api.PaymentIntents.Search(params)
	for iter.Next() {
		return toResult(iter.PaymentIntent()), nil
	}
	if err := iter.Err(); err != nil {
		_, err = s.handleError("lookup", reference, err)
		return nil, err
	}
	return nil, domainErrors.ErrPaymentNotFound
}

// ParseWebhook verifies the Stripe-Signature header and normalizes
// payment_intent.* events. Other event types return a nil event.
func (s *StripeProvider) ParseWebhook(ctx context.Context, body []byte, header http.Header) (*provider.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(
		body,
		header.Get("Stripe-Signature"),
		s.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, domainErrors.NewAuthenticationError(GatewayName, err.Error())
	}

	switch event.Type {
	case "payment_intent.succeeded",
		"payment_intent.payment_failed",
		"payment_intent.processing",
		"payment_intent.canceled":
	default:
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to parse payment intent: %w", err)
	}

	result := toResult(&pi)
	out := result.Event(GatewayName, decimal.New(pi.Amount, -2), strings.ToUpper(string(pi.Currency)))
	out.EventID = event.ID
	return out, nil
}

// handleError turns card errors into a failed result and everything else
// into the error taxonomy.
func (s *StripeProvider) handleError(op, reference string, err error) (*provider.ChargeResult, error) {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return nil, domainErrors.NewProviderUnavailableError(GatewayName, op, 0, err)
	}

	s.logger.Warn("Stripe request failed",
		zap.String("op", op),
		zap.String("reference", reference),
		zap.String("type", string(stripeErr.Type)),
		zap.String("code", string(stripeErr.Code)),
		zap.String("decline_code", string(stripeErr.DeclineCode)),
		zap.Int("status_code", stripeErr.HTTPStatusCode))

	switch {
	case stripeErr.Type == stripe.ErrorTypeCard && stripeErr.PaymentIntent != nil:
		result := toResult(stripeErr.PaymentIntent)
		result.Status = model.PaymentStatusFailed
		result.Reason = stripeErr.Msg
		return result, nil
	case stripeErr.Type == stripe.ErrorTypeCard:
		return nil, domainErrors.NewProviderDeclinedError(GatewayName, reference, string(stripeErr.Code), "payment declined")
	case stripeErr.HTTPStatusCode == http.StatusNotFound:
		return nil, domainErrors.ErrPaymentNotFound
	case stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode == 0:
		return nil, domainErrors.NewProviderUnavailableError(GatewayName, op, stripeErr.HTTPStatusCode, err)
	case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
		return nil, domainErrors.NewProviderDeclinedError(GatewayName, reference, string(stripeErr.Code), "verify your card details")
	default:
		return nil, domainErrors.NewProviderUnavailableError(GatewayName, op, stripeErr.HTTPStatusCode, err)
	}
}

func toResult(pi *stripe.PaymentIntent) *provider.ChargeResult {
	result := &provider.ChargeResult{
		ExternalID:         pi.ID,
		Reference:          pi.Metadata[metadataReference],
		Status:             mapStatus(pi.Status),
		RawStatus:          string(pi.Status),
		SettlementAmount:   pi.Amount,
		SettlementCurrency: strings.ToUpper(string(pi.Currency)),
	}
	if pi.Customer != nil {
		result.CustomerRef = pi.Customer.ID
	}
	if result.Status == model.PaymentStatusFailed {
		if pi.LastPaymentError != nil {
			result.Reason = pi.LastPaymentError.Msg
		}
		if result.Reason == "" {
			result.Reason = string(pi.Status)
		}
	}
	return result
}
