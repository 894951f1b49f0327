// Package card is the signed-payload card gateway: amounts are sent in
// settlement-currency minor units together with an integrity signature, and
// events carry a checksum over selected transaction properties.
package card

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/signature"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/retry"
)

// GatewayName identifies this backend in payment rows and logs
const GatewayName = "signed"

// Converter turns a customer price into settlement minor units.
type Converter interface {
	ToMinor(ctx context.Context, amount decimal.Decimal, currency string) (int64, string, error)
}

type Config struct {
	BaseURL         string
	PublicKey       string
	PrivateKey      string
	IntegritySecret string
	EventsSecret    string
	Timeout         time.Duration
}

// Gateway implements provider.CardGateway
type Gateway struct {
	cfg    Config
	client *http.Client
	rates  Converter
	retry  retry.Policy
	logger *zap.Logger
}

// NewGateway creates a new signed card gateway
func NewGateway(cfg Config, rates Converter, logger *zap.Logger) *Gateway {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		rates:  rates,
		retry:  retry.Default(domainErrors.IsRetryable),
		logger: logger,
	}
}

var _ provider.CardGateway = (*Gateway)(nil)

func (g *Gateway) Name() string { return GatewayName }

type transaction struct {
	ID                string      `json:"id"`
	Reference         string      `json:"reference"`
	Status            string      `json:"status"`
	StatusMessage     string      `json:"status_message"`
	AmountInCents     int64       `json:"amount_in_cents"`
	Currency          string      `json:"currency"`
	PaymentSourceID   json.Number `json:"payment_source_id"`
	CustomerEmail     string      `json:"customer_email"`
	PaymentMethodType string      `json:"payment_method_type"`
}

type apiError struct {
	Error struct {
		Type     string                 `json:"type"`
		Reason   string                 `json:"reason"`
		Messages map[string]interface{} `json:"messages"`
	} `json:"error"`
}

// mapStatus maps processor statuses onto the ledger lifecycle. Anything that
// is neither approved nor pending is a failure.
func mapStatus(status string) model.PaymentStatus {
	switch strings.ToUpper(status) {
	case "APPROVED":
		return model.PaymentStatusCompleted
	case "PENDING":
		return model.PaymentStatusPending
	default:
		return model.PaymentStatusFailed
	}
}

// CreateCharge charges a tokenized card or a stored payment source
func (g *Gateway) CreateCharge(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	amountMinor, currency, err := g.rates.ToMinor(ctx, req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	acceptance, err := g.acceptanceToken(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"acceptance_token": acceptance,
		"amount_in_cents":  amountMinor,
		"currency":         currency,
		"signature":        signature.Integrity(req.Reference, amountMinor, currency, g.cfg.IntegritySecret),
		"customer_email":   req.CustomerEmail,
		"reference":        req.Reference,
	}

	var reusable string
	switch {
	case req.OffSession:
		body["payment_source_id"] = json.Number(req.PaymentToken)
		body["recurrent"] = true
		body["payment_method"] = map[string]interface{}{"installments": 1}
	case req.Vault:
		sourceID, err := g.createPaymentSource(ctx, req.PaymentToken, req.CustomerEmail, acceptance)
		if err != nil {
			return nil, err
		}
		reusable = sourceID
		body["payment_source_id"] = json.Number(sourceID)
		body["payment_method"] = map[string]interface{}{"installments": installments(req.Installments)}
	default:
		body["payment_method"] = map[string]interface{}{
			"type":         "CARD",
			"token":        req.PaymentToken,
			"installments": installments(req.Installments),
		}
	}

	var resp struct {
		Data transaction `json:"data"`
	}
	// Charges are not retried: a lost response could mean a captured charge.
	if err := g.do(ctx, http.MethodPost, "/transactions", body, g.cfg.PrivateKey, &resp); err != nil {
		return nil, g.normalize("create charge", req.Reference, err)
	}

	g.logger.Info("Card charge created",
		zap.String("reference", req.Reference),
		zap.String("transaction_id", resp.Data.ID),
		zap.String("status", resp.Data.Status),
		zap.Int64("amount_in_cents", amountMinor),
		zap.String("currency", currency))

	result := toResult(&resp.Data)
	result.SettlementAmount = amountMinor
	result.SettlementCurrency = currency
	result.ReusableToken = reusable
	return result, nil
}

// Lookup reads a transaction by id, or by our reference when the id is unknown
func (g *Gateway) Lookup(ctx context.Context, externalID, reference string) (*provider.ChargeResult, error) {
	if externalID != "" {
		var resp struct {
			Data transaction `json:"data"`
		}
		err := retry.Do(ctx, g.retry, func(ctx context.Context) error {
			return g.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(externalID), nil, g.cfg.PrivateKey, &resp)
		})
		if err != nil {
			return nil, g.normalize("lookup", reference, err)
		}
		return toResult(&resp.Data), nil
	}

	var resp struct {
		Data []transaction `json:"data"`
	}
	err := retry.Do(ctx, g.retry, func(ctx context.Context) error {
		return g.do(ctx, http.MethodGet, "/transactions?reference="+url.QueryEscape(reference), nil, g.cfg.PrivateKey, &resp)
	})
	if err != nil {
		return nil, g.normalize("lookup", reference, err)
	}
	if len(resp.Data) == 0 {
		return nil, domainErrors.ErrPaymentNotFound
	}

	// Prefer a decided transaction over a pending retry of the same reference
	best := &resp.Data[0]
	for i := range resp.Data {
		if mapStatus(resp.Data[i].Status) == model.PaymentStatusCompleted {
			best = &resp.Data[i]
			break
		}
	}
	return toResult(best), nil
}

func (g *Gateway) acceptanceToken(ctx context.Context) (string, error) {
	var resp struct {
		Data struct {
			PresignedAcceptance struct {
				AcceptanceToken string `json:"acceptance_token"`
			} `json:"presigned_acceptance"`
		} `json:"data"`
	}

	err := retry.Do(ctx, g.retry, func(ctx context.Context) error {
		return g.do(ctx, http.MethodGet, "/merchants/"+url.PathEscape(g.cfg.PublicKey), nil, "", &resp)
	})
	if err != nil {
		return "", g.normalize("acceptance token", "", err)
	}

	token := resp.Data.PresignedAcceptance.AcceptanceToken
	if token == "" {
		return "", domainErrors.NewProviderUnavailableError(GatewayName, "acceptance token", 0, fmt.Errorf("empty acceptance token"))
	}
	return token, nil
}

func (g *Gateway) createPaymentSource(ctx context.Context, cardToken, email, acceptance string) (string, error) {
	var resp struct {
		Data struct {
			ID     json.Number `json:"id"`
			Status string      `json:"status"`
		} `json:"data"`
	}

	body := map[string]interface{}{
		"type":             "CARD",
		"token":            cardToken,
		"customer_email":   email,
		"acceptance_token": acceptance,
	}
	if err := g.do(ctx, http.MethodPost, "/payment_sources", body, g.cfg.PrivateKey, &resp); err != nil {
		return "", g.normalize("payment source", "", err)
	}
	if resp.Data.ID == "" {
		return "", domainErrors.NewProviderUnavailableError(GatewayName, "payment source", 0, fmt.Errorf("empty payment source id"))
	}
	return resp.Data.ID.String(), nil
}

// httpError is an unexpected status from the processor.
type httpError struct {
	status int
	body   apiError
}

func (e *httpError) Error() string {
	return fmt.Sprintf("status %d: %s %s", e.status, e.body.Error.Type, e.body.Error.Reason)
}

func (g *Gateway) do(ctx context.Context, method, path string, body interface{}, bearer string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return domainErrors.NewProviderUnavailableError(GatewayName, method+" "+path, 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domainErrors.NewProviderUnavailableError(GatewayName, method+" "+path, 0, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return domainErrors.NewProviderUnavailableError(GatewayName, method+" "+path, resp.StatusCode, nil)
	}
	if resp.StatusCode >= 300 {
		herr := &httpError{status: resp.StatusCode}
		_ = json.Unmarshal(respBody, &herr.body)
		return herr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return domainErrors.NewProviderUnavailableError(GatewayName, method+" "+path, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// normalize keeps raw processor errors behind the adapter boundary.
func (g *Gateway) normalize(op, reference string, err error) error {
	var herr *httpError
	if !errors.As(err, &herr) {
		g.logger.Warn("Card gateway unavailable",
			zap.String("op", op),
			zap.String("reference", reference),
			zap.Error(err))
		return err
	}

	g.logger.Warn("Card gateway rejected request",
		zap.String("op", op),
		zap.String("reference", reference),
		zap.Int("status_code", herr.status),
		zap.String("error_type", herr.body.Error.Type),
		zap.Any("messages", herr.body.Error.Messages))

	if herr.status == http.StatusUnauthorized || herr.status == http.StatusForbidden {
		return domainErrors.NewProviderUnavailableError(GatewayName, op, herr.status, fmt.Errorf("merchant credentials rejected"))
	}
	if herr.status == http.StatusNotFound {
		return domainErrors.ErrPaymentNotFound
	}
	return domainErrors.NewProviderDeclinedError(GatewayName, reference, herr.body.Error.Type, "verify your card details")
}

func toResult(tx *transaction) *provider.ChargeResult {
	status := mapStatus(tx.Status)
	result := &provider.ChargeResult{
		ExternalID:         tx.ID,
		Reference:          tx.Reference,
		Status:             status,
		RawStatus:          tx.Status,
		SettlementAmount:   tx.AmountInCents,
		SettlementCurrency: tx.Currency,
	}
	if status == model.PaymentStatusFailed {
		result.Reason = tx.StatusMessage
		if result.Reason == "" {
			result.Reason = strings.ToLower(tx.Status)
		}
	}
	return result
}

func installments(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
