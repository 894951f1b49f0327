// Package crypto is the address-based cryptocurrency processor. Payments are
// confirmed by signed IPN pushes; status reads are advisory.
package crypto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/signature"
)

// GatewayName identifies this backend in payment rows and logs
const GatewayName = "nowpayments"

// SignatureHeader carries the hex HMAC-SHA512 of the canonical IPN body
const SignatureHeader = "x-nowpayments-sig"

type Config struct {
	BaseURL     string
	APIKey      string
	IPNSecret   string
	IPNCallback string
	PayCurrency string
	// StatusRPS bounds status reads per process
	StatusRPS float64
	Timeout   time.Duration
}

// Gateway implements provider.CryptoGateway
type Gateway struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGateway creates a new crypto gateway
func NewGateway(cfg Config, logger *zap.Logger) *Gateway {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	rps := cfg.StatusRPS
	if rps <= 0 {
		rps = 2
	}
	return &Gateway{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:  logger,
	}
}

var _ provider.CryptoGateway = (*Gateway)(nil)

func (g *Gateway) Name() string { return GatewayName }

// mapStatus follows waiting -> confirming -> confirmed|finished, with
// partially_paid on underpayment and failed/expired/refunded as failures.
func mapStatus(status string) model.PaymentStatus {
	switch strings.ToLower(status) {
	case "finished", "confirmed":
		return model.PaymentStatusCompleted
	case "partially_paid":
		return model.PaymentStatusPartiallyPaid
	case "failed", "expired", "refunded":
		return model.PaymentStatusFailed
	default:
		return model.PaymentStatusPending
	}
}

type payment struct {
	PaymentID      json.Number `json:"payment_id"`
	PaymentStatus  string      `json:"payment_status"`
	PayAddress     string      `json:"pay_address"`
	PriceAmount    json.Number `json:"price_amount"`
	PriceCurrency  string      `json:"price_currency"`
	PayAmount      json.Number `json:"pay_amount"`
	ActuallyPaid   json.Number `json:"actually_paid"`
	PayCurrency    string      `json:"pay_currency"`
	OrderID        string      `json:"order_id"`
	ExpirationDate string      `json:"expiration_estimate_date"`
}

func (p *payment) expiresAt() *time.Time {
	if p.ExpirationDate == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, p.ExpirationDate)
	if err != nil {
		return nil
	}
	return &t
}

func number(n json.Number) decimal.Decimal {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// CreatePayment creates a deposit address for the exact amount to send
func (g *Gateway) CreatePayment(ctx context.Context, req *provider.CryptoPaymentRequest) (*provider.CryptoPaymentResult, error) {
	payCurrency := req.PayCurrency
	if payCurrency == "" {
		payCurrency = g.cfg.PayCurrency
	}

	body := map[string]interface{}{
		"price_amount":      json.Number(req.Amount.StringFixed(2)),
		"price_currency":    strings.ToLower(req.Currency),
		"pay_currency":      payCurrency,
		"order_id":          req.Reference,
		"order_description": req.Description,
	}
	if g.cfg.IPNCallback != "" {
		body["ipn_callback_url"] = g.cfg.IPNCallback
	}

	var out payment
	if err := g.do(ctx, http.MethodPost, "/v1/payment", body, &out); err != nil {
		return nil, g.normalize("create payment", req.Reference, err)
	}
	if out.PaymentID == "" || out.PayAddress == "" {
		return nil, domainErrors.NewProviderUnavailableError(GatewayName, "create payment", 0, fmt.Errorf("incomplete payment response"))
	}

	g.logger.Info("Crypto payment created",
		zap.String("reference", req.Reference),
		zap.String("payment_id", out.PaymentID.String()),
		zap.String("pay_currency", out.PayCurrency))

	return &provider.CryptoPaymentResult{
		ExternalID:  out.PaymentID.String(),
		PayAddress:  out.PayAddress,
		PayAmount:   number(out.PayAmount),
		PayCurrency: out.PayCurrency,
		Status:      mapStatus(out.PaymentStatus),
		RawStatus:   out.PaymentStatus,
		ExpiresAt:   out.expiresAt(),
	}, nil
}

// GetStatus is a passive, rate limited status read
func (g *Gateway) GetStatus(ctx context.Context, externalID string) (*provider.CryptoStatus, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, domainErrors.NewProviderUnavailableError(GatewayName, "status", 0, err)
	}

	var out payment
	if err := g.do(ctx, http.MethodGet, "/v1/payment/"+url.PathEscape(externalID), nil, &out); err != nil {
		return nil, g.normalize("status", externalID, err)
	}

	return &provider.CryptoStatus{
		ExternalID:   out.PaymentID.String(),
		Reference:    out.OrderID,
		Status:       mapStatus(out.PaymentStatus),
		RawStatus:    out.PaymentStatus,
		PayAmount:    number(out.PayAmount),
		ActuallyPaid: number(out.ActuallyPaid),
		PayCurrency:  out.PayCurrency,
		ExpiresAt:    out.expiresAt(),
	}, nil
}

// ParseIPN verifies the canonical-JSON HMAC and normalizes the push
func (g *Gateway) ParseIPN(ctx context.Context, body []byte, header http.Header) (*provider.PaymentEvent, error) {
	if !signature.VerifyIPN(body, header.Get(SignatureHeader), g.cfg.IPNSecret) {
		return nil, domainErrors.NewAuthenticationError(GatewayName, "ipn signature mismatch")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var ipn payment
	if err := dec.Decode(&ipn); err != nil {
		return nil, fmt.Errorf("failed to parse ipn: %w", err)
	}
	if ipn.PaymentID == "" {
		return nil, fmt.Errorf("ipn without payment_id")
	}

	var payload map[string]interface{}
	_ = json.Unmarshal(body, &payload)

	event := &provider.PaymentEvent{
		Provider:    model.ProviderCrypto,
		Gateway:     GatewayName,
		EventID:     ipn.PaymentID.String() + ":" + ipn.PaymentStatus + ":" + ipn.ActuallyPaid.String(),
		ExternalRef: ipn.PaymentID.String(),
		Reference:   ipn.OrderID,
		Status:      mapStatus(ipn.PaymentStatus),
		RawStatus:   ipn.PaymentStatus,
		Amount:      number(ipn.PriceAmount),
		Currency:    strings.ToUpper(ipn.PriceCurrency),
		Payload:     payload,
	}
	if event.Status == model.PaymentStatusFailed {
		event.Reason = ipn.PaymentStatus
	}
	return event, nil
}

type httpError struct {
	status  int
	code    string
	message string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("status %d: %s %s", e.status, e.code, e.message)
}

func (g *Gateway) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
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
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		return &httpError{status: resp.StatusCode, code: apiErr.Code, message: apiErr.Message}
	}

	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return domainErrors.NewProviderUnavailableError(GatewayName, method+" "+path, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (g *Gateway) normalize(op, reference string, err error) error {
	herr, ok := err.(*httpError)
	if !ok {
		g.logger.Warn("Crypto gateway unavailable",
			zap.String("op", op),
			zap.String("reference", reference),
			zap.Error(err))
		return err
	}

	g.logger.Warn("Crypto gateway rejected request",
		zap.String("op", op),
		zap.String("reference", reference),
		zap.Int("status_code", herr.status),
		zap.String("code", herr.code),
		zap.String("message", herr.message))

	switch herr.status {
	case http.StatusNotFound:
		return domainErrors.ErrPaymentNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return domainErrors.NewProviderUnavailableError(GatewayName, op, herr.status, fmt.Errorf("api key rejected"))
	default:
		return domainErrors.NewProviderDeclinedError(GatewayName, reference, herr.code, "the amount is below the minimum for this currency")
	}
}
