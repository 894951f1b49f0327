// Package wallet is the redirect-based wallet processor: an order is created,
// the customer approves it on the wallet site, and the order is captured.
package wallet

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
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
)

// GatewayName identifies this backend in payment rows and logs
const GatewayName = "paypal"

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
	Timeout      time.Duration
}

// Gateway implements provider.WalletGateway
type Gateway struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewGateway creates a new wallet gateway
func NewGateway(cfg Config, logger *zap.Logger) *Gateway {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		now:    time.Now,
	}
}

var _ provider.WalletGateway = (*Gateway)(nil)

func (g *Gateway) Name() string { return GatewayName }

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type capture struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   money  `json:"amount"`
	CustomID string `json:"custom_id"`
}

type order struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []link `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		CustomID    string `json:"custom_id"`
		Amount      money  `json:"amount"`
		Payments    struct {
			Captures []capture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue string `json:"issue"`
	} `json:"details"`
}

func (e *apiError) issue() string {
	if len(e.Details) > 0 {
		return e.Details[0].Issue
	}
	return e.Name
}

// mapCaptureStatus maps capture statuses onto the ledger lifecycle
func mapCaptureStatus(status string) model.PaymentStatus {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return model.PaymentStatusCompleted
	case "PENDING", "APPROVED", "CREATED", "SAVED", "PAYER_ACTION_REQUIRED":
		return model.PaymentStatusPending
	default:
		return model.PaymentStatusFailed
	}
}

// CreateOrder creates an order and returns the approval URL
func (g *Gateway) CreateOrder(ctx context.Context, req *provider.OrderRequest) (*provider.OrderResult, error) {
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": req.Reference,
			"custom_id":    req.Reference,
			"description":  req.Description,
			"amount": money{
				CurrencyCode: strings.ToUpper(req.Currency),
				Value:        req.Amount.StringFixed(2),
			},
		}},
		"application_context": map[string]interface{}{
			"return_url":  req.ReturnURL,
			"cancel_url":  req.CancelURL,
			"user_action": "PAY_NOW",
		},
	}

	var out order
	if err := g.do(ctx, http.MethodPost, "/v2/checkout/orders", req.Reference, body, &out); err != nil {
		return nil, g.normalize("create order", req.Reference, err)
	}

	result := &provider.OrderResult{ExternalID: out.ID, RawStatus: out.Status}
	for _, l := range out.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			result.ApprovalURL = l.Href
			break
		}
	}
	if result.ApprovalURL == "" {
		return nil, domainErrors.NewProviderUnavailableError(GatewayName, "create order", 0, fmt.Errorf("order %s has no approval link", out.ID))
	}

	g.logger.Info("Wallet order created",
		zap.String("reference", req.Reference),
		zap.String("order_id", out.ID))

	return result, nil
}

// CaptureOrder captures an approved order. Capturing an order that was
// already captured reads its current state instead.
func (g *Gateway) CaptureOrder(ctx context.Context, orderID string) (*provider.PaymentEvent, error) {
	var out order
	err := g.do(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", "capture-"+orderID, map[string]interface{}{}, &out)

	var herr *httpError
	if errors.As(err, &herr) && herr.body.issue() == "ORDER_ALREADY_CAPTURED" {
		err = g.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), "", nil, &out)
	}
	if errors.As(err, &herr) && herr.body.issue() == "ORDER_NOT_APPROVED" {
		return &provider.PaymentEvent{
			Provider:    model.ProviderWallet,
			Gateway:     GatewayName,
			ExternalRef: orderID,
			Status:      model.PaymentStatusPending,
			RawStatus:   "PAYER_ACTION_REQUIRED",
		}, nil
	}
	if err != nil {
		return nil, g.normalize("capture order", orderID, err)
	}

	return orderEvent(&out), nil
}

func orderEvent(o *order) *provider.PaymentEvent {
	event := &provider.PaymentEvent{
		Provider:    model.ProviderWallet,
		Gateway:     GatewayName,
		ExternalRef: o.ID,
		Status:      mapCaptureStatus(o.Status),
		RawStatus:   o.Status,
	}
	if len(o.PurchaseUnits) == 0 {
		return event
	}

	unit := o.PurchaseUnits[0]
	event.Reference = unit.CustomID
	if event.Reference == "" {
		event.Reference = unit.ReferenceID
	}
	event.Amount, _ = decimal.NewFromString(unit.Amount.Value)
	event.Currency = unit.Amount.CurrencyCode

	if len(unit.Payments.Captures) > 0 {
		c := unit.Payments.Captures[0]
		event.EventID = c.ID
		event.Status = mapCaptureStatus(c.Status)
		event.RawStatus = c.Status
		if amount, err := decimal.NewFromString(c.Amount.Value); err == nil {
			event.Amount = amount
			event.Currency = c.Amount.CurrencyCode
		}
		if event.Status == model.PaymentStatusFailed {
			event.Reason = strings.ToLower(c.Status)
		}
	}
	return event
}

// token returns a cached client-credentials token, refreshing it a minute
// before it expires.
func (g *Gateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && g.now().Before(g.expiresAt) {
		return g.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", domainErrors.NewProviderUnavailableError(GatewayName, "oauth token", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", domainErrors.NewProviderUnavailableError(GatewayName, "oauth token", resp.StatusCode, nil)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domainErrors.NewProviderUnavailableError(GatewayName, "oauth token", resp.StatusCode, err)
	}

	g.accessToken = out.AccessToken
	g.expiresAt = g.now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return g.accessToken, nil
}

type httpError struct {
	status int
	body   apiError
}

func (e *httpError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body.issue())
}

func (g *Gateway) do(ctx context.Context, method, path, requestID string, body interface{}, out interface{}) error {
	token, err := g.token(ctx)
	if err != nil {
		return err
	}

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
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return domainErrors.NewProviderUnavailableError(GatewayName, method+" "+path, 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domainErrors.NewProviderUnavailableError(GatewayName, method+" "+path, 0, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		g.mu.Lock()
		g.accessToken = ""
		g.mu.Unlock()
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusUnauthorized {
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

func (g *Gateway) normalize(op, reference string, err error) error {
	var herr *httpError
	if !errors.As(err, &herr) {
		g.logger.Warn("Wallet gateway unavailable",
			zap.String("op", op),
			zap.String("reference", reference),
			zap.Error(err))
		return err
	}

	g.logger.Warn("Wallet gateway rejected request",
		zap.String("op", op),
		zap.String("reference", reference),
		zap.Int("status_code", herr.status),
		zap.String("issue", herr.body.issue()),
		zap.String("message", herr.body.Message))

	if herr.status == http.StatusNotFound {
		return domainErrors.ErrPaymentNotFound
	}
	return domainErrors.NewProviderDeclinedError(GatewayName, reference, herr.body.issue(), "payment declined")
}
