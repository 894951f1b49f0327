// Package registrar talks to the domain registrar's v4 JSON API.
package registrar

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

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
)

const providerName = "registrar"

type Contact struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Address1     string `json:"address1"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	Country      string `json:"country"`
	Organization string `json:"companyName,omitempty"`
}

type Config struct {
	BaseURL  string
	Username string
	Token    string
	Contact  Contact
	Timeout  time.Duration
}

type Availability struct {
	Domain    string
	Available bool
	Premium   bool
	Price     decimal.Decimal
	Currency  string
}

type Registration struct {
	Domain    string
	OrderID   string
	TotalPaid decimal.Decimal
}

type Record struct {
	ID     int64  `json:"id,omitempty"`
	Host   string `json:"host"`
	Type   string `json:"type"`
	Answer string `json:"answer"`
	TTL    int    `json:"ttl"`
}

// Client is a basic-auth registrar API client
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// CheckAvailability returns purchasability and the registration price
func (c *Client) CheckAvailability(ctx context.Context, domain string) (*Availability, error) {
	var out struct {
		Results []struct {
			DomainName    string      `json:"domainName"`
			Purchasable   bool        `json:"purchasable"`
			Premium       bool        `json:"premium"`
			PurchasePrice json.Number `json:"purchasePrice"`
		} `json:"results"`
	}
	body := map[string]interface{}{"domainNames": []string{domain}}
	if err := c.do(ctx, http.MethodPost, "/v4/domains:checkAvailability", body, &out); err != nil {
		return nil, err
	}

	for _, r := range out.Results {
		if !strings.EqualFold(r.DomainName, domain) {
			continue
		}
		price, _ := decimal.NewFromString(r.PurchasePrice.String())
		return &Availability{
			Domain:    r.DomainName,
			Available: r.Purchasable,
			Premium:   r.Premium,
			Price:     price,
			Currency:  "USD",
		}, nil
	}
	return &Availability{Domain: domain, Available: false, Currency: "USD"}, nil
}

// Register purchases domain at price. The registrar rejects the order if the
// price no longer matches.
func (c *Client) Register(ctx context.Context, domain string, price decimal.Decimal) (*Registration, error) {
	contact := c.cfg.Contact
	body := map[string]interface{}{
		"domain": map[string]interface{}{
			"domainName": domain,
			"contacts": map[string]interface{}{
				"registrant": contact,
				"admin":      contact,
				"tech":       contact,
				"billing":    contact,
			},
			"privacyEnabled": true,
		},
		"purchasePrice": json.Number(price.StringFixed(2)),
	}

	var out struct {
		Domain struct {
			DomainName string `json:"domainName"`
		} `json:"domain"`
		Order     json.Number `json:"order"`
		TotalPaid json.Number `json:"totalPaid"`
	}
	if err := c.do(ctx, http.MethodPost, "/v4/domains", body, &out); err != nil {
		return nil, err
	}

	paid, _ := decimal.NewFromString(out.TotalPaid.String())
	c.logger.Info("Domain registered",
		zap.String("domain", domain),
		zap.String("order_id", out.Order.String()))

	return &Registration{
		Domain:    domain,
		OrderID:   out.Order.String(),
		TotalPaid: paid,
	}, nil
}

// CreateRecord adds a DNS record in the registrar's zone for domain
func (c *Client) CreateRecord(ctx context.Context, domain string, record Record) (*Record, error) {
	var out Record
	path := "/v4/domains/" + url.PathEscape(domain) + "/records"
	if err := c.do(ctx, http.MethodPost, path, record, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PointTo creates the apex and www CNAME-style records for target
func (c *Client) PointTo(ctx context.Context, domain, target string) error {
	records := []Record{
		{Host: "", Type: "ANAME", Answer: target, TTL: 300},
		{Host: "www", Type: "CNAME", Answer: target, TTL: 300},
	}
	for _, r := range records {
		if _, err := c.CreateRecord(ctx, domain, r); err != nil {
			return fmt.Errorf("failed to create %s record for %s: %w", r.Type, domain, err)
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domainErrors.NewProviderUnavailableError(providerName, path, 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domainErrors.NewProviderUnavailableError(providerName, path, 0, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return domainErrors.NewProviderUnavailableError(providerName, path, resp.StatusCode, nil)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
			Details string `json:"details"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		c.logger.Warn("Registrar rejected request",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("message", apiErr.Message),
			zap.String("details", apiErr.Details))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return domainErrors.NewProviderUnavailableError(providerName, path, resp.StatusCode, fmt.Errorf("credentials rejected"))
		}
		return fmt.Errorf("registrar %s failed (%d): %s", path, resp.StatusCode, apiErr.Message)
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode registrar response: %w", err)
	}
	return nil
}
