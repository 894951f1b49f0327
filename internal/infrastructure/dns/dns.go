// Package dns provisions CDN custom hostnames for customer domains.
package dns

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

	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
)

const providerName = "cdn"

// codeDuplicateHostname is returned when the hostname already exists in the zone
const codeDuplicateHostname = 1406

type Config struct {
	BaseURL  string
	APIToken string
	ZoneID   string
	// Target is the CDN hostname customer domains point at
	Target  string
	Timeout time.Duration
}

type CustomHostname struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname"`
	Status   string `json:"status"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

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

func (c *Client) Target() string { return c.cfg.Target }

// CreateCustomHostname registers hostname with DV certificate issuance.
// An existing hostname is returned as is.
func (c *Client) CreateCustomHostname(ctx context.Context, hostname string) (*CustomHostname, error) {
	body := map[string]interface{}{
		"hostname": hostname,
		"ssl": map[string]interface{}{
			"method": "http",
			"type":   "dv",
		},
	}

	var out CustomHostname
	errs, err := c.do(ctx, http.MethodPost, c.zonePath(), body, &out)
	if err != nil {
		return nil, err
	}
	for _, e := range errs {
		if e.Code == codeDuplicateHostname {
			return c.FindCustomHostname(ctx, hostname)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("cdn rejected hostname %s: %s", hostname, errs[0].Message)
	}

	c.logger.Info("Custom hostname created",
		zap.String("hostname", hostname),
		zap.String("id", out.ID),
		zap.String("status", out.Status))
	return &out, nil
}

// FindCustomHostname looks a hostname up in the zone
func (c *Client) FindCustomHostname(ctx context.Context, hostname string) (*CustomHostname, error) {
	var out []CustomHostname
	errs, err := c.do(ctx, http.MethodGet, c.zonePath()+"?hostname="+url.QueryEscape(hostname), nil, &out)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("cdn lookup of %s failed: %s", hostname, errs[0].Message)
	}
	for i := range out {
		if strings.EqualFold(out[i].Hostname, hostname) {
			return &out[i], nil
		}
	}
	return nil, fmt.Errorf("custom hostname %s not found", hostname)
}

func (c *Client) zonePath() string {
	return "/zones/" + url.PathEscape(c.cfg.ZoneID) + "/custom_hostnames"
}

// do returns API-level errors separately from transport failures
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) ([]apiError, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domainErrors.NewProviderUnavailableError(providerName, path, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, domainErrors.NewProviderUnavailableError(providerName, path, resp.StatusCode, nil)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode cdn response (%d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		if len(env.Errors) == 0 {
			env.Errors = []apiError{{Message: fmt.Sprintf("status %d", resp.StatusCode)}}
		}
		c.logger.Warn("CDN rejected request",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.Int("code", env.Errors[0].Code),
			zap.String("message", env.Errors[0].Message))
		return env.Errors, nil
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return nil, fmt.Errorf("failed to decode cdn result: %w", err)
		}
	}
	return nil, nil
}
