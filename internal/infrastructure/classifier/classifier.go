// Package classifier consults the external anti-bot traffic classifier.
// Any failure to get an answer allows the request.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Config struct {
	URL     string
	Timeout time.Duration
	// RPS caps outbound classify calls; excess requests are allowed unchecked
	RPS float64
}

type Request struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	Path      string `json:"path"`
	Referer   string `json:"referer,omitempty"`
}

type Verdict struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
	// Checked is false when the default verdict was used
	Checked bool `json:"-"`
}

var allowUnchecked = Verdict{Allow: true, Reason: "unchecked"}

type Client struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	limit := rate.Inf
	burst := 0
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
		burst = int(cfg.RPS) + 1
	}
	return &Client{
		url:     strings.TrimRight(cfg.URL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Classify never returns an error; unreachable or slow classifiers allow.
func (c *Client) Classify(ctx context.Context, req Request) Verdict {
	if c == nil || c.url == "" {
		return allowUnchecked
	}
	if !c.limiter.Allow() {
		return allowUnchecked
	}

	verdict, err := c.classify(ctx, req)
	if err != nil {
		c.logger.Warn("Traffic classifier unavailable, allowing request",
			zap.String("ip", req.IP),
			zap.Error(err))
		return allowUnchecked
	}
	return verdict
}

func (c *Client) classify(ctx context.Context, req Request) (Verdict, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Verdict{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Verdict{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return Verdict{}, fmt.Errorf("failed to decode verdict: %w", err)
	}
	verdict.Checked = true
	return verdict, nil
}
