// Package exchangerate converts customer-facing prices into the settlement
// currency of the card processor.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
)

const (
	DefaultTTL        = 12 * time.Hour
	defaultRetryAfter = time.Minute
)

// Fetcher reads the current rate from base to quote.
type Fetcher interface {
	Fetch(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

// HTTPFetcher reads rates from a GET {baseURL}/latest/{base} endpoint that
// answers {"rates": {"COP": 4000.5, ...}}.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher with the given timeout
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/latest/"+base, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch exchange rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("exchange rate service returned status %d", resp.StatusCode)
	}

	var body struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode exchange rate: %w", err)
	}

	rate, ok := body.Rates[quote]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("exchange rate for %s/%s missing", base, quote)
	}
	return rate, nil
}

// Config configures a Cache.
type Config struct {
	Base     string
	Quote    string
	TTL      time.Duration
	Fallback decimal.Decimal
	Timeout  time.Duration
}

// Cache holds one rate and the time it was fetched. A stale rate is refreshed
// on read; concurrent refreshes collapse into one upstream call. When the
// upstream fails the last good rate is used, or Fallback if there is none,
// so pricing never fails a checkout.
type Cache struct {
	fetcher Fetcher
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
	group   singleflight.Group

	mu        sync.RWMutex
	rate      decimal.Decimal
	fetchedAt time.Time
	failedAt  time.Time
}

// NewCache creates a new rate cache
func NewCache(fetcher Fetcher, cfg Config, logger *zap.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Cache{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Quote returns the settlement currency.
func (c *Cache) Quote() string { return c.cfg.Quote }

// Base returns the customer-facing currency the rate applies to.
func (c *Cache) Base() string { return c.cfg.Base }

// Rate returns the current rate. It never fails.
func (c *Cache) Rate(ctx context.Context) decimal.Decimal {
	c.mu.RLock()
	rate, fetchedAt, failedAt := c.rate, c.fetchedAt, c.failedAt
	c.mu.RUnlock()

	now := c.now()
	if !fetchedAt.IsZero() && now.Sub(fetchedAt) < c.cfg.TTL {
		return rate
	}
	if !failedAt.IsZero() && now.Sub(failedAt) < defaultRetryAfter {
		return c.lastGood(rate)
	}

	v, _, _ := c.group.Do("rate", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
		defer cancel()

		fresh, err := c.fetcher.Fetch(fetchCtx, c.cfg.Base, c.cfg.Quote)

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.failedAt = c.now()
			c.logger.Warn("Exchange rate refresh failed, using last known rate",
				zap.String("base", c.cfg.Base),
				zap.String("quote", c.cfg.Quote),
				zap.Bool("fallback", c.rate.IsZero()),
				zap.Error(err))
			return c.lastGood(c.rate), nil
		}

		c.rate = fresh
		c.fetchedAt = c.now()
		c.failedAt = time.Time{}
		return fresh, nil
	})

	return v.(decimal.Decimal)
}

func (c *Cache) lastGood(rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return c.cfg.Fallback
	}
	return rate
}

// ToMinor converts an amount in the base currency to settlement minor units.
// Identical currencies skip the rate lookup. Any other currency is refused.
func (c *Cache) ToMinor(ctx context.Context, amount decimal.Decimal, currency string) (int64, string, error) {
	if strings.EqualFold(currency, c.cfg.Quote) || c.cfg.Quote == "" {
		return amount.Shift(2).Round(0).IntPart(), strings.ToUpper(currency), nil
	}
	if !strings.EqualFold(currency, c.cfg.Base) {
		return 0, "", fmt.Errorf("%w: %s", domainErrors.ErrUnsupportedCurrency, strings.ToUpper(currency))
	}
	return amount.Mul(c.Rate(ctx)).Shift(2).Round(0).IntPart(), c.cfg.Quote, nil
}
