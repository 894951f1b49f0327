package exchangerate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
)

type stubFetcher struct {
	calls int32
	rate  decimal.Decimal
	err   error
	delay time.Duration
}

func (s *stubFetcher) Fetch(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.rate, s.err
}

func newTestCache(f Fetcher, now *time.Time) *Cache {
	c := NewCache(f, Config{
		Base:     "USD",
		Quote:    "COP",
		Fallback: decimal.NewFromInt(4000),
	}, zap.NewNop())
	c.now = func() time.Time { return *now }
	return c
}

func TestCache_RefreshesAfterTTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f := &stubFetcher{rate: decimal.NewFromInt(3900)}
	c := newTestCache(f, &now)

	assert.True(t, c.Rate(context.Background()).Equal(decimal.NewFromInt(3900)))
	assert.True(t, c.Rate(context.Background()).Equal(decimal.NewFromInt(3900)))
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))

	f.rate = decimal.NewFromInt(3950)
	now = now.Add(DefaultTTL)
	assert.True(t, c.Rate(context.Background()).Equal(decimal.NewFromInt(3950)))
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls))
}

func TestCache_Fallback(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f := &stubFetcher{err: errors.New("unreachable")}
	c := newTestCache(f, &now)

	t.Run("no rate yet uses the constant", func(t *testing.T) {
		assert.True(t, c.Rate(context.Background()).Equal(decimal.NewFromInt(4000)))
	})

	t.Run("failure is not retried immediately", func(t *testing.T) {
		c.Rate(context.Background())
		assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))
	})

	t.Run("stale rate beats the constant", func(t *testing.T) {
		f.err = nil
		f.rate = decimal.NewFromInt(3800)
		now = now.Add(2 * time.Minute)
		assert.True(t, c.Rate(context.Background()).Equal(decimal.NewFromInt(3800)))

		f.err = errors.New("down again")
		now = now.Add(DefaultTTL)
		assert.True(t, c.Rate(context.Background()).Equal(decimal.NewFromInt(3800)))
	})
}

func TestCache_CollapsesConcurrentRefresh(t *testing.T) {
	now := time.Now()
	f := &stubFetcher{rate: decimal.NewFromInt(4100), delay: 50 * time.Millisecond}
	c := newTestCache(f, &now)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, c.Rate(context.Background()).Equal(decimal.NewFromInt(4100)))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))
}

func TestCache_ToMinor(t *testing.T) {
	now := time.Now()
	c := newTestCache(&stubFetcher{rate: decimal.NewFromInt(4000)}, &now)

	t.Run("base currency is converted", func(t *testing.T) {
		minor, currency, err := c.ToMinor(context.Background(), decimal.RequireFromString("74.99"), "USD")
		require.NoError(t, err)
		assert.Equal(t, int64(29996000), minor)
		assert.Equal(t, "COP", currency)
	})

	t.Run("settlement currency skips the rate", func(t *testing.T) {
		minor, currency, err := c.ToMinor(context.Background(), decimal.RequireFromString("10"), "cop")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), minor)
		assert.Equal(t, "COP", currency)
	})

	t.Run("other currencies are refused", func(t *testing.T) {
		for _, ccy := range []string{"EUR", "mxn"} {
			_, _, err := c.ToMinor(context.Background(), decimal.RequireFromString("10"), ccy)
			require.Error(t, err)
			assert.ErrorIs(t, err, domainErrors.ErrUnsupportedCurrency)
		}
	})
}

func TestHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/USD", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base":"USD","rates":{"COP":4012.35,"EUR":0.92}}`))
	}))
	defer server.Close()

	f := NewHTTPFetcher(server.URL, time.Second)

	rate, err := f.Fetch(context.Background(), "USD", "COP")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("4012.35")))

	_, err = f.Fetch(context.Background(), "USD", "BRL")
	assert.Error(t, err)
}
