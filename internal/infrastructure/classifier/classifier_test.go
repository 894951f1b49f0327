package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_Classify(t *testing.T) {
	t.Run("blocked verdict", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/classify", r.URL.Path)
			var req Request
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "curl/8.0", req.UserAgent)
			w.Write([]byte(`{"allow":false,"reason":"automation"}`))
		}))
		defer srv.Close()

		c := NewClient(Config{URL: srv.URL}, zap.NewNop())
		v := c.Classify(context.Background(), Request{IP: "1.2.3.4", UserAgent: "curl/8.0"})
		assert.False(t, v.Allow)
		assert.True(t, v.Checked)
		assert.Equal(t, "automation", v.Reason)
	})

	t.Run("timeout allows", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`{"allow":false}`))
		}))
		defer srv.Close()

		c := NewClient(Config{URL: srv.URL, Timeout: 20 * time.Millisecond}, zap.NewNop())
		v := c.Classify(context.Background(), Request{IP: "1.2.3.4"})
		assert.True(t, v.Allow)
		assert.False(t, v.Checked)
	})

	t.Run("server error allows", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := NewClient(Config{URL: srv.URL}, zap.NewNop())
		assert.True(t, c.Classify(context.Background(), Request{}).Allow)
	})

	t.Run("unconfigured allows", func(t *testing.T) {
		c := NewClient(Config{}, zap.NewNop())
		assert.True(t, c.Classify(context.Background(), Request{}).Allow)
	})

	t.Run("over the rate limit allows without calling", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Write([]byte(`{"allow":false}`))
		}))
		defer srv.Close()

		c := NewClient(Config{URL: srv.URL, RPS: 0.001}, zap.NewNop())
		assert.False(t, c.Classify(context.Background(), Request{}).Allow)
		assert.True(t, c.Classify(context.Background(), Request{}).Allow)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestMiddleware(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		allow := req.UserAgent != "bot"
		json.NewEncoder(w).Encode(Verdict{Allow: allow})
	}))
	defer srv.Close()

	e := echo.New()
	e.Use(Middleware(NewClient(Config{URL: srv.URL}, zap.NewNop()), zap.NewNop()))
	e.POST("/checkout", func(c echo.Context) error { return c.NoContent(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
	req.Header.Set("User-Agent", "bot")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/checkout", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
