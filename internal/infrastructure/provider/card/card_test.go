package card

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/signature"
)

type fixedRate struct{}

func (fixedRate) ToMinor(ctx context.Context, amount decimal.Decimal, currency string) (int64, string, error) {
	if currency != "USD" {
		return 0, "", fmt.Errorf("%w: %s", domainErrors.ErrUnsupportedCurrency, currency)
	}
	return amount.Mul(decimal.NewFromInt(4000)).Shift(2).Round(0).IntPart(), "COP", nil
}

func newTestGateway(url string) *Gateway {
	return NewGateway(Config{
		BaseURL:         url,
		PublicKey:       "pub_test",
		PrivateKey:      "prv_test",
		IntegritySecret: "integrity",
		EventsSecret:    "events",
		Timeout:         time.Second,
	}, fixedRate{}, zap.NewNop())
}

func merchantHandler(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": map[string]interface{}{
			"presigned_acceptance": map[string]interface{}{"acceptance_token": "acc_1"},
		},
	})
}

func TestGateway_CreateCharge(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		response   string
		wantStatus model.PaymentStatus
		wantErr    func(t *testing.T, err error)
	}{
		{
			name:       "approved",
			status:     http.StatusCreated,
			response:   `{"data":{"id":"tx_1","reference":"pay_1","status":"APPROVED","amount_in_cents":29996000,"currency":"COP"}}`,
			wantStatus: model.PaymentStatusCompleted,
		},
		{
			name:       "pending",
			status:     http.StatusCreated,
			response:   `{"data":{"id":"tx_2","reference":"pay_1","status":"PENDING"}}`,
			wantStatus: model.PaymentStatusPending,
		},
		{
			name:       "declined",
			status:     http.StatusCreated,
			response:   `{"data":{"id":"tx_3","reference":"pay_1","status":"DECLINED","status_message":"Fondos insuficientes"}}`,
			wantStatus: model.PaymentStatusFailed,
		},
		{
			name:       "voided is failed",
			status:     http.StatusCreated,
			response:   `{"data":{"id":"tx_4","reference":"pay_1","status":"VOIDED"}}`,
			wantStatus: model.PaymentStatusFailed,
		},
		{
			name:     "validation error is a decline",
			status:   http.StatusUnprocessableEntity,
			response: `{"error":{"type":"INPUT_VALIDATION_ERROR","messages":{"token":["invalid"]}}}`,
			wantErr: func(t *testing.T, err error) {
				var declined *domainErrors.ProviderDeclinedError
				require.ErrorAs(t, err, &declined)
				assert.Equal(t, "INPUT_VALIDATION_ERROR", declined.ProviderCode)
				assert.Equal(t, "pay_1", declined.PaymentID)
			},
		},
		{
			name:     "server error is unavailable",
			status:   http.StatusBadGateway,
			response: `{}`,
			wantErr: func(t *testing.T, err error) {
				assert.True(t, domainErrors.IsRetryable(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch {
				case r.Method == http.MethodGet && r.URL.Path == "/merchants/pub_test":
					merchantHandler(w)
				case r.Method == http.MethodPost && r.URL.Path == "/transactions":
					assert.Equal(t, "Bearer prv_test", r.Header.Get("Authorization"))

					var body map[string]interface{}
					require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
					assert.Equal(t, "acc_1", body["acceptance_token"])
					assert.Equal(t, float64(29996000), body["amount_in_cents"])
					assert.Equal(t, "COP", body["currency"])
					assert.Equal(t, signature.Integrity("pay_1", 29996000, "COP", "integrity"), body["signature"])

					w.WriteHeader(tt.status)
					w.Write([]byte(tt.response))
				default:
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
			}))
			defer server.Close()

			result, err := newTestGateway(server.URL).CreateCharge(context.Background(), &provider.ChargeRequest{
				Reference:     "pay_1",
				Amount:        decimal.RequireFromString("74.99"),
				Currency:      "USD",
				CustomerEmail: "owner@example.com",
				PaymentToken:  "tok_test_1",
			})

			if tt.wantErr != nil {
				require.Error(t, err)
				tt.wantErr(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, int64(29996000), result.SettlementAmount)
			assert.Equal(t, "COP", result.SettlementCurrency)
			if tt.wantStatus == model.PaymentStatusFailed {
				assert.NotEmpty(t, result.Reason)
			}
		})
	}
}

func TestGateway_CreateChargeVaultsCard(t *testing.T) {
	var charged map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/merchants/pub_test":
			merchantHandler(w)
		case "/payment_sources":
			w.Write([]byte(`{"data":{"id":3891,"status":"AVAILABLE"}}`))
		case "/transactions":
			json.NewDecoder(r.Body).Decode(&charged)
			w.Write([]byte(`{"data":{"id":"tx_1","reference":"pay_1","status":"APPROVED"}}`))
		}
	}))
	defer server.Close()

	result, err := newTestGateway(server.URL).CreateCharge(context.Background(), &provider.ChargeRequest{
		Reference:    "pay_1",
		Amount:       decimal.RequireFromString("74.99"),
		Currency:     "USD",
		PaymentToken: "tok_test_1",
		Vault:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "3891", result.ReusableToken)
	assert.Equal(t, float64(3891), charged["payment_source_id"])
}

func TestGateway_UnsupportedCurrency(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).CreateCharge(context.Background(), &provider.ChargeRequest{
		Reference: "pay_1", Amount: decimal.NewFromInt(10), Currency: "EUR", PaymentToken: "tok",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrUnsupportedCurrency)
	assert.Zero(t, calls)
}

func TestGateway_AcceptanceTokenRetries(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/merchants/pub_test" {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			merchantHandler(w)
			return
		}
		w.Write([]byte(`{"data":{"id":"tx_1","reference":"pay_1","status":"APPROVED"}}`))
	}))
	defer server.Close()

	result, err := newTestGateway(server.URL).CreateCharge(context.Background(), &provider.ChargeRequest{
		Reference: "pay_1", Amount: decimal.NewFromInt(10), Currency: "USD", PaymentToken: "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, model.PaymentStatusCompleted, result.Status)
}

func TestGateway_Lookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer prv_test", r.Header.Get("Authorization"))
		switch {
		case r.URL.Path == "/transactions/tx_1":
			w.Write([]byte(`{"data":{"id":"tx_1","reference":"pay_1","status":"APPROVED"}}`))
		case r.URL.Path == "/transactions" && r.URL.Query().Get("reference") == "pay_2":
			w.Write([]byte(`{"data":[{"id":"tx_a","reference":"pay_2","status":"DECLINED"},{"id":"tx_b","reference":"pay_2","status":"APPROVED"}]}`))
		case r.URL.Path == "/transactions":
			w.Write([]byte(`{"data":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	g := newTestGateway(server.URL)

	byID, err := g.Lookup(context.Background(), "tx_1", "pay_1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, byID.Status)

	byRef, err := g.Lookup(context.Background(), "", "pay_2")
	require.NoError(t, err)
	assert.Equal(t, "tx_b", byRef.ExternalID)

	_, err = g.Lookup(context.Background(), "", "pay_3")
	assert.True(t, errors.Is(err, domainErrors.ErrPaymentNotFound))
}

func signedEvent(t *testing.T, status string, secret string) []byte {
	t.Helper()
	values := []string{"tx_1", status, "29996000"}
	checksum := signature.EventChecksum(values, 1700000000, secret)
	return []byte(fmt.Sprintf(`{
		"event": "transaction.updated",
		"data": {"transaction": {"id": "tx_1", "status": %q, "amount_in_cents": 29996000, "reference": "pay_1", "currency": "COP"}},
		"environment": "test",
		"signature": {"properties": ["transaction.id", "transaction.status", "transaction.amount_in_cents"], "checksum": %q},
		"timestamp": 1700000000
	}`, status, checksum))
}

func TestGateway_ParseWebhook(t *testing.T) {
	g := newTestGateway("http://unused")

	t.Run("approved event", func(t *testing.T) {
		event, err := g.ParseWebhook(context.Background(), signedEvent(t, "APPROVED", "events"), http.Header{})
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, "tx_1", event.ExternalRef)
		assert.Equal(t, "pay_1", event.Reference)
		assert.Equal(t, model.PaymentStatusCompleted, event.Status)
		assert.True(t, event.Amount.Equal(decimal.RequireFromString("299960")))
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := g.ParseWebhook(context.Background(), signedEvent(t, "APPROVED", "other"), http.Header{})
		var authErr *domainErrors.AuthenticationError
		assert.ErrorAs(t, err, &authErr)
	})

	t.Run("tampered status", func(t *testing.T) {
		body := signedEvent(t, "DECLINED", "events")
		tampered := []byte(string(body))
		copy(tampered[bytes.Index(tampered, []byte("DECLINED")):], "APPROVED")
		_, err := g.ParseWebhook(context.Background(), tampered, http.Header{})
		assert.Error(t, err)
	})

	t.Run("malformed body", func(t *testing.T) {
		_, err := g.ParseWebhook(context.Background(), []byte("nope"), http.Header{})
		var authErr *domainErrors.AuthenticationError
		assert.ErrorAs(t, err, &authErr)
	})
}
