package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
service:
  name: payment
database:
  host: localhost
  user: app
  password: from-file
  name: payments
jwt:
  secret: file-secret
providers:
  card_gateway: signed
  card:
    base_url: https://sandbox.example.test/v1
    public_key: pub_test
billing:
  distributed_lock: true
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTP.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "0 3 * * *", cfg.Billing.Schedule)
	assert.Equal(t, 3, cfg.Billing.MaxFailures)
	assert.True(t, cfg.Billing.DistributedLock)
	assert.Equal(t, 10*time.Second, cfg.Providers.Card.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Classifier.Timeout)
	assert.Equal(t, 12*time.Hour, cfg.ExchangeRate.TTL)
	assert.Equal(t, "COP", cfg.Providers.Card.SettlementCurrency)
	assert.Equal(t, "notifications", cfg.Notification.Channel)
	assert.Equal(t, "payment", cfg.Log.Service)
	assert.Equal(t, "host=localhost port=5432 user=app password=from-file dbname=payments sslmode=disable", cfg.Database.DSN())
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("PAYMENT_DATABASE_PASSWORD", "from-env")
	t.Setenv("PAYMENT_JWT_SECRET", "env-secret")
	t.Setenv("PAYMENT_PROVIDERS_CRYPTO_IPN_SECRET", "ipn")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, "ipn", cfg.Providers.Crypto.IPNSecret)
	assert.Equal(t, "pub_test", cfg.Providers.Card.PublicKey)
}

func TestParse_EnvSwitches(t *testing.T) {
	t.Run("typed overrides", func(t *testing.T) {
		t.Setenv("PAYMENT_BILLING_ENABLED", "false")
		t.Setenv("PAYMENT_RECONCILE_ENABLED", "true")
		t.Setenv("PAYMENT_RECONCILE_STALE_AFTER", "45m")
		t.Setenv("PAYMENT_PROVIDERS_CRYPTO_STATUS_RPS", "2.5")
		t.Setenv("PAYMENT_SERVER_HTTP_ALLOW_ORIGINS", "https://a.example https://b.example")

		cfg, err := Parse([]byte(sampleYAML + "  enabled: true\n"))
		require.NoError(t, err)

		assert.False(t, cfg.Billing.Enabled)
		assert.True(t, cfg.Reconcile.Enabled)
		assert.Equal(t, 45*time.Minute, cfg.Reconcile.StaleAfter)
		assert.Equal(t, 2.5, cfg.Providers.Crypto.StatusRPS)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.HTTP.AllowOrigins)
	})

	t.Run("unset keeps the file", func(t *testing.T) {
		cfg, err := Parse([]byte(sampleYAML + "  enabled: true\n"))
		require.NoError(t, err)
		assert.True(t, cfg.Billing.Enabled)
	})
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("jwt: ["))
	assert.Error(t, err)

	_, err = Parse([]byte("service:\n  name: payment\n"))
	assert.Error(t, err, "jwt secret is required")

	_, err = Parse([]byte("jwt:\n  secret: s\nservice:\n  encryption_key: abc\n"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "payments", cfg.Database.Name)

	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = LoadConfig()
	assert.Error(t, err)
}
