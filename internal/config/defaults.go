package config

import "time"

const defaultProviderTimeout = 10 * time.Second

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "payment"
	}
	if c.Server.HTTP.Port == 0 {
		c.Server.HTTP.Port = 8080
	}
	if c.Server.GRPC.Port == 0 {
		c.Server.GRPC.Port = 9090
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Service == "" {
		c.Log.Service = c.Service.Name
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	setTimeout(&c.Providers.Card.Timeout)
	setTimeout(&c.Providers.Stripe.Timeout)
	setTimeout(&c.Providers.Wallet.Timeout)
	setTimeout(&c.Providers.Crypto.Timeout)
	setTimeout(&c.Registrar.Timeout)
	setTimeout(&c.DNS.Timeout)
	if c.Providers.Card.SettlementCurrency == "" {
		c.Providers.Card.SettlementCurrency = "COP"
	}
	if c.Providers.Crypto.StatusRPS <= 0 {
		c.Providers.Crypto.StatusRPS = 2
	}
	if c.Providers.Crypto.PayCurrency == "" {
		c.Providers.Crypto.PayCurrency = "usdttrc20"
	}

	if c.ExchangeRate.TTL == 0 {
		c.ExchangeRate.TTL = 12 * time.Hour
	}
	if c.ExchangeRate.Fallback == "" {
		c.ExchangeRate.Fallback = "4000"
	}
	if c.ExchangeRate.Timeout == 0 {
		c.ExchangeRate.Timeout = 5 * time.Second
	}

	if c.Classifier.Timeout == 0 {
		c.Classifier.Timeout = 2 * time.Second
	}

	if c.Billing.Schedule == "" {
		c.Billing.Schedule = "0 3 * * *"
	}
	if c.Billing.BatchSize == 0 {
		c.Billing.BatchSize = 500
	}
	if c.Billing.MaxFailures == 0 {
		c.Billing.MaxFailures = 3
	}
	if c.Billing.LockTTL == 0 {
		c.Billing.LockTTL = 30 * time.Minute
	}

	if c.Reconcile.Schedule == "" {
		c.Reconcile.Schedule = "@every 5m"
	}
	if c.Reconcile.StaleAfter == 0 {
		c.Reconcile.StaleAfter = 15 * time.Minute
	}
	if c.Reconcile.BatchSize == 0 {
		c.Reconcile.BatchSize = 100
	}

	if c.Notification.Channel == "" {
		c.Notification.Channel = "notifications"
	}
}

func setTimeout(d *time.Duration) {
	if *d <= 0 {
		*d = defaultProviderTimeout
	}
}
