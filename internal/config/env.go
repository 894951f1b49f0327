package config

import (
	pkgconfig "github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/config"
)

// EnvPrefix is the prefix of environment overrides, e.g. PAYMENT_DATABASE_PASSWORD.
const EnvPrefix = "PAYMENT"

// applyEnv overrides secrets and endpoints from the environment so the YAML
// file can be committed without credentials.
func (c *Config) applyEnv() {
	env := pkgconfig.FromEnv(EnvPrefix)

	pkgconfig.Override(env, "database.host", &c.Database.Host)
	pkgconfig.Override(env, "database.user", &c.Database.User)
	pkgconfig.Override(env, "database.password", &c.Database.Password)
	pkgconfig.Override(env, "database.name", &c.Database.Name)
	if env.IsSet("database.port") {
		c.Database.Port = env.GetInt("database.port")
	}

	pkgconfig.Override(env, "jwt.secret", &c.JWT.Secret)
	pkgconfig.Override(env, "redis.addr", &c.Redis.Addr)
	pkgconfig.Override(env, "redis.password", &c.Redis.Password)
	pkgconfig.Override(env, "service.encryption_key", &c.Service.EncryptionKey)

	pkgconfig.Override(env, "providers.card.public_key", &c.Providers.Card.PublicKey)
	pkgconfig.Override(env, "providers.card.private_key", &c.Providers.Card.PrivateKey)
	pkgconfig.Override(env, "providers.card.integrity_secret", &c.Providers.Card.IntegritySecret)
	pkgconfig.Override(env, "providers.card.events_secret", &c.Providers.Card.EventsSecret)
	pkgconfig.Override(env, "providers.stripe.secret_key", &c.Providers.Stripe.SecretKey)
	pkgconfig.Override(env, "providers.stripe.webhook_secret", &c.Providers.Stripe.WebhookSecret)
	pkgconfig.Override(env, "providers.wallet.client_id", &c.Providers.Wallet.ClientID)
	pkgconfig.Override(env, "providers.wallet.client_secret", &c.Providers.Wallet.ClientSecret)
	pkgconfig.Override(env, "providers.wallet.webhook_id", &c.Providers.Wallet.WebhookID)
	pkgconfig.Override(env, "providers.crypto.api_key", &c.Providers.Crypto.APIKey)
	pkgconfig.Override(env, "providers.crypto.ipn_secret", &c.Providers.Crypto.IPNSecret)

	pkgconfig.Override(env, "registrar.username", &c.Registrar.Username)
	pkgconfig.Override(env, "registrar.token", &c.Registrar.Token)
	pkgconfig.Override(env, "dns.api_token", &c.DNS.APIToken)
	pkgconfig.Override(env, "dns.zone_id", &c.DNS.ZoneID)

	// operational switches, so a deploy can pause jobs without a new file
	if env.IsSet("billing.enabled") {
		c.Billing.Enabled = env.GetBool("billing.enabled")
	}
	if env.IsSet("reconcile.enabled") {
		c.Reconcile.Enabled = env.GetBool("reconcile.enabled")
	}
	if env.IsSet("reconcile.stale_after") {
		c.Reconcile.StaleAfter = env.GetDuration("reconcile.stale_after")
	}
	if env.IsSet("providers.crypto.status_rps") {
		c.Providers.Crypto.StatusRPS = env.GetFloat64("providers.crypto.status_rps")
	}
	// space separated
	if env.IsSet("server.http.allow_origins") {
		c.Server.HTTP.AllowOrigins = env.GetStringSlice("server.http.allow_origins")
	}
}
