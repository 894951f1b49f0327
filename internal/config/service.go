package config

import "time"

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	ClientURL   string `yaml:"client_url"`
	// EncryptionKey is the hex AES-256 key for stored payment tokens
	EncryptionKey string `yaml:"encryption_key"`
}

type ProvidersConfig struct {
	// CardGateway selects the card backend: "signed" or "stripe"
	CardGateway string       `yaml:"card_gateway"`
	Card        CardConfig   `yaml:"card"`
	Stripe      StripeConfig `yaml:"stripe"`
	Wallet      WalletConfig `yaml:"wallet"`
	Crypto      CryptoConfig `yaml:"crypto"`
}

type CardConfig struct {
	BaseURL            string        `yaml:"base_url"`
	PublicKey          string        `yaml:"public_key"`
	PrivateKey         string        `yaml:"private_key"`
	IntegritySecret    string        `yaml:"integrity_secret"`
	EventsSecret       string        `yaml:"events_secret"`
	SettlementCurrency string        `yaml:"settlement_currency"`
	Timeout            time.Duration `yaml:"timeout"`
}

type StripeConfig struct {
	SecretKey     string        `yaml:"secret_key"`
	WebhookSecret string        `yaml:"webhook_secret"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
}

type WalletConfig struct {
	BaseURL      string        `yaml:"base_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	WebhookID    string        `yaml:"webhook_id"`
	ReturnURL    string        `yaml:"return_url"`
	CancelURL    string        `yaml:"cancel_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

type CryptoConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	IPNSecret   string        `yaml:"ipn_secret"`
	IPNCallback string        `yaml:"ipn_callback_url"`
	PayCurrency string        `yaml:"pay_currency"`
	StatusRPS   float64       `yaml:"status_rps"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ExchangeRateConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Base     string        `yaml:"base"`
	TTL      time.Duration `yaml:"ttl"`
	Fallback string        `yaml:"fallback"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RegistrarConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Username string        `yaml:"username"`
	Token    string        `yaml:"token"`
	Contact  ContactConfig `yaml:"contact"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ContactConfig is the registrant contact sent with domain purchases.
type ContactConfig struct {
	FirstName    string `yaml:"first_name"`
	LastName     string `yaml:"last_name"`
	Email        string `yaml:"email"`
	Phone        string `yaml:"phone"`
	Address1     string `yaml:"address1"`
	City         string `yaml:"city"`
	State        string `yaml:"state"`
	Zip          string `yaml:"zip"`
	Country      string `yaml:"country"`
	Organization string `yaml:"organization"`
}

type DNSConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIToken string        `yaml:"api_token"`
	ZoneID   string        `yaml:"zone_id"`
	Target   string        `yaml:"target"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ClassifierConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	RPS     float64       `yaml:"rps"`
}
