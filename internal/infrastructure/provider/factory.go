package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/config"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/provider/card"
	cryptoProvider "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/provider/crypto"
	stripeProvider "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/provider/stripe"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/provider/wallet"
)

// Factory creates payment gateways from configuration
type Factory struct {
	config *config.Config
	rates  card.Converter
	logger *zap.Logger
}

// NewFactory creates a new provider factory
func NewFactory(config *config.Config, rates card.Converter, logger *zap.Logger) *Factory {
	return &Factory{
		config: config,
		rates:  rates,
		logger: logger,
	}
}

// CardGateway returns the configured card backend
func (f *Factory) CardGateway() (provider.CardGateway, error) {
	cfg := f.config.Providers
	switch cfg.CardGateway {
	case "", card.GatewayName:
		return f.createSignedCardGateway()
	case stripeProvider.GatewayName:
		return f.createStripeProvider()
	default:
		return nil, fmt.Errorf("unsupported card gateway: %s", cfg.CardGateway)
	}
}

// GatewayFromString returns the card backend that handled a stored payment.
// Empty selects the configured default.
func (f *Factory) GatewayFromString(name string) (provider.CardGateway, error) {
	switch name {
	case "":
		return f.CardGateway()
	case card.GatewayName:
		return f.createSignedCardGateway()
	case stripeProvider.GatewayName:
		return f.createStripeProvider()
	default:
		return nil, fmt.Errorf("unsupported card gateway: %s", name)
	}
}

func (f *Factory) createSignedCardGateway() (provider.CardGateway, error) {
	cfg := f.config.Providers.Card
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("card private key not configured")
	}
	if f.rates == nil {
		return nil, fmt.Errorf("card gateway requires an exchange rate source")
	}

	return card.NewGateway(card.Config{
		BaseURL:         cfg.BaseURL,
		PublicKey:       cfg.PublicKey,
		PrivateKey:      cfg.PrivateKey,
		IntegritySecret: cfg.IntegritySecret,
		EventsSecret:    cfg.EventsSecret,
		Timeout:         cfg.Timeout,
	}, f.rates, f.logger), nil
}

func (f *Factory) createStripeProvider() (provider.CardGateway, error) {
	cfg := f.config.Providers.Stripe
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("Stripe secret key not configured")
	}

	return stripeProvider.NewStripeProvider(stripeProvider.Config{
		SecretKey:     cfg.SecretKey,
		WebhookSecret: cfg.WebhookSecret,
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
	}, f.logger), nil
}

// WalletGateway returns the redirect-and-capture wallet backend
func (f *Factory) WalletGateway() (provider.WalletGateway, error) {
	cfg := f.config.Providers.Wallet
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("wallet credentials not configured")
	}

	return wallet.NewGateway(wallet.Config{
		BaseURL:      cfg.BaseURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		WebhookID:    cfg.WebhookID,
		Timeout:      cfg.Timeout,
	}, f.logger), nil
}

// CryptoGateway returns the address-based crypto backend
func (f *Factory) CryptoGateway() (provider.CryptoGateway, error) {
	cfg := f.config.Providers.Crypto
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("crypto api key not configured")
	}
	if cfg.IPNSecret == "" {
		return nil, fmt.Errorf("crypto ipn secret not configured")
	}

	return cryptoProvider.NewGateway(cryptoProvider.Config{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		IPNSecret:   cfg.IPNSecret,
		IPNCallback: cfg.IPNCallback,
		PayCurrency: cfg.PayCurrency,
		StatusRPS:   cfg.StatusRPS,
		Timeout:     cfg.Timeout,
	}, f.logger), nil
}
