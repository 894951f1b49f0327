// Package environment builds the payment service's object graph from
// configuration. Both the long-running server and one-shot commands use it.
package environment

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/config"
	domainProvider "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/classifier"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/crypto"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/database"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/dns"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/exchangerate"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/metrics"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/notify"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/registrar"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/logger"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/messaging"
)

type closer func()

// Services are the use cases wired against live infrastructure
type Services struct {
	Payments    *usecase.PaymentService
	Status      *usecase.PaymentStatusService
	Ingestion   *usecase.IngestionService
	Fulfillment *usecase.FulfillmentService
	Billing     *usecase.BillingService
	Reconcile   *usecase.ReconcileService
	Domains     *usecase.DomainPurchaseSaga
}

// Clients are the outbound adapters. Optional gateways are nil when their
// credentials are missing.
type Clients struct {
	Cards      *provider.Factory
	Wallet     domainProvider.WalletGateway
	Crypto     domainProvider.CryptoGateway
	Cipher     crypto.EncryptionService
	Classifier *classifier.Client
	Registrar  *registrar.Client
	CDN        usecase.CDN
}

type Env struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *gorm.DB
	Repos    *database.Repositories
	Redis    *redis.Client
	Notifier *notify.Notifier
	Clients  *Clients
	Services *Services

	Closers []closer
}

// Setup loads .env and the YAML config, connects to Postgres and Redis and
// builds every service.
func Setup(ctx context.Context) (*Env, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewZapLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	e := &Env{Config: cfg, Logger: log}
	e.Closers = append(e.Closers, func() { _ = log.Sync() })

	if err := e.connect(ctx); err != nil {
		e.Close()
		return nil, err
	}

	clients, err := newClients(cfg, log)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("new clients: %w", err)
	}
	e.Clients = clients

	var publisher notify.Publisher
	if e.Redis != nil {
		publisher = messaging.NewRedisClient(e.Redis)
	} else {
		log.Warn("Redis not configured, notifications are disabled")
	}
	e.Notifier = notify.NewNotifier(publisher, cfg.Notification.Channel, log)

	e.Services = newServices(cfg, e.Repos, clients, e.Notifier, e.locker(), log)
	metrics.MustRegister()

	return e, nil
}

func (e *Env) connect(ctx context.Context) error {
	db, err := database.NewConnection(&e.Config.Database, e.Logger)
	if err != nil {
		return err
	}
	e.DB = db
	e.Closers = append(e.Closers, func() {
		if err := database.Close(db, e.Logger); err != nil {
			e.Logger.Error("Failed to close database connection", zap.Error(err))
		}
	})

	if err := database.Migrate(db, e.Logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	e.Repos = database.NewRepositories(db, e.Logger)

	if e.Config.Redis.Addr == "" {
		return nil
	}
	client, err := messaging.Connect(ctx, e.Config.Redis.Addr, e.Config.Redis.Password, e.Config.Redis.DB)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	e.Redis = client
	e.Closers = append(e.Closers, func() { _ = client.Close() })
	return nil
}

func (e *Env) locker() usecase.RunLocker {
	if !e.Config.Billing.DistributedLock {
		return nil
	}
	if e.Redis == nil {
		e.Logger.Warn("billing.distributed_lock needs redis, running without it")
		return nil
	}
	return messaging.NewLocker(e.Redis)
}

// Close releases resources in reverse order of acquisition
func (e *Env) Close() {
	if e.Notifier != nil {
		e.Notifier.Wait()
	}
	for i := len(e.Closers) - 1; i >= 0; i-- {
		e.Closers[i]()
	}
}

// ErrBillingUnavailable is returned when renewals cannot run because stored
// payment tokens cannot be decrypted.
var ErrBillingUnavailable = errors.New("billing requires service.encryption_key")

// RequireBilling reports whether renewals can run with this configuration
func (e *Env) RequireBilling() error {
	if e.Clients.Cipher == nil {
		return ErrBillingUnavailable
	}
	return nil
}

func newClients(cfg *config.Config, log *zap.Logger) (*Clients, error) {
	c := &Clients{}

	if cfg.Service.EncryptionKey != "" {
		cipher, err := crypto.NewAESEncryptionService(cfg.Service.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		c.Cipher = cipher
	} else {
		log.Warn("service.encryption_key not set, recurring plans cannot be renewed")
	}

	fallback, err := decimal.NewFromString(cfg.ExchangeRate.Fallback)
	if err != nil {
		return nil, fmt.Errorf("exchange_rate.fallback: %w", err)
	}
	base := cfg.ExchangeRate.Base
	if base == "" {
		base = "USD"
	}
	rates := exchangerate.NewCache(
		exchangerate.NewHTTPFetcher(cfg.ExchangeRate.BaseURL, cfg.ExchangeRate.Timeout),
		exchangerate.Config{
			Base:     base,
			Quote:    cfg.Providers.Card.SettlementCurrency,
			TTL:      cfg.ExchangeRate.TTL,
			Fallback: fallback,
			Timeout:  cfg.ExchangeRate.Timeout,
		}, log)

	c.Cards = provider.NewFactory(cfg, rates, log)
	if _, err := c.Cards.CardGateway(); err != nil {
		log.Warn("Card gateway not configured", zap.Error(err))
	}
	if wallet, err := c.Cards.WalletGateway(); err != nil {
		log.Warn("Wallet gateway not configured", zap.Error(err))
	} else {
		c.Wallet = wallet
	}
	if cryptoGateway, err := c.Cards.CryptoGateway(); err != nil {
		log.Warn("Crypto gateway not configured", zap.Error(err))
	} else {
		c.Crypto = cryptoGateway
	}

	c.Classifier = classifier.NewClient(classifier.Config{
		URL:     cfg.Classifier.URL,
		Timeout: cfg.Classifier.Timeout,
		RPS:     cfg.Classifier.RPS,
	}, log)

	contact := cfg.Registrar.Contact
	c.Registrar = registrar.NewClient(registrar.Config{
		BaseURL:  cfg.Registrar.BaseURL,
		Username: cfg.Registrar.Username,
		Token:    cfg.Registrar.Token,
		Contact: registrar.Contact{
			FirstName:    contact.FirstName,
			LastName:     contact.LastName,
			Email:        contact.Email,
			Phone:        contact.Phone,
			Address1:     contact.Address1,
			City:         contact.City,
			State:        contact.State,
			Zip:          contact.Zip,
			Country:      contact.Country,
			Organization: contact.Organization,
		},
		Timeout: cfg.Registrar.Timeout,
	}, log)

	if cfg.DNS.APIToken != "" && cfg.DNS.ZoneID != "" {
		c.CDN = dns.NewClient(dns.Config{
			BaseURL:  cfg.DNS.BaseURL,
			APIToken: cfg.DNS.APIToken,
			ZoneID:   cfg.DNS.ZoneID,
			Target:   cfg.DNS.Target,
			Timeout:  cfg.DNS.Timeout,
		}, log)
	} else {
		log.Info("CDN not configured, purchased domains will not be pointed automatically")
	}

	return c, nil
}

func newServices(
	cfg *config.Config,
	repos *database.Repositories,
	clients *Clients,
	notifier usecase.Notifier,
	locker usecase.RunLocker,
	log *zap.Logger,
) *Services {
	fulfillment := usecase.NewFulfillmentService(repos.Payment, repos.Subscription, repos.Resource, notifier, log)
	ingestion := usecase.NewIngestionService(repos.Payment, repos.Webhook, fulfillment, log)

	returnURL := cfg.Providers.Wallet.ReturnURL
	if returnURL == "" && cfg.Service.ClientURL != "" {
		returnURL = cfg.Service.ClientURL + "/checkout/return"
	}
	cancelURL := cfg.Providers.Wallet.CancelURL
	if cancelURL == "" && cfg.Service.ClientURL != "" {
		cancelURL = cfg.Service.ClientURL + "/checkout/cancel"
	}
	payments := usecase.NewPaymentService(
		repos.Payment, repos.Plan, clients.Cards, clients.Wallet, clients.Crypto,
		clients.Cipher, ingestion, returnURL, cancelURL, log)

	return &Services{
		Payments:    payments,
		Status:      usecase.NewPaymentStatusService(payments, clients.Crypto, log),
		Ingestion:   ingestion,
		Fulfillment: fulfillment,
		Billing: usecase.NewBillingService(
			repos.Subscription, repos.Payment, payments, ingestion, clients.Cards,
			clients.Cipher, notifier, locker,
			usecase.BillingConfig{
				BatchSize:       cfg.Billing.BatchSize,
				MaxFailures:     cfg.Billing.MaxFailures,
				DistributedLock: locker != nil,
				LockTTL:         cfg.Billing.LockTTL,
			}, log),
		Reconcile: usecase.NewReconcileService(repos.Payment, clients.Cards, ingestion,
			usecase.ReconcileConfig{
				StaleAfter: cfg.Reconcile.StaleAfter,
				BatchSize:  cfg.Reconcile.BatchSize,
			}, log),
		Domains: usecase.NewDomainPurchaseSaga(
			repos.Resource, repos.Payment, payments, clients.Cards,
			clients.Registrar, clients.CDN, notifier, log),
	}
}
