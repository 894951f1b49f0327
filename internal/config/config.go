package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	Database     DatabaseConfig     `yaml:"database"`
	Server       ServerConfig       `yaml:"server"`
	Log          logger.Config      `yaml:"log"`
	JWT          JWTConfig          `yaml:"jwt"`
	Redis        RedisConfig        `yaml:"redis"`
	Providers    ProvidersConfig    `yaml:"providers"`
	ExchangeRate ExchangeRateConfig `yaml:"exchange_rate"`
	Billing      BillingConfig      `yaml:"billing"`
	Reconcile    ReconcileConfig    `yaml:"reconcile"`
	Registrar    RegistrarConfig    `yaml:"registrar"`
	DNS          DNSConfig          `yaml:"dns"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	Notification NotificationConfig `yaml:"notification"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BillingConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Schedule        string        `yaml:"schedule"`
	BatchSize       int           `yaml:"batch_size"`
	MaxFailures     int           `yaml:"max_failures"`
	DistributedLock bool          `yaml:"distributed_lock"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
}

type ReconcileConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Schedule   string        `yaml:"schedule"`
	StaleAfter time.Duration `yaml:"stale_after"`
	BatchSize  int           `yaml:"batch_size"`
}

type NotificationConfig struct {
	Channel string `yaml:"channel"`
}

// LoadConfig reads the YAML file named by CONFIG_PATH, overlays secrets from
// PAYMENT_* environment variables and fills in defaults.
func LoadConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/payment.yaml"
	}

	// Ensure absolute path
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	// Read config file
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document and applies env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings without which the service cannot start.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Service.EncryptionKey != "" && len(c.Service.EncryptionKey) != 64 {
		return fmt.Errorf("service.encryption_key must be 32 bytes hex encoded")
	}
	return nil
}
