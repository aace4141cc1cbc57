package configloader

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const defaultDisplayDecimals = 6

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// WalletConfig identifies the wallet instance and its recovery policy.
type WalletConfig struct {
	Filename              string `yaml:"filename"`
	BackupDir             string `yaml:"backupDir"`
	MaxRecoveryAttempts   int    `yaml:"maxRecoveryAttempts"`
	RecoveryBackoffMillis int64  `yaml:"recoveryBackoffMillis"`
	DisplayDecimals       *uint8 `yaml:"displayDecimals"`
}

// LedgerConfig points at the wallet bridge serving the ledger client.
type LedgerConfig struct {
	BaseURL              string `yaml:"baseURL"`
	RequestTimeoutMillis int64  `yaml:"requestTimeoutMillis"`
	PollIntervalMillis   int64  `yaml:"pollIntervalMillis"`
	ProveTimeoutMillis   int64  `yaml:"proveTimeoutMillis"`
}

// TrackerConfig tunes the transaction lifecycle tracker.
type TrackerConfig struct {
	MaxInFlight              int  `yaml:"maxInFlight"`
	ShutdownGraceSeconds     int  `yaml:"shutdownGraceSeconds"`
	FailInterruptedOnStartup bool `yaml:"failInterruptedOnStartup"`
}

// CacheConfig holds configuration for the receipt verification cache.
type CacheConfig struct {
	DefaultExpirationMinutes int `yaml:"defaultExpirationMinutes"`
	CleanupIntervalMinutes   int `yaml:"cleanupIntervalMinutes"`
}

// SwaggerConfig holds configuration for Swagger UI.
type SwaggerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Wallet  WalletConfig  `yaml:"wallet"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Tracker TrackerConfig `yaml:"tracker"`
	Cache   CacheConfig   `yaml:"cache"`
	Swagger SwaggerConfig `yaml:"swagger"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Load reads the YAML configuration file from the given path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML configuration data, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
		logrus.Infof("server.port not set, defaulting to %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15
	}
	if cfg.Server.WriteTimeout <= 0 {
		// Blocking sends wait for proving, which takes a while.
		cfg.Server.WriteTimeout = 300
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 60
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Wallet.BackupDir == "" {
		cfg.Wallet.BackupDir = "data/backups"
		logrus.Infof("wallet.backupDir not set, defaulting to %s", cfg.Wallet.BackupDir)
	}
	if cfg.Wallet.MaxRecoveryAttempts <= 0 {
		cfg.Wallet.MaxRecoveryAttempts = 5
		logrus.Infof("wallet.maxRecoveryAttempts not set, defaulting to %d", cfg.Wallet.MaxRecoveryAttempts)
	}
	if cfg.Wallet.RecoveryBackoffMillis <= 0 {
		cfg.Wallet.RecoveryBackoffMillis = 2000
	}
	if cfg.Wallet.DisplayDecimals == nil {
		decimals := uint8(defaultDisplayDecimals)
		cfg.Wallet.DisplayDecimals = &decimals
	}

	if cfg.Ledger.BaseURL == "" {
		cfg.Ledger.BaseURL = "http://127.0.0.1:6300"
		logrus.Infof("ledger.baseURL not set, defaulting to %s", cfg.Ledger.BaseURL)
	}
	if cfg.Ledger.RequestTimeoutMillis <= 0 {
		cfg.Ledger.RequestTimeoutMillis = 10000
	}
	if cfg.Ledger.PollIntervalMillis <= 0 {
		cfg.Ledger.PollIntervalMillis = 1000
	}
	if cfg.Ledger.ProveTimeoutMillis <= 0 {
		cfg.Ledger.ProveTimeoutMillis = 180000
	}

	if cfg.Tracker.MaxInFlight <= 0 {
		cfg.Tracker.MaxInFlight = 4
	}
	if cfg.Tracker.ShutdownGraceSeconds <= 0 {
		cfg.Tracker.ShutdownGraceSeconds = 30
	}

	if cfg.Cache.DefaultExpirationMinutes <= 0 {
		cfg.Cache.DefaultExpirationMinutes = 60
	}
	if cfg.Cache.CleanupIntervalMinutes <= 0 {
		cfg.Cache.CleanupIntervalMinutes = 10
	}

	if cfg.Swagger.Path == "" {
		cfg.Swagger.Path = "/swagger"
	}
}

func (cfg *Config) validate() error {
	if cfg.Wallet.Filename == "" {
		logrus.Error("wallet.filename is required")
		return errors.New("wallet.filename is required")
	}
	return nil
}

// Decimals returns the number of fractional digits used when formatting
// amounts. An explicit zero is kept.
func (cfg *Config) Decimals() uint8 {
	if cfg.Wallet.DisplayDecimals == nil {
		return defaultDisplayDecimals
	}
	return *cfg.Wallet.DisplayDecimals
}

// RecoveryBackoff returns the pause between state stream re-subscriptions.
func (cfg *Config) RecoveryBackoff() time.Duration {
	return time.Duration(cfg.Wallet.RecoveryBackoffMillis) * time.Millisecond
}

// ShutdownGrace returns how long in-flight sends may run after shutdown starts.
func (cfg *Config) ShutdownGrace() time.Duration {
	return time.Duration(cfg.Tracker.ShutdownGraceSeconds) * time.Second
}

// ReceiptCacheTTL returns the expiration of verified receipts.
func (cfg *Config) ReceiptCacheTTL() time.Duration {
	return time.Duration(cfg.Cache.DefaultExpirationMinutes) * time.Minute
}

// ReceiptCacheCleanup returns the cleanup interval of the receipt cache.
func (cfg *Config) ReceiptCacheCleanup() time.Duration {
	return time.Duration(cfg.Cache.CleanupIntervalMinutes) * time.Minute
}
