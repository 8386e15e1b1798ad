package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	// Ethereum node configuration
	Ethereum EthereumConfig

	// Signing wallet used to submit transactions
	Wallet WalletConfig

	// Lending contract and known tokens
	Lending LendingConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// API server configuration
	API APIConfig

	// Reconciler configuration
	Reconciler ReconcilerConfig

	// Notification configuration
	Notify NotifyConfig

	// Logging configuration
	Log LogConfig
}

// EthereumConfig holds Ethereum node connection settings
type EthereumConfig struct {
	RPCURL              string        `envconfig:"ETH_RPC_URL" default:"https://bsc-dataseed.binance.org"`
	ChainID             int64         `envconfig:"ETH_CHAIN_ID" default:"56"`
	RequestTimeout      time.Duration `envconfig:"ETH_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries          int           `envconfig:"ETH_MAX_RETRIES" default:"3"`
	RetryDelay          time.Duration `envconfig:"ETH_RETRY_DELAY" default:"1s"`
	ReceiptPollInterval time.Duration `envconfig:"ETH_RECEIPT_POLL_INTERVAL" default:"3s"`
	GasLimitMultiplier  float64       `envconfig:"ETH_GAS_LIMIT_MULTIPLIER" default:"1.2"`
}

// WalletConfig holds the signer key. An empty key leaves the gateway read-only.
type WalletConfig struct {
	PrivateKey string `envconfig:"WALLET_PRIVATE_KEY" default:""`
}

// LendingConfig holds lending contract settings
type LendingConfig struct {
	ContractAddress  string `envconfig:"LENDING_CONTRACT_ADDRESS" required:"true"`
	CollateralSymbol string `envconfig:"LENDING_COLLATERAL_SYMBOL" default:"BNB"`
	TokenListPath    string `envconfig:"LENDING_TOKEN_LIST" default:"tokens.toml"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"vault"`
	Password        string        `envconfig:"DB_PASSWORD" default:"vault"`
	Name            string        `envconfig:"DB_NAME" default:"vault_gateway"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Host            string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"API_PORT" default:"8081"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    int           `envconfig:"API_RATE_LIMIT_RPS" default:"100"`
	CacheTTL        time.Duration `envconfig:"API_CACHE_TTL" default:"15s"`
	TokenCacheTTL   time.Duration `envconfig:"API_TOKEN_CACHE_TTL" default:"1h"`
}

// ReconcilerConfig holds settings for the confirmation reconciler
type ReconcilerConfig struct {
	MetricsPort  int           `envconfig:"RECONCILER_METRICS_PORT" default:"8080"`
	PollInterval time.Duration `envconfig:"RECONCILER_POLL_INTERVAL" default:"15s"`
	WorkerCount  int           `envconfig:"RECONCILER_WORKER_COUNT" default:"4"`
	StaleAfter   time.Duration `envconfig:"RECONCILER_STALE_AFTER" default:"1m"`
	BatchSize    int           `envconfig:"RECONCILER_BATCH_SIZE" default:"100"`
}

// NotifyConfig holds lifecycle notification settings
type NotifyConfig struct {
	WebhookURL string        `envconfig:"NOTIFY_WEBHOOK_URL" default:""`
	DedupeTTL  time.Duration `envconfig:"NOTIFY_DEDUPE_TTL" default:"30s"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level     string `envconfig:"LOG_LEVEL" default:"info"`
	Format    string `envconfig:"LOG_FORMAT" default:"json"`
	File      string `envconfig:"LOG_FILE" default:""`
	MaxSizeMB int    `envconfig:"LOG_MAX_SIZE_MB" default:"100"`
}

// Load loads configuration from environment variables, reading a .env file
// first when one exists
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
