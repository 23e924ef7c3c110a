// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Bot
	BotToken string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment providers
	StripeKey        string
	StripeSuccessURL string
	StripeCancelURL  string
	CryptoAPIURL     string
	CryptoAPIKey     string

	// Payment policy, amounts in EUR cents
	MinTopup      int64
	MaxTopup      int64
	PaymentWindow time.Duration
	ReferralPct   int64

	// Inventory
	InventoryDir string

	// Watcher (optional)
	EthRPCURL     string
	TokenContract string

	// Observability
	OTLPEndpoint string

	// Admin API
	AdminSecret string
}

// Defaults
const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultMinTopup      = 500     // 5.00 EUR
	DefaultMaxTopup      = 1000000 // 10000.00 EUR
	DefaultPaymentWindow = 1800    // seconds
	DefaultReferralPct   = 10
	DefaultInventoryDir  = "data/inventory"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
		BotToken:         os.Getenv("BOT_TOKEN"), // Required, no default
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StripeKey:        os.Getenv("STRIPE_KEY"),
		StripeSuccessURL: getEnv("STRIPE_SUCCESS_URL", "https://t.me"),
		StripeCancelURL:  getEnv("STRIPE_CANCEL_URL", "https://t.me"),
		CryptoAPIURL:     getEnv("CRYPTO_API_URL", "https://api.nowpayments.io"),
		CryptoAPIKey:     os.Getenv("CRYPTO_API_KEY"),
		MinTopup:         getEnvInt64("MIN_TOPUP_CENTS", DefaultMinTopup),
		MaxTopup:         getEnvInt64("MAX_TOPUP_CENTS", DefaultMaxTopup),
		PaymentWindow:    time.Duration(getEnvInt64("PAYMENT_TIME", DefaultPaymentWindow)) * time.Second,
		ReferralPct:      getEnvInt64("REFERRAL_PERCENT", DefaultReferralPct),
		InventoryDir:     getEnv("INVENTORY_DIR", DefaultInventoryDir),
		EthRPCURL:        os.Getenv("ETH_RPC_URL"),
		TokenContract:    os.Getenv("TOKEN_CONTRACT"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AdminSecret:      os.Getenv("ADMIN_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.MinTopup <= 0 || c.MaxTopup < c.MinTopup {
		return fmt.Errorf("topup bounds invalid: min=%d max=%d", c.MinTopup, c.MaxTopup)
	}
	if c.PaymentWindow <= 0 {
		return fmt.Errorf("PAYMENT_TIME must be positive")
	}
	if c.ReferralPct < 0 || c.ReferralPct > 100 {
		return fmt.Errorf("REFERRAL_PERCENT must be in [0, 100]")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
