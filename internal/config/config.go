// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Ledger accounts
	EscrowAccount  string // account holding payment principal between make and confirm
	CashOutAccount string // destination for confirmed payments (optional, confirm fails while unset)

	// Cashback settings
	CashbackEnabled    bool
	CashbackRatePermil uint64 // parts per thousand, snapshot onto each new payment
	DistributorAccount string // funding account of the in-process distributor (dev mode)

	// Lifecycle settings
	RevocationLimit uint64 // max revocations per authorization id, 0 = unlimited

	// Tracing
	OTLPEndpoint string
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultEscrowAccount   = "escrow"
	DefaultRevocationLimit = 1
	MaxCashbackRatePermil  = 1000
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		EscrowAccount:      getEnv("ESCROW_ACCOUNT", DefaultEscrowAccount),
		CashOutAccount:     os.Getenv("CASHOUT_ACCOUNT"),
		CashbackEnabled:    getEnvBool("CASHBACK_ENABLED", false),
		CashbackRatePermil: getEnvUint64("CASHBACK_RATE_PERMIL", 0),
		DistributorAccount: os.Getenv("DISTRIBUTOR_ACCOUNT"),
		RevocationLimit:    getEnvUint64("REVOCATION_LIMIT", DefaultRevocationLimit),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.EscrowAccount == "" {
		return fmt.Errorf("ESCROW_ACCOUNT must not be empty")
	}

	if c.CashbackRatePermil > MaxCashbackRatePermil {
		return fmt.Errorf("CASHBACK_RATE_PERMIL must be at most %d", MaxCashbackRatePermil)
	}

	if c.CashbackEnabled && c.DistributorAccount == "" {
		return fmt.Errorf("CASHBACK_ENABLED requires DISTRIBUTOR_ACCOUNT")
	}

	if c.CashOutAccount == c.EscrowAccount && c.CashOutAccount != "" {
		return fmt.Errorf("CASHOUT_ACCOUNT must differ from ESCROW_ACCOUNT")
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

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseUint(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
