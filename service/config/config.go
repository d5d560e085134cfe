package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/heartchain/heartchain/service/chains"
	"github.com/heartchain/heartchain/service/donation"
	"github.com/heartchain/heartchain/service/wallet"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Wallet configuration
	WalletRPCURL  string
	TargetChainID string

	// Local ledger configuration
	LedgerPath string
	FlagPath   string

	// Replication configuration
	ReplicationURL string

	// Donation flow configuration
	PollInterval      time.Duration
	ConfirmationDelay time.Duration
	UnitsPerToken     int64
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Wallet configuration
	cfg.WalletRPCURL = getEnvOrDefault("WALLET_RPC_URL", "http://localhost:8545")
	cfg.TargetChainID = getEnvOrDefault("TARGET_CHAIN_ID", chains.ShardeumSphinxChainID)
	if !strings.HasPrefix(cfg.TargetChainID, "0x") {
		errs = append(errs, fmt.Errorf("TARGET_CHAIN_ID must be a 0x-prefixed hex chain ID, got %q", cfg.TargetChainID))
	}

	// Local ledger configuration
	cfg.LedgerPath = getEnvOrDefault("LEDGER_PATH", defaultStatePath("transactions.json"))
	cfg.FlagPath = getEnvOrDefault("FLAG_PATH", defaultStatePath("wallet.json"))

	// Replication configuration. Empty means replication is disabled and
	// donations stay local-only.
	cfg.ReplicationURL = os.Getenv("REPLICATION_URL")

	// Donation flow configuration
	pollInterval, err := parseDuration("POLL_INTERVAL", "5s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PollInterval = pollInterval
	}

	confirmationDelay, err := parseDuration("CONFIRMATION_DELAY", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmationDelay = confirmationDelay
	}

	unitsPerToken, err := parseInt("UNITS_PER_TOKEN", int(donation.DefaultUnitsPerToken))
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.UnitsPerToken = int64(unitsPerToken)
	}
	if cfg.UnitsPerToken <= 0 {
		errs = append(errs, fmt.Errorf("UNITS_PER_TOKEN must be positive, got %d", cfg.UnitsPerToken))
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.WalletRPCURL == "" {
		errs = append(errs, fmt.Errorf("WalletRPCURL is required"))
	}

	if !strings.HasPrefix(c.TargetChainID, "0x") {
		errs = append(errs, fmt.Errorf("TargetChainID must be a 0x-prefixed hex chain ID"))
	}

	if c.LedgerPath == "" {
		errs = append(errs, fmt.Errorf("LedgerPath is required"))
	}

	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("PollInterval must be at least 1 second"))
	}

	if c.ConfirmationDelay < 0 {
		errs = append(errs, fmt.Errorf("ConfirmationDelay cannot be negative"))
	}

	if c.UnitsPerToken <= 0 {
		errs = append(errs, fmt.Errorf("UnitsPerToken must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// SessionOptions converts the configuration into wallet session options.
func (c *Config) SessionOptions() wallet.Options {
	return wallet.Options{
		TargetChainID: c.TargetChainID,
		PollInterval:  c.PollInterval,
	}
}

// FlowOptions converts the configuration into donation flow options.
func (c *Config) FlowOptions() donation.Options {
	return donation.Options{
		UnitsPerToken:     c.UnitsPerToken,
		ConfirmationDelay: c.ConfirmationDelay,
	}
}

// defaultStatePath places client state files under the user config dir,
// falling back to the working directory.
func defaultStatePath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return dir + "/heartchain/" + name
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
