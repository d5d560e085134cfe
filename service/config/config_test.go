package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartchain/heartchain/service/chains"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Setup environment variables
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "http://localhost:8545", cfg.WalletRPCURL)
	assert.Equal(t, chains.ShardeumSphinxChainID, cfg.TargetChainID)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.ConfirmationDelay)
	assert.Equal(t, int64(1000), cfg.UnitsPerToken)
	assert.Empty(t, cfg.ReplicationURL)
	assert.NotEmpty(t, cfg.LedgerPath)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestLoad_InvalidChainID(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("TARGET_CHAIN_ID", "8082")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "TARGET_CHAIN_ID")
}

func TestLoad_InvalidPollInterval(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("POLL_INTERVAL", "invalid")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_InvalidUnitsPerToken(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("UNITS_PER_TOKEN", "-5")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "UNITS_PER_TOKEN must be positive")
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("WALLET_RPC_URL", "https://sphinx.shardeum.org/")
	os.Setenv("TARGET_CHAIN_ID", "0x539")
	os.Setenv("LEDGER_PATH", "/tmp/heartchain/ledger.json")
	os.Setenv("REPLICATION_URL", "https://ledger.example.com")
	os.Setenv("POLL_INTERVAL", "10s")
	os.Setenv("CONFIRMATION_DELAY", "500ms")
	os.Setenv("UNITS_PER_TOKEN", "2000")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "https://sphinx.shardeum.org/", cfg.WalletRPCURL)
	assert.Equal(t, "0x539", cfg.TargetChainID)
	assert.Equal(t, "/tmp/heartchain/ledger.json", cfg.LedgerPath)
	assert.Equal(t, "https://ledger.example.com", cfg.ReplicationURL)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.ConfirmationDelay)
	assert.Equal(t, int64(2000), cfg.UnitsPerToken)
}

func TestValidate(t *testing.T) {
	valid := &Config{
		DatabaseURL:       "postgres://localhost/test",
		WalletRPCURL:      "http://localhost:8545",
		TargetChainID:     chains.ShardeumSphinxChainID,
		LedgerPath:        "transactions.json",
		PollInterval:      5 * time.Second,
		ConfirmationDelay: 2 * time.Second,
		UnitsPerToken:     1000,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing database", func(c *Config) { c.DatabaseURL = "" }, "DatabaseURL is required"},
		{"missing wallet rpc", func(c *Config) { c.WalletRPCURL = "" }, "WalletRPCURL is required"},
		{"bad chain id", func(c *Config) { c.TargetChainID = "8082" }, "0x-prefixed"},
		{"missing ledger path", func(c *Config) { c.LedgerPath = "" }, "LedgerPath is required"},
		{"short poll interval", func(c *Config) { c.PollInterval = 100 * time.Millisecond }, "at least 1 second"},
		{"negative delay", func(c *Config) { c.ConfirmationDelay = -time.Second }, "cannot be negative"},
		{"zero rate", func(c *Config) { c.UnitsPerToken = 0 }, "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSessionAndFlowOptions(t *testing.T) {
	cfg := &Config{
		TargetChainID:     "0x539",
		PollInterval:      7 * time.Second,
		ConfirmationDelay: time.Second,
		UnitsPerToken:     1500,
	}

	opts := cfg.SessionOptions()
	assert.Equal(t, "0x539", opts.TargetChainID)
	assert.Equal(t, 7*time.Second, opts.PollInterval)

	flowOpts := cfg.FlowOptions()
	assert.Equal(t, int64(1500), flowOpts.UnitsPerToken)
	assert.Equal(t, time.Second, flowOpts.ConfirmationDelay)
}

// cleanupEnv removes every variable Load reads.
func cleanupEnv() {
	vars := []string{
		"DATABASE_URL", "SERVER_ADDR", "LOG_LEVEL", "NATS_URL",
		"WALLET_RPC_URL", "TARGET_CHAIN_ID", "LEDGER_PATH", "FLAG_PATH",
		"REPLICATION_URL", "POLL_INTERVAL", "CONFIRMATION_DELAY",
		"UNITS_PER_TOKEN",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
