package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/gasless/service/mint"
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
	NATSURL              string
	IndexerStreamSubject string

	// Solana configuration
	SolanaRPCURL string

	// Relay configuration
	RelayWalletPrivateKey string
	RelayFeeBaseUnits     uint64
	Mints                 []mint.Config

	// Price quoting
	PriceAPIURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Reconcile sweep configuration
	SweepInterval time.Duration
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
	cfg.IndexerStreamSubject = getEnvOrDefault("INDEXER_STREAM_SUBJECT", "indexer.txns")

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	// Relay configuration
	cfg.RelayWalletPrivateKey = os.Getenv("RELAY_WALLET_PRIVATE_KEY")
	if cfg.RelayWalletPrivateKey == "" {
		errs = append(errs, fmt.Errorf("RELAY_WALLET_PRIVATE_KEY is required"))
	}

	relayFee, err := parseUint64("RELAY_FEE_BASE_UNITS", "500000")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RelayFeeBaseUnits = relayFee
	}

	mints, err := parseMints(os.Getenv("SUPPORTED_MINTS"))
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.Mints = mints
	}

	// Price quoting
	cfg.PriceAPIURL = getEnvOrDefault("PRICE_API_URL", "https://api.coingecko.com/api/v3")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "gasless-reconcile-sweep")

	// Reconcile sweep configuration
	sweepInterval, err := parseDuration("SWEEP_INTERVAL", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SweepInterval = sweepInterval
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

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.RelayWalletPrivateKey == "" {
		errs = append(errs, fmt.Errorf("RelayWalletPrivateKey is required"))
	}

	if c.RelayFeeBaseUnits == 0 {
		errs = append(errs, fmt.Errorf("RelayFeeBaseUnits must be greater than zero"))
	}

	if len(c.Mints) == 0 {
		errs = append(errs, fmt.Errorf("at least one supported mint is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.SweepInterval < time.Second {
		errs = append(errs, fmt.Errorf("SweepInterval must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// parseMints parses the SUPPORTED_MINTS environment variable.
// Format: comma-separated symbol:address:decimals triples, e.g.
// "USDC:EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v:6,USDT:Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB:6"
func parseMints(raw string) ([]mint.Config, error) {
	if raw == "" {
		return nil, fmt.Errorf("SUPPORTED_MINTS is required")
	}

	var mints []mint.Config
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("SUPPORTED_MINTS: invalid entry %q, want symbol:address:decimals", entry)
		}
		decimals, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("SUPPORTED_MINTS: invalid decimals in %q: %w", entry, err)
		}
		mints = append(mints, mint.Config{
			Symbol:   parts[0],
			Address:  parts[1],
			Decimals: uint8(decimals),
		})
	}
	if len(mints) == 0 {
		return nil, fmt.Errorf("SUPPORTED_MINTS contains no entries")
	}
	return mints, nil
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

// parseUint64 parses an unsigned integer from an environment variable or uses a default.
func parseUint64(key, defaultValue string) (uint64, error) {
	value := getEnvOrDefault(key, defaultValue)
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
