package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"cryptoPaperTrader/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API (optional; the ticker endpoints used by the oracle are public)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Market
	Symbols              []string      // Supported trading symbols
	PriceRefreshInterval time.Duration // Background price refresh cadence
	PriceMaxAge          time.Duration // Oldest cached quote still served

	// Trading
	FeeRate           decimal.Decimal // Fraction of notional charged per trade (0.001 = 0.1%)
	OpeningBalance    decimal.Decimal // Virtual cash granted to a new account
	MaxTradeRetries   int             // Conflict retries inside the engine
	RequestTimeout    time.Duration   // Bound on oracle calls and ledger commits
	RecentTradesLimit int             // Default page size for recent trades

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// defaultSymbols mirrors the coins the platform supports out of the box.
var defaultSymbols = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "USDCUSDT", "XRPUSDT",
	"ADAUSDT", "DOGEUSDT", "SOLUSDT", "TRXUSDT",
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Market
	symbolsStr := getEnv("SYMBOLS", "")
	if symbolsStr == "" {
		cfg.Symbols = defaultSymbols
	} else {
		for _, s := range strings.Split(symbolsStr, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" {
				cfg.Symbols = append(cfg.Symbols, s)
			}
		}
		if len(cfg.Symbols) == 0 {
			errs = append(errs, "SYMBOLS must contain at least one symbol")
		}
	}

	refreshSeconds := getEnvAsInt("PRICE_REFRESH_SECONDS", 60)
	if refreshSeconds <= 0 {
		errs = append(errs, "PRICE_REFRESH_SECONDS must be positive")
	}
	cfg.PriceRefreshInterval = time.Duration(refreshSeconds) * time.Second

	maxAgeSeconds := getEnvAsInt("PRICE_MAX_AGE_SECONDS", 120)
	if maxAgeSeconds <= 0 {
		errs = append(errs, "PRICE_MAX_AGE_SECONDS must be positive")
	}
	cfg.PriceMaxAge = time.Duration(maxAgeSeconds) * time.Second

	// Trading
	cfg.FeeRate, err = getEnvAsDecimal("FEE_RATE", "0.001")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FEE_RATE: %v", err))
	} else if cfg.FeeRate.IsNegative() || cfg.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "FEE_RATE must be in [0, 1)")
	}

	cfg.OpeningBalance, err = getEnvAsDecimal("OPENING_BALANCE", "100000")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid OPENING_BALANCE: %v", err))
	} else if cfg.OpeningBalance.IsNegative() {
		errs = append(errs, "OPENING_BALANCE cannot be negative")
	}

	cfg.MaxTradeRetries = getEnvAsInt("MAX_TRADE_RETRIES", 3)
	if cfg.MaxTradeRetries <= 0 {
		errs = append(errs, "MAX_TRADE_RETRIES must be positive")
	}

	timeoutSeconds := getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 5)
	if timeoutSeconds <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT_SECONDS must be positive")
	}
	cfg.RequestTimeout = time.Duration(timeoutSeconds) * time.Second

	cfg.RecentTradesLimit = getEnvAsInt("RECENT_TRADES_LIMIT", 5)
	if cfg.RecentTradesLimit <= 0 {
		errs = append(errs, "RECENT_TRADES_LIMIT must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/paper_trader.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
