package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	CORS      CORSConfig
	Log       LogConfig
	Cache     CacheConfig
	Providers ProvidersConfig
	Batch     BatchConfig
	Snapshot  SnapshotConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Pretty bool
}

// CacheConfig controls the hot price cache.
//
// Backend selects the key-value store: "memory" keeps entries in-process,
// "sqlite" stores them in the hot_cache table so several processes sharing
// one database file also share cached quotes.
type CacheConfig struct {
	Backend string
	TTL     time.Duration
}

// ProvidersConfig holds settings for the external quote providers.
type ProvidersConfig struct {
	Timeout           time.Duration
	MaxQuoteAge       time.Duration
	MaxClockSkew      time.Duration
	DomesticPrefixes  []string
	YahooBaseURL      string
	AlphaVantageURL   string
	AlphaVantageKey   string
	BinanceBaseURL    string
	BinanceAPIKey     string
	BinanceQuoteAsset string
	TradegateBaseURL  string
}

// BatchConfig controls the batch fetch orchestrator.
type BatchConfig struct {
	MaxConcurrent int
}

// SnapshotConfig controls the periodic price snapshot job.
type SnapshotConfig struct {
	Enabled         bool
	Schedule        string
	BatchSize       int
	BatchDelay      time.Duration
	MaxBatchDelay   time.Duration
	Deadline        time.Duration
	RecentWindow    time.Duration
	FallbackLimit   int
	FreshnessWindow time.Duration
	CleanupSchedule string
}

// Load reads configuration from environment variables and .env file.
//
// Secrets (ALPHAVANTAGE_API_KEY, BINANCE_API_KEY) may be given in the
// "fernet:<token>" form, in which case CONFIG_ENCRYPTION_KEY must hold the
// base64 Fernet key used to decrypt them.
//
// Returns:
//   - *Config: fully populated configuration
//   - error: if a numeric or duration variable is malformed, or an encrypted
//     secret cannot be decrypted
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var errs []string
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	durVar := func(key string, def time.Duration) time.Duration {
		v, err := getEnvDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/portfolio_valuation.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost",
			}),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvBool("LOG_PRETTY", false),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
			TTL:     durVar("CACHE_TTL", 60*time.Second),
		},
		Providers: ProvidersConfig{
			Timeout:           durVar("PROVIDER_TIMEOUT", 5*time.Second),
			MaxQuoteAge:       durVar("PROVIDER_MAX_QUOTE_AGE", 96*time.Hour),
			MaxClockSkew:      durVar("PROVIDER_MAX_CLOCK_SKEW", 5*time.Minute),
			DomesticPrefixes:  getEnvList("DOMESTIC_ISIN_PREFIXES", []string{"DE"}),
			YahooBaseURL:      getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			AlphaVantageURL:   getEnv("ALPHAVANTAGE_BASE_URL", "https://www.alphavantage.co"),
			AlphaVantageKey:   getEnv("ALPHAVANTAGE_API_KEY", ""),
			BinanceBaseURL:    getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
			BinanceAPIKey:     getEnv("BINANCE_API_KEY", ""),
			BinanceQuoteAsset: getEnv("BINANCE_QUOTE_ASSET", "USDT"),
			TradegateBaseURL:  getEnv("TRADEGATE_BASE_URL", "https://www.tradegate.de"),
		},
		Batch: BatchConfig{
			MaxConcurrent: intVar("BATCH_MAX_CONCURRENT", 10),
		},
		Snapshot: SnapshotConfig{
			Enabled:         getEnvBool("SNAPSHOT_ENABLED", true),
			Schedule:        getEnv("SNAPSHOT_SCHEDULE", "0 */15 * * * *"),
			BatchSize:       intVar("SNAPSHOT_BATCH_SIZE", 20),
			BatchDelay:      durVar("SNAPSHOT_BATCH_DELAY", time.Second),
			MaxBatchDelay:   durVar("SNAPSHOT_MAX_BATCH_DELAY", 30*time.Second),
			Deadline:        durVar("SNAPSHOT_DEADLINE", 4*time.Minute),
			RecentWindow:    durVar("SNAPSHOT_RECENT_WINDOW", 30*24*time.Hour),
			FallbackLimit:   intVar("SNAPSHOT_FALLBACK_LIMIT", 50),
			FreshnessWindow: durVar("SNAPSHOT_FRESHNESS_WINDOW", 15*time.Minute),
			CleanupSchedule: getEnv("CACHE_CLEANUP_SCHEDULE", "@hourly"),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	encryptionKey := os.Getenv("CONFIG_ENCRYPTION_KEY")
	var err error
	if config.Providers.AlphaVantageKey, err = decryptSecret(config.Providers.AlphaVantageKey, encryptionKey); err != nil {
		return nil, fmt.Errorf("ALPHAVANTAGE_API_KEY: %w", err)
	}
	if config.Providers.BinanceAPIKey, err = decryptSecret(config.Providers.BinanceAPIKey, encryptionKey); err != nil {
		return nil, fmt.Errorf("BINANCE_API_KEY: %w", err)
	}

	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvDuration accepts Go duration strings ("90s", "4m") and bare integers,
// which are read as seconds.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be a duration, got %q", key, value)
	}
	return d, nil
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
