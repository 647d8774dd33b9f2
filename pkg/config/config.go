package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Index generation
	Index IndexConfig

	// Reference data sources
	RefData RefDataConfig

	// Daily close ingestion
	Prices PricesConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL / TimescaleDB configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// IndexConfig holds the equiweighted index policy.
// Values come from INDEX_* variables and may be overridden by a YAML overlay (see LoadIndexOverlay).
type IndexConfig struct {
	IndexType       string        `yaml:"index_type"`
	BaseValue       float64       `yaml:"base_value"`
	MinConstituents int           `yaml:"min_constituents"`
	MaxMissingRatio float64       `yaml:"max_missing_ratio"`
	BatchSize       int           `yaml:"batch_size"`
	Workers         int           `yaml:"workers"`
	StoreRetries    int           `yaml:"store_retries"`
	StoreRetryDelay time.Duration `yaml:"store_retry_delay"`
	LookbackDays    int           `yaml:"lookback_days"`
	Schedule        string        `yaml:"schedule"`
}

// RefDataConfig holds the reference data (sector/industry) source settings
type RefDataConfig struct {
	// CSV URLs in priority order; the first non-empty field wins on merge
	SourceURLs     []string
	DefaultSector  string
	SymbolSuffix   string
	RequestsPerSec float64
	Timeout        time.Duration
	MaxRetries     int
}

// PricesConfig holds the daily close source and update policy
type PricesConfig struct {
	SourceURL     string // chart API base, symbol and query are appended
	SourceName    string
	Enabled       bool // registers the price_update job
	Workers       int
	HistoryDays   int // window fetched for a symbol with no stored closes
	Schedule      string
	SymbolTimeout time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: the only function that calls os.Getenv()
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Index: IndexConfig{
			IndexType:       getEnv("INDEX_TYPE", DefaultIndexType),
			BaseValue:       getEnvAsFloat("INDEX_BASE_VALUE", 1000),
			MinConstituents: getEnvAsInt("INDEX_MIN_CONSTITUENTS", 3),
			MaxMissingRatio: getEnvAsFloat("INDEX_MAX_MISSING_RATIO", 0.5),
			BatchSize:       getEnvAsInt("INDEX_BATCH_SIZE", 50),
			Workers:         getEnvAsInt("INDEX_WORKERS", 1),
			StoreRetries:    getEnvAsInt("INDEX_STORE_RETRIES", 2),
			StoreRetryDelay: getEnvAsDuration("INDEX_STORE_RETRY_DELAY", "2s"),
			LookbackDays:    getEnvAsInt("INDEX_LOOKBACK_DAYS", 365),
			Schedule:        getEnv("INDEX_SCHEDULE", "0 30 18 * * 1-5"),
		},

		RefData: RefDataConfig{
			SourceURLs:     getEnvAsList("REFDATA_SOURCE_URLS", nil),
			DefaultSector:  getEnv("REFDATA_DEFAULT_SECTOR", ""),
			SymbolSuffix:   getEnv("REFDATA_SYMBOL_SUFFIX", ".NS"),
			RequestsPerSec: getEnvAsFloat("REFDATA_REQUESTS_PER_SEC", 1),
			Timeout:        getEnvAsDuration("REFDATA_TIMEOUT", "30s"),
			MaxRetries:     getEnvAsInt("REFDATA_MAX_RETRIES", 3),
		},

		Prices: PricesConfig{
			SourceURL:     getEnv("PRICES_SOURCE_URL", "https://query1.finance.yahoo.com/v8/finance/chart"),
			SourceName:    getEnv("PRICES_SOURCE_NAME", "yahoo"),
			Enabled:       getEnvAsBool("PRICES_UPDATE_ENABLED", true),
			Workers:       getEnvAsInt("PRICES_WORKERS", 4),
			HistoryDays:   getEnvAsInt("PRICES_HISTORY_DAYS", 365),
			Schedule:      getEnv("PRICES_SCHEDULE", "0 0 18 * * 1-5"),
			SymbolTimeout: getEnvAsDuration("PRICES_SYMBOL_TIMEOUT", "1m"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Prices.Workers < 1 {
		return fmt.Errorf("PRICES_WORKERS must be at least 1")
	}
	if c.Prices.HistoryDays < 1 {
		return fmt.Errorf("PRICES_HISTORY_DAYS must be at least 1")
	}

	return c.Index.Validate()
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
