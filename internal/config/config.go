// Package config loads runtime settings from the environment, after an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreBigQuery = "bigquery"
)

// Config holds every setting the binaries read.
type Config struct {
	Port     string
	LogLevel string

	StoreDriver string
	SQLitePath  string
	BQProjectID string
	BQDataset   string

	ToleranceRelative      decimal.Decimal
	ToleranceAbsoluteFloor decimal.Decimal
	MatchDateWindowDays    int
	BatchWorkers           int
	SummaryCacheTTL        time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	ExportBucket       string
	NotionToken        string
	NotionVarianceDBID string
	GeminiModel        string
}

// Load reads .env if present, then the environment. Malformed values are
// errors rather than silent defaults.
func Load() (*Config, error) {
	// A missing .env is normal in deployed environments.
	_ = godotenv.Load()

	var err error
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		SQLitePath:         getEnv("SQLITE_PATH", "reconciliation.db"),
		BQProjectID:        getEnv("BQ_PROJECT_ID", ""),
		BQDataset:          getEnv("BQ_DATASET", "reconciliation"),
		ExportBucket:       getEnv("EXPORT_BUCKET", ""),
		NotionToken:        getEnv("NOTION_TOKEN", ""),
		NotionVarianceDBID: getEnv("NOTION_VARIANCE_DB_ID", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
	}

	if cfg.ToleranceRelative, err = getEnvAsDecimal("TOLERANCE_RELATIVE", "0.01"); err != nil {
		return nil, err
	}
	if cfg.ToleranceAbsoluteFloor, err = getEnvAsDecimal("TOLERANCE_ABSOLUTE_FLOOR", "1000"); err != nil {
		return nil, err
	}
	if cfg.MatchDateWindowDays, err = getEnvAsInt("MATCH_DATE_WINDOW_DAYS", 30); err != nil {
		return nil, err
	}
	if cfg.BatchWorkers, err = getEnvAsInt("BATCH_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.SummaryCacheTTL, err = getEnvAsDuration("SUMMARY_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getEnvAsFloat("RATE_LIMIT_RPS", 20); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getEnvAsInt("RATE_LIMIT_BURST", 40); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreSQLite:
	case StoreBigQuery:
		if c.BQProjectID == "" {
			return fmt.Errorf("config: BQ_PROJECT_ID is required when STORE_DRIVER=bigquery")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.ToleranceRelative.IsNegative() || c.ToleranceAbsoluteFloor.IsNegative() {
		return fmt.Errorf("config: tolerances must not be negative")
	}
	if c.MatchDateWindowDays < 0 {
		return fmt.Errorf("config: MATCH_DATE_WINDOW_DAYS must not be negative")
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("config: BATCH_WORKERS must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

func getEnvAsDecimal(key, fallback string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}
