package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kitbuilder587/rankwatch/internal/domain"
)

var (
	ErrMissingDB       = errors.New("DATABASE_URL is required")
	ErrInvalidStrategy = errors.New("invalid rotation strategy")
	ErrNoCredentials   = errors.New("no API credentials configured")
)

type RotationStrategy string

const (
	RotationPriority   RotationStrategy = "priority"
	RotationLeastUsed  RotationStrategy = "least_used"
	RotationRoundRobin RotationStrategy = "round_robin"
)

func (s RotationStrategy) IsValid() bool {
	return s == RotationPriority || s == RotationLeastUsed || s == RotationRoundRobin
}

type Config struct {
	Database  DatabaseConfig
	HTTP      HTTPConfig
	Pool      PoolConfig
	Bulk      BulkConfig
	RateLimit RateLimitConfig
	Cleanup   CleanupConfig
	Providers ProviderConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	URL string
}

type HTTPConfig struct {
	Addr         string
	BodyLimit    int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DevMode      bool
}

// CredentialEntry is one numbered credential from the environment
// (SERP_API_KEY_1, SERP_API_KEY_1_DAILY_LIMIT, ...).
type CredentialEntry struct {
	Number       int
	Provider     domain.Provider
	Secret       string
	EngineID     string
	DailyLimit   int
	MonthlyLimit int
}

type PoolConfig struct {
	Entries        []CredentialEntry
	Strategy       RotationStrategy
	RequestTimeout time.Duration
	MaxRetries     int
	RateLimitPause time.Duration
}

type BulkConfig struct {
	BatchSize       int
	InterBatchDelay time.Duration
	MaxConcurrent   int
	RetryEnabled    bool
	MaxRetries      int
	AdaptiveDelay   bool
	Budget          time.Duration
}

type RateLimitConfig struct {
	Window time.Duration
	Max    int
}

type CleanupConfig struct {
	RetentionDays int
}

type ProviderConfig struct {
	NativeBaseURL string
	CustomBaseURL string
}

type LogConfig struct {
	Level string
}

const maxCredentialEntries = 50

func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		HTTP: HTTPConfig{
			Addr:         getEnvOrDefault("HTTP_ADDR", ":8080"),
			BodyLimit:    int64(getEnvIntOrDefault("HTTP_BODY_LIMIT_BYTES", 1<<20)),
			ReadTimeout:  time.Duration(getEnvIntOrDefault("HTTP_READ_TIMEOUT_SEC", 15)) * time.Second,
			WriteTimeout: time.Duration(getEnvIntOrDefault("HTTP_WRITE_TIMEOUT_SEC", 300)) * time.Second,
			DevMode:      getEnvBoolOrDefault("DEV_MODE", false),
		},
		Pool: PoolConfig{
			Entries:        loadCredentialEntries(),
			Strategy:       RotationStrategy(getEnvOrDefault("ROTATION_STRATEGY", string(RotationPriority))),
			RequestTimeout: time.Duration(getEnvIntOrDefault("REQUEST_TIMEOUT_MS", 30000)) * time.Millisecond,
			MaxRetries:     getEnvIntOrDefault("POOL_MAX_RETRIES", 3),
			RateLimitPause: time.Duration(getEnvIntOrDefault("RATE_LIMIT_PAUSE_MS", 60000)) * time.Millisecond,
		},
		Bulk: BulkConfig{
			BatchSize:       getEnvIntOrDefault("BULK_BATCH_SIZE", 5),
			InterBatchDelay: time.Duration(getEnvIntOrDefault("BULK_INTER_BATCH_DELAY_MS", 2000)) * time.Millisecond,
			MaxConcurrent:   getEnvIntOrDefault("BULK_MAX_CONCURRENT", 2),
			RetryEnabled:    getEnvBoolOrDefault("BULK_RETRY_ENABLED", true),
			MaxRetries:      getEnvIntOrDefault("BULK_MAX_RETRIES", 2),
			AdaptiveDelay:   getEnvBoolOrDefault("BULK_ADAPTIVE_DELAY", true),
			Budget:          time.Duration(getEnvIntOrDefault("BULK_BUDGET_MS", 290000)) * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Window: time.Duration(getEnvIntOrDefault("RATE_LIMIT_WINDOW_SEC", 60)) * time.Second,
			Max:    getEnvIntOrDefault("RATE_LIMIT_MAX", 60),
		},
		Cleanup: CleanupConfig{
			RetentionDays: getEnvIntOrDefault("CLEANUP_RETENTION_DAYS", 90),
		},
		Providers: ProviderConfig{
			NativeBaseURL: getEnvOrDefault("SERP_BASE_URL", "https://serpapi.com"),
			CustomBaseURL: getEnvOrDefault("CUSTOM_SEARCH_BASE_URL", "https://www.googleapis.com/customsearch/v1"),
		},
		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadCredentialEntries reads SERP_API_KEY_1..N and CUSTOM_SEARCH_KEY_1..N
// with their optional per-entry limits. Gaps in numbering stop the scan.
func loadCredentialEntries() []CredentialEntry {
	var entries []CredentialEntry

	for i := 1; i <= maxCredentialEntries; i++ {
		secret := os.Getenv(fmt.Sprintf("SERP_API_KEY_%d", i))
		if secret == "" {
			break
		}
		entries = append(entries, CredentialEntry{
			Number:       i,
			Provider:     domain.ProviderNativeSERP,
			Secret:       secret,
			DailyLimit:   getEnvIntOrDefault(fmt.Sprintf("SERP_API_KEY_%d_DAILY_LIMIT", i), 100),
			MonthlyLimit: getEnvIntOrDefault(fmt.Sprintf("SERP_API_KEY_%d_MONTHLY_LIMIT", i), 0),
		})
	}

	for i := 1; i <= maxCredentialEntries; i++ {
		secret := os.Getenv(fmt.Sprintf("CUSTOM_SEARCH_KEY_%d", i))
		if secret == "" {
			break
		}
		entries = append(entries, CredentialEntry{
			Number:       i,
			Provider:     domain.ProviderCustomSearch,
			Secret:       secret,
			EngineID:     os.Getenv(fmt.Sprintf("CUSTOM_SEARCH_CX_%d", i)),
			DailyLimit:   getEnvIntOrDefault(fmt.Sprintf("CUSTOM_SEARCH_KEY_%d_DAILY_LIMIT", i), 100),
			MonthlyLimit: getEnvIntOrDefault(fmt.Sprintf("CUSTOM_SEARCH_KEY_%d_MONTHLY_LIMIT", i), 0),
		})
	}

	return entries
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return ErrMissingDB
	}
	if !c.Pool.Strategy.IsValid() {
		return ErrInvalidStrategy
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
