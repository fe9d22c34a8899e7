// Package config loads process configuration from the environment, with
// typed defaults and a fail-fast validation pass.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultHost = "0.0.0.0"
	DefaultPort = "8080"

	DefaultMaxUploadBytes = 200 << 20 // 200MB raw CSV/XLSX upload cap

	DefaultHTTPClientTimeout = 30 * time.Second
	DefaultSheetsMaxRetries  = 2

	DefaultTrustedProxies = "127.0.0.1,::1"

	// Per-stage sample/threshold tuning.
	DefaultParseSampleSize   = 1000
	DefaultFuzzyThreshold    = 0.8
	DefaultAmbiguousMinScore = 0.4

	// Per-queue worker concurrency.
	DefaultParseConcurrency    = 5
	DefaultInferConcurrency    = 5
	DefaultMapConcurrency      = 5
	DefaultValidateConcurrency = 3
	DefaultOutputConcurrency   = 3

	// Queue retry policy.
	DefaultMaxRetries  = 3
	DefaultRetryBaseDelay = time.Second

	DefaultBlobStorePath = ".data/blobs"
	DefaultRelDSN        = "file:.data/csv-ingest.db?_pragma=busy_timeout(5000)"

	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultAIRequestTimeout = 15 * time.Second

	DefaultIngestRateLimit = 30
	DefaultRateLimitWindow = time.Minute
)

type Config struct {
	Host        string
	Port        string
	CORSOrigins []string

	MaxUploadBytes int64

	HTTPClientTimeout time.Duration
	SheetsMaxRetries  int

	TrustedProxies []string

	ParseSampleSize   int
	FuzzyThreshold    float64
	AmbiguousMinScore float64

	ParseConcurrency    int
	InferConcurrency    int
	MapConcurrency      int
	ValidateConcurrency int
	OutputConcurrency   int

	MaxRetries     int
	RetryBaseDelay time.Duration

	BlobStorePath      string
	RelationalBackend  string // "sqlite" or "postgres"
	RelationalDSN      string
	QueueBackend       string // "inmemory" or "nats"
	NATSURL            string

	OpenAIAPIKey    string
	OpenAIModel     string
	AIEnabled       bool
	AIRequestTimeout time.Duration

	IngestRateLimit int
	RateLimitWindow time.Duration

	GoogleCredentialsFile string
}

func LoadConfig() *Config {
	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:3000"}
	}

	openAIAPIKey := getEnv("OPENAI_API_KEY", "")
	aiEnabled := openAIAPIKey != ""
	if aiEnabled {
		slog.Info("mapping advisory enabled (OPENAI_API_KEY is set)")
	} else {
		slog.Info("mapping advisory disabled (OPENAI_API_KEY not set)")
	}

	return &Config{
		Host:        getEnv("HOST", DefaultHost),
		Port:        getEnv("PORT", DefaultPort),
		CORSOrigins: corsOrigins,

		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),

		HTTPClientTimeout: getEnvDuration("HTTP_CLIENT_TIMEOUT", DefaultHTTPClientTimeout),
		SheetsMaxRetries:  getEnvInt("SHEETS_MAX_RETRIES", DefaultSheetsMaxRetries),

		TrustedProxies: splitCSV(getEnv("TRUSTED_PROXIES", DefaultTrustedProxies)),

		ParseSampleSize:   getEnvInt("PARSE_SAMPLE_SIZE", DefaultParseSampleSize),
		FuzzyThreshold:    getEnvFloat64("FUZZY_THRESHOLD", DefaultFuzzyThreshold),
		AmbiguousMinScore: getEnvFloat64("AMBIGUOUS_MIN_SCORE", DefaultAmbiguousMinScore),

		ParseConcurrency:    getEnvInt("PARSE_CONCURRENCY", DefaultParseConcurrency),
		InferConcurrency:    getEnvInt("INFER_CONCURRENCY", DefaultInferConcurrency),
		MapConcurrency:      getEnvInt("MAP_CONCURRENCY", DefaultMapConcurrency),
		ValidateConcurrency: getEnvInt("VALIDATE_CONCURRENCY", DefaultValidateConcurrency),
		OutputConcurrency:   getEnvInt("OUTPUT_CONCURRENCY", DefaultOutputConcurrency),

		MaxRetries:     getEnvInt("MAX_RETRIES", DefaultMaxRetries),
		RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", DefaultRetryBaseDelay),

		BlobStorePath:     getEnv("BLOB_STORE_PATH", DefaultBlobStorePath),
		RelationalBackend: getEnv("RELATIONAL_BACKEND", "sqlite"),
		RelationalDSN:     getEnv("RELATIONAL_DSN", DefaultRelDSN),
		QueueBackend:      getEnv("QUEUE_BACKEND", "inmemory"),
		NATSURL:           getEnv("NATS_URL", "nats://127.0.0.1:4222"),

		OpenAIAPIKey:     openAIAPIKey,
		OpenAIModel:      getEnv("OPENAI_MODEL", DefaultOpenAIModel),
		AIEnabled:        aiEnabled,
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", DefaultAIRequestTimeout),

		IngestRateLimit: getEnvInt("INGEST_RATE_LIMIT", DefaultIngestRateLimit),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", DefaultRateLimitWindow),

		GoogleCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
	}
}

// ValidateConfig checks config values and returns an error on failure.
// Call after LoadConfig to fail fast on invalid configuration.
func ValidateConfig(cfg *Config) error {
	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.Port != "" {
		if _, err := strconv.Atoi(cfg.Port); err != nil {
			return fmt.Errorf("PORT must be numeric, got %q", cfg.Port)
		}
	}
	if len(cfg.CORSOrigins) == 0 {
		return fmt.Errorf("CORS_ORIGINS must have at least one origin")
	}
	for _, origin := range cfg.CORSOrigins {
		if origin == "" || !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("CORS_ORIGINS entry %q must be a valid http(s) URL", origin)
		}
	}
	if cfg.FuzzyThreshold <= 0 || cfg.FuzzyThreshold > 1 {
		return fmt.Errorf("FUZZY_THRESHOLD must be in range (0,1]")
	}
	if cfg.AmbiguousMinScore < 0 || cfg.AmbiguousMinScore > 1 {
		return fmt.Errorf("AMBIGUOUS_MIN_SCORE must be in range [0,1]")
	}
	if cfg.ParseConcurrency <= 0 || cfg.InferConcurrency <= 0 || cfg.MapConcurrency <= 0 ||
		cfg.ValidateConcurrency <= 0 || cfg.OutputConcurrency <= 0 {
		return fmt.Errorf("per-stage concurrency values must be positive")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative")
	}
	if cfg.IngestRateLimit <= 0 {
		return fmt.Errorf("INGEST_RATE_LIMIT must be positive")
	}
	if cfg.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if cfg.QueueBackend != "inmemory" && cfg.QueueBackend != "nats" {
		return fmt.Errorf("QUEUE_BACKEND must be 'inmemory' or 'nats', got %q", cfg.QueueBackend)
	}
	if cfg.RelationalBackend != "sqlite" && cfg.RelationalBackend != "postgres" {
		return fmt.Errorf("RELATIONAL_BACKEND must be 'sqlite' or 'postgres', got %q", cfg.RelationalBackend)
	}
	if len(cfg.TrustedProxies) == 0 {
		return fmt.Errorf("TRUSTED_PROXIES must have at least one entry")
	}
	for _, proxy := range cfg.TrustedProxies {
		if proxy == "" {
			return fmt.Errorf("TRUSTED_PROXIES must not contain empty entries")
		}
		if net.ParseIP(proxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(proxy); err == nil {
			continue
		}
		return fmt.Errorf("TRUSTED_PROXIES entry %q must be a valid IP or CIDR", proxy)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat64(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var items []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
