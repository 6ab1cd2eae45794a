package config

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	AuthJWTSecret  string
	AuthTokenTTL   time.Duration
	AdminTokenHash string

	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RateLimit RateLimitConfig
	Credits   CreditsConfig
	Pricing   PricingConfig
}

type RateLimitConfig struct {
	Enabled           bool
	Backend           string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	SweepInterval     time.Duration
	TrustForwardedFor bool
	PolicyFile        string
}

// CreditsConfig amounts are in whole credits; the ledger converts them to
// its fixed-point representation.
type CreditsConfig struct {
	MonthlyBonus float64
	SignupGrant  float64
	// MaxGrant caps a single addition. Refunds are exempt.
	MaxGrant     float64
}

type PricingConfig struct {
	CatalogPath string
}

// ObservabilityConfig covers logs, traces, metrics and SQL logging.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OtelEndpoint      string
	OtelProtocol      string
	OtelSamplingRatio float64

	RemoteWriteURL      string
	RemoteWriteToken    string
	RemoteWriteInterval time.Duration

	// DBLogLevel is one of silent, error, warn or info.
	DBLogLevel      string
	DBSlowThreshold time.Duration
}

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:        getenv("APP_SERVICE", "creditgate"),
		AppVersion:     getenv("APP_VERSION", "0.1.0"),
		Environment:    environment,
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		NodeID:         int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		AuthJWTSecret:  strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthTokenTTL:   getenvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		AdminTokenHash: strings.TrimSpace(getenv("ADMIN_TOKEN_HASH", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "creditgate"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "creditgate.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RateLimit: RateLimitConfig{
			Enabled:           getenvBool("RATE_LIMIT_ENABLED", true),
			Backend:           normalizeBackend(getenv("RATE_LIMIT_BACKEND", RateLimitBackendMemory)),
			RedisAddr:         strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_PASSWORD", "")),
			RedisDB:           getenvInt("RATE_LIMIT_REDIS_DB", 0),
			SweepInterval:     getenvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
			TrustForwardedFor: getenvBool("RATE_LIMIT_TRUST_FORWARDED_FOR", false),
			PolicyFile:        strings.TrimSpace(getenv("RATE_LIMIT_POLICY_FILE", "")),
		},
		Credits: CreditsConfig{
			MonthlyBonus: getenvFloat("CREDITS_MONTHLY_BONUS", 5),
			SignupGrant:  getenvFloat("CREDITS_SIGNUP_GRANT", 0),
			MaxGrant:     getenvFloat("CREDITS_MAX_GRANT", 100000),
		},
		Pricing: PricingConfig{
			CatalogPath: strings.TrimSpace(getenv("PRICING_CATALOG_PATH", "")),
		},
		Observability: ObservabilityConfig{
			LogLevel:            lower(getenv("LOG_LEVEL", "info")),
			LogFormat:           lower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:         getenvBool("OTEL_ENABLED", true),
			OtelEndpoint:        strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OtelProtocol:        lower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			OtelSamplingRatio:   getenvRatio("OTEL_SAMPLING_RATIO", 0.1),
			RemoteWriteURL:      strings.TrimSpace(getenv("METRICS_REMOTE_WRITE_URL", "")),
			RemoteWriteToken:    strings.TrimSpace(getenv("METRICS_REMOTE_WRITE_TOKEN", "")),
			RemoteWriteInterval: getenvDuration("METRICS_REMOTE_WRITE_INTERVAL", 30*time.Second),
			DBLogLevel:          lower(getenv("DATABASE_LOG_LEVEL", "warn")),
			DBSlowThreshold:     getenvDuration("DATABASE_SLOW_THRESHOLD", 200*time.Millisecond),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// IsDevelopment is true for local and test environments.
func (c Config) IsDevelopment() bool {
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// DebugLogging enables verbose request and error logs.
func (c Config) DebugLogging() bool {
	return c.Observability.LogLevel == "debug" || c.IsDevelopment()
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case RateLimitBackendRedis:
		return RateLimitBackendRedis
	default:
		return RateLimitBackendMemory
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed < 0 {
		return def
	}
	return parsed
}

func getenvRatio(key string, def float64) float64 {
	value := getenvFloat(key, def)
	if value > 1 {
		return 1
	}
	return value
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
