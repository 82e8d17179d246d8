package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the alert executor.
// Trading settings and exchange credentials are not here: they live in the
// settings store and are edited at runtime.
type Config struct {
	Port string

	// Storage
	DBPath        string
	LedgerBackend string // "sqlite" (default), "postgres", "blob"
	DatabaseURL   string // postgres DSN when LedgerBackend is "postgres"

	// Pipeline
	DefaultExchange     string
	GatewayTimeout      time.Duration
	ExchangesFile       string // optional YAML endpoint overrides
	RejectAmbiguousSide bool

	// Background entry point
	Workers            int
	QueueSize          int
	BackgroundDeadline time.Duration
	WebhookToken       string

	// Auth
	JWTSecret         string
	AdminUser         string
	AdminPasswordHash string // bcrypt
	TokenTTL          time.Duration
	RateLimitRPS      float64
	RateLimitBurst    int

	// Maintenance
	AlertRetention     time.Duration
	StalePendingAfter  time.Duration
	PruneSchedule      string // cron spec
	StaleCheckSchedule string // cron spec

	// Logging
	LogLevel  string
	LogFormat string // "json" or "console"
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		DBPath:              getEnv("DB_PATH", "./data/alerts.db"),
		LedgerBackend:       strings.ToLower(getEnv("LEDGER_BACKEND", "sqlite")),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DefaultExchange:     strings.ToLower(getEnv("DEFAULT_EXCHANGE", "binance")),
		GatewayTimeout:      getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second),
		ExchangesFile:       os.Getenv("EXCHANGES_FILE"),
		RejectAmbiguousSide: getEnv("REJECT_AMBIGUOUS_SIDE", "false") == "true",
		Workers:             getEnvInt("WORKERS", 4),
		QueueSize:           getEnvInt("QUEUE_SIZE", 256),
		BackgroundDeadline:  getEnvDuration("BACKGROUND_DEADLINE", 30*time.Second),
		WebhookToken:        os.Getenv("WEBHOOK_TOKEN"),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
		AdminUser:           getEnv("ADMIN_USER", "admin"),
		AdminPasswordHash:   os.Getenv("ADMIN_PASSWORD_HASH"),
		TokenTTL:            getEnvDuration("TOKEN_TTL", 24*time.Hour),
		RateLimitRPS:        getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:      getEnvInt("RATE_LIMIT_BURST", 40),
		AlertRetention:      getEnvDuration("ALERT_RETENTION", 30*24*time.Hour),
		StalePendingAfter:   getEnvDuration("STALE_PENDING_AFTER", 24*time.Hour),
		PruneSchedule:       getEnv("PRUNE_SCHEDULE", "@daily"),
		StaleCheckSchedule:  getEnv("STALE_CHECK_SCHEDULE", "@every 1h"),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
