// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetAsynqQueueName() string
}

// ReconcilerConfig provides the appointment matching windows.
// The 5 and 10 minute defaults come from the upstream product; they are
// tunable parameters, not invariants.
type ReconcilerConfig interface {
	GetMatchWindow() time.Duration
	GetNameMatchWindow() time.Duration
}

// BillingConfig provides metering and replenishment settings.
type BillingConfig interface {
	GetDefaultRatePerMinuteCents() int64
	GetOperatorCostPerMinuteCents() int64
	GetReplenishFloorCents() int64
	GetMinBillableCallSeconds() int
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// RecordingsConfig provides settings for the call-recordings object store.
type RecordingsConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetRecordingsBucket() string
	IsRecordingsEnabled() bool
}

// TierConfig provides the subscription tier price catalog location.
type TierConfig interface {
	GetTierCatalogPath() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	JWTAccessSecret string
	CORSAllowAll    bool
	CORSOrigins     []string

	RedisURL       string
	AsynqQueueName string

	MatchWindow     time.Duration
	NameMatchWindow time.Duration

	DefaultRatePerMinuteCents  int64
	OperatorCostPerMinuteCents int64
	ReplenishFloorCents        int64
	MinBillableCallSeconds     int

	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	MinIOEndpoint    string
	MinIOAccessKey   string
	MinIOSecretKey   string
	MinIOUseSSL      bool
	RecordingsBucket string

	TierCatalogPath string
}

// Load reads configuration from the environment, with .env support for
// local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		JWTAccessSecret: os.Getenv("JWT_ACCESS_SECRET"),
		CORSAllowAll:    getBool("CORS_ALLOW_ALL", false),
		CORSOrigins:     splitList(os.Getenv("CORS_ORIGINS")),

		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AsynqQueueName: getEnv("ASYNQ_QUEUE", "default"),

		MatchWindow:     getDuration("RECONCILER_MATCH_WINDOW", 5*time.Minute),
		NameMatchWindow: getDuration("RECONCILER_NAME_MATCH_WINDOW", 10*time.Minute),

		DefaultRatePerMinuteCents:  getInt64("BILLING_DEFAULT_RATE_CENTS", 65),
		OperatorCostPerMinuteCents: getInt64("BILLING_OPERATOR_COST_CENTS", 18),
		ReplenishFloorCents:        getInt64("BILLING_REPLENISH_FLOOR_CENTS", 1000),
		MinBillableCallSeconds:     int(getInt64("BILLING_MIN_CALL_SECONDS", 5)),

		EmailEnabled:     getBool("EMAIL_ENABLED", false),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         int(getInt64("SMTP_PORT", 587)),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "DialerDesk"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@dialerdesk.io"),

		MinIOEndpoint:    os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey:   os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:   os.Getenv("MINIO_SECRET_KEY"),
		MinIOUseSSL:      getBool("MINIO_USE_SSL", false),
		RecordingsBucket: getEnv("MINIO_BUCKET_CALL_RECORDINGS", "call-recordings"),

		TierCatalogPath: getEnv("TIER_CATALOG_PATH", "tiers.yaml"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" && !strings.EqualFold(cfg.Env, "development") {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required outside development")
	}

	return cfg, nil
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }

func (c *Config) GetMatchWindow() time.Duration     { return c.MatchWindow }
func (c *Config) GetNameMatchWindow() time.Duration { return c.NameMatchWindow }

func (c *Config) GetDefaultRatePerMinuteCents() int64  { return c.DefaultRatePerMinuteCents }
func (c *Config) GetOperatorCostPerMinuteCents() int64 { return c.OperatorCostPerMinuteCents }
func (c *Config) GetReplenishFloorCents() int64        { return c.ReplenishFloorCents }
func (c *Config) GetMinBillableCallSeconds() int       { return c.MinBillableCallSeconds }

func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

func (c *Config) GetMinIOEndpoint() string    { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string   { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string   { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool        { return c.MinIOUseSSL }
func (c *Config) GetRecordingsBucket() string { return c.RecordingsBucket }
func (c *Config) IsRecordingsEnabled() bool {
	return c.MinIOEndpoint != "" && c.MinIOAccessKey != "" && c.MinIOSecretKey != ""
}

func (c *Config) GetTierCatalogPath() string { return c.TierCatalogPath }

// =============================================================================
// Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
