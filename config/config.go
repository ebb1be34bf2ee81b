// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string

	// Mongo. An empty URI selects the in-memory store.
	MongoURI     string
	DatabaseName string

	JWTSecret      string
	AllowedOrigins []string

	// Payment gateway (Paystack)
	PaystackSecretKey  string
	PaystackBaseURL    string
	PaymentCallbackURL string

	// Wallet payout collaborator
	PayoutServiceURL   string
	PayoutServiceToken string

	// Offer attachments: "r2", "gcs" or "" (disabled)
	StorageBackend          string
	R2Bucket                string
	R2AccessKeyID           string
	R2SecretAccessKey       string
	R2Endpoint              string
	R2PublicDomain          string
	GCSBucket               string
	CredentialsFileLocation string
	MaxUploadSizeMB         int

	ReadQueryMaxLimit     int
	DefaultReadQueryLimit int

	OTLPEndpoint string

	InstantRequestTTL  time.Duration
	StandardRequestTTL time.Duration
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultDatabaseName    = "agrorfq"
	DefaultPaystackBaseURL = "https://api.paystack.co"
	DefaultMaxUploadMB     = 5
	DefaultMaxLimit        = 100
	DefaultLimit           = 20
	DefaultInstantTTLHours = 24
	DefaultStandardTTLDays = 7
)

// Load reads configuration from environment variables.
// A .env file is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", DefaultPort),
		Env:                     getEnv("ENV", DefaultEnv),
		LogLevel:                getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:               getEnv("LOG_FORMAT", DefaultLogFormat),
		MongoURI:                os.Getenv("MONGODB_URI"),
		DatabaseName:            getEnv("DATABASE_NAME", DefaultDatabaseName),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		AllowedOrigins:          splitList(os.Getenv("ALLOWED_ORIGINS")),
		PaystackSecretKey:       os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:         getEnv("PAYSTACK_BASE_URL", DefaultPaystackBaseURL),
		PaymentCallbackURL:      os.Getenv("PAYMENT_CALLBACK_URL"),
		PayoutServiceURL:        os.Getenv("PAYOUT_SERVICE_URL"),
		PayoutServiceToken:      os.Getenv("PAYOUT_SERVICE_TOKEN"),
		StorageBackend:          strings.ToLower(os.Getenv("STORAGE_BACKEND")),
		R2Bucket:                os.Getenv("R2_BUCKET"),
		R2AccessKeyID:           os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey:       os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2Endpoint:              os.Getenv("R2_ENDPOINT"),
		R2PublicDomain:          os.Getenv("R2_PUBLIC_DOMAIN"),
		GCSBucket:               os.Getenv("GCS_BUCKET"),
		CredentialsFileLocation: os.Getenv("CREDENTIALS_FILE_LOCATION"),
		MaxUploadSizeMB:         getEnvInt("MAX_UPLOAD_SIZE_MB", DefaultMaxUploadMB),
		ReadQueryMaxLimit:       getEnvInt("READ_QUERY_MAX_LIMIT", DefaultMaxLimit),
		DefaultReadQueryLimit:   getEnvInt("DEFAULT_READ_QUERY_LIMIT", DefaultLimit),
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		InstantRequestTTL:       time.Duration(getEnvInt("INSTANT_REQUEST_TTL_HOURS", DefaultInstantTTLHours)) * time.Hour,
		StandardRequestTTL:      time.Duration(getEnvInt("STANDARD_REQUEST_TTL_DAYS", DefaultStandardTTLDays)) * 24 * time.Hour,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.StorageBackend {
	case "", "r2", "gcs":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of r2, gcs or empty, got %q", c.StorageBackend)
	}
	if c.IsProduction() {
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required in production")
		}
		if c.PaystackSecretKey == "" {
			return fmt.Errorf("PAYSTACK_SECRET_KEY is required in production")
		}
	}
	if c.DefaultReadQueryLimit > c.ReadQueryMaxLimit {
		c.DefaultReadQueryLimit = c.ReadQueryMaxLimit
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil && i > 0 {
			return i
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
