package internal

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Env         string `env:"ENV" envDefault:"development"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"debug"`
	DatabaseUrl string `env:"DATABASE_URL,required"`

	// Application base URL (for checkout redirects)
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Plan catalog override. Empty uses the embedded default catalog.
	PlanCatalogPath string `env:"PLAN_CATALOG_PATH"`

	// Redis plan cache. Empty disables caching.
	RedisURL            string        `env:"REDIS_URL"`
	RedisRetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RedisRetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`
	RedisConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
	PlanCacheTTL        time.Duration `env:"PLAN_CACHE_TTL" envDefault:"1h"`

	// Storage Configuration
	StorageProvider  string `env:"STORAGE_PROVIDER" envDefault:"local"` // "local" or "r2"
	LocalStoragePath string `env:"LOCAL_STORAGE_PATH" envDefault:"./storage"`
	LocalStorageURL  string `env:"LOCAL_STORAGE_URL" envDefault:"http://localhost:8080/files"`

	// R2 Storage (production)
	R2AccountID       string `env:"R2_ACCOUNT_ID"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY"`
	R2BucketName      string `env:"R2_BUCKET_NAME"`
	R2PublicURL       string `env:"R2_PUBLIC_URL"` // Optional custom domain URL

	// Maximum accepted upload size in bytes
	UploadMaxBytes int64 `env:"UPLOAD_MAX_BYTES" envDefault:"52428800"`

	// Stripe Billing Configuration
	// When StripeSecretKey is empty, subscriptions activate immediately
	// without a checkout step.
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string `env:"METRICS_USERNAME"`
	MetricsPassword string `env:"METRICS_PASSWORD"`

	// Failed bearer-token attempts allowed per client IP within the window
	AuthRateLimit  int           `env:"AUTH_RATE_LIMIT" envDefault:"20"`
	AuthRateWindow time.Duration `env:"AUTH_RATE_WINDOW" envDefault:"15m"`
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.StorageProvider {
	case "local":
	case "r2":
		if c.R2AccountID == "" {
			return errors.New("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2AccessKeyID == "" {
			return errors.New("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2SecretAccessKey == "" {
			return errors.New("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2BucketName == "" {
			return errors.New("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", c.StorageProvider)
	}

	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}

	if (c.MetricsUsername == "") != (c.MetricsPassword == "") {
		return errors.New("METRICS_USERNAME and METRICS_PASSWORD must be set together")
	}

	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got: %d", c.UploadMaxBytes)
	}

	if c.AuthRateLimit <= 0 || c.AuthRateWindow <= 0 {
		return errors.New("AUTH_RATE_LIMIT and AUTH_RATE_WINDOW must be positive")
	}

	if c.RedisURL != "" && c.PlanCacheTTL <= 0 {
		return errors.New("PLAN_CACHE_TTL must be positive when REDIS_URL is set")
	}

	return nil
}

// BillingEnabled reports whether Stripe checkout is configured.
func (c *Config) BillingEnabled() bool {
	return c.StripeSecretKey != ""
}
