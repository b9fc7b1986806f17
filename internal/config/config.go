// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendS3       = "s3"
	BackendMemory   = "memory"
)

// Config holds every setting of the intake service. Values come from
// environment variables; main loads a .env file first when present.
type Config struct {
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// Record store
	StoreBackend string        `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL  string        `env:"DATABASE_URL"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"10s"`

	// Blob store
	BlobBackend    string `env:"BLOB_BACKEND" envDefault:"s3"`
	S3Bucket       string `env:"S3_BUCKET"`
	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL"`

	// Submissions
	RetentionDays       int           `env:"RETENTION_DAYS" envDefault:"90"`
	MaxUploadBytes      int64         `env:"MAX_UPLOAD_BYTES" envDefault:"5242880"`
	AllowedContentTypes []string      `env:"ALLOWED_CONTENT_TYPES" envSeparator:"," envDefault:"application/pdf,application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document,image/jpeg,image/png"`
	SignedURLTTL        time.Duration `env:"SIGNED_URL_TTL" envDefault:"720h"`

	// Retention purge
	PurgeInterval   time.Duration `env:"PURGE_INTERVAL" envDefault:"24h"`
	PurgeSecretHash string        `env:"PURGE_SECRET_HASH"`
	PurgeSecret     string        `env:"PURGE_SECRET"`

	// Rate limiting
	RateLimitEnabled         bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRequests        int           `env:"RATE_LIMIT_REQUESTS" envDefault:"30"`
	RateLimitWindow          time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	RateLimitCleanupInterval time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"5m"`
	RateLimitWhitelist       []string      `env:"RATE_LIMIT_WHITELIST" envSeparator:","`
	RateLimitBlacklist       []string      `env:"RATE_LIMIT_BLACKLIST" envSeparator:","`
	RateLimitRedisURL        string        `env:"RATE_LIMIT_REDIS_URL"`

	// Admin tokens
	JWTSecret          string `env:"JWT_SECRET"`
	JWTExpirationHours int    `env:"JWT_EXPIRATION_HOURS" envDefault:"24"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses the process environment and validates the result.
func Load() (*Config, error) {
	return load(env.Options{})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("config error: HTTP_PORT out of range: %d", c.HTTPPort)
	}

	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config error: DATABASE_URL is required for the postgres store")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config error: unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.BlobBackend {
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("config error: S3_BUCKET is required for the s3 blob store")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config error: unknown BLOB_BACKEND %q", c.BlobBackend)
	}

	if c.RetentionDays < 1 {
		return fmt.Errorf("config error: RETENTION_DAYS must be at least 1, got: %d", c.RetentionDays)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("config error: MAX_UPLOAD_BYTES must be positive")
	}
	if len(c.AllowedContentTypes) == 0 {
		return fmt.Errorf("config error: ALLOWED_CONTENT_TYPES cannot be empty")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("config error: STORE_TIMEOUT must be positive")
	}
	if c.PurgeInterval < 0 {
		return fmt.Errorf("config error: PURGE_INTERVAL cannot be negative")
	}
	if c.RateLimitEnabled {
		if c.RateLimitRequests < 1 {
			return fmt.Errorf("config error: RATE_LIMIT_REQUESTS must be at least 1")
		}
		if c.RateLimitWindow <= 0 {
			return fmt.Errorf("config error: RATE_LIMIT_WINDOW must be positive")
		}
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("config error: LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}

	return nil
}

// Retention is the window during which a duplicate submission is refused
// and after which records are purged.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// JWT builds the admin token configuration.
func (c *Config) JWT() (*JWTConfig, error) {
	return NewJWTConfig(c.JWTSecret, c.JWTExpirationHours)
}
