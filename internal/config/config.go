// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string `env:"PORT"       envDefault:"8080"`
	Env       string `env:"ENV"        envDefault:"development"` // "development", "staging", "production"
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Database
	DatabaseURL string `env:"DATABASE_URL"` // PostgreSQL connection string (optional, uses in-memory if not set)

	// Fact store (assistant memory service)
	APIBaseURL       string        `env:"API_BASE_URL"      envDefault:"https://app.backboard.io/api"`
	BackboardAPIKey  string        `env:"BACKBOARD_API_KEY"`
	FactstoreTimeout time.Duration `env:"FACTSTORE_TIMEOUT" envDefault:"8s"`
	FactstoreTopK    int           `env:"FACTSTORE_TOP_K"   envDefault:"80"`
	FactstoreHosts   []string      `env:"FACTSTORE_ALLOWED_HOSTS" envSeparator:"," envDefault:"app.backboard.io"`

	// Merchant classifier (optional)
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// Behaviour
	StrictChallenges bool `env:"STRICT_CHALLENGES" envDefault:"false"`

	// Security
	CORSOriginsRaw string `env:"CORS_ORIGINS"   envDefault:"*"`
	RateLimitRPM   int    `env:"RATE_LIMIT_RPM" envDefault:"600"`

	// Observability
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Defaults
const (
	DefaultPort      = "8080"
	DefaultEnv       = "development"
	DefaultLogLevel  = "info"
	DefaultRateLimit = 600
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENV must be development, staging or production")
	}

	if c.IsProduction() {
		if c.BackboardAPIKey == "" {
			return fmt.Errorf("BACKBOARD_API_KEY is required in production")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
	}

	if c.FactstoreTimeout <= 0 {
		return fmt.Errorf("FACTSTORE_TIMEOUT must be positive")
	}
	if c.FactstoreTopK <= 0 {
		return fmt.Errorf("FACTSTORE_TOP_K must be positive")
	}
	if c.RateLimitRPM < 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must not be negative")
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

// UseRemoteFactstore reports whether a fact-store API key is configured.
// Without one the server runs against the in-process fact store.
func (c *Config) UseRemoteFactstore() bool {
	return c.BackboardAPIKey != ""
}

// CORSOrigins splits CORS_ORIGINS. "*" allows every origin.
func (c *Config) CORSOrigins() []string {
	if strings.TrimSpace(c.CORSOriginsRaw) == "*" {
		return []string{"*"}
	}
	var out []string
	for _, o := range strings.Split(c.CORSOriginsRaw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
