package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t, "ENV", "BACKBOARD_API_KEY", "FACTSTORE_TIMEOUT", "FACTSTORE_TOP_K",
		"CORS_ORIGINS", "API_BASE_URL", "STRICT_CHALLENGES", "FACTSTORE_ALLOWED_HOSTS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, 8*time.Second, cfg.FactstoreTimeout)
	assert.Equal(t, 80, cfg.FactstoreTopK)
	assert.Equal(t, "https://app.backboard.io/api", cfg.APIBaseURL)
	assert.False(t, cfg.StrictChallenges)
	assert.False(t, cfg.UseRemoteFactstore())
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins())
	assert.Equal(t, []string{"app.backboard.io"}, cfg.FactstoreHosts)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "staging")
	t.Setenv("BACKBOARD_API_KEY", "bb-key")
	t.Setenv("FACTSTORE_TIMEOUT", "2s")
	t.Setenv("FACTSTORE_TOP_K", "25")
	t.Setenv("STRICT_CHALLENGES", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("FACTSTORE_ALLOWED_HOSTS", "facts.example,backup.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.FactstoreTimeout)
	assert.Equal(t, 25, cfg.FactstoreTopK)
	assert.True(t, cfg.StrictChallenges)
	assert.True(t, cfg.UseRemoteFactstore())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
	assert.Equal(t, []string{"facts.example", "backup.example"}, cfg.FactstoreHosts)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("FACTSTORE_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{Env: "development", FactstoreTimeout: time.Second, FactstoreTopK: 80}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid development", func(*Config) {}, ""},
		{"unknown env", func(c *Config) { c.Env = "qa" }, "ENV must be"},
		{"production without api key", func(c *Config) {
			c.Env = "production"
			c.DatabaseURL = "postgres://x"
		}, "BACKBOARD_API_KEY is required"},
		{"production without database", func(c *Config) {
			c.Env = "production"
			c.BackboardAPIKey = "k"
		}, "DATABASE_URL is required"},
		{"valid production", func(c *Config) {
			c.Env = "production"
			c.BackboardAPIKey = "k"
			c.DatabaseURL = "postgres://x"
		}, ""},
		{"zero timeout", func(c *Config) { c.FactstoreTimeout = 0 }, "FACTSTORE_TIMEOUT"},
		{"zero top k", func(c *Config) { c.FactstoreTopK = 0 }, "FACTSTORE_TOP_K"},
		{"negative rate limit", func(c *Config) { c.RateLimitRPM = -1 }, "RATE_LIMIT_RPM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_EnvHelpers(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.True(t, cfg.IsProduction())
}
