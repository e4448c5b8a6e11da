package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DatabaseURL:           "postgres://localhost/test?sslmode=require",
		APIPort:               8080,
		AttachmentStoragePath: "./attachments",
		LogLevel:              "info",
		JWTSecret:             "0123456789abcdef0123456789abcdef",
		TokenTTL:              time.Hour,
		AllowedOrigins:        "https://conf.example.org",
		AppEnv:                "production",
	}
}

func TestLoad_RequiredDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, "./attachments", cfg.AttachmentStoragePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "confchat", cfg.JWTIssuer)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10.0, cfg.RateLimitRequests)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Equal(t, 5*time.Minute, cfg.PaperCacheTTL)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.SMTPAddr)
	assert.True(t, cfg.SMTPStartTLS)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://confchat.db")
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TOKEN_TTL", "30m")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SMTP_ADDR", "localhost:1025")
	t.Setenv("SMTP_STARTTLS", "false")
	t.Setenv("RATE_LIMIT_REQUESTS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "secret", cfg.JWTSecret)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, "localhost:1025", cfg.SMTPAddr)
	assert.False(t, cfg.SMTPStartTLS)
	assert.Equal(t, 2.5, cfg.RateLimitRequests)
	assert.Equal(t, 5, cfg.RateLimitBurst)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("API_PORT", "eighty")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "API_PORT must be a valid integer")
}

func TestLoad_InvalidTokenTTL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("TOKEN_TTL", "forever")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_TTL must be a valid duration")
}

func TestLoad_MalformedRateLimitFallsBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("RATE_LIMIT_REQUESTS", "fast")
	t.Setenv("RATE_LIMIT_BURST", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.RateLimitRequests)
	assert.Equal(t, 20, cfg.RateLimitBurst)
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.APIPort = 70000 }, "APIPort"},
		{"empty storage", func(c *Config) { c.AttachmentStoragePath = "" }, "AttachmentStoragePath"},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"zero ttl", func(c *Config) { c.TokenTTL = 0 }, "TOKEN_TTL"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateProduction_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().ValidateProduction())
}

func TestValidateProduction_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, "JWT_SECRET must be at least"},
		{"missing origins", func(c *Config) { c.AllowedOrigins = "" }, "ALLOWED_ORIGINS is required"},
		{"wildcard origins", func(c *Config) { c.AllowedOrigins = "*" }, "wildcard"},
		{"ssl disabled", func(c *Config) { c.DatabaseURL = "postgres://localhost/test?sslmode=disable" }, "sslmode=disable"},
		{"sqlite", func(c *Config) { c.DatabaseURL = "sqlite://confchat.db" }, "sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateProduction()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadWithValidation_FailFast(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test?sslmode=disable")
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("ALLOWED_ORIGINS", "https://conf.example.org")

	_, err := LoadWithValidation()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sslmode=disable")
}

func TestLoadWithValidation_DevelopmentAllowsInsecure(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://confchat.db")
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "dev")
	t.Setenv("ALLOWED_ORIGINS", "*")

	cfg, err := LoadWithValidation()
	require.NoError(t, err)
	assert.False(t, cfg.IsProduction())
}
