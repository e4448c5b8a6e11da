package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MinJWTSecretLength is the shortest signing secret accepted in production
const MinJWTSecretLength = 32

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Server
	APIPort int

	// Storage
	AttachmentStoragePath string

	// Logging
	LogLevel string
	LogFile  string

	// Security
	JWTSecret      string
	JWTIssuer      string
	TokenTTL       time.Duration
	AllowedOrigins string
	AppEnv         string

	// Rate Limiting
	RateLimitRequests float64
	RateLimitBurst    int

	// Paper cache (disabled when RedisAddr is empty)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PaperCacheTTL time.Duration

	// E-mail notifications (disabled when SMTPAddr is empty)
	SMTPAddr     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SMTPStartTLS bool
}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("API_PORT", 8080)
	v.SetDefault("ATTACHMENT_STORAGE_PATH", "./attachments")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_ISSUER", "confchat")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("RATE_LIMIT_REQUESTS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("PAPER_CACHE_TTL", "5m")
	v.SetDefault("SMTP_FROM", "noreply@confchat.local")
	v.SetDefault("SMTP_STARTTLS", true)

	cfg := &Config{}

	// Required: DATABASE_URL
	cfg.DatabaseURL = v.GetString("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}

	port, err := parseInt(v, "API_PORT")
	if err != nil {
		return nil, err
	}
	cfg.APIPort = port

	cfg.AttachmentStoragePath = v.GetString("ATTACHMENT_STORAGE_PATH")
	cfg.LogLevel = strings.ToLower(v.GetString("LOG_LEVEL"))
	cfg.LogFile = v.GetString("LOG_FILE")

	cfg.JWTSecret = v.GetString("JWT_SECRET")
	cfg.JWTIssuer = v.GetString("JWT_ISSUER")
	if cfg.TokenTTL, err = parseDuration(v, "TOKEN_TTL"); err != nil {
		return nil, err
	}
	cfg.AllowedOrigins = v.GetString("ALLOWED_ORIGINS")
	cfg.AppEnv = v.GetString("APP_ENV")

	// Malformed rate limit values fall back to the defaults
	cfg.RateLimitRequests = 10.0
	if rps, err := parseFloat(v, "RATE_LIMIT_REQUESTS"); err == nil {
		cfg.RateLimitRequests = rps
	}
	cfg.RateLimitBurst = 20
	if burst, err := parseInt(v, "RATE_LIMIT_BURST"); err == nil {
		cfg.RateLimitBurst = burst
	}

	cfg.RedisAddr = v.GetString("REDIS_ADDR")
	cfg.RedisPassword = v.GetString("REDIS_PASSWORD")
	if cfg.RedisDB, err = parseInt(v, "REDIS_DB"); err != nil {
		return nil, err
	}
	if cfg.PaperCacheTTL, err = parseDuration(v, "PAPER_CACHE_TTL"); err != nil {
		return nil, err
	}

	cfg.SMTPAddr = v.GetString("SMTP_ADDR")
	cfg.SMTPFrom = v.GetString("SMTP_FROM")
	cfg.SMTPUsername = v.GetString("SMTP_USERNAME")
	cfg.SMTPPassword = v.GetString("SMTP_PASSWORD")
	cfg.SMTPStartTLS = v.GetBool("SMTP_STARTTLS")

	return cfg, nil
}

// loadEnvFile loads .env from the working directory or its parent. A missing
// file is not an error.
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}
	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}

func parseInt(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func parseFloat(v *viper.Viper, key string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return f, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return d, nil
}

// LoadWithValidation loads and validates configuration, failing fast on errors
func LoadWithValidation() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsProduction() {
		if err := cfg.ValidateProduction(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DatabaseURL cannot be empty")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("APIPort must be between 1 and 65535")
	}
	if c.AttachmentStoragePath == "" {
		return fmt.Errorf("AttachmentStoragePath cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	return nil
}

// ValidateProduction performs additional validation for production environment
func (c *Config) ValidateProduction() error {
	if len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in production", MinJWTSecretLength)
	}

	if c.AllowedOrigins == "" {
		return fmt.Errorf("ALLOWED_ORIGINS is required in production")
	}

	if strings.Contains(c.AllowedOrigins, "*") {
		return fmt.Errorf("wildcard (*) origins are not allowed in production")
	}

	if strings.Contains(c.DatabaseURL, "sslmode=disable") {
		return fmt.Errorf("sslmode=disable is not allowed in production")
	}

	if strings.HasPrefix(c.DatabaseURL, "sqlite://") {
		return fmt.Errorf("sqlite is not allowed in production")
	}

	return nil
}

// LogConfig logs configuration values (excluding secrets)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.Int("api_port", c.APIPort),
		slog.String("storage_path", c.AttachmentStoragePath),
		slog.String("log_level", c.LogLevel),
		slog.Bool("log_file_set", c.LogFile != ""),
		slog.String("app_env", c.AppEnv),
		slog.Bool("jwt_secret_set", c.JWTSecret != ""),
		slog.String("jwt_issuer", c.JWTIssuer),
		slog.Duration("token_ttl", c.TokenTTL),
		slog.Bool("allowed_origins_set", c.AllowedOrigins != ""),
		slog.Float64("rate_limit_rps", c.RateLimitRequests),
		slog.Int("rate_limit_burst", c.RateLimitBurst),
		slog.Bool("paper_cache_enabled", c.RedisAddr != ""),
		slog.Duration("paper_cache_ttl", c.PaperCacheTTL),
		slog.Bool("email_notifications_enabled", c.SMTPAddr != ""),
	)
}
