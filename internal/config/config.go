package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// WebSocket server
	WSPort int    `env:"WS_PORT" default:"8080"`
	WSPath string `env:"WS_PATH" default:"/ws"`

	// Process updates
	UpdateInterval time.Duration `env:"UPDATE_INTERVAL" default:"1s"`
	UpdateSteps    []string      `env:"UPDATE_STEPS" default:"complete gate 1,complete gate 2,complete gate 3"`

	// Echo path rate limit
	EchoRateLimit float64 `env:"ECHO_RATE_LIMIT" default:"10"`
	EchoRateBurst int     `env:"ECHO_RATE_BURST" default:"20"`

	// Authentication (optional => upgrade is open when empty)
	JWTSecret string `env:"JWT_SECRET"`

	// Progress store
	ProgressStore string        `env:"PROGRESS_STORE" default:"none"` // none | redis | postgres
	ProgressTTL   time.Duration `env:"PROGRESS_TTL" default:"24h"`
	RedisURL      string        `env:"REDIS_URL" default:"redis://localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	DatabaseURL   string        `env:"DATABASE_URL"`

	// Development
	LogLevel    string   `env:"LOG_LEVEL" default:"info"`
	LogFormat   string   `env:"LOG_FORMAT" default:"text"`
	CORSOrigins []string `env:"CORS_ORIGINS" default:"*"`
}

var DefaultUpdateSteps = []string{"complete gate 1", "complete gate 2", "complete gate 3"}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// .env is optional, system env vars still apply
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		slog.Warn("env_file_not_loaded", "error", err)
	}

	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", "development"); err != nil {
		return nil, err
	}

	// WebSocket server
	if err := loadEnvInt(&config.WSPort, "WS_PORT", 8080); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.WSPath, "WS_PATH", "/ws"); err != nil {
		return nil, err
	}

	// Process updates
	if err := loadEnvDuration(&config.UpdateInterval, "UPDATE_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvStringSlice(&config.UpdateSteps, "UPDATE_STEPS", DefaultUpdateSteps); err != nil {
		return nil, err
	}

	// Echo rate limit
	if err := loadEnvFloat(&config.EchoRateLimit, "ECHO_RATE_LIMIT", 10); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.EchoRateBurst, "ECHO_RATE_BURST", 20); err != nil {
		return nil, err
	}

	// Authentication
	if err := loadEnvString(&config.JWTSecret, "JWT_SECRET", ""); err != nil {
		return nil, err
	}

	// Progress store
	if err := loadEnvString(&config.ProgressStore, "PROGRESS_STORE", "none"); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.ProgressTTL, "PROGRESS_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisURL, "REDIS_URL", "redis://localhost:6379"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisPassword, "REDIS_PASSWORD", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.DatabaseURL, "DATABASE_URL", ""); err != nil {
		return nil, err
	}

	// Development
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "text"); err != nil {
		return nil, err
	}
	if err := loadEnvStringSlice(&config.CORSOrigins, "CORS_ORIGINS", []string{"*"}); err != nil {
		return nil, err
	}
	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value for %s: %w", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %w", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvStringSlice(target *[]string, key string, defaultValue []string) error {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		// Trim whitespace, drop empty entries
		for _, v := range parts {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		*target = out
	} else {
		*target = append([]string(nil), defaultValue...)
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.WSPort < 1 || c.WSPort > 65535 {
		errors = append(errors, "WS_PORT must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		errors = append(errors, "WS_PATH must start with /")
	}

	if c.UpdateInterval < 0 {
		errors = append(errors, "UPDATE_INTERVAL must not be negative")
	}
	if len(c.UpdateSteps) == 0 {
		errors = append(errors, "UPDATE_STEPS must list at least one step")
	}

	if c.EchoRateLimit <= 0 {
		errors = append(errors, "ECHO_RATE_LIMIT must be positive")
	}
	if c.EchoRateBurst < 1 {
		errors = append(errors, "ECHO_RATE_BURST must be at least 1")
	}

	// HS256 secrets shorter than 32 bytes are too weak
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		errors = append(errors, "JWT_SECRET should be at least 32 characters long")
	}

	validStores := []string{"none", "redis", "postgres"}
	if !contains(validStores, c.ProgressStore) {
		errors = append(errors, fmt.Sprintf("PROGRESS_STORE must be one of: %s", strings.Join(validStores, ", ")))
	}
	if c.ProgressStore == "postgres" && c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required when PROGRESS_STORE=postgres")
	}
	if c.ProgressStore == "redis" {
		if _, err := redis.ParseURL(c.RedisURL); err != nil {
			errors = append(errors, fmt.Sprintf("REDIS_URL is invalid: %v", err))
		}
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// AuthEnabled reports whether WebSocket upgrades require a JWT
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// RedisOptions parses REDIS_URL (password, DB and TLS included).
// REDIS_PASSWORD wins over a password in the URL
func (c *Config) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if c.RedisPassword != "" {
		opts.Password = c.RedisPassword
	}
	return opts, nil
}

// Addr is the listen address of the HTTP/WebSocket server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.WSPort)
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
