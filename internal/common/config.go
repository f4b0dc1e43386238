package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Scraper  ScraperConfig
	Auth     AuthConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
}

// ScraperConfig holds settings for the SEFAZ consultation scraper.
// Retries apply to transient network failures only; parse failures are
// never retried.
type ScraperConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	RetryMax       int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
}

// AuthConfig holds token signing configuration
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Scraper: ScraperConfig{
			BaseURL:        getEnv("NFCE_BASE_URL", "https://www.nfce.fazenda.sp.gov.br"),
			ConnectTimeout: getEnvAsDuration("NFCE_CONNECT_TIMEOUT", 5*time.Second),
			ReadTimeout:    getEnvAsDuration("NFCE_READ_TIMEOUT", 30*time.Second),
			RetryMax:       getEnvAsInt("NFCE_RETRY_MAX", 3),
			RetryWaitMin:   getEnvAsDuration("NFCE_RETRY_WAIT_MIN", 1*time.Second),
			RetryWaitMax:   getEnvAsDuration("NFCE_RETRY_WAIT_MAX", 10*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvAsDuration("JWT_TOKEN_TTL", 24*time.Hour),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Scraper.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "NFCE_BASE_URL is required", ErrInvalidInput)
	}
	if len(c.Auth.JWTSecret) < 32 {
		return NewAppError("CONFIG_ERROR", "JWT_SECRET must be at least 32 bytes", ErrInvalidInput)
	}
	return nil
}
