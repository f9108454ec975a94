// Package config loads pipeline configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Origin   OriginConfig
	Durable  DurableConfig
	CDN      CDNConfig
	Sync     SyncConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds operator-token settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// OriginConfig holds telephony-provider API settings. Key and secret are a
// hard precondition for any transfer; the server still boots without them
// so signed-URL issuance keeps working.
type OriginConfig struct {
	BaseURL   string
	AccountID string
	APIKey    string
	APISecret string
}

// DurableConfig holds durable object store settings.
type DurableConfig struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// CDNConfig holds CDN distribution settings. SigningKey may be empty: signed
// URL issuance then falls back to plain durable URLs.
type CDNConfig struct {
	BaseURL    string
	APIURL     string
	APIKey     string
	ZoneID     string
	SigningKey string
}

// SyncConfig tunes batch discovery.
type SyncConfig struct {
	BatchSize    int
	BatchDelayMS int
	PageSize     int
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "fallowl"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Origin: OriginConfig{
			BaseURL:   getEnv("ORIGIN_BASE_URL", "https://api.twilio.com/2010-04-01"),
			AccountID: getEnv("ORIGIN_ACCOUNT_SID", ""),
			APIKey:    getEnv("ORIGIN_API_KEY", ""),
			APISecret: getEnv("ORIGIN_API_SECRET", ""),
		},
		Durable: DurableConfig{
			Region:          getEnv("DURABLE_REGION", "us-east-1"),
			Bucket:          getEnv("DURABLE_BUCKET", "fallowl-recordings"),
			AccessKeyID:     getEnv("DURABLE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("DURABLE_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("DURABLE_ENDPOINT", ""),
		},
		CDN: CDNConfig{
			BaseURL:    getEnv("CDN_BASE_URL", ""),
			APIURL:     getEnv("CDN_API_URL", "https://api.bunny.net"),
			APIKey:     getEnv("CDN_API_KEY", ""),
			ZoneID:     getEnv("CDN_ZONE_ID", ""),
			SigningKey: getEnv("CDN_SIGNING_KEY", ""),
		},
		Sync: SyncConfig{
			BatchSize:    getEnvInt("SYNC_BATCH_SIZE", 10),
			BatchDelayMS: getEnvInt("SYNC_BATCH_DELAY_MS", 500),
			PageSize:     getEnvInt("SYNC_PAGE_SIZE", 50),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
