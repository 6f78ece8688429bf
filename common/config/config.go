package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Nexum server
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Blob      BlobConfig
	Engine    EngineConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-level configuration
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds database connection configuration.
// URL is either sqlite://<path> or a postgres:// DSN.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// BlobConfig holds claim-check blob store configuration
type BlobConfig struct {
	Backend       string // "fs" or "redis"
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

// EngineConfig holds workflow engine tuning knobs
type EngineConfig struct {
	TaskTimeout         time.Duration
	ReaperInterval      time.Duration
	MaxRetries          int
	ClaimCheckThreshold int
	PollRateLimit       float64 // polls/sec per worker, 0 disables
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	MetricsPort  int
	EnablePprof  bool
	OTLPEndpoint string
	SampleRate   float64
}

// Load reads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("NEXUM_PORT", 50051),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", "sqlite://.nexum/local.db"),
			MaxConns:        getEnvInt("DB_MAX_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Blob: BlobConfig{
			Backend:       getEnv("BLOB_BACKEND", "fs"),
			Dir:           getEnv("NEXUM_BLOB_DIR", ".nexum/blobs"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			RedisTTL:      getEnvDuration("BLOB_REDIS_TTL", 24*time.Hour),
		},
		Engine: EngineConfig{
			TaskTimeout:         getEnvDuration("TASK_TIMEOUT_SECS", 60*time.Second),
			ReaperInterval:      getEnvDuration("REAPER_INTERVAL_SECS", 30*time.Second),
			MaxRetries:          getEnvInt("MAX_RETRIES", 3),
			ClaimCheckThreshold: getEnvInt("CLAIM_CHECK_THRESHOLD", 100*1024),
			PollRateLimit:       getEnvFloat("POLL_RATE_LIMIT", 0),
		},
		Telemetry: TelemetryConfig{
			MetricsPort:  getEnvInt("METRICS_PORT", 9090),
			EnablePprof:  getEnvBool("ENABLE_PPROF", true),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			SampleRate:   getEnvFloat("OTEL_SAMPLE_RATE", 1.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}
	if c.Telemetry.MetricsPort < 1 || c.Telemetry.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Telemetry.MetricsPort)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("invalid max connections: %d", c.Database.MaxConns)
	}
	if c.Blob.Backend != "fs" && c.Blob.Backend != "redis" {
		return fmt.Errorf("invalid blob backend: %s", c.Blob.Backend)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d", c.Engine.MaxRetries)
	}
	if c.Engine.ClaimCheckThreshold < 1 {
		return fmt.Errorf("invalid claim check threshold: %d", c.Engine.ClaimCheckThreshold)
	}
	if c.Engine.TaskTimeout < time.Second {
		return fmt.Errorf("task timeout too small: %s", c.Engine.TaskTimeout)
	}
	return nil
}

// IsPostgres reports whether the configured database is PostgreSQL
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.Database.URL, "postgres://") ||
		strings.HasPrefix(c.Database.URL, "postgresql://")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration reads a duration either as a bare number of seconds
// ("60") or as a Go duration string ("60s", "1m30s").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
