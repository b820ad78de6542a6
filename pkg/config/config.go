package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/camberhq/camber/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

// RedisConfig holds Redis configuration for the assignment cache
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	RetentionDays   int    `yaml:"retention_days"`
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel `yaml:"-"`
	LogLevelName string `yaml:"log_level"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// LoadConfig loads configuration from an optional YAML file (CAMBER_CONFIG_FILE)
// and the environment. Environment variables override file values.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CAMBER_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg.loadEnv()
	cfg.Observability.LogLevel = parseLogLevel(cfg.Observability.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxConns:    25,
			MinConns:    5,
			Timeout:     5 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB:       0,
			PoolSize: 10,
		},
		Audit: AuditConfig{
			RetentionDays:   365,
			CleanupSchedule: "0 3 * * *",
		},
		Observability: ObservabilityConfig{
			LogLevelName:       "info",
			MetricsEnabled:     true,
			OTelEnabled:        false,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "camber",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// loadFile overlays values from a YAML file onto the config
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// loadEnv overlays CAMBER_* environment variables onto the config
func (c *Config) loadEnv() {
	c.Server.Host = getEnv("CAMBER_HOST", c.Server.Host)
	c.Server.Port = getEnv("CAMBER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("CAMBER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("CAMBER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("CAMBER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("CAMBER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.HealthPort = getEnv("CAMBER_HEALTH_PORT", c.Server.HealthPort)

	c.Database.URL = getEnv("CAMBER_POSTGRES_URL", c.Database.URL)
	c.Database.MaxConns = getEnvInt("CAMBER_POSTGRES_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("CAMBER_POSTGRES_MIN_CONNS", c.Database.MinConns)
	c.Database.Timeout = getEnvDuration("CAMBER_POSTGRES_TIMEOUT", c.Database.Timeout)
	c.Database.MaxLifetime = getEnvDuration("CAMBER_POSTGRES_MAX_LIFETIME", c.Database.MaxLifetime)
	c.Database.MaxIdleTime = getEnvDuration("CAMBER_POSTGRES_MAX_IDLE_TIME", c.Database.MaxIdleTime)

	c.Redis.URL = getEnv("CAMBER_REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("CAMBER_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("CAMBER_REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getEnvInt("CAMBER_REDIS_POOL_SIZE", c.Redis.PoolSize)

	c.Audit.RetentionDays = getEnvInt("CAMBER_AUDIT_RETENTION_DAYS", c.Audit.RetentionDays)
	c.Audit.CleanupSchedule = getEnv("CAMBER_AUDIT_CLEANUP_SCHEDULE", c.Audit.CleanupSchedule)

	c.Observability.LogLevelName = getEnv("CAMBER_LOG_LEVEL", c.Observability.LogLevelName)
	c.Observability.MetricsEnabled = getEnvBool("CAMBER_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("CAMBER_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("CAMBER_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("CAMBER_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("CAMBER_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("CAMBER_OTEL_INSECURE", c.Observability.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention days must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
