package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "TRACKER_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and applies defaults without validating.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention TRACKER_SECTION_FIELD (e.g., TRACKER_SERVER_LISTEN_ADDRESS) and
// always take precedence over the file.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Proxy overrides
	envString("PROXY_BIND_HOST", &cfg.Proxy.BindHost)
	envString("PROXY_BACKEND_HOST", &cfg.Proxy.BackendHost)
	envDuration("PROXY_DRAIN_TIMEOUT", &cfg.Proxy.DrainTimeout)
	envInt("PROXY_CAPTURE_LIMIT", &cfg.Proxy.CaptureLimit)
	envBool("PROXY_CHANGE_ORIGIN", &cfg.Proxy.ChangeOrigin)
	envBool("PROXY_TRUST_FORWARDED_HEADERS", &cfg.Proxy.TrustForwardedHeaders)

	// Store overrides
	envString("STORE_BACKEND", &cfg.Store.Backend)
	envString("STORE_SQLITE_PATH", &cfg.Store.SQLite.Path)
	envString("STORE_SQLITE_DRIVER", &cfg.Store.SQLite.Driver)
	envString("STORE_POSTGRES_DSN", &cfg.Store.Postgres.DSN)
	envString("STORE_POSTGRES_HOST", &cfg.Store.Postgres.Host)
	envInt("STORE_POSTGRES_PORT", &cfg.Store.Postgres.Port)
	envString("STORE_POSTGRES_DATABASE", &cfg.Store.Postgres.Database)
	envString("STORE_POSTGRES_USER", &cfg.Store.Postgres.User)
	envString("STORE_POSTGRES_PASSWORD", &cfg.Store.Postgres.Password)
	envString("STORE_POSTGRES_SSL_MODE", &cfg.Store.Postgres.SSLMode)

	// Recorder overrides
	envInt("RECORDER_ASYNC_BUFFER", &cfg.Recorder.AsyncBuffer)
	envDuration("RECORDER_WRITE_TIMEOUT", &cfg.Recorder.WriteTimeout)
	envInt("RECORDER_WORKERS", &cfg.Recorder.Workers)

	// Retention overrides
	envInt("RETENTION_DAYS", &cfg.Retention.Days)
	if val := os.Getenv(EnvPrefix + "RETENTION_MAX_RECORDS_PER_DEPLOYMENT"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Retention.MaxRecordsPerDeployment = i
		}
	}
	envString("RETENTION_PRUNE_SCHEDULE", &cfg.Retention.PruneSchedule)

	// Tracking overrides
	envInt("TRACKING_DEFAULT_LOG_LIMIT", &cfg.Tracking.DefaultLogLimit)
	envInt("TRACKING_MAX_LOG_LIMIT", &cfg.Tracking.MaxLogLimit)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = boolPtr(b)
		}
	}
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)

	envBool("WATCH", &cfg.Watch)
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
