package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateRecorder(&cfg.Recorder)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateTracking(&cfg.Tracking)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateStaticProxies(cfg.Proxies)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates control server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address: %v", err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "max header bytes must be non-negative"})
	}
	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{Field: "server.cors.max_age", Message: "max age must be non-negative"})
	}

	return errs
}

// validateProxy validates shared proxy settings.
func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.BindHost == "" {
		errs = append(errs, FieldError{Field: "proxy.bind_host", Message: "bind host is required"})
	}
	if cfg.BackendHost == "" {
		errs = append(errs, FieldError{Field: "proxy.backend_host", Message: "backend host is required"})
	}
	if cfg.DrainTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.drain_timeout", Message: "drain timeout must be positive"})
	}
	if cfg.CaptureLimit < 0 {
		errs = append(errs, FieldError{Field: "proxy.capture_limit", Message: "capture limit must be non-negative"})
	}
	if cfg.DialTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.dial_timeout", Message: "dial timeout must be positive"})
	}
	if cfg.ResponseHeaderTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.response_header_timeout", Message: "response header timeout must be non-negative"})
	}
	if cfg.MaxIdleConnsPerHost < 0 {
		errs = append(errs, FieldError{Field: "proxy.max_idle_conns_per_host", Message: "must be non-negative"})
	}

	return errs
}

// validateStore validates the selected storage backend.
func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "store.sqlite.path", Message: "path is required for sqlite backend"})
		}
		if cfg.SQLite.Driver != "sqlite3" && cfg.SQLite.Driver != "sqlite" {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q (must be sqlite3 or sqlite)", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{Field: "store.sqlite.max_open_conns", Message: "must be at least 1"})
		}
		if cfg.SQLite.MaxIdleConns < 0 {
			errs = append(errs, FieldError{Field: "store.sqlite.max_idle_conns", Message: "must be non-negative"})
		}
	case "postgres":
		pg := &cfg.Postgres
		if pg.DSN == "" {
			if pg.Host == "" {
				errs = append(errs, FieldError{Field: "store.postgres.host", Message: "host or dsn is required for postgres backend"})
			}
			if pg.Database == "" {
				errs = append(errs, FieldError{Field: "store.postgres.database", Message: "database or dsn is required for postgres backend"})
			}
			if pg.Port < 1 || pg.Port > 65535 {
				errs = append(errs, FieldError{Field: "store.postgres.port", Message: "port must be between 1 and 65535"})
			}
		}
		if pg.MaxConns < 0 || pg.MinConns < 0 {
			errs = append(errs, FieldError{Field: "store.postgres.max_conns", Message: "pool sizes must be non-negative"})
		}
		if pg.MaxConns > 0 && pg.MinConns > pg.MaxConns {
			errs = append(errs, FieldError{Field: "store.postgres.min_conns", Message: "min conns cannot exceed max conns"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("invalid backend %q (must be sqlite, postgres, or memory)", cfg.Backend),
		})
	}

	return errs
}

// validateRecorder validates the async recorder settings.
func validateRecorder(cfg *RecorderConfig) []FieldError {
	var errs []FieldError

	if cfg.AsyncBuffer < 1 {
		errs = append(errs, FieldError{Field: "recorder.async_buffer", Message: "async buffer must be at least 1"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "recorder.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.Workers < 1 {
		errs = append(errs, FieldError{Field: "recorder.workers", Message: "workers must be at least 1"})
	}

	return errs
}

// validateRetention validates retention limits and the prune schedule.
func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.Days < 0 {
		errs = append(errs, FieldError{Field: "retention.days", Message: "retention days must be non-negative"})
	}
	if cfg.MaxRecordsPerDeployment < 0 {
		errs = append(errs, FieldError{Field: "retention.max_records_per_deployment", Message: "must be non-negative"})
	}
	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateTracking validates control plane limits.
func validateTracking(cfg *TrackingConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultLogLimit < 1 {
		errs = append(errs, FieldError{Field: "tracking.default_log_limit", Message: "must be at least 1"})
	}
	if cfg.MaxLogLimit < 0 {
		errs = append(errs, FieldError{Field: "tracking.max_log_limit", Message: "must be non-negative"})
	}
	if cfg.MaxLogLimit > 0 && cfg.DefaultLogLimit > cfg.MaxLogLimit {
		errs = append(errs, FieldError{Field: "tracking.default_log_limit", Message: "cannot exceed max_log_limit"})
	}
	if cfg.BroadcastBuffer < 1 {
		errs = append(errs, FieldError{Field: "tracking.broadcast_buffer", Message: "must be at least 1"})
	}

	return errs
}

// validateTelemetry validates logging and metrics configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if Enabled(cfg.Metrics.Enabled, DefaultMetricsEnabled) && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
	}

	return errs
}

// validateStaticProxies checks identifiers and ports, and rejects duplicate
// deployments or listen ports.
func validateStaticProxies(proxies []StaticProxyConfig) []FieldError {
	var errs []FieldError

	keys := make(map[string]int)
	ports := make(map[int]int)

	for i, p := range proxies {
		prefix := fmt.Sprintf("proxies[%d]", i)

		if p.ProjectID == "" {
			errs = append(errs, FieldError{Field: prefix + ".project_id", Message: "project id is required"})
		}
		if p.DeploymentID == "" {
			errs = append(errs, FieldError{Field: prefix + ".deployment_id", Message: "deployment id is required"})
		}
		if p.BackendPort < 1 || p.BackendPort > 65535 {
			errs = append(errs, FieldError{Field: prefix + ".backend_port", Message: "backend port must be between 1 and 65535"})
		}
		if p.ListenPort < 0 || p.ListenPort > 65535 {
			errs = append(errs, FieldError{Field: prefix + ".listen_port", Message: "listen port must be between 0 and 65535"})
		}

		key := p.ProjectID + "/" + p.DeploymentID
		if prev, ok := keys[key]; ok {
			errs = append(errs, FieldError{
				Field:   prefix,
				Message: fmt.Sprintf("deployment %s already declared by proxies[%d]", key, prev),
			})
		} else {
			keys[key] = i
		}

		if p.ListenPort != 0 {
			if prev, ok := ports[p.ListenPort]; ok {
				errs = append(errs, FieldError{
					Field:   prefix + ".listen_port",
					Message: fmt.Sprintf("port %d already used by proxies[%d]", p.ListenPort, prev),
				})
			} else {
				ports[p.ListenPort] = i
			}
		}
	}

	return errs
}
