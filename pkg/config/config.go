package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration structure for the tracker.
type Config struct {
	// Server contains the control API server configuration.
	Server ServerConfig `yaml:"server"`

	// Proxy contains settings shared by every deployment proxy.
	Proxy ProxyConfig `yaml:"proxy"`

	// Store selects and configures the request log backend.
	Store StoreConfig `yaml:"store"`

	// Recorder contains the async log writer configuration.
	Recorder RecorderConfig `yaml:"recorder"`

	// Retention controls age and count based pruning of request logs.
	Retention RetentionConfig `yaml:"retention"`

	// Tracking contains control plane limits.
	Tracking TrackingConfig `yaml:"tracking"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Proxies are registered at startup, for deployments not managed by an
	// orchestrator.
	Proxies []StaticProxyConfig `yaml:"proxies"`

	// Watch reloads the configuration file when it changes.
	// Default: false
	Watch bool `yaml:"watch"`
}

// ServerConfig contains configuration for the control API server.
type ServerConfig struct {
	// ListenAddress is the address the control API listens on.
	// Default: "127.0.0.1:4000"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response. It does
	// not apply to the WebSocket channel once upgraded.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown of the control server and
	// every proxy.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are sent.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods.
	// Default: ["GET", "POST", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed request headers.
	// Default: ["Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers exposed to the client.
	// Default: ["X-Request-ID"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the preflight cache duration in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`

	// AllowCredentials allows cookies on cross-origin requests.
	// Default: false
	AllowCredentials bool `yaml:"allow_credentials"`
}

// ProxyConfig contains settings shared by every deployment proxy.
type ProxyConfig struct {
	// BindHost is the address proxies listen on.
	// Default: "0.0.0.0"
	BindHost string `yaml:"bind_host"`

	// BackendHost is the host deployment containers are reached on.
	// Default: "127.0.0.1"
	BackendHost string `yaml:"backend_host"`

	// DrainTimeout bounds how long unregister waits for in-flight
	// connections.
	// Default: 10s
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// CaptureLimit is the number of characters kept per request and
	// response body.
	// Default: 5000
	CaptureLimit int `yaml:"capture_limit"`

	// ChangeOrigin rewrites the Host header to the backend address.
	// Default: false
	ChangeOrigin bool `yaml:"change_origin"`

	// TrustForwardedHeaders takes the client IP from X-Forwarded-For or
	// X-Real-IP instead of the socket peer.
	// Default: false
	TrustForwardedHeaders bool `yaml:"trust_forwarded_headers"`

	// FlushInterval is the response flush interval. Negative flushes after
	// every write.
	// Default: 0
	FlushInterval time.Duration `yaml:"flush_interval"`

	// DialTimeout bounds backend connection setup.
	// Default: 10s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ResponseHeaderTimeout bounds the wait for backend response headers.
	// 0 means no limit.
	// Default: 0
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`

	// MaxIdleConnsPerHost is the idle backend connection pool size per
	// deployment.
	// Default: 10
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout closes idle backend connections.
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// StoreConfig selects the request log backend.
type StoreConfig struct {
	// Backend is the storage backend.
	// Options: "sqlite", "postgres", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres contains PostgreSQL-specific configuration.
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/requests.db"
	Path string `yaml:"path"`

	// Driver is the database/sql driver.
	// Options: "sqlite3" (cgo), "sqlite" (pure Go)
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode *bool `yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL-specific configuration. DSN takes
// precedence over the individual connection fields.
type PostgresConfig struct {
	// DSN is a postgres:// URL or key=value connection string.
	DSN string `yaml:"dsn"`

	// Host is the PostgreSQL server hostname.
	Host string `yaml:"host"`

	// Port is the PostgreSQL server port.
	// Default: 5432
	Port int `yaml:"port"`

	// Database is the name of the database to use.
	Database string `yaml:"database"`

	// User is the PostgreSQL user for authentication.
	User string `yaml:"user"`

	// Password is the PostgreSQL password.
	// This should typically be loaded from an environment variable.
	Password string `yaml:"password"`

	// SSLMode controls SSL/TLS connection mode.
	// Options: "disable", "require", "verify-ca", "verify-full"
	// Default: "require"
	SSLMode string `yaml:"ssl_mode"`

	// MaxConns is the maximum pool size. 0 keeps the driver default.
	MaxConns int32 `yaml:"max_conns"`

	// MinConns is the minimum number of pooled connections.
	MinConns int32 `yaml:"min_conns"`

	// ConnectTimeout bounds the initial connection.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// CreateSchema creates the request_logs table if it is missing.
	// Default: true
	CreateSchema *bool `yaml:"create_schema"`
}

// RecorderConfig contains the async log writer configuration.
type RecorderConfig struct {
	// AsyncBuffer is the size of the pending entry queue.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout is the timeout for a single store write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Workers is the number of concurrent writers.
	// Default: 1
	Workers int `yaml:"workers"`
}

// RetentionConfig controls request log pruning.
type RetentionConfig struct {
	// Days is the number of days to keep request logs. 0 keeps them forever.
	// Default: 0
	Days int `yaml:"days"`

	// MaxRecordsPerDeployment keeps only the newest entries of each
	// deployment. 0 means unlimited.
	// Default: 0
	MaxRecordsPerDeployment int64 `yaml:"max_records_per_deployment"`

	// PruneSchedule is a cron expression for scheduled pruning.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`
}

// TrackingConfig contains control plane limits.
type TrackingConfig struct {
	// DefaultLogLimit applies when get-request-logs has no limit.
	// Default: 50
	DefaultLogLimit int `yaml:"default_log_limit"`

	// MaxLogLimit caps every log query.
	// Default: 1000
	MaxLogLimit int `yaml:"max_log_limit"`

	// BroadcastBuffer is the outbound event queue size per control client.
	// Events for a client whose queue is full are dropped.
	// Default: 100
	BroadcastBuffer int `yaml:"broadcast_buffer"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "tracker"
	Namespace string `yaml:"namespace"`
}

// StaticProxyConfig describes a proxy registered at startup.
type StaticProxyConfig struct {
	ProjectID    string `yaml:"project_id"`
	DeploymentID string `yaml:"deployment_id"`
	ContainerID  string `yaml:"container_id"`

	// ListenPort is the public port. 0 picks a free port.
	ListenPort int `yaml:"listen_port"`

	// BackendPort is the container port on the backend host.
	BackendPort int `yaml:"backend_port"`

	// Tracking starts the proxy with logging enabled.
	Tracking bool `yaml:"tracking"`
}

// Enabled reports the value of an optional flag, or def when unset.
func Enabled(flag *bool, def bool) bool {
	if flag == nil {
		return def
	}
	return *flag
}

// ConnString returns DSN, or a postgres:// URL built from the connection
// fields.
func (c *PostgresConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}
