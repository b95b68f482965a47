package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:4000"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600 // 1 hour

	// Proxy defaults
	DefaultBindHost            = "0.0.0.0"
	DefaultBackendHost         = "127.0.0.1"
	DefaultDrainTimeout        = 10 * time.Second
	DefaultCaptureLimit        = 5000
	DefaultDialTimeout         = 10 * time.Second
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second

	// Store defaults
	DefaultStoreBackend         = "sqlite"
	DefaultSQLitePath           = "data/requests.db"
	DefaultSQLiteDriver         = "sqlite3"
	DefaultSQLiteMaxOpenConns   = 10
	DefaultSQLiteMaxIdleConns   = 5
	DefaultSQLiteWALMode        = true
	DefaultSQLiteBusyTimeout    = 5 * time.Second
	DefaultPostgresPort         = 5432
	DefaultPostgresSSLMode      = "require"
	DefaultPostgresConnTimeout  = 10 * time.Second
	DefaultPostgresCreateSchema = true

	// Recorder defaults
	DefaultRecorderAsyncBuffer  = 1000
	DefaultRecorderWriteTimeout = 5 * time.Second
	DefaultRecorderWorkers      = 1

	// Retention defaults
	DefaultRetentionSchedule = "0 3 * * *"

	// Tracking defaults
	DefaultLogLimit        = 50
	DefaultMaxLogLimit     = 1000
	DefaultBroadcastBuffer = 100

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsEnabled   = true
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "tracker"
)

var (
	// DefaultCORSAllowedOrigins is the default list of allowed CORS origins.
	DefaultCORSAllowedOrigins = []string{"*"}

	// DefaultCORSAllowedMethods is the default list of allowed CORS methods.
	DefaultCORSAllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}

	// DefaultCORSAllowedHeaders is the default list of allowed CORS headers.
	DefaultCORSAllowedHeaders = []string{"Content-Type", "X-Request-ID"}

	// DefaultCORSExposedHeaders is the default list of exposed CORS headers.
	DefaultCORSExposedHeaders = []string{"X-Request-ID"}
)

// NewDefaultConfig returns a configuration with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Fields already
// set are left alone.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	applyCORSDefaults(&cfg.Server.CORS)

	// Proxy defaults
	if cfg.Proxy.BindHost == "" {
		cfg.Proxy.BindHost = DefaultBindHost
	}
	if cfg.Proxy.BackendHost == "" {
		cfg.Proxy.BackendHost = DefaultBackendHost
	}
	if cfg.Proxy.DrainTimeout == 0 {
		cfg.Proxy.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Proxy.CaptureLimit == 0 {
		cfg.Proxy.CaptureLimit = DefaultCaptureLimit
	}
	if cfg.Proxy.DialTimeout == 0 {
		cfg.Proxy.DialTimeout = DefaultDialTimeout
	}
	if cfg.Proxy.MaxIdleConnsPerHost == 0 {
		cfg.Proxy.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if cfg.Proxy.IdleConnTimeout == 0 {
		cfg.Proxy.IdleConnTimeout = DefaultIdleConnTimeout
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Store.SQLite.Driver == "" {
		cfg.Store.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Store.SQLite.MaxOpenConns == 0 {
		cfg.Store.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Store.SQLite.MaxIdleConns == 0 {
		cfg.Store.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.Store.SQLite.WALMode == nil {
		cfg.Store.SQLite.WALMode = boolPtr(DefaultSQLiteWALMode)
	}
	if cfg.Store.SQLite.BusyTimeout == 0 {
		cfg.Store.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Store.Postgres.Port == 0 {
		cfg.Store.Postgres.Port = DefaultPostgresPort
	}
	if cfg.Store.Postgres.SSLMode == "" {
		cfg.Store.Postgres.SSLMode = DefaultPostgresSSLMode
	}
	if cfg.Store.Postgres.ConnectTimeout == 0 {
		cfg.Store.Postgres.ConnectTimeout = DefaultPostgresConnTimeout
	}
	if cfg.Store.Postgres.CreateSchema == nil {
		cfg.Store.Postgres.CreateSchema = boolPtr(DefaultPostgresCreateSchema)
	}

	// Recorder defaults
	if cfg.Recorder.AsyncBuffer == 0 {
		cfg.Recorder.AsyncBuffer = DefaultRecorderAsyncBuffer
	}
	if cfg.Recorder.WriteTimeout == 0 {
		cfg.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}
	if cfg.Recorder.Workers == 0 {
		cfg.Recorder.Workers = DefaultRecorderWorkers
	}

	// Retention defaults
	if cfg.Retention.PruneSchedule == "" {
		cfg.Retention.PruneSchedule = DefaultRetentionSchedule
	}

	// Tracking defaults
	if cfg.Tracking.DefaultLogLimit == 0 {
		cfg.Tracking.DefaultLogLimit = DefaultLogLimit
	}
	if cfg.Tracking.MaxLogLimit == 0 {
		cfg.Tracking.MaxLogLimit = DefaultMaxLogLimit
	}
	if cfg.Tracking.BroadcastBuffer == 0 {
		cfg.Tracking.BroadcastBuffer = DefaultBroadcastBuffer
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Enabled == nil {
		cfg.Telemetry.Metrics.Enabled = boolPtr(DefaultMetricsEnabled)
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// applyCORSDefaults applies default values to CORS configuration.
func applyCORSDefaults(cors *CORSConfig) {
	if cors.Enabled == nil {
		cors.Enabled = boolPtr(DefaultCORSEnabled)
	}
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = append([]string(nil), DefaultCORSAllowedOrigins...)
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = append([]string(nil), DefaultCORSAllowedMethods...)
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = append([]string(nil), DefaultCORSAllowedHeaders...)
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = append([]string(nil), DefaultCORSExposedHeaders...)
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}

func boolPtr(b bool) *bool {
	return &b
}
