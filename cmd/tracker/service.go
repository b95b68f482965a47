package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/tracker/pkg/config"
	"mercator-hq/tracker/pkg/proxy"
	"mercator-hq/tracker/pkg/requestlog"
	"mercator-hq/tracker/pkg/requestlog/recorder"
	"mercator-hq/tracker/pkg/requestlog/retention"
	"mercator-hq/tracker/pkg/requestlog/storage"
	"mercator-hq/tracker/pkg/server"
	"mercator-hq/tracker/pkg/telemetry/health"
	"mercator-hq/tracker/pkg/telemetry/metrics"
	"mercator-hq/tracker/pkg/tracking"
)

// service is the assembled tracker: store, recorder, proxies, control plane
// and control API.
type service struct {
	store     requestlog.Backend
	recorder  *recorder.Recorder
	registry  *proxy.Registry
	hub       *tracking.Hub
	control   *tracking.ControlPlane
	collector *metrics.Collector
	checker   *health.Checker
	pruner    *retention.Pruner
	server    *server.Server
}

// openStore opens the configured log store.
func openStore(ctx context.Context, cfg *config.StoreConfig) (requestlog.Backend, error) {
	switch cfg.Backend {
	case "sqlite":
		store, err := storage.NewSQLiteStore(sqliteConfig(&cfg.SQLite))
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite store: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := storage.NewPostgresStore(ctx, postgresConfig(&cfg.Postgres))
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL store: %w", err)
		}
		return store, nil
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

func sqliteConfig(cfg *config.SQLiteConfig) *storage.SQLiteConfig {
	return &storage.SQLiteConfig{
		Path:         cfg.Path,
		Driver:       cfg.Driver,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		WALMode:      config.Enabled(cfg.WALMode, true),
		BusyTimeout:  cfg.BusyTimeout,
	}
}

func postgresConfig(cfg *config.PostgresConfig) *storage.PostgresConfig {
	return &storage.PostgresConfig{
		DSN:            cfg.ConnString(),
		MaxConns:       cfg.MaxConns,
		MinConns:       cfg.MinConns,
		ConnectTimeout: cfg.ConnectTimeout,
		CreateSchema:   config.Enabled(cfg.CreateSchema, true),
	}
}

func proxyConfig(cfg *config.ProxyConfig) *proxy.Config {
	out := proxy.DefaultConfig()
	out.BindHost = cfg.BindHost
	out.BackendHost = cfg.BackendHost
	out.DrainTimeout = cfg.DrainTimeout
	out.CaptureLimit = cfg.CaptureLimit
	out.ChangeOrigin = cfg.ChangeOrigin
	out.TrustForwardedHeaders = cfg.TrustForwardedHeaders
	out.FlushInterval = cfg.FlushInterval
	if cfg.DialTimeout > 0 {
		out.DialTimeout = cfg.DialTimeout
	}
	if cfg.ResponseHeaderTimeout > 0 {
		out.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
	}
	if cfg.MaxIdleConnsPerHost > 0 {
		out.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}
	if cfg.IdleConnTimeout > 0 {
		out.IdleConnTimeout = cfg.IdleConnTimeout
	}
	return out
}

func recorderConfig(cfg *config.RecorderConfig) *recorder.Config {
	return &recorder.Config{
		Enabled:      true,
		AsyncBuffer:  cfg.AsyncBuffer,
		WriteTimeout: cfg.WriteTimeout,
		Workers:      cfg.Workers,
	}
}

func retentionConfig(cfg *config.RetentionConfig) *retention.Config {
	return &retention.Config{
		RetentionDays:           cfg.Days,
		MaxRecordsPerDeployment: cfg.MaxRecordsPerDeployment,
		PruneSchedule:           cfg.PruneSchedule,
	}
}

func trackingConfig(cfg *config.TrackingConfig) *tracking.Config {
	return &tracking.Config{
		DefaultLogLimit: cfg.DefaultLogLimit,
		MaxLogLimit:     cfg.MaxLogLimit,
	}
}

// newService wires every component around store. Nothing is started.
func newService(cfg *config.Config, store requestlog.Backend) *service {
	s := &service{store: store}

	s.recorder = recorder.NewRecorder(store, recorderConfig(&cfg.Recorder))
	s.registry = proxy.NewRegistry(proxyConfig(&cfg.Proxy), s.recorder)
	s.hub = tracking.NewHub(cfg.Tracking.BroadcastBuffer)
	s.control = tracking.NewControlPlane(s.registry, store, s.hub, trackingConfig(&cfg.Tracking))
	s.recorder.OnPersisted(s.control.RecordPersisted)

	var metricsHandler http.Handler
	if config.Enabled(cfg.Telemetry.Metrics.Enabled, true) {
		s.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
		s.recorder.SetMetrics(s.collector)
		s.registry.SetMetrics(s.collector)
		s.hub.SetMetrics(s.collector)
		metricsHandler = s.collector.Handler()
	}

	s.checker = health.New(5 * time.Second)
	s.checker.RegisterCheck("store", health.PingCheck(store))
	s.checker.RegisterDetail("proxies", func() any { return s.registry.Len() })
	s.checker.RegisterDetail("pending_writes", func() any { return s.recorder.Pending() })

	if cfg.Retention.Days > 0 || cfg.Retention.MaxRecordsPerDeployment > 0 {
		s.pruner = retention.NewPruner(store, retentionConfig(&cfg.Retention))
	}

	s.server = server.NewServer(&cfg.Server, server.Options{
		Registry:    s.registry,
		Control:     s.control,
		Health:      s.checker,
		Metrics:     metricsHandler,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
	})
	return s
}

// registerStatic starts the proxies listed in the configuration. A proxy
// that fails to start is logged and skipped.
func (s *service) registerStatic(ctx context.Context, proxies []config.StaticProxyConfig) int {
	started := 0
	for _, p := range proxies {
		_, err := s.registry.Register(ctx, proxy.RegisterRequest{
			Key:         proxy.Key{ProjectID: p.ProjectID, DeploymentID: p.DeploymentID},
			ContainerID: p.ContainerID,
			ListenPort:  p.ListenPort,
			BackendPort: p.BackendPort,
			Tracking:    p.Tracking,
		})
		if err != nil {
			slog.Error("failed to start configured proxy",
				"project_id", p.ProjectID,
				"deployment_id", p.DeploymentID,
				"listen_port", p.ListenPort,
				"error", err,
			)
			continue
		}
		started++
	}
	return started
}

// applyReload pushes the reloadable settings of a new configuration into
// the running service.
func (s *service) applyReload(cfg *config.Config, setLevel func(string) error) {
	if setLevel != nil {
		if err := setLevel(cfg.Telemetry.Logging.Level); err != nil {
			slog.Warn("ignoring invalid log level on reload", "level", cfg.Telemetry.Logging.Level, "error", err)
		}
	}
	s.control.SetConfig(trackingConfig(&cfg.Tracking))
	slog.Info("configuration reloaded")
}

// close stops every proxy, drains the recorder and closes the store, in
// that order.
func (s *service) close(ctx context.Context) error {
	if s.pruner != nil {
		s.pruner.Stop()
	}

	var errs []error
	if err := s.registry.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop proxies: %w", err))
	}
	if err := s.recorder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to drain recorder: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	return errors.Join(errs...)
}
