package tracking

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"mercator-hq/tracker/pkg/proxy"
	"mercator-hq/tracker/pkg/requestlog"
)

// Config contains the control plane's log query limits.
type Config struct {
	// DefaultLogLimit applies when a caller passes a non-positive limit.
	// Default: 50
	DefaultLogLimit int

	// MaxLogLimit caps every request. 0 means no cap.
	// Default: 1000
	MaxLogLimit int
}

// DefaultConfig returns the default control plane configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultLogLimit: 50,
		MaxLogLimit:     1000,
	}
}

// ProxyLookup finds the running proxy for a deployment. *proxy.Registry
// implements it.
type ProxyLookup interface {
	Lookup(key proxy.Key) (*proxy.Entry, error)
}

// ControlPlane toggles tracking on running proxies, serves stored logs and
// broadcasts newly persisted entries.
type ControlPlane struct {
	proxies ProxyLookup
	store   requestlog.Store
	hub     *Hub
	config  atomic.Pointer[Config]
	logger  *slog.Logger
}

// NewControlPlane creates a control plane.
func NewControlPlane(proxies ProxyLookup, store requestlog.Store, hub *Hub, config *Config) *ControlPlane {
	c := &ControlPlane{
		proxies: proxies,
		store:   store,
		hub:     hub,
		logger:  slog.Default().With("component", "tracking.control"),
	}
	c.SetConfig(config)
	return c
}

// SetConfig replaces the log limits. Used on config reload.
func (c *ControlPlane) SetConfig(config *Config) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.DefaultLogLimit <= 0 {
		cfg.DefaultLogLimit = 50
	}
	c.config.Store(&cfg)
}

// Hub returns the broadcast hub.
func (c *ControlPlane) Hub() *Hub {
	return c.hub
}

// Enable turns logging on for the deployment's proxy.
func (c *ControlPlane) Enable(ctx context.Context, key proxy.Key) (*Notice, error) {
	entry, err := c.proxies.Lookup(key)
	if err != nil {
		return nil, err
	}

	notice := &Notice{
		ProjectID:    key.ProjectID,
		DeploymentID: key.DeploymentID,
		Enabled:      true,
		Port:         entry.ListenPort,
	}

	if !entry.SetLogging(true) {
		notice.AlreadyEnabled = true
		notice.Message = MsgAlreadyEnabled
		return notice, nil
	}

	notice.Message = EnabledMessage(entry.ListenPort)
	c.logger.Info("request tracking enabled",
		"project_id", key.ProjectID,
		"deployment_id", key.DeploymentID,
		"listen_port", entry.ListenPort,
	)
	return notice, nil
}

// Disable turns logging off. The proxy keeps forwarding.
func (c *ControlPlane) Disable(ctx context.Context, key proxy.Key) (*Notice, error) {
	entry, err := c.proxies.Lookup(key)
	if err != nil {
		return nil, err
	}

	notice := &Notice{
		ProjectID:    key.ProjectID,
		DeploymentID: key.DeploymentID,
	}

	if !entry.SetLogging(false) {
		notice.NotEnabled = true
		notice.Message = MsgNotEnabled
		return notice, nil
	}

	notice.Message = MsgDisabled
	c.logger.Info("request tracking disabled",
		"project_id", key.ProjectID,
		"deployment_id", key.DeploymentID,
	)
	return notice, nil
}

// EffectiveLimit applies the default and the cap to a requested limit.
func (c *ControlPlane) EffectiveLimit(limit int) int {
	cfg := c.config.Load()
	if limit <= 0 {
		limit = cfg.DefaultLogLimit
	}
	if cfg.MaxLogLimit > 0 && limit > cfg.MaxLogLimit {
		limit = cfg.MaxLogLimit
	}
	return limit
}

// GetLogs returns the newest entries for the deployment. The proxy does not
// need to be running.
func (c *ControlPlane) GetLogs(ctx context.Context, projectID, deploymentID string, limit int) ([]*requestlog.Entry, error) {
	return c.store.List(ctx, projectID, deploymentID, c.EffectiveLimit(limit))
}

// ClearLogs deletes every entry for the deployment.
func (c *ControlPlane) ClearLogs(ctx context.Context, projectID, deploymentID string) (int64, error) {
	deleted, err := c.store.DeleteAll(ctx, projectID, deploymentID)
	if err != nil {
		return 0, err
	}
	c.logger.Info("request logs cleared",
		"project_id", projectID,
		"deployment_id", deploymentID,
		"deleted_count", deleted,
	)
	return deleted, nil
}

// RecordPersisted broadcasts a stored entry to its project channel. It is
// registered as the recorder's persisted listener.
func (c *ControlPlane) RecordPersisted(entry *requestlog.Entry) {
	if c.hub == nil {
		return
	}
	c.hub.Publish(entry.ProjectID, Event{
		Name: EventRequestLogged,
		Data: LoggedPayload{
			DeploymentID: entry.DeploymentID,
			Request:      entry.Summarize(),
		},
	})
}

// ErrorMessage returns the client-facing message for err, or fallback when
// err carries none.
func ErrorMessage(err error, fallback string) string {
	var notFound *proxy.NotFoundError
	if errors.As(err, &notFound) {
		return MsgProxyNotFound
	}
	return fallback
}
