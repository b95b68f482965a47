package proxy

import (
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// Key identifies a deployment's proxy.
type Key struct {
	ProjectID    string `json:"projectId"`
	DeploymentID string `json:"deploymentId"`
}

// String returns "project/deployment".
func (k Key) String() string {
	return k.ProjectID + "/" + k.DeploymentID
}

// Entry is a registered proxy: one listener forwarding to one backend port.
type Entry struct {
	Key         Key
	ContainerID string
	ListenPort  int
	BackendPort int
	CreatedAt   time.Time

	logging  atomic.Bool
	listener net.Listener
	server   *http.Server
	engine   *Engine
}

// LoggingEnabled reports whether exchanges are currently recorded.
func (e *Entry) LoggingEnabled() bool {
	return e.logging.Load()
}

// SetLogging sets the logging flag and reports whether it changed.
func (e *Entry) SetLogging(enabled bool) bool {
	return e.logging.CompareAndSwap(!enabled, enabled)
}

// Info is a serializable snapshot of an Entry.
type Info struct {
	ProjectID      string    `json:"projectId"`
	DeploymentID   string    `json:"deploymentId"`
	ContainerID    string    `json:"containerId"`
	ListenPort     int       `json:"listenPort"`
	BackendPort    int       `json:"backendPort"`
	LoggingEnabled bool      `json:"loggingEnabled"`
	ActivePipes    int       `json:"activeWebSockets"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Info returns a snapshot of the entry.
func (e *Entry) Info() Info {
	info := Info{
		ProjectID:      e.Key.ProjectID,
		DeploymentID:   e.Key.DeploymentID,
		ContainerID:    e.ContainerID,
		ListenPort:     e.ListenPort,
		BackendPort:    e.BackendPort,
		LoggingEnabled: e.LoggingEnabled(),
		CreatedAt:      e.CreatedAt,
	}
	if e.engine != nil {
		info.ActivePipes = e.engine.pipes.count()
	}
	return info
}
