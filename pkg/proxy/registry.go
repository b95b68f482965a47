package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"mercator-hq/tracker/pkg/requestlog"
)

// RegisterRequest describes a proxy to start for a deployment.
type RegisterRequest struct {
	Key         Key
	ContainerID string

	// ListenPort is the public port. 0 lets the OS choose.
	ListenPort int

	// BackendPort is the container's port on the backend host.
	BackendPort int

	// Tracking starts the proxy with logging enabled.
	Tracking bool
}

// ListenFunc opens a listener, matching net.Listen.
type ListenFunc func(network, address string) (net.Listener, error)

// Registry owns every running proxy, keyed by deployment.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*Entry
	ports   map[int]Key

	config    *Config
	transport *http.Transport
	sink      Sink
	metrics   Metrics
	listen    ListenFunc
	logger    *slog.Logger
}

// NewRegistry creates a registry whose proxies hand completed exchanges to
// sink. A nil sink discards them.
func NewRegistry(config *Config, sink Sink) *Registry {
	config = config.withDefaults()
	if sink == nil {
		sink = SinkFunc(func(*requestlog.Entry) {})
	}
	return &Registry{
		entries:   make(map[Key]*Entry),
		ports:     make(map[int]Key),
		config:    config,
		transport: config.NewTransport(),
		sink:      sink,
		metrics:   noopMetrics{},
		listen:    net.Listen,
		logger:    slog.Default().With("component", "proxy.registry"),
	}
}

// SetMetrics sets the metrics sink for proxies registered afterwards.
func (r *Registry) SetMetrics(m Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m == nil {
		m = noopMetrics{}
	}
	r.metrics = m
}

// SetListenFunc replaces net.Listen, mainly for tests.
func (r *Registry) SetListenFunc(fn ListenFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listen = fn
}

// Config returns the registry's effective configuration.
func (r *Registry) Config() Config {
	return *r.config
}

// Register binds the listen port and starts forwarding to the backend port.
// On error nothing is left behind.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*Entry, error) {
	if req.Key.ProjectID == "" {
		return nil, NewInvalidRequestError("projectId", "is required")
	}
	if req.Key.DeploymentID == "" {
		return nil, NewInvalidRequestError("deploymentId", "is required")
	}
	if req.BackendPort < 1 || req.BackendPort > 65535 {
		return nil, NewInvalidRequestError("backendPort", fmt.Sprintf("must be between 1 and 65535, got %d", req.BackendPort))
	}
	if req.ListenPort < 0 || req.ListenPort > 65535 {
		return nil, NewInvalidRequestError("listenPort", fmt.Sprintf("must be between 0 and 65535, got %d", req.ListenPort))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[req.Key]; exists {
		return nil, NewDuplicateEntryError(req.Key)
	}
	if req.ListenPort != 0 {
		if owner, taken := r.ports[req.ListenPort]; taken {
			return nil, NewPortInUseError(req.ListenPort, &owner, nil)
		}
	}

	addr := net.JoinHostPort(r.config.BindHost, strconv.Itoa(req.ListenPort))
	ln, err := r.listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, NewPortInUseError(req.ListenPort, nil, err)
		}
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	port := req.ListenPort
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	entry := &Entry{
		Key:         req.Key,
		ContainerID: req.ContainerID,
		ListenPort:  port,
		BackendPort: req.BackendPort,
		CreatedAt:   time.Now(),
		listener:    ln,
	}
	entry.logging.Store(req.Tracking)
	entry.engine = newEngine(entry, r.config, r.transport, r.sink, r.metrics)
	entry.server = &http.Server{
		Handler:           entry.engine,
		ReadHeaderTimeout: 30 * time.Second,
		ErrorLog:          slog.NewLogLogger(r.logger.Handler(), slog.LevelWarn),
	}

	r.entries[req.Key] = entry
	r.ports[port] = req.Key
	r.metrics.SetActiveProxies(len(r.entries))

	go func() {
		if err := entry.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("proxy server stopped",
				"project_id", req.Key.ProjectID,
				"deployment_id", req.Key.DeploymentID,
				"error", err,
			)
		}
	}()

	r.logger.Info("proxy registered",
		"project_id", req.Key.ProjectID,
		"deployment_id", req.Key.DeploymentID,
		"container_id", req.ContainerID,
		"listen_addr", ln.Addr().String(),
		"backend_port", req.BackendPort,
		"tracking", req.Tracking,
	)

	return entry, nil
}

// Lookup returns the entry for key.
func (r *Registry) Lookup(key Key) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return nil, NewNotFoundError(key)
	}
	return entry, nil
}

// List returns every entry sorted by key.
func (r *Registry) List() []*Entry {
	r.mu.Lock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Key.ProjectID != entries[j].Key.ProjectID {
			return entries[i].Key.ProjectID < entries[j].Key.ProjectID
		}
		return entries[i].Key.DeploymentID < entries[j].Key.DeploymentID
	})
	return entries
}

// Len returns the number of registered proxies.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Unregister stops the proxy for key. In-flight exchanges get up to
// DrainTimeout to finish before their connections are closed. Unknown keys
// are a no-op.
func (r *Registry) Unregister(ctx context.Context, key Key) error {
	r.mu.Lock()
	entry, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
		delete(r.ports, entry.ListenPort)
		r.metrics.SetActiveProxies(len(r.entries))
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}

	r.shutdown(ctx, entry)

	r.logger.Info("proxy unregistered",
		"project_id", key.ProjectID,
		"deployment_id", key.DeploymentID,
		"listen_port", entry.ListenPort,
	)
	return nil
}

// Close unregisters every proxy concurrently.
func (r *Registry) Close(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, entry := range r.List() {
		wg.Add(1)
		go func(key Key) {
			defer wg.Done()
			r.Unregister(ctx, key)
		}(entry.Key)
	}
	wg.Wait()
	return nil
}

// shutdown stops accepting, drains and then force-closes an entry's
// connections.
func (r *Registry) shutdown(ctx context.Context, entry *Entry) {
	drainCtx, cancel := context.WithTimeout(ctx, r.config.DrainTimeout)
	defer cancel()

	logger := r.logger.With(
		"project_id", entry.Key.ProjectID,
		"deployment_id", entry.Key.DeploymentID,
	)

	// Shutdown closes the listener first, then waits for idle connections.
	if err := entry.server.Shutdown(drainCtx); err != nil {
		logger.Warn("drain timeout reached, closing connections", "error", err)
		entry.server.Close()
	}

	if err := entry.engine.pipes.wait(drainCtx); err != nil {
		n := entry.engine.pipes.closeAll()
		logger.Warn("closing websocket pipes after drain timeout", "open_pipes", n)
	}
}
