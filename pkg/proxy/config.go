package proxy

import (
	"net"
	"net/http"
	"time"
)

// Config contains configuration shared by every proxy in a Registry.
type Config struct {
	// BindHost is the address proxies listen on.
	// Default: "0.0.0.0"
	BindHost string

	// BackendHost is the host backends are reached on.
	// Default: "127.0.0.1"
	BackendHost string

	// DrainTimeout bounds how long Unregister waits for in-flight
	// connections before closing them.
	// Default: 10 seconds
	DrainTimeout time.Duration

	// CaptureLimit is the number of characters kept per body.
	// Default: 5000
	CaptureLimit int

	// ChangeOrigin rewrites the Host header to the backend address.
	ChangeOrigin bool

	// TrustForwardedHeaders takes the client IP from X-Forwarded-For or
	// X-Real-IP.
	TrustForwardedHeaders bool

	// FlushInterval is passed to httputil.ReverseProxy. Zero flushes per
	// its defaults, negative flushes after every write.
	FlushInterval time.Duration

	// Backend transport settings.
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	ResponseHeaderTimeout time.Duration
}

// DefaultConfig returns the default proxy configuration.
func DefaultConfig() *Config {
	return &Config{
		BindHost:            "0.0.0.0",
		BackendHost:         "127.0.0.1",
		DrainTimeout:        10 * time.Second,
		CaptureLimit:        DefaultCaptureLimit,
		DialTimeout:         10 * time.Second,
		KeepAlive:           30 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// dialer returns the dialer used for HTTP and WebSocket backends.
func (c *Config) dialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   c.DialTimeout,
		KeepAlive: c.KeepAlive,
	}
}

// NewTransport builds the backend transport. Backends are plain HTTP on a
// local port, so no proxy and no TLS settings apply.
func (c *Config) NewTransport() *http.Transport {
	return &http.Transport{
		DialContext:           c.dialer().DialContext,
		MaxIdleConns:          c.MaxIdleConns,
		MaxIdleConnsPerHost:   c.MaxIdleConnsPerHost,
		IdleConnTimeout:       c.IdleConnTimeout,
		ResponseHeaderTimeout: c.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.BindHost == "" {
		out.BindHost = d.BindHost
	}
	if out.BackendHost == "" {
		out.BackendHost = d.BackendHost
	}
	if out.DrainTimeout <= 0 {
		out.DrainTimeout = d.DrainTimeout
	}
	if out.CaptureLimit <= 0 {
		out.CaptureLimit = d.CaptureLimit
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = d.DialTimeout
	}
	if out.KeepAlive == 0 {
		out.KeepAlive = d.KeepAlive
	}
	if out.MaxIdleConns <= 0 {
		out.MaxIdleConns = d.MaxIdleConns
	}
	if out.MaxIdleConnsPerHost <= 0 {
		out.MaxIdleConnsPerHost = d.MaxIdleConnsPerHost
	}
	if out.IdleConnTimeout <= 0 {
		out.IdleConnTimeout = d.IdleConnTimeout
	}
	return &out
}
