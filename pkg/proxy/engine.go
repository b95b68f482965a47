package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"mercator-hq/tracker/pkg/requestlog"
)

// Sink receives completed exchanges. Record must not block.
type Sink interface {
	Record(entry *requestlog.Entry)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(entry *requestlog.Entry)

// Record calls f(entry).
func (f SinkFunc) Record(entry *requestlog.Entry) { f(entry) }

// Metrics receives proxy traffic metrics. *metrics.Collector implements it.
type Metrics interface {
	RecordExchange(tracked bool, status int, duration time.Duration)
	RecordBackendError()
	SetActiveProxies(n int)
	WebSocketOpened()
	WebSocketClosed()
}

type noopMetrics struct{}

func (noopMetrics) RecordExchange(bool, int, time.Duration) {}
func (noopMetrics) RecordBackendError()                     {}
func (noopMetrics) SetActiveProxies(int)                    {}
func (noopMetrics) WebSocketOpened()                        {}
func (noopMetrics) WebSocketClosed()                        {}

// forwardedHeaders are stripped by httputil.ReverseProxy before Rewrite runs.
// They are copied back so the backend sees the client's headers unchanged.
var forwardedHeaders = []string{"X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

// Engine forwards one listener's traffic to one backend port and records
// exchanges while its entry has logging enabled.
type Engine struct {
	entry       *Entry
	config      *Config
	target      *url.URL
	backendAddr string
	proxy       *httputil.ReverseProxy
	dialer      *net.Dialer
	sink        Sink
	metrics     Metrics
	pipes       *pipeSet
	logger      *slog.Logger

	// countUntracked is false when metrics are disabled.
	countUntracked bool
}

// exchange carries per-request state through the reverse proxy.
type exchange struct {
	start    time.Time
	tracked  bool
	meta     *RequestMetadata
	reqBody  *CaptureBuffer
	respBody *CaptureBuffer
	writer   *captureWriter
	done     atomic.Bool
}

type exchangeKey struct{}

func exchangeFrom(ctx context.Context) *exchange {
	ex, _ := ctx.Value(exchangeKey{}).(*exchange)
	return ex
}

func newEngine(entry *Entry, config *Config, transport http.RoundTripper, sink Sink, metrics Metrics) *Engine {
	backendAddr := net.JoinHostPort(config.BackendHost, strconv.Itoa(entry.BackendPort))

	e := &Engine{
		entry:       entry,
		config:      config,
		target:      &url.URL{Scheme: "http", Host: backendAddr},
		backendAddr: backendAddr,
		dialer:      config.dialer(),
		sink:        sink,
		metrics:     metrics,
		pipes:       newPipeSet(),
		logger: slog.Default().With(
			"component", "proxy.engine",
			"project_id", entry.Key.ProjectID,
			"deployment_id", entry.Key.DeploymentID,
		),
	}

	_, noop := metrics.(noopMetrics)
	e.countUntracked = !noop

	e.proxy = &httputil.ReverseProxy{
		Rewrite:        e.rewrite,
		Transport:      transport,
		FlushInterval:  config.FlushInterval,
		ModifyResponse: e.modifyResponse,
		ErrorHandler:   e.handleError,
		ErrorLog:       slog.NewLogLogger(e.logger.Handler(), slog.LevelWarn),
	}

	return e
}

// ServeHTTP implements http.Handler.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isWebSocketUpgrade(r) {
		e.serveWebSocket(w, r)
		return
	}

	if !e.entry.LoggingEnabled() {
		e.serveUntracked(w, r)
		return
	}

	ex := &exchange{
		start:   time.Now(),
		tracked: true,
	}

	ex.meta = ExtractRequestMetadata(r, e.config.TrustForwardedHeaders)
	ex.reqBody = NewCaptureBuffer(e.config.CaptureLimit)
	ex.respBody = NewCaptureBuffer(e.config.CaptureLimit)
	ex.writer = &captureWriter{ResponseWriter: w, buf: ex.respBody}

	if r.Body != nil && r.Body != http.NoBody {
		r.Body = &captureReader{rc: r.Body, buf: ex.reqBody}
	}

	defer func() {
		if rec := recover(); rec != nil {
			detail := fmt.Sprint(rec)
			if rec == http.ErrAbortHandler {
				detail = "response aborted while streaming"
			}
			e.complete(ex, ex.writer.Status(), detail)
			panic(rec)
		}
	}()

	e.proxy.ServeHTTP(ex.writer, r.WithContext(context.WithValue(r.Context(), exchangeKey{}, ex)))

	e.complete(ex, ex.writer.Status(), "")
}

// serveUntracked is plain passthrough. Without metrics the request and
// response writer are handed to the reverse proxy as they are.
func (e *Engine) serveUntracked(w http.ResponseWriter, r *http.Request) {
	if !e.countUntracked {
		e.proxy.ServeHTTP(w, r)
		return
	}

	start := time.Now()
	sw := &statusWriter{ResponseWriter: w}
	defer func() {
		if sw.status != 0 {
			e.metrics.RecordExchange(false, sw.status, time.Since(start))
		}
	}()
	e.proxy.ServeHTTP(sw, r)
}

func (e *Engine) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(e.target)
	if !e.config.ChangeOrigin {
		pr.Out.Host = pr.In.Host
	}
	for _, h := range forwardedHeaders {
		if v, ok := pr.In.Header[h]; ok {
			pr.Out.Header[h] = v
		}
	}
}

func (e *Engine) modifyResponse(resp *http.Response) error {
	if ex := exchangeFrom(resp.Request.Context()); ex != nil {
		e.metrics.RecordExchange(ex.tracked, resp.StatusCode, time.Since(ex.start))
	}
	return nil
}

// handleError answers 502 when the backend cannot be reached or fails
// before sending a response.
func (e *Engine) handleError(w http.ResponseWriter, r *http.Request, err error) {
	e.metrics.RecordBackendError()

	if errors.Is(err, context.Canceled) {
		e.logger.Debug("client canceled request", "method", r.Method, "path", r.URL.Path)
	} else {
		e.logger.Warn("backend request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"backend", e.backendAddr,
			"error", err,
		)
	}

	w.WriteHeader(http.StatusBadGateway)

	// Untracked exchanges carry no state; serveUntracked counts them.
	ex := exchangeFrom(r.Context())
	if ex == nil {
		return
	}
	e.metrics.RecordExchange(true, http.StatusBadGateway, time.Since(ex.start))
	e.complete(ex, http.StatusBadGateway, err.Error())
}

// complete hands the exchange to the sink. Only the first call per exchange
// has any effect.
func (e *Engine) complete(ex *exchange, status int, errorDetail string) {
	if !ex.tracked || !ex.done.CompareAndSwap(false, true) {
		return
	}
	if status == 0 {
		status = http.StatusBadGateway
	}

	entry := &requestlog.Entry{
		ProjectID:    e.entry.Key.ProjectID,
		DeploymentID: e.entry.Key.DeploymentID,
		ContainerID:  e.entry.ContainerID,
		Method:       ex.meta.Method,
		Path:         ex.meta.Path,
		Status:       status,
		ResponseTime: time.Since(ex.start).Milliseconds(),
		RequestIP:    ex.meta.ClientIP,
		UserAgent:    ex.meta.UserAgent,
		Referer:      ex.meta.Referer,
		Headers:      ex.meta.Headers,
		QueryParams:  ex.meta.QueryParams,
		RequestBody:  ex.reqBody.String(),
		ResponseBody: ex.respBody.String(),
		ErrorDetail:  errorDetail,
	}

	e.logger.Debug("exchange completed",
		"method", entry.Method,
		"path", entry.Path,
		"status", entry.Status,
		"response_time_ms", entry.ResponseTime,
		"request_truncated", ex.reqBody.Truncated(),
		"response_truncated", ex.respBody.Truncated(),
	)

	e.sink.Record(entry)
}
