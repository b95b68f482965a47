package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/tracker/pkg/requestlog"
)

var (
	// ErrBufferFull is returned by Enqueue when the async buffer has no room.
	ErrBufferFull = errors.New("recorder buffer full")

	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("recorder closed")
)

// Config contains configuration for the request log recorder.
type Config struct {
	// Enabled enables persistence. When false entries are discarded.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for a single Append.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// Workers is the number of goroutines draining the buffer.
	// Default: 1
	Workers int
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
		Workers:      1,
	}
}

// Listener is called with the stored entry after a successful append.
type Listener func(entry *requestlog.Entry)

// Metrics receives recorder outcomes. *metrics.Collector implements it.
type Metrics interface {
	RecordPersisted(duration time.Duration)
	RecordPersistFailure()
	RecordDropped()
}

type noopMetrics struct{}

func (noopMetrics) RecordPersisted(time.Duration) {}
func (noopMetrics) RecordPersistFailure()         {}
func (noopMetrics) RecordDropped()                {}

// Recorder writes request log entries to a store without blocking callers.
type Recorder struct {
	store      requestlog.Store
	config     *Config
	recordChan chan *requestlog.Entry
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger

	// sendMu orders sends on recordChan before Close starts the drain.
	sendMu sync.RWMutex
	closed bool

	mu        sync.RWMutex
	listeners []Listener
	metrics   Metrics
}

// NewRecorder creates a recorder with the provided store and starts its
// workers.
func NewRecorder(store requestlog.Store, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}

	r := &Recorder{
		store:      store,
		config:     config,
		recordChan: make(chan *requestlog.Entry, config.AsyncBuffer),
		done:       make(chan struct{}),
		logger:     slog.Default().With("component", "requestlog.recorder"),
		metrics:    noopMetrics{},
	}

	for i := 0; i < config.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	r.logger.Info("request log recorder initialized",
		"enabled", config.Enabled,
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
		"workers", config.Workers,
	)

	return r
}

// OnPersisted registers a listener for successfully stored entries.
func (r *Recorder) OnPersisted(fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// SetMetrics sets the metrics sink. A nil value disables metrics.
func (r *Recorder) SetMetrics(m Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m == nil {
		m = noopMetrics{}
	}
	r.metrics = m
}

// Record enqueues entry for persistence and returns immediately. Entries that
// cannot be queued are dropped.
func (r *Recorder) Record(entry *requestlog.Entry) {
	_ = r.Enqueue(entry)
}

// Enqueue is Record with the drop reason reported as a *requestlog.RecorderError.
func (r *Recorder) Enqueue(entry *requestlog.Entry) error {
	if !r.config.Enabled || entry == nil {
		return nil
	}

	r.sendMu.RLock()
	defer r.sendMu.RUnlock()
	if r.closed {
		return requestlog.NewRecorderError(entry.ProjectID, entry.DeploymentID, ErrClosed)
	}

	select {
	case r.recordChan <- entry:
		return nil
	default:
		r.getMetrics().RecordDropped()
		r.logger.Warn("request log buffer full, dropping entry",
			"project_id", entry.ProjectID,
			"deployment_id", entry.DeploymentID,
			"method", entry.Method,
			"path", entry.Path,
			"channel_capacity", r.config.AsyncBuffer,
		)
		return requestlog.NewRecorderError(entry.ProjectID, entry.DeploymentID, ErrBufferFull)
	}
}

// Pending returns the number of queued entries.
func (r *Recorder) Pending() int {
	return len(r.recordChan)
}

// Close stops accepting entries, drains the buffer and waits for the workers.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down request log recorder")
		r.sendMu.Lock()
		r.closed = true
		r.sendMu.Unlock()
		close(r.done)
		r.wg.Wait()
		r.logger.Info("request log recorder shut down complete")
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case entry := <-r.recordChan:
			r.write(entry)

		case <-r.done:
			for {
				select {
				case entry := <-r.recordChan:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *requestlog.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	stored, err := r.store.Append(ctx, entry)
	duration := time.Since(start)

	if err != nil {
		r.getMetrics().RecordPersistFailure()
		r.logger.Error("failed to persist request log",
			"project_id", entry.ProjectID,
			"deployment_id", entry.DeploymentID,
			"method", entry.Method,
			"path", entry.Path,
			"error", err,
		)
		return
	}

	r.getMetrics().RecordPersisted(duration)
	r.logger.Debug("request log persisted",
		"id", stored.ID,
		"project_id", stored.ProjectID,
		"deployment_id", stored.DeploymentID,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow request log write",
			"id", stored.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}

	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(stored)
	}
}

func (r *Recorder) getMetrics() Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics
}
