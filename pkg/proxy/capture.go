package proxy

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"mercator-hq/tracker/pkg/requestlog"
)

// DefaultCaptureLimit is the default number of characters kept from each
// request and response body.
const DefaultCaptureLimit = requestlog.MaxBodySnapshot

// CaptureBuffer keeps the first limit characters of a byte stream. Bytes past
// the limit are counted but not stored. The snapshot is always valid UTF-8
// text: each invalid byte and each NUL is stored as U+FFFD and counts as one
// character. Safe for concurrent use.
type CaptureBuffer struct {
	mu        sync.Mutex
	limit     int
	buf       strings.Builder
	chars     int
	total     int64
	pending   []byte
	truncated bool
}

// NewCaptureBuffer creates a buffer that keeps at most limit characters.
// A non-positive limit uses DefaultCaptureLimit.
func NewCaptureBuffer(limit int) *CaptureBuffer {
	if limit <= 0 {
		limit = DefaultCaptureLimit
	}
	return &CaptureBuffer{limit: limit}
}

// Write appends p to the snapshot until the limit is reached. It never fails.
func (c *CaptureBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total += int64(len(p))
	if len(p) == 0 {
		return 0, nil
	}
	if c.chars >= c.limit {
		c.truncated = true
		return len(p), nil
	}

	data := p
	if len(c.pending) > 0 {
		data = append(c.pending, p...)
		c.pending = nil
	}

	for len(data) > 0 && c.chars < c.limit {
		if !utf8.FullRune(data) {
			// Incomplete sequence at the end of this write; wait for more.
			c.pending = append([]byte(nil), data...)
			return len(p), nil
		}
		r, size := utf8.DecodeRune(data)
		if r == 0 || (r == utf8.RuneError && size == 1) {
			c.buf.WriteRune(utf8.RuneError)
		} else {
			c.buf.Write(data[:size])
		}
		c.chars++
		data = data[size:]
	}
	if len(data) > 0 {
		c.truncated = true
	}

	return len(p), nil
}

// String returns the captured snapshot. A trailing incomplete UTF-8
// sequence is included as one U+FFFD per byte while room remains.
func (c *CaptureBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return c.buf.String()
	}
	room := c.limit - c.chars
	if room > len(c.pending) {
		room = len(c.pending)
	}
	return c.buf.String() + strings.Repeat(string(utf8.RuneError), room)
}

// Len returns the number of characters captured.
func (c *CaptureBuffer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return min(c.chars+len(c.pending), c.limit)
}

// Total returns the number of bytes seen, stored or not.
func (c *CaptureBuffer) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Truncated reports whether any bytes were discarded from the snapshot.
func (c *CaptureBuffer) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated || c.chars+len(c.pending) > c.limit
}

// captureReader tees a request body into a CaptureBuffer as it is read.
type captureReader struct {
	rc  io.ReadCloser
	buf *CaptureBuffer
}

func (r *captureReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if n > 0 {
		r.buf.Write(p[:n])
	}
	return n, err
}

func (r *captureReader) Close() error {
	return r.rc.Close()
}

// captureWriter tees a response body into a CaptureBuffer and records the
// final status code. Writes always reach the client unchanged.
type captureWriter struct {
	http.ResponseWriter
	buf         *CaptureBuffer
	status      int
	wroteHeader bool
}

func (w *captureWriter) WriteHeader(code int) {
	// 1xx responses may be followed by the real status.
	if code >= 200 && !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.status = http.StatusOK
		w.wroteHeader = true
	}
	n, err := w.ResponseWriter.Write(p)
	if n > 0 {
		w.buf.Write(p[:n])
	}
	return n, err
}

// Flush implements http.Flusher for streaming responses.
func (w *captureWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *captureWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Status returns the status sent to the client, or 0 if nothing was sent.
func (w *captureWriter) Status() int {
	return w.status
}

// statusWriter records the status of an untracked exchange for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if code >= 200 && w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
