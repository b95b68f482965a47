package proxy

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"mercator-hq/tracker/pkg/requestlog"
)

// collectSink stores every recorded entry.
type collectSink struct {
	mu      sync.Mutex
	entries []*requestlog.Entry
}

func (s *collectSink) Record(e *requestlog.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *collectSink) all() []*requestlog.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*requestlog.Entry(nil), s.entries...)
}

// waitFor polls until n entries are recorded. Completion runs after the
// response is written, so the client may return first.
func (s *collectSink) waitFor(t *testing.T, n int) []*requestlog.Entry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := s.all(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := s.all()
	t.Fatalf("recorded %d entries, want %d", len(got), n)
	return nil
}

func newTestRegistry(t *testing.T, sink Sink) *Registry {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BindHost = "127.0.0.1"
	cfg.DrainTimeout = 500 * time.Millisecond
	reg := NewRegistry(cfg, sink)
	t.Cleanup(func() { reg.Close(context.Background()) })
	return reg
}

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	return srv.Listener.Addr().(*net.TCPAddr).Port
}

// closedPort returns a port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() failed: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func register(t *testing.T, reg *Registry, backendPort int, tracking bool) *Entry {
	t.Helper()
	entry, err := reg.Register(context.Background(), RegisterRequest{
		Key:         Key{ProjectID: "proj", DeploymentID: "dep"},
		ContainerID: "container-1",
		BackendPort: backendPort,
		Tracking:    tracking,
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	return entry
}

func proxyURL(entry *Entry, path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", entry.ListenPort, path)
}

func echoBackend(t *testing.T) *httptest.Server {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Backend", "yes")
		w.Header().Set("X-Seen-Host", r.Host)
		w.Header().Set("X-Seen-Forwarded-For", r.Header.Get("X-Forwarded-For"))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, "%s %s %s", r.Method, r.URL.RequestURI(), body)
	}))
	t.Cleanup(backend.Close)
	return backend
}

// TestEngine_LoggingOff tests plain passthrough with no entries recorded.
func TestEngine_LoggingOff(t *testing.T) {
	backend := echoBackend(t)
	sink := &collectSink{}
	reg := newTestRegistry(t, sink)
	entry := register(t, reg, serverPort(t, backend), false)

	direct, err := http.Post(backend.URL+"/items?x=1", "text/plain", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("direct request failed: %v", err)
	}
	directBody, _ := io.ReadAll(direct.Body)
	direct.Body.Close()

	resp, err := http.Post(proxyURL(entry, "/items?x=1"), "text/plain", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("proxied request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != direct.StatusCode {
		t.Errorf("status = %d, want %d", resp.StatusCode, direct.StatusCode)
	}
	if !bytes.Equal(body, directBody) {
		t.Errorf("body = %q, want %q", body, directBody)
	}
	if resp.Header.Get("X-Backend") != "yes" {
		t.Error("backend header not forwarded")
	}

	time.Sleep(50 * time.Millisecond)
	if n := len(sink.all()); n != 0 {
		t.Errorf("recorded %d entries with logging off, want 0", n)
	}
}

// TestEngine_LoggingOn tests that one exchange produces exactly one entry.
func TestEngine_LoggingOn(t *testing.T) {
	backend := echoBackend(t)
	sink := &collectSink{}
	reg := newTestRegistry(t, sink)
	entry := register(t, reg, serverPort(t, backend), true)

	req, _ := http.NewRequest(http.MethodPut, proxyURL(entry, "/api/thing?a=1&a=2"), strings.NewReader(`{"k":"v"}`))
	req.Header.Set("User-Agent", "tracker-test/1.0")
	req.Header.Set("Referer", "http://example.test/")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	got := sink.waitFor(t, 1)
	time.Sleep(50 * time.Millisecond)
	if len(sink.all()) != 1 {
		t.Fatalf("recorded %d entries, want exactly 1", len(sink.all()))
	}

	e := got[0]
	if e.ProjectID != "proj" || e.DeploymentID != "dep" || e.ContainerID != "container-1" {
		t.Errorf("identity = %s/%s/%s", e.ProjectID, e.DeploymentID, e.ContainerID)
	}
	if e.Method != http.MethodPut || e.Path != "/api/thing?a=1&a=2" {
		t.Errorf("method/path = %s %s", e.Method, e.Path)
	}
	if e.Status != http.StatusCreated {
		t.Errorf("Status = %d, want %d", e.Status, http.StatusCreated)
	}
	if e.RequestBody != `{"k":"v"}` {
		t.Errorf("RequestBody = %q", e.RequestBody)
	}
	if e.ResponseBody != string(body) {
		t.Errorf("ResponseBody = %q, want %q", e.ResponseBody, body)
	}
	if e.UserAgent != "tracker-test/1.0" || e.Referer != "http://example.test/" {
		t.Errorf("UserAgent/Referer = %q %q", e.UserAgent, e.Referer)
	}
	if e.RequestIP != "127.0.0.1" {
		t.Errorf("RequestIP = %q", e.RequestIP)
	}
	if len(e.QueryParams["a"]) != 2 {
		t.Errorf("QueryParams = %v", e.QueryParams)
	}
	if e.Headers["Host"][0] != fmt.Sprintf("127.0.0.1:%d", entry.ListenPort) {
		t.Errorf("Headers[Host] = %v", e.Headers["Host"])
	}
	if e.ErrorDetail != "" {
		t.Errorf("ErrorDetail = %q, want empty", e.ErrorDetail)
	}
}

// TestEngine_BackendDown tests the 502 path records exactly one error entry.
func TestEngine_BackendDown(t *testing.T) {
	sink := &collectSink{}
	reg := newTestRegistry(t, sink)
	entry := register(t, reg, closedPort(t), true)

	resp, err := http.Get(proxyURL(entry, "/down"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}

	got := sink.waitFor(t, 1)
	time.Sleep(50 * time.Millisecond)
	if len(sink.all()) != 1 {
		t.Fatalf("recorded %d entries, want exactly 1", len(sink.all()))
	}
	if got[0].Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", got[0].Status)
	}
	if !strings.Contains(got[0].ErrorDetail, "connect") {
		t.Errorf("ErrorDetail = %q, want a connection error", got[0].ErrorDetail)
	}

	// The proxy keeps serving after a failure.
	if _, err := reg.Lookup(entry.Key); err != nil {
		t.Errorf("Lookup() after failure: %v", err)
	}
}

// TestEngine_CaptureLimit tests that the client gets every byte while the entry is capped.
func TestEngine_CaptureLimit(t *testing.T) {
	payload := strings.Repeat("x", DefaultCaptureLimit+1)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, payload)
	}))
	defer backend.Close()

	sink := &collectSink{}
	reg := newTestRegistry(t, sink)
	entry := register(t, reg, serverPort(t, backend), true)

	resp, err := http.Get(proxyURL(entry, "/big"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(body) != payload {
		t.Errorf("client received %d bytes, want %d", len(body), len(payload))
	}

	got := sink.waitFor(t, 1)
	if len(got[0].ResponseBody) != DefaultCaptureLimit {
		t.Errorf("ResponseBody has %d characters, want %d", len(got[0].ResponseBody), DefaultCaptureLimit)
	}
	if got[0].ResponseBody != payload[:DefaultCaptureLimit] {
		t.Error("ResponseBody is not a prefix of the response")
	}
}

// TestEngine_BinaryBody tests that binary bodies reach both sides unchanged
// while the entry holds storable text.
func TestEngine_BinaryBody(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0x00, 0xff, 0xfe}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}))
	defer backend.Close()

	sink := &collectSink{}
	reg := newTestRegistry(t, sink)
	entry := register(t, reg, serverPort(t, backend), true)

	resp, err := http.Post(proxyURL(entry, "/upload"), "application/octet-stream", bytes.NewReader([]byte{0x1f, 0x8b, 0x00}))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !bytes.Equal(body, png) {
		t.Errorf("client body = %q, want %q", body, png)
	}

	got := sink.waitFor(t, 1)
	for name, snapshot := range map[string]string{
		"RequestBody":  got[0].RequestBody,
		"ResponseBody": got[0].ResponseBody,
	} {
		if !utf8.ValidString(snapshot) {
			t.Errorf("%s = %q is not valid UTF-8", name, snapshot)
		}
		if strings.ContainsRune(snapshot, 0) {
			t.Errorf("%s = %q contains NUL", name, snapshot)
		}
	}
	if !strings.HasPrefix(got[0].ResponseBody, "\uFFFDPNG") {
		t.Errorf("ResponseBody = %q, want PNG signature text", got[0].ResponseBody)
	}
}

// TestEngine_BackendAbort tests a backend that fails after sending headers.
func TestEngine_BackendAbort(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "hello")
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer backend.Close()

	sink := &collectSink{}
	reg := newTestRegistry(t, sink)
	entry := register(t, reg, serverPort(t, backend), true)

	resp, err := http.Get(proxyURL(entry, "/stream"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if _, err := io.ReadAll(resp.Body); err == nil {
		t.Error("ReadAll() succeeded, want a truncated body error")
	}
	resp.Body.Close()

	got := sink.waitFor(t, 1)
	time.Sleep(50 * time.Millisecond)
	if len(sink.all()) != 1 {
		t.Fatalf("recorded %d entries, want exactly 1", len(sink.all()))
	}
	if got[0].Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", got[0].Status)
	}
	if got[0].ErrorDetail == "" {
		t.Error("ErrorDetail is empty, want the abort reason")
	}
	if got[0].ResponseBody != "hello" {
		t.Errorf("ResponseBody = %q, want %q", got[0].ResponseBody, "hello")
	}
}

// TestEngine_Headers tests Host preservation and that no forwarding headers are injected.
func TestEngine_Headers(t *testing.T) {
	backend := echoBackend(t)

	tests := []struct {
		name         string
		changeOrigin bool
		forwardedFor string
	}{
		{name: "host preserved", changeOrigin: false},
		{name: "change origin", changeOrigin: true},
		{name: "client forwarded header kept", forwardedFor: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.BindHost = "127.0.0.1"
			cfg.ChangeOrigin = tt.changeOrigin
			reg := NewRegistry(cfg, nil)
			defer reg.Close(context.Background())

			entry := register(t, reg, serverPort(t, backend), false)

			req, _ := http.NewRequest(http.MethodGet, proxyURL(entry, "/"), nil)
			if tt.forwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.forwardedFor)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()

			wantHost := fmt.Sprintf("127.0.0.1:%d", entry.ListenPort)
			if tt.changeOrigin {
				wantHost = fmt.Sprintf("127.0.0.1:%d", entry.BackendPort)
			}
			if got := resp.Header.Get("X-Seen-Host"); got != wantHost {
				t.Errorf("backend saw Host %q, want %q", got, wantHost)
			}
			if got := resp.Header.Get("X-Seen-Forwarded-For"); got != tt.forwardedFor {
				t.Errorf("backend saw X-Forwarded-For %q, want %q", got, tt.forwardedFor)
			}
		})
	}
}

// TestEngine_WebSocket tests that upgrades are piped and never recorded.
func TestEngine_WebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	defer backend.Close()

	sink := &collectSink{}
	reg := newTestRegistry(t, sink)
	entry := register(t, reg, serverPort(t, backend), true)

	conn, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/socket", entry.ListenPort), nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d, want 101", resp.StatusCode)
	}

	for _, msg := range []string{"hello", "world"} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("WriteMessage() failed: %v", err)
		}
		_, got, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() failed: %v", err)
		}
		if string(got) != msg {
			t.Errorf("echo = %q, want %q", got, msg)
		}
	}

	if n := entry.Info().ActivePipes; n != 1 {
		t.Errorf("ActivePipes = %d, want 1", n)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond)
	if n := len(sink.all()); n != 0 {
		t.Errorf("recorded %d entries for a websocket, want 0", n)
	}
}

// TestEngine_WebSocketRequestHeaders tests that the upgrade request reaches
// the backend with the client's headers only.
func TestEngine_WebSocketRequestHeaders(t *testing.T) {
	seen := make(chan http.Header, 1)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer backend.Close()

	sink := &collectSink{}
	reg := newTestRegistry(t, sink)
	entry := register(t, reg, serverPort(t, backend), false)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", entry.ListenPort))
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close()

	io.WriteString(conn, "GET /socket HTTP/1.1\r\n"+
		"Host: app.test\r\n"+
		"Connection: Upgrade\r\n"+
		"Upgrade: websocket\r\n"+
		"X-Custom: 1\r\n\r\n")

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("ReadResponse() failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	var h http.Header
	select {
	case h = <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("backend never saw the upgrade request")
	}
	if _, ok := h["User-Agent"]; ok {
		t.Errorf("User-Agent = %q, want none", h.Get("User-Agent"))
	}
	if h.Get("X-Custom") != "1" || h.Get("Upgrade") != "websocket" {
		t.Errorf("headers = %v", h)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// countingMetrics counts exchanges by tracked flag.
type countingMetrics struct {
	noopMetrics
	mu        sync.Mutex
	untracked []int
}

func (m *countingMetrics) RecordExchange(tracked bool, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !tracked {
		m.untracked = append(m.untracked, status)
	}
}

// TestEngine_Untracked tests that untracked exchanges carry no per-exchange
// state and are counted only when metrics are enabled.
func TestEngine_Untracked(t *testing.T) {
	counting := &countingMetrics{}
	tests := []struct {
		name        string
		metrics     Metrics
		wantCounted []int
	}{
		{name: "metrics disabled", metrics: noopMetrics{}},
		{name: "metrics enabled", metrics: counting, wantCounted: []int{http.StatusNoContent}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sawExchange := false
			transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
				sawExchange = exchangeFrom(r.Context()) != nil
				return &http.Response{
					StatusCode: http.StatusNoContent,
					Header:     http.Header{},
					Body:       http.NoBody,
					Request:    r,
				}, nil
			})

			entry := &Entry{Key: Key{ProjectID: "proj", DeploymentID: "dep"}, BackendPort: 9}
			sink := &collectSink{}
			e := newEngine(entry, DefaultConfig(), transport, sink, tt.metrics)

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plain", nil))

			if rec.Code != http.StatusNoContent {
				t.Errorf("status = %d, want 204", rec.Code)
			}
			if sawExchange {
				t.Error("untracked request carried exchange state")
			}
			if len(sink.all()) != 0 {
				t.Errorf("recorded %d entries, want 0", len(sink.all()))
			}
			if cm, ok := tt.metrics.(*countingMetrics); ok {
				cm.mu.Lock()
				got := append([]int(nil), cm.untracked...)
				cm.mu.Unlock()
				if fmt.Sprint(got) != fmt.Sprint(tt.wantCounted) {
					t.Errorf("untracked exchanges = %v, want %v", got, tt.wantCounted)
				}
			}
		})
	}
}

// TestEngine_ToggleLogging tests that the flag is honored per exchange.
func TestEngine_ToggleLogging(t *testing.T) {
	backend := echoBackend(t)
	sink := &collectSink{}
	reg := newTestRegistry(t, sink)
	entry := register(t, reg, serverPort(t, backend), false)

	get := func(path string) {
		resp, err := http.Get(proxyURL(entry, path))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	get("/off-1")
	if !entry.SetLogging(true) {
		t.Fatal("SetLogging(true) reported no change")
	}
	get("/on-1")
	get("/on-2")
	if !entry.SetLogging(false) {
		t.Fatal("SetLogging(false) reported no change")
	}
	get("/off-2")

	sink.waitFor(t, 2)
	time.Sleep(50 * time.Millisecond)
	got := sink.all()
	if len(got) != 2 {
		t.Fatalf("recorded %d entries, want 2", len(got))
	}
	if got[0].Path != "/on-1" || got[1].Path != "/on-2" {
		t.Errorf("recorded paths %s, %s", got[0].Path, got[1].Path)
	}
}
