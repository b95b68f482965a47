package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"mercator-hq/tracker/pkg/config"
	"mercator-hq/tracker/pkg/proxy"
	"mercator-hq/tracker/pkg/requestlog"
	"mercator-hq/tracker/pkg/requestlog/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Store.Backend = "memory"
	cfg.Server.ListenAddress = "127.0.0.1:0"
	cfg.Proxy.BindHost = "127.0.0.1"
	cfg.Proxy.DrainTimeout = 500 * time.Millisecond
	return cfg
}

// TestOpenStore tests backend selection.
func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, err := openStore(ctx, &config.StoreConfig{Backend: "memory"})
		if err != nil {
			t.Fatalf("openStore() failed: %v", err)
		}
		if _, ok := store.(*storage.MemoryStore); !ok {
			t.Errorf("store = %T, want *storage.MemoryStore", store)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.NewDefaultConfig().Store
		cfg.SQLite.Path = filepath.Join(t.TempDir(), "requests.db")

		store, err := openStore(ctx, &cfg)
		if err != nil {
			t.Fatalf("openStore() failed: %v", err)
		}
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			t.Errorf("Ping() failed: %v", err)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := openStore(ctx, &config.StoreConfig{Backend: "redis"}); err == nil {
			t.Error("openStore() succeeded for an unknown backend")
		}
	})
}

// TestProxyConfig tests that unset transport fields keep their defaults.
func TestProxyConfig(t *testing.T) {
	cfg := config.NewDefaultConfig().Proxy
	cfg.TrustForwardedHeaders = true
	cfg.DialTimeout = 0

	out := proxyConfig(&cfg)
	if out.BindHost != cfg.BindHost || out.CaptureLimit != cfg.CaptureLimit || !out.TrustForwardedHeaders {
		t.Errorf("proxyConfig() = %+v", out)
	}
	if out.DialTimeout != proxy.DefaultConfig().DialTimeout {
		t.Errorf("DialTimeout = %v, want default", out.DialTimeout)
	}
}

// TestService_Lifecycle tests static registration, tracking through the
// assembled stack and shutdown.
func TestService_Lifecycle(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer backend.Close()
	backendPort := backend.Listener.Addr().(*net.TCPAddr).Port

	cfg := testConfig(t)
	store := storage.NewMemoryStore()
	svc := newService(cfg, store)

	started := svc.registerStatic(context.Background(), []config.StaticProxyConfig{
		{ProjectID: "p1", DeploymentID: "d1", BackendPort: backendPort, Tracking: true},
		{ProjectID: "p1", DeploymentID: "d1", BackendPort: backendPort},
	})
	if started != 1 {
		t.Fatalf("registerStatic() started %d, want 1 (duplicate skipped)", started)
	}

	entry, err := svc.registry.Lookup(proxy.Key{ProjectID: "p1", DeploymentID: "d1"})
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(entry.ListenPort) + "/hello?x=1")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	if err := svc.close(context.Background()); err != nil {
		t.Fatalf("close() failed: %v", err)
	}
	if svc.registry.Len() != 0 {
		t.Errorf("registry has %d entries after close", svc.registry.Len())
	}

	rows, err := store.List(context.Background(), "p1", "d1", 10)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Path != "/hello?x=1" || rows[0].ResponseBody != "hello" {
		t.Errorf("rows = %+v", rows)
	}
}

// TestService_ApplyReload tests that reloads change limits and log level.
func TestService_ApplyReload(t *testing.T) {
	cfg := testConfig(t)
	svc := newService(cfg, storage.NewMemoryStore())
	defer svc.close(context.Background())

	next := testConfig(t)
	next.Tracking.DefaultLogLimit = 7
	next.Telemetry.Logging.Level = "debug"

	var level string
	svc.applyReload(next, func(l string) error {
		level = l
		return nil
	})

	if level != "debug" {
		t.Errorf("level = %q, want debug", level)
	}
	if got := svc.control.EffectiveLimit(0); got != 7 {
		t.Errorf("EffectiveLimit(0) = %d, want 7", got)
	}
}

// TestService_Metrics tests that metrics can be switched off.
func TestService_Metrics(t *testing.T) {
	cfg := testConfig(t)
	off := false
	cfg.Telemetry.Metrics.Enabled = &off

	svc := newService(cfg, storage.NewMemoryStore())
	defer svc.close(context.Background())
	if svc.collector != nil {
		t.Error("collector created with metrics disabled")
	}

	cfg = testConfig(t)
	cfg.Retention.Days = 7
	svc = newService(cfg, storage.NewMemoryStore())
	defer svc.close(context.Background())
	if svc.collector == nil || svc.pruner == nil {
		t.Errorf("collector = %v, pruner = %v", svc.collector, svc.pruner)
	}
}

// TestLogTable tests the text rendering of entries.
func TestLogTable(t *testing.T) {
	table := logTable{{
		ID: 3, Method: "GET", Path: "/api", Status: 502, ResponseTime: 12,
		RequestIP: "10.0.0.1", ErrorDetail: "connection refused",
	}}

	rows := table.Rows()
	if len(rows) != 1 || len(rows[0]) != len(table.Headers()) {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0][0] != "3" || rows[0][4] != "502" || rows[0][7] != "connection refused" {
		t.Errorf("row = %v", rows[0])
	}
}

// TestDeleteResult_String tests the clear and prune summaries.
func TestDeleteResult_String(t *testing.T) {
	cleared := deleteResult{ProjectID: "p", DeploymentID: "d", Deleted: 4}
	if !strings.Contains(cleared.String(), "4 entries for p/d") {
		t.Errorf("String() = %q", cleared.String())
	}
	if got := (deleteResult{Deleted: 2}).String(); !strings.Contains(got, "Pruned 2") {
		t.Errorf("String() = %q", got)
	}
}

// TestPrintVersion tests the version output.
func TestPrintVersion(t *testing.T) {
	buf := &bytes.Buffer{}
	printVersion(buf)
	if !strings.HasPrefix(buf.String(), "Tracker "+Version) {
		t.Errorf("output = %q", buf.String())
	}
}

// TestRootCommand tests that every subcommand is registered.
func TestRootCommand(t *testing.T) {
	want := []string{"run", "version", "logs", "completion"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Find(%q) = %v, %v", name, cmd, err)
		}
	}
	for _, name := range []string{"list", "clear", "prune"} {
		if cmd, _, err := rootCmd.Find([]string{"logs", name}); err != nil || cmd.Name() != name {
			t.Errorf("Find(logs %q) failed: %v", name, err)
		}
	}
}

var _ requestlog.Backend = (*storage.MemoryStore)(nil)
