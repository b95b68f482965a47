package tracking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"mercator-hq/tracker/pkg/proxy"
	"mercator-hq/tracker/pkg/requestlog"
	"mercator-hq/tracker/pkg/requestlog/storage"
)

func newTestRegistry(t *testing.T, sink proxy.Sink) *proxy.Registry {
	t.Helper()
	cfg := proxy.DefaultConfig()
	cfg.BindHost = "127.0.0.1"
	cfg.DrainTimeout = 500 * time.Millisecond
	reg := proxy.NewRegistry(cfg, sink)
	t.Cleanup(func() { reg.Close(context.Background()) })
	return reg
}

func registerProxy(t *testing.T, reg *proxy.Registry, key proxy.Key, backendPort int) *proxy.Entry {
	t.Helper()
	entry, err := reg.Register(context.Background(), proxy.RegisterRequest{
		Key:         key,
		ContainerID: "c-" + key.DeploymentID,
		BackendPort: backendPort,
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	return entry
}

// TestControlPlane_Enable tests enabling, including the already-enabled notice.
func TestControlPlane_Enable(t *testing.T) {
	reg := newTestRegistry(t, nil)
	key := proxy.Key{ProjectID: "p", DeploymentID: "d"}
	entry := registerProxy(t, reg, key, 3000)
	cp := NewControlPlane(reg, storage.NewMemoryStore(), NewHub(1), nil)
	ctx := context.Background()

	notice, err := cp.Enable(ctx, key)
	if err != nil {
		t.Fatalf("Enable() failed: %v", err)
	}
	if notice.AlreadyEnabled || notice.Port != entry.ListenPort {
		t.Errorf("notice = %+v", notice)
	}
	want := fmt.Sprintf("Request tracking enabled! Access your deployment at http://localhost:%d", entry.ListenPort)
	if notice.Message != want {
		t.Errorf("Message = %q, want %q", notice.Message, want)
	}
	if notice.EventName() != EventTrackingEnabled {
		t.Errorf("EventName() = %q", notice.EventName())
	}
	if !entry.LoggingEnabled() {
		t.Error("logging not enabled")
	}

	again, err := cp.Enable(ctx, key)
	if err != nil {
		t.Fatalf("second Enable() failed: %v", err)
	}
	if !again.AlreadyEnabled || again.Message != MsgAlreadyEnabled {
		t.Errorf("second notice = %+v", again)
	}
	if again.EventName() != EventTrackingAlreadyEnabled {
		t.Errorf("EventName() = %q", again.EventName())
	}
	if !entry.LoggingEnabled() {
		t.Error("second Enable() changed state")
	}
}

// TestControlPlane_Disable tests disabling, including the not-enabled notice.
func TestControlPlane_Disable(t *testing.T) {
	reg := newTestRegistry(t, nil)
	key := proxy.Key{ProjectID: "p", DeploymentID: "d"}
	entry := registerProxy(t, reg, key, 3000)
	cp := NewControlPlane(reg, storage.NewMemoryStore(), NewHub(1), nil)
	ctx := context.Background()

	notice, err := cp.Disable(ctx, key)
	if err != nil {
		t.Fatalf("Disable() failed: %v", err)
	}
	if !notice.NotEnabled || notice.Message != MsgNotEnabled {
		t.Errorf("notice = %+v", notice)
	}

	entry.SetLogging(true)
	notice, err = cp.Disable(ctx, key)
	if err != nil {
		t.Fatalf("Disable() failed: %v", err)
	}
	if notice.NotEnabled || notice.Message != MsgDisabled {
		t.Errorf("notice = %+v", notice)
	}
	if notice.EventName() != EventTrackingDisabled {
		t.Errorf("EventName() = %q", notice.EventName())
	}
	if entry.LoggingEnabled() {
		t.Error("logging still enabled")
	}
}

// TestControlPlane_NotFound tests operations on unknown deployments.
func TestControlPlane_NotFound(t *testing.T) {
	cp := NewControlPlane(newTestRegistry(t, nil), storage.NewMemoryStore(), NewHub(1), nil)
	key := proxy.Key{ProjectID: "p", DeploymentID: "missing"}

	for name, op := range map[string]func(context.Context, proxy.Key) (*Notice, error){
		"Enable":  cp.Enable,
		"Disable": cp.Disable,
	} {
		_, err := op(context.Background(), key)
		var notFound *proxy.NotFoundError
		if !errors.As(err, &notFound) {
			t.Errorf("%s() error = %v, want *proxy.NotFoundError", name, err)
		}
		if ErrorMessage(err, "x") != MsgProxyNotFound {
			t.Errorf("ErrorMessage() = %q", ErrorMessage(err, "x"))
		}
	}
}

// TestControlPlane_GetLogs tests limit defaults, caps, order and scope.
func TestControlPlane_GetLogs(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		store.Append(ctx, &requestlog.Entry{ProjectID: "p", DeploymentID: "d", Method: "GET", Path: fmt.Sprintf("/%d", i), Status: 200})
	}
	store.Append(ctx, &requestlog.Entry{ProjectID: "p", DeploymentID: "other", Method: "GET", Path: "/other", Status: 200})

	cp := NewControlPlane(newTestRegistry(t, nil), store, NewHub(1), &Config{DefaultLogLimit: 50, MaxLogLimit: 55})

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "default", limit: 0, want: 50},
		{name: "negative", limit: -1, want: 50},
		{name: "explicit", limit: 10, want: 10},
		{name: "capped", limit: 100, want: 55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, err := cp.GetLogs(ctx, "p", "d", tt.limit)
			if err != nil {
				t.Fatalf("GetLogs() failed: %v", err)
			}
			if len(logs) != tt.want {
				t.Fatalf("GetLogs() returned %d, want %d", len(logs), tt.want)
			}
			if logs[0].Path != "/59" {
				t.Errorf("first entry = %s, want newest /59", logs[0].Path)
			}
			for _, e := range logs {
				if e.DeploymentID != "d" {
					t.Errorf("entry from deployment %s", e.DeploymentID)
				}
			}
		})
	}
}

// TestControlPlane_ClearLogs tests that clearing is scoped to one deployment.
func TestControlPlane_ClearLogs(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	store.Append(ctx, &requestlog.Entry{ProjectID: "p", DeploymentID: "d", Method: "GET", Path: "/", Status: 200})
	store.Append(ctx, &requestlog.Entry{ProjectID: "p", DeploymentID: "d", Method: "GET", Path: "/", Status: 200})
	store.Append(ctx, &requestlog.Entry{ProjectID: "p", DeploymentID: "keep", Method: "GET", Path: "/", Status: 200})

	cp := NewControlPlane(newTestRegistry(t, nil), store, NewHub(1), nil)

	deleted, err := cp.ClearLogs(ctx, "p", "d")
	if err != nil {
		t.Fatalf("ClearLogs() failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("ClearLogs() = %d, want 2", deleted)
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}
}

// TestControlPlane_RecordPersisted tests the request-logged broadcast.
func TestControlPlane_RecordPersisted(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe("s")
	hub.Join(sub, "p")
	cp := NewControlPlane(newTestRegistry(t, nil), storage.NewMemoryStore(), hub, nil)

	cp.RecordPersisted(&requestlog.Entry{ID: 7, ProjectID: "p", DeploymentID: "d", Method: "GET", Path: "/x", Status: 200, ResponseTime: 12, RequestIP: "1.2.3.4"})

	select {
	case ev := <-sub.C:
		if ev.Name != EventRequestLogged {
			t.Fatalf("event = %q", ev.Name)
		}
		payload := ev.Data.(LoggedPayload)
		if payload.DeploymentID != "d" || payload.Request.ID != "7" || payload.Request.Time != "12" || payload.Request.IP != "1.2.3.4" {
			t.Errorf("payload = %+v", payload)
		}
	default:
		t.Fatal("no broadcast received")
	}
}
