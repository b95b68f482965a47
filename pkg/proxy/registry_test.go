package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// TestRegistry_Register tests registration outcomes.
func TestRegistry_Register(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()

	first, err := reg.Register(ctx, RegisterRequest{
		Key:         Key{ProjectID: "p", DeploymentID: "d1"},
		BackendPort: 3000,
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if first.ListenPort == 0 {
		t.Fatal("Register() did not record the OS-assigned port")
	}
	if first.LoggingEnabled() {
		t.Error("new entry has logging enabled")
	}

	tests := []struct {
		name    string
		req     RegisterRequest
		check   func(t *testing.T, err error)
		wantLen int
	}{
		{
			name: "duplicate key",
			req:  RegisterRequest{Key: first.Key, BackendPort: 3001},
			check: func(t *testing.T, err error) {
				var dup *DuplicateEntryError
				if !errors.As(err, &dup) {
					t.Errorf("error = %v, want *DuplicateEntryError", err)
				}
			},
		},
		{
			name: "port held by another proxy",
			req:  RegisterRequest{Key: Key{ProjectID: "p", DeploymentID: "d2"}, ListenPort: first.ListenPort, BackendPort: 3001},
			check: func(t *testing.T, err error) {
				var inUse *PortInUseError
				if !errors.As(err, &inUse) {
					t.Fatalf("error = %v, want *PortInUseError", err)
				}
				if inUse.Owner == nil || *inUse.Owner != first.Key {
					t.Errorf("Owner = %v, want %v", inUse.Owner, first.Key)
				}
			},
		},
		{
			name: "missing deployment id",
			req:  RegisterRequest{Key: Key{ProjectID: "p"}, BackendPort: 3001},
			check: func(t *testing.T, err error) {
				var invalid *InvalidRequestError
				if !errors.As(err, &invalid) || invalid.Field != "deploymentId" {
					t.Errorf("error = %v, want invalid deploymentId", err)
				}
			},
		},
		{
			name: "backend port out of range",
			req:  RegisterRequest{Key: Key{ProjectID: "p", DeploymentID: "d3"}, BackendPort: 70000},
			check: func(t *testing.T, err error) {
				var invalid *InvalidRequestError
				if !errors.As(err, &invalid) || invalid.Field != "backendPort" {
					t.Errorf("error = %v, want invalid backendPort", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Register(ctx, tt.req)
			if err == nil {
				t.Fatal("Register() succeeded, want error")
			}
			tt.check(t, err)
			if reg.Len() != 1 {
				t.Errorf("Len() = %d after failed Register, want 1", reg.Len())
			}
		})
	}
}

// TestRegistry_RegisterPortBusy tests a port bound outside the registry.
func TestRegistry_RegisterPortBusy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() failed: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	reg := newTestRegistry(t, nil)
	_, err = reg.Register(context.Background(), RegisterRequest{
		Key:         Key{ProjectID: "p", DeploymentID: "d"},
		ListenPort:  port,
		BackendPort: 3000,
	})

	var inUse *PortInUseError
	if !errors.As(err, &inUse) {
		t.Fatalf("error = %v, want *PortInUseError", err)
	}
	if inUse.Owner != nil || inUse.Cause == nil {
		t.Errorf("PortInUseError = %+v, want OS cause", inUse)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}
}

// TestRegistry_RegisterListenError tests that a failing listener leaves no state.
func TestRegistry_RegisterListenError(t *testing.T) {
	reg := newTestRegistry(t, nil)
	reg.SetListenFunc(func(network, address string) (net.Listener, error) {
		return nil, errors.New("permission denied")
	})

	_, err := reg.Register(context.Background(), RegisterRequest{
		Key:         Key{ProjectID: "p", DeploymentID: "d"},
		ListenPort:  80,
		BackendPort: 3000,
	})
	if err == nil {
		t.Fatal("Register() succeeded, want error")
	}
	var inUse *PortInUseError
	if errors.As(err, &inUse) {
		t.Errorf("error = %v, want a plain listen error", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}
}

// TestRegistry_Lookup tests lookup of present and absent keys.
func TestRegistry_Lookup(t *testing.T) {
	reg := newTestRegistry(t, nil)
	entry := register(t, reg, 3000, false)

	got, err := reg.Lookup(entry.Key)
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if got != entry {
		t.Error("Lookup() returned a different entry")
	}

	_, err = reg.Lookup(Key{ProjectID: "nope", DeploymentID: "nope"})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("error = %v, want *NotFoundError", err)
	}
}

// TestRegistry_List tests that entries are sorted by key.
func TestRegistry_List(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()

	for _, key := range []Key{{"b", "1"}, {"a", "2"}, {"a", "1"}} {
		if _, err := reg.Register(ctx, RegisterRequest{Key: key, BackendPort: 3000}); err != nil {
			t.Fatalf("Register() failed: %v", err)
		}
	}

	var got []string
	for _, e := range reg.List() {
		got = append(got, e.Key.String())
	}
	want := []string{"a/1", "a/2", "b/1"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

// TestRegistry_Unregister tests teardown and idempotency.
func TestRegistry_Unregister(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()
	entry := register(t, reg, 3000, false)
	addr := fmt.Sprintf("127.0.0.1:%d", entry.ListenPort)

	if err := reg.Unregister(ctx, entry.Key); err != nil {
		t.Fatalf("Unregister() failed: %v", err)
	}
	if err := reg.Unregister(ctx, entry.Key); err != nil {
		t.Errorf("second Unregister() = %v, want nil", err)
	}

	if _, err := reg.Lookup(entry.Key); err == nil {
		t.Error("Lookup() found an unregistered entry")
	}
	if conn, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		conn.Close()
		t.Error("listener still accepting after Unregister")
	}

	// The port is free for a new registration.
	again, err := reg.Register(ctx, RegisterRequest{
		Key:         entry.Key,
		ListenPort:  entry.ListenPort,
		BackendPort: 3000,
	})
	if err != nil {
		t.Fatalf("re-Register() failed: %v", err)
	}
	if again.ListenPort != entry.ListenPort {
		t.Errorf("ListenPort = %d, want %d", again.ListenPort, entry.ListenPort)
	}
}

// TestRegistry_UnregisterClosesWebSockets tests that open pipes are closed after the drain window.
func TestRegistry_UnregisterClosesWebSockets(t *testing.T) {
	upgrader := websocket.Upgrader{}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer backend.Close()

	reg := newTestRegistry(t, nil)
	entry := register(t, reg, serverPort(t, backend), false)

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/", entry.ListenPort), nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close()

	start := time.Now()
	if err := reg.Unregister(context.Background(), entry.Key); err != nil {
		t.Fatalf("Unregister() failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Unregister() took %v", elapsed)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("ReadMessage() succeeded on a closed pipe")
	}
	deadline := time.Now().Add(time.Second)
	for entry.Info().ActivePipes != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := entry.Info().ActivePipes; n != 0 {
		t.Errorf("ActivePipes = %d after Unregister", n)
	}
}
