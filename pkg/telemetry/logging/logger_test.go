package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// TestNew tests level and format parsing.
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid JSON config", config: Config{Level: "info", Format: "json"}},
		{name: "valid text config", config: Config{Level: "debug", Format: "text"}},
		{name: "defaults", config: Config{}},
		{name: "upper case", config: Config{Level: "WARN", Format: "TEXT"}},
		{name: "invalid log level", config: Config{Level: "invalid"}, wantErr: true},
		{name: "invalid format", config: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Writer = &bytes.Buffer{}
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestLogger_JSONOutput tests that records are JSON with context fields.
func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Level: "info", Format: "json", Writer: buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithDeployment(ctx, "proj", "dep")
	logger.Slog().With("component", "test").InfoContext(ctx, "request completed", "status", 200)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Unmarshal() failed: %v (%s)", err, buf.String())
	}

	want := map[string]any{
		"msg":           "request completed",
		"component":     "test",
		"request_id":    "req-123",
		"project_id":    "proj",
		"deployment_id": "dep",
		"status":        float64(200),
	}
	for k, v := range want {
		if record[k] != v {
			t.Errorf("record[%q] = %v, want %v", k, record[k], v)
		}
	}
}

// TestLogger_SetLevel tests runtime level changes on derived loggers.
func TestLogger_SetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Level: "info", Format: "text", Writer: buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	derived := logger.Slog().With("component", "derived")

	derived.Debug("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatal("debug record emitted at info level")
	}

	if err := logger.SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel() failed: %v", err)
	}
	if logger.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", logger.Level())
	}

	derived.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug record not emitted after SetLevel(debug)")
	}

	if err := logger.SetLevel("chatty"); err == nil {
		t.Error("SetLevel() accepted an unknown level")
	}
}

// TestGetDeployment tests context field round trips.
func TestGetDeployment(t *testing.T) {
	ctx := context.Background()
	if p, d := GetDeployment(ctx); p != "" || d != "" {
		t.Errorf("GetDeployment() = %q, %q on empty context", p, d)
	}

	ctx = WithSession(WithDeployment(ctx, "p", "d"), "s-1")
	if p, d := GetDeployment(ctx); p != "p" || d != "d" {
		t.Errorf("GetDeployment() = %q, %q", p, d)
	}
	if GetSession(ctx) != "s-1" {
		t.Errorf("GetSession() = %q", GetSession(ctx))
	}
	if len(extractContextFields(ctx)) != 3 {
		t.Errorf("extractContextFields() = %v", extractContextFields(ctx))
	}
}
