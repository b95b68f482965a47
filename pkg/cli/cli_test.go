package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// TestConfigError tests message formatting and unwrapping.
func TestConfigError(t *testing.T) {
	cause := errors.New("no such file")
	err := NewConfigError("config.yaml", "failed to load config", cause)

	want := "config error in config.yaml: failed to load config: no such file"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() did not find the cause")
	}

	bare := NewConfigError("config.yaml", "no stored logs for the memory backend", nil)
	if bare.Error() != "config error in config.yaml: no stored logs for the memory backend" {
		t.Errorf("Error() = %q", bare.Error())
	}
}

// TestCommandError tests message formatting and unwrapping.
func TestCommandError(t *testing.T) {
	inner := errors.New("bind: address already in use")
	err := NewCommandError("run", inner)

	if !strings.Contains(err.Error(), "command run failed") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is() did not find the wrapped error")
	}
}

// TestParseOutputFormat tests flag validation.
func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOutputFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

type table struct{}

func (table) Headers() []string { return []string{"ID", "PATH"} }
func (table) Rows() [][]string {
	return [][]string{{"1", "/"}, {"22", "/api/users"}}
}

// TestTextFormatter tests table and plain rendering.
func TestTextFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&TextFormatter{}).FormatTo(buf, table{}); err != nil {
		t.Fatalf("FormatTo() failed: %v", err)
	}

	want := "ID  PATH\n1   /\n22  /api/users\n"
	if buf.String() != want {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := (&TextFormatter{}).FormatTo(buf, "deleted 3 entries"); err != nil {
		t.Fatalf("FormatTo() failed: %v", err)
	}
	if buf.String() != "deleted 3 entries\n" {
		t.Errorf("FormatTo() = %q", buf.String())
	}
}

// TestJSONFormatter tests that output is valid JSON.
func TestJSONFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	data := map[string]int{"deleted": 3}

	if err := NewFormatter(FormatJSON).FormatTo(buf, data); err != nil {
		t.Fatalf("FormatTo() failed: %v", err)
	}

	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if got["deleted"] != 3 {
		t.Errorf("got %v", got)
	}
}

// TestSetupSignalHandler tests that the context follows its parent and the
// stop function.
func TestSetupSignalHandler(t *testing.T) {
	ctx, stop := SetupSignalHandler(context.Background())

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before any signal")
	case <-time.After(10 * time.Millisecond):
	}

	stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("stop() did not cancel the context")
	}

	parent, cancel := context.WithCancel(context.Background())
	child, stopChild := SetupSignalHandler(parent)
	defer stopChild()
	cancel()
	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("parent cancellation did not propagate")
	}
}
