package requestlog

import (
	"testing"
	"time"
)

// TestEntry_Summarize verifies the list projection of an entry.
func TestEntry_Summarize(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Entry{
		ID:           42,
		Method:       "GET",
		Path:         "/api/x?page=2",
		Status:       200,
		ResponseTime: 17,
		RequestIP:    "10.0.0.7",
		Timestamp:    ts,
	}

	s := e.Summarize()

	if s.ID != "42" {
		t.Errorf("ID = %q, want %q", s.ID, "42")
	}
	if s.Time != "17" {
		t.Errorf("Time = %q, want %q", s.Time, "17")
	}
	if s.IP != "10.0.0.7" {
		t.Errorf("IP = %q, want %q", s.IP, "10.0.0.7")
	}
	if s.Method != "GET" || s.Path != "/api/x?page=2" || s.Status != 200 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if !s.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", s.Timestamp, ts)
	}
}

// TestEntry_Clone verifies that clones do not share header or query maps.
func TestEntry_Clone(t *testing.T) {
	e := &Entry{
		Headers:     map[string][]string{"Accept": {"text/html"}},
		QueryParams: map[string][]string{"q": {"a"}},
	}

	c := e.Clone()
	c.Headers["Accept"][0] = "application/json"
	c.QueryParams["q"] = append(c.QueryParams["q"], "b")

	if e.Headers["Accept"][0] != "text/html" {
		t.Errorf("original header mutated: %v", e.Headers)
	}
	if len(e.QueryParams["q"]) != 1 {
		t.Errorf("original query mutated: %v", e.QueryParams)
	}
}
