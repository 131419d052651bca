package acumbamail

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMonitor_RecordRequest(t *testing.T) {
	m := NewMonitor()

	m.RecordRequest(100 * time.Millisecond)
	for i := 0; i < 150; i++ {
		m.RecordRequest(50 * time.Millisecond)
	}

	stats := m.GetStats()
	if stats.RequestsLastHour != 151 {
		t.Errorf("Expected 151 requests, got %d", stats.RequestsLastHour)
	}
	// Latency window keeps the last 100 samples only.
	if stats.AverageLatency != 50*time.Millisecond {
		t.Errorf("Expected average 50ms, got %v", stats.AverageLatency)
	}
	if stats.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %v", stats.Status)
	}
}

func TestMonitor_ThrottleWindow(t *testing.T) {
	m := NewMonitor()

	m.RecordThrottle(0)
	if m.RetryAfter() != 0 {
		t.Error("throttle without Retry-After must not open a window")
	}

	m.RecordThrottle(50 * time.Millisecond)
	if m.Status() != StatusThrottled {
		t.Errorf("Expected throttled, got %v", m.Status())
	}

	time.Sleep(70 * time.Millisecond)
	if m.RetryAfter() != 0 {
		t.Errorf("Expected window to close, got %v", m.RetryAfter())
	}
	if got := m.GetStats().ThrottleCount; got != 2 {
		t.Errorf("Expected 2 throttles, got %d", got)
	}
}

func TestMonitor_DegradedOnFailures(t *testing.T) {
	m := NewMonitor()

	for i := 0; i < 6; i++ {
		m.RecordRequest(10 * time.Millisecond)
	}
	for i := 0; i < 4; i++ {
		m.RecordFailure()
	}

	if m.Status() != StatusDegraded {
		t.Errorf("Expected degraded at 40%% failures, got %v", m.Status())
	}
}

func TestMonitor_DetectThrottlePattern(t *testing.T) {
	m := NewMonitor()

	tests := []struct {
		msg  string
		want bool
	}{
		{"Too Many Requests", true},
		{"daily limit reached for this plan", true},
		{"invalid list id", false},
	}
	for _, tt := range tests {
		if got := m.DetectThrottlePattern(tt.msg); got != tt.want {
			t.Errorf("DetectThrottlePattern(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestStatus_JSONRoundTrip(t *testing.T) {
	for _, want := range []Status{StatusHealthy, StatusDegraded, StatusThrottled} {
		data, err := json.Marshal(MonitorStats{Status: want})
		if err != nil {
			t.Fatalf("marshal %v: %v", want, err)
		}
		var got MonitorStats
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got.Status != want {
			t.Errorf("Expected %v, got %v", want, got.Status)
		}
	}

	var s Status
	if err := s.UnmarshalText([]byte("offline")); err == nil {
		t.Error("Expected an error for an unknown status")
	}
}
