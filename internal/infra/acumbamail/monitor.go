package acumbamail

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Status is the health of the remote API as seen by this client.
type Status int

const (
	StatusHealthy   Status = iota // answering normally
	StatusDegraded                // slow or failing often
	StatusThrottled               // inside a Retry-After window
)

func (s Status) String() string {
	switch s {
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	}
	return "healthy"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "healthy":
		*s = StatusHealthy
	case "degraded":
		*s = StatusDegraded
	case "throttled":
		*s = StatusThrottled
	default:
		return fmt.Errorf("unknown api status %q", b)
	}
	return nil
}

// MonitorStats holds monitoring statistics for the API.
type MonitorStats struct {
	Status           Status        `json:"status"`
	AverageLatency   time.Duration `json:"average_latency"`
	ThrottleCount    int           `json:"throttle_count"`
	FailureCount     int           `json:"failure_count"`
	RequestsLastHour int           `json:"requests_last_hour"`
	RetryAfter       time.Duration `json:"retry_after"`
}

// Monitor tracks latency, throttling and failures of the remote API.
type Monitor struct {
	mu sync.RWMutex

	recentLatencies  []time.Duration
	maxLatencyWindow int

	throttleCount    int
	failureCount     int
	recentOutcomes   []bool
	throttlePatterns []string
	throttledUntil   time.Time

	requestTimestamps []time.Time
	windowDuration    time.Duration

	slowResponseThreshold time.Duration
	degradedThreshold     float64
}

// NewMonitor creates a monitor with default thresholds.
func NewMonitor() *Monitor {
	return &Monitor{
		recentLatencies:  make([]time.Duration, 0, 100),
		maxLatencyWindow: 100,
		throttlePatterns: []string{
			"rate limit exceeded",
			"too many requests",
			"limit reached",
			"quota exceeded",
			"try again later",
		},
		windowDuration:        time.Hour,
		slowResponseThreshold: 3 * time.Second,
		degradedThreshold:     0.3,
	}
}

// RecordRequest records a successful request with its latency.
func (m *Monitor) RecordRequest(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recentLatencies = append(m.recentLatencies, latency)
	if len(m.recentLatencies) > m.maxLatencyWindow {
		m.recentLatencies = m.recentLatencies[1:]
	}
	m.recordOutcome(true)
	m.recordTimestamp(time.Now())
}

// RecordFailure records a request that failed for a reason other than
// throttling.
func (m *Monitor) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failureCount++
	m.recordOutcome(false)
	m.recordTimestamp(time.Now())
}

// RecordThrottle records a throttling response. retryAfter opens a window
// during which RetryAfter reports the remaining wait; zero opens none.
func (m *Monitor) RecordThrottle(retryAfter time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.throttleCount++
	m.recordOutcome(false)
	m.recordTimestamp(now)
	if retryAfter > 0 {
		if until := now.Add(retryAfter); until.After(m.throttledUntil) {
			m.throttledUntil = until
		}
	}
}

func (m *Monitor) recordOutcome(ok bool) {
	m.recentOutcomes = append(m.recentOutcomes, ok)
	if len(m.recentOutcomes) > m.maxLatencyWindow {
		m.recentOutcomes = m.recentOutcomes[1:]
	}
}

func (m *Monitor) recordTimestamp(now time.Time) {
	m.requestTimestamps = append(m.requestTimestamps, now)

	cutoff := now.Add(-m.windowDuration)
	i := 0
	for i < len(m.requestTimestamps) && !m.requestTimestamps[i].After(cutoff) {
		i++
	}
	m.requestTimestamps = m.requestTimestamps[i:]
}

// DetectThrottlePattern checks if a message contains throttle wording.
func (m *Monitor) DetectThrottlePattern(message string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lower := strings.ToLower(message)
	for _, pattern := range m.throttlePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// RetryAfter returns the remaining throttle window, or zero.
func (m *Monitor) RetryAfter() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retryAfterLocked()
}

func (m *Monitor) retryAfterLocked() time.Duration {
	if remaining := time.Until(m.throttledUntil); remaining > 0 {
		return remaining
	}
	return 0
}

func (m *Monitor) averageLatencyLocked() time.Duration {
	if len(m.recentLatencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range m.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(m.recentLatencies))
}

func (m *Monitor) statusLocked() Status {
	if m.retryAfterLocked() > 0 {
		return StatusThrottled
	}

	if len(m.recentLatencies) > 10 && m.averageLatencyLocked() > m.slowResponseThreshold {
		return StatusDegraded
	}

	if len(m.recentOutcomes) >= 10 {
		failed := 0
		for _, ok := range m.recentOutcomes {
			if !ok {
				failed++
			}
		}
		if float64(failed)/float64(len(m.recentOutcomes)) > m.degradedThreshold {
			return StatusDegraded
		}
	}

	return StatusHealthy
}

// Status returns the current status of the API.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

// GetStats returns current monitoring statistics.
func (m *Monitor) GetStats() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().Add(-time.Hour)
	lastHour := 0
	for _, t := range m.requestTimestamps {
		if t.After(cutoff) {
			lastHour++
		}
	}

	return MonitorStats{
		Status:           m.statusLocked(),
		AverageLatency:   m.averageLatencyLocked(),
		ThrottleCount:    m.throttleCount,
		FailureCount:     m.failureCount,
		RequestsLastHour: lastHour,
		RetryAfter:       m.retryAfterLocked(),
	}
}
