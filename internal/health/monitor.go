package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/acumba/internal/infra/acumbamail"
	"github.com/vietddude/acumba/internal/resilience"
)

// GuardSource exposes the breaker and error tally of a guard.
type GuardSource interface {
	Breaker() resilience.BreakerSnapshot
	BreakerState() resilience.State
	Tally() resilience.TallySnapshot
}

// APIStatsSource reports client-side observations of the remote API.
type APIStatsSource interface {
	GetStats() acumbamail.MonitorStats
}

// QueueCounter counts pending dead-lettered operations.
type QueueCounter interface {
	Count(ctx context.Context) (int, error)
}

// Pinger checks a backing service.
type Pinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	guard        GuardSource
	api          APIStatsSource
	queue        QueueCounter
	dependencies map[string]Pinger
	interval     time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithAPIStats includes the client monitor in detailed reports.
func WithAPIStats(s APIStatsSource) MonitorOption {
	return func(m *Monitor) { m.api = s }
}

// WithQueue includes the dead-letter queue depth in detailed reports.
func WithQueue(q QueueCounter) MonitorOption {
	return func(m *Monitor) { m.queue = q }
}

// WithDependency pings p under name on every detailed check.
func WithDependency(name string, p Pinger) MonitorOption {
	return func(m *Monitor) { m.dependencies[name] = p }
}

// WithCheckInterval caches detailed reports for d.
func WithCheckInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

// NewMonitor creates a new health monitor.
func NewMonitor(guard GuardSource, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		guard:        guard,
		dependencies: make(map[string]Pinger),
		interval:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status returns the status implied by the breaker alone.
func (m *Monitor) Status() SystemStatus {
	return FromBreaker(m.guard.BreakerState())
}

// CheckHealth builds a detailed report. Reports are reused for the check
// interval.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.interval {
		return *m.lastReport
	}

	tally := m.guard.Tally()
	report := HealthReport{
		SystemStatus: m.Status(),
		Breaker:      m.guard.Breaker(),
		Errors:       tally,
		ErrorTotal:   tally.Total(),
	}

	if m.api != nil {
		stats := m.api.GetStats()
		report.API = &stats
		if stats.Status != acumbamail.StatusHealthy {
			report.SystemStatus = worst(report.SystemStatus, StatusDegraded)
		}
	}

	if m.queue != nil {
		// Best effort
		if n, err := m.queue.Count(ctx); err == nil {
			report.DLQDepth = n
		}
	}

	if len(m.dependencies) > 0 {
		report.Dependencies = make(map[string]DependencyHealth, len(m.dependencies))
		for name, p := range m.dependencies {
			dep := DependencyHealth{Status: StatusHealthy}
			if err := p.Health(ctx); err != nil {
				dep = DependencyHealth{Status: StatusCritical, Error: err.Error()}
				report.SystemStatus = worst(report.SystemStatus, StatusDegraded)
			}
			report.Dependencies[name] = dep
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}

func worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
