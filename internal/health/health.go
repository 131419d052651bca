// Package health provides system health monitoring and status reporting.
package health

import (
	"github.com/vietddude/acumba/internal/infra/acumbamail"
	"github.com/vietddude/acumba/internal/resilience"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// FromBreaker maps a breaker state to a system status: closed is healthy,
// half-open is degraded and open is critical.
func FromBreaker(s resilience.State) SystemStatus {
	switch s {
	case resilience.StateOpen:
		return StatusCritical
	case resilience.StateHalfOpen:
		return StatusDegraded
	}
	return StatusHealthy
}

// DependencyHealth is the result of pinging one backing service.
type DependencyHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus                `json:"system_status"`
	Breaker      resilience.BreakerSnapshot  `json:"breaker"`
	Errors       resilience.TallySnapshot    `json:"errors"`
	ErrorTotal   int                         `json:"error_total"`
	API          *acumbamail.MonitorStats    `json:"api,omitempty"`
	DLQDepth     int                         `json:"dlq_depth"`
	Dependencies map[string]DependencyHealth `json:"dependencies,omitempty"`
}
