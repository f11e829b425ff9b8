// Package health provides the health status type reported for daemon
// components over the gateway API.
package health

import "time"

// Health state strings
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// Status represents the health state of a component or of the daemon.
type Status struct {
	Component string         `json:"component"`
	Healthy   bool           `json:"healthy"`
	Status    string         `json:"status"` // "healthy", "degraded", "unhealthy"
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StateHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StateDegraded
}

// WithDetails returns a copy of the status with a detail snapshot attached.
func (s Status) WithDetails(details map[string]any) Status {
	s.Details = details
	return s
}

// NewHealthy creates a healthy status for a component
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    StateHealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a degraded status for a component
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    StateDegraded,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates an unhealthy status for a component
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    StateUnhealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// FromComponent derives a health status from a component's running flag
// and its Status report.
func FromComponent(name string, running bool, report map[string]any) Status {
	if !running {
		return NewUnhealthy(name, "Component is not running")
	}
	return NewHealthy(name, "Component running").WithDetails(report)
}
