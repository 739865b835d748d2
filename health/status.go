package health

import "time"

// Status is the health of one backing resource or of the whole process.
// Three states are reported: healthy, degraded (reachable but misbehaving,
// or a single failed probe), and unhealthy.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Probe       *Probe    `json:"probe,omitempty"`
}

// Probe carries the measurements behind a status: how long the last ping
// took, how many probes in a row have failed, and when the resource last
// answered successfully.
type Probe struct {
	Latency     time.Duration `json:"latency"`
	Failures    int           `json:"failures"`
	LastSuccess time.Time     `json:"last_success,omitempty"`
}

// NewHealthy builds a healthy status stamped now.
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "healthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded builds a degraded status stamped now.
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    "degraded",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy builds an unhealthy status stamped now.
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    "unhealthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// IsHealthy reports whether the status is healthy.
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded reports whether the status is degraded.
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// IsUnhealthy reports whether the status is unhealthy.
func (s Status) IsUnhealthy() bool {
	return s.Status == "unhealthy"
}

// WithProbe returns a copy of the status with probe measurements attached.
func (s Status) WithProbe(probe *Probe) Status {
	s.Probe = probe
	return s
}

// WithSubStatus returns a copy of the status with one more sub-status.
// The copy owns its own slice; the receiver is untouched.
func (s Status) WithSubStatus(sub Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, sub)
	return s
}

// Aggregate folds resource statuses into one system status. Any unhealthy
// resource makes the system unhealthy; otherwise any degraded resource
// makes it degraded; otherwise it is healthy. Sub-statuses are copied into
// the result.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "no resources to aggregate")
	}

	hasUnhealthy := false
	hasDegraded := false
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			hasUnhealthy = true
		case sub.IsDegraded():
			hasDegraded = true
		}
	}

	var status Status
	switch {
	case hasUnhealthy:
		status = NewUnhealthy(component, "one or more resources are unhealthy")
	case hasDegraded:
		status = NewDegraded(component, "one or more resources are degraded")
	default:
		status = NewHealthy(component, "all resources are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}
