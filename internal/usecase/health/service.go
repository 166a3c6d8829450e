package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the service cannot answer searches.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store StorePinger
	index IndexLoader
}

// New creates a Service. store can be nil.
func New(store StorePinger, index IndexLoader) *Service {
	return &Service{store: store, index: index}
}

// Check runs health checks against all components. A storage failure only
// degrades the service, since the cache is optional; an index failure is fatal.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			checks["storage"] = CheckError
			status = Degraded
		} else {
			checks["storage"] = CheckOK
		}
	}

	if err := s.index.Load(ctx); err != nil {
		checks["index"] = CheckError
		status = Unhealthy
	} else {
		checks["index"] = CheckOK
	}

	return Report{Status: status, Checks: checks}
}
