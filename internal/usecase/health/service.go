package health

import (
	"context"
	"errors"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// probeKey is never written; a miss proves the store answers.
const probeKey = "healthcheck/probe"

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Components lists the optional checks. Nil fields are skipped.
type Components struct {
	Embedding   Checker
	Generation  Checker
	ObjectStore BlobGetter
}

// Service coordinates health checks.
type Service struct {
	db   DBPinger
	deps Components
}

// New creates a Service.
func New(db DBPinger, deps Components) *Service {
	return &Service{db: db, deps: deps}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.db != nil {
		checks["database"] = result(s.db.Ping(ctx))
	}
	if s.deps.Embedding != nil {
		checks["embedding"] = result(s.deps.Embedding.HealthCheck(ctx))
	}
	if s.deps.Generation != nil {
		checks["generation"] = result(s.deps.Generation.HealthCheck(ctx))
	}
	if s.deps.ObjectStore != nil {
		_, err := s.deps.ObjectStore.Get(ctx, probeKey)
		if errors.Is(err, domain.ErrNotFound) {
			err = nil
		}
		checks["object_store"] = result(err)
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
