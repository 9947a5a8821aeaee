package health

import (
	"context"

	"go.uber.org/zap"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the document store is up but another component is not.
	Degraded Status = "degraded"
	// Unhealthy indicates the document store is down.
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

// Component names reported in Report.Checks.
const (
	ComponentDocuments = "documents"
	ComponentVectors   = "vectors"
	ComponentModels    = "models"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	docs    Pinger
	vectors Pinger
	models  ModelChecker
	logger  *zap.Logger
}

// New creates a Service. models can be nil.
func New(docs, vectors Pinger, models ModelChecker, logger *zap.Logger) *Service {
	return &Service{docs: docs, vectors: vectors, models: models, logger: logger}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, 3)

	checks[ComponentDocuments] = s.result(ComponentDocuments, s.docs.Ping(ctx))
	checks[ComponentVectors] = s.result(ComponentVectors, s.vectors.Ping(ctx))
	if s.models != nil {
		checks[ComponentModels] = s.result(ComponentModels, s.models.HealthCheck(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[ComponentDocuments] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) result(component string, err error) CheckResult {
	if err != nil {
		s.logger.Warn("Health check failed", zap.String("component", component), zap.Error(err))
		return CheckError
	}
	return CheckOK
}
