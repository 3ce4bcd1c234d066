package health

import "context"

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

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	Chunks int // -1 when unknown
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	embedding ProviderChecker
	chat      ProviderChecker
	counter   ChunkCounter
}

// New creates a Service. embedding and chat can be nil.
func New(store StorePinger, embedding, chat ProviderChecker) *Service {
	return &Service{store: store, embedding: embedding, chat: chat}
}

// WithCounter adds the collection size to reports.
func (s *Service) WithCounter(c ChunkCounter) *Service {
	s.counter = c
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks["vector_store"] = result(s.store.Ping(ctx))
	if s.embedding != nil {
		checks["embedding"] = result(s.embedding.HealthCheck(ctx))
	}
	if s.chat != nil {
		checks["chat"] = result(s.chat.HealthCheck(ctx))
	}

	chunks := -1
	if s.counter != nil && checks["vector_store"] == CheckOK {
		if n, err := s.counter.Count(ctx); err == nil {
			chunks = n
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks, Chunks: chunks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
