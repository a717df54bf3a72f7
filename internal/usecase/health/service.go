package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/partsearch/internal/logger"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the database is unreachable.
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

// DefaultTimeout bounds each probe.
const DefaultTimeout = 3 * time.Second

// Probe is a named dependency check.
type Probe struct {
	Name    string
	Checker Checker
}

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db      DBPinger
	probes  []Probe
	timeout time.Duration
}

// New creates a Service. Probes with a nil Checker are ignored.
func New(db DBPinger, probes ...Probe) *Service {
	active := make([]Probe, 0, len(probes))
	for _, p := range probes {
		if p.Checker != nil {
			active = append(active, p)
		}
	}
	return &Service{db: db, probes: active, timeout: DefaultTimeout}
}

// Check runs all probes concurrently. A database failure is Unhealthy,
// any other failure Degraded.
func (s *Service) Check(ctx context.Context) Report {
	results := make([]CheckResult, len(s.probes)+1)

	var g errgroup.Group
	g.Go(func() error {
		results[0] = s.run(ctx, "database", s.db.Ping)
		return nil
	})
	for i, p := range s.probes {
		g.Go(func() error {
			results[i+1] = s.run(ctx, p.Name, p.Checker.HealthCheck)
			return nil
		})
	}
	_ = g.Wait()

	checks := map[string]CheckResult{"database": results[0]}
	status := Healthy
	for i, p := range s.probes {
		checks[p.Name] = results[i+1]
		if results[i+1] == CheckError {
			status = Degraded
		}
	}
	if results[0] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) run(ctx context.Context, name string, fn func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		logger.FromContext(ctx).Warn("Health check failed", zap.String("check", name), zap.Error(err))
		return CheckError
	}
	return CheckOK
}
