package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Checker checks one dependency (embedding provider, vector index).
type Checker interface {
	HealthCheck(ctx context.Context) error
}
