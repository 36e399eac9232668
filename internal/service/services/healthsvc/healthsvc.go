package healthsvc

import (
	"context"
	"time"
)

// pinger reports whether a store is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

// busHealth reports whether the producer's bus connection is open.
type busHealth interface {
	Healthy() bool
}

// Status is the aggregate health report.
type Status struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthService aggregates liveness of the two stores and the event bus.
type HealthService struct {
	pg    pinger
	mongo pinger
	bus   busHealth
}

// NewHealthService creates a new HealthService.
func NewHealthService(pg, mongo pinger, bus busHealth) *HealthService {
	return &HealthService{
		pg:    pg,
		mongo: mongo,
		bus:   bus,
	}
}

// Check probes each collaborator in order and reports the first failure.
func (s *HealthService) Check(ctx context.Context) Status {
	status := "healthy"

	switch {
	case s.pg.Ping(ctx) != nil:
		status = "sql_unhealthy"
	case s.mongo.Ping(ctx) != nil:
		status = "mongo_unhealthy"
	case !s.bus.Healthy():
		status = "bus_unhealthy"
	}

	return Status{
		Status:    status,
		Timestamp: time.Now(),
	}
}
