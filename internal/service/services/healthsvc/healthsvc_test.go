package healthsvc

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(_ context.Context) error {
	return p.err
}

type fakeBus struct {
	healthy bool
}

func (b *fakeBus) Healthy() bool {
	return b.healthy
}

func TestCheckReportsFirstFailure(t *testing.T) {
	down := errors.New("connection refused")

	cases := []struct {
		name  string
		pg    error
		mongo error
		bus   bool
		want  string
	}{
		{name: "all healthy", bus: true, want: "healthy"},
		{name: "sql down", pg: down, bus: true, want: "sql_unhealthy"},
		{name: "mongo down", mongo: down, bus: true, want: "mongo_unhealthy"},
		{name: "bus down", bus: false, want: "bus_unhealthy"},
		{name: "sql reported before mongo", pg: down, mongo: down, bus: false, want: "sql_unhealthy"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewHealthService(&fakePinger{err: tc.pg}, &fakePinger{err: tc.mongo}, &fakeBus{healthy: tc.bus})

			got := svc.Check(context.Background())
			if got.Status != tc.want {
				t.Errorf("expected status %q, got %q", tc.want, got.Status)
			}
			if got.Timestamp.IsZero() {
				t.Error("expected a timestamp on the report")
			}
		})
	}
}
