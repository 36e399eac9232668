package paymentsvc

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Gateway models the external payment collaborator. A real integration
// replaces the simulated implementation and keeps the same state transitions
// in the saga.
type Gateway interface {
	// Charge attempts to take payment for an order. A declined payment is
	// (false, nil); an error means the gateway itself failed.
	Charge(ctx context.Context, orderID string, amount decimal.Decimal) (bool, error)
}

// SimulatedGateway approximates a gateway call: inherent latency plus a
// random accept/decline outcome.
type SimulatedGateway struct {
	latency     time.Duration
	successRate float64
}

// NewSimulatedGateway creates a gateway simulation from configuration.
func NewSimulatedGateway() *SimulatedGateway {
	latencyMs := viper.GetInt("payment.latency_ms")
	if latencyMs == 0 {
		latencyMs = 1000
	}

	successRate := viper.GetFloat64("payment.success_rate")
	if successRate == 0 {
		successRate = 0.45
	}

	return &SimulatedGateway{
		latency:     time.Duration(latencyMs) * time.Millisecond,
		successRate: successRate,
	}
}

// Charge waits out the simulated latency without holding any lock, then rolls
// the configured accept rate.
func (g *SimulatedGateway) Charge(ctx context.Context, orderID string, amount decimal.Decimal) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(g.latency):
	}

	return rand.Float64() < g.successRate, nil
}
