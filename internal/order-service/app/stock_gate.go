package app

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/jcmexdev/order-placement/internal/order-service/domain"
	"github.com/jcmexdev/order-placement/internal/order-service/ports"
	"github.com/jcmexdev/order-placement/internal/pkg/metrics"
	"github.com/jcmexdev/order-placement/internal/pkg/resilience"
	"github.com/jcmexdev/order-placement/internal/pkg/telemetry"
)

// StockGate runs the inventory check under the resilience policies. It never
// returns an error: every fault ends in the degraded fallback answer.
type StockGate struct {
	verifier ports.StockVerifier
	pipeline *resilience.Pipeline[domain.StockCheck]
	logger   *zap.Logger
}

// NewStockGate builds the gate and its pipeline. The same gate must serve
// every placement so the breaker sees all inventory traffic.
func NewStockGate(verifier ports.StockVerifier, policies resilience.Policies, logger *zap.Logger, m *metrics.PlacementMetrics) *StockGate {
	g := &StockGate{verifier: verifier, logger: logger}

	if policies.Retry.OnRetry == nil {
		policies.Retry.OnRetry = func(err error, wait time.Duration) {
			logger.Warn("inventory lookup failed, retrying",
				zap.Error(err),
				zap.Duration("backoff", wait),
			)
		}
	}

	g.pipeline = resilience.NewPipeline[domain.StockCheck](policies,
		resilience.WithFallback[domain.StockCheck](g.fallback),
		resilience.WithStateChange[domain.StockCheck](func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.SetBreakerState(name, breakerGauge(to))
		}),
	)
	return g
}

// Check reports whether every SKU is in stock. A Degraded result means the
// inventory could not be consulted and AllInStock is false.
func (g *StockGate) Check(ctx context.Context, skuCodes []string) domain.StockCheck {
	// The fallback swallows every fault so err is always nil here.
	check, _ := g.pipeline.Execute(ctx, func(ctx context.Context) (domain.StockCheck, error) {
		ok, err := g.verifier.Verify(ctx, skuCodes)
		if err != nil {
			return domain.StockCheck{}, err
		}
		return domain.StockCheck{AllInStock: ok}, nil
	})
	return check
}

// BreakerState exposes the breaker state for health reporting.
func (g *StockGate) BreakerState() gobreaker.State {
	return g.pipeline.State()
}

func (g *StockGate) fallback(ctx context.Context, cause error) (domain.StockCheck, error) {
	telemetry.WithTrace(ctx, g.logger).Error("inventory unavailable, using fallback",
		zap.Error(cause),
	)
	return domain.StockCheck{Degraded: true, Reason: domain.FallbackMessage}, nil
}

// breakerGauge maps gobreaker states onto the gauge values 0 closed,
// 1 half-open and 2 open.
func breakerGauge(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
