package httpx

import (
	"fmt"
	"net/http"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/jcmexdev/order-placement/internal/pkg/metrics"
	"github.com/jcmexdev/order-placement/internal/pkg/middlewares"
)

// NewRouter builds the order service HTTP surface. The returned handler
// starts a server span per request and extracts incoming trace context.
func NewRouter(handler *Handler, logger *zap.Logger, sm *metrics.ServerMetrics, gatherer prometheus.Gatherer) (http.Handler, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, fmt.Errorf("httpx: compression adapter: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachRequestContext)
	r.Use(middlewares.AccessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewares.Metrics(sm))
	r.Use(compress)

	r.Post("/api/order", handler.PlaceOrder)
	r.Get("/api/order/{orderNumber}", handler.GetOrder)
	r.Get("/health", handler.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	return otelhttp.NewHandler(r, "order-service",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	), nil
}
