package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Settings selects the exporters. An empty endpoint keeps that signal local:
// spans are still created and propagated but not exported, logs go to stdout only.
type Settings struct {
	ServiceName   string
	Environment   string
	TraceEndpoint string
	LogEndpoint   string
	LogURLPath    string
}

// Telemetry bundles what a service needs from the observability stack.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	Logger         *zap.Logger

	shutdowns []ShutdownFunc
}

// Setup builds tracing and logging for a service.
func Setup(ctx context.Context, s Settings) (*Telemetry, error) {
	t := &Telemetry{}

	if s.TraceEndpoint != "" {
		tp, shutdown, err := SetupTracer(ctx, s.ServiceName, s.TraceEndpoint, s.Environment)
		if err != nil {
			return nil, err
		}
		t.TracerProvider = tp
		t.shutdowns = append(t.shutdowns, shutdown)
	} else {
		t.TracerProvider = sdktrace.NewTracerProvider()
		otel.SetTracerProvider(t.TracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		t.shutdowns = append(t.shutdowns, t.TracerProvider.Shutdown)
	}

	var lp otellog.LoggerProvider
	if s.LogEndpoint != "" {
		provider, shutdown, err := SetupLogs(ctx, s.ServiceName, s.LogEndpoint, s.LogURLPath, s.Environment)
		if err != nil {
			_ = t.Shutdown(ctx)
			return nil, err
		}
		lp = provider
		t.shutdowns = append(t.shutdowns, shutdown)
	}
	t.Logger = NewLogger(s.ServiceName, lp)

	return t, nil
}

// Shutdown flushes exporters in reverse setup order and syncs the logger.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs error
	if t.Logger != nil {
		// Sync on stdout returns EINVAL on some platforms; not worth reporting.
		_ = t.Logger.Sync()
	}
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, t.shutdowns[i](ctx))
	}
	return errs
}
