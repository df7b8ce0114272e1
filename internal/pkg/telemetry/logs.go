package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const (
	logExportTimeout = 30 * time.Second
	logMaxQueueSize  = 2048
)

// SetupLogs creates a LoggerProvider exporting over OTLP/HTTP. The provider
// is meant to be bridged into zap with NewLogger; it is not registered
// globally.
func SetupLogs(ctx context.Context, serviceName, endpoint, urlPath, environment string) (*sdklog.LoggerProvider, ShutdownFunc, error) {
	res, err := newResource(serviceName, environment)
	if err != nil {
		return nil, nil, err
	}

	opts := []otlploghttp.Option{
		otlploghttp.WithEndpoint(stripScheme(endpoint)),
		otlploghttp.WithInsecure(),
	}
	if urlPath != "" {
		opts = append(opts, otlploghttp.WithURLPath(urlPath))
	}

	exporter, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: failed to create OTLP log exporter: %w", err)
	}

	processor := sdklog.NewBatchProcessor(exporter,
		sdklog.WithExportTimeout(logExportTimeout),
		sdklog.WithMaxQueueSize(logMaxQueueSize),
	)
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(processor),
		sdklog.WithResource(res),
	)

	shutdown := func(ctx context.Context) error {
		if err := lp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: error shutting down LoggerProvider: %w", err)
		}
		return nil
	}
	return lp, shutdown, nil
}
