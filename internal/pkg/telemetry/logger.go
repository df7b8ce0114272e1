package telemetry

import (
	"context"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a JSON zap logger writing to stdout. When lp is not nil
// every record is also forwarded to the OpenTelemetry log pipeline.
func NewLogger(serviceName string, lp otellog.LoggerProvider) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(os.Stdout),
		zap.InfoLevel,
	)

	if lp != nil {
		core = zapcore.NewTee(core, otelzap.NewCore(serviceName, otelzap.WithLoggerProvider(lp)))
	}

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", serviceName)),
	)
}

// TraceInfo holds the OTel identifiers extracted from a context.
type TraceInfo struct {
	// TraceID is the W3C trace ID (32 lowercase hex chars), empty when no
	// span is active.
	TraceID string

	// SpanID is the W3C span ID (16 lowercase hex chars).
	SpanID string
}

// TraceInfoFromContext reads the active span from ctx. Both fields are empty
// if the context carries no valid span (e.g. in unit tests).
func TraceInfoFromContext(ctx context.Context) TraceInfo {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// WithTrace decorates logger with the trace_id and span_id of the span
// active in ctx so log lines can be joined with the trace.
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	ti := TraceInfoFromContext(ctx)
	if ti.TraceID == "" {
		return logger
	}
	return logger.With(
		zap.String("trace_id", ti.TraceID),
		zap.String("span_id", ti.SpanID),
	)
}
