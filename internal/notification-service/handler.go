package notificationservice

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jcmexdev/order-placement/internal/pkg/contracts"
	"github.com/jcmexdev/order-placement/internal/pkg/telemetry"
)

type Handler struct {
	propagator propagation.TextMapPropagator
	tracer     trace.Tracer
	logger     *zap.Logger
}

func NewHandler(propagator propagation.TextMapPropagator, tracer trace.Tracer, logger *zap.Logger) *Handler {
	return &Handler{propagator: propagator, tracer: tracer, logger: logger}
}

// HandleOrderPlaced continues the producer's trace from the message headers
// and sends the notification.
func (h *Handler) HandleOrderPlaced(ctx context.Context, msg kafkago.Message) error {
	ctx = h.extractTraceContext(ctx, msg.Headers)
	ctx, span := h.tracer.Start(ctx, "NotifyOrderPlaced", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	logger := telemetry.WithTrace(ctx, h.logger)

	var event contracts.OrderPlacedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Error("invalid order placed event", zap.Error(err), zap.ByteString("raw_value", msg.Value))
		span.RecordError(err)
		return fmt.Errorf("decode order placed event: %w", err)
	}

	logger.Info("received notification for order", zap.String("order_number", event.OrderNumber))
	return nil
}

func (h *Handler) extractTraceContext(ctx context.Context, headers []kafkago.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		carrier[header.Key] = string(header.Value)
	}
	return h.propagator.Extract(ctx, carrier)
}
