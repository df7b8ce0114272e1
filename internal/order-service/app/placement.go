// Package app holds the order placement use case.
package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/jcmexdev/order-placement/internal/order-service/domain"
	"github.com/jcmexdev/order-placement/internal/order-service/ports"
	"github.com/jcmexdev/order-placement/internal/pkg/contracts"
	"github.com/jcmexdev/order-placement/internal/pkg/metrics"
	"github.com/jcmexdev/order-placement/internal/pkg/telemetry"
)

const placeOrderSpanName = "PlaceOrder"

// Placement outcomes as recorded in metrics.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// StockChecker answers whether every SKU of an order is in stock.
type StockChecker interface {
	Check(ctx context.Context, skuCodes []string) domain.StockCheck
}

type Option func(*Orchestrator)

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

func WithMetrics(m *metrics.PlacementMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPublishTimeout bounds how long publishing the placed event may take.
// Zero means no bound beyond the transport's own.
func WithPublishTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.publishTimeout = d }
}

// Orchestrator places orders: it checks stock, stores accepted orders and
// announces them. It keeps no per-request state and is safe for concurrent use.
type Orchestrator struct {
	stock     StockChecker
	store     ports.OrderStore
	publisher ports.EventPublisher
	logger    *zap.Logger

	tracer         trace.Tracer
	metrics        *metrics.PlacementMetrics
	publishTimeout time.Duration
}

func NewOrchestrator(stock StockChecker, store ports.OrderStore, publisher ports.EventPublisher, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stock:     stock,
		store:     store,
		publisher: publisher,
		logger:    logger,
		tracer:    noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PlaceOrder runs one placement attempt.
//
// An accepted or rejected decision comes back with a nil error. A non-nil
// error wraps domain.ErrPersistence and means the order was not stored.
// The stock check always happens outside the store transaction, and the
// event is published only after the commit.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacementDecision, error) {
	ctx, span := o.tracer.Start(ctx, placeOrderSpanName)
	defer span.End()

	order := domain.NewOrder(req)
	span.SetAttributes(
		attribute.String("order.number", order.OrderNumber),
		attribute.Int("order.line_items", len(order.LineItems)),
	)
	logger := telemetry.WithTrace(ctx, o.logger).With(zap.String("order_number", order.OrderNumber))

	check := o.stock.Check(ctx, order.SkuCodes())
	if !check.AllInStock {
		reason := domain.NotInStockMessage
		outcome := OutcomeRejected
		if check.Degraded {
			reason = check.Reason
			if reason == "" {
				reason = domain.FallbackMessage
			}
			outcome = OutcomeDegraded
		}
		span.SetAttributes(
			attribute.String("order.decision", string(domain.StatusRejected)),
			attribute.Bool("order.degraded", check.Degraded),
		)
		logger.Info("order rejected", zap.String("reason", reason), zap.Bool("degraded", check.Degraded))
		o.metrics.ObservePlacement(outcome)
		return domain.Rejected(reason, check.Degraded), nil
	}

	if err := o.persist(ctx, order, logger); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order persistence failed")
		logger.Error("order placement failed", zap.Error(err))
		o.metrics.ObservePlacement(OutcomeFailed)
		return domain.PlacementDecision{}, err
	}

	decision := domain.Accepted(order)
	decision.NotifyErr = o.notify(ctx, order, logger)
	span.SetAttributes(attribute.String("order.decision", string(domain.StatusAccepted)))
	logger.Info("order placed successfully")
	o.metrics.ObservePlacement(OutcomeAccepted)
	return decision, nil
}

// persist writes order inside its own transaction and rolls back on any
// failure after BeginTx.
func (o *Orchestrator) persist(ctx context.Context, order *domain.Order, logger *zap.Logger) (err error) {
	tx, err := o.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", domain.ErrPersistence, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			logger.Error("rollback failed", zap.Error(rbErr))
		}
	}()

	if err = tx.Save(ctx, order); err != nil {
		return fmt.Errorf("%w: save order %s: %w", domain.ErrPersistence, order.OrderNumber, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit order %s: %w", domain.ErrPersistence, order.OrderNumber, err)
	}
	return nil
}

// notify publishes the placed event. The order is already committed, so a
// failure is logged and counted but does not change the decision.
func (o *Orchestrator) notify(ctx context.Context, order *domain.Order, logger *zap.Logger) error {
	ctx = context.WithoutCancel(ctx)
	if o.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.publishTimeout)
		defer cancel()
	}

	event := contracts.OrderPlacedEvent{OrderNumber: order.OrderNumber}
	if err := o.publisher.Publish(ctx, contracts.NotificationTopic, event); err != nil {
		logger.Error("order stored but placed event not published",
			zap.String("topic", contracts.NotificationTopic),
			zap.Error(err),
		)
		o.metrics.ObserveNotifyFailure()
		return fmt.Errorf("publish %s: %w", contracts.NotificationTopic, err)
	}
	return nil
}
