package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jcmexdev/order-placement/internal/order-service/domain"
	"github.com/jcmexdev/order-placement/internal/order-service/ports"
	"github.com/jcmexdev/order-placement/internal/pkg/contracts"
	"github.com/jcmexdev/order-placement/internal/pkg/metrics"
	"github.com/jcmexdev/order-placement/internal/pkg/resilience"
)

// --- fakes ---

type fakeVerifier struct {
	calls atomic.Int32
	fn    func(ctx context.Context, skuCodes []string) (bool, error)

	mu   sync.Mutex
	last []string
}

func (f *fakeVerifier) Verify(ctx context.Context, skuCodes []string) (bool, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = skuCodes
	f.mu.Unlock()
	return f.fn(ctx, skuCodes)
}

func answer(inStock bool) *fakeVerifier {
	return &fakeVerifier{fn: func(context.Context, []string) (bool, error) { return inStock, nil }}
}

func failing(err error) *fakeVerifier {
	return &fakeVerifier{fn: func(context.Context, []string) (bool, error) { return false, err }}
}

type fakeStore struct {
	mu        sync.Mutex
	begins    int
	saved     []*domain.Order
	commits   int
	rollbacks int

	beginErr  error
	saveErr   error
	commitErr error
}

func (s *fakeStore) BeginTx(context.Context) (ports.OrderTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &fakeTx{store: s}, nil
}

type fakeTx struct {
	store   *fakeStore
	pending *domain.Order
	done    bool
}

func (tx *fakeTx) Save(_ context.Context, order *domain.Order) error {
	if tx.store.saveErr != nil {
		return tx.store.saveErr
	}
	tx.pending = order
	return nil
}

func (tx *fakeTx) Commit(context.Context) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits++
	if tx.pending != nil {
		s.saved = append(s.saved, tx.pending)
	}
	tx.done = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if tx.done {
		return nil
	}
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbacks++
	tx.done = true
	return nil
}

type published struct {
	topic string
	event contracts.OrderPlacedEvent
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, event contracts.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{topic: topic, event: event})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// --- helpers ---

func exampleRequest() domain.OrderRequest {
	return domain.OrderRequest{LineItems: []domain.LineItemRequest{
		{SkuCode: "A1", Price: decimal.RequireFromString("10.00"), Quantity: 2},
		{SkuCode: "B2", Price: decimal.RequireFromString("5.50"), Quantity: 1},
	}}
}

func passThrough() resilience.Policies {
	return resilience.Policies{}
}

func newGate(v ports.StockVerifier, p resilience.Policies) *StockGate {
	return NewStockGate(v, p, zap.NewNop(), nil)
}

// --- tests ---

func TestPlaceOrder_AllInStockIsAcceptedStoredAndAnnounced(t *testing.T) {
	verifier := answer(true)
	store := &fakeStore{}
	pub := &fakePublisher{}
	o := NewOrchestrator(newGate(verifier, passThrough()), store, pub, zap.NewNop())

	decision, err := o.PlaceOrder(context.Background(), exampleRequest())

	require.NoError(t, err)
	require.True(t, decision.IsAccepted())
	assert.NoError(t, decision.NotifyErr)
	assert.Equal(t, []string{"A1", "B2"}, verifier.last)

	require.Len(t, store.saved, 1)
	saved := store.saved[0]
	assert.Same(t, decision.Order, saved)
	assert.NotEmpty(t, saved.OrderNumber)
	require.Len(t, saved.LineItems, 2)
	assert.Equal(t, "A1", saved.LineItems[0].SkuCode)
	assert.Equal(t, 2, saved.LineItems[0].Quantity)
	assert.True(t, decimal.RequireFromString("5.50").Equal(saved.LineItems[1].Price))
	assert.Equal(t, 1, store.commits)
	assert.Zero(t, store.rollbacks)

	require.Len(t, pub.events, 1)
	assert.Equal(t, contracts.NotificationTopic, pub.events[0].topic)
	assert.Equal(t, saved.OrderNumber, pub.events[0].event.OrderNumber)
}

func TestPlaceOrder_MissingSkuIsRejectedWithoutSideEffects(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	o := NewOrchestrator(newGate(answer(false), passThrough()), store, pub, zap.NewNop())

	decision, err := o.PlaceOrder(context.Background(), exampleRequest())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, decision.Status)
	assert.Equal(t, domain.NotInStockMessage, decision.Reason)
	assert.False(t, decision.Degraded)
	assert.Zero(t, store.begins)
	assert.Zero(t, pub.count())
}

func TestPlaceOrder_EmptyOrderPassesVacuously(t *testing.T) {
	verifier := answer(true)
	store := &fakeStore{}
	pub := &fakePublisher{}
	o := NewOrchestrator(newGate(verifier, passThrough()), store, pub, zap.NewNop())

	decision, err := o.PlaceOrder(context.Background(), domain.OrderRequest{})

	require.NoError(t, err)
	assert.True(t, decision.IsAccepted())
	assert.Empty(t, verifier.last)
	require.Len(t, store.saved, 1)
	assert.Empty(t, store.saved[0].LineItems)
	assert.Equal(t, 1, pub.count())
}

func TestPlaceOrder_TimeoutsOnEveryAttemptFallBack(t *testing.T) {
	verifier := &fakeVerifier{fn: func(ctx context.Context, _ []string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}}
	policies := resilience.Policies{
		Timeout: resilience.TimeoutPolicy{Enabled: true, Duration: 20 * time.Millisecond},
		Retry: resilience.RetryPolicy{
			Enabled:         true,
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
	}
	store := &fakeStore{}
	pub := &fakePublisher{}
	o := NewOrchestrator(newGate(verifier, policies), store, pub, zap.NewNop())

	decision, err := o.PlaceOrder(context.Background(), exampleRequest())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, decision.Status)
	assert.Equal(t, domain.FallbackMessage, decision.Reason)
	assert.True(t, decision.Degraded)
	assert.EqualValues(t, 3, verifier.calls.Load())
	assert.Zero(t, store.begins)
	assert.Zero(t, pub.count())
}

func TestPlaceOrder_OutOfStockAnswerIsNotRetried(t *testing.T) {
	verifier := answer(false)
	policies := resilience.Policies{
		Retry: resilience.RetryPolicy{Enabled: true, MaxAttempts: 5, InitialInterval: time.Millisecond},
	}
	o := NewOrchestrator(newGate(verifier, policies), &fakeStore{}, &fakePublisher{}, zap.NewNop())

	decision, err := o.PlaceOrder(context.Background(), exampleRequest())

	require.NoError(t, err)
	assert.Equal(t, domain.NotInStockMessage, decision.Reason)
	assert.EqualValues(t, 1, verifier.calls.Load())
}

func TestPlaceOrder_OpenCircuitSkipsRemoteCall(t *testing.T) {
	verifier := failing(errors.New("connection refused"))
	policies := resilience.Policies{
		Breaker: resilience.BreakerPolicy{
			Enabled:             true,
			Name:                "inventory",
			ConsecutiveFailures: 2,
			Cooldown:            time.Minute,
		},
	}
	gate := newGate(verifier, policies)
	store := &fakeStore{}
	o := NewOrchestrator(gate, store, &fakePublisher{}, zap.NewNop())

	for range 2 {
		decision, err := o.PlaceOrder(context.Background(), exampleRequest())
		require.NoError(t, err)
		assert.Equal(t, domain.FallbackMessage, decision.Reason)
	}
	require.Equal(t, gobreaker.StateOpen, gate.BreakerState())

	decision, err := o.PlaceOrder(context.Background(), exampleRequest())

	require.NoError(t, err)
	assert.Equal(t, domain.FallbackMessage, decision.Reason)
	assert.True(t, decision.Degraded)
	assert.EqualValues(t, 2, verifier.calls.Load(), "open breaker must not reach the inventory")
	assert.Zero(t, store.begins)
}

func TestPlaceOrder_PersistenceFaults(t *testing.T) {
	boom := errors.New("disk full")
	tests := []struct {
		name          string
		store         *fakeStore
		wantRollbacks int
	}{
		{name: "begin", store: &fakeStore{beginErr: boom}, wantRollbacks: 0},
		{name: "save", store: &fakeStore{saveErr: boom}, wantRollbacks: 1},
		{name: "commit", store: &fakeStore{commitErr: boom}, wantRollbacks: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			o := NewOrchestrator(newGate(answer(true), passThrough()), tt.store, pub, zap.NewNop())

			decision, err := o.PlaceOrder(context.Background(), exampleRequest())

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrPersistence)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, domain.PlacementDecision{}, decision)
			assert.Empty(t, tt.store.saved)
			assert.Equal(t, tt.wantRollbacks, tt.store.rollbacks)
			assert.Zero(t, pub.count(), "nothing is announced for an unstored order")
		})
	}
}

func TestPlaceOrder_PublishFailureKeepsAcceptedOrder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPlacementMetrics(reg)
	core, logs := observer.New(zapcore.ErrorLevel)
	store := &fakeStore{}
	pub := &fakePublisher{err: errors.New("broker down")}
	o := NewOrchestrator(newGate(answer(true), passThrough()), store, pub, zap.New(core), WithMetrics(m))

	decision, err := o.PlaceOrder(context.Background(), exampleRequest())

	require.NoError(t, err)
	assert.True(t, decision.IsAccepted())
	require.Error(t, decision.NotifyErr)
	assert.Contains(t, decision.NotifyErr.Error(), "broker down")
	assert.Len(t, store.saved, 1)
	assert.Equal(t, 1, logs.FilterMessage("order stored but placed event not published").Len())

	expected := `
# HELP orders_placed_event_publish_failures_total Stored orders whose placed event could not be published.
# TYPE orders_placed_event_publish_failures_total counter
orders_placed_event_publish_failures_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "orders_placed_event_publish_failures_total"))
}

func TestPlaceOrder_PublishIgnoresCallerCancellation(t *testing.T) {
	store := &fakeStore{}
	var sawCanceled atomic.Bool
	pub := &ctxPublisher{fn: func(ctx context.Context) { sawCanceled.Store(ctx.Err() != nil) }}
	ctx, cancel := context.WithCancel(context.Background())
	verifier := &fakeVerifier{fn: func(context.Context, []string) (bool, error) {
		cancel()
		return true, nil
	}}
	o := NewOrchestrator(newGate(verifier, passThrough()), store, pub, zap.NewNop())

	decision, err := o.PlaceOrder(ctx, exampleRequest())

	require.NoError(t, err)
	assert.True(t, decision.IsAccepted())
	assert.False(t, sawCanceled.Load())
}

type ctxPublisher struct {
	fn func(ctx context.Context)
}

func (p *ctxPublisher) Publish(ctx context.Context, _ string, _ contracts.OrderPlacedEvent) error {
	p.fn(ctx)
	return nil
}

func TestPlaceOrder_RecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPlacementMetrics(reg)

	accept := NewOrchestrator(newGate(answer(true), passThrough()), &fakeStore{}, &fakePublisher{}, zap.NewNop(), WithMetrics(m))
	reject := NewOrchestrator(newGate(answer(false), passThrough()), &fakeStore{}, &fakePublisher{}, zap.NewNop(), WithMetrics(m))
	degrade := NewOrchestrator(newGate(failing(errors.New("down")), passThrough()), &fakeStore{}, &fakePublisher{}, zap.NewNop(), WithMetrics(m))
	fail := NewOrchestrator(newGate(answer(true), passThrough()), &fakeStore{saveErr: errors.New("x")}, &fakePublisher{}, zap.NewNop(), WithMetrics(m))

	for _, o := range []*Orchestrator{accept, accept, reject, degrade, fail} {
		_, _ = o.PlaceOrder(context.Background(), exampleRequest())
	}

	expected := `
# HELP orders_placements_total Order placements by outcome (accepted, rejected, degraded, failed).
# TYPE orders_placements_total counter
orders_placements_total{outcome="accepted"} 2
orders_placements_total{outcome="degraded"} 1
orders_placements_total{outcome="failed"} 1
orders_placements_total{outcome="rejected"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "orders_placements_total"))
}

func TestPlaceOrder_SpanAndCorrelatedLogs(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	core, logs := observer.New(zapcore.InfoLevel)
	o := NewOrchestrator(newGate(answer(true), passThrough()), &fakeStore{}, &fakePublisher{}, zap.New(core), WithTracer(tp.Tracer("test")))

	decision, err := o.PlaceOrder(context.Background(), exampleRequest())
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "PlaceOrder", spans[0].Name())

	entries := logs.FilterMessage("order placed successfully").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, decision.Order.OrderNumber, fields["order_number"])
}

func TestPlaceOrder_ConcurrentPlacementsAreIndependent(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	o := NewOrchestrator(newGate(answer(true), passThrough()), store, pub, zap.NewNop())

	const n = 50
	numbers := make(chan string, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := o.PlaceOrder(context.Background(), exampleRequest())
			if assert.NoError(t, err) {
				numbers <- d.Order.OrderNumber
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for num := range numbers {
		assert.False(t, seen[num], "duplicate order number %s", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
	assert.Len(t, store.saved, n)
	assert.Equal(t, n, pub.count())
}
