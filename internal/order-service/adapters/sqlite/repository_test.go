package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jcmexdev/order-placement/internal/order-service/domain"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleOrder() *domain.Order {
	return domain.NewOrder(domain.OrderRequest{LineItems: []domain.LineItemRequest{
		{SkuCode: "B2", Price: decimal.RequireFromString("5.50"), Quantity: 1},
		{SkuCode: "A1", Price: decimal.RequireFromString("10.00"), Quantity: 2},
		{SkuCode: "B2", Price: decimal.RequireFromString("0.1"), Quantity: 3},
	}})
}

func save(t *testing.T, repo *Repository, ctx context.Context, order *domain.Order) {
	t.Helper()
	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Save(ctx, order))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")
}

func TestRepository_SaveAndFind(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	order := sampleOrder()

	save(t, repo, ctx, order)

	got, err := repo.FindByOrderNumber(ctx, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)
	assert.WithinDuration(t, order.CreatedAt, got.CreatedAt, time.Microsecond)
	require.Len(t, got.LineItems, 3)
	for i, item := range order.LineItems {
		assert.Equal(t, item.SkuCode, got.LineItems[i].SkuCode)
		assert.Equal(t, item.Quantity, got.LineItems[i].Quantity)
		assert.True(t, item.Price.Equal(got.LineItems[i].Price), "price %d", i)
	}
}

func TestRepository_EmptyOrder(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	order := domain.NewOrder(domain.OrderRequest{})

	save(t, repo, ctx, order)

	got, err := repo.FindByOrderNumber(ctx, order.OrderNumber)
	require.NoError(t, err)
	assert.Empty(t, got.LineItems)
}

func TestRepository_RollbackDiscardsOrder(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	order := sampleOrder()

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Save(ctx, order))
	require.NoError(t, tx.Rollback(ctx))

	_, err = repo.FindByOrderNumber(ctx, order.OrderNumber)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestRepository_DuplicateOrderNumberFails(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	order := sampleOrder()
	save(t, repo, ctx, order)

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	err = tx.Save(ctx, order)
	require.Error(t, err)
	require.NoError(t, tx.Rollback(ctx))
}

func TestRepository_StoresTraceIDs(t *testing.T) {
	repo := openTestRepo(t)
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "PlaceOrder")
	defer span.End()
	order := sampleOrder()

	save(t, repo, ctx, order)

	var traceID, spanID string
	err := repo.db.QueryRowContext(ctx,
		`SELECT trace_id, span_id FROM orders WHERE order_number = ?`, order.OrderNumber,
	).Scan(&traceID, &spanID)
	require.NoError(t, err)
	assert.Equal(t, span.SpanContext().TraceID().String(), traceID)
	assert.Equal(t, span.SpanContext().SpanID().String(), spanID)
}

func TestRepository_FindUnknown(t *testing.T) {
	repo := openTestRepo(t)

	_, err := repo.FindByOrderNumber(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.db")
	first, err := Open(path)
	require.NoError(t, err)
	order := sampleOrder()
	save(t, first, context.Background(), order)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.FindByOrderNumber(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	assert.Len(t, got.LineItems, 3)
}
