// Package postgres provides the PostgreSQL-backed order store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/order-placement/internal/order-service/domain"
	"github.com/jcmexdev/order-placement/internal/order-service/ports"
	"github.com/jcmexdev/order-placement/internal/pkg/telemetry"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    order_number    TEXT         PRIMARY KEY,
    created_at      TIMESTAMPTZ  NOT NULL,
    trace_id        TEXT         NOT NULL DEFAULT '',
    span_id         TEXT         NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS order_line_items (
    id              BIGSERIAL    PRIMARY KEY,
    order_number    TEXT         NOT NULL REFERENCES orders(order_number) ON DELETE CASCADE,
    position        INTEGER      NOT NULL,
    sku_code        TEXT         NOT NULL,
    price           NUMERIC      NOT NULL,
    quantity        INTEGER      NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_line_items_order ON order_line_items(order_number, position);
`

var (
	_ ports.OrderStore  = (*Repository)(nil)
	_ ports.OrderReader = (*Repository)(nil)
)

type Repository struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, pings it and applies the schema.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) BeginTx(ctx context.Context) (ports.OrderTx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin tx: %w", err)
	}
	return &orderTx{tx: tx}, nil
}

func (r *Repository) FindByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	var order domain.Order
	err := r.pool.QueryRow(ctx,
		`SELECT order_number, created_at FROM orders WHERE order_number = $1`, orderNumber,
	).Scan(&order.OrderNumber, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: order %q: %w", orderNumber, domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find order %q: %w", orderNumber, err)
	}
	order.CreatedAt = order.CreatedAt.UTC()

	rows, err := r.pool.Query(ctx, `
		SELECT sku_code, price::text, quantity
		FROM   order_line_items
		WHERE  order_number = $1
		ORDER  BY position`, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("postgres: find line items for %q: %w", orderNumber, err)
	}
	defer rows.Close()

	order.LineItems = []domain.LineItem{}
	for rows.Next() {
		var item domain.LineItem
		var price string
		if err := rows.Scan(&item.SkuCode, &price, &item.Quantity); err != nil {
			return nil, fmt.Errorf("postgres: scan line item for %q: %w", orderNumber, err)
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("postgres: parse price %q: %w", price, err)
		}
		order.LineItems = append(order.LineItems, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate line items for %q: %w", orderNumber, err)
	}
	return &order, nil
}

type orderTx struct {
	tx pgx.Tx
}

// Save queues the order and its line items in one batch.
func (t *orderTx) Save(ctx context.Context, order *domain.Order) error {
	ti := telemetry.TraceInfoFromContext(ctx)

	batch := &pgx.Batch{}
	batch.Queue(
		`INSERT INTO orders (order_number, created_at, trace_id, span_id) VALUES ($1, $2, $3, $4)`,
		order.OrderNumber, order.CreatedAt, ti.TraceID, ti.SpanID,
	)
	for i, item := range order.LineItems {
		batch.Queue(
			`INSERT INTO order_line_items (order_number, position, sku_code, price, quantity)
			 VALUES ($1, $2, $3, $4::numeric, $5)`,
			order.OrderNumber, i, item.SkuCode, item.Price.String(), item.Quantity,
		)
	}

	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: save order %q: %w", order.OrderNumber, err)
	}
	return nil
}

func (t *orderTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// Rollback is a no-op once the transaction has been committed.
func (t *orderTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}
