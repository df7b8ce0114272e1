// Package sqlite provides the SQLite-backed order store.
//
// WAL mode is enabled on Open so the order lookup endpoint can read while a
// placement is writing.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/order-placement/internal/order-service/domain"
	"github.com/jcmexdev/order-placement/internal/order-service/ports"
	"github.com/jcmexdev/order-placement/internal/pkg/telemetry"

	// Pure-Go driver, no CGO needed in the container image.
	_ "modernc.org/sqlite"
)

// schema is executed once on startup. Line items keep their request position
// so an order reads back in the order it was placed.
const schema = `
CREATE TABLE IF NOT EXISTS orders (
    order_number    TEXT        PRIMARY KEY,
    created_at      TEXT        NOT NULL,

    -- W3C ids of the placement span, to jump from a row to its trace.
    trace_id        TEXT        NOT NULL DEFAULT '',
    span_id         TEXT        NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS order_line_items (
    id              INTEGER     PRIMARY KEY AUTOINCREMENT,
    order_number    TEXT        NOT NULL REFERENCES orders(order_number) ON DELETE CASCADE,
    position        INTEGER     NOT NULL,
    sku_code        TEXT        NOT NULL,

    -- Decimal rendered as text; SQLite REAL would lose precision.
    price           TEXT        NOT NULL,
    quantity        INTEGER     NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_line_items_order ON order_line_items(order_number, position);
CREATE INDEX IF NOT EXISTS idx_orders_trace_id ON orders(trace_id);
`

var (
	_ ports.OrderStore  = (*Repository)(nil)
	_ ports.OrderReader = (*Repository)(nil)
)

// Repository is the SQLite implementation of ports.OrderStore and ports.OrderReader.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
//
//	repo, err := sqlite.Open("./data/orders.db")
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// Single writer connection.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping is used by the health endpoint.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// BeginTx opens the transaction a single placement writes its order in.
func (r *Repository) BeginTx(ctx context.Context) (ports.OrderTx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	return &orderTx{tx: tx}, nil
}

// FindByOrderNumber loads an order with its line items in placement order.
func (r *Repository) FindByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	const orderQ = `SELECT order_number, created_at FROM orders WHERE order_number = ?`

	var order domain.Order
	var createdAt string
	err := r.db.QueryRowContext(ctx, orderQ, orderNumber).Scan(&order.OrderNumber, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: order %q: %w", orderNumber, domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find order %q: %w", orderNumber, err)
	}
	if order.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	const itemsQ = `
		SELECT sku_code, price, quantity
		FROM   order_line_items
		WHERE  order_number = ?
		ORDER  BY position`

	rows, err := r.db.QueryContext(ctx, itemsQ, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find line items for %q: %w", orderNumber, err)
	}
	defer rows.Close()

	order.LineItems = []domain.LineItem{}
	for rows.Next() {
		var item domain.LineItem
		var price string
		if err := rows.Scan(&item.SkuCode, &price, &item.Quantity); err != nil {
			return nil, fmt.Errorf("sqlite: scan line item for %q: %w", orderNumber, err)
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("sqlite: parse price %q: %w", price, err)
		}
		order.LineItems = append(order.LineItems, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate line items for %q: %w", orderNumber, err)
	}

	return &order, nil
}

type orderTx struct {
	tx *sql.Tx
}

// Save inserts the order row and one row per line item.
func (t *orderTx) Save(ctx context.Context, order *domain.Order) error {
	const orderQ = `
		INSERT INTO orders (order_number, created_at, trace_id, span_id)
		VALUES (?, ?, ?, ?)`
	const itemQ = `
		INSERT INTO order_line_items (order_number, position, sku_code, price, quantity)
		VALUES (?, ?, ?, ?, ?)`

	ti := telemetry.TraceInfoFromContext(ctx)
	if _, err := t.tx.ExecContext(ctx, orderQ,
		order.OrderNumber,
		formatTime(order.CreatedAt),
		ti.TraceID,
		ti.SpanID,
	); err != nil {
		return fmt.Errorf("sqlite: save order %q: %w", order.OrderNumber, err)
	}

	stmt, err := t.tx.PrepareContext(ctx, itemQ)
	if err != nil {
		return fmt.Errorf("sqlite: prepare line item insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range order.LineItems {
		if _, err := stmt.ExecContext(ctx, order.OrderNumber, i, item.SkuCode, item.Price.String(), item.Quantity); err != nil {
			return fmt.Errorf("sqlite: save line item %d of %q: %w", i, order.OrderNumber, err)
		}
	}
	return nil
}

func (t *orderTx) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Rollback is a no-op once the transaction has been committed.
func (t *orderTx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("sqlite: rollback: %w", err)
	}
	return nil
}

// applySchema is idempotent thanks to IF NOT EXISTS.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}
