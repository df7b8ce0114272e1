package ports

import (
	"context"

	"github.com/jcmexdev/order-placement/internal/order-service/domain"
	"github.com/jcmexdev/order-placement/internal/pkg/contracts"
)

// StockVerifier asks the inventory whether every SKU is in stock.
// A non-nil error means the inventory gave no usable answer; false means it
// answered and at least one SKU is missing.
type StockVerifier interface {
	Verify(ctx context.Context, skuCodes []string) (bool, error)
}

// OrderStore hands out transactions scoped to a single order write.
type OrderStore interface {
	BeginTx(ctx context.Context) (OrderTx, error)
}

// OrderTx is one open write transaction. Rollback after Commit is a no-op.
type OrderTx interface {
	Save(ctx context.Context, order *domain.Order) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type OrderReader interface {
	// FindByOrderNumber returns domain.ErrOrderNotFound when no order matches.
	FindByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
}

// EventPublisher sends an event to a topic. Delivery guarantees are the
// transport's business.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event contracts.OrderPlacedEvent) error
}
