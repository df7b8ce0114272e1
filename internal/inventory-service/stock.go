// Package inventoryservice is an in-memory inventory used for local runs of
// the order service.
package inventoryservice

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jcmexdev/order-placement/internal/inventory-service/domain"
)

type Stock struct {
	mu     sync.RWMutex
	levels map[string]int
	logger *zap.Logger
}

func NewStock(seed []domain.StockItem, logger *zap.Logger) *Stock {
	levels := make(map[string]int, len(seed))
	for _, it := range seed {
		levels[it.SkuCode] = it.Quantity
	}
	return &Stock{levels: levels, logger: logger}
}

// IsInStock answers once per queried SKU, in query order. Unknown SKUs are
// reported as not in stock.
func (s *Stock) IsInStock(ctx context.Context, skuCodes []string) []domain.StockStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockStatus, len(skuCodes))
	for i, sku := range skuCodes {
		out[i] = domain.StockStatus{SkuCode: sku, InStock: s.levels[sku] > 0}
	}
	s.logger.Debug("stock lookup", zap.Strings("sku_codes", skuCodes))
	return out
}

// SetQuantity replaces the stock level of sku.
func (s *Stock) SetQuantity(ctx context.Context, sku string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.levels[sku] = quantity
	s.logger.Info("stock updated", zap.String("sku_code", sku), zap.Int("quantity", quantity))
}

func (s *Stock) Quantity(sku string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.levels[sku]
	return q, ok
}
