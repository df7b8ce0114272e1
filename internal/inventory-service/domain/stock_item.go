package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type StockItem struct {
	SkuCode  string
	Quantity int
}

// StockStatus is the per-SKU answer of a stock lookup.
type StockStatus struct {
	SkuCode string `json:"skuCode"`
	InStock bool   `json:"inStock"`
}

// ParseSeed reads "sku=qty,sku=qty" into stock items. Blank entries are skipped.
func ParseSeed(seed string) ([]StockItem, error) {
	var items []StockItem
	for _, entry := range strings.Split(seed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		sku, qty, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(sku) == "" {
			return nil, fmt.Errorf("inventory: bad seed entry %q", entry)
		}
		n, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("inventory: bad quantity in seed entry %q", entry)
		}
		items = append(items, StockItem{SkuCode: strings.TrimSpace(sku), Quantity: n})
	}
	return items, nil
}
