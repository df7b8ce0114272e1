package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderRequest is the inbound "place order" payload. It is never persisted.
type OrderRequest struct {
	LineItems []LineItemRequest
}

type LineItemRequest struct {
	SkuCode  string
	Price    decimal.Decimal
	Quantity int
}

// Order is the aggregate built for a single placement attempt.
// OrderNumber is set once by NewOrder and never changes afterwards.
type Order struct {
	OrderNumber string
	LineItems   []LineItem
	CreatedAt   time.Time
}

type LineItem struct {
	SkuCode  string
	Price    decimal.Decimal
	Quantity int
}

// NewOrder builds a fresh Order from req. Every call generates a new order
// number; line items are copied one by one in request order. No validation
// happens here: whatever the request carries ends up in the order.
func NewOrder(req OrderRequest) *Order {
	items := make([]LineItem, len(req.LineItems))
	for i, it := range req.LineItems {
		items[i] = LineItem{
			SkuCode:  it.SkuCode,
			Price:    it.Price,
			Quantity: it.Quantity,
		}
	}

	return &Order{
		OrderNumber: uuid.NewString(),
		LineItems:   items,
		CreatedAt:   time.Now().UTC(),
	}
}

// SkuCodes returns the SKU of every line item in order. Duplicates are kept:
// the stock check runs against the full list.
func (o *Order) SkuCodes() []string {
	skus := make([]string, len(o.LineItems))
	for i, it := range o.LineItems {
		skus[i] = it.SkuCode
	}
	return skus
}

func (i LineItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total sums the line item subtotals.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.LineItems {
		total = total.Add(it.Subtotal())
	}
	return total
}
