package httpx

import "github.com/shopspring/decimal"

// PlaceOrderRequest is the body of POST /api/order.
type PlaceOrderRequest struct {
	OrderLineItems []OrderLineItemDTO `json:"orderLineItemsDtoList"`
}

type OrderLineItemDTO struct {
	SkuCode  string          `json:"skuCode"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type PlaceOrderResponse struct {
	OrderNumber string `json:"orderNumber"`
	Message     string `json:"message"`
}

type OrderResponse struct {
	OrderNumber string             `json:"orderNumber"`
	Items       []OrderLineItemDTO `json:"orderLineItemsList"`
	Total       decimal.Decimal    `json:"total"`
	CreatedAt   string             `json:"createdAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
