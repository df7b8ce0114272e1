package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/jcmexdev/order-placement/internal/inventory-service/domain"
	"github.com/jcmexdev/order-placement/internal/pkg/middlewares"
)

type StockService interface {
	IsInStock(ctx context.Context, skuCodes []string) []domain.StockStatus
	SetQuantity(ctx context.Context, sku string, quantity int)
}

type Handler struct {
	stock StockService
}

func NewHandler(stock StockService) *Handler {
	return &Handler{stock: stock}
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// IsInStock handles GET /api/inventory?skuCode=A&skuCode=B.
func (h *Handler) IsInStock(w http.ResponseWriter, r *http.Request) {
	skus := r.URL.Query()["skuCode"]
	writeJSON(w, http.StatusOK, h.stock.IsInStock(r.Context(), skus))
}

// SetQuantity handles PUT /api/inventory/{skuCode}.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_quantity"})
		return
	}
	h.stock.SetQuantity(r.Context(), chi.URLParam(r, "skuCode"), req.Quantity)
	w.WriteHeader(http.StatusNoContent)
}

func NewRouter(h *Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachRequestContext)
	r.Use(middlewares.AccessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/api/inventory", h.IsInStock)
	r.Put("/api/inventory/{skuCode}", h.SetQuantity)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return otelhttp.NewHandler(r, "inventory-service")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
