package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jcmexdev/order-placement/internal/order-service/domain"
	"github.com/jcmexdev/order-placement/internal/order-service/ports"
	"github.com/jcmexdev/order-placement/internal/pkg/cache"
	"github.com/jcmexdev/order-placement/internal/pkg/constants"
	"github.com/jcmexdev/order-placement/internal/pkg/middlewares"
	"github.com/jcmexdev/order-placement/internal/pkg/telemetry"
)

const (
	PlacedMessage = "Order placed successfully!"

	placeOrderOperation = "place-order"

	// pendingTTL bounds how long a key stays reserved if the placement
	// never finishes (crash between reserve and store).
	pendingTTL = time.Minute
)

// pendingMarker is stored under an idempotency key while its placement is
// in flight. Stored responses are JSON objects so they never equal it.
var pendingMarker = []byte("pending")

// OrderPlacer runs one placement attempt.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacementDecision, error)
}

// HealthCheck reports a dependency as unhealthy by returning an error.
type HealthCheck func(ctx context.Context) error

// Handler serves the order HTTP API.
type Handler struct {
	placer         OrderPlacer
	reader         ports.OrderReader
	cache          cache.Cache
	idempotencyTTL time.Duration
	checks         map[string]HealthCheck
	logger         *zap.Logger
}

// NewHandler wires the handler. checks may be nil.
func NewHandler(
	placer OrderPlacer,
	reader ports.OrderReader,
	c cache.Cache,
	idempotencyTTL time.Duration,
	checks map[string]HealthCheck,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		placer:         placer,
		reader:         reader,
		cache:          c,
		idempotencyTTL: idempotencyTTL,
		checks:         checks,
		logger:         logger,
	}
}

// PlaceOrder handles POST /api/order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := telemetry.WithTrace(ctx, h.logger).With(zap.String("request_id", middlewares.RequestID(ctx)))

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	for _, it := range req.OrderLineItems {
		if it.Quantity < 0 || it.Price.IsNegative() {
			writeError(w, http.StatusBadRequest, "invalid_item", "quantity and price must not be negative")
			return
		}
	}

	var cacheKey string
	if key := middlewares.IdempotencyKey(ctx); key != "" {
		cacheKey = h.cache.GenerateKey(placeOrderOperation, key)
		logger = logger.With(zap.String("idempotency_key", key))
		if h.reserve(ctx, w, cacheKey, logger) {
			return
		}
	}

	decision, err := h.placer.PlaceOrder(ctx, toOrderRequest(req))
	if err != nil || !decision.IsAccepted() {
		h.release(ctx, cacheKey, logger)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "placement_failed", "the order could not be stored")
		return
	}

	if !decision.IsAccepted() {
		if decision.Degraded {
			writeError(w, http.StatusServiceUnavailable, "inventory_unavailable", decision.Reason)
			return
		}
		writeError(w, http.StatusConflict, "out_of_stock", decision.Reason)
		return
	}

	body, err := json.Marshal(PlaceOrderResponse{
		OrderNumber: decision.Order.OrderNumber,
		Message:     PlacedMessage,
	})
	if err != nil {
		h.release(ctx, cacheKey, logger)
		writeError(w, http.StatusInternalServerError, "encode_failed", err.Error())
		return
	}
	if cacheKey != "" {
		if err := h.cache.Set(context.WithoutCancel(ctx), cacheKey, body, h.idempotencyTTL); err != nil {
			logger.Warn("idempotency store failed", zap.Error(err))
		}
	}
	writeRaw(w, http.StatusCreated, body)
}

// reserve claims cacheKey for this request. When the key already holds a
// stored response it is replayed; when another request holds it the caller
// gets 409. It reports whether the response has been written.
func (h *Handler) reserve(ctx context.Context, w http.ResponseWriter, cacheKey string, logger *zap.Logger) bool {
	reserved, err := h.cache.SetNX(ctx, cacheKey, pendingMarker, pendingTTL)
	if err != nil {
		logger.Warn("idempotency reservation failed", zap.Error(err))
		return false
	}
	if reserved {
		return false
	}

	cached, err := h.cache.Get(ctx, cacheKey)
	if err != nil {
		logger.Warn("idempotency lookup failed", zap.Error(err))
	}
	switch {
	case cached == nil:
		// Released between SetNX and Get.
		writeError(w, http.StatusConflict, "request_in_progress", "retry the request")
	case bytes.Equal(cached, pendingMarker):
		logger.Info("placement with this idempotency key is in progress")
		writeError(w, http.StatusConflict, "request_in_progress", "a request with this idempotency key is in progress")
	default:
		logger.Info("replaying placed order")
		w.Header().Set(constants.HeaderIdempotentReply, "true")
		writeRaw(w, http.StatusOK, cached)
	}
	return true
}

// release frees a reservation so the client can retry a rejected or failed placement.
func (h *Handler) release(ctx context.Context, cacheKey string, logger *zap.Logger) {
	if cacheKey == "" {
		return
	}
	if err := h.cache.Delete(context.WithoutCancel(ctx), cacheKey); err != nil {
		logger.Warn("idempotency release failed", zap.Error(err))
	}
}

// GetOrder handles GET /api/order/{orderNumber}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	if orderNumber == "" {
		writeError(w, http.StatusBadRequest, "order_number_required", "")
		return
	}

	order, err := h.reader.FindByOrderNumber(r.Context(), orderNumber)
	if errors.Is(err, domain.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, "order_not_found", orderNumber)
		return
	}
	if err != nil {
		telemetry.WithTrace(r.Context(), h.logger).Error("order lookup failed",
			zap.String("order_number", orderNumber),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "lookup_failed", "")
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

func toOrderRequest(req PlaceOrderRequest) domain.OrderRequest {
	items := make([]domain.LineItemRequest, len(req.OrderLineItems))
	for i, it := range req.OrderLineItems {
		items[i] = domain.LineItemRequest{
			SkuCode:  it.SkuCode,
			Price:    it.Price,
			Quantity: it.Quantity,
		}
	}
	return domain.OrderRequest{LineItems: items}
}

func mapOrderToResponse(order *domain.Order) OrderResponse {
	items := make([]OrderLineItemDTO, len(order.LineItems))
	for i, it := range order.LineItems {
		items[i] = OrderLineItemDTO{SkuCode: it.SkuCode, Price: it.Price, Quantity: it.Quantity}
	}
	return OrderResponse{
		OrderNumber: order.OrderNumber,
		Items:       items,
		Total:       order.Total(),
		CreatedAt:   order.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
