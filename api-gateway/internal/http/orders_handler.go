package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/orders"
)

// OrderService is the part of the orders service the storefront exposes.
type OrderService interface {
	CreateOrder(ctx context.Context, req orders.CreateRequest) (*orders.CreateResult, error)
	Get(ctx context.Context, id uuid.UUID) (*orders.Order, error)
	GetByNumber(ctx context.Context, number string) (*orders.Order, error)
	List(ctx context.Context) ([]orders.Order, error)
	Cancel(ctx context.Context, id uuid.UUID) (*orders.Order, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
	logger  *zap.Logger
}

func NewOrdersHandler(svc OrderService, timeout time.Duration, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  svc,
		timeout: timeout,
		logger:  logger,
	}
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if _, ok := userIDFrom(w, r); !ok {
		return
	}

	list, err := h.orders.List(ctx)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	respondJSON(w, http.StatusOK, list)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrderID(w, r, h.orders.Get)
}

// DELETE /api/v1/orders/{order_id}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrderID(w, r, h.orders.Cancel)
}

// GET /api/v1/orders/number/{number}
func (h *OrdersHandler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if _, ok := userIDFrom(w, r); !ok {
		return
	}

	number := chi.URLParam(r, "number")
	if number == "" {
		respondError(w, http.StatusBadRequest, "missing_order_number", "order number is required")
		return
	}

	o, err := h.orders.GetByNumber(ctx, number)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) withOrderID(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, uuid.UUID) (*orders.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if _, ok := userIDFrom(w, r); !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return
	}

	o, err := fn(ctx, id)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}
