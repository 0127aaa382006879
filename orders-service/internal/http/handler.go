// Package http exposes the orders service over HTTP/JSON.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/pkg/auth"
	"github.com/fjod/storefront/pkg/logger"
)

// OrderService is the lifecycle the handlers drive.
type OrderService interface {
	Create(ctx context.Context, p auth.Principal, req orders.CreateRequest) (*orders.Order, error)
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*orders.Order, error)
	GetByNumber(ctx context.Context, p auth.Principal, number string) (*orders.Order, error)
	List(ctx context.Context, p auth.Principal) ([]*orders.Order, error)
	UpdateStatus(ctx context.Context, p auth.Principal, id uuid.UUID, to orders.Status) (*orders.Order, error)
	Cancel(ctx context.Context, p auth.Principal, id uuid.UUID) (*orders.Order, error)
	SetStock(ctx context.Context, p auth.Principal, variantID string, qty int) error
	GetStock(ctx context.Context, variantID string) (int, error)
}

type OrdersHandler struct {
	svc     OrderService
	timeout time.Duration
	logger  *zap.Logger
}

func NewOrdersHandler(svc OrderService, timeout time.Duration, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{svc: svc, timeout: timeout, logger: logger}
}

type StockDTO struct {
	VariantID string `json:"variant_id"`
	Stock     int    `json:"stock"`
}

// NewRouter mounts every orders route behind JWT authentication.
func NewRouter(h *OrdersHandler, verifier *auth.Verifier, log *zap.Logger, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))

		r.Post("/orders/create", h.CreateOrder)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/number/{number}", h.GetOrderByNumber)
		r.Get("/orders/{order_id}", h.GetOrder)
		r.Put("/orders/{order_id}/status", h.UpdateStatus)
		r.Delete("/orders/{order_id}/cancel", h.CancelOrder)

		r.Get("/inventory/{variant_id}", h.GetStock)
		r.With(auth.RequireAdmin).Put("/inventory/{variant_id}", h.SetStock)
	})
	return r
}

// POST /orders/create
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req orders.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	o, err := h.svc.Create(ctx, p, req)
	if errors.Is(err, orders.ErrVariantNotFound) {
		respondError(w, http.StatusConflict, orders.CodeVariantNotFound, err.Error())
		return
	}
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, orders.CreateResult{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
	})
}

// GET /orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	list, err := h.svc.List(ctx, p)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []*orders.Order{}
	}
	respondJSON(w, http.StatusOK, list)
}

// GET /orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, h.svc.Get)
}

// GET /orders/number/{number}
func (h *OrdersHandler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	number := chi.URLParam(r, "number")
	if number == "" {
		respondError(w, http.StatusBadRequest, "missing_order_number", "order number is required")
		return
	}

	o, err := h.svc.GetByNumber(ctx, p, number)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// PUT /orders/{order_id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body orders.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	to, ok := orders.ParseStatus(string(body.NewStatus))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_status", "unknown status "+string(body.NewStatus))
		return
	}

	h.withOrder(w, r, func(ctx context.Context, p auth.Principal, id uuid.UUID) (*orders.Order, error) {
		return h.svc.UpdateStatus(ctx, p, id, to)
	})
}

// DELETE /orders/{order_id}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, h.svc.Cancel)
}

func (h *OrdersHandler) withOrder(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, p auth.Principal, id uuid.UUID) (*orders.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return
	}

	o, err := fn(ctx, p, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// GET /inventory/{variant_id}
func (h *OrdersHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	variantID := chi.URLParam(r, "variant_id")
	stock, err := h.svc.GetStock(ctx, variantID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, StockDTO{VariantID: variantID, Stock: stock})
}

// PUT /inventory/{variant_id}
func (h *OrdersHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var body StockDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if body.Stock < 0 {
		respondError(w, http.StatusUnprocessableEntity, "invalid_stock", "stock must not be negative")
		return
	}

	variantID := chi.URLParam(r, "variant_id")
	if err := h.svc.SetStock(ctx, p, variantID, body.Stock); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, StockDTO{VariantID: variantID, Stock: body.Stock})
}
