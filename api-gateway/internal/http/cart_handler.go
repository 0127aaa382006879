package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fjod/storefront/api-gateway/internal/clients"
	"github.com/fjod/storefront/api-gateway/internal/session"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/pricing"
)

// Catalog looks up the product a cart line is built from.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*clients.Product, error)
}

type CartHandler struct {
	shoppers *session.Registry
	catalog  Catalog
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCartHandler(shoppers *session.Registry, catalog Catalog, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		shoppers: shoppers,
		catalog:  catalog,
		timeout:  timeout,
		logger:   logger,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type DiscountRequestDTO struct {
	Code string `json:"code"`
}

// WarningDTO tells the shopper a change was not applied.
type WarningDTO struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Available int    `json:"available"`
}

type CartResponseDTO struct {
	Items     []cart.Item       `json:"items"`
	Discount  *pricing.Discount `json:"discount,omitempty"`
	Breakdown pricing.Breakdown `json:"breakdown"`
	ItemCount int               `json:"item_count"`
	Warnings  []WarningDTO      `json:"warnings,omitempty"`
}

func cartResponse(snap cart.Snapshot) CartResponseDTO {
	items := snap.Items
	if items == nil {
		items = []cart.Item{}
	}
	return CartResponseDTO{
		Items:     items,
		Discount:  snap.Discount,
		Breakdown: snap.Breakdown,
		ItemCount: snap.ItemCount(),
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	s := h.shoppers.Shopper(r.Context(), userID)
	respondJSON(w, http.StatusOK, cartResponse(s.Cart.Snapshot()))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" || req.Size == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "product_id and size are required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	product, err := h.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	item, err := product.CartItem(req.Size, req.Quantity)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	s := h.shoppers.Shopper(ctx, userID)
	h.respondMutation(w, s, s.Cart.Add(ctx, item), http.StatusCreated)
}

// PUT /api/v1/cart/items/{product_id}/{size}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s := h.shoppers.Shopper(r.Context(), userID)
	err := s.Cart.UpdateQuantity(r.Context(), chi.URLParam(r, "product_id"), chi.URLParam(r, "size"), req.Quantity)
	h.respondMutation(w, s, err, http.StatusOK)
}

// DELETE /api/v1/cart/items/{product_id}/{size}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}

	s := h.shoppers.Shopper(r.Context(), userID)
	err := s.Cart.Remove(r.Context(), chi.URLParam(r, "product_id"), chi.URLParam(r, "size"))
	h.respondMutation(w, s, err, http.StatusOK)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}

	s := h.shoppers.Shopper(r.Context(), userID)
	s.Cart.Clear(r.Context())
	respondJSON(w, http.StatusOK, cartResponse(s.Cart.Snapshot()))
}

// POST /api/v1/cart/discount
func (h *CartHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}

	var req DiscountRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s := h.shoppers.Shopper(r.Context(), userID)
	if _, err := s.Cart.ApplyDiscount(req.Code); err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(s.Cart.Snapshot()))
}

// DELETE /api/v1/cart/discount
func (h *CartHandler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}

	s := h.shoppers.Shopper(r.Context(), userID)
	s.Cart.RemoveDiscount()
	respondJSON(w, http.StatusOK, cartResponse(s.Cart.Snapshot()))
}

// respondMutation answers with the cart after a change. An exceeded stock
// is not an error: the cart is returned unchanged with a warning.
func (h *CartHandler) respondMutation(w http.ResponseWriter, s *session.Shopper, err error, okStatus int) {
	var exceeded *cart.StockExceededError
	switch {
	case errors.As(err, &exceeded):
		resp := cartResponse(s.Cart.Snapshot())
		resp.Warnings = []WarningDTO{{
			Code:      "stock_exceeded",
			Message:   exceeded.Error(),
			ProductID: exceeded.ProductID,
			Size:      exceeded.Size,
			Available: exceeded.Available,
		}}
		respondJSON(w, http.StatusOK, resp)
	case err != nil:
		handleError(w, h.logger, err)
	default:
		respondJSON(w, okStatus, cartResponse(s.Cart.Snapshot()))
	}
}
