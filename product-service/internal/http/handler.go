// Package http serves the product catalog over JSON.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fjod/storefront/pkg/logger"
	"github.com/fjod/storefront/product-service/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type ProductReader interface {
	GetAllProducts(ctx context.Context) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type ProductHandler struct {
	repo    ProductReader
	timeout time.Duration
	logger  *zap.Logger
}

func NewProductHandler(repo ProductReader, timeout time.Duration, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		repo:    repo,
		timeout: timeout,
		logger:  logger,
	}
}

func NewRouter(h *ProductHandler, log *zap.Logger, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/products", h.List)
	r.Get("/products/{product_id}", h.Get)
	return r
}

// GET /products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.repo.GetAllProducts(ctx)
	if err != nil {
		h.logger.Error("list products failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load products")
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}
	respondJSON(w, http.StatusOK, products)
}

// GET /products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "product_id")
	p, err := h.repo.GetProduct(ctx, id)
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
		return
	case err != nil:
		h.logger.Error("get product failed", zap.String("product_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load product")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}
