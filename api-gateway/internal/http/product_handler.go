package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductHandler struct {
	catalog Catalog
	timeout time.Duration
	logger  *zap.Logger
}

func NewProductHandler(catalog Catalog, timeout time.Duration, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		timeout: timeout,
		logger:  logger,
	}
}

// GET /api/v1/products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "product_id"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
