// Package http is the storefront's HTTP API.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fjod/storefront/pkg/auth"
	"github.com/fjod/storefront/pkg/logger"
)

type Handlers struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
	Products *ProductHandler
}

type RouterConfig struct {
	Timeout            time.Duration
	MaxRequestBodySize int64
}

func NewRouter(h Handlers, verifier *auth.Verifier, log *zap.Logger, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))
	r.Use(middleware.Compress(5))
	r.Use(MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products/{product_id}", h.Products.Get)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier))

			r.Get("/cart", h.Cart.GetCart)
			r.Delete("/cart", h.Cart.ClearCart)
			r.Post("/cart/items", h.Cart.AddItem)
			r.Put("/cart/items/{product_id}/{size}", h.Cart.UpdateQuantity)
			r.Delete("/cart/items/{product_id}/{size}", h.Cart.RemoveItem)
			r.Post("/cart/discount", h.Cart.ApplyDiscount)
			r.Delete("/cart/discount", h.Cart.RemoveDiscount)

			r.Get("/checkout/prefill", h.Checkout.Prefill)
			r.Post("/checkout", h.Checkout.StartCheckout)
			r.Post("/checkout/confirm", h.Checkout.Confirm)

			r.Get("/orders", h.Orders.ListOrders)
			r.Get("/orders/number/{number}", h.Orders.GetOrderByNumber)
			r.Get("/orders/{order_id}", h.Orders.GetOrder)
			r.Delete("/orders/{order_id}/cancel", h.Orders.CancelOrder)
		})
	})
	return r
}
