package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/api-gateway/internal/session"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/gateway"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/pricing"
)

type CheckoutHandler struct {
	shoppers       *session.Registry
	checkout       *checkout.Session
	gateway        gateway.Gateway
	orders         payment.OrderCreator
	supportContact string
	timeout        time.Duration
	logger         *zap.Logger
}

func NewCheckoutHandler(
	shoppers *session.Registry,
	cs *checkout.Session,
	gw gateway.Gateway,
	oc payment.OrderCreator,
	supportContact string,
	timeout time.Duration,
	logger *zap.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		shoppers:       shoppers,
		checkout:       cs,
		gateway:        gw,
		orders:         oc,
		supportContact: supportContact,
		timeout:        timeout,
		logger:         logger,
	}
}

type CheckoutResponseDTO struct {
	CheckoutID   string                   `json:"checkout_id"`
	ClientSecret string                   `json:"client_secret"`
	AmountMinor  int64                    `json:"amount_minor_units"`
	Currency     string                   `json:"currency"`
	ExpiresAt    time.Time                `json:"expires_at"`
	Items        []cart.Item              `json:"items"`
	Discount     *pricing.Discount        `json:"discount,omitempty"`
	Breakdown    pricing.Breakdown        `json:"breakdown"`
	Contact      checkout.ShippingContact `json:"contact"`
}

type ConfirmRequestDTO struct {
	PaymentMethod string `json:"payment_method"`
}

// GET /api/v1/checkout/prefill
func (h *CheckoutHandler) Prefill(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if _, ok := userIDFrom(w, r); !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.checkout.Prefill(ctx))
}

// POST /api/v1/checkout
func (h *CheckoutHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}

	var contact checkout.ShippingContact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s := h.shoppers.Shopper(ctx, userID)
	draft, err := h.checkout.Start(ctx, s.Cart, contact)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	conf, err := payment.NewConfirmation(draft, h.gateway, h.orders, s.Cart,
		payment.WithSupportContact(h.supportContact),
		payment.WithLogger(h.logger),
		payment.OnSuccess(func(res payment.Result) { s.MarkPlaced(res.OrderNumber) }),
	)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	if err := s.SetCheckout(conf); err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		CheckoutID:   draft.ID,
		ClientSecret: draft.ClientSecret,
		AmountMinor:  draft.AmountMinor,
		Currency:     draft.Currency,
		ExpiresAt:    draft.ExpiresAt,
		Items:        draft.Items,
		Discount:     draft.Discount,
		Breakdown:    draft.Breakdown,
		Contact:      draft.Contact,
	})
}

// POST /api/v1/checkout/confirm
func (h *CheckoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	// Detached from the request: once funds are captured the order must be
	// attempted even if the shopper goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}

	var req ConfirmRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.PaymentMethod == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "payment_method is required")
		return
	}

	conf := h.shoppers.Shopper(ctx, userID).Checkout()
	if conf == nil {
		handleError(w, h.logger, checkout.ErrSessionExpired)
		return
	}

	res, err := conf.Submit(ctx, req.PaymentMethod)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}
