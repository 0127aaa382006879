package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fjod/storefront/api-gateway/internal/clients"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/gateway"
	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/pkg/circuitbreaker"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError converts storefront errors to HTTP responses.
func handleError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		validation *checkout.ValidationError
		orphan     *payment.OrphanedPaymentError
		decline    *gateway.DeclineError
		gwErr      *gateway.GatewayError
	)

	switch {
	case errors.As(err, &validation):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   validation.Error(),
			Code:    "validation_error",
			Details: validation.Field,
		})

	// Checked before the order errors it wraps: an orphan is never retryable.
	case errors.As(err, &orphan):
		logger.Error("payment captured without order",
			zap.String("payment_reference", orphan.PaymentReference),
			zap.Error(orphan.Err))
		respondJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "your payment was received but the order could not be registered, contact " + orphan.SupportContact,
			Code:    "orphaned_payment",
			Details: orphan.PaymentReference,
		})

	case errors.As(err, &decline):
		respondError(w, http.StatusPaymentRequired, decline.Code, decline.Message)
	case errors.Is(err, gateway.ErrAuthorizationExpired), errors.Is(err, checkout.ErrSessionExpired):
		respondError(w, http.StatusGone, "session_expired", "checkout session expired, please start again")
	case errors.As(err, &gwErr):
		logger.Warn("payment gateway error", zap.Error(err))
		respondError(w, http.StatusBadGateway, "gateway_error", gwErr.UserMessage())

	case errors.Is(err, pricing.ErrInvalidDiscountCode):
		respondError(w, http.StatusUnprocessableEntity, "invalid_discount_code", err.Error())
	case errors.Is(err, clients.ErrSizeUnavailable):
		respondError(w, http.StatusUnprocessableEntity, "size_unavailable", err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, cart.ErrEmptyCart):
		respondError(w, http.StatusConflict, "empty_cart", err.Error())
	case errors.Is(err, cart.ErrDiscountAlreadyApplied):
		respondError(w, http.StatusConflict, "discount_already_applied", err.Error())
	case errors.Is(err, cart.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", err.Error())
	case errors.Is(err, clients.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", err.Error())

	case errors.Is(err, payment.ErrSubmitInFlight):
		respondError(w, http.StatusConflict, "submit_in_flight", err.Error())
	case errors.Is(err, payment.ErrAlreadyConfirmed):
		respondError(w, http.StatusConflict, "already_confirmed", err.Error())

	case errors.Is(err, orders.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, orders.CodeNotFound, err.Error())
	case errors.Is(err, orders.ErrForbidden):
		respondError(w, http.StatusForbidden, orders.CodeForbidden, err.Error())
	case errors.Is(err, orders.ErrInsufficientStock),
		errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrVariantNotFound):
		respondError(w, http.StatusConflict, orders.ErrorCode(err), err.Error())

	case errors.Is(err, circuitbreaker.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "a dependency is temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
