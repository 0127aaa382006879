package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/orders"
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

// handleServiceError converts order domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var httpStatus int
	switch {
	case errors.Is(err, orders.ErrInvalidOrder):
		httpStatus = http.StatusUnprocessableEntity
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, orders.ErrVariantNotFound):
		httpStatus = http.StatusNotFound
	case errors.Is(err, orders.ErrForbidden):
		httpStatus = http.StatusForbidden
	case errors.Is(err, orders.ErrInsufficientStock),
		errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrDuplicatePayment):
		httpStatus = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
		return
	default:
		logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	code := orders.ErrorCode(err)
	if code == "" && errors.Is(err, orders.ErrDuplicatePayment) {
		code = "duplicate_payment"
	}
	respondError(w, httpStatus, code, err.Error())
}
