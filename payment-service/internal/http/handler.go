// Package http exposes the card gateway to the storefront backend.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/gateway"
	"github.com/fjod/storefront/pkg/auth"
	"github.com/fjod/storefront/pkg/logger"
)

// Error codes returned besides the gateway's own decline codes.
const (
	CodeInvalidClientSecret  = "invalid_client_secret"
	CodeAuthorizationExpired = "authorization_expired"
	CodeGatewayError         = "gateway_error"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type PaymentHandler struct {
	gw       gateway.Gateway
	validate *validator.Validate
	timeout  time.Duration
	logger   *zap.Logger
}

func NewPaymentHandler(gw gateway.Gateway, timeout time.Duration, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		gw:       gw,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		timeout:  timeout,
		logger:   logger,
	}
}

func NewRouter(h *PaymentHandler, verifier *auth.Verifier, log *zap.Logger, timeout time.Duration) http.Handler {
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
		r.Post("/payment/create-intent", h.CreateIntent)
		r.Post("/payment/confirm", h.Confirm)
	})
	return r
}

// POST /payment/create-intent
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req gateway.IntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "invalid payment request",
			Code:    "validation_error",
			Details: err.Error(),
		})
		return
	}

	intent, err := h.gw.CreateIntent(ctx, req)
	if err != nil {
		h.handleGatewayError(w, "create intent", err)
		return
	}
	respondJSON(w, http.StatusCreated, intent)
}

// POST /payment/confirm
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req gateway.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "invalid confirmation request",
			Code:    "validation_error",
			Details: err.Error(),
		})
		return
	}

	conf, err := h.gw.Confirm(ctx, req)
	if err != nil {
		h.handleGatewayError(w, "confirm", err)
		return
	}
	respondJSON(w, http.StatusOK, conf)
}

// handleGatewayError maps declines to 402 carrying the decline code so the
// caller can rebuild the DeclineError.
func (h *PaymentHandler) handleGatewayError(w http.ResponseWriter, op string, err error) {
	var decline *gateway.DeclineError
	switch {
	case errors.As(err, &decline):
		h.logger.Info("payment declined", zap.String("op", op), zap.String("decline_code", decline.Code))
		respondError(w, http.StatusPaymentRequired, decline.Code, decline.Message)
	case errors.Is(err, gateway.ErrInvalidClientSecret):
		respondError(w, http.StatusUnprocessableEntity, CodeInvalidClientSecret, err.Error())
	case errors.Is(err, gateway.ErrAuthorizationExpired):
		respondError(w, http.StatusGone, CodeAuthorizationExpired, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "payment gateway timed out")
	default:
		h.logger.Error("payment gateway failed", zap.String("op", op), zap.Error(err))
		respondError(w, http.StatusBadGateway, CodeGatewayError, "payment gateway unavailable")
	}
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
