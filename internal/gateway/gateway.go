// Package gateway is the port to the external card payment gateway.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Gateway authorizes an amount and later confirms it with the shopper's
// payment method.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	Confirm(ctx context.Context, req ConfirmRequest) (*Confirmation, error)
}

type IntentRequest struct {
	AmountMinor    int64             `json:"amount_minor_units" validate:"gt=0"`
	Currency       string            `json:"currency" validate:"required,len=3"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

type Intent struct {
	ID           string    `json:"intent_id"`
	ClientSecret string    `json:"client_secret"`
	AmountMinor  int64     `json:"amount_minor_units"`
	Currency     string    `json:"currency"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type ConfirmRequest struct {
	ClientSecret  string `json:"client_secret" validate:"required"`
	PaymentMethod string `json:"payment_method" validate:"required"`
}

type Status string

const (
	StatusSucceeded      Status = "succeeded"
	StatusProcessing     Status = "processing"
	StatusRequiresAction Status = "requires_action"
)

type Confirmation struct {
	Status           Status `json:"status"`
	PaymentReference string `json:"payment_reference"`
	AmountMinor      int64  `json:"amount_minor_units"`
}

// Captured reports whether the funds were captured.
func (c *Confirmation) Captured() bool {
	return c != nil && c.Status == StatusSucceeded
}

var (
	ErrGateway              = errors.New("payment gateway error")
	ErrInvalidClientSecret  = errors.New("invalid client secret")
	ErrAuthorizationExpired = errors.New("payment authorization expired")
)

// DeclineError is a refusal reported by the gateway. Message is shown to
// the shopper verbatim.
type DeclineError struct {
	Code    string
	Message string
}

func (e *DeclineError) Error() string {
	return e.Message
}

// GatewayError wraps any failure to create or confirm a payment.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

// UserMessage is the text to show the shopper.
func (e *GatewayError) UserMessage() string {
	var decline *DeclineError
	if errors.As(e.Err, &decline) {
		return decline.Message
	}
	return "the payment could not be processed, please try again"
}

// IntentIDFromSecret extracts the intent ID from a client secret of the form
// "<intent id>_secret_<nonce>".
func IntentIDFromSecret(secret string) (string, error) {
	id, _, ok := strings.Cut(secret, "_secret_")
	if !ok || id == "" {
		return "", ErrInvalidClientSecret
	}
	return id, nil
}
