// Package gateway holds the card gateway implementations the payment
// service can front: Stripe, and a sandbox for local runs.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/gateway"
)

// Stripe implements gateway.Gateway with Stripe PaymentIntents.
type Stripe struct {
	api    *client.API
	logger *zap.Logger
}

// NewStripe uses the default Stripe backends when backends is nil.
func NewStripe(secretKey string, backends *stripe.Backends, logger *zap.Logger) *Stripe {
	return &Stripe{api: client.New(secretKey, backends), logger: logger}
}

func (s *Stripe) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("payment intent created",
		zap.String("intent_id", pi.ID),
		zap.Int64("amount_minor", pi.Amount))
	return &gateway.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

func (s *Stripe) Confirm(ctx context.Context, req gateway.ConfirmRequest) (*gateway.Confirmation, error) {
	id, err := gateway.IntentIDFromSecret(req.ClientSecret)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(req.PaymentMethod),
	}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.Confirm(id, params)
	switch {
	case isUnexpectedState(err):
		// already confirmed by an earlier attempt whose answer never arrived
		if pi, err = s.current(ctx, id, err); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, translate(err)
	}
	if pi.ClientSecret != "" && pi.ClientSecret != req.ClientSecret {
		return nil, gateway.ErrInvalidClientSecret
	}

	s.logger.Info("payment intent confirmed",
		zap.String("intent_id", pi.ID),
		zap.String("status", string(pi.Status)))
	return &gateway.Confirmation{
		Status:           confirmationStatus(pi.Status),
		PaymentReference: pi.ID,
		AmountMinor:      pi.Amount,
	}, nil
}

// current reads the intent back after a confirm was refused. Only a
// captured or settling intent replaces the original error.
func (s *Stripe) current(ctx context.Context, id string, confirmErr error) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		s.logger.Warn("payment intent lookup failed", zap.String("intent_id", id), zap.Error(err))
		return nil, translate(confirmErr)
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		return pi, nil
	}
	return nil, translate(confirmErr)
}

func isUnexpectedState(err error) bool {
	var se *stripe.Error
	return errors.As(err, &se) && se.Code == stripe.ErrorCodePaymentIntentUnexpectedState
}

func confirmationStatus(s stripe.PaymentIntentStatus) gateway.Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return gateway.StatusSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return gateway.StatusProcessing
	}
	return gateway.StatusRequiresAction
}

// translate turns card errors into declines; everything else is a gateway failure.
func translate(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("stripe: %w", err)
	}
	if se.Type == stripe.ErrorTypeCard {
		code := string(se.DeclineCode)
		if code == "" {
			code = string(se.Code)
		}
		return &gateway.DeclineError{Code: code, Message: se.Msg}
	}
	if se.Code == stripe.ErrorCodeResourceMissing {
		return gateway.ErrInvalidClientSecret
	}
	return fmt.Errorf("stripe %s: %s", se.Type, se.Msg)
}
