package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/storefront/internal/gateway"
	"github.com/fjod/storefront/pkg/httpclient"
)

// PaymentClient implements gateway.Gateway against the payment service.
type PaymentClient struct {
	http *httpclient.Client
}

func NewPaymentClient(baseURL string, opts ...httpclient.Option) *PaymentClient {
	return &PaymentClient{http: httpclient.New("payment", baseURL, opts...)}
}

func (c *PaymentClient) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	var intent gateway.Intent
	if err := c.http.Do(ctx, http.MethodPost, "/payment/create-intent", req, &intent); err != nil {
		return nil, paymentError(err)
	}
	return &intent, nil
}

func (c *PaymentClient) Confirm(ctx context.Context, req gateway.ConfirmRequest) (*gateway.Confirmation, error) {
	var conf gateway.Confirmation
	if err := c.http.Do(ctx, http.MethodPost, "/payment/confirm", req, &conf); err != nil {
		return nil, paymentError(err)
	}
	return &conf, nil
}

// paymentError rebuilds the gateway errors the payment service encodes as
// HTTP statuses.
func paymentError(err error) error {
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.StatusCode {
	case http.StatusPaymentRequired:
		return &gateway.DeclineError{Code: se.Code, Message: se.Message}
	case http.StatusGone:
		return gateway.ErrAuthorizationExpired
	case http.StatusUnprocessableEntity:
		if se.Code == "invalid_client_secret" {
			return gateway.ErrInvalidClientSecret
		}
	}
	return fmt.Errorf("payment service: %w", err)
}
