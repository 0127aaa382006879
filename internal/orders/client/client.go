// Package client calls the orders service over HTTP.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/pkg/httpclient"
)

type Client struct {
	http *httpclient.Client
}

func New(baseURL string, opts ...httpclient.Option) *Client {
	return &Client{http: httpclient.New("orders-service", baseURL, opts...)}
}

// CreateOrder satisfies payment.OrderCreator.
func (c *Client) CreateOrder(ctx context.Context, req orders.CreateRequest) (*orders.CreateResult, error) {
	var res orders.CreateResult
	if err := c.http.Do(ctx, http.MethodPost, "/orders/create", req, &res); err != nil {
		return nil, mapError(err)
	}
	return &res, nil
}

func (c *Client) Get(ctx context.Context, id uuid.UUID) (*orders.Order, error) {
	var o orders.Order
	if err := c.http.Do(ctx, http.MethodGet, "/orders/"+id.String(), nil, &o); err != nil {
		return nil, mapError(err)
	}
	return &o, nil
}

func (c *Client) GetByNumber(ctx context.Context, number string) (*orders.Order, error) {
	var o orders.Order
	if err := c.http.Do(ctx, http.MethodGet, "/orders/number/"+url.PathEscape(number), nil, &o); err != nil {
		return nil, mapError(err)
	}
	return &o, nil
}

func (c *Client) List(ctx context.Context) ([]orders.Order, error) {
	var out []orders.Order
	if err := c.http.Do(ctx, http.MethodGet, "/orders", nil, &out); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (c *Client) UpdateStatus(ctx context.Context, id uuid.UUID, to orders.Status) (*orders.Order, error) {
	var o orders.Order
	err := c.http.Do(ctx, http.MethodPut, "/orders/"+id.String()+"/status", orders.StatusUpdate{NewStatus: to}, &o)
	if err != nil {
		return nil, mapError(err)
	}
	return &o, nil
}

func (c *Client) Cancel(ctx context.Context, id uuid.UUID) (*orders.Order, error) {
	var o orders.Order
	if err := c.http.Do(ctx, http.MethodDelete, "/orders/"+id.String()+"/cancel", nil, &o); err != nil {
		return nil, mapError(err)
	}
	return &o, nil
}

func mapError(err error) error {
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		return err
	}
	if target, ok := orders.ErrorFromCode(se.Code); ok {
		return fmt.Errorf("%w: %s", target, se.Message)
	}
	switch se.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", orders.ErrOrderNotFound, se.Message)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", orders.ErrForbidden, se.Message)
	}
	return err
}
