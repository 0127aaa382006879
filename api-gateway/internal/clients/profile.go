package clients

import (
	"context"
	"net/http"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/pkg/httpclient"
)

// ProfileClient reads and writes the caller's saved shipping contact. The
// caller is identified by the bearer token carried in ctx.
type ProfileClient struct {
	http *httpclient.Client
}

func NewProfileClient(baseURL string, opts ...httpclient.Option) *ProfileClient {
	return &ProfileClient{http: httpclient.New("profile", baseURL, opts...)}
}

func (c *ProfileClient) LoadContact(ctx context.Context) (checkout.ShippingContact, error) {
	var contact checkout.ShippingContact
	if err := c.http.Do(ctx, http.MethodGet, "/users/detail", nil, &contact); err != nil {
		return checkout.ShippingContact{}, err
	}
	return contact, nil
}

func (c *ProfileClient) SaveContact(ctx context.Context, contact checkout.ShippingContact) error {
	return c.http.Do(ctx, http.MethodPost, "/users/detail", contact, nil)
}
