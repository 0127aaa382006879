// Package httpclient is the JSON-over-HTTP client the services use to call
// each other. Calls are traced, guarded by a circuit breaker and carry the
// caller's bearer token.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/storefront/pkg/auth"
	"github.com/fjod/storefront/pkg/circuitbreaker"
)

// StatusError is a non-2xx answer from the remote service.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// IsClientError reports whether err is a 4xx answer.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithBreakerOptions(opts ...circuitbreaker.Option) Option {
	return func(c *Client) { c.breakerOpts = append(c.breakerOpts, opts...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

type Client struct {
	name        string
	baseURL     string
	http        *http.Client
	breaker     *circuitbreaker.Breaker
	breakerOpts []circuitbreaker.Option
	logger      *zap.Logger
}

// New builds a client for the service called name at baseURL.
func New(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	bopts := append([]circuitbreaker.Option{
		circuitbreaker.WithIgnoredErrors(IsClientError),
		circuitbreaker.WithLogger(c.logger),
	}, c.breakerOpts...)
	c.breaker = circuitbreaker.New(name, bopts...)
	return c
}

// Do sends in as JSON (when not nil) and decodes a 2xx body into out (when not nil).
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	return c.breaker.Do(func() error {
		return c.do(ctx, method, path, in, out)
	})
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.name, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	auth.SetBearer(req, auth.TokenFromContext(ctx))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s %s: %w", c.name, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode}
		var eb errorBody
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&eb); err == nil {
			se.Code = eb.Code
			se.Message = eb.Error
		}
		return se
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	return nil
}
