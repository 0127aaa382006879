// Package checkout turns a cart into an authorized payment: it validates
// the shipping contact, requests the authorization from the gateway and
// freezes what was authorized into a Draft.
package checkout

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/gateway"
	"github.com/fjod/storefront/internal/pricing"
)

// DefaultCurrency is the currency the storefront charges in.
const DefaultCurrency = "pen"

// ProfileStore reads and writes the shopper's saved contact details.
type ProfileStore interface {
	LoadContact(ctx context.Context) (ShippingContact, error)
	SaveContact(ctx context.Context, c ShippingContact) error
}

// CartView is the part of a cart a checkout needs.
type CartView interface {
	Snapshot() cart.Snapshot
}

type Option func(*Session)

func WithCurrency(c string) Option {
	return func(s *Session) { s.currency = c }
}

// WithAuthorizationWindow is used when the gateway does not report an expiry.
func WithAuthorizationWindow(d time.Duration) Option {
	return func(s *Session) { s.authWindow = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

type Session struct {
	gateway    gateway.Gateway
	profiles   ProfileStore
	validator  *contactValidator
	currency   string
	authWindow time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func NewSession(gw gateway.Gateway, profiles ProfileStore, opts ...Option) *Session {
	s := &Session{
		gateway:    gw,
		profiles:   profiles,
		validator:  newContactValidator(),
		currency:   DefaultCurrency,
		authWindow: 30 * time.Minute,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prefill returns the saved contact details, or an empty contact.
func (s *Session) Prefill(ctx context.Context) ShippingContact {
	if s.profiles == nil {
		return ShippingContact{}
	}
	c, err := s.profiles.LoadContact(ctx)
	if err != nil {
		s.logger.Info("profile prefill unavailable", zap.Error(err))
		return ShippingContact{}
	}
	return c
}

// Validate checks a contact without starting a checkout.
func (s *Session) Validate(contact ShippingContact) error {
	return s.validator.Validate(contact.Normalized())
}

// Start authorizes the cart's current total. The cart is never modified, so
// a failed Start can simply be retried.
func (s *Session) Start(ctx context.Context, c CartView, contact ShippingContact) (*Draft, error) {
	snap := c.Snapshot()
	if snap.IsEmpty() {
		return nil, cart.ErrEmptyCart
	}

	contact = contact.Normalized()
	if err := s.validator.Validate(contact); err != nil {
		return nil, err
	}

	s.saveProfile(ctx, contact)

	draft := &Draft{
		ID:          uuid.NewString(),
		Contact:     contact,
		Items:       snap.Items,
		Discount:    snap.Discount,
		Breakdown:   snap.Breakdown,
		AmountMinor: pricing.ToMinorUnits(snap.Breakdown.Total),
		Currency:    s.currency,
		CreatedAt:   s.now(),
	}

	intent, err := s.gateway.CreateIntent(ctx, gateway.IntentRequest{
		AmountMinor: draft.AmountMinor,
		Currency:    draft.Currency,
		Metadata: map[string]string{
			"checkout_id":   draft.ID,
			"customer_name": contact.FullName(),
			"phone":         contact.Phone,
			"item_count":    strconv.Itoa(snap.ItemCount()),
		},
		IdempotencyKey: draft.ID,
	})
	if err != nil {
		s.logger.Warn("payment authorization failed", zap.String("checkout_id", draft.ID), zap.Error(err))
		return nil, &gateway.GatewayError{Op: "create intent", Err: err}
	}
	if intent.ClientSecret == "" {
		return nil, &gateway.GatewayError{Op: "create intent", Err: gateway.ErrInvalidClientSecret}
	}

	draft.ClientSecret = intent.ClientSecret
	draft.IntentID = intent.ID
	draft.ExpiresAt = intent.ExpiresAt
	if draft.ExpiresAt.IsZero() {
		draft.ExpiresAt = draft.CreatedAt.Add(s.authWindow)
	}

	s.logger.Info("checkout authorized",
		zap.String("checkout_id", draft.ID),
		zap.String("intent_id", draft.IntentID),
		zap.Int64("amount_minor", draft.AmountMinor))
	return draft, nil
}

func (s *Session) saveProfile(ctx context.Context, contact ShippingContact) {
	if s.profiles == nil {
		return
	}
	if err := s.profiles.SaveContact(ctx, contact); err != nil {
		s.logger.Warn("profile save failed, continuing checkout", zap.Error(err))
	}
}
