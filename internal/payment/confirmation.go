// Package payment drives a confirmed checkout from the shopper's payment
// method to a created order.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/gateway"
	"github.com/fjod/storefront/internal/orders"
)

// DefaultSupportContact is shown when a payment could not be turned into an order.
const DefaultSupportContact = "soporte@storefront.pe"

type State int

const (
	AwaitingInput State = iota
	Submitting
	Succeeded
	Orphaned
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Orphaned:
		return "orphaned"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrSubmitInFlight   = errors.New("payment submission already in progress")
	ErrAlreadyConfirmed = errors.New("payment already confirmed")
	ErrOrphanedPayment  = errors.New("payment captured but order not created")
)

// OrphanedPaymentError means the gateway captured the funds but the order
// could not be created. It must go to a human, never be retried.
type OrphanedPaymentError struct {
	PaymentReference string
	SupportContact   string
	Err              error
}

func (e *OrphanedPaymentError) Error() string {
	return fmt.Sprintf("payment %s captured but order not created: %v", e.PaymentReference, e.Err)
}

func (e *OrphanedPaymentError) Unwrap() error {
	return e.Err
}

func (e *OrphanedPaymentError) Is(target error) bool {
	return target == ErrOrphanedPayment
}

// OrderCreator creates the order for a captured payment.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req orders.CreateRequest) (*orders.CreateResult, error)
}

// LiveCart is the shopper's current cart. A draft can only be paid while
// it still has lines, and it is emptied once the order exists.
type LiveCart interface {
	Snapshot() cart.Snapshot
	Clear(ctx context.Context)
}

// Result identifies the created order.
type Result struct {
	OrderID          string        `json:"order_id"`
	OrderNumber      string        `json:"order_number"`
	Status           orders.Status `json:"status"`
	PaymentReference string        `json:"payment_reference"`
}

type Option func(*Confirmation)

func WithSupportContact(contact string) Option {
	return func(c *Confirmation) { c.support = contact }
}

func WithClock(now func() time.Time) Option {
	return func(c *Confirmation) { c.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Confirmation) { c.logger = l }
}

func OnSuccess(fn func(Result)) Option {
	return func(c *Confirmation) { c.onSuccess = fn }
}

func OnError(fn func(error)) Option {
	return func(c *Confirmation) { c.onError = fn }
}

// Confirmation is the payment step of one checkout draft.
type Confirmation struct {
	draft   *checkout.Draft
	gateway gateway.Gateway
	orders  OrderCreator
	cart    LiveCart

	support   string
	now       func() time.Time
	logger    *zap.Logger
	onSuccess func(Result)
	onError   func(error)

	mu     sync.Mutex
	state  State
	result *Result
	orphan *OrphanedPaymentError
}

// NewConfirmation returns checkout.ErrSessionExpired when the draft cannot
// be paid anymore.
func NewConfirmation(draft *checkout.Draft, gw gateway.Gateway, oc OrderCreator, live LiveCart, opts ...Option) (*Confirmation, error) {
	c := &Confirmation{
		draft:   draft,
		gateway: gw,
		orders:  oc,
		cart:    live,
		support: DefaultSupportContact,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := draft.Valid(c.now()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Confirmation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Confirmation) Draft() *checkout.Draft {
	return c.draft
}

// Result is set once the order has been created.
func (c *Confirmation) Result() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return Result{}, false
	}
	return *c.result, true
}

// Submit confirms the payment and, once captured, creates the order exactly once.
func (c *Confirmation) Submit(ctx context.Context, paymentMethod string) (Result, error) {
	if err := c.begin(); err != nil {
		return Result{}, c.fail(err)
	}

	conf, err := c.gateway.Confirm(ctx, gateway.ConfirmRequest{
		ClientSecret:  c.draft.ClientSecret,
		PaymentMethod: paymentMethod,
	})
	if err == nil && !conf.Captured() {
		err = &gateway.DeclineError{
			Code:    string(conf.Status),
			Message: "the payment was not completed, please try again",
		}
	}
	if err != nil {
		c.setState(AwaitingInput)
		var gErr *gateway.GatewayError
		if !errors.As(err, &gErr) {
			err = &gateway.GatewayError{Op: "confirm", Err: err}
		}
		c.logger.Warn("payment confirmation failed", zap.String("checkout_id", c.draft.ID), zap.Error(err))
		return Result{}, c.fail(err)
	}

	log := c.logger.With(zap.String("checkout_id", c.draft.ID), zap.String("payment_reference", conf.PaymentReference))
	log.Info("payment captured")

	created, err := c.orders.CreateOrder(ctx, c.draft.OrderRequest(conf.PaymentReference))
	if err != nil {
		orphan := &OrphanedPaymentError{
			PaymentReference: conf.PaymentReference,
			SupportContact:   c.support,
			Err:              err,
		}
		c.mu.Lock()
		c.state = Orphaned
		c.orphan = orphan
		c.mu.Unlock()
		log.Error("order creation failed after capture", zap.Error(err))
		return Result{}, c.fail(orphan)
	}

	res := Result{
		OrderID:          created.ID.String(),
		OrderNumber:      created.OrderNumber,
		Status:           created.Status,
		PaymentReference: conf.PaymentReference,
	}
	c.mu.Lock()
	c.state = Succeeded
	c.result = &res
	c.mu.Unlock()

	c.cart.Clear(ctx)
	log.Info("order created", zap.String("order_number", res.OrderNumber))
	if c.onSuccess != nil {
		c.onSuccess(res)
	}
	return res, nil
}

func (c *Confirmation) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Submitting:
		return ErrSubmitInFlight
	case Succeeded:
		return ErrAlreadyConfirmed
	case Orphaned:
		return c.orphan
	}
	if err := c.draft.Valid(c.now()); err != nil {
		return err
	}
	// emptied in another tab after checkout started
	if c.cart.Snapshot().IsEmpty() {
		return checkout.ErrSessionExpired
	}
	c.state = Submitting
	return nil
}

func (c *Confirmation) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Confirmation) fail(err error) error {
	if c.onError != nil {
		c.onError(err)
	}
	return err
}
