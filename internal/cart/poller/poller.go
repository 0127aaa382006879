// Package poller empties a shopper's persisted cart once the orders service
// reports that their order was created.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/orders"
)

// CartClearer empties the cart that belongs to a user once orderNumber exists.
type CartClearer interface {
	ClearCart(ctx context.Context, userID, orderNumber string) error
}

// MessageReader is the part of kafka.Reader the poller uses. Offsets are
// committed explicitly, only after a message was handled.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// errMalformed marks events that will never succeed, so they are skipped.
var errMalformed = errors.New("malformed order event")

const (
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
)

type Poller struct {
	carts      CartClearer
	reader     MessageReader
	logger     *zap.Logger
	retryDelay time.Duration
}

func NewPoller(carts CartClearer, logger *zap.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    orders.OutboxTopic,
		GroupID:  "api-gateway-cart-consumer",
		MaxBytes: 10e6, // 10MB
	})
	return NewPollerWithReader(carts, reader, logger)
}

func NewPollerWithReader(carts CartClearer, reader MessageReader, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{carts: carts, reader: reader, logger: logger, retryDelay: defaultRetryDelay}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				p.logger.Warn("error fetching message", zap.Error(err))
			}
			continue
		}
		if !p.process(ctx, m) {
			return
		}
		if err := p.reader.CommitMessages(ctx, m); err != nil {
			p.logger.Warn("error committing message", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// process handles m until it succeeds or turns out malformed. It returns
// false when ctx ended first, leaving the offset uncommitted.
func (p *Poller) process(ctx context.Context, m kafka.Message) bool {
	delay := p.retryDelay
	for {
		err := p.handle(ctx, m)
		if err == nil {
			return true
		}
		if errors.Is(err, errMalformed) {
			p.logger.Warn("order event skipped",
				zap.Int64("offset", m.Offset),
				zap.String("key", string(m.Key)),
				zap.Error(err))
			return true
		}

		p.logger.Warn("order event failed, retrying",
			zap.Int64("offset", m.Offset),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Warn("error closing reader", zap.Error(err))
	}
}

func (p *Poller) handle(ctx context.Context, m kafka.Message) error {
	if eventType(m) != orders.EventOrderCreated {
		return nil
	}

	var ev orders.Event
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return fmt.Errorf("%w: parse event: %v", errMalformed, err)
	}
	if ev.UserID == "" {
		return fmt.Errorf("%w: missing user_id", errMalformed)
	}

	if err := p.carts.ClearCart(ctx, ev.UserID, ev.OrderNumber); err != nil {
		return fmt.Errorf("clear cart for %s: %w", ev.UserID, err)
	}
	p.logger.Info("cart cleared after order", zap.String("user_id", ev.UserID), zap.String("order_number", ev.OrderNumber))
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
