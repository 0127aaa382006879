// Package publisher relays order events from the outbox table to Kafka.
package publisher

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/orders-service/internal/repository"
)

// EventSource is the outbox side of the repository.
type EventSource interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	eventTick time.Duration
	batchSize int
	repo      EventSource
	writer    MessageWriter
	logger    *zap.Logger
}

func NewOutboxPoller(repo EventSource, logger *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  orders.OutboxTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return NewOutboxPollerWithWriter(repo, w, logger)
}

func NewOutboxPollerWithWriter(repo EventSource, w MessageWriter, logger *zap.Logger) *OutboxPoller {
	return &OutboxPoller{
		eventTick: time.Second,
		batchSize: 100,
		repo:      repo,
		writer:    w,
		logger:    logger,
	}
}

// Run publishes pending events every tick until ctx is done.
func (p *OutboxPoller) Run(ctx context.Context) error {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.Warn("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.logger.Warn("failed to publish outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(err))
			// keep per-aggregate order: stop and retry from here next tick
			return
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Warn("failed to mark outbox event as processed",
				zap.Int64("event_id", event.ID),
				zap.Error(err))
			return
		}
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order_id for ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}
