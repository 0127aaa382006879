package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/orders-service/internal/repository"
)

type MockSource struct {
	mu        sync.Mutex
	events    []*repository.OutboxEvent
	fetchErr  error
	markErr   error
	processed []int64
}

func (m *MockSource) GetUnprocessedEvents(context.Context, int) ([]*repository.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []*repository.OutboxEvent
	done := make(map[int64]bool, len(m.processed))
	for _, id := range m.processed {
		done[id] = true
	}
	for _, e := range m.events {
		if !done[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockSource) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.processed = append(m.processed, id)
	return nil
}

type MockWriter struct {
	messages []kafkaGo.Message
	failOn   int
	calls    int
}

func (m *MockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	m.calls++
	if m.failOn > 0 && m.calls == m.failOn {
		return errors.New("broker unavailable")
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *MockWriter) Close() error {
	return nil
}

func event(id int64, eventType string) *repository.OutboxEvent {
	return &repository.OutboxEvent{
		ID:          id,
		AggregateID: fmt.Sprintf("order-%d", id),
		EventType:   eventType,
		Payload:     json.RawMessage(fmt.Sprintf(`{"order_id":"order-%d"}`, id)),
		CreatedAt:   time.Now(),
	}
}

func TestProcessUnpublishedEvents(t *testing.T) {
	src := &MockSource{events: []*repository.OutboxEvent{
		event(1, orders.EventOrderCreated),
		event(2, orders.EventOrderCancelled),
	}}
	w := &MockWriter{}
	p := NewOutboxPollerWithWriter(src, w, zap.NewNop())

	p.processUnpublishedEvents(context.Background())

	require.Len(t, w.messages, 2)
	assert.Equal(t, "order-1", string(w.messages[0].Key))
	assert.Equal(t, "event_type", w.messages[1].Headers[0].Key)
	assert.Equal(t, orders.EventOrderCancelled, string(w.messages[1].Headers[0].Value))
	assert.Equal(t, []int64{1, 2}, src.processed)
}

func TestProcessUnpublishedEvents_StopsOnPublishFailure(t *testing.T) {
	src := &MockSource{events: []*repository.OutboxEvent{
		event(1, orders.EventOrderCreated),
		event(2, orders.EventOrderStatusChanged),
		event(3, orders.EventOrderCancelled),
	}}
	w := &MockWriter{failOn: 2}
	p := NewOutboxPollerWithWriter(src, w, zap.NewNop())

	p.processUnpublishedEvents(context.Background())
	assert.Equal(t, []int64{1}, src.processed)

	// next tick resumes at the failed event
	p.processUnpublishedEvents(context.Background())
	assert.Equal(t, []int64{1, 2, 3}, src.processed)
}

func TestProcessUnpublishedEvents_FetchError(t *testing.T) {
	src := &MockSource{fetchErr: errors.New("database connection error")}
	w := &MockWriter{}
	p := NewOutboxPollerWithWriter(src, w, zap.NewNop())

	p.processUnpublishedEvents(context.Background())

	assert.Zero(t, w.calls)
}

func TestProcessUnpublishedEvents_MarkError(t *testing.T) {
	src := &MockSource{
		events:  []*repository.OutboxEvent{event(1, orders.EventOrderCreated), event(2, orders.EventOrderCreated)},
		markErr: errors.New("deadlock"),
	}
	w := &MockWriter{}
	p := NewOutboxPollerWithWriter(src, w, zap.NewNop())

	p.processUnpublishedEvents(context.Background())

	// published once, not marked, so it will be redelivered
	assert.Len(t, w.messages, 1)
	assert.Empty(t, src.processed)
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}

	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, orders.OutboxTopic)

	src := &MockSource{events: []*repository.OutboxEvent{event(1, orders.EventOrderCreated)}}
	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokerAddr),
		Topic:        orders.OutboxTopic,
		Balancer:     &kafkaGo.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	poller := NewOutboxPollerWithWriter(src, writer, zap.NewNop())
	defer poller.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go poller.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    orders.OutboxTopic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-1", string(msg.Key))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "order-1", payload["order_id"])

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.processed) == 1
	}, 10*time.Second, 100*time.Millisecond)
}
