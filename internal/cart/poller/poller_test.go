package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/storefront/internal/orders"
)

type recordingClearer struct {
	mu       sync.Mutex
	cleared  []string
	err      error
	failures int // calls that fail with err before succeeding; 0 means always
}

func (r *recordingClearer) ClearCart(_ context.Context, userID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, userID)
	if r.err != nil && (r.failures == 0 || len(r.cleared) <= r.failures) {
		return r.err
	}
	return nil
}

func (r *recordingClearer) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cleared...)
}

type fakeReader struct {
	messages chan kafka.Message
	closed   bool

	mu        sync.Mutex
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-f.messages:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func message(eventType string, value string) kafka.Message {
	return kafka.Message{
		Key:     []byte("order-1"),
		Value:   []byte(value),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	}
}

func TestHandle_OrderCreatedClearsCart(t *testing.T) {
	carts := &recordingClearer{}
	p := NewPollerWithReader(carts, &fakeReader{}, nil)

	err := p.handle(context.Background(), message(orders.EventOrderCreated, `{"order_id":"o-1","user_id":"user-7","status":"PENDING"}`))

	require.NoError(t, err)
	assert.Equal(t, []string{"user-7"}, carts.calls())
}

func TestHandle_IgnoresOtherEvents(t *testing.T) {
	carts := &recordingClearer{}
	p := NewPollerWithReader(carts, &fakeReader{}, nil)

	require.NoError(t, p.handle(context.Background(), message(orders.EventOrderCancelled, `{"user_id":"user-7"}`)))
	require.NoError(t, p.handle(context.Background(), kafka.Message{Value: []byte(`{"user_id":"user-7"}`)}))
	assert.Empty(t, carts.calls())
}

func TestHandle_BadPayloads(t *testing.T) {
	carts := &recordingClearer{}
	p := NewPollerWithReader(carts, &fakeReader{}, nil)

	err := p.handle(context.Background(), message(orders.EventOrderCreated, `{not json`))
	assert.ErrorIs(t, err, errMalformed)
	assert.ErrorContains(t, err, "parse event")
	err = p.handle(context.Background(), message(orders.EventOrderCreated, `{"order_id":"o-1"}`))
	assert.ErrorIs(t, err, errMalformed)
	assert.ErrorContains(t, err, "missing user_id")
	assert.Empty(t, carts.calls())
}

func TestHandle_ClearFailure(t *testing.T) {
	carts := &recordingClearer{err: errors.New("mongo down")}
	p := NewPollerWithReader(carts, &fakeReader{}, nil)

	err := p.handle(context.Background(), message(orders.EventOrderCreated, `{"user_id":"user-7"}`))
	assert.ErrorContains(t, err, "mongo down")
	assert.NotErrorIs(t, err, errMalformed)
}

func TestRun_ConsumesUntilCancelled(t *testing.T) {
	carts := &recordingClearer{}
	reader := &fakeReader{messages: make(chan kafka.Message, 2)}
	p := NewPollerWithReader(carts, reader, nil)

	reader.messages <- message(orders.EventOrderCreated, `{"user_id":"user-1"}`)
	reader.messages <- message(orders.EventOrderCreated, `{"user_id":"user-2"}`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(carts.calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	p.Close()
	assert.True(t, reader.closed)
}

func withOffset(m kafka.Message, offset int64) kafka.Message {
	m.Offset = offset
	return m
}

func TestRun_RetriesFailedClearBeforeCommit(t *testing.T) {
	carts := &recordingClearer{err: errors.New("mongo down"), failures: 2}
	reader := &fakeReader{messages: make(chan kafka.Message, 1)}
	p := NewPollerWithReader(carts, reader, nil)
	p.retryDelay = time.Millisecond

	reader.messages <- withOffset(message(orders.EventOrderCreated, `{"user_id":"user-1"}`), 41)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(reader.commits()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Len(t, carts.calls(), 3)
	assert.Equal(t, []int64{41}, reader.commits())
}

func TestRun_CancelledWhileRetryingLeavesOffset(t *testing.T) {
	carts := &recordingClearer{err: errors.New("mongo down")}
	reader := &fakeReader{messages: make(chan kafka.Message, 1)}
	p := NewPollerWithReader(carts, reader, nil)
	p.retryDelay = time.Hour

	reader.messages <- withOffset(message(orders.EventOrderCreated, `{"user_id":"user-1"}`), 7)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(carts.calls()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Empty(t, reader.commits())
}

func TestRun_SkipsMalformedEvent(t *testing.T) {
	carts := &recordingClearer{}
	reader := &fakeReader{messages: make(chan kafka.Message, 2)}
	p := NewPollerWithReader(carts, reader, nil)

	reader.messages <- withOffset(message(orders.EventOrderCreated, `{not json`), 1)
	reader.messages <- withOffset(message(orders.EventOrderCreated, `{"user_id":"user-2"}`), 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"user-2"}, carts.calls())
	assert.Equal(t, []int64{1, 2}, reader.commits())
}
