package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-placement/internal/inventory/domain"
	"github.com/dmehra2102/order-placement/pkg/logging"
	"github.com/dmehra2102/order-placement/pkg/outbox"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return kafka.Message{}, context.Canceled
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeDeduper struct {
	seen     map[string]bool
	err      error
	failures int
	checks   int
}

func (d *fakeDeduper) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("%s:%d:%d", topic, partition, offset)
}

func (d *fakeDeduper) Processed(_ context.Context, key string) (bool, error) {
	d.checks++
	if d.err != nil || d.checks <= d.failures {
		return false, errors.New("redis: connection refused")
	}
	return d.seen[key], nil
}

func (d *fakeDeduper) MarkProcessed(_ context.Context, key string) error {
	d.seen[key] = true
	return nil
}

type fakeChecker struct {
	got      []domain.OrderPlaced
	err      error
	failures int
}

func (c *fakeChecker) CheckLowStock(_ context.Context, ev domain.OrderPlaced) ([]domain.LowStockAlert, error) {
	c.got = append(c.got, ev)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.got) <= c.failures {
		return nil, errors.New("db down")
	}
	return nil, nil
}

type results []string

func (r *results) ObserveConsumed(result string) { *r = append(*r, result) }

func orderMessage(offset int64, eventType, value string) kafka.Message {
	return kafka.Message{
		Topic:   "orders.events",
		Offset:  offset,
		Value:   []byte(value),
		Headers: []kafka.Header{{Key: outbox.EventTypeHeader, Value: []byte(eventType)}},
	}
}

const placed = `{"order_id":"o-1","items":[{"product_id":"P1","quantity":2}]}`

func newTestConsumer(reader MessageReader, checker StockChecker, dedupe *fakeDeduper, recorder Recorder) *Consumer {
	c := NewConsumerWithReader(logging.Discard(), reader, checker, dedupe, recorder)
	c.retryDelay = time.Millisecond
	return c
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name    string
		msg     kafka.Message
		dedupe  error
		check   error
		result  string
		wantErr bool
		checked int
		marked  bool
	}{
		{name: "order created", msg: orderMessage(1, "OrderCreated", placed), result: ResultHandled, checked: 1, marked: true},
		{name: "other event", msg: orderMessage(2, "OrderCancelled", placed), result: ResultSkipped},
		{name: "malformed payload", msg: orderMessage(3, "OrderCreated", "{"), result: ResultMalformed},
		{name: "check fails", msg: orderMessage(4, "OrderCreated", placed), check: errors.New("db down"), result: ResultFailed, wantErr: true, checked: 1},
		{name: "dedupe unavailable", msg: orderMessage(5, "OrderCreated", placed), dedupe: errors.New("redis down"), result: ResultFailed, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			checker := &fakeChecker{err: tc.check}
			dedupe := &fakeDeduper{seen: map[string]bool{}, err: tc.dedupe}
			c := newTestConsumer(&fakeReader{}, checker, dedupe, nil)

			result, err := c.handle(context.Background(), tc.msg)
			assert.Equal(t, tc.result, result)
			assert.Equal(t, tc.wantErr, err != nil)
			assert.Len(t, checker.got, tc.checked)
			assert.Equal(t, tc.marked, dedupe.seen[dedupe.Key(tc.msg.Topic, tc.msg.Partition, tc.msg.Offset)])
		})
	}
}

func TestHandleDecodesOrder(t *testing.T) {
	checker := &fakeChecker{}
	c := newTestConsumer(&fakeReader{}, checker, &fakeDeduper{seen: map[string]bool{}}, nil)

	_, err := c.handle(context.Background(), orderMessage(1, "OrderCreated", placed))
	require.NoError(t, err)
	require.Len(t, checker.got, 1)
	assert.Equal(t, domain.OrderPlaced{OrderID: "o-1", Items: []domain.OrderedItem{{ProductID: "P1", Quantity: 2}}}, checker.got[0])
}

func TestRunSkipsRedeliveredMessages(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		orderMessage(1, "OrderCreated", placed),
		orderMessage(1, "OrderCreated", placed),
		orderMessage(2, "OrderCreated", placed),
	}}
	checker := &fakeChecker{}
	var observed results
	c := newTestConsumer(reader, checker, &fakeDeduper{seen: map[string]bool{}}, &observed)

	require.NoError(t, c.Run(context.Background()))
	assert.Len(t, checker.got, 2)
	assert.Equal(t, results{ResultHandled, ResultDuplicate, ResultHandled}, observed)
	assert.Equal(t, []int64{1, 1, 2}, reader.committed)
	assert.True(t, reader.closed)
}

func TestRunRetriesBeforeCommittingLaterOffsets(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		orderMessage(10, "OrderCreated", placed),
		orderMessage(11, "OrderCreated", placed),
	}}
	checker := &fakeChecker{}
	var observed results
	c := newTestConsumer(reader, checker, &fakeDeduper{seen: map[string]bool{}, failures: 2}, &observed)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []int64{10, 11}, reader.committed)
	assert.Len(t, checker.got, 2)
	assert.Equal(t, results{ResultFailed, ResultFailed, ResultHandled, ResultHandled}, observed)
}

func TestRunRetriesFailedCheckWithoutDuplicate(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{orderMessage(7, "OrderCreated", placed)}}
	checker := &fakeChecker{failures: 1}
	dedupe := &fakeDeduper{seen: map[string]bool{}}
	var observed results
	c := newTestConsumer(reader, checker, dedupe, &observed)

	require.NoError(t, c.Run(context.Background()))
	assert.Len(t, checker.got, 2)
	assert.Equal(t, results{ResultFailed, ResultHandled}, observed)
	assert.Equal(t, []int64{7}, reader.committed)
	assert.True(t, dedupe.seen[dedupe.Key("orders.events", 0, 7)])
}

func TestRunStopsWithoutCommittingUnhandledMessage(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		orderMessage(10, "OrderCreated", placed),
		orderMessage(11, "OrderCreated", placed),
	}}
	checker := &fakeChecker{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c := newTestConsumer(reader, checker, &fakeDeduper{seen: map[string]bool{}, err: errors.New("redis down")}, nil)

	require.NoError(t, c.Run(ctx))
	assert.Empty(t, reader.committed)
	assert.Empty(t, checker.got)
	assert.True(t, reader.closed)
}
