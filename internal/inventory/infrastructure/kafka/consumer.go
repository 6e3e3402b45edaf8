package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-placement/internal/inventory/domain"
	"github.com/dmehra2102/order-placement/pkg/outbox"
	"github.com/dmehra2102/order-placement/pkg/tracing"
)

const (
	orderCreated = "OrderCreated"

	minRetryDelay = 500 * time.Millisecond
	maxRetryDelay = 10 * time.Second
)

// Results reported to the Recorder for every fetched message.
const (
	ResultHandled   = "handled"
	ResultDuplicate = "duplicate"
	ResultSkipped   = "skipped"
	ResultMalformed = "malformed"
	ResultFailed    = "failed"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Processed(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, key string) error
}

type StockChecker interface {
	CheckLowStock(ctx context.Context, ev domain.OrderPlaced) ([]domain.LowStockAlert, error)
}

type Recorder interface {
	ObserveConsumed(result string)
}

// Consumer reads OrderCreated events and checks the ordered products for low stock.
type Consumer struct {
	log      *slog.Logger
	reader   MessageReader
	svc      StockChecker
	idem     Deduper
	recorder Recorder
	tracer   trace.Tracer

	retryDelay time.Duration
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, svc StockChecker, idem Deduper, recorder Recorder) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			log.Error("kafka reader", "msg", fmt.Sprintf(msg, args...))
		}),
	})
	return NewConsumerWithReader(log, r, svc, idem, recorder)
}

func NewConsumerWithReader(log *slog.Logger, reader MessageReader, svc StockChecker, idem Deduper, recorder Recorder) *Consumer {
	return &Consumer{
		log:        log,
		reader:     reader,
		svc:        svc,
		idem:       idem,
		recorder:   recorder,
		tracer:     otel.Tracer("inventory-consumer"),
		retryDelay: minRetryDelay,
	}
}

// Run blocks until ctx is cancelled or the reader fails. A message is
// retried until it is handled, so no later offset is committed past it.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if !c.process(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.ErrorContext(ctx, "commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

// process handles msg, backing off between failed attempts. It returns false
// when ctx ends before the message is handled.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	delay := c.retryDelay
	for {
		result, err := c.handle(ctx, msg)
		c.observe(result)
		if err == nil {
			return true
		}
		c.log.WarnContext(ctx, "message will be retried", "offset", msg.Offset, "partition", msg.Partition, "retry_in", delay, "err", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

// handle processes one message. A non-nil error means the message was not
// handled and must not be committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) (string, error) {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	done, err := c.idem.Processed(ctx, key)
	if err != nil {
		return ResultFailed, fmt.Errorf("dedupe check: %w", err)
	}
	if done {
		c.log.InfoContext(ctx, "duplicate message skipped", "key", key)
		return ResultDuplicate, nil
	}

	if eventType := tracing.HeaderValue(msg.Headers, outbox.EventTypeHeader); eventType != orderCreated {
		return ResultSkipped, nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeOrderCreated", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var ev domain.OrderPlaced
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		span.RecordError(err)
		c.log.ErrorContext(msgCtx, "unmarshal failed", "offset", msg.Offset, "err", err)
		return ResultMalformed, nil
	}
	span.SetAttributes(attribute.String("order.id", ev.OrderID))

	alerts, err := c.svc.CheckLowStock(msgCtx, ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "low stock check failed")
		return ResultFailed, fmt.Errorf("low stock check for order %s: %w", ev.OrderID, err)
	}
	if err := c.idem.MarkProcessed(msgCtx, key); err != nil {
		c.log.WarnContext(msgCtx, "mark processed failed", "key", key, "err", err)
	}
	c.log.InfoContext(msgCtx, "order processed", "order_id", ev.OrderID, "alerts", len(alerts))
	return ResultHandled, nil
}

func (c *Consumer) observe(result string) {
	if c.recorder != nil {
		c.recorder.ObserveConsumed(result)
	}
}
