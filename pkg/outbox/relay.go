package outbox

import (
	"context"
	"log/slog"
	"time"
)

type Store interface {
	// LockBatch claims up to batchSize pending rows, or rows whose lease ran
	// out, for relayID until now+lease.
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	// MarkFailed puts the row back to pending until MaxAttempts is reached.
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error
}

type Observer interface {
	ObserveDispatch(eventType, result string)
}

type Relay struct {
	log       *slog.Logger
	store     Store
	dispatch  *Dispatcher
	observer  Observer
	relayID   string
	batchSize int
	interval  time.Duration
	lease     time.Duration
}

type Option func(*Relay)

func WithBatchSize(n int) Option { return func(r *Relay) { r.batchSize = n } }

func WithInterval(d time.Duration) Option { return func(r *Relay) { r.interval = d } }

func WithLease(d time.Duration) Option { return func(r *Relay) { r.lease = d } }

func WithObserver(o Observer) Option { return func(r *Relay) { r.observer = o } }

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, relayID string, opts ...Option) *Relay {
	r := &Relay{
		log:       log,
		store:     store,
		dispatch:  dispatch,
		relayID:   relayID,
		batchSize: 100,
		interval:  500 * time.Millisecond,
		lease:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls the store every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.log.Info("relay started", "relay_id", r.relayID, "batch_size", r.batchSize, "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			if _, err := r.Tick(ctx); err != nil {
				r.log.Error("relay tick failed", "relay_id", r.relayID, "err", err)
			}
		}
	}
}

// Tick relays one batch and returns how many events were sent.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	// Rows already handed to Kafka must be recorded even when ctx is cancelled mid-batch.
	bookkeeping := context.WithoutCancel(ctx)

	locked := time.Now()
	sent := make([]int64, 0, len(events))
	for i, e := range events {
		if ctx.Err() != nil {
			break
		}
		if time.Since(locked) > r.lease/2 {
			remaining := make([]int64, 0, len(events)-i)
			for _, rest := range events[i:] {
				remaining = append(remaining, rest.ID)
			}
			if err := r.store.ExtendLease(bookkeeping, r.relayID, remaining, r.lease); err != nil {
				r.log.Warn("relay extend lease failed", "relay_id", r.relayID, "err", err)
			}
			locked = time.Now()
		}

		if err := r.dispatch.Dispatch(ctx, e); err != nil {
			r.observe(e.Type, "failed")
			if merr := r.store.MarkFailed(bookkeeping, e.ID, err.Error()); merr != nil {
				r.log.Error("relay mark failed error", "event_id", e.ID, "err", merr)
			}
			continue
		}
		r.observe(e.Type, "sent")
		sent = append(sent, e.ID)
	}

	if len(sent) > 0 {
		if err := r.store.MarkSent(bookkeeping, sent); err != nil {
			return 0, err
		}
	}
	return len(sent), nil
}

func (r *Relay) observe(eventType, result string) {
	if r.observer != nil {
		r.observer.ObserveDispatch(eventType, result)
	}
}
