package memory

import (
	"context"
	"slices"
	"time"

	"github.com/dmehra2102/order-placement/pkg/outbox"
)

type lease struct {
	relayID string
	until   time.Time
}

// OutboxStore serves the rows appended through Store to an outbox.Relay.
type OutboxStore struct {
	s      *Store
	leases map[int64]lease
}

func NewOutboxStore(s *Store) *OutboxStore {
	return &OutboxStore{s: s, leases: map[int64]lease{}}
}

func (o *OutboxStore) LockBatch(_ context.Context, relayID string, batchSize int, d time.Duration) ([]outbox.Event, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	now := time.Now()
	var out []outbox.Event
	for i := range o.s.events {
		if len(out) == batchSize {
			break
		}
		e := &o.s.events[i]
		expired := e.Status == outbox.StatusInProgress && now.After(o.leases[e.ID].until)
		if e.Status != outbox.StatusPending && !expired {
			continue
		}
		e.Status = outbox.StatusInProgress
		e.RelayID = relayID
		o.leases[e.ID] = lease{relayID: relayID, until: now.Add(d)}
		out = append(out, *e)
	}
	return out, nil
}

func (o *OutboxStore) MarkSent(_ context.Context, ids []int64) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for i := range o.s.events {
		if slices.Contains(ids, o.s.events[i].ID) {
			o.s.events[i].Status = outbox.StatusSent
			delete(o.leases, o.s.events[i].ID)
		}
	}
	return nil
}

func (o *OutboxStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for i := range o.s.events {
		e := &o.s.events[i]
		if e.ID != id {
			continue
		}
		e.RetryCount++
		e.LastError = &errMsg
		e.Status = outbox.StatusPending
		if e.RetryCount >= outbox.MaxAttempts {
			e.Status = outbox.StatusFailed
		}
		delete(o.leases, id)
	}
	return nil
}

func (o *OutboxStore) ExtendLease(_ context.Context, relayID string, ids []int64, d time.Duration) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	until := time.Now().Add(d)
	for _, id := range ids {
		if l, ok := o.leases[id]; ok && l.relayID == relayID {
			o.leases[id] = lease{relayID: relayID, until: until}
		}
	}
	return nil
}
