package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmehra2102/order-placement/pkg/outbox"
)

type OutboxStore struct {
	s *Store
}

func NewOutboxStore(s *Store) *OutboxStore {
	return &OutboxStore{s: s}
}

func (o *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := o.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, created_at, retry_count
		FROM outbox
		WHERE status = 'pending' OR (status = 'in_progress' AND lease_until_ms < ?)
		ORDER BY id
		LIMIT ?`, now.UnixMilli(), batchSize)
	if err != nil {
		return nil, fmt.Errorf("sqlite: select outbox: %w", err)
	}

	var events []outbox.Event
	for rows.Next() {
		var (
			e                         outbox.Event
			payload, headers, created string
		)
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &payload, &headers, &e.Traceparent, &created, &e.RetryCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scan outbox: %w", err)
		}
		e.Payload = []byte(payload)
		if err := json.Unmarshal([]byte(headers), &e.Headers); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: decode headers of event %d: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			rows.Close()
			return nil, err
		}
		e.Status = outbox.StatusInProgress
		e.RelayID = relayID
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	until := now.Add(lease).UnixMilli()
	for _, e := range events {
		if _, err := tx.ExecContext(ctx, `UPDATE outbox SET status = 'in_progress', relay_id = ?, lease_until_ms = ? WHERE id = ?`, relayID, until, e.ID); err != nil {
			return nil, fmt.Errorf("sqlite: lease event %d: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit: %w", err)
	}
	return events, nil
}

func (o *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := o.s.db.ExecContext(ctx, `UPDATE outbox SET status = 'sent', lease_until_ms = NULL WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	return err
}

func (o *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := o.s.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = CASE WHEN retry_count + 1 >= ? THEN 'failed' ELSE 'pending' END,
		    last_error = ?,
		    retry_count = retry_count + 1,
		    lease_until_ms = NULL
		WHERE id = ?`, outbox.MaxAttempts, errMsg, id)
	return err
}

func (o *OutboxStore) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	until := time.Now().Add(lease).UnixMilli()
	for _, id := range ids {
		if _, err := o.s.db.ExecContext(ctx, `UPDATE outbox SET lease_until_ms = ? WHERE id = ? AND relay_id = ?`, until, id, relayID); err != nil {
			return err
		}
	}
	return nil
}
