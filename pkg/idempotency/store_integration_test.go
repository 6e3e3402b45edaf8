//go:build integration

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-placement/test/integration"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	opts, err := redis.ParseURL(integration.Redis(t))
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, time.Minute)
}

func TestProcessed(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := s.Key("order.events", 0, 42)

	done, err := s.Processed(ctx, key)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, s.MarkProcessed(ctx, key))
	done, err = s.Processed(ctx, key)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestBeginCompleteAbort(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := s.RequestKey("orders", "abc")

	state, _, err := s.Begin(ctx, key, "fp")
	require.NoError(t, err)
	assert.Equal(t, Started, state)

	state, _, err = s.Begin(ctx, key, "fp")
	require.NoError(t, err)
	assert.Equal(t, InFlight, state)

	require.NoError(t, s.Complete(ctx, key, "fp", "order-1"))
	state, result, err := s.Begin(ctx, key, "fp")
	require.NoError(t, err)
	assert.Equal(t, Completed, state)
	assert.Equal(t, "order-1", result)

	require.NoError(t, s.Abort(ctx, key))
	state, _, err = s.Begin(ctx, key, "fp")
	require.NoError(t, err)
	assert.Equal(t, Started, state)
}
