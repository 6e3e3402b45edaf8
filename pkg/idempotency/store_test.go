package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniStore(t *testing.T, ttl time.Duration, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, ttl, opts...), mr
}

func TestStalePendingClaimExpires(t *testing.T) {
	s, mr := newMiniStore(t, 24*time.Hour)
	ctx := context.Background()
	key := s.RequestKey("orders", "k")

	state, _, err := s.Begin(ctx, key, "fp")
	require.NoError(t, err)
	require.Equal(t, Started, state)
	assert.Equal(t, DefaultPendingTTL, mr.TTL(key))

	state, _, err = s.Begin(ctx, key, "fp")
	require.NoError(t, err)
	assert.Equal(t, InFlight, state)

	mr.FastForward(DefaultPendingTTL + time.Second)

	state, _, err = s.Begin(ctx, key, "fp")
	require.NoError(t, err)
	assert.Equal(t, Started, state, "an abandoned claim can be taken over")
}

func TestCompleteKeepsFullTTL(t *testing.T) {
	s, mr := newMiniStore(t, 24*time.Hour, WithPendingTTL(5*time.Second))
	ctx := context.Background()
	key := s.RequestKey("orders", "k")

	_, _, err := s.Begin(ctx, key, "fp")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, key, "fp", "order-1"))
	assert.Equal(t, 24*time.Hour, mr.TTL(key))

	mr.FastForward(23 * time.Hour)

	state, result, err := s.Begin(ctx, key, "fp")
	require.NoError(t, err)
	assert.Equal(t, Completed, state)
	assert.Equal(t, "order-1", result)
}

func TestCompletedKeyWithOtherBody(t *testing.T) {
	s, _ := newMiniStore(t, time.Hour)
	ctx := context.Background()
	key := s.RequestKey("orders", "k")

	_, _, err := s.Begin(ctx, key, Fingerprint([]byte(`{"a":1}`)))
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, key, Fingerprint([]byte(`{"a":1}`)), "order-1"))

	state, result, err := s.Begin(ctx, key, Fingerprint([]byte(`{"a":2}`)))
	require.NoError(t, err)
	assert.Equal(t, Mismatch, state)
	assert.Empty(t, result)
}

func TestPendingTTLNeverExceedsTTL(t *testing.T) {
	s, mr := newMiniStore(t, 10*time.Second, WithPendingTTL(time.Minute))

	_, _, err := s.Begin(context.Background(), "k", "fp")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, mr.TTL("k"))
}

func TestProcessedOnlyAfterMark(t *testing.T) {
	s, _ := newMiniStore(t, time.Hour)
	ctx := context.Background()
	key := s.Key("order.events", 0, 42)

	done, err := s.Processed(ctx, key)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = s.Processed(ctx, key)
	require.NoError(t, err)
	assert.False(t, done, "checking does not mark")

	require.NoError(t, s.MarkProcessed(ctx, key))
	done, err = s.Processed(ctx, key)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestUnavailableRedis(t *testing.T) {
	s, mr := newMiniStore(t, time.Hour)
	mr.Close()

	_, _, err := s.Begin(context.Background(), "k", "fp")
	assert.Error(t, err)
	_, err = s.Processed(context.Background(), "k")
	assert.Error(t, err)
}
