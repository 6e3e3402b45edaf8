package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingMarker = "\x00pending"

	// DefaultPendingTTL bounds how long an unfinished claim blocks its key.
	DefaultPendingTTL = 30 * time.Second
)

type State int

const (
	// Started means the caller owns the key and must Complete or Abort it.
	Started State = iota
	// InFlight means another request holds the key and has not finished.
	InFlight
	// Completed means the key already maps to a result.
	Completed
	// Mismatch means the key was completed for a different request.
	Mismatch
)

type Store struct {
	rdb        *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
}

type Option func(*Store)

func WithPendingTTL(d time.Duration) Option { return func(s *Store) { s.pendingTTL = d } }

// NewStore keeps completed keys for ttl and unfinished claims for the
// pending TTL.
func NewStore(rdb *redis.Client, ttl time.Duration, opts ...Option) *Store {
	s := &Store{rdb: rdb, ttl: ttl, pendingTTL: DefaultPendingTTL}
	for _, opt := range opts {
		opt(s)
	}
	if s.pendingTTL > s.ttl {
		s.pendingTTL = s.ttl
	}
	return s
}

// Key identifies a consumed Kafka message.
func (s *Store) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// RequestKey identifies a client supplied Idempotency-Key within scope.
func (s *Store) RequestKey(scope, key string) string {
	return fmt.Sprintf("idem:req:%s:%s", scope, key)
}

// Fingerprint is the value Begin and Complete compare request bodies by.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Processed reports whether key was marked by MarkProcessed.
func (s *Store) Processed(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *Store) MarkProcessed(ctx context.Context, key string) error {
	if err := s.rdb.Set(ctx, key, "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("mark %s: %w", key, err)
	}
	return nil
}

// Begin claims key for a request with the given fingerprint. When the key is
// Completed the stored result is returned; a completed key whose fingerprint
// differs yields Mismatch.
func (s *Store) Begin(ctx context.Context, key, fingerprint string) (State, string, error) {
	ok, err := s.rdb.SetNX(ctx, key, pendingMarker, s.pendingTTL).Result()
	if err != nil {
		return 0, "", fmt.Errorf("claim %s: %w", key, err)
	}
	if ok {
		return Started, "", nil
	}

	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Begin(ctx, key, fingerprint)
	}
	if err != nil {
		return 0, "", fmt.Errorf("read %s: %w", key, err)
	}
	if v == pendingMarker {
		return InFlight, "", nil
	}

	stored, result, _ := strings.Cut(v, ":")
	if stored != fingerprint {
		return Mismatch, "", nil
	}
	return Completed, result, nil
}

// Complete records result for key and keeps it for the full TTL.
func (s *Store) Complete(ctx context.Context, key, fingerprint, result string) error {
	if err := s.rdb.Set(ctx, key, fingerprint+":"+result, s.ttl).Err(); err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return nil
}

// Abort releases key so the request can be retried.
func (s *Store) Abort(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
