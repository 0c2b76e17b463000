package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"
	pendingMarker  = "pending"
)

var (
	ErrInProgress = errors.New("request with this idempotency key is still in progress")
	ErrKeyReused  = errors.New("idempotency key was used with a different request")
)

// Record is a stored response for replay.
type Record struct {
	Fingerprint string `json:"fingerprint"`
	StatusCode  int    `json:"status_code"`
	Body        []byte `json:"body"`
}

// Store keeps idempotency records in Redis. A key is first claimed with a
// pending marker and then overwritten with the final response.
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl, prefix: "booking:idem:"}
}

// Begin claims scope/key. When the key already holds a completed response
// for the same fingerprint, that record is returned with claimed=false.
func (s *Store) Begin(ctx context.Context, scope, key, fingerprint string) (rec *Record, claimed bool, err error) {
	redisKey := s.key(scope, key)
	ok, err := s.rdb.SetNX(ctx, redisKey, pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return nil, true, nil
	}

	raw, err := s.rdb.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired or released between the two calls; try once more.
		ok, err = s.rdb.SetNX(ctx, redisKey, pendingMarker, s.ttl).Result()
		if err != nil {
			return nil, false, err
		}
		if ok {
			return nil, true, nil
		}
		return nil, false, ErrInProgress
	}
	if err != nil {
		return nil, false, err
	}
	if string(raw) == pendingMarker {
		return nil, false, ErrInProgress
	}

	var stored Record
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, false, err
	}
	if stored.Fingerprint != fingerprint {
		return nil, false, ErrKeyReused
	}
	return &stored, false, nil
}

func (s *Store) Complete(ctx context.Context, scope, key string, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(scope, key), raw, s.ttl).Err()
}

// Release drops a claim so the client may retry with the same key.
func (s *Store) Release(ctx context.Context, scope, key string) error {
	return s.rdb.Del(ctx, s.key(scope, key)).Err()
}

func (s *Store) key(scope, key string) string {
	return s.prefix + scope + ":" + key
}
