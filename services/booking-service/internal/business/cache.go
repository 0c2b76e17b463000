package business

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/localli/booking/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
)

// CachedDirectory is a read-through Redis cache in front of another
// Directory. Redis failures fall back to the underlying directory.
type CachedDirectory struct {
	next   Directory
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCachedDirectory(next Directory, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedDirectory{next: next, rdb: rdb, ttl: ttl, prefix: "booking:business:", logger: logger}
}

func (c *CachedDirectory) Get(ctx context.Context, id string) (model.Business, error) {
	key := c.prefix + id
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var b model.Business
		if jsonErr := json.Unmarshal(raw, &b); jsonErr == nil {
			return b, nil
		}
		c.logger.Warn("dropping unreadable business cache entry", "business_id", id)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("business cache read failed", "business_id", id, "err", err)
	}

	b, err := c.next.Get(ctx, id)
	if err != nil {
		return model.Business{}, err
	}
	if raw, err := json.Marshal(b); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("business cache write failed", "business_id", id, "err", err)
		}
	}
	return b, nil
}

func (c *CachedDirectory) ListIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	return c.next.ListIDsByOwner(ctx, ownerID)
}

// Invalidate drops the cached entry for id.
func (c *CachedDirectory) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, c.prefix+id).Err()
}
